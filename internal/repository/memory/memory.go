// Package memory is a process-local repository used by tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"agriscan/internal/dto"
	"agriscan/internal/model"
	"agriscan/internal/repository"
)

type entry struct {
	rec model.ImageRecord
	seq int64
}

// Repository implements repository.ImageRepository and
// repository.PredictionRepository in memory.
type Repository struct {
	mu      sync.RWMutex
	entries map[string]*entry
	seq     int64
}

func New() *Repository {
	return &Repository{entries: make(map[string]*entry)}
}

func (r *Repository) Insert(_ context.Context, rec *model.ImageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[rec.ID]; exists {
		return fmt.Errorf("failed to insert image: duplicate id %s", rec.ID)
	}
	r.seq++
	stored := copyRecord(*rec)
	stored.Analyzed = false
	stored.AnalysisResult = nil
	r.entries[rec.ID] = &entry{rec: stored, seq: r.seq}
	return nil
}

func (r *Repository) GetByID(_ context.Context, id string) (*model.ImageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, nil
	}
	rec := copyRecord(e.rec)
	return &rec, nil
}

func (r *Repository) GetAll(_ context.Context, filter *dto.ImageFilters) ([]model.ImageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.match(filter)
	if filter != nil && filter.Limit > 0 {
		start := filter.Offset
		if start < 0 {
			start = 0
		}
		if start > len(matched) {
			start = len(matched)
		}
		end := start + filter.Limit
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}

	out := make([]model.ImageRecord, 0, len(matched))
	for _, e := range matched {
		out = append(out, copyRecord(e.rec))
	}
	return out, nil
}

func (r *Repository) GetTotalCount(_ context.Context, filter *dto.ImageFilters) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.match(filter)), nil
}

// match returns the filtered entries, newest first. Caller holds the lock.
func (r *Repository) match(filter *dto.ImageFilters) []*entry {
	var out []*entry
	for _, e := range r.entries {
		if filter != nil && !matches(&e.rec, filter) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.rec.UploadedAt.Equal(b.rec.UploadedAt) {
			return a.rec.UploadedAt.After(b.rec.UploadedAt)
		}
		return a.seq > b.seq
	})
	return out
}

func matches(rec *model.ImageRecord, f *dto.ImageFilters) bool {
	switch f.Status {
	case dto.StatusAnalyzed:
		if !rec.Analyzed {
			return false
		}
	case dto.StatusPending:
		if rec.Analyzed {
			return false
		}
	}
	if f.Class != "" {
		found := false
		if rec.AnalysisResult != nil {
			for _, p := range rec.AnalysisResult.Predictions {
				if p.Class == f.Class {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	if !f.DateAfter.IsZero() && rec.UploadedAt.Before(f.DateAfter) {
		return false
	}
	if !f.DateBefore.IsZero() && rec.UploadedAt.After(f.DateBefore) {
		return false
	}
	return true
}

func (r *Repository) UpdateAnalysis(_ context.Context, id string, result *model.AnalysisResult) error {
	if result == nil {
		return fmt.Errorf("failed to update analysis: nil result")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return repository.ErrNotFound
	}
	res := copyResult(result)
	e.rec.Analyzed = true
	e.rec.AnalysisResult = res
	return nil
}

func (r *Repository) GetStats(ctx context.Context) (*model.ImageStats, error) {
	counts, err := r.CountByClass(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &model.ImageStats{DetectionCounts: counts}
	for _, e := range r.entries {
		stats.TotalImages++
		stats.TotalSizeBytes += e.rec.FileSize
		if e.rec.Analyzed {
			stats.AnalyzedImages++
		}
	}
	stats.PendingImages = stats.TotalImages - stats.AnalyzedImages
	return stats, nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.entries, id)
	return nil
}

func (r *Repository) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*entry)
	return nil
}

func (r *Repository) GetByImageID(_ context.Context, imageID string) ([]model.Prediction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []model.Prediction{}
	if e, ok := r.entries[imageID]; ok && e.rec.AnalysisResult != nil {
		out = append(out, e.rec.AnalysisResult.Predictions...)
	}
	return out, nil
}

func (r *Repository) GetAllClasses(ctx context.Context) ([]string, error) {
	counts, _ := r.CountByClass(ctx)
	classes := make([]string, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes, nil
}

func (r *Repository) CountByClass(_ context.Context) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range r.entries {
		if e.rec.AnalysisResult == nil {
			continue
		}
		for _, p := range e.rec.AnalysisResult.Predictions {
			counts[p.Class]++
		}
	}
	return counts, nil
}

func copyRecord(rec model.ImageRecord) model.ImageRecord {
	rec.AnalysisResult = copyResult(rec.AnalysisResult)
	return rec
}

func copyResult(res *model.AnalysisResult) *model.AnalysisResult {
	if res == nil {
		return nil
	}
	out := *res
	out.Predictions = append([]model.Prediction{}, res.Predictions...)
	if res.AllClasses != nil {
		out.AllClasses = append([]string{}, res.AllClasses...)
	}
	return &out
}

var (
	_ repository.ImageRepository      = (*Repository)(nil)
	_ repository.PredictionRepository = (*Repository)(nil)
)
