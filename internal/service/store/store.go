// Package store is the document-store facade the rest of the services use:
// records keyed by a generated id, newest first, with change subscriptions.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agriscan/internal/dto"
	"agriscan/internal/logger"
	"agriscan/internal/model"
	"agriscan/internal/repository"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an id does not address a stored image.
var ErrNotFound = repository.ErrNotFound

// Listener receives the full ordered image list after every change.
type Listener func(images []model.ImageRecord)

type ImageStore struct {
	repo   repository.ImageRepository
	logger *logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
	onDelete  []func(rec model.ImageRecord)

	// notifyMu keeps snapshots delivered in mutation order.
	notifyMu sync.Mutex
}

func NewImageStore(repo repository.ImageRepository, logger *logger.Logger) *ImageStore {
	return &ImageStore{
		repo:      repo,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// Create persists a new pending record. ID and UploadedAt are assigned here
// when left empty.
func (s *ImageStore) Create(ctx context.Context, rec model.ImageRecord) (*model.ImageRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = s.now()
	}
	rec.Analyzed = false
	rec.AnalysisResult = nil

	if err := s.repo.Insert(ctx, &rec); err != nil {
		return nil, fmt.Errorf("failed to create image: %w", err)
	}

	s.notify(ctx)
	return &rec, nil
}

// Get returns the record or ErrNotFound.
func (s *ImageStore) Get(ctx context.Context, id string) (*model.ImageRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("image %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

// List returns records matching filter, newest first. A nil filter lists all.
func (s *ImageStore) List(ctx context.Context, filter *dto.ImageFilters) ([]model.ImageRecord, error) {
	recs, err := s.repo.GetAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []model.ImageRecord{}
	}
	return recs, nil
}

func (s *ImageStore) Count(ctx context.Context, filter *dto.ImageFilters) (int, error) {
	return s.repo.GetTotalCount(ctx, filter)
}

// Pending lists records that still need an analysis pass, including analyzed
// records that came back without predictions.
func (s *ImageStore) Pending(ctx context.Context) ([]model.ImageRecord, error) {
	all, err := s.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if rec.Pending() {
			out = append(out, rec)
		}
	}
	return out, nil
}

// IDs returns the ids of all records in store order.
func (s *ImageStore) IDs(ctx context.Context) ([]string, error) {
	all, err := s.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(all))
	for i, rec := range all {
		ids[i] = rec.ID
	}
	return ids, nil
}

// Update stores an analysis result and marks the record analyzed.
func (s *ImageStore) Update(ctx context.Context, id string, result *model.AnalysisResult) error {
	if err := s.repo.UpdateAnalysis(ctx, id, result); err != nil {
		return fmt.Errorf("failed to update image %s: %w", id, err)
	}
	s.notify(ctx)
	return nil
}

func (s *ImageStore) Delete(ctx context.Context, id string) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete image %s: %w", id, err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete image %s: %w", id, err)
	}

	s.mu.Lock()
	hooks := append([]func(model.ImageRecord){}, s.onDelete...)
	s.mu.Unlock()
	if rec != nil {
		for _, h := range hooks {
			h(*rec)
		}
	}

	s.notify(ctx)
	return nil
}

// OnDelete registers fn to run after a record has been deleted.
func (s *ImageStore) OnDelete(fn func(rec model.ImageRecord)) {
	s.mu.Lock()
	s.onDelete = append(s.onDelete, fn)
	s.mu.Unlock()
}

func (s *ImageStore) Stats(ctx context.Context) (*model.ImageStats, error) {
	return s.repo.GetStats(ctx)
}

// Subscribe registers fn and immediately delivers the current list. The
// returned function removes the subscription. fn must not call back into
// mutating store methods.
func (s *ImageStore) Subscribe(ctx context.Context, fn Listener) (func(), error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	recs, err := s.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	fn(recs)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}, nil
}

func (s *ImageStore) notify(ctx context.Context) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	if len(listeners) == 0 {
		return
	}

	// a cancelled request context should not starve other subscribers
	recs, err := s.List(context.WithoutCancel(ctx), nil)
	if err != nil {
		s.logger.Error("Failed to load images for subscribers: %v", err)
		return
	}
	for _, l := range listeners {
		l(recs)
	}
}
