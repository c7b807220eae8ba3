package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"agriscan/internal/dto"
	"agriscan/internal/model"
	"agriscan/internal/repository"
)

// ImageRepository implements repository.ImageRepository for SQLite.
type ImageRepository struct {
	db *DB
}

// NewImageRepository creates a new SQLite image repository.
func NewImageRepository(db *DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

const imageColumns = `i.id, i.file_name, i.url, i.file_size, i.uploaded_at, i.analyzed, i.processed_at, i.all_classes`

// Insert adds a new image record to the database.
func (r *ImageRepository) Insert(ctx context.Context, rec *model.ImageRecord) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO images (id, file_name, url, file_size, uploaded_at, analyzed)
		VALUES (?, ?, ?, ?, ?, 0)
	`, rec.ID, rec.FileName, rec.URL, rec.FileSize, rec.UploadedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert image: %w", err)
	}
	return nil
}

// GetByID retrieves an image with its predictions. Returns nil, nil when
// the image does not exist.
func (r *ImageRepository) GetByID(ctx context.Context, id string) (*model.ImageRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	recs, err := r.queryImages(ctx, `SELECT `+imageColumns+` FROM images i WHERE i.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// GetAll retrieves images based on filter criteria, newest first.
func (r *ImageRepository) GetAll(ctx context.Context, filter *dto.ImageFilters) ([]model.ImageRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)
	query := `SELECT ` + imageColumns + ` FROM images i WHERE 1=1` + where +
		` ORDER BY i.uploaded_at DESC, i.rowid DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	recs, err := r.queryImages(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	return recs, nil
}

// GetTotalCount returns the total count of images matching the filter.
func (r *ImageRepository) GetTotalCount(ctx context.Context, filter *dto.ImageFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)

	var count int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM images i WHERE 1=1`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}
	return count, nil
}

func buildWhere(filter *dto.ImageFilters) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	var sb strings.Builder
	args := []interface{}{}

	switch filter.Status {
	case dto.StatusAnalyzed:
		sb.WriteString(" AND i.analyzed = 1")
	case dto.StatusPending:
		sb.WriteString(" AND i.analyzed = 0")
	}

	if filter.Class != "" {
		sb.WriteString(" AND EXISTS (SELECT 1 FROM predictions p WHERE p.image_id = i.id AND p.class = ?)")
		args = append(args, filter.Class)
	}

	if !filter.DateAfter.IsZero() {
		sb.WriteString(" AND i.uploaded_at >= ?")
		args = append(args, filter.DateAfter.UTC())
	}

	if !filter.DateBefore.IsZero() {
		sb.WriteString(" AND i.uploaded_at <= ?")
		args = append(args, filter.DateBefore.UTC())
	}

	return sb.String(), args
}

// queryImages scans image rows, then loads their predictions. The rows are
// closed before the second query since the pool holds a single connection.
func (r *ImageRepository) queryImages(ctx context.Context, query string, args ...interface{}) ([]model.ImageRecord, error) {
	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var recs []model.ImageRecord
	for rows.Next() {
		var (
			rec         model.ImageRecord
			analyzed    int
			processedAt sql.NullTime
			allClasses  sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.FileName, &rec.URL, &rec.FileSize, &rec.UploadedAt, &analyzed, &processedAt, &allClasses); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		rec.UploadedAt = rec.UploadedAt.Local()
		rec.Analyzed = analyzed == 1
		if rec.Analyzed {
			rec.AnalysisResult = &model.AnalysisResult{Predictions: []model.Prediction{}}
			if processedAt.Valid {
				rec.AnalysisResult.ProcessedAt = processedAt.Time.Local()
			}
			if allClasses.Valid && allClasses.String != "" {
				if err := json.Unmarshal([]byte(allClasses.String), &rec.AnalysisResult.AllClasses); err != nil {
					rows.Close()
					return nil, fmt.Errorf("failed to decode classes of %s: %w", rec.ID, err)
				}
			}
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := attachPredictions(ctx, r.db.Conn(), recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// attachPredictions fills AnalysisResult.Predictions of analyzed records.
func attachPredictions(ctx context.Context, q querier, recs []model.ImageRecord) error {
	index := make(map[string]int)
	var ids []interface{}
	for i := range recs {
		if recs[i].AnalysisResult != nil {
			index[recs[i].ID] = i
			ids = append(ids, recs[i].ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := q.QueryContext(ctx, `
		SELECT image_id, class, confidence, x, y, width, height
		FROM predictions WHERE image_id IN (`+placeholders+`)
		ORDER BY image_id, position
	`, ids...)
	if err != nil {
		return fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var imageID string
		var p model.Prediction
		if err := rows.Scan(&imageID, &p.Class, &p.Confidence, &p.BBox[0], &p.BBox[1], &p.BBox[2], &p.BBox[3]); err != nil {
			return fmt.Errorf("failed to scan prediction: %w", err)
		}
		rec := &recs[index[imageID]]
		rec.AnalysisResult.Predictions = append(rec.AnalysisResult.Predictions, p)
	}
	return rows.Err()
}

// UpdateAnalysis marks the image analyzed and replaces its predictions in a
// single transaction.
func (r *ImageRepository) UpdateAnalysis(ctx context.Context, id string, result *model.AnalysisResult) error {
	if result == nil {
		return fmt.Errorf("failed to update analysis: nil result")
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var allClasses interface{}
	if len(result.AllClasses) > 0 {
		data, err := json.Marshal(result.AllClasses)
		if err != nil {
			return fmt.Errorf("failed to encode classes: %w", err)
		}
		allClasses = string(data)
	}

	processedAt := result.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE images SET analyzed = 1, processed_at = ?, all_classes = ? WHERE id = ?
	`, processedAt.UTC(), allClasses, id)
	if err != nil {
		return fmt.Errorf("failed to update image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM predictions WHERE image_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear predictions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO predictions (image_id, position, class, confidence, x, y, width, height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, p := range result.Predictions {
		if _, err := stmt.ExecContext(ctx, id, i, p.Class, p.Confidence, p.BBox[0], p.BBox[1], p.BBox[2], p.BBox[3]); err != nil {
			return fmt.Errorf("failed to insert prediction: %w", err)
		}
	}

	return tx.Commit()
}

// GetStats returns statistics about stored images.
func (r *ImageRepository) GetStats(ctx context.Context) (*model.ImageStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.ImageStats{DetectionCounts: make(map[string]int)}

	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(analyzed), 0), COALESCE(SUM(file_size), 0) FROM images
	`).Scan(&stats.TotalImages, &stats.AnalyzedImages, &stats.TotalSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to count images: %w", err)
	}
	stats.PendingImages = stats.TotalImages - stats.AnalyzedImages

	counts, err := countByClass(ctx, r.db.Conn())
	if err != nil {
		return nil, err
	}
	stats.DetectionCounts = counts

	return stats, nil
}

// Delete removes an image and its predictions.
func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().ExecContext(ctx, `DELETE FROM predictions WHERE image_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete predictions: %w", err)
	}

	res, err := r.db.Conn().ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteAll removes all images and their predictions.
func (r *ImageRepository) DeleteAll(ctx context.Context) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().ExecContext(ctx, `DELETE FROM predictions`); err != nil {
		return fmt.Errorf("failed to delete predictions: %w", err)
	}

	if _, err := r.db.Conn().ExecContext(ctx, `DELETE FROM images`); err != nil {
		return fmt.Errorf("failed to delete images: %w", err)
	}

	return nil
}
