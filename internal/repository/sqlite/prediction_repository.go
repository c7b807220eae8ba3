package sqlite

import (
	"context"
	"fmt"

	"agriscan/internal/model"
)

// PredictionRepository implements repository.PredictionRepository for SQLite.
// Writes go through ImageRepository.UpdateAnalysis.
type PredictionRepository struct {
	db *DB
}

// NewPredictionRepository creates a new SQLite prediction repository.
func NewPredictionRepository(db *DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// GetByImageID retrieves the predictions of an image in detector order.
func (r *PredictionRepository) GetByImageID(ctx context.Context, imageID string) ([]model.Prediction, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT class, confidence, x, y, width, height
		FROM predictions WHERE image_id = ? ORDER BY position
	`, imageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	predictions := []model.Prediction{}
	for rows.Next() {
		var p model.Prediction
		if err := rows.Scan(&p.Class, &p.Confidence, &p.BBox[0], &p.BBox[1], &p.BBox[2], &p.BBox[3]); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, p)
	}

	return predictions, rows.Err()
}

// GetAllClasses returns every class that has been detected at least once.
func (r *PredictionRepository) GetAllClasses(ctx context.Context) ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `SELECT DISTINCT class FROM predictions ORDER BY class`)
	if err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	defer rows.Close()

	classes := []string{}
	for rows.Next() {
		var class string
		if err := rows.Scan(&class); err != nil {
			return nil, fmt.Errorf("failed to scan class: %w", err)
		}
		classes = append(classes, class)
	}

	return classes, rows.Err()
}

// CountByClass returns the number of predictions per class.
func (r *PredictionRepository) CountByClass(ctx context.Context) (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return countByClass(ctx, r.db.Conn())
}

func countByClass(ctx context.Context, q querier) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT class, COUNT(*) FROM predictions GROUP BY class`)
	if err != nil {
		return nil, fmt.Errorf("failed to count predictions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, fmt.Errorf("failed to scan prediction count: %w", err)
		}
		counts[class] = n
	}
	return counts, rows.Err()
}
