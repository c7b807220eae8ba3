package repository

import (
	"context"
	"errors"

	"agriscan/internal/dto"
	"agriscan/internal/model"
)

// ErrNotFound is returned by mutations addressing an image that does not exist.
var ErrNotFound = errors.New("image not found")

// ImageRepository defines the interface for image record operations.
// Records come back ordered by upload time, newest first.
type ImageRepository interface {
	// Create operations
	Insert(ctx context.Context, rec *model.ImageRecord) error

	// Read operations
	GetByID(ctx context.Context, id string) (*model.ImageRecord, error)
	GetAll(ctx context.Context, filter *dto.ImageFilters) ([]model.ImageRecord, error)
	GetTotalCount(ctx context.Context, filter *dto.ImageFilters) (int, error)
	GetStats(ctx context.Context) (*model.ImageStats, error)

	// Update operations
	UpdateAnalysis(ctx context.Context, id string, result *model.AnalysisResult) error

	// Delete operations
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

// PredictionRepository defines read access to stored detector predictions.
type PredictionRepository interface {
	GetByImageID(ctx context.Context, imageID string) ([]model.Prediction, error)
	GetAllClasses(ctx context.Context) ([]string, error)
	CountByClass(ctx context.Context) (map[string]int, error)
}
