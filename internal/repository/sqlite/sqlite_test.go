package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"agriscan/internal/dto"
	"agriscan/internal/model"
	"agriscan/internal/repository"
)

// ========================================
// Test Setup Helpers
// ========================================

func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "agriscan_db_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	db, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tempDir)
	}

	return db, cleanup
}

func insertImage(t *testing.T, repo *ImageRepository, id string, uploadedAt time.Time) {
	t.Helper()

	rec := &model.ImageRecord{
		ID:         id,
		FileName:   id + ".jpg",
		URL:        "data:image/jpeg;base64,AAAA",
		FileSize:   1024,
		UploadedAt: uploadedAt,
	}
	if err := repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Failed to insert %s: %v", id, err)
	}
}

func result(pairs ...interface{}) *model.AnalysisResult {
	res := &model.AnalysisResult{ProcessedAt: time.Now()}
	for i := 0; i < len(pairs); i += 2 {
		res.Predictions = append(res.Predictions, model.Prediction{
			Class:      pairs[i].(string),
			Confidence: pairs[i+1].(float64),
			BBox:       [4]float64{10, 20, 30.5, 40.25},
		})
	}
	return res
}

// ========================================
// Database Tests
// ========================================

func TestDatabase_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist")
	}
}

func TestDatabase_ConcurrentAccess(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImageRepository(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			rec := &model.ImageRecord{
				ID:         fmt.Sprintf("concurrent-%d", idx),
				FileName:   "leaf.jpg",
				URL:        "u",
				UploadedAt: time.Now(),
			}
			if err := repo.Insert(ctx, rec); err != nil {
				t.Errorf("Concurrent insert %d failed: %v", idx, err)
			}
		}(i)
	}
	wg.Wait()

	count, _ := repo.GetTotalCount(ctx, &dto.ImageFilters{})
	if count != 10 {
		t.Errorf("Expected 10 images, got %d", count)
	}
}

// ========================================
// Image Repository Tests
// ========================================

func TestImageRepository_InsertAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImageRepository(db)
	ctx := context.Background()
	uploaded := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	insertImage(t, repo, "img-1", uploaded)

	rec, err := repo.GetByID(ctx, "img-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec == nil {
		t.Fatal("Expected image, got nil")
	}
	if rec.FileName != "img-1.jpg" || rec.FileSize != 1024 {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if !rec.UploadedAt.Equal(uploaded) {
		t.Errorf("Expected uploadedAt %v, got %v", uploaded, rec.UploadedAt)
	}
	if rec.Analyzed || rec.AnalysisResult != nil {
		t.Error("New image should be pending")
	}
}

func TestImageRepository_Insert_DuplicateID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImageRepository(db)
	insertImage(t, repo, "dup", time.Now())

	err := repo.Insert(context.Background(), &model.ImageRecord{ID: "dup", FileName: "x", URL: "u", UploadedAt: time.Now()})
	if err == nil {
		t.Error("Expected error for duplicate id")
	}
}

func TestImageRepository_GetByID_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImageRepository(db)
	rec, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec != nil {
		t.Errorf("Expected nil for missing image, got %+v", rec)
	}
}

func TestImageRepository_GetAll_NewestFirst(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImageRepository(db)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	insertImage(t, repo, "old", base)
	insertImage(t, repo, "new", base.Add(2*time.Hour))
	insertImage(t, repo, "mid", base.Add(time.Hour))
	insertImage(t, repo, "mid-later-insert", base.Add(time.Hour))

	recs, err := repo.GetAll(context.Background(), &dto.ImageFilters{})
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}

	want := []string{"new", "mid-later-insert", "mid", "old"}
	if len(recs) != len(want) {
		t.Fatalf("Expected %d images, got %d", len(want), len(recs))
	}
	for i, id := range want {
		if recs[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, recs[i].ID)
		}
	}
}

func TestImageRepository_GetAll_Pagination(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImageRepository(db)
	base := time.Now()
	for i := 0; i < 5; i++ {
		insertImage(t, repo, fmt.Sprintf("img-%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	recs, err := repo.GetAll(context.Background(), &dto.ImageFilters{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 images, got %d", len(recs))
	}
	if recs[0].ID != "img-2" || recs[1].ID != "img-1" {
		t.Errorf("Unexpected page: %s, %s", recs[0].ID, recs[1].ID)
	}
}

func TestImageRepository_Filters(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImageRepository(db)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	insertImage(t, repo, "a", base)
	insertImage(t, repo, "b", base.AddDate(0, 0, 1))
	insertImage(t, repo, "c", base.AddDate(0, 0, 2))

	if err := repo.UpdateAnalysis(ctx, "a", result("Late Blight", 0.9)); err != nil {
		t.Fatalf("UpdateAnalysis failed: %v", err)
	}
	if err := repo.UpdateAnalysis(ctx, "b", result("Healthy", 0.8, "Leaf Mold", 0.4)); err != nil {
		t.Fatalf("UpdateAnalysis failed: %v", err)
	}

	tests := []struct {
		name   string
		filter dto.ImageFilters
		want   int
	}{
		{"all", dto.ImageFilters{}, 3},
		{"analyzed", dto.ImageFilters{Status: dto.StatusAnalyzed}, 2},
		{"pending", dto.ImageFilters{Status: dto.StatusPending}, 1},
		{"class", dto.ImageFilters{Class: "Leaf Mold"}, 1},
		{"class unknown", dto.ImageFilters{Class: "Mosaic Virus"}, 0},
		{"after", dto.ImageFilters{DateAfter: base.AddDate(0, 0, 1)}, 2},
		{"before", dto.ImageFilters{DateBefore: base}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := repo.GetTotalCount(ctx, &tt.filter)
			if err != nil {
				t.Fatalf("GetTotalCount failed: %v", err)
			}
			if count != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, count)
			}

			recs, err := repo.GetAll(ctx, &tt.filter)
			if err != nil {
				t.Fatalf("GetAll failed: %v", err)
			}
			if len(recs) != tt.want {
				t.Errorf("GetAll: expected %d, got %d", tt.want, len(recs))
			}
		})
	}
}

func TestImageRepository_UpdateAnalysis(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImageRepository(db)
	ctx := context.Background()
	insertImage(t, repo, "leaf", time.Now())

	res := result("Early Blight", 0.7, "Early Blight", 0.85, "Septoria", 0.3)
	res.AllClasses = []string{"Early Blight", "Septoria"}
	if err := repo.UpdateAnalysis(ctx, "leaf", res); err != nil {
		t.Fatalf("UpdateAnalysis failed: %v", err)
	}

	rec, err := repo.GetByID(ctx, "leaf")
	if err != nil || rec == nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !rec.Analyzed || rec.AnalysisResult == nil {
		t.Fatal("Expected analyzed record with result")
	}
	preds := rec.AnalysisResult.Predictions
	if len(preds) != 3 {
		t.Fatalf("Expected 3 predictions, got %d", len(preds))
	}
	if preds[1].Class != "Early Blight" || preds[1].Confidence != 0.85 {
		t.Errorf("Predictions out of order: %+v", preds)
	}
	if preds[0].BBox != [4]float64{10, 20, 30.5, 40.25} {
		t.Errorf("BBox changed: %v", preds[0].BBox)
	}
	if len(rec.AnalysisResult.AllClasses) != 2 {
		t.Errorf("Expected all classes kept, got %v", rec.AnalysisResult.AllClasses)
	}

	// Re-analysis replaces the previous result
	if err := repo.UpdateAnalysis(ctx, "leaf", result("Healthy", 0.99)); err != nil {
		t.Fatalf("Second UpdateAnalysis failed: %v", err)
	}
	rec, _ = repo.GetByID(ctx, "leaf")
	if len(rec.AnalysisResult.Predictions) != 1 || rec.AnalysisResult.Predictions[0].Class != "Healthy" {
		t.Errorf("Expected replaced predictions, got %+v", rec.AnalysisResult.Predictions)
	}
}

func TestImageRepository_UpdateAnalysis_EmptyPredictions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImageRepository(db)
	ctx := context.Background()
	insertImage(t, repo, "blank", time.Now())

	if err := repo.UpdateAnalysis(ctx, "blank", result()); err != nil {
		t.Fatalf("UpdateAnalysis failed: %v", err)
	}

	rec, _ := repo.GetByID(ctx, "blank")
	if !rec.Analyzed || rec.AnalysisResult == nil {
		t.Fatal("Expected analyzed record")
	}
	if len(rec.AnalysisResult.Predictions) != 0 {
		t.Errorf("Expected no predictions, got %d", len(rec.AnalysisResult.Predictions))
	}
	if !rec.Pending() {
		t.Error("Analyzed record without predictions should still count as pending")
	}
}

func TestImageRepository_UpdateAnalysis_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImageRepository(db)
	err := repo.UpdateAnalysis(context.Background(), "gone", result("Healthy", 0.5))
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestImageRepository_Delete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImageRepository(db)
	preds := NewPredictionRepository(db)
	ctx := context.Background()
	insertImage(t, repo, "doomed", time.Now())
	repo.UpdateAnalysis(ctx, "doomed", result("Leaf Miner", 0.6))

	if err := repo.Delete(ctx, "doomed"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	rec, _ := repo.GetByID(ctx, "doomed")
	if rec != nil {
		t.Error("Image should be deleted")
	}
	left, _ := preds.GetByImageID(ctx, "doomed")
	if len(left) != 0 {
		t.Errorf("Expected predictions deleted, got %d", len(left))
	}

	if err := repo.Delete(ctx, "doomed"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestImageRepository_DeleteAll(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImageRepository(db)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		insertImage(t, repo, fmt.Sprintf("img-%d", i), time.Now())
	}

	if err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	count, _ := repo.GetTotalCount(ctx, nil)
	if count != 0 {
		t.Errorf("Expected 0 images, got %d", count)
	}
}

func TestImageRepository_GetStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImageRepository(db)
	ctx := context.Background()
	insertImage(t, repo, "a", time.Now())
	insertImage(t, repo, "b", time.Now())
	insertImage(t, repo, "c", time.Now())
	repo.UpdateAnalysis(ctx, "a", result("Late Blight", 0.9, "Late Blight", 0.8))
	repo.UpdateAnalysis(ctx, "b", result("Healthy", 0.7))

	stats, err := repo.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}

	if stats.TotalImages != 3 || stats.AnalyzedImages != 2 || stats.PendingImages != 1 {
		t.Errorf("Unexpected counts: %+v", stats)
	}
	if stats.TotalSizeBytes != 3072 {
		t.Errorf("Expected 3072 bytes, got %d", stats.TotalSizeBytes)
	}
	if stats.DetectionCounts["Late Blight"] != 2 || stats.DetectionCounts["Healthy"] != 1 {
		t.Errorf("Unexpected detection counts: %v", stats.DetectionCounts)
	}
}

// ========================================
// Prediction Repository Tests
// ========================================

func TestPredictionRepository_Classes(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImageRepository(db)
	preds := NewPredictionRepository(db)
	ctx := context.Background()
	insertImage(t, repo, "a", time.Now())
	insertImage(t, repo, "b", time.Now())
	repo.UpdateAnalysis(ctx, "a", result("Spider Mites", 0.4, "Healthy", 0.5))
	repo.UpdateAnalysis(ctx, "b", result("Healthy", 0.9))

	classes, err := preds.GetAllClasses(ctx)
	if err != nil {
		t.Fatalf("GetAllClasses failed: %v", err)
	}
	if len(classes) != 2 || classes[0] != "Healthy" || classes[1] != "Spider Mites" {
		t.Errorf("Unexpected classes: %v", classes)
	}

	counts, err := preds.CountByClass(ctx)
	if err != nil {
		t.Fatalf("CountByClass failed: %v", err)
	}
	if counts["Healthy"] != 2 {
		t.Errorf("Expected 2 Healthy predictions, got %d", counts["Healthy"])
	}

	got, err := preds.GetByImageID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByImageID failed: %v", err)
	}
	if len(got) != 2 || got[0].Class != "Spider Mites" {
		t.Errorf("Expected detector order, got %+v", got)
	}
}
