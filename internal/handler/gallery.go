package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agriscan/internal/config"
	"agriscan/internal/dto"
	"agriscan/internal/logger"
	"agriscan/internal/model"
	"agriscan/internal/service"
	"agriscan/internal/service/encoder"
	"agriscan/internal/service/store"
	"agriscan/internal/service/upload"

	"github.com/go-chi/chi/v5"
)

const (
	defaultPageSize = 24
	maxPageSize     = 200
	// multipart parts above this are spooled to disk by net/http
	multipartMemory = 32 << 20
)

// GetImagesHandler returns a filtered page of the gallery.
func GetImagesHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), defaultPageSize)
		if limit > maxPageSize {
			limit = maxPageSize
		}
		// keep (page-1)*limit within int
		if page > math.MaxInt/limit {
			page = math.MaxInt / limit
		}

		status := q.Get("status")
		switch status {
		case dto.StatusAll, dto.StatusAnalyzed, dto.StatusPending:
		default:
			http.Error(w, "Unknown status filter", http.StatusBadRequest)
			return
		}

		filter := &dto.ImageFilters{
			Status:     status,
			Class:      q.Get("class"),
			DateAfter:  parseDate(q.Get("dateAfter")),
			DateBefore: endOfDay(parseDate(q.Get("dateBefore"))),
			Limit:      limit,
			Offset:     (page - 1) * limit,
		}

		images, err := manager.GetStore().List(r.Context(), filter)
		if err != nil {
			logger.Error("Error querying images: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := manager.GetStore().Count(r.Context(), filter)
		if err != nil {
			logger.Error("Error counting images: %v", err)
			totalCount = len(images)
		}

		data := dto.ImagesData{
			Images:      manager.Present(images),
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}
		if stats, err := manager.GetStore().Stats(r.Context()); err == nil {
			data.Analyzed = stats.AnalyzedImages
			data.Pending = stats.PendingImages
		} else {
			logger.Warning("Error getting image stats: %v", err)
		}

		writeJSON(w, http.StatusOK, data, logger)
	}
}

// UploadImagesHandler accepts a multipart batch in the "images" field. Files
// that are not images are reported back and never reach the pipeline.
func UploadImagesHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Invalid multipart form", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		var files []upload.File
		rejected := []string{}
		for _, header := range r.MultipartForm.File["images"] {
			f, err := header.Open()
			if err != nil {
				logger.Warning("Failed to open upload %s: %v", header.Filename, err)
				rejected = append(rejected, header.Filename)
				continue
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil || !strings.HasPrefix(http.DetectContentType(data), "image/") {
				rejected = append(rejected, header.Filename)
				continue
			}
			files = append(files, upload.File{Name: header.Filename, Data: data})
		}

		if len(files) == 0 {
			http.Error(w, "No image files in upload", http.StatusBadRequest)
			return
		}

		// the batch outlives a client that disconnects mid-upload
		result, err := manager.GetUploadTracker().Run(context.WithoutCancel(r.Context()), files)
		if errors.Is(err, upload.ErrBatchInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if err != nil {
			logger.Error("Upload batch failed: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"created":  len(result.Created),
			"failed":   result.Failed,
			"progress": result.Progress,
			"rejected": rejected,
		}, logger)
	}
}

// GetImageHandler returns the detail view of one image.
func GetImageHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := manager.Detail(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, detail, logger)
	}
}

// AnnotatedImageHandler serves the image as JPEG with prediction boxes drawn.
func AnnotatedImageHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := manager.GetStore().Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, logger)
			return
		}

		data, _, err := manager.GetResolver().Bytes(rec.URL)
		if err != nil {
			logger.Error("Cannot read image %s: %v", rec.ID, err)
			http.Error(w, "Image data unavailable", http.StatusNotFound)
			return
		}

		var predictions []model.Prediction
		if rec.AnalysisResult != nil {
			predictions = rec.AnalysisResult.Predictions
		}
		data, err = manager.GetRenderer().Draw(predictions, data)
		if err != nil {
			writeError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(data)
	}
}

// RawImageHandler serves the stored bytes of an image, whatever the encoder.
func RawImageHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := manager.GetStore().Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, logger)
			return
		}

		data, contentType, err := manager.GetResolver().Bytes(rec.URL)
		if err != nil {
			http.Error(w, "Image data unavailable", http.StatusNotFound)
			return
		}
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}
}

// BlobHandler serves session-held image bytes.
func BlobHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blob, ok := manager.GetBlobs().Get(chi.URLParam(r, "id"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", blob.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
		w.Write(blob.Data)
	}
}

// StatsHandler returns dashboard statistics.
func StatsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := manager.Stats(r.Context())
		if err != nil {
			writeError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats, logger)
	}
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// writeError maps service errors to status codes.
func writeError(w http.ResponseWriter, err error, logger *logger.Logger) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Image not found", http.StatusNotFound)
	case errors.Is(err, encoder.ErrDecode):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		logger.Error("Request failed: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" from the request (HTML input format).
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// endOfDay makes a date filter inclusive of the whole day.
func endOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Add(24*time.Hour - time.Nanosecond)
}
