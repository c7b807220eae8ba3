package handler

import (
	"context"
	"errors"
	"net/http"

	"agriscan/internal/logger"
	"agriscan/internal/service"
	"agriscan/internal/service/analysis"
	"agriscan/internal/service/store"

	"github.com/go-chi/chi/v5"
)

// AnalyzeImageHandler runs the detector on one image and returns the new detail view.
func AnalyzeImageHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := manager.GetAnalyzer().Analyze(context.WithoutCancel(r.Context()), id)
		switch {
		case err == nil:
		case errors.Is(err, analysis.ErrAlreadyAnalyzing):
			http.Error(w, err.Error(), http.StatusConflict)
			return
		case errors.Is(err, store.ErrNotFound), errors.Is(err, analysis.ErrDiscarded):
			http.Error(w, "Image not found", http.StatusNotFound)
			return
		default:
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		detail, err := manager.Detail(r.Context(), id)
		if err != nil {
			writeError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, detail, logger)
	}
}

// AnalyzePendingHandler analyzes every pending image and reports the outcome.
func AnalyzePendingHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := manager.GetAnalyzer().AnalyzePending(context.WithoutCancel(r.Context()))
		if err != nil {
			writeError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report, logger)
	}
}

// InFlightHandler lists the IDs currently being analyzed.
func InFlightHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, manager.GetAnalyzer().InFlight(), logger)
	}
}

// UploadProgressHandler returns the progress of the current upload batch.
func UploadProgressHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, manager.GetUploadTracker().Snapshot(), logger)
	}
}
