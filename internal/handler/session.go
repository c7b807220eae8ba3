package handler

import (
	"context"
	"errors"
	"net/http"

	"agriscan/internal/logger"
	"agriscan/internal/middleware"
	"agriscan/internal/service"
	"agriscan/internal/service/selection"

	"github.com/go-chi/chi/v5"
)

// sessionController returns the selection state of the caller's session.
func sessionController(manager *service.Manager, r *http.Request) *selection.Controller {
	return manager.GetSessions().Get(middleware.SessionID(r.Context()))
}

// writeSelectionError maps selection errors to status codes.
func writeSelectionError(w http.ResponseWriter, err error, logger *logger.Logger) {
	switch {
	case errors.Is(err, selection.ErrEmptySelection):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, selection.ErrUnknownConfirmation):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		writeError(w, err, logger)
	}
}

func SessionStateHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionController(manager, r).State(), logger)
	}
}

func EnterSelectionModeHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := sessionController(manager, r)
		c.EnterSelectionMode()
		writeJSON(w, http.StatusOK, c.State(), logger)
	}
}

// ExitSelectionModeHandler leaves selection mode, which also clears the selection.
func ExitSelectionModeHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := sessionController(manager, r)
		c.ExitSelectionMode()
		writeJSON(w, http.StatusOK, c.State(), logger)
	}
}

func ToggleSelectionHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := sessionController(manager, r)
		c.Toggle(chi.URLParam(r, "id"))
		writeJSON(w, http.StatusOK, c.State(), logger)
	}
}

func SelectAllHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := sessionController(manager, r)
		if _, err := c.SelectAll(r.Context()); err != nil {
			writeError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, c.State(), logger)
	}
}

func DeselectAllHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := sessionController(manager, r)
		c.DeselectAll()
		writeJSON(w, http.StatusOK, c.State(), logger)
	}
}

// OpenDetailHandler opens the detail view and returns its payload.
func OpenDetailHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := sessionController(manager, r).OpenDetail(r.Context(), id); err != nil {
			writeError(w, err, logger)
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

func CloseDetailHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := sessionController(manager, r)
		c.CloseDetail()
		writeJSON(w, http.StatusOK, c.State(), logger)
	}
}

// PrepareBulkDeleteHandler issues a confirmation for deleting the selection.
// Nothing is deleted until the token is confirmed.
func PrepareBulkDeleteHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := sessionController(manager, r).PrepareBulkDelete()
		if err != nil {
			writeSelectionError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, pending, logger)
	}
}

func PrepareDeleteHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := sessionController(manager, r).PrepareDelete(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeSelectionError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, pending, logger)
	}
}

func ConfirmDeleteHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := sessionController(manager, r).ConfirmDelete(context.WithoutCancel(r.Context()), chi.URLParam(r, "token"))
		if err != nil {
			writeSelectionError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report, logger)
	}
}

func CancelDeleteHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := sessionController(manager, r)
		if err := c.CancelDelete(chi.URLParam(r, "token")); err != nil {
			writeSelectionError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, c.State(), logger)
	}
}

// BulkAnalyzeHandler analyzes the pending images of the selection.
func BulkAnalyzeHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := sessionController(manager, r).BulkAnalyze(context.WithoutCancel(r.Context()))
		if err != nil {
			writeSelectionError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report, logger)
	}
}

