package handler

import (
	"net/http"

	"agriscan/internal/logger"
	"agriscan/internal/service"

	"github.com/go-chi/chi/v5"
)

func ListDiseasesHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, manager.GetCatalog().All(), logger)
	}
}

// GetDiseaseHandler looks up one class. Unknown classes are answered with the
// catalog's fallback entry, not 404.
func GetDiseaseHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, manager.GetCatalog().Lookup(chi.URLParam(r, "class")), logger)
	}
}

// ClassesHandler lists the classes present in stored predictions, for the
// gallery class filter.
func ClassesHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classes, err := manager.GetPredictions().GetAllClasses(r.Context())
		if err != nil {
			writeError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, classes, logger)
	}
}
