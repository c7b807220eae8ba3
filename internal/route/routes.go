package route

import (
	"net/http"
	"os"
	"path/filepath"

	"agriscan/internal/config"
	"agriscan/internal/handler"
	"agriscan/internal/logger"
	"agriscan/internal/middleware"
	"agriscan/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// dynamicHTMLHandler serves /path as {staticDir}/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean("/"+path)+".html")

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the router with the authentication middleware.
func SetupRoutes(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.AuthMiddleware)

	// Static files
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.SessionMiddleware)

		r.Get("/ws", handler.GalleryWebsocketHandler(manager, logger))

		r.Get("/images", handler.GetImagesHandler(manager, logger))
		r.Post("/images", handler.UploadImagesHandler(manager, cfg, logger))
		r.Get("/images/{id}", handler.GetImageHandler(manager, logger))
		r.Get("/images/{id}/annotated", handler.AnnotatedImageHandler(manager, logger))
		r.Get("/images/{id}/raw", handler.RawImageHandler(manager, logger))
		r.Post("/images/{id}/analyze", handler.AnalyzeImageHandler(manager, logger))

		r.Post("/analyze/pending", handler.AnalyzePendingHandler(manager, logger))
		r.Get("/analyze/inflight", handler.InFlightHandler(manager, logger))
		r.Get("/uploads/progress", handler.UploadProgressHandler(manager, logger))
		r.Get("/blobs/{id}", handler.BlobHandler(manager))
		r.Get("/stats", handler.StatsHandler(manager, logger))

		r.Get("/diseases", handler.ListDiseasesHandler(manager, logger))
		r.Get("/diseases/{class}", handler.GetDiseaseHandler(manager, logger))
		r.Get("/classes", handler.ClassesHandler(manager, logger))

		r.Route("/session", func(r chi.Router) {
			r.Get("/", handler.SessionStateHandler(manager, logger))
			r.Post("/selection-mode", handler.EnterSelectionModeHandler(manager, logger))
			r.Delete("/selection-mode", handler.ExitSelectionModeHandler(manager, logger))
			r.Post("/toggle/{id}", handler.ToggleSelectionHandler(manager, logger))
			r.Post("/select-all", handler.SelectAllHandler(manager, logger))
			r.Post("/deselect-all", handler.DeselectAllHandler(manager, logger))
			r.Post("/detail/{id}", handler.OpenDetailHandler(manager, logger))
			r.Delete("/detail", handler.CloseDetailHandler(manager, logger))
			r.Post("/delete", handler.PrepareBulkDeleteHandler(manager, logger))
			r.Post("/delete/{id}", handler.PrepareDeleteHandler(manager, logger))
			r.Post("/confirm/{token}", handler.ConfirmDeleteHandler(manager, logger))
			r.Post("/cancel/{token}", handler.CancelDeleteHandler(manager, logger))
			r.Post("/analyze", handler.BulkAnalyzeHandler(manager, logger))
		})
	})

	// Log endpoints
	r.Get("/logs/{level}", handler.ShowLogsHandler(logger))
	r.Post("/logs/{level}/clear", handler.ClearLogsHandler(logger))

	// Auth endpoints
	r.Post("/auth/login", handler.LoginHandler(cfg, logger))
	r.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping for example: /stats -> {staticDir}/stats.html
	r.NotFound(dynamicHTMLHandler(cfg.StaticDir))

	return r
}
