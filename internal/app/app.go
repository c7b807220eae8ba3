package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"agriscan/internal/config"
	"agriscan/internal/logger"
	"agriscan/internal/repository/sqlite"
	"agriscan/internal/route"
	"agriscan/internal/service"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  *logger.Logger
	db      *sqlite.DB
	manager *service.Manager
}

// NewApp opens the database and builds the service manager.
func NewApp(cfg *config.Config, logger *logger.Logger) (*App, error) {
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	mng, err := service.NewManager(cfg, sqlite.NewImageRepository(db), sqlite.NewPredictionRepository(db), nil, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		manager: mng,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.manager.GetWebsocketService().Run(hubCtx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           route.SetupRoutes(a.manager, a.config, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🌱 AgriScan Server\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🗄️  Database: %s\n", a.config.DBPath)
	fmt.Printf("🤖 Detector: %s\n", a.config.DetectorProvider)
	fmt.Printf("🖼️  Encoder: %s\n", a.config.EncoderMode)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	a.close()
	return err
}

func (a *App) close() {
	a.manager.Stop()
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
}
