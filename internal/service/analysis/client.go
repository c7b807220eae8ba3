// Package analysis talks to the external leaf-disease detector and tracks
// which images are being analyzed.
package analysis

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"agriscan/internal/config"
	"agriscan/internal/model"
)

// Client sends one image source (data URL or remote URL) to a detector.
type Client interface {
	Analyze(ctx context.Context, source string) (*model.AnalysisResult, error)
}

// NewClient builds the detector client selected by the configuration.
func NewClient(cfg *config.Config) (Client, error) {
	httpClient := &http.Client{Timeout: cfg.AnalysisTimeout + 5*time.Second}

	switch cfg.DetectorProvider {
	case config.ProviderBackend:
		return NewBackendClient(cfg.DetectorURL, httpClient), nil
	case config.ProviderRoboflow:
		return NewRoboflowClient(RoboflowOptions{
			APIKey:  cfg.RoboflowAPIKey,
			Model:   cfg.RoboflowModel,
			Version: cfg.RoboflowVersion,
		}, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown detector provider %q", cfg.DetectorProvider)
	}
}
