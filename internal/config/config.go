package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ProviderBackend selects the self-hosted /analyze-base64 detector.
	ProviderBackend = "backend"
	// ProviderRoboflow selects the hosted Roboflow classifier.
	ProviderRoboflow = "roboflow"

	// EncoderDataURL stores resized images inline as data URLs.
	EncoderDataURL = "dataurl"
	// EncoderSession keeps raw bytes in process memory behind /api/blobs references.
	EncoderSession = "session"
)

type Config struct {
	Port      int
	Password  string
	DBPath    string
	LogDir    string
	StaticDir string

	DetectorProvider string
	DetectorURL      string
	RoboflowAPIKey   string
	RoboflowModel    string
	RoboflowVersion  string
	AnalysisTimeout  time.Duration
	AnalysisWorkers  int // Ile analiz naraz (1 = sekwencyjnie)

	EncoderMode        string
	MaxImageEdge       int
	JPEGQuality        int
	MaxUploadSize      int64
	ProgressClearDelay time.Duration

	SessionCacheSize int
}

// Load reads an optional .env file, then resolves every key from the
// environment with defaults applied.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// .env is optional; existing variables win
		_ = godotenv.Load(f)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Port:      v.GetInt("PORT"),
		Password:  v.GetString("PASSWORD"),
		DBPath:    v.GetString("DB_PATH"),
		LogDir:    v.GetString("LOG_DIR"),
		StaticDir: v.GetString("STATIC_DIR"),

		DetectorProvider: strings.ToLower(v.GetString("DETECTOR_PROVIDER")),
		DetectorURL:      strings.TrimRight(v.GetString("DETECTOR_URL"), "/"),
		RoboflowAPIKey:   v.GetString("ROBOFLOW_API_KEY"),
		RoboflowModel:    v.GetString("ROBOFLOW_MODEL"),
		RoboflowVersion:  v.GetString("ROBOFLOW_VERSION"),
		AnalysisTimeout:  v.GetDuration("ANALYSIS_TIMEOUT"),
		AnalysisWorkers:  v.GetInt("ANALYSIS_WORKERS"),

		EncoderMode:        strings.ToLower(v.GetString("ENCODER_MODE")),
		MaxImageEdge:       v.GetInt("MAX_IMAGE_EDGE"),
		JPEGQuality:        v.GetInt("JPEG_QUALITY"),
		MaxUploadSize:      v.GetInt64("MAX_UPLOAD_SIZE"),
		ProgressClearDelay: v.GetDuration("PROGRESS_CLEAR_DELAY"),

		SessionCacheSize: v.GetInt("SESSION_CACHE_SIZE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("PASSWORD", "agriscan")
	v.SetDefault("DB_PATH", filepath.Join(".", "data", "agriscan.db"))
	v.SetDefault("LOG_DIR", filepath.Join(".", "logs"))
	v.SetDefault("STATIC_DIR", "static")

	v.SetDefault("DETECTOR_PROVIDER", ProviderBackend)
	v.SetDefault("DETECTOR_URL", "http://localhost:8000")
	v.SetDefault("ROBOFLOW_API_KEY", "")
	v.SetDefault("ROBOFLOW_MODEL", "tomato-leaf-disease-rxcft")
	v.SetDefault("ROBOFLOW_VERSION", "3")
	v.SetDefault("ANALYSIS_TIMEOUT", 60*time.Second)
	v.SetDefault("ANALYSIS_WORKERS", 1)

	v.SetDefault("ENCODER_MODE", EncoderDataURL)
	v.SetDefault("MAX_IMAGE_EDGE", 800)
	v.SetDefault("JPEG_QUALITY", 80)
	v.SetDefault("MAX_UPLOAD_SIZE", 20<<20) // 20 MB
	v.SetDefault("PROGRESS_CLEAR_DELAY", 3*time.Second)

	v.SetDefault("SESSION_CACHE_SIZE", 256)
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	switch c.DetectorProvider {
	case ProviderBackend:
		if c.DetectorURL == "" {
			return fmt.Errorf("DETECTOR_URL is required for provider %q", ProviderBackend)
		}
	case ProviderRoboflow:
		if c.RoboflowAPIKey == "" {
			return fmt.Errorf("ROBOFLOW_API_KEY is required for provider %q", ProviderRoboflow)
		}
	default:
		return fmt.Errorf("unknown DETECTOR_PROVIDER %q", c.DetectorProvider)
	}
	switch c.EncoderMode {
	case EncoderDataURL, EncoderSession:
	default:
		return fmt.Errorf("unknown ENCODER_MODE %q", c.EncoderMode)
	}
	if c.AnalysisWorkers < 1 {
		return fmt.Errorf("ANALYSIS_WORKERS must be at least 1")
	}
	if c.AnalysisTimeout <= 0 {
		return fmt.Errorf("ANALYSIS_TIMEOUT must be positive")
	}
	if c.MaxImageEdge < 1 {
		return fmt.Errorf("MAX_IMAGE_EDGE must be positive")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	if c.ProgressClearDelay < 0 {
		return fmt.Errorf("PROGRESS_CLEAR_DELAY must not be negative")
	}
	if c.SessionCacheSize < 1 {
		return fmt.Errorf("SESSION_CACHE_SIZE must be at least 1")
	}
	return nil
}
