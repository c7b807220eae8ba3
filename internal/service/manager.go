package service

import (
	"context"
	"fmt"

	"agriscan/internal/config"
	"agriscan/internal/disease"
	"agriscan/internal/dto"
	"agriscan/internal/logger"
	"agriscan/internal/model"
	"agriscan/internal/repository"
	"agriscan/internal/service/analysis"
	"agriscan/internal/service/annotate"
	"agriscan/internal/service/encoder"
	"agriscan/internal/service/prediction"
	"agriscan/internal/service/selection"
	"agriscan/internal/service/store"
	"agriscan/internal/service/upload"
	"agriscan/internal/service/websocket"

	"github.com/dustin/go-humanize"
)

// Manager owns the services and wires their change notifications to the
// websocket hub.
type Manager struct {
	store       *store.ImageStore
	predictions repository.PredictionRepository
	tracker     *upload.Tracker
	analyzer    *analysis.Controller
	sessions    *selection.Sessions
	hub         *websocket.HubService
	catalog     *disease.Catalog
	renderer    *annotate.Renderer
	resolver    *encoder.Resolver
	blobs       *encoder.BlobRegistry
	logger      *logger.Logger

	unsubscribe func()
}

// NewManager builds every service from cfg. client may be nil, in which
// case the configured detector client is created.
func NewManager(cfg *config.Config, images repository.ImageRepository, predictions repository.PredictionRepository, client analysis.Client, logger *logger.Logger) (*Manager, error) {
	if client == nil {
		c, err := analysis.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		client = c
	}

	blobs := encoder.NewBlobRegistry()
	var enc encoder.Encoder
	switch cfg.EncoderMode {
	case config.EncoderSession:
		enc = encoder.NewSessionEncoder(blobs)
	default:
		enc = encoder.NewDataURLEncoder(cfg.MaxImageEdge, cfg.JPEGQuality)
	}

	catalog := disease.Default()
	imageStore := store.NewImageStore(images, logger)
	resolver := encoder.NewResolver(blobs)
	analyzer := analysis.NewController(client, imageStore, resolver, analysis.Options{
		Timeout: cfg.AnalysisTimeout,
		Workers: cfg.AnalysisWorkers,
	}, logger)

	sessions, err := selection.NewSessions(cfg.SessionCacheSize, imageStore, analyzer, logger)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store:       imageStore,
		predictions: predictions,
		tracker:     upload.NewTracker(upload.NewOrchestrator(enc, imageStore, logger), cfg.ProgressClearDelay, logger),
		analyzer:    analyzer,
		sessions:    sessions,
		hub:         websocket.NewHubService(logger),
		catalog:     catalog,
		renderer:    annotate.NewRenderer(catalog, cfg.DetectorProvider == config.ProviderRoboflow, logger),
		resolver:    resolver,
		blobs:       blobs,
		logger:      logger,
	}

	m.store.OnDelete(func(rec model.ImageRecord) {
		m.resolver.Release(rec.URL)
	})
	m.tracker.OnChange(func(progress []model.UploadProgress) {
		m.publish(websocket.EventUploadProgress, progress)
	})
	m.analyzer.OnChange(func(ids []string) {
		m.publish(websocket.EventAnalysis, ids)
	})

	unsubscribe, err := m.store.Subscribe(context.Background(), func(images []model.ImageRecord) {
		m.publish(websocket.EventImages, m.Cards(images))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to image store: %w", err)
	}
	m.unsubscribe = unsubscribe

	m.logger.Info("🌱 Manager started - detector: %s, encoder: %s, workers: %d", cfg.DetectorProvider, cfg.EncoderMode, cfg.AnalysisWorkers)
	return m, nil
}

func (m *Manager) publish(eventType string, data interface{}) {
	if err := m.hub.Publish(eventType, data); err != nil {
		m.logger.Error("Failed to publish %s: %v", eventType, err)
	}
}

func (m *Manager) GetStore() *store.ImageStore { return m.store }
func (m *Manager) GetPredictions() repository.PredictionRepository { return m.predictions }
func (m *Manager) GetUploadTracker() *upload.Tracker { return m.tracker }
func (m *Manager) GetAnalyzer() *analysis.Controller { return m.analyzer }
func (m *Manager) GetSessions() *selection.Sessions { return m.sessions }
func (m *Manager) GetWebsocketService() *websocket.HubService { return m.hub }
func (m *Manager) GetCatalog() *disease.Catalog { return m.catalog }
func (m *Manager) GetRenderer() *annotate.Renderer { return m.renderer }
func (m *Manager) GetResolver() *encoder.Resolver { return m.resolver }
func (m *Manager) GetBlobs() *encoder.BlobRegistry { return m.blobs }

// Present turns records into gallery cards.
func (m *Manager) Present(images []model.ImageRecord) []dto.ImageInfo {
	out := make([]dto.ImageInfo, 0, len(images))
	for i := range images {
		rec := &images[i]
		info := dto.ImageInfo{
			ID:         rec.ID,
			FileName:   rec.FileName,
			URL:        rec.URL,
			UploadedAt: rec.UploadedAt,
			Analyzed:   rec.Analyzed,
			Analyzing:  m.analyzer.IsAnalyzing(rec.ID),
		}
		if main, ok := prediction.Main(rec.AnalysisResult); ok {
			info.Main = &main
			info.Severity = string(m.catalog.Lookup(main.Class).Severity)
		}
		out = append(out, info)
	}
	return out
}

// RawImagePath is where the bytes of an inline (data URL) image are served.
func RawImagePath(id string) string {
	return "/api/images/" + id + "/raw"
}

// Cards is Present for broadcast: inline data URLs are replaced by
// RawImagePath so every event stays small.
func (m *Manager) Cards(images []model.ImageRecord) []dto.ImageInfo {
	cards := m.Present(images)
	for i := range cards {
		if encoder.IsDataURL(cards[i].URL) {
			cards[i].URL = RawImagePath(cards[i].ID)
		}
	}
	return cards
}

// Detail builds the detail view of one image.
func (m *Manager) Detail(ctx context.Context, id string) (*dto.ImageDetail, error) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &dto.ImageDetail{
		Image:      *rec,
		Analyzing:  m.analyzer.IsAnalyzing(id),
		Aggregated: prediction.ForRecord(rec),
	}
	if main, ok := prediction.Main(rec.AnalysisResult); ok {
		info := m.catalog.Lookup(main.Class)
		detail.Main = &main
		detail.Disease = &info
	}
	return detail, nil
}

// Stats computes the dashboard figures.
func (m *Manager) Stats(ctx context.Context) (*dto.Stats, error) {
	base, err := m.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	images, err := m.store.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	mainCounts := make(map[string]int)
	for i := range images {
		if main, ok := prediction.Main(images[i].AnalysisResult); ok {
			mainCounts[main.Class]++
		}
	}

	return &dto.Stats{
		ImageStats:     *base,
		TotalSize:      humanize.Bytes(uint64(base.TotalSizeBytes)),
		DiseaseClasses: m.catalog.Len(),
		MainCounts:     mainCounts,
		Analyzing:      len(m.analyzer.InFlight()),
	}, nil
}

// Stop detaches the manager from the store.
func (m *Manager) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.logger.Info("🛑 Manager stopped")
}
