package selection

import (
	"fmt"

	"agriscan/internal/logger"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Sessions keeps one Controller per UI session, evicting the least
// recently used when full.
type Sessions struct {
	cache    *lru.Cache[string, *Controller]
	store    ImageStore
	analyzer Analyzer
	logger   *logger.Logger
}

func NewSessions(size int, store ImageStore, analyzer Analyzer, logger *logger.Logger) (*Sessions, error) {
	cache, err := lru.New[string, *Controller](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &Sessions{cache: cache, store: store, analyzer: analyzer, logger: logger}, nil
}

// Get returns the controller for id, creating it on first use.
func (s *Sessions) Get(id string) *Controller {
	if c, ok := s.cache.Get(id); ok {
		return c
	}
	c := NewController(s.store, s.analyzer, s.logger)
	// another request may have raced us; keep whichever landed first
	if existing, ok, _ := s.cache.PeekOrAdd(id, c); ok {
		return existing
	}
	return c
}

func (s *Sessions) Len() int {
	return s.cache.Len()
}
