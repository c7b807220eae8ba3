package upload

import (
	"context"
	"errors"
	"sync"
	"time"

	"agriscan/internal/logger"
	"agriscan/internal/model"
)

// ErrBatchInProgress is returned when a batch is started while another runs.
var ErrBatchInProgress = errors.New("an upload batch is already running")

// Tracker owns the visible progress list: one batch at a time, list cleared
// ClearDelay after the batch ends.
type Tracker struct {
	orch       *Orchestrator
	clearDelay time.Duration
	logger     *logger.Logger

	mu         sync.Mutex
	progress   []model.UploadProgress
	running    bool
	generation int
	clearTimer *time.Timer
	listeners  []ProgressFunc
}

func NewTracker(orch *Orchestrator, clearDelay time.Duration, logger *logger.Logger) *Tracker {
	return &Tracker{orch: orch, clearDelay: clearDelay, logger: logger}
}

// OnChange registers fn to be called with every new snapshot.
func (t *Tracker) OnChange(fn ProgressFunc) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Snapshot returns a copy of the current list.
func (t *Tracker) Snapshot() []model.UploadProgress {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.UploadProgress, len(t.progress))
	copy(out, t.progress)
	return out
}

func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Run uploads files and blocks until every file is terminal.
func (t *Tracker) Run(ctx context.Context, files []File) (BatchResult, error) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return BatchResult{}, ErrBatchInProgress
	}
	t.running = true
	t.generation++
	if t.clearTimer != nil {
		t.clearTimer.Stop()
		t.clearTimer = nil
	}
	t.mu.Unlock()

	result := t.orch.UploadWithProgress(ctx, files, t.publish)

	t.mu.Lock()
	t.running = false
	gen := t.generation
	t.clearTimer = time.AfterFunc(t.clearDelay, func() { t.clear(gen) })
	t.mu.Unlock()

	return result, nil
}

func (t *Tracker) publish(snapshot []model.UploadProgress) {
	t.mu.Lock()
	t.progress = snapshot
	listeners := append([]ProgressFunc(nil), t.listeners...)
	t.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

// clear empties the list unless a newer batch has started since.
func (t *Tracker) clear(gen int) {
	t.mu.Lock()
	if gen != t.generation || t.running {
		t.mu.Unlock()
		return
	}
	t.progress = []model.UploadProgress{}
	t.clearTimer = nil
	listeners := append([]ProgressFunc(nil), t.listeners...)
	t.mu.Unlock()

	for _, l := range listeners {
		l([]model.UploadProgress{})
	}
}
