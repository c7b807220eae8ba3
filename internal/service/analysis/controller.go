package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"agriscan/internal/logger"
	"agriscan/internal/model"
	"agriscan/internal/service/store"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrAlreadyAnalyzing is returned when the image already has a request in flight.
	ErrAlreadyAnalyzing = errors.New("image is already being analyzed")
	// ErrDiscarded is returned when the image was deleted while its analysis ran.
	ErrDiscarded = errors.New("image was deleted during analysis, result discarded")
)

// Store is the subset of store.ImageStore the controller needs.
type Store interface {
	Get(ctx context.Context, id string) (*model.ImageRecord, error)
	Update(ctx context.Context, id string, result *model.AnalysisResult) error
	Pending(ctx context.Context) ([]model.ImageRecord, error)
}

// SourceResolver turns a stored URL into something the detector accepts.
type SourceResolver interface {
	Source(url string) (string, error)
}

type Options struct {
	Timeout time.Duration
	Workers int
}

// ItemError describes one failed image of a batch.
type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type BatchReport struct {
	Requested int         `json:"requested"`
	Analyzed  int         `json:"analyzed"`
	Skipped   int         `json:"skipped"`
	Discarded int         `json:"discarded"`
	Failed    []ItemError `json:"failed"`
}

// Controller runs detector calls and guarantees at most one in-flight
// request per image.
type Controller struct {
	client   Client
	store    Store
	resolver SourceResolver
	logger   *logger.Logger
	timeout  time.Duration
	workers  int

	mu        sync.Mutex
	inFlight  map[string]struct{}
	listeners []func(ids []string)
}

func NewController(client Client, store Store, resolver SourceResolver, opts Options, logger *logger.Logger) *Controller {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Controller{
		client:   client,
		store:    store,
		resolver: resolver,
		logger:   logger,
		timeout:  opts.Timeout,
		workers:  opts.Workers,
		inFlight: make(map[string]struct{}),
	}
}

// OnChange registers fn to receive the in-flight ids whenever they change.
func (c *Controller) OnChange(fn func(ids []string)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Controller) IsAnalyzing(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[id]
	return ok
}

// InFlight returns the ids currently being analyzed, sorted.
func (c *Controller) InFlight() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() []string {
	ids := make([]string, 0, len(c.inFlight))
	for id := range c.inFlight {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Controller) mark(id string) bool {
	c.mu.Lock()
	if _, busy := c.inFlight[id]; busy {
		c.mu.Unlock()
		return false
	}
	c.inFlight[id] = struct{}{}
	ids, listeners := c.snapshotLocked(), append([]func([]string){}, c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(ids)
	}
	return true
}

func (c *Controller) unmark(id string) {
	c.mu.Lock()
	delete(c.inFlight, id)
	ids, listeners := c.snapshotLocked(), append([]func([]string){}, c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(ids)
	}
}

// Analyze sends one image to the detector and stores the result. On any
// failure the record is left as it was.
func (c *Controller) Analyze(ctx context.Context, id string) error {
	if !c.mark(id) {
		return ErrAlreadyAnalyzing
	}
	defer c.unmark(id)

	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}

	source, err := c.resolver.Source(rec.URL)
	if err != nil {
		return fmt.Errorf("failed to resolve image %s: %w", id, err)
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	result, err := c.client.Analyze(callCtx, source)
	if err != nil {
		c.logger.Error("Analysis of %s (%s) failed: %v", rec.FileName, id, err)
		return fmt.Errorf("analysis failed: %w", err)
	}

	if err := c.store.Update(ctx, id, result); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.logger.Warning("Image %s was deleted during analysis, result discarded", id)
			return ErrDiscarded
		}
		return err
	}

	c.logger.Info("Analyzed %s: %d predictions in %v", rec.FileName, len(result.Predictions), time.Since(started).Round(time.Millisecond))
	return nil
}

// AnalyzePending analyzes every record that is not analyzed or has no
// predictions.
func (c *Controller) AnalyzePending(ctx context.Context) (BatchReport, error) {
	pending, err := c.store.Pending(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("failed to list pending images: %w", err)
	}

	ids := make([]string, len(pending))
	for i, rec := range pending {
		ids[i] = rec.ID
	}
	return c.analyzeBatch(ctx, ids), nil
}

// AnalyzeSelected analyzes the pending records among ids. Unknown ids and
// records that already have predictions are skipped.
func (c *Controller) AnalyzeSelected(ctx context.Context, ids []string) (BatchReport, error) {
	var targets []string
	skipped := 0
	for _, id := range ids {
		rec, err := c.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				skipped++
				continue
			}
			return BatchReport{}, err
		}
		if !rec.Pending() {
			skipped++
			continue
		}
		targets = append(targets, id)
	}

	report := c.analyzeBatch(ctx, targets)
	report.Requested = len(ids)
	report.Skipped += skipped
	return report, nil
}

// analyzeBatch never stops on a failed item. With one worker the items run
// strictly in order.
func (c *Controller) analyzeBatch(ctx context.Context, ids []string) BatchReport {
	report := BatchReport{Requested: len(ids), Failed: []ItemError{}}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(c.workers)

	for _, id := range ids {
		id := id
		if err := ctx.Err(); err != nil {
			mu.Lock()
			report.Failed = append(report.Failed, ItemError{ID: id, Error: err.Error()})
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			err := c.Analyze(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Analyzed++
			case errors.Is(err, ErrAlreadyAnalyzing):
				report.Skipped++
			case errors.Is(err, ErrDiscarded), errors.Is(err, store.ErrNotFound):
				report.Discarded++
			default:
				report.Failed = append(report.Failed, ItemError{ID: id, Error: err.Error()})
			}
			return nil
		})
	}
	g.Wait()

	c.logger.Info("Analysis batch finished: %d analyzed, %d failed, %d skipped", report.Analyzed, len(report.Failed), report.Skipped)
	return report
}
