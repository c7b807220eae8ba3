// Package selection holds per-session gallery state: selection mode, the
// selected images, the open detail view and pending destructive actions.
package selection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"agriscan/internal/logger"
	"agriscan/internal/model"
	"agriscan/internal/service/analysis"
	"agriscan/internal/service/store"

	"github.com/google/uuid"
)

var (
	// ErrUnknownConfirmation is returned for tokens that were never issued,
	// already used or cancelled.
	ErrUnknownConfirmation = errors.New("unknown or expired confirmation")
	// ErrEmptySelection is returned when a bulk action has nothing to act on.
	ErrEmptySelection = errors.New("no images selected")
)

const (
	KindDanger  = "danger"
	KindWarning = "warning"
	KindInfo    = "info"
)

// ImageStore is the subset of store.ImageStore used here.
type ImageStore interface {
	Get(ctx context.Context, id string) (*model.ImageRecord, error)
	IDs(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// Analyzer runs the pending subset of ids through the detector.
type Analyzer interface {
	AnalyzeSelected(ctx context.Context, ids []string) (analysis.BatchReport, error)
}

// Confirmation is what the user is asked before a destructive action.
type Confirmation struct {
	Title       string `json:"title"`
	Message     string `json:"message"`
	ConfirmText string `json:"confirmText"`
	CancelText  string `json:"cancelText"`
	Kind        string `json:"kind"`
}

// PendingDelete is a prepared delete waiting for ConfirmDelete or CancelDelete.
type PendingDelete struct {
	Token        string       `json:"token"`
	Confirmation Confirmation `json:"confirmation"`
	IDs          []string     `json:"ids"`
	bulk         bool
}

// ConfirmFunc answers a confirmation synchronously.
type ConfirmFunc func(Confirmation) bool

type DeleteReport struct {
	Deleted   []string             `json:"deleted"`
	Failed    []analysis.ItemError `json:"failed"`
	Cancelled bool                 `json:"cancelled"`
}

// State is a read-only view of a controller.
type State struct {
	SelectionMode bool     `json:"selectionMode"`
	Selected      []string `json:"selected"`
	Detail        string   `json:"detail,omitempty"`
}

type Controller struct {
	store    ImageStore
	analyzer Analyzer
	logger   *logger.Logger

	mu            sync.Mutex
	selectionMode bool
	selected      map[string]struct{}
	detail        string
	pending       map[string]PendingDelete
}

func NewController(store ImageStore, analyzer Analyzer, logger *logger.Logger) *Controller {
	return &Controller{
		store:    store,
		analyzer: analyzer,
		logger:   logger,
		selected: make(map[string]struct{}),
		pending:  make(map[string]PendingDelete),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		SelectionMode: c.selectionMode,
		Selected:      c.selectedLocked(),
		Detail:        c.detail,
	}
}

func (c *Controller) selectedLocked() []string {
	ids := make([]string, 0, len(c.selected))
	for id := range c.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Selected returns the selected ids, sorted.
func (c *Controller) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedLocked()
}

func (c *Controller) IsSelected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.selected[id]
	return ok
}

// EnterSelectionMode turns selection mode on without selecting anything.
func (c *Controller) EnterSelectionMode() {
	c.mu.Lock()
	c.selectionMode = true
	c.mu.Unlock()
}

// ExitSelectionMode turns selection mode off and drops the selection.
func (c *Controller) ExitSelectionMode() {
	c.mu.Lock()
	c.selectionMode = false
	c.selected = make(map[string]struct{})
	c.mu.Unlock()
}

// Toggle flips membership of id and reports whether it is now selected.
// Selecting outside selection mode enters it.
func (c *Controller) Toggle(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.selected[id]; ok {
		delete(c.selected, id)
		return false
	}
	c.selectionMode = true
	c.selected[id] = struct{}{}
	return true
}

// SelectAll replaces the selection with every id currently in the store.
func (c *Controller) SelectAll(ctx context.Context) (int, error) {
	ids, err := c.store.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list images: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.selectionMode = true
	c.selected = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		c.selected[id] = struct{}{}
	}
	return len(ids), nil
}

func (c *Controller) DeselectAll() {
	c.mu.Lock()
	c.selected = make(map[string]struct{})
	c.mu.Unlock()
}

// OpenDetail shows the detail view of id.
func (c *Controller) OpenDetail(ctx context.Context, id string) (*model.ImageRecord, error) {
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.detail = id
	c.mu.Unlock()
	return rec, nil
}

func (c *Controller) CloseDetail() {
	c.mu.Lock()
	c.detail = ""
	c.mu.Unlock()
}

// Detail returns the id shown in the detail view, empty when closed.
func (c *Controller) Detail() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detail
}

// PrepareBulkDelete asks for confirmation to delete the current selection.
func (c *Controller) PrepareBulkDelete() (PendingDelete, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := c.selectedLocked()
	if len(ids) == 0 {
		return PendingDelete{}, ErrEmptySelection
	}

	noun := "images"
	if len(ids) == 1 {
		noun = "image"
	}
	return c.issueLocked(ids, true, Confirmation{
		Title:       "Delete selected images",
		Message:     fmt.Sprintf("%d selected %s will be permanently deleted. This action cannot be undone.", len(ids), noun),
		ConfirmText: "Delete",
		CancelText:  "Cancel",
		Kind:        KindDanger,
	}), nil
}

// PrepareDelete asks for confirmation to delete a single image.
func (c *Controller) PrepareDelete(ctx context.Context, id string) (PendingDelete, error) {
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return PendingDelete{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.issueLocked([]string{id}, false, Confirmation{
		Title:       "Delete image",
		Message:     fmt.Sprintf("%q will be permanently deleted. This action cannot be undone.", rec.FileName),
		ConfirmText: "Delete",
		CancelText:  "Cancel",
		Kind:        KindDanger,
	}), nil
}

// issueLocked replaces any earlier prepared delete; a session has at most
// one confirmation open.
func (c *Controller) issueLocked(ids []string, bulk bool, conf Confirmation) PendingDelete {
	p := PendingDelete{
		Token:        uuid.NewString(),
		Confirmation: conf,
		IDs:          ids,
		bulk:         bulk,
	}
	c.pending = map[string]PendingDelete{p.Token: p}
	return p
}

// CancelDelete drops a prepared delete without touching the store.
func (c *Controller) CancelDelete(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[token]; !ok {
		return ErrUnknownConfirmation
	}
	delete(c.pending, token)
	return nil
}

// ConfirmDelete performs a prepared delete. Images already gone count as
// deleted. A bulk delete clears the selection; the detail view closes if it
// showed a deleted image.
func (c *Controller) ConfirmDelete(ctx context.Context, token string) (DeleteReport, error) {
	c.mu.Lock()
	p, ok := c.pending[token]
	delete(c.pending, token)
	c.mu.Unlock()

	if !ok {
		return DeleteReport{}, ErrUnknownConfirmation
	}

	report := DeleteReport{Deleted: []string{}, Failed: []analysis.ItemError{}}
	for _, id := range p.IDs {
		err := c.store.Delete(ctx, id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			c.logger.Error("Failed to delete image %s: %v", id, err)
			report.Failed = append(report.Failed, analysis.ItemError{ID: id, Error: err.Error()})
			continue
		}
		report.Deleted = append(report.Deleted, id)
	}

	c.mu.Lock()
	if p.bulk {
		c.selected = make(map[string]struct{})
	}
	for _, id := range report.Deleted {
		delete(c.selected, id)
		if c.detail == id {
			c.detail = ""
		}
	}
	c.mu.Unlock()

	c.logger.Info("Deleted %d images (%d failed)", len(report.Deleted), len(report.Failed))
	return report, nil
}

// BulkDelete runs PrepareBulkDelete, asks confirm and then confirms or cancels.
func (c *Controller) BulkDelete(ctx context.Context, confirm ConfirmFunc) (DeleteReport, error) {
	p, err := c.PrepareBulkDelete()
	if err != nil {
		return DeleteReport{}, err
	}
	return c.resolve(ctx, p, confirm)
}

// Delete is the single-image counterpart of BulkDelete.
func (c *Controller) Delete(ctx context.Context, id string, confirm ConfirmFunc) (DeleteReport, error) {
	p, err := c.PrepareDelete(ctx, id)
	if err != nil {
		return DeleteReport{}, err
	}
	return c.resolve(ctx, p, confirm)
}

func (c *Controller) resolve(ctx context.Context, p PendingDelete, confirm ConfirmFunc) (DeleteReport, error) {
	if confirm == nil || !confirm(p.Confirmation) {
		c.CancelDelete(p.Token)
		return DeleteReport{Deleted: []string{}, Failed: []analysis.ItemError{}, Cancelled: true}, nil
	}
	return c.ConfirmDelete(ctx, p.Token)
}

// BulkAnalyze sends the pending images of the selection to the detector one
// at a time. The selection itself is left unchanged.
func (c *Controller) BulkAnalyze(ctx context.Context) (analysis.BatchReport, error) {
	ids := c.Selected()
	if len(ids) == 0 {
		return analysis.BatchReport{}, ErrEmptySelection
	}
	return c.analyzer.AnalyzeSelected(ctx, ids)
}
