// Package upload runs batches of image uploads with per-file progress.
package upload

import (
	"context"

	"agriscan/internal/logger"
	"agriscan/internal/model"
	"agriscan/internal/service/encoder"
)

// Progress stages reported while a file moves through the pipeline.
const (
	progressStarted    = 10
	progressEncoding   = 30
	progressPersisting = 60
	progressDone       = 100
)

type File struct {
	Name string
	Data []byte
}

// ProgressFunc receives a fresh copy of the whole batch after every change.
type ProgressFunc func(progress []model.UploadProgress)

// Creator persists a new record. Implemented by store.ImageStore.
type Creator interface {
	Create(ctx context.Context, rec model.ImageRecord) (*model.ImageRecord, error)
}

type BatchResult struct {
	Created  []*model.ImageRecord   `json:"created"`
	Progress []model.UploadProgress `json:"progress"`
	Failed   int                    `json:"failed"`
}

type Orchestrator struct {
	encoder encoder.Encoder
	store   Creator
	logger  *logger.Logger
}

func NewOrchestrator(enc encoder.Encoder, store Creator, logger *logger.Logger) *Orchestrator {
	return &Orchestrator{encoder: enc, store: store, logger: logger}
}

// UploadWithProgress encodes and stores files one after another. A failing
// file is marked as error and the batch moves on; every file ends either
// completed or error.
func (o *Orchestrator) UploadWithProgress(ctx context.Context, files []File, onProgress ProgressFunc) BatchResult {
	progress := make([]model.UploadProgress, len(files))
	for i, f := range files {
		progress[i] = model.UploadProgress{FileName: f.Name, Status: model.UploadPending}
	}

	emit := func() {
		if onProgress == nil {
			return
		}
		snapshot := make([]model.UploadProgress, len(progress))
		copy(snapshot, progress)
		onProgress(snapshot)
	}
	emit()

	result := BatchResult{Created: []*model.ImageRecord{}}

	for i, f := range files {
		set := func(p model.UploadProgress) {
			progress[i] = p
			emit()
		}

		rec, err := o.uploadOne(ctx, f, set)
		if err != nil {
			o.logger.Warning("Upload of %s failed: %v", f.Name, err)
			set(model.UploadProgress{FileName: f.Name, Progress: 0, Status: model.UploadError, Error: err.Error()})
			result.Failed++
			continue
		}
		result.Created = append(result.Created, rec)
	}

	result.Progress = make([]model.UploadProgress, len(progress))
	copy(result.Progress, progress)
	o.logger.Info("Upload batch finished: %d stored, %d failed", len(result.Created), result.Failed)
	return result
}

func (o *Orchestrator) uploadOne(ctx context.Context, f File, set func(model.UploadProgress)) (*model.ImageRecord, error) {
	uploading := func(pct int) {
		set(model.UploadProgress{FileName: f.Name, Progress: pct, Status: model.UploadUploading})
	}

	uploading(progressStarted)
	uploading(progressEncoding)

	url, err := o.encoder.Encode(ctx, f.Name, f.Data)
	if err != nil {
		return nil, err
	}

	uploading(progressPersisting)

	rec, err := o.store.Create(ctx, model.ImageRecord{
		FileName: f.Name,
		URL:      url,
		FileSize: int64(len(f.Data)),
	})
	if err != nil {
		return nil, err
	}

	set(model.UploadProgress{FileName: f.Name, Progress: progressDone, Status: model.UploadCompleted})
	return rec, nil
}
