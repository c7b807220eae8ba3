package encoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"strings"
	"sync"

	// decoders for image.DecodeConfig
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
)

// BlobPath is the URL prefix session blobs are served under.
const BlobPath = "/api/blobs/"

type Blob struct {
	ContentType string
	Data        []byte
}

// BlobRegistry keeps uploaded bytes in process memory. Nothing survives a
// restart.
type BlobRegistry struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

func NewBlobRegistry() *BlobRegistry {
	return &BlobRegistry{blobs: make(map[string]Blob)}
}

func (r *BlobRegistry) Put(blob Blob) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.blobs[id] = blob
	r.mu.Unlock()
	return id
}

func (r *BlobRegistry) Get(id string) (Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[id]
	return b, ok
}

func (r *BlobRegistry) Delete(id string) {
	r.mu.Lock()
	delete(r.blobs, id)
	r.mu.Unlock()
}

func (r *BlobRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// SessionEncoder stores the original bytes untouched and returns a
// process-local reference.
type SessionEncoder struct {
	registry *BlobRegistry
}

func NewSessionEncoder(registry *BlobRegistry) *SessionEncoder {
	return &SessionEncoder{registry: registry}
}

func (e *SessionEncoder) Encode(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("%s: %w: %v", name, ErrDecode, err)
	}

	id := e.registry.Put(Blob{
		ContentType: http.DetectContentType(data),
		Data:        data,
	})
	return BlobPath + id, nil
}

// BlobID extracts the registry id from a session URL.
func BlobID(url string) (string, bool) {
	id, ok := strings.CutPrefix(url, BlobPath)
	return id, ok && id != ""
}
