package encoder

import (
	"fmt"
	"net/http"
)

// Resolver maps stored image URLs back to bytes or to a form the detector
// can fetch.
type Resolver struct {
	blobs *BlobRegistry
}

func NewResolver(blobs *BlobRegistry) *Resolver {
	return &Resolver{blobs: blobs}
}

// Bytes returns the image payload behind url.
func (r *Resolver) Bytes(url string) ([]byte, string, error) {
	if IsDataURL(url) {
		contentType, data, err := ParseDataURL(url)
		if err != nil {
			return nil, "", err
		}
		return data, contentType, nil
	}
	if id, ok := BlobID(url); ok && r.blobs != nil {
		blob, found := r.blobs.Get(id)
		if !found {
			return nil, "", fmt.Errorf("blob %s is no longer available", id)
		}
		return blob.Data, blob.ContentType, nil
	}
	return nil, "", fmt.Errorf("cannot read image from %q", url)
}

// Source returns what should be sent to the detector. Session blobs are
// inlined since the detector cannot reach this process's memory.
func (r *Resolver) Source(url string) (string, error) {
	if _, ok := BlobID(url); ok {
		data, contentType, err := r.Bytes(url)
		if err != nil {
			return "", err
		}
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		return FormatDataURL(contentType, data), nil
	}
	return url, nil
}

// Release frees the storage behind url, if any.
func (r *Resolver) Release(url string) {
	if id, ok := BlobID(url); ok && r.blobs != nil {
		r.blobs.Delete(id)
	}
}
