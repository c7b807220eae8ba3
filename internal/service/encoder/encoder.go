// Package encoder turns uploaded image bytes into the URL stored on a record.
package encoder

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrDecode is wrapped by every error caused by bytes that are not an image.
var ErrDecode = errors.New("image could not be decoded")

// Encoder produces a URL the UI can display and the detector can consume.
type Encoder interface {
	Encode(ctx context.Context, name string, data []byte) (string, error)
}

const dataURLPrefix = "data:"

// IsDataURL reports whether url carries its payload inline.
func IsDataURL(url string) bool {
	return strings.HasPrefix(url, dataURLPrefix)
}

// FormatDataURL builds a base64 data URL.
func FormatDataURL(contentType string, data []byte) string {
	return dataURLPrefix + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL splits a base64 data URL into content type and payload.
func ParseDataURL(url string) (contentType string, data []byte, err error) {
	if !IsDataURL(url) {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(url[len(dataURLPrefix):], ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data url")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("data url is not base64 encoded")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data url: %w", err)
	}
	return contentType, data, nil
}

// Base64Payload returns the part after the comma, the form hosted
// detectors expect in a form body.
func Base64Payload(url string) string {
	if _, payload, ok := strings.Cut(url, ","); ok && IsDataURL(url) {
		return payload
	}
	return url
}
