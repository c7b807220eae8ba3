package encoder

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"
)

const (
	DefaultMaxEdge = 800
	DefaultQuality = 80
)

// DataURLEncoder downsizes the image so its longer edge is at most MaxEdge,
// re-encodes it as JPEG and returns the result inline as a data URL.
type DataURLEncoder struct {
	MaxEdge int
	Quality int
}

func NewDataURLEncoder(maxEdge, quality int) *DataURLEncoder {
	if maxEdge <= 0 {
		maxEdge = DefaultMaxEdge
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &DataURLEncoder{MaxEdge: maxEdge, Quality: quality}
}

func (e *DataURLEncoder) Encode(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", name, ErrDecode, err)
	}

	// Fit never upscales
	img = imaging.Fit(img, e.MaxEdge, e.MaxEdge, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(e.Quality)); err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", name, err)
	}

	return FormatDataURL("image/jpeg", buf.Bytes()), nil
}
