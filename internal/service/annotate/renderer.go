// Package annotate draws detector boxes onto stored images.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"agriscan/internal/disease"
	"agriscan/internal/logger"
	"agriscan/internal/model"
	"agriscan/internal/service/encoder"

	"gocv.io/x/gocv"
)

var severityColors = map[disease.Severity]color.RGBA{
	disease.SeverityHealthy: {R: 46, G: 160, B: 67, A: 0},
	disease.SeverityLow:     {R: 230, G: 190, B: 0, A: 0},
	disease.SeverityMedium:  {R: 240, G: 120, B: 0, A: 0},
	disease.SeverityHigh:    {R: 220, G: 30, B: 30, A: 0},
}

type Renderer struct {
	catalog *disease.Catalog
	logger  *logger.Logger
	// Centered means bbox x and y are the box center (Roboflow) rather
	// than its top-left corner.
	Centered bool
}

func NewRenderer(catalog *disease.Catalog, centered bool, logger *logger.Logger) *Renderer {
	return &Renderer{catalog: catalog, Centered: centered, logger: logger}
}

// Rect converts a prediction box to integer pixel bounds.
func (r *Renderer) Rect(p model.Prediction) image.Rectangle {
	x, y, w, h := p.BBox[0], p.BBox[1], p.BBox[2], p.BBox[3]
	if r.Centered {
		x -= w / 2
		y -= h / 2
	}
	return image.Rect(int(x), int(y), int(x+w), int(y+h))
}

// Draw returns img re-encoded as JPEG with one labelled box per prediction.
func (r *Renderer) Draw(predictions []model.Prediction, img []byte) ([]byte, error) {
	mat, err := gocv.IMDecode(img, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", encoder.ErrDecode, err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("%w: empty image", encoder.ErrDecode)
	}

	for _, p := range predictions {
		info := r.catalog.Lookup(p.Class)
		c, ok := severityColors[info.Severity]
		if !ok {
			c = severityColors[disease.SeverityMedium]
		}

		rect := r.Rect(p)
		if err := gocv.Rectangle(&mat, rect, c, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %v", err)
		}

		label := fmt.Sprintf("%s (%.0f%%)", info.English, p.Confidence*100)
		pt := image.Pt(rect.Min.X, rect.Min.Y-5)
		if pt.Y < 12 {
			pt.Y = rect.Min.Y + 15
		}
		if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, 0.5, c, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %v", err)
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		r.logger.Error("Failed to encode image: %v", err)
		return nil, err
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
