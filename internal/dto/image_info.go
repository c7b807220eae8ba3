package dto

import (
	"encoding/json"
	"time"

	"agriscan/internal/model"
)

// ImageInfo is one gallery card.
type ImageInfo struct {
	ID         string                      `json:"id"`
	FileName   string                      `json:"fileName"`
	URL        string                      `json:"url"`
	UploadedAt time.Time                   `json:"uploadedAt"`
	Analyzed   bool                        `json:"analyzed"`
	Analyzing  bool                        `json:"analyzing"`
	Main       *model.AggregatedPrediction `json:"mainPrediction,omitempty"`
	Severity   string                      `json:"severity,omitempty"`
}

// MarshalJSON adds display date and time next to the raw timestamp.
func (p ImageInfo) MarshalJSON() ([]byte, error) {
	type Alias ImageInfo
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      p.UploadedAt.Format("02-01-2006"),
		TimeOfDay: p.UploadedAt.Format("15:04"),
		Alias:     (Alias)(p),
	})
}
