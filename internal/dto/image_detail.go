package dto

import (
	"agriscan/internal/disease"
	"agriscan/internal/model"
)

// ImageDetail is the payload of the detail modal.
type ImageDetail struct {
	Image      model.ImageRecord            `json:"image"`
	Analyzing  bool                         `json:"analyzing"`
	Aggregated []model.AggregatedPrediction `json:"aggregated"`
	Main       *model.AggregatedPrediction  `json:"mainPrediction,omitempty"`
	Disease    *disease.Info                `json:"disease,omitempty"`
}
