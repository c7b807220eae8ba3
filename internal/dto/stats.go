package dto

import "agriscan/internal/model"

// Stats is the dashboard payload.
type Stats struct {
	model.ImageStats
	TotalSize      string         `json:"totalSize"`
	DiseaseClasses int            `json:"diseaseClasses"`
	MainCounts     map[string]int `json:"mainPredictionCounts"`
	Analyzing      int            `json:"analyzing"`
}
