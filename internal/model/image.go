package model

import "time"

// ImageRecord represents an uploaded leaf image and its analysis state.
type ImageRecord struct {
	ID             string          `json:"id"`
	FileName       string          `json:"fileName"`
	URL            string          `json:"url"`
	FileSize       int64           `json:"fileSize"`
	UploadedAt     time.Time       `json:"uploadedAt"`
	Analyzed       bool            `json:"analyzed"`
	AnalysisResult *AnalysisResult `json:"analysisResult"`
}

// Pending reports whether the image still needs a (useful) analysis pass.
// An analyzed image without predictions counts as pending.
func (r *ImageRecord) Pending() bool {
	return !r.Analyzed || r.AnalysisResult == nil || len(r.AnalysisResult.Predictions) == 0
}

// AnalysisResult holds the raw detector output for one image.
type AnalysisResult struct {
	Predictions []Prediction `json:"predictions"`
	ProcessedAt time.Time    `json:"processedAt"`
	AllClasses  []string     `json:"allClasses,omitempty"`
}

// ImageStats contains statistics about stored images.
type ImageStats struct {
	TotalImages     int            `json:"totalImages"`
	AnalyzedImages  int            `json:"analyzedImages"`
	PendingImages   int            `json:"pendingImages"`
	TotalSizeBytes  int64          `json:"totalSizeBytes"`
	DetectionCounts map[string]int `json:"detectionCounts"`
}
