package model

// Prediction is one detected region. BBox is x, y, width, height exactly as
// the detector returned it.
type Prediction struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
}

// AggregatedPrediction summarises all predictions of one class on one image.
type AggregatedPrediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Count      int     `json:"count"`
}
