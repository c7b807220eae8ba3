// Package prediction derives per-class summaries from raw detector output.
package prediction

import (
	"sort"

	"agriscan/internal/model"
)

// Aggregate groups predictions by class keeping the highest confidence and
// the number of occurrences. The result is sorted by confidence descending;
// classes with equal confidence keep the order in which they first appeared.
func Aggregate(predictions []model.Prediction) []model.AggregatedPrediction {
	if len(predictions) == 0 {
		return []model.AggregatedPrediction{}
	}

	index := make(map[string]int)
	out := make([]model.AggregatedPrediction, 0, len(predictions))

	for _, p := range predictions {
		if i, ok := index[p.Class]; ok {
			out[i].Count++
			if p.Confidence > out[i].Confidence {
				out[i].Confidence = p.Confidence
			}
			continue
		}
		index[p.Class] = len(out)
		out = append(out, model.AggregatedPrediction{
			Class:      p.Class,
			Confidence: p.Confidence,
			Count:      1,
		})
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Confidence > out[b].Confidence
	})
	return out
}

// Main returns the highest-confidence aggregated class. ok is false when the
// result is nil or holds no predictions.
func Main(result *model.AnalysisResult) (main model.AggregatedPrediction, ok bool) {
	if result == nil || len(result.Predictions) == 0 {
		return model.AggregatedPrediction{}, false
	}
	return Aggregate(result.Predictions)[0], true
}

// ForRecord aggregates an image's predictions, empty for pending images.
func ForRecord(rec *model.ImageRecord) []model.AggregatedPrediction {
	if rec == nil || rec.AnalysisResult == nil {
		return []model.AggregatedPrediction{}
	}
	return Aggregate(rec.AnalysisResult.Predictions)
}
