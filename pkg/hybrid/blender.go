// Package hybrid merges collaborative-filtering and content-based
// recommendation lists into one ranked list, with weights that shift toward
// the CF signal as a user's rating history deepens.
package hybrid

import (
	"sort"

	"github.com/galleyhq/sommelier/pkg/models"
)

// DefaultMaxRatings is the history depth at which the CF weight saturates.
// Empirical default, configurable through CalculateAdaptiveWeightsAt.
const DefaultMaxRatings = 20

// Weights holds the blend weights for the two engines. Always normalized to
// sum to 1.
type Weights struct {
	CF float64 `json:"cf"`
	CB float64 `json:"cb"`
}

// CalculateAdaptiveWeights computes blend weights from the user's rating
// count with the default saturation point: a user with no ratings is served
// purely content-based, and the CF weight grows linearly until it saturates.
func CalculateAdaptiveWeights(ratingCount int) Weights {
	return CalculateAdaptiveWeightsAt(ratingCount, DefaultMaxRatings)
}

// CalculateAdaptiveWeightsAt is CalculateAdaptiveWeights with an explicit
// saturation point.
func CalculateAdaptiveWeightsAt(ratingCount, maxRatings int) Weights {
	if maxRatings <= 0 {
		maxRatings = DefaultMaxRatings
	}
	if ratingCount < 0 {
		ratingCount = 0
	}
	if ratingCount > maxRatings {
		ratingCount = maxRatings
	}
	cf := float64(ratingCount) / float64(maxRatings)
	return Weights{CF: cf, CB: 1 - cf}
}

// BlendRecommendations merges the two lists by wine, combining scores as
// cfWeight*cfScore + cbWeight*cbScore with the CF score discounted by its own
// confidence. The result is one list ranked by combined score, each entry
// tagged with its contributing sources.
func BlendRecommendations(cfRecs, cbRecs []models.Recommendation, cfWeight, cbWeight float64) []models.Recommendation {
	// Renormalize so callers can pass unnormalized weights.
	if total := cfWeight + cbWeight; total > 0 {
		cfWeight /= total
		cbWeight /= total
	} else {
		cfWeight, cbWeight = 0.5, 0.5
	}

	type blend struct {
		rec        models.Recommendation
		confidence float64
		confWeight float64
	}
	merged := make(map[string]*blend)
	get := func(wineID string) *blend {
		b, ok := merged[wineID]
		if !ok {
			b = &blend{rec: models.Recommendation{
				WineID: wineID,
				Source: models.SourceBlended,
			}}
			merged[wineID] = b
		}
		return b
	}

	for _, r := range cfRecs {
		b := get(r.WineID)
		b.rec.Score += cfWeight * r.Score * r.Confidence
		b.rec.PredictedRating = r.PredictedRating
		b.rec.Sources = appendSource(b.rec.Sources, r.Source)
		b.confidence += cfWeight * r.Confidence
		b.confWeight += cfWeight
	}
	for _, r := range cbRecs {
		b := get(r.WineID)
		b.rec.Score += cbWeight * r.Score
		b.rec.Similarity = r.Similarity
		b.rec.Sources = appendSource(b.rec.Sources, r.Source)
		b.confidence += cbWeight * r.Confidence
		b.confWeight += cbWeight
	}

	out := make([]models.Recommendation, 0, len(merged))
	for _, b := range merged {
		if b.confWeight > 0 {
			b.rec.Confidence = models.ClampUnit(b.confidence / b.confWeight)
		}
		b.rec.Score = models.ClampUnit(b.rec.Score)
		out = append(out, b.rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].WineID < out[j].WineID
	})
	return out
}

func appendSource(sources []models.RecommendationSource, s models.RecommendationSource) []models.RecommendationSource {
	for _, existing := range sources {
		if existing == s {
			return sources
		}
	}
	return append(sources, s)
}
