package modelmanager

import (
	"fmt"
	"math"

	"github.com/galleyhq/sommelier/pkg/collaborative"
	"github.com/galleyhq/sommelier/pkg/models"
	"github.com/galleyhq/sommelier/pkg/stats"
)

// defaultRecommendThreshold is the rating cutoff above which a wine counts
// as "would recommend" for classification metrics.
const defaultRecommendThreshold = 4.0

// EvaluateModel scores a trained model against a held-out rating set and
// returns regression metrics (RMSE, MAE) plus classification metrics at the
// recommend threshold. The stored model record is updated with the metrics
// and advanced to the evaluated status.
func (m *Manager) EvaluateModel(model *models.Model, testRatings []models.Rating) (*models.EvaluationMetrics, error) {
	if model == nil {
		return nil, fmt.Errorf("evaluate: model is nil")
	}
	threshold := model.Parameters.RecommendThreshold
	if threshold <= 0 {
		threshold = defaultRecommendThreshold
	}

	var (
		sumSq, sumAbs        float64
		tp, fp, fn, tn       int
		predictions, skipped int
	)
	for _, r := range testRatings {
		if err := r.Validate(); err != nil {
			skipped++
			continue
		}
		predicted := m.PredictRating(model, r.UserID, r.WineID)
		diff := predicted - r.Rating
		sumSq += diff * diff
		sumAbs += math.Abs(diff)
		predictions++

		predPos := predicted >= threshold
		actualPos := r.Rating >= threshold
		switch {
		case predPos && actualPos:
			tp++
		case predPos && !actualPos:
			fp++
		case !predPos && actualPos:
			fn++
		default:
			tn++
		}
	}
	if predictions == 0 {
		return nil, fmt.Errorf("evaluate %s: %w", model.Name, ErrNoValidPredictions)
	}

	metrics := &models.EvaluationMetrics{
		RMSE:               math.Sqrt(sumSq / float64(predictions)),
		MAE:                sumAbs / float64(predictions),
		Accuracy:           float64(tp+tn) / float64(predictions),
		NumPredictions:     predictions,
		SkippedPredictions: skipped,
	}
	if tp+fp > 0 {
		metrics.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		metrics.Recall = float64(tp) / float64(tp+fn)
	}
	if metrics.Precision+metrics.Recall > 0 {
		metrics.F1Score = 2 * metrics.Precision * metrics.Recall / (metrics.Precision + metrics.Recall)
	}

	m.mu.Lock()
	model.Metrics = metrics
	model.Status = models.ModelStatusEvaluated
	m.mu.Unlock()
	return metrics, nil
}

// PredictRating predicts a rating on the 1-5 scale for a user and wine using
// a trained model snapshot. It always produces a value: cold-start users fall
// back to the item average, then the global average, then the scale midpoint.
func (m *Manager) PredictRating(model *models.Model, userID, wineID string) float64 {
	if model == nil {
		return (models.MinRating + models.MaxRating) / 2
	}
	var predicted float64
	var ok bool
	switch model.Type {
	case models.ModelTypeCollaborativeFiltering:
		predicted, ok = predictCollaborative(model, userID, wineID)
	case models.ModelTypeContentBased:
		predicted, ok = predictContentBased(model, userID, wineID)
	}
	if ok {
		return models.ClampRating(predicted)
	}
	if item, found := model.ItemProfiles[wineID]; found && len(item.Ratings) > 0 {
		return models.ClampRating(item.AvgRating)
	}
	if model.GlobalAverage > 0 {
		return models.ClampRating(model.GlobalAverage)
	}
	return (models.MinRating + models.MaxRating) / 2
}

// predictCollaborative applies the neighbor-weighted deviation formula over
// the model's user similarity rows.
func predictCollaborative(model *models.Model, userID, wineID string) (float64, bool) {
	user, found := model.UserProfiles[userID]
	if !found || model.SimilarityMatrix == nil {
		return 0, false
	}
	var weighted, simSum float64
	for neighborID, sim := range model.SimilarityMatrix.UserSimilarities(userID) {
		neighbor, ok := model.UserProfiles[neighborID]
		if !ok {
			continue
		}
		for _, nr := range neighbor.Ratings {
			if nr.WineID != wineID {
				continue
			}
			weighted += sim * (nr.Rating - neighbor.AvgRating)
			simSum += math.Abs(sim)
			break
		}
	}
	if simSum == 0 {
		return 0, false
	}
	return user.AvgRating + weighted/simSum, true
}

// predictContentBased averages the user's own ratings weighted by content
// similarity between each rated wine and the target.
func predictContentBased(model *models.Model, userID, wineID string) (float64, bool) {
	user, found := model.UserProfiles[userID]
	if !found {
		return 0, false
	}
	target, found := model.ItemFeatures[wineID]
	if !found {
		return 0, false
	}
	var weighted, simSum float64
	for _, r := range user.Ratings {
		if r.WineID == wineID {
			continue
		}
		features, ok := model.ItemFeatures[r.WineID]
		if !ok {
			continue
		}
		sim := stats.CosineSimilarity(target, features)
		if sim <= 0 {
			continue
		}
		weighted += sim * r.Rating
		simSum += sim
	}
	if simSum == 0 {
		return 0, false
	}
	return weighted / simSum, true
}

// RunABTestPredictions splits the test set between two models, evaluates
// each on its partition, and reports how statistically distinguishable the
// accuracy gap is.
func (m *Manager) RunABTestPredictions(modelA, modelB *models.Model, testData []models.Rating, splitRatio float64) (*models.ABTestResult, error) {
	if modelA == nil || modelB == nil {
		return nil, fmt.Errorf("ab test: both models are required")
	}
	if splitRatio <= 0 || splitRatio >= 1 {
		splitRatio = 0.5
	}
	splitIdx := int(float64(len(testData)) * splitRatio)
	setA, setB := testData[:splitIdx], testData[splitIdx:]

	metricsA, err := m.EvaluateModel(modelA, setA)
	if err != nil {
		return nil, fmt.Errorf("ab test arm A: %w", err)
	}
	metricsB, err := m.EvaluateModel(modelB, setB)
	if err != nil {
		return nil, fmt.Errorf("ab test arm B: %w", err)
	}

	significance := stats.StatisticalSignificance(
		metricsA.Accuracy, metricsA.NumPredictions,
		metricsB.Accuracy, metricsB.NumPredictions,
	)
	return &models.ABTestResult{
		ModelAResults:           metricsA,
		ModelBResults:           metricsB,
		StatisticalSignificance: significance,
		SignificanceLevel:       significanceLevel(significance),
		SamplesA:                metricsA.NumPredictions,
		SamplesB:                metricsB.NumPredictions,
	}, nil
}

func significanceLevel(s float64) string {
	switch {
	case s >= 0.95:
		return "high"
	case s >= 0.8:
		return "moderate"
	default:
		return "low"
	}
}

// PearsonCorrelation is re-exported so evaluation callers do not need a
// direct dependency on the stats package.
func PearsonCorrelation(x, y []float64) float64 {
	return stats.PearsonCorrelation(x, y)
}

// BuildSimilarityMatrix builds user and item similarity maps outside of a
// full engine, for offline inspection of a rating set.
func BuildSimilarityMatrix(ratings []models.Rating, minSimilarity float64, minCommonItems int) *models.SimilarityMatrix {
	return collaborative.BuildSimilarityMatrix(ratings, minSimilarity, minCommonItems)
}

// BuildUserProfiles aggregates ratings into per-user profiles.
func BuildUserProfiles(ratings []models.Rating) map[string]*models.UserProfile {
	return collaborative.BuildUserProfiles(ratings)
}

// BuildItemProfiles aggregates ratings into per-wine profiles.
func BuildItemProfiles(ratings []models.Rating) map[string]*models.ItemProfile {
	return collaborative.BuildItemProfiles(ratings)
}
