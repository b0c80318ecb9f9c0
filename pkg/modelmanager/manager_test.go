package modelmanager

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galleyhq/sommelier/pkg/models"
)

// stubCatalog serves a fixed wine list.
type stubCatalog struct {
	wines []*models.Wine
}

func (c *stubCatalog) GetWine(id string) (*models.Wine, bool) {
	for _, w := range c.wines {
		if w.ID == id {
			return w, true
		}
	}
	return nil, false
}

func (c *stubCatalog) ListWines() ([]*models.Wine, error) {
	return c.wines, nil
}

// stubSource serves a fixed rating history.
type stubSource struct {
	ratings []models.Rating
}

func (s *stubSource) ListRatings() ([]models.Rating, error) {
	return s.ratings, nil
}

func trainingCatalog() *stubCatalog {
	wines := make([]*models.Wine, 0, 12)
	types := []string{"red", "white"}
	for i := 0; i < 12; i++ {
		wines = append(wines, &models.Wine{
			ID:            fmt.Sprintf("wine-%d", i),
			Type:          types[i%2],
			Region:        fmt.Sprintf("region-%d", i%3),
			Price:         20 + float64(i)*8,
			QualityScore:  80 + float64(i),
			VintageYear:   2010 + i,
			StockQuantity: i % 5,
		})
	}
	return &stubCatalog{wines: wines}
}

// trainingRatings builds a history where even-numbered users love reds and
// odd-numbered users love whites, so both engines have signal to learn.
func trainingRatings(users, wines int) []models.Rating {
	var ratings []models.Rating
	for u := 0; u < users; u++ {
		for w := 0; w < wines; w++ {
			rating := 2.0
			if u%2 == w%2 {
				rating = 5.0
			}
			ratings = append(ratings, models.Rating{
				UserID: fmt.Sprintf("user-%d", u),
				WineID: fmt.Sprintf("wine-%d", w),
				Rating: rating,
			})
		}
	}
	return ratings
}

func TestTrainCollaborativeFilteringModel(t *testing.T) {
	manager := NewManager(trainingCatalog(), nil)
	ratings := trainingRatings(6, 10)

	model, err := manager.TrainCollaborativeFilteringModel("cf", models.ModelParameters{}, ratings)
	require.NoError(t, err)

	assert.NotEmpty(t, model.ID)
	assert.Equal(t, 1, model.Version)
	assert.Equal(t, models.ModelStatusTrained, model.Status)
	assert.Equal(t, models.ModelTypeCollaborativeFiltering, model.Type)
	assert.NotNil(t, model.SimilarityMatrix)
	assert.Equal(t, 6, model.Statistics.TotalUsers)
	assert.Equal(t, 10, model.Statistics.TotalItems)
	assert.Equal(t, 60, model.Statistics.TotalRatings)
	assert.Equal(t, 0.0, model.Statistics.Sparsity, "fully dense rating matrix")
	assert.InDelta(t, 3.5, model.GlobalAverage, 0.01)
}

func TestVersioningAndSupersession(t *testing.T) {
	manager := NewManager(trainingCatalog(), nil)
	ratings := trainingRatings(4, 8)

	first, err := manager.TrainCollaborativeFilteringModel("cf", models.ModelParameters{}, ratings)
	require.NoError(t, err)
	second, err := manager.TrainCollaborativeFilteringModel("cf", models.ModelParameters{}, ratings)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, models.ModelStatusSuperseded, first.Status)
	assert.Equal(t, models.ModelStatusTrained, second.Status)
	assert.NotEqual(t, first.ID, second.ID)

	latest, ok := manager.GetModel("cf")
	require.True(t, ok)
	assert.Equal(t, second.ID, latest.ID)
}

func TestTrainingFloor(t *testing.T) {
	manager := NewManager(trainingCatalog(), nil)

	t.Run("empty set aborts", func(t *testing.T) {
		_, err := manager.TrainCollaborativeFilteringModel("cf", models.ModelParameters{}, nil)
		assert.ErrorIs(t, err, ErrEmptyTrainingSet)
	})

	t.Run("all-malformed set aborts", func(t *testing.T) {
		_, err := manager.TrainCollaborativeFilteringModel("cf", models.ModelParameters{}, []models.Rating{
			{UserID: "", WineID: "wine-0", Rating: 4},
			{UserID: "u", WineID: "wine-0", Rating: 11},
		})
		assert.ErrorIs(t, err, ErrEmptyTrainingSet)
	})

	t.Run("configured floor is honored", func(t *testing.T) {
		manager.SetMinTrainingRecords(10)
		_, err := manager.TrainCollaborativeFilteringModel("cf", models.ModelParameters{}, trainingRatings(2, 3))
		assert.ErrorIs(t, err, ErrEmptyTrainingSet)
	})

	t.Run("aborted training does not consume a version", func(t *testing.T) {
		manager.SetMinTrainingRecords(1)
		model, err := manager.TrainCollaborativeFilteringModel("cf", models.ModelParameters{}, trainingRatings(4, 4))
		require.NoError(t, err)
		assert.Equal(t, 1, model.Version)
	})
}

func TestSkippedRecordsSurfaced(t *testing.T) {
	manager := NewManager(trainingCatalog(), nil)
	ratings := append(trainingRatings(3, 4),
		models.Rating{UserID: "", WineID: "wine-0", Rating: 3},
		models.Rating{UserID: "user-0", WineID: "", Rating: 3},
		models.Rating{UserID: "user-0", WineID: "wine-1", Rating: 0},
	)

	model, err := manager.TrainCollaborativeFilteringModel("cf", models.ModelParameters{}, ratings)
	require.NoError(t, err)
	assert.Equal(t, 3, model.Statistics.SkippedRecords)
	assert.Equal(t, 12, model.Statistics.TotalRatings)
}

func TestTrainingInFlightGuard(t *testing.T) {
	manager := NewManager(trainingCatalog(), nil)

	_, err := manager.beginTraining("cf")
	require.NoError(t, err)

	_, err = manager.TrainCollaborativeFilteringModel("cf", models.ModelParameters{}, trainingRatings(4, 4))
	assert.ErrorIs(t, err, ErrTrainingInFlight)

	// Another name is unaffected.
	_, err = manager.TrainCollaborativeFilteringModel("other", models.ModelParameters{}, trainingRatings(4, 4))
	assert.NoError(t, err)

	manager.endTraining("cf")
	_, err = manager.TrainCollaborativeFilteringModel("cf", models.ModelParameters{}, trainingRatings(4, 4))
	assert.NoError(t, err)
}

func TestTrainContentBasedModel(t *testing.T) {
	manager := NewManager(trainingCatalog(), nil)

	// Everyone loves reds here, so wine type correlates with rating globally.
	var ratings []models.Rating
	for u := 0; u < 6; u++ {
		for w := 0; w < 10; w++ {
			rating := 2.0
			if w%2 == 0 {
				rating = 5.0
			}
			ratings = append(ratings, models.Rating{
				UserID: fmt.Sprintf("user-%d", u),
				WineID: fmt.Sprintf("wine-%d", w),
				Rating: rating,
			})
		}
	}

	model, err := manager.TrainContentBasedModel("cb", models.ModelParameters{}, ratings)
	require.NoError(t, err)

	assert.Equal(t, models.ModelTypeContentBased, model.Type)
	assert.NotEmpty(t, model.ItemFeatures)
	assert.Nil(t, model.SimilarityMatrix, "similarity matrix is a CF-only artifact")
	require.NotEmpty(t, model.FeatureWeights)
	assert.Positive(t, model.FeatureWeights["type:red"])
}

func TestEvaluateModel(t *testing.T) {
	manager := NewManager(trainingCatalog(), nil)
	ratings := trainingRatings(6, 10)

	model, err := manager.TrainCollaborativeFilteringModel("cf", models.ModelParameters{}, ratings)
	require.NoError(t, err)

	t.Run("metrics on training data stay in declared ranges", func(t *testing.T) {
		metrics, err := manager.EvaluateModel(model, ratings)
		require.NoError(t, err)

		assert.LessOrEqual(t, metrics.RMSE, 10.0)
		assert.GreaterOrEqual(t, metrics.RMSE, 0.0)
		assert.GreaterOrEqual(t, metrics.MAE, 0.0)
		for _, v := range []float64{metrics.Accuracy, metrics.Precision, metrics.Recall, metrics.F1Score} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		assert.Equal(t, len(ratings), metrics.NumPredictions)
		assert.Equal(t, models.ModelStatusEvaluated, model.Status)
	})

	t.Run("empty test set fails with no valid predictions", func(t *testing.T) {
		_, err := manager.EvaluateModel(model, nil)
		assert.ErrorIs(t, err, ErrNoValidPredictions)
	})

	t.Run("malformed test records are counted, not fatal", func(t *testing.T) {
		test := append([]models.Rating{{UserID: "", WineID: "wine-0", Rating: 3}}, ratings[:5]...)
		metrics, err := manager.EvaluateModel(model, test)
		require.NoError(t, err)
		assert.Equal(t, 5, metrics.NumPredictions)
		assert.Equal(t, 1, metrics.SkippedPredictions)
	})
}

func TestPredictRatingDispatch(t *testing.T) {
	manager := NewManager(trainingCatalog(), nil)
	ratings := trainingRatings(6, 10)

	cfModel, err := manager.TrainCollaborativeFilteringModel("cf", models.ModelParameters{}, ratings)
	require.NoError(t, err)
	cbModel, err := manager.TrainContentBasedModel("cb", models.ModelParameters{}, ratings)
	require.NoError(t, err)

	for _, model := range []*models.Model{cfModel, cbModel} {
		t.Run(string(model.Type), func(t *testing.T) {
			// Known pairs, cold-start users, and unknown wines all land on
			// the rating scale.
			for _, pair := range [][2]string{
				{"user-0", "wine-1"},
				{"user-3", "wine-0"},
				{"stranger", "wine-0"},
				{"stranger", "no-such-wine"},
			} {
				predicted := manager.PredictRating(model, pair[0], pair[1])
				assert.GreaterOrEqual(t, predicted, models.MinRating)
				assert.LessOrEqual(t, predicted, models.MaxRating)
			}
		})
	}

	t.Run("cold-start user gets the item average", func(t *testing.T) {
		// wine-0 is loved by even users and disliked by odd ones.
		predicted := manager.PredictRating(cfModel, "stranger", "wine-0")
		assert.InDelta(t, 3.5, predicted, 0.01)
	})
}

func TestRunABTestPredictions(t *testing.T) {
	manager := NewManager(trainingCatalog(), nil)
	ratings := trainingRatings(6, 10)

	modelA, err := manager.TrainCollaborativeFilteringModel("a", models.ModelParameters{}, ratings)
	require.NoError(t, err)
	modelB, err := manager.TrainContentBasedModel("b", models.ModelParameters{}, ratings)
	require.NoError(t, err)

	result, err := manager.RunABTestPredictions(modelA, modelB, ratings, 0.5)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.StatisticalSignificance, 0.0)
	assert.LessOrEqual(t, result.StatisticalSignificance, 1.0)
	assert.Contains(t, []string{"low", "moderate", "high"}, result.SignificanceLevel)
	assert.Equal(t, 30, result.SamplesA)
	assert.Equal(t, 30, result.SamplesB)
	require.NotNil(t, result.ModelAResults)
	require.NotNil(t, result.ModelBResults)

	t.Run("degenerate split ratio falls back to an even split", func(t *testing.T) {
		result, err := manager.RunABTestPredictions(modelA, modelB, ratings, 0)
		require.NoError(t, err)
		assert.Equal(t, 30, result.SamplesA)
	})
}

func TestCreateModel(t *testing.T) {
	ratings := trainingRatings(6, 10)
	manager := NewManager(trainingCatalog(), &stubSource{ratings: ratings})

	t.Run("dispatches by type and self-evaluates", func(t *testing.T) {
		result, err := manager.CreateModel(models.ModelSpec{
			Name: "cf",
			Type: models.ModelTypeCollaborativeFiltering,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Version)
		require.NotNil(t, result.Performance)
		assert.Equal(t, len(ratings), result.Performance.NumPredictions)

		model, ok := manager.GetModel("cf")
		require.True(t, ok)
		assert.Equal(t, models.ModelStatusEvaluated, model.Status)
	})

	t.Run("content based spec trains the cb path", func(t *testing.T) {
		result, err := manager.CreateModel(models.ModelSpec{
			Name: "cb",
			Type: models.ModelTypeContentBased,
		})
		require.NoError(t, err)
		model, ok := manager.GetModel("cb")
		require.True(t, ok)
		assert.Equal(t, models.ModelTypeContentBased, model.Type)
		assert.Equal(t, 1, result.Version)
	})

	t.Run("invalid spec is rejected", func(t *testing.T) {
		_, err := manager.CreateModel(models.ModelSpec{Name: "x", Type: "nonsense"})
		assert.Error(t, err)
		_, err = manager.CreateModel(models.ModelSpec{Type: models.ModelTypeContentBased})
		assert.Error(t, err)
	})

	t.Run("no source configured is an error", func(t *testing.T) {
		bare := NewManager(trainingCatalog(), nil)
		_, err := bare.CreateModel(models.ModelSpec{
			Name: "cf",
			Type: models.ModelTypeCollaborativeFiltering,
		})
		assert.Error(t, err)
	})
}

func TestBuilderHelpers(t *testing.T) {
	ratings := trainingRatings(4, 6)

	t.Run("profiles aggregate per user and wine", func(t *testing.T) {
		users := BuildUserProfiles(ratings)
		items := BuildItemProfiles(ratings)
		assert.Len(t, users, 4)
		assert.Len(t, items, 6)
		assert.Len(t, users["user-0"].Ratings, 6)
	})

	t.Run("similarity matrix respects thresholds", func(t *testing.T) {
		matrix := BuildSimilarityMatrix(ratings, 0.5, 2)
		for _, row := range matrix.Users {
			for _, sim := range row {
				assert.GreaterOrEqual(t, sim, 0.5)
			}
		}
		// user-0 and user-2 rate identically.
		assert.InDelta(t, 1.0, matrix.Users["user-0"]["user-2"], 0.01)
	})

	t.Run("pearson re-export", func(t *testing.T) {
		r := PearsonCorrelation([]float64{1, 2, 3}, []float64{2, 4, 6})
		assert.InDelta(t, 1.0, r, 0.01)
	})
}
