package modelmanager

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galleyhq/sommelier/pkg/models"
)

// gradedCatalog builds a catalog where quality tracks price: cheap wines
// score around 80, expensive ones around 92.
func gradedCatalog(n int) []*models.Wine {
	wines := make([]*models.Wine, 0, n)
	for i := 0; i < n; i++ {
		quality := 80.0
		price := 15.0 + float64(i%4)
		if i%2 == 1 {
			quality = 92.0
			price = 90.0 + float64(i%4)
		}
		wines = append(wines, &models.Wine{
			ID:           fmt.Sprintf("wine-%d", i),
			Type:         "red",
			Price:        price,
			QualityScore: quality,
			VintageYear:  2015 + i%6,
		})
	}
	return wines
}

func TestTrainQualityModel(t *testing.T) {
	t.Run("learns the price split", func(t *testing.T) {
		model := TrainQualityModel(gradedCatalog(40))
		require.NotNil(t, model)

		cheap := model.PredictQuality(&models.Wine{ID: "x", Price: 18, VintageYear: 2017})
		pricey := model.PredictQuality(&models.Wine{ID: "y", Price: 95, VintageYear: 2017})
		assert.InDelta(t, 80, cheap, 2)
		assert.InDelta(t, 92, pricey, 2)
	})

	t.Run("too few labeled wines yields no model", func(t *testing.T) {
		assert.Nil(t, TrainQualityModel(gradedCatalog(2)))
	})

	t.Run("unlabeled wines are excluded from training", func(t *testing.T) {
		wines := gradedCatalog(3)
		for _, w := range wines {
			w.QualityScore = 0
		}
		assert.Nil(t, TrainQualityModel(wines))
	})

	t.Run("nil model predicts zero", func(t *testing.T) {
		var model *QualityModel
		assert.Equal(t, 0.0, model.PredictQuality(&models.Wine{ID: "x"}))
	})

	t.Run("prediction is deterministic", func(t *testing.T) {
		model := TrainQualityModel(gradedCatalog(40))
		require.NotNil(t, model)
		wine := &models.Wine{ID: "x", Price: 55, VintageYear: 2019, StockQuantity: 2}
		first := model.PredictQuality(wine)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, model.PredictQuality(wine))
		}
	})
}
