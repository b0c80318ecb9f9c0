package collaborative

import (
	"sort"

	"github.com/galleyhq/sommelier/pkg/models"
	"github.com/galleyhq/sommelier/pkg/stats"
)

// BuildSimilarityMatrix computes the sparse user-user and item-item
// similarity maps over a rating set. Pairs with fewer than minCommonItems
// co-ratings, or with similarity below minSimilarity, are omitted. An empty
// rating set produces an empty matrix, not an error.
func BuildSimilarityMatrix(ratings []models.Rating, minSimilarity float64, minCommonItems int) *models.SimilarityMatrix {
	users := BuildUserProfiles(ratings)
	items := BuildItemProfiles(ratings)
	return buildSimilarityMatrix(users, items, minSimilarity, minCommonItems)
}

func buildSimilarityMatrix(users map[string]*models.UserProfile, items map[string]*models.ItemProfile, minSimilarity float64, minCommonItems int) *models.SimilarityMatrix {
	matrix := models.NewSimilarityMatrix()

	userVectors := make(map[string]map[string]float64, len(users))
	for id, p := range users {
		userVectors[id] = ratingVector(p.Ratings, func(r models.Rating) string { return r.WineID })
	}
	itemVectors := make(map[string]map[string]float64, len(items))
	for id, p := range items {
		itemVectors[id] = ratingVector(p.Ratings, func(r models.Rating) string { return r.UserID })
	}

	userIDs := sortedKeys(userVectors)
	for i, a := range userIDs {
		for _, b := range userIDs[i+1:] {
			sim, ok := pairSimilarity(userVectors[a], userVectors[b], minSimilarity, minCommonItems)
			if !ok {
				continue
			}
			setSimilarity(matrix.Users, a, b, sim)
		}
	}

	itemIDs := sortedKeys(itemVectors)
	for i, a := range itemIDs {
		for _, b := range itemIDs[i+1:] {
			sim, ok := pairSimilarity(itemVectors[a], itemVectors[b], minSimilarity, minCommonItems)
			if !ok {
				continue
			}
			setSimilarity(matrix.Items, a, b, sim)
		}
	}

	return matrix
}

// pairSimilarity computes the Pearson correlation between two rating vectors
// over their common keys. Reports false when the pair has too few co-ratings
// or the similarity falls below the floor.
func pairSimilarity(a, b map[string]float64, minSimilarity float64, minCommonItems int) (float64, bool) {
	var va, vb []float64
	for k, x := range a {
		if y, ok := b[k]; ok {
			va = append(va, x)
			vb = append(vb, y)
		}
	}
	if len(va) < minCommonItems {
		return 0, false
	}
	sim := stats.PearsonCorrelation(va, vb)
	if sim < minSimilarity {
		return 0, false
	}
	return sim, true
}

// updateSimilarityRows recomputes the similarity rows touching the given IDs
// against every other vector, writing both directions of each surviving pair
// and clearing entries that no longer qualify.
func updateSimilarityRows(matrix map[string]map[string]float64, vectors map[string]map[string]float64, changed map[string]bool, minSimilarity float64, minCommonItems int) {
	for id := range changed {
		vec := vectors[id]
		// Drop the stale row; surviving pairs are re-added below.
		for other := range matrix[id] {
			delete(matrix[other], id)
		}
		delete(matrix, id)
		for other, otherVec := range vectors {
			if other == id {
				continue
			}
			sim, ok := pairSimilarity(vec, otherVec, minSimilarity, minCommonItems)
			if !ok {
				continue
			}
			setSimilarity(matrix, id, other, sim)
		}
	}
}

func setSimilarity(matrix map[string]map[string]float64, a, b string, sim float64) {
	if matrix[a] == nil {
		matrix[a] = make(map[string]float64)
	}
	if matrix[b] == nil {
		matrix[b] = make(map[string]float64)
	}
	matrix[a][b] = sim
	matrix[b][a] = sim
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ratingVector(ratings []models.Rating, key func(models.Rating) string) map[string]float64 {
	vec := make(map[string]float64, len(ratings))
	for _, r := range ratings {
		vec[key(r)] = r.Rating
	}
	return vec
}
