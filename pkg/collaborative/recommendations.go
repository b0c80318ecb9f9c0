package collaborative

import (
	"sort"

	"github.com/galleyhq/sommelier/pkg/models"
)

// stockBonus is the ranking nudge given to in-stock wines. Small enough that
// it only reorders candidates whose scores are effectively tied.
const stockBonus = 0.01

// confidenceCap limits recommendation confidence by the depth of the
// requesting user's rating history, per the cold-start policy: unknown users
// stay below 0.5, thin histories below 0.7, and confidence rises toward full
// CF as the history grows past five ratings.
func confidenceCap(ratingCount int) float64 {
	switch {
	case ratingCount == 0:
		return 0.45
	case ratingCount <= 2:
		return 0.65
	case ratingCount <= 5:
		return 0.8
	default:
		return 1.0
	}
}

// cfShare is the weight given to the CF signal when blending with popularity
// for users with thin histories.
func cfShare(ratingCount int) float64 {
	switch {
	case ratingCount == 0:
		return 0
	case ratingCount <= 2:
		return 0.4
	case ratingCount <= 5:
		return 0.5 + 0.1*float64(ratingCount-2)
	default:
		return 1.0
	}
}

// GetUserBasedRecommendations recommends wines the target user has not rated,
// scored by similarity-weighted neighbor ratings. Users with no history get
// the popularity fallback; users with one or two ratings get a blend of
// popularity and the thin CF signal.
func (e *Engine) GetUserBasedRecommendations(userID string, limit int) []models.Recommendation {
	snap := e.snap.Load()
	profile := snap.users[userID]
	ratingCount := 0
	if profile != nil {
		ratingCount = len(profile.Ratings)
	}
	if ratingCount == 0 {
		return e.GetPopularityBasedRecommendations(userID, limit)
	}

	type aggregate struct {
		weighted float64
		simSum   float64
	}
	candidates := make(map[string]*aggregate)
	for _, nb := range e.FindSimilarUsers(userID, snap.opts.NeighborLimit) {
		neighbor := snap.users[nb.UserID]
		if neighbor == nil {
			continue
		}
		for _, r := range neighbor.Ratings {
			if profile.HasRated(r.WineID) {
				continue
			}
			agg := candidates[r.WineID]
			if agg == nil {
				agg = &aggregate{}
				candidates[r.WineID] = agg
			}
			agg.weighted += nb.Similarity * r.Rating
			agg.simSum += nb.Similarity
		}
	}

	confCap := confidenceCap(ratingCount)
	share := cfShare(ratingCount)
	recs := make([]models.Recommendation, 0, len(candidates))
	for wineID, agg := range candidates {
		if agg.simSum <= 0 {
			continue
		}
		predicted := models.ClampRating(agg.weighted / agg.simSum)
		confidence := models.ClampUnit(agg.simSum / (agg.simSum + 1))
		if confidence > confCap {
			confidence = confCap
		}
		recs = append(recs, models.Recommendation{
			WineID:          wineID,
			Score:           share * normalizeRating(predicted),
			PredictedRating: predicted,
			Confidence:      confidence,
			Source:          models.SourceCollaborative,
		})
	}

	// Thin histories are padded with popularity candidates so the list does
	// not collapse when the CF signal is sparse.
	if share < 1 {
		seen := make(map[string]bool, len(recs))
		for _, r := range recs {
			seen[r.WineID] = true
		}
		for _, pop := range e.popularityCandidates(snap, profile, 0) {
			if seen[pop.WineID] {
				continue
			}
			pop.Score *= 1 - share
			recs = append(recs, pop)
		}
	}
	if len(recs) == 0 {
		return e.GetPopularityBasedRecommendations(userID, limit)
	}

	e.rankWithStock(recs)
	return truncate(recs, limit)
}

// GetItemBasedRecommendations recommends unrated wines similar to the wines
// the user has already rated, weighting each neighbor wine's contribution by
// its similarity to the rated wine.
func (e *Engine) GetItemBasedRecommendations(userID string, limit int) []models.Recommendation {
	snap := e.snap.Load()
	profile := snap.users[userID]
	if profile == nil || len(profile.Ratings) == 0 {
		return e.GetPopularityBasedRecommendations(userID, limit)
	}

	type aggregate struct {
		weighted float64
		simSum   float64
	}
	candidates := make(map[string]*aggregate)
	for _, rated := range profile.Ratings {
		for candidateID, sim := range snap.matrix.ItemSimilarities(rated.WineID) {
			if profile.HasRated(candidateID) {
				continue
			}
			agg := candidates[candidateID]
			if agg == nil {
				agg = &aggregate{}
				candidates[candidateID] = agg
			}
			agg.weighted += sim * rated.Rating
			agg.simSum += sim
		}
	}

	confCap := confidenceCap(len(profile.Ratings))
	recs := make([]models.Recommendation, 0, len(candidates))
	for wineID, agg := range candidates {
		if agg.simSum <= 0 {
			continue
		}
		predicted := models.ClampRating(agg.weighted / agg.simSum)
		confidence := models.ClampUnit(agg.simSum / (agg.simSum + 1))
		if confidence > confCap {
			confidence = confCap
		}
		recs = append(recs, models.Recommendation{
			WineID:          wineID,
			Score:           normalizeRating(predicted),
			PredictedRating: predicted,
			Confidence:      confidence,
			Source:          models.SourceCollaborative,
		})
	}
	if len(recs) == 0 {
		return e.GetPopularityBasedRecommendations(userID, limit)
	}

	e.rankWithStock(recs)
	return truncate(recs, limit)
}

// GetPopularityBasedRecommendations ranks unrated wines by popularity score.
// This is the cold-start path; every entry carries confidence below 0.5 and
// the list is sorted by descending score.
func (e *Engine) GetPopularityBasedRecommendations(userID string, limit int) []models.Recommendation {
	snap := e.snap.Load()
	recs := e.popularityCandidates(snap, snap.users[userID], limit)
	return recs
}

// popularityCandidates builds the popularity-ranked list excluding wines the
// profile has rated. A limit of 0 returns all candidates.
func (e *Engine) popularityCandidates(snap *snapshot, profile *models.UserProfile, limit int) []models.Recommendation {
	items := make([]*models.ItemProfile, 0, len(snap.items))
	maxPopularity := 0.0
	for _, item := range snap.items {
		if profile.HasRated(item.WineID) {
			continue
		}
		items = append(items, item)
		if item.Popularity > maxPopularity {
			maxPopularity = item.Popularity
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Popularity != items[j].Popularity {
			return items[i].Popularity > items[j].Popularity
		}
		return items[i].WineID < items[j].WineID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	recs := make([]models.Recommendation, 0, len(items))
	for _, item := range items {
		score := 0.0
		if maxPopularity > 0 {
			score = item.Popularity / maxPopularity
		}
		count := len(item.Ratings)
		recs = append(recs, models.Recommendation{
			WineID:          item.WineID,
			Score:           score,
			PredictedRating: models.ClampRating(item.AvgRating),
			Confidence:      0.45 * float64(count) / float64(count+3),
			Source:          models.SourcePopularity,
		})
	}
	return recs
}

// rankWithStock sorts recommendations by score descending, nudging in-stock
// wines ahead of out-of-stock ones when scores are effectively tied. The
// stored scores are not modified.
func (e *Engine) rankWithStock(recs []models.Recommendation) {
	effective := func(r models.Recommendation) float64 {
		if e.catalog == nil {
			return r.Score
		}
		if w, ok := e.catalog.GetWine(r.WineID); ok && w.InStock() {
			return r.Score + stockBonus
		}
		return r.Score
	}
	sort.SliceStable(recs, func(i, j int) bool {
		ei, ej := effective(recs[i]), effective(recs[j])
		if ei != ej {
			return ei > ej
		}
		return recs[i].WineID < recs[j].WineID
	})
}

func normalizeRating(predicted float64) float64 {
	return (predicted - models.MinRating) / (models.MaxRating - models.MinRating)
}

func truncate(recs []models.Recommendation, limit int) []models.Recommendation {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}
