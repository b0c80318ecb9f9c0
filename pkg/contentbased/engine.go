// Package contentbased implements the content-based recommender: wines are
// embedded as sparse feature vectors over type, grape, region, price bucket,
// vintage band, and description tokens; users get a rating-weighted taste
// profile and recommendations by profile-to-wine cosine similarity.
package contentbased

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/galleyhq/sommelier/pkg/models"
	"github.com/galleyhq/sommelier/pkg/stats"
)

// QualityScorer predicts a quality score for a wine. Used to rank the
// cold-start fallback list; when unset the catalog's recorded quality score
// is used directly.
type QualityScorer interface {
	PredictQuality(wine *models.Wine) float64
}

// TasteProfile is a user's content-based profile: the rating-weighted feature
// vector plus per-dimension preference shares (how much of the profile's
// weight sits in type vs region vs grape and so on).
type TasteProfile struct {
	UserID        string             `json:"user_id"`
	Preferences   map[string]float64 `json:"preferences"`
	FeatureVector map[string]float64 `json:"feature_vector"`
}

// state is the engine's immutable catalog view, swapped wholesale on updates.
type state struct {
	wines    map[string]*models.Wine
	features map[string]map[string]float64
}

// Engine is the content-based engine. Reads are lock-free; catalog updates
// build a new state and swap it in.
type Engine struct {
	mu      sync.Mutex
	state   atomic.Pointer[state]
	quality QualityScorer
	log     *logrus.Entry
}

// NewEngine builds an engine over the given catalog, extracting and caching a
// feature vector per wine.
func NewEngine(wines []*models.Wine) *Engine {
	e := &Engine{
		log: logrus.WithField("component", "contentbased"),
	}
	st := &state{
		wines:    make(map[string]*models.Wine, len(wines)),
		features: make(map[string]map[string]float64, len(wines)),
	}
	for _, w := range wines {
		if w == nil || w.ID == "" {
			continue
		}
		st.wines[w.ID] = w
		st.features[w.ID] = ExtractFeatures(w)
	}
	e.state.Store(st)
	e.log.WithField("wines", len(st.wines)).Info("content engine initialized")
	return e
}

// SetQualityScorer wires an optional trained quality model for the cold-start
// fallback ranking.
func (e *Engine) SetQualityScorer(qs QualityScorer) {
	e.quality = qs
}

// UpdateWineFeatures recomputes and replaces the cached feature vector for
// one wine, copy-on-write so concurrent readers stay consistent.
func (e *Engine) UpdateWineFeatures(wine *models.Wine) {
	if wine == nil || wine.ID == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.state.Load()
	st := &state{
		wines:    make(map[string]*models.Wine, len(old.wines)+1),
		features: make(map[string]map[string]float64, len(old.features)+1),
	}
	for id, w := range old.wines {
		st.wines[id] = w
		st.features[id] = old.features[id]
	}
	st.wines[wine.ID] = wine
	st.features[wine.ID] = ExtractFeatures(wine)
	e.state.Store(st)
}

// ItemFeatures returns the cached per-wine feature vectors. The maps are
// shared with the engine state and must not be mutated.
func (e *Engine) ItemFeatures() map[string]map[string]float64 {
	return e.state.Load().features
}

// CosineSimilarity is the shared vector similarity, exposed on the engine for
// direct vector-to-vector use.
func (e *Engine) CosineSimilarity(a, b map[string]float64) float64 {
	return stats.CosineSimilarity(a, b)
}

// CalculateSimilarity computes the similarity of two cataloged wines over
// their cached feature vectors. Unknown wines yield 0; missing features on
// either side reduce but do not zero the score.
func (e *Engine) CalculateSimilarity(wineIDA, wineIDB string) float64 {
	st := e.state.Load()
	return stats.CosineSimilarity(st.features[wineIDA], st.features[wineIDB])
}

// BuildUserProfile derives the user's taste profile as a rating-weighted
// average of the feature vectors of the wines they rated.
func (e *Engine) BuildUserProfile(userID string, ratings []models.Rating) *TasteProfile {
	st := e.state.Load()
	profile := &TasteProfile{
		UserID:        userID,
		Preferences:   make(map[string]float64),
		FeatureVector: make(map[string]float64),
	}

	var totalWeight float64
	for _, r := range ratings {
		if r.UserID != userID {
			continue
		}
		vec, ok := st.features[r.WineID]
		if !ok {
			continue
		}
		for k, v := range vec {
			profile.FeatureVector[k] += r.Rating * v
		}
		totalWeight += r.Rating
	}
	if totalWeight > 0 {
		for k := range profile.FeatureVector {
			profile.FeatureVector[k] /= totalWeight
		}
	}

	// Preference shares per feature dimension.
	var mass float64
	for k, v := range profile.FeatureVector {
		profile.Preferences[dimension(k)] += v
		mass += v
	}
	if mass > 0 {
		for d := range profile.Preferences {
			profile.Preferences[d] /= mass
		}
	}
	return profile
}

// LearnFeatureWeights derives per-feature importance from the correlation
// between feature presence and rating magnitude across the user's history.
// Weights are in [-1,1]; negative means the feature predicts low ratings.
func (e *Engine) LearnFeatureWeights(userID string, ratings []models.Rating) map[string]float64 {
	st := e.state.Load()

	var history []models.Rating
	featureSet := make(map[string]bool)
	for _, r := range ratings {
		if r.UserID != userID {
			continue
		}
		vec, ok := st.features[r.WineID]
		if !ok {
			continue
		}
		history = append(history, r)
		for k := range vec {
			featureSet[k] = true
		}
	}
	weights := make(map[string]float64, len(featureSet))
	if len(history) < 2 {
		return weights
	}

	ratingValues := make([]float64, len(history))
	for i, r := range history {
		ratingValues[i] = r.Rating
	}
	presence := make([]float64, len(history))
	for feature := range featureSet {
		for i, r := range history {
			if _, ok := st.features[r.WineID][feature]; ok {
				presence[i] = 1
			} else {
				presence[i] = 0
			}
		}
		if w := stats.PearsonCorrelation(presence, ratingValues); w != 0 {
			weights[feature] = w
		}
	}
	return weights
}

// GetRecommendations scores all unrated wines by similarity to the user's
// taste profile, modulated by learned feature weights once the history is
// deep enough. An empty history returns the quality-ranked fallback list
// rather than an empty result.
func (e *Engine) GetRecommendations(userID string, ratings []models.Rating, limit int) []models.Recommendation {
	st := e.state.Load()

	rated := make(map[string]bool)
	history := 0
	for _, r := range ratings {
		if r.UserID != userID {
			continue
		}
		rated[r.WineID] = true
		history++
	}
	if history == 0 {
		return e.fallbackRecommendations(st, rated, limit)
	}

	profile := e.BuildUserProfile(userID, ratings)
	userVec := profile.FeatureVector
	if history >= 5 {
		userVec = applyWeights(userVec, e.LearnFeatureWeights(userID, ratings))
	}

	confidence := models.ClampUnit(0.3 + 0.06*float64(history))
	recs := make([]models.Recommendation, 0, len(st.wines))
	for id, vec := range st.features {
		if rated[id] {
			continue
		}
		sim := stats.CosineSimilarity(userVec, vec)
		if sim <= 0 {
			continue
		}
		recs = append(recs, models.Recommendation{
			WineID:     id,
			Score:      sim,
			Similarity: sim,
			Confidence: confidence,
			Source:     models.SourceContentBased,
		})
	}
	if len(recs) == 0 {
		return e.fallbackRecommendations(st, rated, limit)
	}
	sortByScore(recs)
	return truncate(recs, limit)
}

// FindSimilarWines returns the nearest catalog neighbors of a wine, excluding
// the wine itself.
func (e *Engine) FindSimilarWines(wineID string, limit int) []models.Recommendation {
	st := e.state.Load()
	query, ok := st.features[wineID]
	if !ok {
		return nil
	}
	recs := make([]models.Recommendation, 0, len(st.features))
	for id, vec := range st.features {
		if id == wineID {
			continue
		}
		sim := stats.CosineSimilarity(query, vec)
		if sim <= 0 {
			continue
		}
		recs = append(recs, models.Recommendation{
			WineID:     id,
			Score:      sim,
			Similarity: sim,
			Confidence: sim,
			Source:     models.SourceContentBased,
		})
	}
	sortByScore(recs)
	return truncate(recs, limit)
}

// fallbackRecommendations is the cold-start list: wines ranked by predicted
// or recorded quality, in-stock first, with low confidence.
func (e *Engine) fallbackRecommendations(st *state, rated map[string]bool, limit int) []models.Recommendation {
	wines := make([]*models.Wine, 0, len(st.wines))
	maxQuality := 0.0
	qualityOf := func(w *models.Wine) float64 {
		if e.quality != nil {
			return e.quality.PredictQuality(w)
		}
		return w.QualityScore
	}
	for _, w := range st.wines {
		if rated[w.ID] {
			continue
		}
		wines = append(wines, w)
		if q := qualityOf(w); q > maxQuality {
			maxQuality = q
		}
	}
	sort.Slice(wines, func(i, j int) bool {
		qi, qj := qualityOf(wines[i]), qualityOf(wines[j])
		if wines[i].InStock() != wines[j].InStock() {
			return wines[i].InStock()
		}
		if qi != qj {
			return qi > qj
		}
		return wines[i].ID < wines[j].ID
	})

	recs := make([]models.Recommendation, 0, len(wines))
	for _, w := range wines {
		score := 0.0
		if maxQuality > 0 {
			score = qualityOf(w) / maxQuality
		}
		recs = append(recs, models.Recommendation{
			WineID:     w.ID,
			Score:      models.ClampUnit(score),
			Similarity: 0,
			Confidence: 0.35,
			Source:     models.SourcePopularity,
		})
	}
	return truncate(recs, limit)
}

// applyWeights modulates a profile vector by learned feature weights. A
// weight of +1 doubles the feature's pull, -1 removes it.
func applyWeights(vec map[string]float64, weights map[string]float64) map[string]float64 {
	if len(weights) == 0 {
		return vec
	}
	out := make(map[string]float64, len(vec))
	for k, v := range vec {
		scaled := v * (1 + weights[k])
		if scaled > 0 {
			out[k] = scaled
		}
	}
	return out
}

func dimension(feature string) string {
	for i := 0; i < len(feature); i++ {
		if feature[i] == ':' {
			return feature[:i]
		}
	}
	return feature
}

func sortByScore(recs []models.Recommendation) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].WineID < recs[j].WineID
	})
}

func truncate(recs []models.Recommendation, limit int) []models.Recommendation {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}
