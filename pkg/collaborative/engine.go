// Package collaborative implements the collaborative-filtering recommender:
// user-based, item-based, and popularity-based recommendations over a sparse
// rating matrix, with graduated cold-start degradation for thin histories.
package collaborative

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/galleyhq/sommelier/pkg/models"
)

// WineCatalog is the read-only catalog view the engine needs for stock-aware
// re-ranking. A nil catalog disables the stock signal.
type WineCatalog interface {
	GetWine(id string) (*models.Wine, bool)
	ListWines() ([]*models.Wine, error)
}

// ContentRecommender is the slice of the content-based engine the CF engine
// delegates to for GetContentBasedSimilarWines.
type ContentRecommender interface {
	FindSimilarWines(wineID string, limit int) []models.Recommendation
}

// Options controls similarity thresholds and neighborhood sizes.
type Options struct {
	MinSimilarity  float64 `json:"min_similarity"`   // Similarity floor for stored pairs
	MinCommonItems int     `json:"min_common_items"` // Minimum co-ratings per pair
	NeighborLimit  int     `json:"neighbor_limit"`   // Neighbors consulted per recommendation
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		MinSimilarity:  0.3,
		MinCommonItems: 2,
		NeighborLimit:  50,
	}
}

// normalized fills in zero values.
func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.MinSimilarity == 0 {
		o.MinSimilarity = def.MinSimilarity
	}
	if o.MinCommonItems <= 0 {
		o.MinCommonItems = def.MinCommonItems
	}
	if o.NeighborLimit <= 0 {
		o.NeighborLimit = def.NeighborLimit
	}
	return o
}

// snapshot is the immutable state the engine serves from. Updates build a new
// snapshot and swap the pointer, so concurrent readers always see either the
// fully-old or fully-new state.
type snapshot struct {
	ratings   []models.Rating
	users     map[string]*models.UserProfile
	items     map[string]*models.ItemProfile
	matrix    *models.SimilarityMatrix
	globalAvg float64
	opts      Options
}

// Engine is the collaborative-filtering engine. Reads are lock-free against
// the current snapshot; Initialize and UpdateWithNewRatings are serialized by
// an internal mutex.
type Engine struct {
	mu      sync.Mutex
	snap    atomic.Pointer[snapshot]
	catalog WineCatalog
	content ContentRecommender
	log     *logrus.Entry
}

// NewEngine creates an engine backed by the given catalog. The catalog may be
// nil, which disables stock-aware re-ranking.
func NewEngine(catalog WineCatalog) *Engine {
	e := &Engine{
		catalog: catalog,
		log:     logrus.WithField("component", "collaborative"),
	}
	e.snap.Store(emptySnapshot())
	return e
}

// SetContentRecommender wires the content-based engine used by
// GetContentBasedSimilarWines.
func (e *Engine) SetContentRecommender(cr ContentRecommender) {
	e.content = cr
}

func emptySnapshot() *snapshot {
	return &snapshot{
		users:  make(map[string]*models.UserProfile),
		items:  make(map[string]*models.ItemProfile),
		matrix: models.NewSimilarityMatrix(),
		opts:   DefaultOptions(),
	}
}

// Initialize builds user profiles, item profiles, and the similarity matrix
// from the rating set in one pass. An empty rating set produces empty
// structures, not an error. Malformed ratings are skipped.
func (e *Engine) Initialize(ratings []models.Rating, opts Options) {
	e.mu.Lock()
	defer e.mu.Unlock()

	opts = opts.normalized()

	valid := make([]models.Rating, 0, len(ratings))
	for _, r := range ratings {
		if err := r.Validate(); err != nil {
			continue
		}
		valid = append(valid, r)
	}

	snap := &snapshot{
		ratings:   valid,
		users:     BuildUserProfiles(valid),
		items:     BuildItemProfiles(valid),
		globalAvg: globalAverage(valid),
		opts:      opts,
	}
	snap.matrix = buildSimilarityMatrix(snap.users, snap.items, opts.MinSimilarity, opts.MinCommonItems)
	e.snap.Store(snap)

	e.log.WithFields(logrus.Fields{
		"ratings": len(valid),
		"users":   len(snap.users),
		"items":   len(snap.items),
	}).Info("collaborative engine initialized")
}

// UpdateWithNewRatings appends ratings and refreshes the affected profiles
// and similarity rows. The new state is built aside and swapped in atomically
// so in-flight reads stay consistent.
func (e *Engine) UpdateWithNewRatings(newRatings []models.Rating) {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.snap.Load()

	changedUsers := make(map[string]bool)
	changedItems := make(map[string]bool)
	ratings := make([]models.Rating, len(old.ratings), len(old.ratings)+len(newRatings))
	copy(ratings, old.ratings)
	for _, r := range newRatings {
		if err := r.Validate(); err != nil {
			continue
		}
		ratings = append(ratings, r)
		changedUsers[r.UserID] = true
		changedItems[r.WineID] = true
	}
	if len(changedUsers) == 0 {
		return
	}

	// Profiles for the touched users/items are rebuilt from scratch; the rest
	// carry over from the previous snapshot.
	freshUsers := BuildUserProfiles(ratings)
	freshItems := BuildItemProfiles(ratings)
	users := make(map[string]*models.UserProfile, len(freshUsers))
	for id, p := range freshUsers {
		if changedUsers[id] {
			users[id] = p
		} else {
			users[id] = old.users[id]
		}
	}
	items := make(map[string]*models.ItemProfile, len(freshItems))
	for id, p := range freshItems {
		if changedItems[id] {
			items[id] = p
		} else {
			items[id] = old.items[id]
		}
	}

	matrix := copyMatrix(old.matrix)
	userVectors := make(map[string]map[string]float64, len(users))
	for id, p := range users {
		userVectors[id] = ratingVector(p.Ratings, func(r models.Rating) string { return r.WineID })
	}
	itemVectors := make(map[string]map[string]float64, len(items))
	for id, p := range items {
		itemVectors[id] = ratingVector(p.Ratings, func(r models.Rating) string { return r.UserID })
	}
	updateSimilarityRows(matrix.Users, userVectors, changedUsers, old.opts.MinSimilarity, old.opts.MinCommonItems)
	updateSimilarityRows(matrix.Items, itemVectors, changedItems, old.opts.MinSimilarity, old.opts.MinCommonItems)

	e.snap.Store(&snapshot{
		ratings:   ratings,
		users:     users,
		items:     items,
		matrix:    matrix,
		globalAvg: globalAverage(ratings),
		opts:      old.opts,
	})

	e.log.WithFields(logrus.Fields{
		"new_ratings":   len(newRatings),
		"changed_users": len(changedUsers),
		"changed_items": len(changedItems),
	}).Debug("rating set updated")
}

func copyMatrix(m *models.SimilarityMatrix) *models.SimilarityMatrix {
	out := models.NewSimilarityMatrix()
	for id, row := range m.Users {
		cp := make(map[string]float64, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.Users[id] = cp
	}
	for id, row := range m.Items {
		cp := make(map[string]float64, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.Items[id] = cp
	}
	return out
}

// FindSimilarUsers returns the users most similar to userID, similarity
// descending, truncated to limit. Only pairs at or above the configured
// similarity floor exist in the matrix.
func (e *Engine) FindSimilarUsers(userID string, limit int) []models.UserSimilarity {
	row := e.snap.Load().matrix.UserSimilarities(userID)
	out := make([]models.UserSimilarity, 0, len(row))
	for id, sim := range row {
		out = append(out, models.UserSimilarity{UserID: id, Similarity: sim})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FindSimilarItems returns the wines most similar to wineID over the item
// similarity matrix.
func (e *Engine) FindSimilarItems(wineID string, limit int) []models.WineSimilarity {
	row := e.snap.Load().matrix.ItemSimilarities(wineID)
	out := make([]models.WineSimilarity, 0, len(row))
	for id, sim := range row {
		out = append(out, models.WineSimilarity{WineID: id, Similarity: sim})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].WineID < out[j].WineID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// PredictRating predicts how userID would rate wineID: a similarity-weighted
// average of neighbor ratings on that wine, falling back to the wine's
// average rating and then the global average. Always inside [1,5].
func (e *Engine) PredictRating(userID, wineID string) float64 {
	snap := e.snap.Load()
	return predictFromSnapshot(snap, userID, wineID)
}

func predictFromSnapshot(snap *snapshot, userID, wineID string) float64 {
	var weightedSum, simSum float64
	for neighborID, sim := range snap.matrix.UserSimilarities(userID) {
		neighbor := snap.users[neighborID]
		if neighbor == nil {
			continue
		}
		for _, r := range neighbor.Ratings {
			if r.WineID == wineID {
				weightedSum += sim * r.Rating
				simSum += sim
				break
			}
		}
	}
	if simSum > 0 {
		return models.ClampRating(weightedSum / simSum)
	}
	if item := snap.items[wineID]; item != nil && len(item.Ratings) > 0 {
		return models.ClampRating(item.AvgRating)
	}
	if snap.globalAvg > 0 {
		return models.ClampRating(snap.globalAvg)
	}
	return (models.MinRating + models.MaxRating) / 2
}

// GetContentBasedSimilarWines delegates to the content-based engine so API
// callers can reach both engines through one handle. Returns nil when no
// content engine is wired.
func (e *Engine) GetContentBasedSimilarWines(wineID string, limit int) []models.Recommendation {
	if e.content == nil {
		return nil
	}
	return e.content.FindSimilarWines(wineID, limit)
}

// Ratings returns the engine's current rating set. The slice is shared with
// the snapshot and must not be mutated.
func (e *Engine) Ratings() []models.Rating {
	return e.snap.Load().ratings
}

// Snapshot exposes the current trained structures for the model manager to
// capture into an immutable Model record.
func (e *Engine) Snapshot() (*models.SimilarityMatrix, map[string]*models.UserProfile, map[string]*models.ItemProfile, float64) {
	snap := e.snap.Load()
	return snap.matrix, snap.users, snap.items, snap.globalAvg
}
