package models

// UserProfile aggregates one user's rating history. Profiles are rebuilt
// wholesale whenever the underlying rating set changes; callers never observe
// a partially updated profile.
type UserProfile struct {
	UserID     string          `json:"user_id"`
	Ratings    []Rating        `json:"ratings"`
	AvgRating  float64         `json:"avg_rating"`
	RatedWines map[string]bool `json:"rated_wines"`
}

// HasRated reports whether the user has already rated the given wine.
func (p *UserProfile) HasRated(wineID string) bool {
	if p == nil {
		return false
	}
	return p.RatedWines[wineID]
}

// ItemProfile aggregates the rating history of one wine. Popularity combines
// rating volume and average rating and is what the popularity-based
// recommender sorts by.
type ItemProfile struct {
	WineID     string   `json:"wine_id"`
	Ratings    []Rating `json:"ratings"`
	AvgRating  float64  `json:"avg_rating"`
	Popularity float64  `json:"popularity"`
}

// SimilarityMatrix holds sparse user-user and item-item similarity maps.
// Pairs below the similarity floor or with too few co-ratings are omitted
// entirely rather than stored as zero.
type SimilarityMatrix struct {
	Users map[string]map[string]float64 `json:"users"`
	Items map[string]map[string]float64 `json:"items"`
}

// NewSimilarityMatrix returns an empty matrix with both maps allocated.
func NewSimilarityMatrix() *SimilarityMatrix {
	return &SimilarityMatrix{
		Users: make(map[string]map[string]float64),
		Items: make(map[string]map[string]float64),
	}
}

// UserSimilarities returns the similarity row for one user. A missing row
// yields nil, which ranges as empty.
func (m *SimilarityMatrix) UserSimilarities(userID string) map[string]float64 {
	if m == nil {
		return nil
	}
	return m.Users[userID]
}

// ItemSimilarities returns the similarity row for one wine.
func (m *SimilarityMatrix) ItemSimilarities(wineID string) map[string]float64 {
	if m == nil {
		return nil
	}
	return m.Items[wineID]
}
