package models

// RecommendationSource identifies which engine produced a recommendation.
type RecommendationSource string

const (
	SourceCollaborative RecommendationSource = "cf"
	SourceContentBased  RecommendationSource = "cb"
	SourcePopularity    RecommendationSource = "popularity"
	SourceBlended       RecommendationSource = "blended"
)

// Recommendation is the single output shape shared by every engine. Score is
// the normalized ranking value; the engine-specific secondary signal lives in
// PredictedRating (CF, popularity) or Similarity (CB). Blended entries carry
// the list of contributing sources.
type Recommendation struct {
	WineID          string                 `json:"wine_id"`
	Score           float64                `json:"score"`
	PredictedRating float64                `json:"predicted_rating,omitempty"`
	Similarity      float64                `json:"similarity,omitempty"`
	Confidence      float64                `json:"confidence"`
	Source          RecommendationSource   `json:"source"`
	Sources         []RecommendationSource `json:"sources,omitempty"`
}

// UserSimilarity is one neighbor entry returned by FindSimilarUsers.
type UserSimilarity struct {
	UserID     string  `json:"user_id"`
	Similarity float64 `json:"similarity"`
}

// WineSimilarity is one neighbor entry returned by FindSimilarItems.
type WineSimilarity struct {
	WineID     string  `json:"wine_id"`
	Similarity float64 `json:"similarity"`
}
