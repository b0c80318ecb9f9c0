package models

import (
	"fmt"
	"time"
)

// ModelType represents the algorithm family of a trained model.
type ModelType string

const (
	ModelTypeCollaborativeFiltering ModelType = "collaborative_filtering"
	ModelTypeContentBased           ModelType = "content_based"
)

// ModelStatus represents the lifecycle state of a model.
type ModelStatus string

const (
	ModelStatusDraft      ModelStatus = "draft"      // Model created but not trained
	ModelStatusTraining   ModelStatus = "training"   // Training in progress
	ModelStatusTrained    ModelStatus = "trained"    // Training completed successfully
	ModelStatusEvaluated  ModelStatus = "evaluated"  // Evaluation metrics attached
	ModelStatusSuperseded ModelStatus = "superseded" // A newer version exists under the same name
	ModelStatusFailed     ModelStatus = "failed"     // Training failed
)

// ModelParameters holds the training knobs common to both engines.
type ModelParameters struct {
	MinSimilarity      float64                `json:"min_similarity,omitempty"`
	MinCommonItems     int                    `json:"min_common_items,omitempty"`
	RecommendThreshold float64                `json:"recommend_threshold,omitempty"`
	Hyperparameters    map[string]interface{} `json:"hyperparameters,omitempty"`
}

// ModelStatistics summarizes the training set a model was built from.
// SkippedRecords counts malformed ratings dropped during training.
type ModelStatistics struct {
	TotalUsers     int     `json:"total_users"`
	TotalItems     int     `json:"total_items"`
	TotalRatings   int     `json:"total_ratings"`
	Sparsity       float64 `json:"sparsity"`
	SkippedRecords int     `json:"skipped_records"`
	TrainingMillis int64   `json:"training_millis"`
}

// Model is an immutable snapshot of a trained recommender. Retraining under
// the same name produces a new version; existing records are never mutated.
// Only the fields relevant to the model's Type are populated: the similarity
// matrix is CF-only and the feature artifacts are CB-only. Profile aggregates
// appear on both because prediction fallbacks (item average, global average)
// need them regardless of algorithm.
type Model struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       ModelType       `json:"type"`
	Algorithm  string          `json:"algorithm"`
	Parameters ModelParameters `json:"parameters"`
	Version    int             `json:"version"`
	Status     ModelStatus     `json:"status"`

	// Collaborative filtering artifacts.
	SimilarityMatrix *SimilarityMatrix `json:"similarity_matrix,omitempty"`

	// Rating aggregates, shared by both model types.
	UserProfiles map[string]*UserProfile `json:"user_profiles,omitempty"`
	ItemProfiles map[string]*ItemProfile `json:"item_profiles,omitempty"`

	// Content-based artifacts.
	FeatureWeights map[string]float64            `json:"feature_weights,omitempty"`
	ItemFeatures   map[string]map[string]float64 `json:"item_features,omitempty"`

	GlobalAverage float64            `json:"global_average"`
	Statistics    ModelStatistics    `json:"statistics"`
	Metrics       *EvaluationMetrics `json:"metrics,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// EvaluationMetrics holds regression and classification-style metrics from a
// held-out evaluation run.
type EvaluationMetrics struct {
	RMSE               float64 `json:"rmse"`
	MAE                float64 `json:"mae"`
	Accuracy           float64 `json:"accuracy"`
	Precision          float64 `json:"precision"`
	Recall             float64 `json:"recall"`
	F1Score            float64 `json:"f1_score"`
	NumPredictions     int     `json:"num_predictions"`
	SkippedPredictions int     `json:"skipped_predictions"`
}

// ModelSpec is the request shape for the generic CreateModel entry point.
type ModelSpec struct {
	Name       string          `json:"name"`
	Type       ModelType       `json:"type"`
	Parameters ModelParameters `json:"parameters"`
}

// Validate checks that the spec names a model and uses a known type.
func (s *ModelSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch s.Type {
	case ModelTypeCollaborativeFiltering, ModelTypeContentBased:
		return nil
	default:
		return fmt.Errorf("invalid model type: %s", s.Type)
	}
}

// CreateModelResult is returned by CreateModel after training and the
// immediate self-evaluation.
type CreateModelResult struct {
	ModelID     string             `json:"model_id"`
	Version     int                `json:"version"`
	Performance *EvaluationMetrics `json:"performance"`
}

// ABTestResult reports an A/B comparison between two trained models.
type ABTestResult struct {
	ModelAResults           *EvaluationMetrics `json:"model_a_results"`
	ModelBResults           *EvaluationMetrics `json:"model_b_results"`
	StatisticalSignificance float64            `json:"statistical_significance"`
	SignificanceLevel       string             `json:"significance_level"`
	SamplesA                int                `json:"samples_a"`
	SamplesB                int                `json:"samples_b"`
}
