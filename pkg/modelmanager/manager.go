// Package modelmanager trains, versions, evaluates, and A/B-tests the
// collaborative-filtering and content-based recommenders. Every training run
// produces an immutable Model snapshot; retraining under the same name
// assigns the next version and marks the prior one superseded.
package modelmanager

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/galleyhq/sommelier/pkg/collaborative"
	"github.com/galleyhq/sommelier/pkg/contentbased"
	"github.com/galleyhq/sommelier/pkg/models"
)

var (
	// ErrEmptyTrainingSet is the one fatal training condition: the training
	// set has no usable records, or fewer than the configured floor.
	ErrEmptyTrainingSet = errors.New("training set below minimum record floor")

	// ErrTrainingInFlight is returned when a second training run is started
	// under a model name that is already training.
	ErrTrainingInFlight = errors.New("training already in flight for model name")

	// ErrNoValidPredictions is returned by EvaluateModel when zero
	// predictions could be produced at all, as distinct from poor accuracy.
	ErrNoValidPredictions = errors.New("no valid predictions")

	// ErrUnknownModelType is returned for model records of a type the
	// manager cannot dispatch on.
	ErrUnknownModelType = errors.New("unknown model type")
)

// RatingSource supplies the training data for CreateModel and scheduled
// retraining. The persistent store implements it.
type RatingSource interface {
	ListRatings() ([]models.Rating, error)
}

// Manager owns the model registry and drives both engines through training.
// At most one training run per model name is in flight at a time, which keeps
// version assignment race-free.
type Manager struct {
	mu       sync.Mutex
	registry map[string][]*models.Model // name -> versions, ascending
	training map[string]bool

	catalog    collaborative.WineCatalog
	source     RatingSource
	minRecords int
	log        *logrus.Entry
}

// NewManager creates a manager over the given catalog and rating source.
// Either may be nil when the caller only uses the explicit-ratings entry
// points.
func NewManager(catalog collaborative.WineCatalog, source RatingSource) *Manager {
	return &Manager{
		registry:   make(map[string][]*models.Model),
		training:   make(map[string]bool),
		catalog:    catalog,
		source:     source,
		minRecords: 1,
		log:        logrus.WithField("component", "modelmanager"),
	}
}

// SetMinTrainingRecords sets the training-set floor below which training
// aborts. The default is 1: only a literally empty set is fatal.
func (m *Manager) SetMinTrainingRecords(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > 0 {
		m.minRecords = n
	}
}

// GetModel returns the latest version registered under a name.
func (m *Manager) GetModel(name string) (*models.Model, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.registry[name]
	if len(versions) == 0 {
		return nil, false
	}
	return versions[len(versions)-1], true
}

// ListModels returns every registered version of every model name.
func (m *Manager) ListModels() []*models.Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Model
	for _, versions := range m.registry {
		out = append(out, versions...)
	}
	return out
}

// TrainCollaborativeFilteringModel drives the CF engine over the rating set
// and snapshots its similarity matrix, profiles, and summary statistics into
// an immutable model record.
func (m *Manager) TrainCollaborativeFilteringModel(name string, params models.ModelParameters, ratings []models.Rating) (*models.Model, error) {
	version, err := m.beginTraining(name)
	if err != nil {
		return nil, err
	}
	defer m.endTraining(name)

	start := time.Now()
	valid, skipped := filterRatings(ratings)
	if len(valid) < m.minFloor() {
		return nil, fmt.Errorf("train %s: %w (%d records)", name, ErrEmptyTrainingSet, len(valid))
	}

	engine := collaborative.NewEngine(m.catalog)
	engine.Initialize(valid, collaborative.Options{
		MinSimilarity:  params.MinSimilarity,
		MinCommonItems: params.MinCommonItems,
	})
	matrix, users, items, globalAvg := engine.Snapshot()

	model := &models.Model{
		ID:               uuid.New().String(),
		Name:             name,
		Type:             models.ModelTypeCollaborativeFiltering,
		Algorithm:        "user_item_pearson",
		Parameters:       params,
		Version:          version,
		Status:           models.ModelStatusTrained,
		SimilarityMatrix: matrix,
		UserProfiles:     users,
		ItemProfiles:     items,
		GlobalAverage:    globalAvg,
		Statistics:       buildStatistics(valid, len(users), len(items), skipped, start),
		CreatedAt:        time.Now().UTC(),
	}
	m.register(model)
	return model, nil
}

// TrainContentBasedModel drives the CB engine over the catalog and rating
// set, snapshotting per-wine feature vectors and globally learned feature
// weights.
func (m *Manager) TrainContentBasedModel(name string, params models.ModelParameters, ratings []models.Rating) (*models.Model, error) {
	version, err := m.beginTraining(name)
	if err != nil {
		return nil, err
	}
	defer m.endTraining(name)

	start := time.Now()
	valid, skipped := filterRatings(ratings)
	if len(valid) < m.minFloor() {
		return nil, fmt.Errorf("train %s: %w (%d records)", name, ErrEmptyTrainingSet, len(valid))
	}

	engine := contentbased.NewEngine(m.catalogWines())
	users := collaborative.BuildUserProfiles(valid)
	items := collaborative.BuildItemProfiles(valid)

	model := &models.Model{
		ID:             uuid.New().String(),
		Name:           name,
		Type:           models.ModelTypeContentBased,
		Algorithm:      "feature_cosine",
		Parameters:     params,
		Version:        version,
		Status:         models.ModelStatusTrained,
		FeatureWeights: globalFeatureWeights(engine, valid),
		ItemFeatures:   engine.ItemFeatures(),
		UserProfiles:   users,
		ItemProfiles:   items,
		GlobalAverage:  globalAvgOf(valid),
		Statistics:     buildStatistics(valid, len(users), len(items), skipped, start),
		CreatedAt:      time.Now().UTC(),
	}
	m.register(model)
	return model, nil
}

// CreateModel is the generic entry point: it validates the spec, pulls
// training data from the rating source, dispatches to the type-appropriate
// trainer, and runs an immediate self-evaluation.
func (m *Manager) CreateModel(spec models.ModelSpec) (*models.CreateModelResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model spec: %w", err)
	}
	if m.source == nil {
		return nil, fmt.Errorf("create model %s: no rating source configured", spec.Name)
	}
	ratings, err := m.source.ListRatings()
	if err != nil {
		return nil, fmt.Errorf("create model %s: load ratings: %w", spec.Name, err)
	}

	var model *models.Model
	switch spec.Type {
	case models.ModelTypeCollaborativeFiltering:
		model, err = m.TrainCollaborativeFilteringModel(spec.Name, spec.Parameters, ratings)
	case models.ModelTypeContentBased:
		model, err = m.TrainContentBasedModel(spec.Name, spec.Parameters, ratings)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownModelType, spec.Type)
	}
	if err != nil {
		return nil, err
	}

	metrics, err := m.EvaluateModel(model, ratings)
	if err != nil && !errors.Is(err, ErrNoValidPredictions) {
		return nil, fmt.Errorf("self-evaluation of %s: %w", spec.Name, err)
	}

	m.log.WithFields(logrus.Fields{
		"model":   spec.Name,
		"type":    spec.Type,
		"version": model.Version,
	}).Info("model created")

	return &models.CreateModelResult{
		ModelID:     model.ID,
		Version:     model.Version,
		Performance: metrics,
	}, nil
}

// beginTraining reserves a model name and assigns the next version number.
func (m *Manager) beginTraining(name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == "" {
		return 0, fmt.Errorf("model name is required")
	}
	if m.training[name] {
		return 0, fmt.Errorf("train %s: %w", name, ErrTrainingInFlight)
	}
	m.training[name] = true
	return len(m.registry[name]) + 1, nil
}

func (m *Manager) endTraining(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.training, name)
}

// register appends the model under its name and marks the previous latest
// version superseded.
func (m *Manager) register(model *models.Model) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.registry[model.Name]
	if len(versions) > 0 {
		versions[len(versions)-1].Status = models.ModelStatusSuperseded
	}
	m.registry[model.Name] = append(versions, model)
}

func (m *Manager) minFloor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.minRecords
}

func (m *Manager) catalogWines() []*models.Wine {
	if m.catalog == nil {
		return nil
	}
	wines, err := m.catalog.ListWines()
	if err != nil {
		m.log.WithError(err).Warn("catalog unavailable, training without wine features")
		return nil
	}
	return wines
}

// filterRatings drops malformed records and reports how many were skipped;
// training proceeds on the remainder.
func filterRatings(ratings []models.Rating) ([]models.Rating, int) {
	valid := make([]models.Rating, 0, len(ratings))
	skipped := 0
	for _, r := range ratings {
		if err := r.Validate(); err != nil {
			skipped++
			continue
		}
		valid = append(valid, r)
	}
	return valid, skipped
}

func buildStatistics(ratings []models.Rating, users, items, skipped int, start time.Time) models.ModelStatistics {
	stats := models.ModelStatistics{
		TotalUsers:     users,
		TotalItems:     items,
		TotalRatings:   len(ratings),
		SkippedRecords: skipped,
		TrainingMillis: time.Since(start).Milliseconds(),
	}
	if users > 0 && items > 0 {
		stats.Sparsity = 1 - float64(len(ratings))/float64(users*items)
	}
	return stats
}

func globalAvgOf(ratings []models.Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range ratings {
		sum += r.Rating
	}
	return sum / float64(len(ratings))
}

// globalFeatureWeights correlates feature presence with rating magnitude over
// the whole training set, yielding catalog-wide feature importance.
func globalFeatureWeights(engine *contentbased.Engine, ratings []models.Rating) map[string]float64 {
	features := engine.ItemFeatures()
	featureSet := make(map[string]bool)
	var usable []models.Rating
	for _, r := range ratings {
		vec, ok := features[r.WineID]
		if !ok {
			continue
		}
		usable = append(usable, r)
		for k := range vec {
			featureSet[k] = true
		}
	}
	weights := make(map[string]float64, len(featureSet))
	if len(usable) < 2 {
		return weights
	}

	ratingValues := make([]float64, len(usable))
	for i, r := range usable {
		ratingValues[i] = r.Rating
	}
	presence := make([]float64, len(usable))
	for feature := range featureSet {
		for i, r := range usable {
			if _, ok := features[r.WineID][feature]; ok {
				presence[i] = 1
			} else {
				presence[i] = 0
			}
		}
		if w := PearsonCorrelation(presence, ratingValues); w != 0 {
			weights[feature] = w
		}
	}
	return weights
}
