package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/galleyhq/sommelier/pkg/collaborative"
	"github.com/galleyhq/sommelier/pkg/config"
	"github.com/galleyhq/sommelier/pkg/contentbased"
	"github.com/galleyhq/sommelier/pkg/modelmanager"
	"github.com/galleyhq/sommelier/pkg/models"
	"github.com/galleyhq/sommelier/pkg/scheduler"
	"github.com/galleyhq/sommelier/pkg/winestore"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	log := logrus.WithField("component", "main")
	log.Infof("Starting sommelier recommendation engine in %s mode", cfg.Environment)

	store, err := winestore.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()
	log.Infof("Opened store at %s", cfg.DatabasePath)

	ratings, err := store.ListRatings()
	if err != nil {
		log.Fatalf("Failed to load ratings: %v", err)
	}
	wines, err := store.ListWines()
	if err != nil {
		log.Fatalf("Failed to load wine catalog: %v", err)
	}
	log.Infof("Loaded %d ratings and %d wines", len(ratings), len(wines))

	// Content-based engine, with the vintage-quality tree backing cold-start
	// ranking when the catalog is large enough to fit one.
	cbEngine := contentbased.NewEngine(wines)
	if quality := modelmanager.TrainQualityModel(wines); quality != nil {
		cbEngine.SetQualityScorer(quality)
	}

	// Collaborative filtering engine, cross-wired for content fallbacks.
	cfEngine := collaborative.NewEngine(store)
	cfEngine.SetContentRecommender(cbEngine)
	cfEngine.Initialize(ratings, collaborative.Options{
		MinSimilarity:  cfg.MinSimilarity,
		MinCommonItems: cfg.MinCommonItems,
		NeighborLimit:  cfg.NeighborLimit,
	})

	manager := modelmanager.NewManager(store, store)
	manager.SetMinTrainingRecords(cfg.MinTrainingRecords)

	params := models.ModelParameters{
		MinSimilarity:  cfg.MinSimilarity,
		MinCommonItems: cfg.MinCommonItems,
	}
	trainInitial(log, manager, store, models.ModelSpec{
		Name:       "wine-cf",
		Type:       models.ModelTypeCollaborativeFiltering,
		Parameters: params,
	})
	trainInitial(log, manager, store, models.ModelSpec{
		Name:       "wine-cb",
		Type:       models.ModelTypeContentBased,
		Parameters: params,
	})

	sched := scheduler.NewService(manager)
	for _, spec := range []models.ModelSpec{
		{Name: "wine-cf", Type: models.ModelTypeCollaborativeFiltering, Parameters: params},
		{Name: "wine-cb", Type: models.ModelTypeContentBased, Parameters: params},
	} {
		if err := sched.ScheduleRetrain(spec, cfg.RetrainSchedule); err != nil {
			log.Fatalf("Failed to schedule retrain for %s: %v", spec.Name, err)
		}
	}
	sched.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down")
	sched.Stop()
}

// trainInitial trains one model at startup and persists the snapshot. An
// empty rating history is expected on first boot and only logged.
func trainInitial(log *logrus.Entry, manager *modelmanager.Manager, store winestore.Store, spec models.ModelSpec) {
	result, err := manager.CreateModel(spec)
	if err != nil {
		if errors.Is(err, modelmanager.ErrEmptyTrainingSet) {
			log.Warnf("Skipping initial training of %s: no ratings yet", spec.Name)
			return
		}
		log.Fatalf("Failed to train %s: %v", spec.Name, err)
	}
	model, ok := manager.GetModel(spec.Name)
	if !ok {
		log.Fatalf("Trained model %s missing from registry", spec.Name)
	}
	if err := store.SaveModel(model); err != nil {
		log.Fatalf("Failed to persist model %s: %v", spec.Name, err)
	}
	log.Infof("Trained %s v%d (%d predictions in self-evaluation)", spec.Name, result.Version, selfEvalCount(result))
}

func selfEvalCount(result *models.CreateModelResult) int {
	if result.Performance == nil {
		return 0
	}
	return result.Performance.NumPredictions
}
