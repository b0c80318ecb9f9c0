// Package scheduler runs periodic model retraining on cron schedules so that
// deployed models keep up with the growing rating history.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/galleyhq/sommelier/pkg/models"
)

// Trainer is the slice of the model manager the scheduler needs.
type Trainer interface {
	CreateModel(spec models.ModelSpec) (*models.CreateModelResult, error)
}

// Service provides scheduled retraining of named models.
type Service struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[string]cron.EntryID // model name -> cron entry
	trainer Trainer
	log     *logrus.Entry
}

// NewService creates a retraining scheduler over the given trainer.
func NewService(trainer Trainer) *Service {
	return &Service{
		cron:    cron.New(),
		jobs:    make(map[string]cron.EntryID),
		trainer: trainer,
		log:     logrus.WithField("component", "scheduler"),
	}
}

// Start starts the scheduler loop.
func (s *Service) Start() {
	s.cron.Start()
	s.log.Info("retraining scheduler started")
}

// Stop stops the scheduler and waits for a running retrain to finish.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("retraining scheduler stopped")
}

// ScheduleRetrain registers (or replaces) a periodic retrain of the model
// described by spec. The schedule uses standard five-field cron syntax.
func (s *Service) ScheduleRetrain(spec models.ModelSpec, schedule string) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid retrain spec: %w", err)
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, exists := s.jobs[spec.Name]; exists {
		s.cron.Remove(entryID)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		s.retrain(spec)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retrain for %s: %w", spec.Name, err)
	}
	s.jobs[spec.Name] = entryID

	s.log.WithFields(logrus.Fields{
		"model":    spec.Name,
		"schedule": schedule,
	}).Info("retrain scheduled")
	return nil
}

// Unschedule removes a model's retrain job if one exists.
func (s *Service) Unschedule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
	}
}

// ScheduledModels returns the model names with an active retrain job.
func (s *Service) ScheduledModels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// retrain runs one training pass. A run that collides with an in-flight
// training of the same name simply logs and yields to the next tick.
func (s *Service) retrain(spec models.ModelSpec) {
	start := time.Now()
	result, err := s.trainer.CreateModel(spec)
	if err != nil {
		s.log.WithError(err).WithField("model", spec.Name).Warn("scheduled retrain failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"model":    spec.Name,
		"version":  result.Version,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("scheduled retrain completed")
}
