package scheduler

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galleyhq/sommelier/pkg/models"
)

// stubTrainer records CreateModel calls.
type stubTrainer struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (s *stubTrainer) CreateModel(spec models.ModelSpec) (*models.CreateModelResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, fmt.Errorf("training unavailable")
	}
	s.calls = append(s.calls, spec.Name)
	return &models.CreateModelResult{ModelID: "id", Version: len(s.calls)}, nil
}

func (s *stubTrainer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func cfSpec(name string) models.ModelSpec {
	return models.ModelSpec{Name: name, Type: models.ModelTypeCollaborativeFiltering}
}

func TestScheduleRetrain(t *testing.T) {
	trainer := &stubTrainer{}
	service := NewService(trainer)

	t.Run("valid schedule registers the job", func(t *testing.T) {
		require.NoError(t, service.ScheduleRetrain(cfSpec("wine-cf"), "0 3 * * *"))
		assert.Equal(t, []string{"wine-cf"}, service.ScheduledModels())
	})

	t.Run("rescheduling replaces instead of stacking", func(t *testing.T) {
		require.NoError(t, service.ScheduleRetrain(cfSpec("wine-cf"), "30 4 * * *"))
		assert.Len(t, service.ScheduledModels(), 1)
	})

	t.Run("invalid cron expression is rejected", func(t *testing.T) {
		assert.Error(t, service.ScheduleRetrain(cfSpec("other"), "not a schedule"))
	})

	t.Run("invalid spec is rejected", func(t *testing.T) {
		assert.Error(t, service.ScheduleRetrain(models.ModelSpec{Name: "x", Type: "bad"}, "0 3 * * *"))
		assert.Error(t, service.ScheduleRetrain(models.ModelSpec{Type: models.ModelTypeContentBased}, "0 3 * * *"))
	})

	t.Run("unschedule removes the job", func(t *testing.T) {
		service.Unschedule("wine-cf")
		assert.Empty(t, service.ScheduledModels())
		service.Unschedule("never-registered")
	})
}

func TestRetrainInvokesTrainer(t *testing.T) {
	trainer := &stubTrainer{}
	service := NewService(trainer)

	service.retrain(cfSpec("wine-cf"))
	service.retrain(cfSpec("wine-cf"))
	assert.Equal(t, 2, trainer.callCount())
}

func TestRetrainFailureIsNonFatal(t *testing.T) {
	trainer := &stubTrainer{fail: true}
	service := NewService(trainer)

	// A failed run only logs; the scheduler keeps its jobs.
	require.NoError(t, service.ScheduleRetrain(cfSpec("wine-cf"), "0 3 * * *"))
	service.retrain(cfSpec("wine-cf"))
	assert.Len(t, service.ScheduledModels(), 1)
	assert.Equal(t, 0, trainer.callCount())
}

func TestStartStop(t *testing.T) {
	service := NewService(&stubTrainer{})
	require.NoError(t, service.ScheduleRetrain(cfSpec("wine-cf"), "0 3 * * *"))

	service.Start()
	service.Stop()
}
