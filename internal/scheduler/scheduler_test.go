// internal/scheduler/scheduler_test.go
package scheduler

import (
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	// Aucun orchestrateur: l'expression cron des tests ne déclenche
	// jamais de déploiement.
	return NewScheduler(nil, Options{Logger: logger})
}

// waitDone garde contre un Wait qui ne rend jamais la main.
func waitDone(t *testing.T, s *Scheduler) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	s := newTestScheduler(t)

	require.NoError(t, s.Start("0 0 1 1 *"))
	assert.True(t, s.IsRunning())
	assert.False(t, s.NextRun().IsZero())

	s.Stop()
	waitDone(t, s)
	assert.False(t, s.IsRunning())
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := newTestScheduler(t)

	require.NoError(t, s.Start("0 0 1 1 *"))
	s.Stop()
	s.Stop()
	waitDone(t, s)
}

func TestSchedulerStopsOnSignal(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Start("0 0 1 1 *"))

	// Le signal est intercepté par le scheduler, pas par le process de
	// test: l'arrêt doit se propager jusqu'à Wait.
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))
	waitDone(t, s)
	assert.False(t, s.IsRunning())
}

func TestSchedulerInvalidExpression(t *testing.T) {
	s := newTestScheduler(t)
	assert.Error(t, s.Start("every full moon"))
}

func TestSchedulerDoubleStart(t *testing.T) {
	s := newTestScheduler(t)

	require.NoError(t, s.Start("0 0 1 1 *"))
	assert.Error(t, s.Start("0 0 1 1 *"))

	s.Stop()
	waitDone(t, s)
}
