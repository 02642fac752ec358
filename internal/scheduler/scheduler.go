// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"stagehand/internal/remote"
	"stagehand/internal/types/options"
)

// Scheduler déclenche des déploiements planifiés via une expression
// cron classique à 5 champs.
type Scheduler struct {
	orchestrator *remote.Orchestrator
	cron         *cron.Cron
	stages       []string
	deployOpts   *options.DeployOptions
	logger       *logrus.Logger

	stopChan chan struct{}
	running  bool
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// Options configure le scheduler.
type Options struct {
	Stages     []string
	DeployOpts *options.DeployOptions
	Logger     *logrus.Logger
}

// NewScheduler crée un scheduler pour l'orchestrateur donné.
func NewScheduler(orchestrator *remote.Orchestrator, opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		orchestrator: orchestrator,
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
		stages:     opts.Stages,
		deployOpts: opts.DeployOpts,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start planifie les déploiements et démarre le cron. L'arrêt se fait
// par Stop ou par SIGINT/SIGTERM.
func (s *Scheduler) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if _, err := s.cron.AddFunc(cronExpr, s.runScheduledDeploy); err != nil {
		return fmt.Errorf("invalid cron expression '%s': %w", cronExpr, err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Infof("scheduler started with expression: %s", cronExpr)

	// Arrêt propre sur signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case sig := <-sigChan:
			s.logger.Infof("received signal %v, stopping scheduler", sig)
			s.Stop()
		case <-s.stopChan:
		}
	}()

	return nil
}

// runScheduledDeploy exécute un déploiement planifié.
func (s *Scheduler) runScheduledDeploy() {
	s.logger.Info("scheduled deployment starting")

	results, err := s.orchestrator.Deploy(context.Background(), s.stages, s.deployOpts)
	for _, result := range results {
		if result.Success {
			s.logger.Infof("✓ %s: %d services redeployed", result.Stage, len(result.Services))
		} else {
			s.logger.Errorf("✗ %s: %s", result.Stage, result.Error)
		}
	}
	if err != nil {
		s.logger.Errorf("scheduled deployment finished with errors: %v", err)
		return
	}
	s.logger.Info("scheduled deployment completed")
}

// Stop déclenche l'arrêt sans attendre. Appelable depuis la goroutine
// de signal: l'attente des goroutines se fait dans Wait, jamais ici,
// sous peine d'attendre sa propre entrée du WaitGroup.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
}

// Wait bloque jusqu'à l'arrêt complet: cron drainé, goroutines finies.
func (s *Scheduler) Wait() {
	<-s.stopChan
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// IsRunning indique si le scheduler tourne.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun retourne la date de la prochaine exécution planifiée.
func (s *Scheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
