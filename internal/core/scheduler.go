package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// garbageCollector is implemented by stores that compact on demand.
type garbageCollector interface {
	RunGC() error
}

// Scheduler runs background maintenance while the server is up: periodic
// reconciliation and, for stores that support it, value log compaction.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *Service
	logger    *zap.Logger
	timeout   time.Duration
}

// SchedulerConfig sets job intervals. Zero disables a job.
type SchedulerConfig struct {
	ReconcileInterval time.Duration
	GCInterval        time.Duration
	// JobTimeout bounds one reconcile pass. Defaults to the reconcile interval.
	JobTimeout time.Duration
}

// NewScheduler registers the maintenance jobs without starting them.
func NewScheduler(svc *Service, cfg SchedulerConfig) (*Scheduler, error) {
	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   svc,
		logger:    svc.logger.Named("scheduler"),
		timeout:   cfg.JobTimeout,
	}
	if s.timeout <= 0 {
		s.timeout = cfg.ReconcileInterval
	}
	s.scheduler.SingletonModeAll()
	if cfg.ReconcileInterval > 0 {
		if _, err := s.scheduler.Every(cfg.ReconcileInterval).WaitForSchedule().Tag("reconcile").Do(s.reconcile); err != nil {
			return nil, fmt.Errorf("schedule reconcile: %w", err)
		}
	}
	if gc, ok := svc.store.(garbageCollector); ok && cfg.GCInterval > 0 {
		if _, err := s.scheduler.Every(cfg.GCInterval).WaitForSchedule().Tag("gc").Do(s.collect, gc); err != nil {
			return nil, fmt.Errorf("schedule gc: %w", err)
		}
	}
	return s, nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int { return s.scheduler.Len() }

// Start runs the jobs in the background.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", zap.Int("jobs", s.Jobs()))
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.service.ReconcileAll(ctx); err != nil {
		s.logger.Error("scheduled reconcile failed", zap.Error(err))
	}
}

func (s *Scheduler) collect(gc garbageCollector) {
	if err := gc.RunGC(); err != nil {
		s.logger.Warn("value log gc failed", zap.Error(err))
	}
}
