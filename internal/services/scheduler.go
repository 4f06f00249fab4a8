package services

import (
	"context"
	"fmt"
	"time"

	"github.com/huangang/projecthub/internal/config"
	"github.com/huangang/projecthub/pkg/logger"
	"github.com/robfig/cron/v3"
)

const maintenanceJobTimeout = 5 * time.Minute

// Scheduler runs periodic maintenance: tag counter reconciliation and
// activity log retention.
type Scheduler struct {
	cron    *cron.Cron
	cfg     config.SchedulerConfig
	tags    *TagService
	logs    *SystemLogService
	entries []cron.EntryID
}

func NewScheduler(cfg config.SchedulerConfig, tags *TagService, logs *SystemLogService) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		cfg:  cfg,
		tags: tags,
		logs: logs,
	}
}

// Start registers the jobs and starts the cron loop. An invalid
// expression fails Start without starting anything.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"tag reconcile", s.cfg.TagReconcileCron, s.ReconcileTags},
		{"log cleanup", s.cfg.LogCleanupCron, s.CleanupLogs},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		id, err := s.cron.AddFunc(job.spec, job.run)
		if err != nil {
			for _, added := range s.entries {
				s.cron.Remove(added)
			}
			s.entries = nil
			return fmt.Errorf("schedule %s (%q): %w", job.name, job.spec, err)
		}
		s.entries = append(s.entries, id)
		logger.Infof("[Scheduler] %s scheduled (cron: %s)", job.name, job.spec)
	}

	s.cron.Start()
	logger.Infof("[Scheduler] started with %d job(s)", len(s.entries))
	return nil
}

// Stop halts the loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Infof("[Scheduler] stopped")
}

func (s *Scheduler) ReconcileTags() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
	defer cancel()

	fixed, err := s.tags.ReconcileCounts(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("[Scheduler] tag reconcile failed")
		return
	}
	if fixed > 0 {
		logger.Info().Int("fixed", fixed).Msg("[Scheduler] tag counters reconciled")
	}
}

func (s *Scheduler) CleanupLogs() {
	if s.cfg.LogRetentionDays <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
	defer cancel()

	deleted, err := s.logs.CleanupOldLogs(ctx, s.cfg.LogRetentionDays)
	if err != nil {
		logger.Error().Err(err).Msg("[Scheduler] log cleanup failed")
		return
	}
	if deleted > 0 {
		logger.Info().Int64("deleted", deleted).Int("retention_days", s.cfg.LogRetentionDays).
			Msg("[Scheduler] old logs cleaned up")
	}
}
