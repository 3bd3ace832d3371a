package services

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// PartitionCleaner removes result partitions older than a retention window.
type PartitionCleaner interface {
	CleanupOlderThan(keepDays int) (int, error)
}

// RetentionService deletes expired result partitions on a cron schedule.
// It never touches the current day's partition as long as retention is at
// least one day.
type RetentionService struct {
	cleaner  PartitionCleaner
	keepDays int
	schedule string
	logger   zerolog.Logger

	cron *cron.Cron
}

// NewRetentionService creates a retention service running at the given cron
// schedule (standard five-field syntax), keeping keepDays of partitions.
func NewRetentionService(cleaner PartitionCleaner, keepDays int, schedule string, logger zerolog.Logger) (*RetentionService, error) {
	if keepDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", keepDays)
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	return &RetentionService{
		cleaner:  cleaner,
		keepDays: keepDays,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Start begins the cleanup schedule.
func (r *RetentionService) Start() error {
	if r.cron != nil {
		r.logger.Warn().Msg("RetentionService is already running")
		return errors.New("retention service is already running")
	}

	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.schedule, r.runCleanup); err != nil {
		r.cron = nil
		return fmt.Errorf("failed to schedule retention job: %w", err)
	}
	r.cron.Start()

	r.logger.Info().Str("schedule", r.schedule).Int("keep_days", r.keepDays).Msg("RetentionService started successfully")
	return nil
}

// Stop halts the schedule and waits for a cleanup in progress to finish.
func (r *RetentionService) Stop() error {
	if r.cron == nil {
		r.logger.Warn().Msg("RetentionService is not running")
		return errors.New("retention service is not running")
	}

	ctx := r.cron.Stop()
	<-ctx.Done()
	r.cron = nil

	r.logger.Info().Msg("RetentionService stopped successfully")
	return nil
}

func (r *RetentionService) runCleanup() {
	deleted, err := r.cleaner.CleanupOlderThan(r.keepDays)
	if err != nil {
		r.logger.Error().Err(err).Msg("Partition cleanup failed")
		return
	}
	if deleted > 0 {
		r.logger.Info().Int("deleted", deleted).Msg("Expired result partitions removed")
	}
}
