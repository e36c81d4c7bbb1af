package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultMaxTraceAge   = 10 * time.Minute
	defaultRetentionDays = 7
)

// DataCleaner purges aged execution data; implemented by the history layer.
type DataCleaner interface {
	CleanupOldData(ctx context.Context, retentionDays int) (int, error)
}

type SweeperConfig struct {
	// SweepInterval is the period between sweep runs.
	SweepInterval time.Duration
	// MaxTraceAge is the age past which a still-active trace is force-failed
	// as TIMEOUT.
	MaxTraceAge time.Duration
	// RetentionDays is the horizon handed to the data cleaner.
	RetentionDays int
}

func (c *SweeperConfig) ApplyDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.MaxTraceAge <= 0 {
		c.MaxTraceAge = defaultMaxTraceAge
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = defaultRetentionDays
	}
}

// Sweeper runs the retention sweep as a background task: it is the only
// source of unsolicited cancellation in the core, and it always records
// expired traces as TIMEOUT rather than silently discarding them.
type Sweeper struct {
	tracker *CorrelationTracker
	cleaner DataCleaner
	config  SweeperConfig
	logger  *zap.Logger
}

// NewSweeper creates a sweeper. cleaner may be nil when no history retention
// is configured.
func NewSweeper(tracker *CorrelationTracker, cleaner DataCleaner, config SweeperConfig, logger *zap.Logger) *Sweeper {
	config.ApplyDefaults()
	return &Sweeper{
		tracker: tracker,
		cleaner: cleaner,
		config:  config,
		logger:  logger,
	}
}

// Start launches the periodic sweep loop in its own goroutine and returns
// immediately. The loop stops when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Sweeper stopped")
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce executes a single sweep pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	swept := s.tracker.CleanupOldTraces(s.config.MaxTraceAge)
	if s.cleaner == nil {
		return
	}
	removed, err := s.cleaner.CleanupOldData(ctx, s.config.RetentionDays)
	if err != nil {
		s.logger.Error("Failed to clean up old execution data", zap.Error(err))
		return
	}
	if swept > 0 || removed > 0 {
		s.logger.Info("Sweep pass finished",
			zap.Int("traces_timed_out", swept),
			zap.Int("records_removed", removed),
		)
	}
}
