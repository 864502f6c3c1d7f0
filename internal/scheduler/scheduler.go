package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"fuel-ledger/internal/eventing"
	"fuel-ledger/internal/inventory/application"
)

// Relay drains pending outbox records.
type Relay interface {
	Dispatch(ctx context.Context, limit int) (eventing.DispatchResult, error)
}

// StockReader summarizes on-hand stock.
type StockReader interface {
	StockOnHand(ctx context.Context) ([]application.UnitStock, error)
}

// Purger drops idempotency markers older than cutoff.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds job schedules in standard five-field cron syntax or @every.
type Config struct {
	RelaySchedule      string
	RelayBatchSize     int
	SnapshotSchedule   string
	PurgeSchedule      string
	ProcessedRetention time.Duration
	Location           *time.Location
}

// Scheduler runs the background jobs of the ledger.
type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	relay  Relay
	stock  StockReader
	purger Purger
	logger *zap.Logger
}

// New creates a scheduler. stock and purger may be nil.
func New(cfg Config, relay Relay, stock StockReader, purger Purger, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RelayBatchSize <= 0 {
		cfg.RelayBatchSize = 100
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(cfg.Location), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cfg:    cfg,
		relay:  relay,
		stock:  stock,
		purger: purger,
		logger: logger,
	}
}

// Start registers the configured jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")
	if s.relay != nil && s.cfg.RelaySchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.RelaySchedule, func() { s.RunRelay(context.Background()) }); err != nil {
			return fmt.Errorf("scheduler: relay schedule %q: %w", s.cfg.RelaySchedule, err)
		}
	}
	if s.stock != nil && s.cfg.SnapshotSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.SnapshotSchedule, func() { s.RunSnapshot(context.Background()) }); err != nil {
			return fmt.Errorf("scheduler: snapshot schedule %q: %w", s.cfg.SnapshotSchedule, err)
		}
	}
	if s.purger != nil && s.cfg.PurgeSchedule != "" && s.cfg.ProcessedRetention > 0 {
		if _, err := s.cron.AddFunc(s.cfg.PurgeSchedule, func() { s.RunPurge(context.Background()) }); err != nil {
			return fmt.Errorf("scheduler: purge schedule %q: %w", s.cfg.PurgeSchedule, err)
		}
	}
	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("stopping scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunRelay drains the outbox until a batch comes back short.
func (s *Scheduler) RunRelay(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	for {
		result, err := s.relay.Dispatch(ctx, s.cfg.RelayBatchSize)
		if err != nil {
			s.logger.Error("outbox relay failed", zap.Error(err))
			return
		}
		if result.Claimed > 0 {
			s.logger.Info("outbox relayed",
				zap.Int("claimed", result.Claimed),
				zap.Int("sent", result.Sent),
				zap.Int("failed", result.Failed),
				zap.Int("dead", result.Dead),
			)
		}
		if result.Claimed < s.cfg.RelayBatchSize || result.Failed > 0 || ctx.Err() != nil {
			return
		}
	}
}

// RunSnapshot logs on-hand stock per unit.
func (s *Scheduler) RunSnapshot(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	stock, err := s.stock.StockOnHand(ctx)
	if err != nil {
		s.logger.Error("stock snapshot failed", zap.Error(err))
		return
	}
	var total int64
	for _, row := range stock {
		total += row.RemainingLiters
		s.logger.Info("stock snapshot",
			zap.String("unit_id", row.UnitID),
			zap.String("unit_code", row.UnitCode),
			zap.Int("open_lots", row.OpenLots),
			zap.Int64("remaining_liters", row.RemainingLiters),
		)
	}
	s.logger.Info("stock snapshot total", zap.Int("units", len(stock)), zap.Int64("remaining_liters", total))
}

// RunPurge removes idempotency markers past the retention window.
func (s *Scheduler) RunPurge(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.cfg.ProcessedRetention)
	removed, err := s.purger.Purge(ctx, cutoff)
	if err != nil {
		s.logger.Error("processed events purge failed", zap.Error(err))
		return
	}
	s.logger.Info("processed events purged", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
}
