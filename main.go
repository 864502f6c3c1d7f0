package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fuel-ledger/internal/activity"
	"fuel-ledger/internal/auth"
	"fuel-ledger/internal/config"
	"fuel-ledger/internal/database"
	"fuel-ledger/internal/eventing"
	eventingmem "fuel-ledger/internal/eventing/infrastructure/memory"
	eventingrepo "fuel-ledger/internal/eventing/infrastructure/postgres"
	"fuel-ledger/internal/inventory/application"
	inventory "fuel-ledger/internal/inventory/domain"
	"fuel-ledger/internal/inventory/infrastructure/memory"
	inventoryrepo "fuel-ledger/internal/inventory/infrastructure/postgres"
	ledgerhttp "fuel-ledger/internal/inventory/interfaces/http"
	"fuel-ledger/internal/logging"
	"fuel-ledger/internal/observability/metrics"
	"fuel-ledger/internal/scheduler"
)

// storage bundles the persistence ports of one backend.
type storage struct {
	tx        inventory.UnitOfWork
	units     inventory.UnitRepository
	sequences inventory.SequenceRepository
	lots      inventory.LotRepository
	transfers inventory.TransferRepository
	outbox    interface {
		eventing.OutboxWriter
		eventing.OutboxStore
	}
	processed interface {
		eventing.ProcessedStore
		scheduler.Purger
	}
	dlq      eventing.DLQStore
	trail    activity.Sink
	reader   activity.Reader
	closeAll func()
}

func main() {
	logger := logging.Must(logging.New())
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}
	loc, _ := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage error", zap.Error(err))
	}
	defer store.closeAll()

	units, err := application.NewUnitRegistry(store.units, logging.Named(logger, "units"))
	if err != nil {
		logger.Fatal("unit registry error", zap.Error(err))
	}
	seeds, err := cfg.SeedUnits()
	if err != nil {
		logger.Fatal("unit seeds error", zap.Error(err))
	}
	if err := units.Seed(ctx, seeds); err != nil {
		logger.Fatal("unit seeding error", zap.Error(err))
	}

	sequencer, err := application.NewLotSequencer(store.sequences)
	if err != nil {
		logger.Fatal("sequencer error", zap.Error(err))
	}
	publisher := eventing.NewPublisher(store.outbox, cfg.TenantID)
	ledger, err := application.NewLedgerService(store.tx, units, sequencer, store.lots, publisher,
		application.WithClock(inventory.SystemClock{Location: loc}),
		application.WithLogger(logging.Named(logger, "ledger")),
		application.WithTenantID(cfg.TenantID),
		application.WithContentionRetry(cfg.Ledger.SequenceRetries, cfg.Ledger.RetryBackoff),
	)
	if err != nil {
		logger.Fatal("ledger error", zap.Error(err))
	}
	engine, err := application.NewTransferEngine(ledger, store.transfers)
	if err != nil {
		logger.Fatal("transfer engine error", zap.Error(err))
	}

	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry(activity.EventTypes()...)
	sinks := []activity.Sink{store.trail}
	if len(cfg.Activity.KafkaBrokers) > 0 {
		kafkaSink := activity.NewKafkaSink(cfg.Activity.KafkaBrokers, cfg.Activity.KafkaTopic)
		defer func() { _ = kafkaSink.Close() }()
		sinks = append(sinks, kafkaSink)
	}
	if cfg.Activity.WebhookURL != "" {
		sinks = append(sinks, activity.NewWebhookSink(cfg.Activity.WebhookURL, cfg.Activity.WebhookToken, cfg.Activity.AppendTimeout))
	}
	activity.NewTrail(sinks,
		activity.WithAppendTimeout(cfg.Activity.AppendTimeout),
		activity.WithLogger(logging.Named(logger, "activity")),
	).Subscribe(bus, store.processed)

	dispatcher := eventing.NewDispatcher(bus, store.outbox, registry, store.dlq,
		eventing.WithDispatchLogger(logging.Named(logger, "outbox")),
		eventing.WithMaxAttempts(cfg.Outbox.MaxAttempts),
	)
	jobs := scheduler.New(scheduler.Config{
		RelaySchedule:      cfg.Outbox.RelaySchedule,
		RelayBatchSize:     cfg.Outbox.BatchSize,
		SnapshotSchedule:   cfg.Ledger.SnapshotCron,
		PurgeSchedule:      cfg.Outbox.PurgeSchedule,
		ProcessedRetention: cfg.Outbox.ProcessedRetention,
		Location:           loc,
	}, dispatcher, ledger, store.processed, logging.Named(logger, "scheduler"))
	if err := jobs.Start(); err != nil {
		logger.Fatal("scheduler error", zap.Error(err))
	}

	handler, err := ledgerhttp.NewHandler(units, ledger, engine, store.reader, logging.Named(logger, "http"))
	if err != nil {
		logger.Fatal("http handler error", zap.Error(err))
	}
	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           logging.Middleware(authMiddleware.Wrap(mux), logging.Named(logger, "http"), metrics.IncHTTPRequest),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}
	jobs.Stop(shutdownCtx)
	jobs.RunRelay(shutdownCtx)
	logger.Info("stopped")
}

func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		metrics.Init(nil, logger)
		store := memory.NewStore(memory.WithLockWait(cfg.Ledger.LockWait))
		sink := activity.NewMemorySink()
		return &storage{
			tx:        store,
			units:     store.Units(),
			sequences: store.Sequences(),
			lots:      store.Lots(),
			transfers: store.Transfers(),
			outbox:    store.Outbox(),
			processed: eventingmem.NewProcessedStore(),
			dlq:       eventingmem.NewDLQStore(),
			trail:     sink,
			reader:    sink,
			closeAll:  func() {},
		}, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	metrics.Init(db, logger)
	trail := activity.NewRepository(db)
	return &storage{
		tx:        database.NewTxManager(db, database.WithLockTimeout(fmt.Sprintf("%dms", cfg.Ledger.LockWait.Milliseconds()))),
		units:     inventoryrepo.NewUnitRepository(db),
		sequences: inventoryrepo.NewSequenceRepository(db),
		lots:      inventoryrepo.NewLotRepository(db),
		transfers: inventoryrepo.NewTransferRepository(db),
		outbox:    eventingrepo.NewOutboxStore(db),
		processed: eventingrepo.NewProcessedStore(db),
		dlq:       eventingrepo.NewDLQStore(db),
		trail:     trail,
		reader:    trail,
		closeAll:  func() { _ = db.Close() },
	}, nil
}
