package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fuel-ledger/internal/auth"
	"fuel-ledger/internal/inventory/application/events"
	inventory "fuel-ledger/internal/inventory/domain"
	"fuel-ledger/internal/observability/metrics"
)

// CreateLotRequest describes a load into a storage unit. A zero LoadDate means today.
type CreateLotRequest struct {
	UnitID       string    `json:"unit_id"`
	LoadDate     time.Time `json:"load_date"`
	LoadedLiters int64     `json:"loaded_liters"`
}

// LotCodePreview is a non-binding guess of the next lot code.
type LotCodePreview struct {
	UnitID   string    `json:"unit_id"`
	LoadDate time.Time `json:"load_date"`
	SeqIndex int       `json:"seq_index"`
	LotCode  string    `json:"lot_code"`
}

// LedgerService creates lots and applies debits under per-key locks.
type LedgerService struct {
	tx       inventory.UnitOfWork
	units    *UnitRegistry
	seq      *LotSequencer
	lots     inventory.LotRepository
	events   inventory.EventRecorder
	clock    inventory.Clock
	logger   *zap.Logger
	tenantID string
	retry    retryPolicy
}

// LedgerOption customizes the ledger.
type LedgerOption func(*LedgerService)

// WithClock assigns a clock.
func WithClock(clock inventory.Clock) LedgerOption {
	return func(s *LedgerService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) LedgerOption {
	return func(s *LedgerService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTenantID sets the tenant stamped on events when the request carries none.
func WithTenantID(tenantID string) LedgerOption {
	return func(s *LedgerService) {
		s.tenantID = tenantID
	}
}

// WithContentionRetry sets how many times a unit of work is retried after
// ErrSequenceContention and the base backoff between tries.
func WithContentionRetry(retries int, backoff time.Duration) LedgerOption {
	return func(s *LedgerService) {
		if retries >= 0 {
			s.retry.attempts = retries
		}
		if backoff > 0 {
			s.retry.backoff = backoff
		}
	}
}

// NewLedgerService constructs the ledger.
func NewLedgerService(tx inventory.UnitOfWork, units *UnitRegistry, seq *LotSequencer, lots inventory.LotRepository, recorder inventory.EventRecorder, opts ...LedgerOption) (*LedgerService, error) {
	if tx == nil {
		return nil, errors.New("ledger: nil unit of work")
	}
	if units == nil || seq == nil {
		return nil, errors.New("ledger: nil unit registry or sequencer")
	}
	if lots == nil {
		return nil, errors.New("ledger: nil lot repository")
	}
	if recorder == nil {
		return nil, errors.New("ledger: nil event recorder")
	}
	s := &LedgerService{
		tx:     tx,
		units:  units,
		seq:    seq,
		lots:   lots,
		events: recorder,
		clock:  inventory.SystemClock{},
		logger: zap.NewNop(),
		retry:  retryPolicy{attempts: defaultRetries, backoff: defaultBackoff},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry.logger = s.logger
	return s, nil
}

// Today returns the clock's current calendar date.
func (s *LedgerService) Today() time.Time {
	return inventory.NormalizeDate(s.clock.Now())
}

// CreateLot loads fuel into a unit as a new lot. The unit read, sequence
// allocation, insert and activity record form one unit of work.
func (s *LedgerService) CreateLot(ctx context.Context, req CreateLotRequest) (*inventory.FuelLot, error) {
	start := time.Now()
	loadDate := req.LoadDate
	if loadDate.IsZero() {
		loadDate = s.Today()
	}

	var lot *inventory.FuelLot
	err := s.retry.run(ctx, "create_lot", func(ctx context.Context) error {
		return s.tx.RunInTx(ctx, func(ctx context.Context) error {
			unit, err := s.units.RequireActive(ctx, req.UnitID)
			if err != nil {
				return err
			}
			lot, err = s.createLot(ctx, *unit, loadDate, req.LoadedLiters, inventory.LotOriginLoad)
			return err
		})
	})
	metrics.ObserveLotCreate(string(inventory.LotOriginLoad), resultOf(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	s.logger.Info("lot created",
		zap.String("lot_id", lot.ID),
		zap.String("lot_code", lot.LotCode),
		zap.String("unit_code", lot.UnitCode),
		zap.Int64("loaded_liters", lot.LoadedLiters),
	)
	return lot, nil
}

// createLot runs inside the caller's unit of work. The volume is checked
// before the sequence key is locked, so a rejected load reserves nothing.
func (s *LedgerService) createLot(ctx context.Context, unit inventory.StorageUnit, loadDate time.Time, liters int64, origin inventory.LotOrigin) (*inventory.FuelLot, error) {
	if err := inventory.CheckLoadVolume(unit, liters); err != nil {
		return nil, err
	}
	seqIndex, err := s.seq.Next(ctx, unit.ID, loadDate)
	if err != nil {
		return nil, err
	}
	lot, err := inventory.NewFuelLot(inventory.NewLotParams{
		ID:           uuid.NewString(),
		Unit:         unit,
		LoadDate:     loadDate,
		SeqIndex:     seqIndex,
		LoadedLiters: liters,
		Origin:       origin,
		Now:          s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.lots.Insert(ctx, lot); err != nil {
		return nil, err
	}
	err = s.events.Record(ctx, events.LotCreated{
		EventID:      uuid.NewString(),
		TenantID:     s.tenant(ctx),
		LotID:        lot.ID,
		LotCode:      lot.LotCode,
		UnitID:       lot.UnitID,
		UnitCode:     lot.UnitCode,
		LoadDate:     lot.LoadDate,
		SeqIndex:     lot.SeqIndex,
		LoadedLiters: lot.LoadedLiters,
		Origin:       string(lot.Origin),
		Actor:        auth.SubjectFromContext(ctx),
		OccurredAt:   lot.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("record lot created: %w", err)
	}
	return lot, nil
}

// DebitLot consumes amount liters from a lot. It must run inside the caller's
// unit of work: the lot stays locked until that unit ends.
func (s *LedgerService) DebitLot(ctx context.Context, lotID string, amount int64) (*inventory.FuelLot, error) {
	lot, err := s.lots.GetForUpdate(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if err := s.debitLocked(ctx, lot, amount); err != nil {
		return nil, err
	}
	return lot, nil
}

func (s *LedgerService) debitLocked(ctx context.Context, lot *inventory.FuelLot, amount int64) error {
	if err := lot.Debit(amount, s.clock.Now()); err != nil {
		return err
	}
	return s.lots.UpdateBalance(ctx, lot)
}

func (s *LedgerService) creditLocked(ctx context.Context, lot *inventory.FuelLot, amount int64) error {
	if err := lot.Credit(amount, s.clock.Now()); err != nil {
		return err
	}
	return s.lots.UpdateBalance(ctx, lot)
}

// GetLot returns a lot by id.
func (s *LedgerService) GetLot(ctx context.Context, lotID string) (*inventory.FuelLot, error) {
	if strings.TrimSpace(lotID) == "" {
		return nil, fmt.Errorf("%w: empty lot id", inventory.ErrLotNotFound)
	}
	return s.lots.Get(ctx, lotID)
}

// GetLotByCode returns a lot by its code.
func (s *LedgerService) GetLotByCode(ctx context.Context, code string) (*inventory.FuelLot, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: empty lot code", inventory.ErrLotNotFound)
	}
	return s.lots.GetByCode(ctx, code)
}

// ListLots returns lots matching filter.
func (s *LedgerService) ListLots(ctx context.Context, filter inventory.LotFilter) ([]inventory.FuelLot, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown stock status %q", inventory.ErrInvalidFilter, filter.Status)
	}
	return s.lots.List(ctx, filter)
}

// PreviewNextCode shows the code the next load would likely get. Nothing is
// reserved; a concurrent load may take the index first.
func (s *LedgerService) PreviewNextCode(ctx context.Context, unitID string, loadDate time.Time, liters int64) (*LotCodePreview, error) {
	unit, err := s.units.RequireActive(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if err := inventory.CheckLoadVolume(*unit, liters); err != nil {
		return nil, err
	}
	if loadDate.IsZero() {
		loadDate = s.Today()
	}
	loadDate = inventory.NormalizeDate(loadDate)
	seqIndex, err := s.seq.Preview(ctx, unit.ID, loadDate)
	if err != nil {
		return nil, err
	}
	return &LotCodePreview{
		UnitID:   unit.ID,
		LoadDate: loadDate,
		SeqIndex: seqIndex,
		LotCode:  inventory.GenLotCode(unit.UnitCode, loadDate, seqIndex, liters),
	}, nil
}

func (s *LedgerService) tenant(ctx context.Context) string {
	if tenantID := auth.TenantIDFromContext(ctx); tenantID != "" {
		return tenantID
	}
	return s.tenantID
}
