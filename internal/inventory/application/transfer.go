package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fuel-ledger/internal/auth"
	"fuel-ledger/internal/inventory/application/events"
	inventory "fuel-ledger/internal/inventory/domain"
	"fuel-ledger/internal/observability/metrics"
)

// TransferRequest moves fuel out of a lot. ToUnitID is required for internal
// kinds; ToLotID optionally pins the destination lot, otherwise the unit's open
// lot is credited or a new lot is created.
type TransferRequest struct {
	Kind         inventory.ActivityKind `json:"kind"`
	FromLotID    string                 `json:"from_lot_id"`
	VolumeLiters int64                  `json:"volume_liters"`
	ToUnitID     string                 `json:"to_unit_id,omitempty"`
	ToLotID      string                 `json:"to_lot_id,omitempty"`
	VehicleRef   string                 `json:"vehicle_ref,omitempty"`
	Note         string                 `json:"note,omitempty"`
}

// TransferResult is the committed outcome of a transfer.
type TransferResult struct {
	Transfer           *inventory.Transfer    `json:"transfer,omitempty"`
	TestingDraw        *inventory.TestingDraw `json:"testing_draw,omitempty"`
	Source             inventory.FuelLot      `json:"source"`
	Destination        *inventory.FuelLot     `json:"destination,omitempty"`
	DestinationCreated bool                   `json:"destination_created,omitempty"`
}

// TransferEngine applies internal transfers, sales and testing draws.
type TransferEngine struct {
	ledger    *LedgerService
	transfers inventory.TransferRepository
}

// NewTransferEngine constructs an engine sharing the ledger's unit of work.
func NewTransferEngine(ledger *LedgerService, transfers inventory.TransferRepository) (*TransferEngine, error) {
	if ledger == nil {
		return nil, errors.New("transfer engine: nil ledger")
	}
	if transfers == nil {
		return nil, errors.New("transfer engine: nil transfer repository")
	}
	return &TransferEngine{ledger: ledger, transfers: transfers}, nil
}

// Transfer validates and applies req as one unit of work. Any failure leaves
// both lots, the transfer log and the activity outbox untouched.
func (e *TransferEngine) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	start := time.Now()
	req.Kind = inventory.ActivityKind(strings.ToUpper(strings.TrimSpace(string(req.Kind))))
	result, err := e.transfer(ctx, req)
	metrics.ObserveTransfer(string(req.Kind), resultOf(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{
		zap.String("kind", string(req.Kind)),
		zap.String("from_lot", result.Source.LotCode),
		zap.Int64("volume_liters", req.VolumeLiters),
		zap.String("from_status", string(result.Source.StockStatus)),
	}
	if result.Destination != nil {
		fields = append(fields,
			zap.String("to_lot", result.Destination.LotCode),
			zap.Bool("to_lot_created", result.DestinationCreated),
		)
	}
	e.ledger.logger.Info("transfer recorded", fields...)
	return result, nil
}

func (e *TransferEngine) transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if !req.Kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", inventory.ErrInvalidKind, req.Kind)
	}
	if req.VolumeLiters <= 0 {
		return nil, fmt.Errorf("%w: volume must be positive, got %d", inventory.ErrVolumeOutOfRange, req.VolumeLiters)
	}
	if strings.TrimSpace(req.FromLotID) == "" {
		return nil, fmt.Errorf("%w: empty source lot id", inventory.ErrLotNotFound)
	}
	if req.Kind.IsInternal() {
		if strings.TrimSpace(req.ToUnitID) == "" {
			return nil, fmt.Errorf("%w: %s needs a destination unit", inventory.ErrInvalidTransfer, req.Kind)
		}
		if req.ToLotID == req.FromLotID {
			return nil, fmt.Errorf("%w: source and destination lot are the same", inventory.ErrInvalidTransfer)
		}
	} else if req.ToUnitID != "" || req.ToLotID != "" {
		return nil, fmt.Errorf("%w: %s takes no destination", inventory.ErrInvalidTransfer, req.Kind)
	}

	var result *TransferResult
	err := e.ledger.retry.run(ctx, "transfer", func(ctx context.Context) error {
		return e.ledger.tx.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			result, err = e.apply(ctx, req)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// apply runs inside the unit of work. Lots are locked in ascending id order
// before any check; the destination sequence key, if a new lot is needed, is
// locked last.
func (e *TransferEngine) apply(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	l := e.ledger
	implicitDest := false
	destID := req.ToLotID
	if req.Kind.IsInternal() && destID == "" {
		open, err := l.lots.LatestOpen(ctx, req.ToUnitID)
		switch {
		case err == nil:
			destID = open.ID
			implicitDest = true
		case !errors.Is(err, inventory.ErrLotNotFound):
			return nil, err
		}
	}

	locked, err := e.lockLots(ctx, req.FromLotID, destID)
	if err != nil {
		return nil, err
	}
	source := locked[req.FromLotID]

	sourceUnit, err := l.units.Get(ctx, source.UnitID)
	if err != nil {
		return nil, err
	}
	if err := req.Kind.CheckSource(sourceUnit.UnitType); err != nil {
		return nil, err
	}
	if err := l.debitLocked(ctx, source, req.VolumeLiters); err != nil {
		return nil, err
	}

	now := l.clock.Now().UTC()
	actor := auth.SubjectFromContext(ctx)
	result := &TransferResult{}

	if req.Kind == inventory.KindTesting {
		draw := &inventory.TestingDraw{
			ID:           uuid.NewString(),
			LotID:        source.ID,
			UnitID:       source.UnitID,
			VolumeLiters: req.VolumeLiters,
			Note:         req.Note,
			CreatedBy:    actor,
			OccurredAt:   now,
		}
		if err := e.transfers.InsertTestingDraw(ctx, draw); err != nil {
			return nil, err
		}
		err := l.events.Record(ctx, events.TestingDrawRecorded{
			EventID:        uuid.NewString(),
			TenantID:       l.tenant(ctx),
			DrawID:         draw.ID,
			UnitID:         draw.UnitID,
			LotID:          source.ID,
			LotCode:        source.LotCode,
			VolumeLiters:   draw.VolumeLiters,
			LotUsedLiters:  source.UsedLiters,
			LotStockStatus: string(source.StockStatus),
			Actor:          actor,
			OccurredAt:     now,
		})
		if err != nil {
			return nil, fmt.Errorf("record testing draw: %w", err)
		}
		result.TestingDraw = draw
		result.Source = *source
		return result, nil
	}

	transfer := &inventory.Transfer{
		ID:           uuid.NewString(),
		Kind:         req.Kind,
		FromLotID:    source.ID,
		FromUnitID:   source.UnitID,
		VolumeLiters: req.VolumeLiters,
		VehicleRef:   strings.TrimSpace(req.VehicleRef),
		Note:         req.Note,
		CreatedBy:    actor,
		OccurredAt:   now,
	}

	if req.Kind.IsInternal() {
		dest, created, err := e.credit(ctx, req, source, locked[destID], implicitDest)
		if err != nil {
			return nil, err
		}
		transfer.ToLotID = dest.ID
		transfer.ToUnitID = dest.UnitID
		result.Destination = dest
		result.DestinationCreated = created
	}

	if err := e.transfers.InsertTransfer(ctx, transfer); err != nil {
		return nil, err
	}
	recorded := events.TransferRecorded{
		EventID:          uuid.NewString(),
		TenantID:         l.tenant(ctx),
		TransferID:       transfer.ID,
		Kind:             string(transfer.Kind),
		UnitID:           transfer.FromUnitID,
		FromLotID:        source.ID,
		FromLotCode:      source.LotCode,
		ToUnitID:         transfer.ToUnitID,
		ToLotID:          transfer.ToLotID,
		DestinationIsNew: result.DestinationCreated,
		VolumeLiters:     transfer.VolumeLiters,
		FromUsedLiters:   source.UsedLiters,
		FromStockStatus:  string(source.StockStatus),
		VehicleRef:       transfer.VehicleRef,
		Actor:            actor,
		OccurredAt:       now,
	}
	if result.Destination != nil {
		recorded.ToLotCode = result.Destination.LotCode
	}
	if err := l.events.Record(ctx, recorded); err != nil {
		return nil, fmt.Errorf("record transfer: %w", err)
	}
	result.Transfer = transfer
	result.Source = *source
	return result, nil
}

// credit resolves the destination unit and tops up dest, or creates a new lot
// dated today when the unit has no open lot.
func (e *TransferEngine) credit(ctx context.Context, req TransferRequest, source, dest *inventory.FuelLot, implicit bool) (*inventory.FuelLot, bool, error) {
	l := e.ledger
	destUnit, err := l.units.RequireActive(ctx, req.ToUnitID)
	if err != nil {
		return nil, false, err
	}
	if destUnit.ID == source.UnitID {
		return nil, false, fmt.Errorf("%w: source and destination unit are the same", inventory.ErrInvalidTransfer)
	}
	if err := req.Kind.CheckDestination(destUnit.UnitType); err != nil {
		return nil, false, err
	}

	if dest != nil {
		if dest.UnitID != destUnit.ID {
			return nil, false, fmt.Errorf("%w: lot %s is not held by unit %s", inventory.ErrInvalidTransfer, dest.LotCode, destUnit.UnitCode)
		}
		if implicit && !dest.IsOpen() {
			// Sold out between selection and lock; the retry picks again.
			return nil, false, fmt.Errorf("%w: open lot %s changed state", inventory.ErrSequenceContention, dest.LotCode)
		}
		if err := l.creditLocked(ctx, dest, req.VolumeLiters); err != nil {
			return nil, false, err
		}
		return dest, false, nil
	}

	created, err := l.createLot(ctx, *destUnit, l.Today(), req.VolumeLiters, inventory.LotOriginTransfer)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (e *TransferEngine) lockLots(ctx context.Context, ids ...string) (map[string]*inventory.FuelLot, error) {
	ordered := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			ordered = append(ordered, id)
		}
	}
	sort.Strings(ordered)
	locked := make(map[string]*inventory.FuelLot, len(ordered))
	for _, id := range ordered {
		if _, ok := locked[id]; ok {
			continue
		}
		lot, err := e.ledger.lots.GetForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = lot
	}
	return locked, nil
}

// ListTransfers returns internal transfers and sales. Testing draws are never included.
func (e *TransferEngine) ListTransfers(ctx context.Context, filter inventory.TransferFilter) ([]inventory.Transfer, error) {
	if filter.Kind != "" && (!filter.Kind.IsValid() || filter.Kind == inventory.KindTesting) {
		return nil, fmt.Errorf("%w: kind %q", inventory.ErrInvalidFilter, filter.Kind)
	}
	return e.transfers.ListTransfers(ctx, filter)
}

// ListTestingDraws returns testing draws.
func (e *TransferEngine) ListTestingDraws(ctx context.Context, filter inventory.TransferFilter) ([]inventory.TestingDraw, error) {
	filter.Kind = ""
	return e.transfers.ListTestingDraws(ctx, filter)
}
