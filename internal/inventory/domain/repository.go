package inventory

import (
	"context"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Location *time.Location
}

// Now returns the current time.
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// UnitOfWork runs fn atomically. The transaction travels in the context passed to fn;
// repositories called with that context join it. Any error rolls everything back.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UnitRepository stores storage units.
type UnitRepository interface {
	Get(ctx context.Context, id string) (*StorageUnit, error)
	Save(ctx context.Context, unit *StorageUnit) error
	List(ctx context.Context) ([]StorageUnit, error)
}

// SequenceRepository keeps the per (unit, date) lot counter.
type SequenceRepository interface {
	// Next locks the (unit, date) key until the unit of work ends and returns the incremented counter.
	Next(ctx context.Context, unitID string, loadDate time.Time) (int, error)
	// Current returns the last assigned index without locking; 0 when none.
	Current(ctx context.Context, unitID string, loadDate time.Time) (int, error)
}

// LotFilter narrows lot listings.
type LotFilter struct {
	UnitID string
	Status StockStatus
	From   time.Time
	To     time.Time
	Limit  int
}

// LotRepository stores fuel lots.
type LotRepository interface {
	Insert(ctx context.Context, lot *FuelLot) error
	Get(ctx context.Context, id string) (*FuelLot, error)
	GetByCode(ctx context.Context, code string) (*FuelLot, error)
	// GetForUpdate locks the lot until the unit of work ends.
	GetForUpdate(ctx context.Context, id string) (*FuelLot, error)
	// LatestOpen returns the most recent INSTOCK lot of a unit without locking it, or ErrLotNotFound.
	LatestOpen(ctx context.Context, unitID string) (*FuelLot, error)
	UpdateBalance(ctx context.Context, lot *FuelLot) error
	List(ctx context.Context, filter LotFilter) ([]FuelLot, error)
}

// TransferFilter narrows transfer and testing draw listings.
type TransferFilter struct {
	LotID  string
	UnitID string
	Kind   ActivityKind
	From   time.Time
	To     time.Time
	Limit  int
}

// TransferRepository stores transfers and testing draws.
type TransferRepository interface {
	InsertTransfer(ctx context.Context, transfer *Transfer) error
	InsertTestingDraw(ctx context.Context, draw *TestingDraw) error
	ListTransfers(ctx context.Context, filter TransferFilter) ([]Transfer, error)
	ListTestingDraws(ctx context.Context, filter TransferFilter) ([]TestingDraw, error)
}

// EventRecorder writes an activity event inside the current unit of work.
type EventRecorder interface {
	Record(ctx context.Context, event any) error
}
