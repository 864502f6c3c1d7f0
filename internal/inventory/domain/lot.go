package inventory

import (
	"errors"
	"fmt"
	"time"
)

// StockStatus is the stock state of a lot.
type StockStatus string

const (
	StockStatusInStock StockStatus = "INSTOCK"
	StockStatusSold    StockStatus = "SOLD"
)

// IsValid reports whether the status is known.
func (s StockStatus) IsValid() bool {
	return s == StockStatusInStock || s == StockStatusSold
}

// LotOrigin records how a lot came into existence.
type LotOrigin string

const (
	LotOriginLoad     LotOrigin = "LOAD"
	LotOriginTransfer LotOrigin = "TRANSFER"
)

// FuelLot is a dated batch of fuel held by one storage unit.
// UnitCode and UnitCapacityLiters are copied from the unit when the lot is created
// and are never re-derived.
type FuelLot struct {
	ID                 string      `json:"id"`
	UnitID             string      `json:"unit_id"`
	UnitCode           string      `json:"unit_code"`
	UnitCapacityLiters int64       `json:"unit_capacity_liters"`
	LoadDate           time.Time   `json:"load_date"`
	SeqIndex           int         `json:"seq_index"`
	SeqLetters         string      `json:"seq_letters"`
	LoadedLiters       int64       `json:"loaded_liters"`
	LotCode            string      `json:"lot_code"`
	UsedLiters         int64       `json:"used_liters"`
	StockStatus        StockStatus `json:"stock_status"`
	Origin             LotOrigin   `json:"origin"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// NewLotParams holds the inputs for NewFuelLot.
type NewLotParams struct {
	ID           string
	Unit         StorageUnit
	LoadDate     time.Time
	SeqIndex     int
	LoadedLiters int64
	Origin       LotOrigin
	Now          time.Time
}

// NewFuelLot builds a fresh INSTOCK lot, snapshotting the unit code and capacity.
func NewFuelLot(p NewLotParams) (*FuelLot, error) {
	if p.ID == "" {
		return nil, errors.New("inventory: empty lot id")
	}
	if p.SeqIndex < 1 {
		return nil, fmt.Errorf("inventory: invalid sequence index %d", p.SeqIndex)
	}
	if err := CheckLoadVolume(p.Unit, p.LoadedLiters); err != nil {
		return nil, err
	}
	origin := p.Origin
	if origin == "" {
		origin = LotOriginLoad
	}
	loadDate := NormalizeDate(p.LoadDate)
	now := p.Now.UTC()
	return &FuelLot{
		ID:                 p.ID,
		UnitID:             p.Unit.ID,
		UnitCode:           p.Unit.UnitCode,
		UnitCapacityLiters: p.Unit.CapacityLiters,
		LoadDate:           loadDate,
		SeqIndex:           p.SeqIndex,
		SeqLetters:         SeqIndexToLetters(p.SeqIndex),
		LoadedLiters:       p.LoadedLiters,
		LotCode:            GenLotCode(p.Unit.UnitCode, loadDate, p.SeqIndex, p.LoadedLiters),
		UsedLiters:         0,
		StockStatus:        StockStatusInStock,
		Origin:             origin,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// CheckLoadVolume validates a loaded volume against the unit capacity.
func CheckLoadVolume(unit StorageUnit, liters int64) error {
	if liters <= 0 {
		return fmt.Errorf("%w: loaded liters must be positive, got %d", ErrVolumeOutOfRange, liters)
	}
	if liters > unit.CapacityLiters {
		return fmt.Errorf("%w: %d liters exceeds capacity %d of unit %s", ErrVolumeOutOfRange, liters, unit.CapacityLiters, unit.UnitCode)
	}
	return nil
}

// RemainingLiters returns loaded minus used.
func (l *FuelLot) RemainingLiters() int64 {
	if l == nil {
		return 0
	}
	return l.LoadedLiters - l.UsedLiters
}

// IsOpen reports whether the lot can still be drawn from or topped up.
func (l *FuelLot) IsOpen() bool {
	return l != nil && l.StockStatus == StockStatusInStock
}

// Debit consumes amount liters from the lot and flips it to SOLD when exhausted.
func (l *FuelLot) Debit(amount int64, now time.Time) error {
	if l == nil {
		return ErrLotNotFound
	}
	if amount <= 0 {
		return fmt.Errorf("%w: debit must be positive, got %d", ErrVolumeOutOfRange, amount)
	}
	if amount > l.RemainingLiters() {
		return fmt.Errorf("%w: lot %s has %d liters remaining, requested %d", ErrInsufficientBalance, l.LotCode, l.RemainingLiters(), amount)
	}
	l.UsedLiters += amount
	l.refreshStatus()
	l.UpdatedAt = now.UTC()
	return nil
}

// Credit tops up an open lot. The on-hand volume after the credit must fit the
// capacity snapshot taken when the lot was created.
func (l *FuelLot) Credit(amount int64, now time.Time) error {
	if l == nil {
		return ErrLotNotFound
	}
	if amount <= 0 {
		return fmt.Errorf("%w: credit must be positive, got %d", ErrVolumeOutOfRange, amount)
	}
	if !l.IsOpen() {
		return fmt.Errorf("%w: lot %s is sold out", ErrInvalidTransfer, l.LotCode)
	}
	if amount > l.UnitCapacityLiters-l.RemainingLiters() {
		return fmt.Errorf("%w: credit of %d liters overflows capacity %d of lot %s", ErrVolumeOutOfRange, amount, l.UnitCapacityLiters, l.LotCode)
	}
	l.LoadedLiters += amount
	l.UpdatedAt = now.UTC()
	return nil
}

// CheckInvariants verifies 0 <= used <= loaded and the SOLD/used relation.
func (l *FuelLot) CheckInvariants() error {
	if l == nil {
		return ErrLotNotFound
	}
	if l.UsedLiters < 0 || l.UsedLiters > l.LoadedLiters {
		return fmt.Errorf("inventory: lot %s used %d outside [0,%d]", l.LotCode, l.UsedLiters, l.LoadedLiters)
	}
	if (l.StockStatus == StockStatusSold) != (l.UsedLiters == l.LoadedLiters) {
		return fmt.Errorf("inventory: lot %s status %s inconsistent with used %d/%d", l.LotCode, l.StockStatus, l.UsedLiters, l.LoadedLiters)
	}
	return nil
}

// SOLD is terminal; nothing flips a lot back to INSTOCK.
func (l *FuelLot) refreshStatus() {
	if l.UsedLiters == l.LoadedLiters {
		l.StockStatus = StockStatusSold
	}
}

// NormalizeDate truncates t to its calendar date at UTC midnight.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
