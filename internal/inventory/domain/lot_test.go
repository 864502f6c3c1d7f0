package inventory

import (
	"errors"
	"math"
	"testing"
	"time"
)

func testUnit() StorageUnit {
	return StorageUnit{ID: "unit-1", UnitType: UnitTypeTanker, UnitCode: "4T1", CapacityLiters: 5000, Active: true}
}

func TestNewFuelLotSnapshotsUnit(t *testing.T) {
	unit := testUnit()
	now := time.Date(2025, time.November, 25, 9, 30, 0, 0, time.UTC)
	lot, err := NewFuelLot(NewLotParams{ID: "lot-1", Unit: unit, LoadDate: now, SeqIndex: 1, LoadedLiters: 3400, Now: now})
	if err != nil {
		t.Fatalf("new lot: %v", err)
	}
	unit.UnitCode = "CHANGED"
	unit.CapacityLiters = 1
	if lot.UnitCode != "4T1" || lot.UnitCapacityLiters != 5000 {
		t.Fatalf("snapshot not kept: %+v", lot)
	}
	if lot.LotCode != "LOT25NOV254T1A3400" || lot.SeqLetters != "A" {
		t.Fatalf("unexpected code %s/%s", lot.LotCode, lot.SeqLetters)
	}
	if !lot.LoadDate.Equal(time.Date(2025, time.November, 25, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("load date not normalized: %s", lot.LoadDate)
	}
	if lot.StockStatus != StockStatusInStock || lot.UsedLiters != 0 || lot.Origin != LotOriginLoad {
		t.Fatalf("unexpected initial state %+v", lot)
	}
}

func TestNewFuelLotRejectsVolume(t *testing.T) {
	unit := testUnit()
	for _, liters := range []int64{0, -5, 5001} {
		_, err := NewFuelLot(NewLotParams{ID: "lot-1", Unit: unit, LoadDate: time.Now(), SeqIndex: 1, LoadedLiters: liters})
		if !errors.Is(err, ErrVolumeOutOfRange) {
			t.Fatalf("liters %d: expected ErrVolumeOutOfRange, got %v", liters, err)
		}
	}
}

func TestDebitFlipsSoldAtExactBalance(t *testing.T) {
	lot, err := NewFuelLot(NewLotParams{ID: "lot-1", Unit: testUnit(), LoadDate: time.Now(), SeqIndex: 1, LoadedLiters: 100})
	if err != nil {
		t.Fatalf("new lot: %v", err)
	}
	now := time.Now()
	if err := lot.Debit(60, now); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if lot.StockStatus != StockStatusInStock {
		t.Fatalf("expected INSTOCK, got %s", lot.StockStatus)
	}
	if err := lot.Debit(41, now); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if lot.UsedLiters != 60 {
		t.Fatalf("failed debit changed used liters to %d", lot.UsedLiters)
	}
	if err := lot.Debit(40, now); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if lot.StockStatus != StockStatusSold {
		t.Fatalf("expected SOLD, got %s", lot.StockStatus)
	}
	if err := lot.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	if err := lot.Debit(0, now); !errors.Is(err, ErrVolumeOutOfRange) {
		t.Fatalf("expected ErrVolumeOutOfRange, got %v", err)
	}
}

func TestCreditRespectsCapacitySnapshot(t *testing.T) {
	lot, err := NewFuelLot(NewLotParams{ID: "lot-1", Unit: testUnit(), LoadDate: time.Now(), SeqIndex: 1, LoadedLiters: 4000})
	if err != nil {
		t.Fatalf("new lot: %v", err)
	}
	now := time.Now()
	if err := lot.Credit(1001, now); !errors.Is(err, ErrVolumeOutOfRange) {
		t.Fatalf("expected ErrVolumeOutOfRange, got %v", err)
	}
	if err := lot.Debit(500, now); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if err := lot.Credit(1500, now); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if lot.LoadedLiters != 5500 || lot.RemainingLiters() != 5000 {
		t.Fatalf("unexpected balance loaded=%d remaining=%d", lot.LoadedLiters, lot.RemainingLiters())
	}
}

func TestDebitAndCreditRejectHugeVolumes(t *testing.T) {
	lot, err := NewFuelLot(NewLotParams{ID: "lot-1", Unit: testUnit(), LoadDate: time.Now(), SeqIndex: 1, LoadedLiters: 3400})
	if err != nil {
		t.Fatalf("new lot: %v", err)
	}
	now := time.Now()
	if err := lot.Debit(1000, now); err != nil {
		t.Fatalf("debit: %v", err)
	}
	for _, amount := range []int64{math.MaxInt64, math.MaxInt64 - 999, math.MaxInt64 - 1000} {
		if err := lot.Debit(amount, now); !errors.Is(err, ErrInsufficientBalance) {
			t.Fatalf("debit %d: expected ErrInsufficientBalance, got %v", amount, err)
		}
		if err := lot.Credit(amount, now); !errors.Is(err, ErrVolumeOutOfRange) {
			t.Fatalf("credit %d: expected ErrVolumeOutOfRange, got %v", amount, err)
		}
	}
	if lot.UsedLiters != 1000 || lot.LoadedLiters != 3400 {
		t.Fatalf("rejected volumes changed the lot: used=%d loaded=%d", lot.UsedLiters, lot.LoadedLiters)
	}
	if err := lot.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestActivityKindUnitChecks(t *testing.T) {
	if err := KindFixedToVehicle.CheckSource(UnitTypeTanker); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}
	if err := KindFixedToVehicle.CheckSource(UnitTypeDispenser); err != nil {
		t.Fatalf("dispenser source: %v", err)
	}
	if err := KindTankerToFixed.CheckDestination(UnitTypeDispenser); err != nil {
		t.Fatalf("dispenser destination: %v", err)
	}
	if err := KindTankerToTanker.CheckDestination(UnitTypeFixedTank); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}
	if err := KindTesting.CheckSource(UnitTypeFixedTank); err != nil {
		t.Fatalf("testing source: %v", err)
	}
	if err := ActivityKind("BOGUS").CheckSource(UnitTypeTanker); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}
