package application

import (
	"context"
	"testing"
	"time"

	"fuel-ledger/internal/eventing"
	inventory "fuel-ledger/internal/inventory/domain"
	"fuel-ledger/internal/inventory/infrastructure/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type fixture struct {
	store  *memory.Store
	units  *UnitRegistry
	ledger *LedgerService
	engine *TransferEngine
	clock  fixedClock
}

var testToday = time.Date(2026, time.March, 4, 14, 5, 0, 0, time.UTC)

func newFixture(t *testing.T, units ...inventory.StorageUnit) *fixture {
	t.Helper()
	store := memory.NewStore()
	registry, err := NewUnitRegistry(store.Units(), nil)
	if err != nil {
		t.Fatalf("unit registry: %v", err)
	}
	if err := registry.Seed(context.Background(), units); err != nil {
		t.Fatalf("seed units: %v", err)
	}
	seq, err := NewLotSequencer(store.Sequences())
	if err != nil {
		t.Fatalf("sequencer: %v", err)
	}
	clock := fixedClock{now: testToday}
	ledger, err := NewLedgerService(store, registry, seq, store.Lots(), eventing.NewPublisher(store.Outbox(), "tenant-test"),
		WithClock(clock),
		WithTenantID("tenant-test"),
		WithContentionRetry(3, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	engine, err := NewTransferEngine(ledger, store.Transfers())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return &fixture{store: store, units: registry, ledger: ledger, engine: engine, clock: clock}
}

func tanker(id, code string, capacity int64) inventory.StorageUnit {
	return inventory.StorageUnit{ID: id, UnitType: inventory.UnitTypeTanker, UnitCode: code, CapacityLiters: capacity, Active: true}
}

func fixedTank(id, code string, capacity int64) inventory.StorageUnit {
	return inventory.StorageUnit{ID: id, UnitType: inventory.UnitTypeFixedTank, UnitCode: code, CapacityLiters: capacity, Active: true}
}

func dispenser(id, code string, capacity int64) inventory.StorageUnit {
	return inventory.StorageUnit{ID: id, UnitType: inventory.UnitTypeDispenser, UnitCode: code, CapacityLiters: capacity, Active: true}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) mustCreate(t *testing.T, unitID string, loadDate time.Time, liters int64) *inventory.FuelLot {
	t.Helper()
	lot, err := f.ledger.CreateLot(context.Background(), CreateLotRequest{UnitID: unitID, LoadDate: loadDate, LoadedLiters: liters})
	if err != nil {
		t.Fatalf("create lot on %s: %v", unitID, err)
	}
	return lot
}

func (f *fixture) mustGet(t *testing.T, lotID string) *inventory.FuelLot {
	t.Helper()
	lot, err := f.ledger.GetLot(context.Background(), lotID)
	if err != nil {
		t.Fatalf("get lot %s: %v", lotID, err)
	}
	return lot
}
