package application

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"fuel-ledger/internal/eventing"
	"fuel-ledger/internal/inventory/application/events"
	inventory "fuel-ledger/internal/inventory/domain"
)

func TestTransfer_LoadTransferSellScenario(t *testing.T) {
	f := newFixture(t, tanker("u-4t1", "4T1", 5000), dispenser("u-dt1", "DT1", 2000))
	ctx := context.Background()
	source := f.mustCreate(t, "u-4t1", date(2025, 11, 25), 3400)

	internal, err := f.engine.Transfer(ctx, TransferRequest{
		Kind:         inventory.KindTankerToFixed,
		FromLotID:    source.ID,
		ToUnitID:     "u-dt1",
		VolumeLiters: 1000,
	})
	if err != nil {
		t.Fatalf("internal transfer: %v", err)
	}
	if !internal.DestinationCreated || internal.Destination == nil {
		t.Fatalf("expected a new destination lot, got %+v", internal)
	}
	dest := internal.Destination
	if dest.LotCode != "LOT04MAR26DT1A1000" || dest.Origin != inventory.LotOriginTransfer || dest.UnitCapacityLiters != 2000 {
		t.Fatalf("unexpected destination lot %+v", dest)
	}
	if internal.Source.UsedLiters != 1000 || internal.Source.StockStatus != inventory.StockStatusInStock {
		t.Fatalf("unexpected source after transfer %+v", internal.Source)
	}

	sale, err := f.engine.Transfer(ctx, TransferRequest{
		Kind:         inventory.KindTankerToVehicle,
		FromLotID:    source.ID,
		VolumeLiters: 2400,
		VehicleRef:   "KAA 123X",
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if sale.Source.UsedLiters != 3400 || sale.Source.StockStatus != inventory.StockStatusSold {
		t.Fatalf("expected sold source, got %+v", sale.Source)
	}
	if sale.Transfer.VehicleRef != "KAA 123X" || sale.Transfer.ToLotID != "" {
		t.Fatalf("unexpected sale record %+v", sale.Transfer)
	}

	_, err = f.engine.Transfer(ctx, TransferRequest{Kind: inventory.KindTankerToVehicle, FromLotID: source.ID, VolumeLiters: 1})
	if !errors.Is(err, inventory.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	transfers, err := f.engine.ListTransfers(ctx, inventory.TransferFilter{LotID: source.ID})
	if err != nil {
		t.Fatalf("list transfers: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(transfers))
	}

	var types []string
	for _, env := range f.store.Outbox().Envelopes() {
		types = append(types, env.EventType)
	}
	want := []string{
		eventing.EventTypeOf[events.LotCreated](),
		eventing.EventTypeOf[events.LotCreated](),
		eventing.EventTypeOf[events.TransferRecorded](),
		eventing.EventTypeOf[events.TransferRecorded](),
	}
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, types)
		}
	}
}

func TestTransfer_CreditsOpenDestinationLot(t *testing.T) {
	f := newFixture(t, tanker("u-4t1", "4T1", 5000), fixedTank("u-ft1", "FT1", 3000))
	ctx := context.Background()
	source := f.mustCreate(t, "u-4t1", date(2025, 11, 25), 3000)
	open := f.mustCreate(t, "u-ft1", date(2025, 11, 20), 800)

	result, err := f.engine.Transfer(ctx, TransferRequest{Kind: inventory.KindTankerToFixed, FromLotID: source.ID, ToUnitID: "u-ft1", VolumeLiters: 500})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if result.DestinationCreated || result.Destination.ID != open.ID {
		t.Fatalf("expected open lot %s to be credited, got %+v", open.ID, result.Destination)
	}
	if got := f.mustGet(t, open.ID); got.LoadedLiters != 1300 || got.LotCode != open.LotCode {
		t.Fatalf("unexpected credited lot %+v", got)
	}

	lots, err := f.ledger.ListLots(ctx, inventory.LotFilter{UnitID: "u-ft1"})
	if err != nil {
		t.Fatalf("list lots: %v", err)
	}
	if len(lots) != 1 {
		t.Fatalf("expected no new lot, got %d", len(lots))
	}
}

func TestTransfer_ExplicitDestinationLot(t *testing.T) {
	f := newFixture(t, tanker("u-a", "4T1", 5000), tanker("u-b", "4T2", 5000))
	ctx := context.Background()
	source := f.mustCreate(t, "u-a", date(2025, 11, 25), 1000)
	older := f.mustCreate(t, "u-b", date(2025, 11, 1), 100)
	f.mustCreate(t, "u-b", date(2025, 11, 2), 100)
	elsewhere := f.mustCreate(t, "u-a", date(2025, 11, 2), 100)

	result, err := f.engine.Transfer(ctx, TransferRequest{Kind: inventory.KindTankerToTanker, FromLotID: source.ID, ToUnitID: "u-b", ToLotID: older.ID, VolumeLiters: 200})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if result.Destination.ID != older.ID || result.Destination.LoadedLiters != 300 {
		t.Fatalf("expected pinned lot credited, got %+v", result.Destination)
	}

	_, err = f.engine.Transfer(ctx, TransferRequest{Kind: inventory.KindTankerToTanker, FromLotID: source.ID, ToUnitID: "u-b", ToLotID: elsewhere.ID, VolumeLiters: 10})
	if !errors.Is(err, inventory.ErrInvalidTransfer) {
		t.Fatalf("expected ErrInvalidTransfer for lot on another unit, got %v", err)
	}
}

func TestTransfer_FailureLeavesBothLotsUnchanged(t *testing.T) {
	f := newFixture(t, tanker("u-4t1", "4T1", 5000), dispenser("u-dt1", "DT1", 1000))
	ctx := context.Background()
	source := f.mustCreate(t, "u-4t1", date(2025, 11, 25), 3000)
	dest := f.mustCreate(t, "u-dt1", date(2025, 11, 25), 900)
	before := len(f.store.Outbox().Envelopes())

	_, err := f.engine.Transfer(ctx, TransferRequest{Kind: inventory.KindTankerToFixed, FromLotID: source.ID, ToUnitID: "u-dt1", VolumeLiters: 200})
	if !errors.Is(err, inventory.ErrVolumeOutOfRange) {
		t.Fatalf("expected ErrVolumeOutOfRange on overfull destination, got %v", err)
	}
	if got := f.mustGet(t, source.ID); got.UsedLiters != 0 || got.StockStatus != inventory.StockStatusInStock {
		t.Fatalf("source changed after failed transfer: %+v", got)
	}
	if got := f.mustGet(t, dest.ID); got.LoadedLiters != 900 {
		t.Fatalf("destination changed after failed transfer: %+v", got)
	}
	transfers, err := f.engine.ListTransfers(ctx, inventory.TransferFilter{})
	if err != nil || len(transfers) != 0 {
		t.Fatalf("expected no transfers, got %d %v", len(transfers), err)
	}
	if after := len(f.store.Outbox().Envelopes()); after != before {
		t.Fatalf("failed transfer wrote %d events", after-before)
	}
}

func TestTransfer_Preconditions(t *testing.T) {
	retired := dispenser("u-old", "DT9", 1000)
	retired.Active = false
	f := newFixture(t,
		tanker("u-4t1", "4T1", 5000),
		tanker("u-4t2", "4T2", 5000),
		fixedTank("u-ft1", "FT1", 5000),
		retired,
	)
	ctx := context.Background()
	tankerLot := f.mustCreate(t, "u-4t1", date(2025, 11, 25), 1000)
	fixedLot := f.mustCreate(t, "u-ft1", date(2025, 11, 25), 1000)

	cases := []struct {
		name   string
		req    TransferRequest
		target error
	}{
		{"unknown kind", TransferRequest{Kind: "PIPELINE", FromLotID: tankerLot.ID, VolumeLiters: 1}, inventory.ErrInvalidKind},
		{"zero volume", TransferRequest{Kind: inventory.KindTankerToVehicle, FromLotID: tankerLot.ID}, inventory.ErrVolumeOutOfRange},
		{"missing lot", TransferRequest{Kind: inventory.KindTankerToVehicle, FromLotID: "nope", VolumeLiters: 1}, inventory.ErrLotNotFound},
		{"over balance", TransferRequest{Kind: inventory.KindTankerToVehicle, FromLotID: tankerLot.ID, VolumeLiters: 1001}, inventory.ErrInsufficientBalance},
		{"no destination", TransferRequest{Kind: inventory.KindTankerToTanker, FromLotID: tankerLot.ID, VolumeLiters: 1}, inventory.ErrInvalidTransfer},
		{"unknown destination", TransferRequest{Kind: inventory.KindTankerToTanker, FromLotID: tankerLot.ID, ToUnitID: "ghost", VolumeLiters: 1}, inventory.ErrUnknownUnit},
		{"inactive destination", TransferRequest{Kind: inventory.KindTankerToFixed, FromLotID: tankerLot.ID, ToUnitID: "u-old", VolumeLiters: 1}, inventory.ErrUnitInactive},
		{"same unit", TransferRequest{Kind: inventory.KindTankerToTanker, FromLotID: tankerLot.ID, ToUnitID: "u-4t1", VolumeLiters: 1}, inventory.ErrInvalidTransfer},
		{"sale with destination", TransferRequest{Kind: inventory.KindTankerToVehicle, FromLotID: tankerLot.ID, ToUnitID: "u-4t2", VolumeLiters: 1}, inventory.ErrInvalidTransfer},
		{"fixed source for tanker kind", TransferRequest{Kind: inventory.KindTankerToVehicle, FromLotID: fixedLot.ID, VolumeLiters: 1}, inventory.ErrKindMismatch},
		{"tanker source for fixed kind", TransferRequest{Kind: inventory.KindFixedToVehicle, FromLotID: tankerLot.ID, VolumeLiters: 1}, inventory.ErrKindMismatch},
		{"fixed destination for tanker kind", TransferRequest{Kind: inventory.KindTankerToTanker, FromLotID: tankerLot.ID, ToUnitID: "u-ft1", VolumeLiters: 1}, inventory.ErrKindMismatch},
	}
	for _, tc := range cases {
		if _, err := f.engine.Transfer(ctx, tc.req); !errors.Is(err, tc.target) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.target, err)
		}
	}
	if got := f.mustGet(t, tankerLot.ID); got.UsedLiters != 0 {
		t.Fatalf("rejected transfers debited the lot: %+v", got)
	}
}

func TestTransfer_HugeVolumesNeverWrapBalance(t *testing.T) {
	f := newFixture(t, tanker("u-4t1", "4T1", 5000), tanker("u-4t2", "4T2", 5000))
	ctx := context.Background()
	lot := f.mustCreate(t, "u-4t1", date(2025, 11, 25), 3400)
	if _, err := f.engine.Transfer(ctx, TransferRequest{Kind: inventory.KindTankerToVehicle, FromLotID: lot.ID, VolumeLiters: 1000}); err != nil {
		t.Fatalf("first sale: %v", err)
	}
	before := len(f.store.Outbox().Envelopes())

	for _, volume := range []int64{math.MaxInt64, math.MaxInt64 - 999, math.MaxInt64 - 1000} {
		for _, req := range []TransferRequest{
			{Kind: inventory.KindTankerToVehicle, FromLotID: lot.ID, VolumeLiters: volume},
			{Kind: inventory.KindTankerToTanker, FromLotID: lot.ID, ToUnitID: "u-4t2", VolumeLiters: volume},
			{Kind: inventory.KindTesting, FromLotID: lot.ID, VolumeLiters: volume},
		} {
			if _, err := f.engine.Transfer(ctx, req); !errors.Is(err, inventory.ErrInsufficientBalance) {
				t.Fatalf("%s %d: expected ErrInsufficientBalance, got %v", req.Kind, volume, err)
			}
		}
	}

	got := f.mustGet(t, lot.ID)
	if got.UsedLiters != 1000 || got.StockStatus != inventory.StockStatusInStock {
		t.Fatalf("rejected volumes changed the lot: %+v", got)
	}
	if err := got.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	transfers, err := f.engine.ListTransfers(ctx, inventory.TransferFilter{})
	if err != nil || len(transfers) != 1 {
		t.Fatalf("expected only the first sale, got %d %v", len(transfers), err)
	}
	if opened, err := f.ledger.ListLots(ctx, inventory.LotFilter{UnitID: "u-4t2"}); err != nil || len(opened) != 0 {
		t.Fatalf("rejected internal transfer opened a destination lot: %d %v", len(opened), err)
	}
	if after := len(f.store.Outbox().Envelopes()); after != before {
		t.Fatalf("rejected transfers wrote %d events", after-before)
	}
}

func TestTransfer_TestingDrawKeptApart(t *testing.T) {
	f := newFixture(t, fixedTank("u-ft1", "FT1", 5000))
	ctx := context.Background()
	lot := f.mustCreate(t, "u-ft1", date(2025, 11, 25), 100)

	result, err := f.engine.Transfer(ctx, TransferRequest{Kind: "testing", FromLotID: lot.ID, VolumeLiters: 5, Note: "density check"})
	if err != nil {
		t.Fatalf("testing draw: %v", err)
	}
	if result.TestingDraw == nil || result.Transfer != nil || result.Source.UsedLiters != 5 {
		t.Fatalf("unexpected testing result %+v", result)
	}

	transfers, err := f.engine.ListTransfers(ctx, inventory.TransferFilter{})
	if err != nil || len(transfers) != 0 {
		t.Fatalf("testing draw leaked into transfers: %d %v", len(transfers), err)
	}
	draws, err := f.engine.ListTestingDraws(ctx, inventory.TransferFilter{LotID: lot.ID})
	if err != nil || len(draws) != 1 || draws[0].Note != "density check" {
		t.Fatalf("unexpected draws %+v %v", draws, err)
	}
	if _, err := f.engine.ListTransfers(ctx, inventory.TransferFilter{Kind: inventory.KindTesting}); !errors.Is(err, inventory.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter for testing kind, got %v", err)
	}

	envs := f.store.Outbox().Envelopes()
	last := envs[len(envs)-1]
	if last.EventType != eventing.EventTypeOf[events.TestingDrawRecorded]() || last.LotID != lot.ID {
		t.Fatalf("unexpected last event %+v", last)
	}
}

func TestTransfer_ConcurrentDebitsNeverOversell(t *testing.T) {
	f := newFixture(t, tanker("u-4t1", "4T1", 5000))
	lot := f.mustCreate(t, "u-4t1", date(2025, 11, 25), 50)
	const n = 100

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, short int
	var other []error
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Transfer(context.Background(), TransferRequest{Kind: inventory.KindTankerToVehicle, FromLotID: lot.ID, VolumeLiters: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, inventory.ErrInsufficientBalance):
				short++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if ok != 50 || short != 50 {
		t.Fatalf("expected 50 successes and 50 rejections, got %d and %d", ok, short)
	}
	got := f.mustGet(t, lot.ID)
	if got.UsedLiters != 50 || got.StockStatus != inventory.StockStatusSold {
		t.Fatalf("unexpected final lot %+v", got)
	}
	if err := got.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestTransfer_ConcurrentCrossTransfersDoNotDeadlock(t *testing.T) {
	f := newFixture(t, tanker("u-a", "4T1", 5000), tanker("u-b", "4T2", 5000))
	a := f.mustCreate(t, "u-a", date(2025, 11, 25), 2000)
	b := f.mustCreate(t, "u-b", date(2025, 11, 25), 2000)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.engine.Transfer(context.Background(), TransferRequest{Kind: inventory.KindTankerToTanker, FromLotID: a.ID, ToUnitID: "u-b", ToLotID: b.ID, VolumeLiters: 10})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.engine.Transfer(context.Background(), TransferRequest{Kind: inventory.KindTankerToTanker, FromLotID: b.ID, ToUnitID: "u-a", ToLotID: a.ID, VolumeLiters: 10})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("cross transfer: %v", err)
		}
	}

	gotA, gotB := f.mustGet(t, a.ID), f.mustGet(t, b.ID)
	if gotA.RemainingLiters()+gotB.RemainingLiters() != 4000 {
		t.Fatalf("volume not conserved: %d + %d", gotA.RemainingLiters(), gotB.RemainingLiters())
	}
}
