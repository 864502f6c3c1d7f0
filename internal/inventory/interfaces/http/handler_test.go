package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fuel-ledger/internal/activity"
	"fuel-ledger/internal/eventing"
	"fuel-ledger/internal/inventory/application"
	inventory "fuel-ledger/internal/inventory/domain"
	"fuel-ledger/internal/inventory/infrastructure/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestServer(t *testing.T, reader activity.Reader) *http.ServeMux {
	t.Helper()
	store := memory.NewStore()
	units, err := application.NewUnitRegistry(store.Units(), nil)
	if err != nil {
		t.Fatalf("units: %v", err)
	}
	err = units.Seed(context.Background(), []inventory.StorageUnit{
		{ID: "unit-t1", UnitType: inventory.UnitTypeTanker, UnitCode: "4T1", CapacityLiters: 5000, Active: true},
		{ID: "unit-dt1", UnitType: inventory.UnitTypeDispenser, UnitCode: "DT1", CapacityLiters: 2000, Active: true},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	seq, err := application.NewLotSequencer(store.Sequences())
	if err != nil {
		t.Fatalf("sequencer: %v", err)
	}
	ledger, err := application.NewLedgerService(store, units, seq, store.Lots(), eventing.NewPublisher(store.Outbox(), "tenant-test"),
		application.WithClock(fixedClock{now: time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)}))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	engine, err := application.NewTransferEngine(ledger, store.Transfers())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	handler, err := NewHandler(units, ledger, engine, reader, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	mux := http.NewServeMux()
	handler.Register(mux)
	return mux
}

func do(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	mux.ServeHTTP(resp, req)
	return resp
}

func TestCreateLotAndSale(t *testing.T) {
	mux := newTestServer(t, nil)

	resp := do(t, mux, http.MethodPost, "/api/v1/lots", map[string]any{"unit_id": "unit-dt1", "loaded_liters": 1000})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create lot: %d %s", resp.Code, resp.Body.String())
	}
	var lot inventory.FuelLot
	if err := json.Unmarshal(resp.Body.Bytes(), &lot); err != nil {
		t.Fatalf("decode lot: %v", err)
	}
	if lot.LotCode != "LOT04MAR26DT1A1000" {
		t.Fatalf("lot code = %s", lot.LotCode)
	}

	resp = do(t, mux, http.MethodPost, "/api/v1/transfers", map[string]any{
		"kind": "fixed_to_vehicle", "from_lot_id": lot.ID, "volume_liters": 1000, "vehicle_ref": "KA-01",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("sale: %d %s", resp.Code, resp.Body.String())
	}

	resp = do(t, mux, http.MethodPost, "/api/v1/transfers", map[string]any{
		"kind": "FIXED_TO_VEHICLE", "from_lot_id": lot.ID, "volume_liters": 1,
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("overdraw: expected 409, got %d", resp.Code)
	}

	resp = do(t, mux, http.MethodGet, "/api/v1/lots/by-code/lot04mar26dt1a1000", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get by code: %d", resp.Code)
	}
	resp = do(t, mux, http.MethodGet, "/api/v1/lots?status=sold", nil)
	var lots []inventory.FuelLot
	if err := json.Unmarshal(resp.Body.Bytes(), &lots); err != nil || len(lots) != 1 {
		t.Fatalf("sold lots: %v %d", err, len(lots))
	}
	resp = do(t, mux, http.MethodGet, "/api/v1/transfers?lot_id="+lot.ID, nil)
	var transfers []inventory.Transfer
	if err := json.Unmarshal(resp.Body.Bytes(), &transfers); err != nil || len(transfers) != 1 {
		t.Fatalf("transfers: %v %d", err, len(transfers))
	}
}

func TestErrorMapping(t *testing.T) {
	mux := newTestServer(t, nil)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown unit", http.MethodPost, "/api/v1/lots", map[string]any{"unit_id": "nope", "loaded_liters": 10}, http.StatusNotFound},
		{"over capacity", http.MethodPost, "/api/v1/lots", map[string]any{"unit_id": "unit-dt1", "loaded_liters": 2001}, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/v1/lots", map[string]any{"unit_id": "unit-dt1", "load_date": "04/03/2026", "loaded_liters": 1}, http.StatusBadRequest},
		{"invalid kind", http.MethodPost, "/api/v1/transfers", map[string]any{"kind": "GIFT", "from_lot_id": "x", "volume_liters": 1}, http.StatusBadRequest},
		{"missing lot", http.MethodPost, "/api/v1/transfers", map[string]any{"kind": "TESTING", "from_lot_id": "x", "volume_liters": 1}, http.StatusNotFound},
		{"unknown lot", http.MethodGet, "/api/v1/lots/none", nil, http.StatusNotFound},
		{"bad status", http.MethodGet, "/api/v1/lots?status=EMPTY", nil, http.StatusBadRequest},
		{"invalid unit", http.MethodPost, "/api/v1/units", map[string]any{"id": "u9", "unit_type": "barrel", "unit_code": "B9", "capacity_liters": 10}, http.StatusBadRequest},
		{"activity disabled", http.MethodGet, "/api/v1/activity", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		resp := do(t, mux, tc.method, tc.path, tc.body)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.want, resp.Code, resp.Body.String())
		}
	}
}

func TestStatusFor(t *testing.T) {
	wrapped := fmt.Errorf("lock: %w", inventory.ErrSequenceContention)
	if statusFor(wrapped) != http.StatusServiceUnavailable {
		t.Fatalf("contention should be retryable")
	}
	for _, err := range []error{inventory.ErrInsufficientBalance, inventory.ErrDuplicateLotCode, inventory.ErrUnitInUse} {
		if got := statusFor(fmt.Errorf("op: %w", err)); got != http.StatusConflict {
			t.Fatalf("%v: expected 409, got %d", err, got)
		}
	}
	if statusFor(errors.New("boom")) != http.StatusInternalServerError {
		t.Fatalf("unknown errors should be 500")
	}
}

func TestPreviewAndUnits(t *testing.T) {
	mux := newTestServer(t, nil)

	resp := do(t, mux, http.MethodGet, "/api/v1/lots/preview?unit_id=unit-t1&load_date=2025-11-25&loaded_liters=1200", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("preview: %d %s", resp.Code, resp.Body.String())
	}
	var preview application.LotCodePreview
	if err := json.Unmarshal(resp.Body.Bytes(), &preview); err != nil || preview.LotCode != "LOT25NOV254T1A1200" {
		t.Fatalf("preview = %+v (%v)", preview, err)
	}

	resp = do(t, mux, http.MethodPost, "/api/v1/units", map[string]any{"id": "unit-f1", "unit_type": "fixed_tank", "unit_code": "F1", "capacity_liters": 8000})
	if resp.Code != http.StatusCreated {
		t.Fatalf("register unit: %d %s", resp.Code, resp.Body.String())
	}
	resp = do(t, mux, http.MethodGet, "/api/v1/units/unit-f1", nil)
	var unit inventory.StorageUnit
	if err := json.Unmarshal(resp.Body.Bytes(), &unit); err != nil || unit.UnitType != inventory.UnitTypeFixedTank || !unit.Active {
		t.Fatalf("unit = %+v (%v)", unit, err)
	}
}

func TestUnitAndVolumeConflicts(t *testing.T) {
	mux := newTestServer(t, nil)

	resp := do(t, mux, http.MethodPost, "/api/v1/lots", map[string]any{"unit_id": "unit-t1", "loaded_liters": 3400})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create lot: %d %s", resp.Code, resp.Body.String())
	}
	var lot inventory.FuelLot
	if err := json.Unmarshal(resp.Body.Bytes(), &lot); err != nil {
		t.Fatalf("decode lot: %v", err)
	}
	resp = do(t, mux, http.MethodPost, "/api/v1/transfers", map[string]any{"kind": "TANKER_TO_VEHICLE", "from_lot_id": lot.ID, "volume_liters": 1000})
	if resp.Code != http.StatusCreated {
		t.Fatalf("sale: %d %s", resp.Code, resp.Body.String())
	}

	resp = do(t, mux, http.MethodPost, "/api/v1/transfers", map[string]any{"kind": "TANKER_TO_VEHICLE", "from_lot_id": lot.ID, "volume_liters": int64(math.MaxInt64)})
	if resp.Code != http.StatusConflict {
		t.Fatalf("huge sale: expected 409, got %d (%s)", resp.Code, resp.Body.String())
	}
	resp = do(t, mux, http.MethodGet, "/api/v1/lots/"+lot.ID, nil)
	var after inventory.FuelLot
	if err := json.Unmarshal(resp.Body.Bytes(), &after); err != nil || after.UsedLiters != 1000 {
		t.Fatalf("lot after huge sale = %+v (%v)", after, err)
	}

	resp = do(t, mux, http.MethodPost, "/api/v1/units", map[string]any{"id": "unit-t1", "unit_type": "TANKER", "unit_code": "OLD1", "capacity_liters": 5000})
	if resp.Code != http.StatusConflict {
		t.Fatalf("rename referenced unit: expected 409, got %d", resp.Code)
	}
	resp = do(t, mux, http.MethodPost, "/api/v1/units", map[string]any{"id": "unit-t1", "unit_type": "TANKER", "unit_code": "4T1", "capacity_liters": 5000, "active": false})
	if resp.Code != http.StatusCreated {
		t.Fatalf("retire referenced unit: %d %s", resp.Code, resp.Body.String())
	}
	resp = do(t, mux, http.MethodPost, "/api/v1/units", map[string]any{"id": "unit-xa", "unit_type": "TANKER", "unit_code": "XA", "capacity_liters": 5000})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("code ending in a letter: expected 400, got %d", resp.Code)
	}
}

func TestStockExport(t *testing.T) {
	mux := newTestServer(t, nil)
	_ = do(t, mux, http.MethodPost, "/api/v1/lots", map[string]any{"unit_id": "unit-t1", "loaded_liters": 1000})

	resp := do(t, mux, http.MethodGet, "/api/v1/reports/stock.xlsx", nil)
	if resp.Code != http.StatusOK || resp.Body.Len() == 0 {
		t.Fatalf("xlsx export: %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Disposition"); got != `attachment; filename="stock-20260304.xlsx"` {
		t.Fatalf("content disposition = %q", got)
	}
	resp = do(t, mux, http.MethodGet, "/api/v1/reports/stock.pdf?from=2026-03-01", nil)
	if resp.Code != http.StatusOK || !bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("pdf export: %d", resp.Code)
	}
}

func TestActivityListing(t *testing.T) {
	sink := activity.NewMemorySink()
	_ = sink.Append(context.Background(), activity.Event{EventID: "e1", UnitID: "unit-t1", Summary: "lot created"})
	_ = sink.Append(context.Background(), activity.Event{EventID: "e2", UnitID: "unit-dt1", Summary: "sale"})
	mux := newTestServer(t, sink)

	resp := do(t, mux, http.MethodGet, "/api/v1/activity?unit_id=unit-t1", nil)
	var list []activity.Event
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil || len(list) != 1 || list[0].EventID != "e1" {
		t.Fatalf("activity = %+v (%v)", list, err)
	}
}
