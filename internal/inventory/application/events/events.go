package events

import "time"

// LotCreated is emitted when a lot is created by a load or by an internal transfer.
type LotCreated struct {
	EventID      string    `json:"event_id"`
	TenantID     string    `json:"tenant_id"`
	LotID        string    `json:"lot_id"`
	LotCode      string    `json:"lot_code"`
	UnitID       string    `json:"unit_id"`
	UnitCode     string    `json:"unit_code"`
	LoadDate     time.Time `json:"load_date"`
	SeqIndex     int       `json:"seq_index"`
	LoadedLiters int64     `json:"loaded_liters"`
	Origin       string    `json:"origin"`
	Actor        string    `json:"actor,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// TransferRecorded is emitted for internal transfers and sales.
type TransferRecorded struct {
	EventID          string    `json:"event_id"`
	TenantID         string    `json:"tenant_id"`
	TransferID       string    `json:"transfer_id"`
	Kind             string    `json:"kind"`
	UnitID           string    `json:"unit_id"`
	FromLotID        string    `json:"from_lot_id"`
	FromLotCode      string    `json:"from_lot_code"`
	ToUnitID         string    `json:"to_unit_id,omitempty"`
	ToLotID          string    `json:"to_lot_id,omitempty"`
	ToLotCode        string    `json:"to_lot_code,omitempty"`
	DestinationIsNew bool      `json:"destination_is_new,omitempty"`
	VolumeLiters     int64     `json:"volume_liters"`
	FromUsedLiters   int64     `json:"from_used_liters"`
	FromStockStatus  string    `json:"from_stock_status"`
	VehicleRef       string    `json:"vehicle_ref,omitempty"`
	Actor            string    `json:"actor,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// TestingDrawRecorded is emitted for quality testing draws.
type TestingDrawRecorded struct {
	EventID        string    `json:"event_id"`
	TenantID       string    `json:"tenant_id"`
	DrawID         string    `json:"draw_id"`
	UnitID         string    `json:"unit_id"`
	LotID          string    `json:"lot_id"`
	LotCode        string    `json:"lot_code"`
	VolumeLiters   int64     `json:"volume_liters"`
	LotUsedLiters  int64     `json:"lot_used_liters"`
	LotStockStatus string    `json:"lot_stock_status"`
	Actor          string    `json:"actor,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
