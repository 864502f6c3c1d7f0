package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fuel-ledger/internal/database"
	inventory "fuel-ledger/internal/inventory/domain"
)

const (
	defaultTransfersTable    = "fuel_transfers"
	defaultTestingDrawsTable = "testing_draws"
)

// TransferRepository is a Postgres implementation for transfers and testing draws.
type TransferRepository struct {
	db            *sql.DB
	transferTable string
	drawTable     string
}

// NewTransferRepository constructs a repository.
func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db, transferTable: defaultTransfersTable, drawTable: defaultTestingDrawsTable}
}

// InsertTransfer writes a transfer row.
func (r *TransferRepository) InsertTransfer(ctx context.Context, transfer *inventory.Transfer) error {
	if r == nil || r.db == nil {
		return errors.New("transfer repo: nil db")
	}
	if transfer == nil {
		return errors.New("transfer repo: nil transfer")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, kind, from_lot_id, from_unit_id, to_lot_id, to_unit_id,
	volume_liters, vehicle_ref, note, created_by, occurred_at
) VALUES (
	$1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, $11
)`, r.transferTable)

	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		transfer.ID, string(transfer.Kind), transfer.FromLotID, transfer.FromUnitID, transfer.ToLotID, transfer.ToUnitID,
		transfer.VolumeLiters, transfer.VehicleRef, transfer.Note, transfer.CreatedBy, transfer.OccurredAt,
	)
	return err
}

// InsertTestingDraw writes a testing draw row.
func (r *TransferRepository) InsertTestingDraw(ctx context.Context, draw *inventory.TestingDraw) error {
	if r == nil || r.db == nil {
		return errors.New("transfer repo: nil db")
	}
	if draw == nil {
		return errors.New("transfer repo: nil testing draw")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, lot_id, unit_id, volume_liters, note, created_by, occurred_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)`, r.drawTable)

	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		draw.ID, draw.LotID, draw.UnitID, draw.VolumeLiters, draw.Note, draw.CreatedBy, draw.OccurredAt)
	return err
}

// ListTransfers returns transfers matching filter in time order.
func (r *TransferRepository) ListTransfers(ctx context.Context, filter inventory.TransferFilter) ([]inventory.Transfer, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("transfer repo: nil db")
	}
	where, args := transferConditions(filter, "from_lot_id", "to_lot_id", "from_unit_id", "to_unit_id")
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	query := fmt.Sprintf(`
SELECT id, kind, from_lot_id, from_unit_id, COALESCE(to_lot_id, ''), COALESCE(to_unit_id, ''),
	volume_liters, vehicle_ref, note, created_by, occurred_at
FROM %s`, r.transferTable)
	query = finishQuery(query, where, &args, filter.Limit)

	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []inventory.Transfer
	for rows.Next() {
		var t inventory.Transfer
		var kind string
		if err := rows.Scan(&t.ID, &kind, &t.FromLotID, &t.FromUnitID, &t.ToLotID, &t.ToUnitID,
			&t.VolumeLiters, &t.VehicleRef, &t.Note, &t.CreatedBy, &t.OccurredAt); err != nil {
			return nil, err
		}
		t.Kind = inventory.ActivityKind(kind)
		t.OccurredAt = t.OccurredAt.UTC()
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListTestingDraws returns testing draws matching filter in time order.
func (r *TransferRepository) ListTestingDraws(ctx context.Context, filter inventory.TransferFilter) ([]inventory.TestingDraw, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("transfer repo: nil db")
	}
	where, args := transferConditions(filter, "lot_id", "", "unit_id", "")
	query := fmt.Sprintf(`
SELECT id, lot_id, unit_id, volume_liters, note, created_by, occurred_at
FROM %s`, r.drawTable)
	query = finishQuery(query, where, &args, filter.Limit)

	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []inventory.TestingDraw
	for rows.Next() {
		var d inventory.TestingDraw
		if err := rows.Scan(&d.ID, &d.LotID, &d.UnitID, &d.VolumeLiters, &d.Note, &d.CreatedBy, &d.OccurredAt); err != nil {
			return nil, err
		}
		d.OccurredAt = d.OccurredAt.UTC()
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func transferConditions(filter inventory.TransferFilter, lotCol, altLotCol, unitCol, altUnitCol string) ([]string, []any) {
	var where []string
	var args []any
	match := func(value, col, alt string) {
		args = append(args, value)
		if alt == "" {
			where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
			return
		}
		where = append(where, fmt.Sprintf("(%s = $%d OR %s = $%d)", col, len(args), alt, len(args)))
	}
	if filter.LotID != "" {
		match(filter.LotID, lotCol, altLotCol)
	}
	if filter.UnitID != "" {
		match(filter.UnitID, unitCol, altUnitCol)
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From.UTC())
		where = append(where, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.UTC())
		where = append(where, fmt.Sprintf("occurred_at < $%d", len(args)))
	}
	return where, args
}

func finishQuery(query string, where []string, args *[]any, limit int) string {
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY occurred_at ASC, id ASC"
	if limit > 0 {
		*args = append(*args, limit)
		query += fmt.Sprintf("\nLIMIT $%d", len(*args))
	}
	return query
}
