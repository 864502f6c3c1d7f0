package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fuel-ledger/internal/database"
	inventory "fuel-ledger/internal/inventory/domain"
)

const defaultUnitsTable = "storage_units"

// UnitRepository is a Postgres implementation for storage units.
type UnitRepository struct {
	db       *sql.DB
	table    string
	lotTable string
}

// UnitOption configures the repository.
type UnitOption func(*UnitRepository)

// WithUnitTable overrides the default table name.
func WithUnitTable(table string) UnitOption {
	return func(repo *UnitRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewUnitRepository constructs a repository.
func NewUnitRepository(db *sql.DB, opts ...UnitOption) *UnitRepository {
	repo := &UnitRepository{db: db, table: defaultUnitsTable, lotTable: defaultLotsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Get loads a unit by id.
func (r *UnitRepository) Get(ctx context.Context, id string) (*inventory.StorageUnit, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("unit repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, unit_type, unit_code, capacity_liters, active, created_at, updated_at
FROM %s
WHERE id = $1`, r.table)

	var unit inventory.StorageUnit
	var unitType string
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&unit.ID,
		&unitType,
		&unit.UnitCode,
		&unit.CapacityLiters,
		&unit.Active,
		&unit.CreatedAt,
		&unit.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", inventory.ErrUnknownUnit, id)
		}
		return nil, err
	}
	unit.UnitType = inventory.UnitType(unitType)
	unit.CreatedAt = unit.CreatedAt.UTC()
	unit.UpdatedAt = unit.UpdatedAt.UTC()
	return &unit, nil
}

// Save upserts a unit. Once lots reference it only Active may change; the
// conditional update then matches no row and Save returns ErrUnitInUse.
func (r *UnitRepository) Save(ctx context.Context, unit *inventory.StorageUnit) error {
	if r == nil || r.db == nil {
		return errors.New("unit repo: nil db")
	}
	if unit == nil {
		return errors.New("unit repo: nil unit")
	}
	if err := unit.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (
	id,
	unit_type,
	unit_code,
	capacity_liters,
	active
) VALUES (
	$1, $2, $3, $4, $5
)
ON CONFLICT (id)
DO UPDATE SET
	unit_type = EXCLUDED.unit_type,
	unit_code = EXCLUDED.unit_code,
	capacity_liters = EXCLUDED.capacity_liters,
	active = EXCLUDED.active,
	updated_at = NOW()
WHERE (%[1]s.unit_type = EXCLUDED.unit_type
	AND %[1]s.unit_code = EXCLUDED.unit_code
	AND %[1]s.capacity_liters = EXCLUDED.capacity_liters)
	OR NOT EXISTS (SELECT 1 FROM %[2]s l WHERE l.unit_id = %[1]s.id)
RETURNING created_at, updated_at`, r.table, r.lotTable)

	err := database.Conn(ctx, r.db).QueryRowContext(ctx, query,
		unit.ID,
		string(unit.UnitType),
		unit.UnitCode,
		unit.CapacityLiters,
		unit.Active,
	).Scan(&unit.CreatedAt, &unit.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", inventory.ErrUnitInUse, unit.ID)
		}
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: unit code %s already used", inventory.ErrInvalidUnit, unit.UnitCode)
		}
		return err
	}
	unit.CreatedAt = unit.CreatedAt.UTC()
	unit.UpdatedAt = unit.UpdatedAt.UTC()
	return nil
}

// List returns all units ordered by code.
func (r *UnitRepository) List(ctx context.Context) ([]inventory.StorageUnit, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("unit repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, unit_type, unit_code, capacity_liters, active, created_at, updated_at
FROM %s
ORDER BY unit_code ASC`, r.table)

	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []inventory.StorageUnit
	for rows.Next() {
		var unit inventory.StorageUnit
		var unitType string
		if err := rows.Scan(&unit.ID, &unitType, &unit.UnitCode, &unit.CapacityLiters, &unit.Active, &unit.CreatedAt, &unit.UpdatedAt); err != nil {
			return nil, err
		}
		unit.UnitType = inventory.UnitType(unitType)
		unit.CreatedAt = unit.CreatedAt.UTC()
		unit.UpdatedAt = unit.UpdatedAt.UTC()
		result = append(result, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
