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

const defaultLotsTable = "fuel_lots"

const lotColumns = `id, unit_id, unit_code, unit_capacity_liters, load_date, seq_index, seq_letters,
	loaded_liters, lot_code, used_liters, stock_status, origin, created_at, updated_at`

// LotRepository is a Postgres implementation for fuel lots.
type LotRepository struct {
	db    *sql.DB
	table string
}

// LotOption configures the repository.
type LotOption func(*LotRepository)

// WithLotTable overrides the default table name.
func WithLotTable(table string) LotOption {
	return func(repo *LotRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewLotRepository constructs a repository.
func NewLotRepository(db *sql.DB, opts ...LotOption) *LotRepository {
	repo := &LotRepository{db: db, table: defaultLotsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Insert writes a new lot.
func (r *LotRepository) Insert(ctx context.Context, lot *inventory.FuelLot) error {
	if r == nil || r.db == nil {
		return errors.New("lot repo: nil db")
	}
	if lot == nil {
		return errors.New("lot repo: nil lot")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, unit_id, unit_code, unit_capacity_liters, load_date, seq_index, seq_letters,
	loaded_liters, lot_code, used_liters, stock_status, origin, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5::date, $6, $7, $8, $9, $10, $11, $12, $13, $14
)`, r.table)

	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		lot.ID, lot.UnitID, lot.UnitCode, lot.UnitCapacityLiters, lot.LoadDate, lot.SeqIndex, lot.SeqLetters,
		lot.LoadedLiters, lot.LotCode, lot.UsedLiters, string(lot.StockStatus), string(lot.Origin), lot.CreatedAt, lot.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) && strings.Contains(database.ConstraintName(err), "lot_code") {
			return fmt.Errorf("%w: %s", inventory.ErrDuplicateLotCode, lot.LotCode)
		}
		return err
	}
	return nil
}

// Get loads a lot by id.
func (r *LotRepository) Get(ctx context.Context, id string) (*inventory.FuelLot, error) {
	return r.getOne(ctx, "id = $1", id, false)
}

// GetByCode loads a lot by its code.
func (r *LotRepository) GetByCode(ctx context.Context, code string) (*inventory.FuelLot, error) {
	return r.getOne(ctx, "lot_code = $1", code, false)
}

// GetForUpdate loads a lot and holds its row lock until the transaction ends.
func (r *LotRepository) GetForUpdate(ctx context.Context, id string) (*inventory.FuelLot, error) {
	if !database.InTx(ctx) {
		return nil, inventory.ErrNoTransaction
	}
	return r.getOne(ctx, "id = $1", id, true)
}

// LatestOpen returns the most recent INSTOCK lot of a unit.
func (r *LotRepository) LatestOpen(ctx context.Context, unitID string) (*inventory.FuelLot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("lot repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE unit_id = $1 AND stock_status = $2
ORDER BY load_date DESC, seq_index DESC, created_at DESC
LIMIT 1`, lotColumns, r.table)

	lot, err := scanLot(database.Conn(ctx, r.db).QueryRowContext(ctx, query, unitID, string(inventory.StockStatusInStock)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no open lot for unit %s", inventory.ErrLotNotFound, unitID)
		}
		return nil, err
	}
	return lot, nil
}

// UpdateBalance writes loaded/used/status of a lot.
func (r *LotRepository) UpdateBalance(ctx context.Context, lot *inventory.FuelLot) error {
	if r == nil || r.db == nil {
		return errors.New("lot repo: nil db")
	}
	if lot == nil {
		return errors.New("lot repo: nil lot")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET loaded_liters = $1, used_liters = $2, stock_status = $3, updated_at = $4
WHERE id = $5`, r.table)

	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		lot.LoadedLiters, lot.UsedLiters, string(lot.StockStatus), lot.UpdatedAt, lot.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", inventory.ErrLotNotFound, lot.ID)
	}
	return nil
}

// List returns lots matching filter ordered by load date, unit code and sequence.
func (r *LotRepository) List(ctx context.Context, filter inventory.LotFilter) ([]inventory.FuelLot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("lot repo: nil db")
	}
	var where []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.UnitID != "" {
		add("unit_id = $%d", filter.UnitID)
	}
	if filter.Status != "" {
		add("stock_status = $%d", string(filter.Status))
	}
	if !filter.From.IsZero() {
		add("load_date >= $%d::date", inventory.NormalizeDate(filter.From))
	}
	if !filter.To.IsZero() {
		add("load_date <= $%d::date", inventory.NormalizeDate(filter.To))
	}

	query := fmt.Sprintf("SELECT %s FROM %s", lotColumns, r.table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY load_date ASC, unit_code ASC, seq_index ASC, created_at ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []inventory.FuelLot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *LotRepository) getOne(ctx context.Context, cond string, arg any, forUpdate bool) (*inventory.FuelLot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("lot repo: nil db")
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", lotColumns, r.table, cond)
	if forUpdate {
		query += " FOR UPDATE"
	}
	lot, err := scanLot(database.Conn(ctx, r.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %v", inventory.ErrLotNotFound, arg)
		}
		if database.IsContention(err) {
			return nil, fmt.Errorf("%w: %v", inventory.ErrSequenceContention, err)
		}
		return nil, err
	}
	return lot, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLot(row rowScanner) (*inventory.FuelLot, error) {
	var lot inventory.FuelLot
	var status, origin string
	if err := row.Scan(
		&lot.ID,
		&lot.UnitID,
		&lot.UnitCode,
		&lot.UnitCapacityLiters,
		&lot.LoadDate,
		&lot.SeqIndex,
		&lot.SeqLetters,
		&lot.LoadedLiters,
		&lot.LotCode,
		&lot.UsedLiters,
		&status,
		&origin,
		&lot.CreatedAt,
		&lot.UpdatedAt,
	); err != nil {
		return nil, err
	}
	lot.StockStatus = inventory.StockStatus(status)
	lot.Origin = inventory.LotOrigin(origin)
	lot.LoadDate = inventory.NormalizeDate(lot.LoadDate)
	lot.CreatedAt = lot.CreatedAt.UTC()
	lot.UpdatedAt = lot.UpdatedAt.UTC()
	return &lot, nil
}
