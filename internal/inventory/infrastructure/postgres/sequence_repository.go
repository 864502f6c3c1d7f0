package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fuel-ledger/internal/database"
	inventory "fuel-ledger/internal/inventory/domain"
)

const defaultSequencesTable = "lot_sequences"

// SequenceRepository keeps the explicit (unit, date) counter table.
type SequenceRepository struct {
	db    *sql.DB
	table string
}

// SequenceOption configures the repository.
type SequenceOption func(*SequenceRepository)

// WithSequenceTable overrides the default table name.
func WithSequenceTable(table string) SequenceOption {
	return func(repo *SequenceRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewSequenceRepository constructs a repository.
func NewSequenceRepository(db *sql.DB, opts ...SequenceOption) *SequenceRepository {
	repo := &SequenceRepository{db: db, table: defaultSequencesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Next increments the counter row for (unit, date). The upsert takes the row
// lock, so concurrent callers on the same key queue behind the holder until it
// commits or rolls back; a rollback also undoes the increment.
func (r *SequenceRepository) Next(ctx context.Context, unitID string, loadDate time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("sequence repo: nil db")
	}
	if !database.InTx(ctx) {
		return 0, inventory.ErrNoTransaction
	}
	query := fmt.Sprintf(`
INSERT INTO %s (unit_id, load_date, last_index, updated_at)
VALUES ($1, $2::date, 1, NOW())
ON CONFLICT (unit_id, load_date)
DO UPDATE SET
	last_index = %s.last_index + 1,
	updated_at = NOW()
RETURNING last_index`, r.table, r.table)

	var next int
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, query, unitID, inventory.NormalizeDate(loadDate)).Scan(&next)
	if err != nil {
		if database.IsContention(err) {
			return 0, fmt.Errorf("%w: %v", inventory.ErrSequenceContention, err)
		}
		return 0, err
	}
	return next, nil
}

// Current returns the last assigned index, 0 when none.
func (r *SequenceRepository) Current(ctx context.Context, unitID string, loadDate time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("sequence repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT last_index
FROM %s
WHERE unit_id = $1 AND load_date = $2::date`, r.table)

	var current int
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, query, unitID, inventory.NormalizeDate(loadDate)).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return current, nil
}
