package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fuel-ledger/internal/eventing"
	inventory "fuel-ledger/internal/inventory/domain"
)

// Store is an in-process ledger store for demos and tests. Units of work stage
// their writes and hold keyed locks (per sequence key and per lot) until they
// commit or roll back, so concurrent callers see the same serialization as the
// Postgres store.
type Store struct {
	mu        sync.RWMutex
	units     map[string]inventory.StorageUnit
	lots      map[string]inventory.FuelLot
	codes     map[string]string
	seqs      map[string]int
	transfers []inventory.Transfer
	draws     []inventory.TestingDraw
	outbox    []outboxEntry

	locks    *KeyedMutex
	lockWait time.Duration
}

type outboxEntry struct {
	record eventing.OutboxRecord
	status string
}

// Option configures the store.
type Option func(*Store)

// WithLockWait bounds how long a unit of work waits for a key before failing
// with ErrSequenceContention. Zero waits until the context ends.
func WithLockWait(wait time.Duration) Option {
	return func(s *Store) {
		if wait >= 0 {
			s.lockWait = wait
		}
	}
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		units: make(map[string]inventory.StorageUnit),
		lots:  make(map[string]inventory.FuelLot),
		codes: make(map[string]string),
		seqs:  make(map[string]int),
		locks: NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type txKey struct{}

type memTx struct {
	held      map[string]func()
	lots      map[string]*inventory.FuelLot
	inserted  []string
	seqs      map[string]int
	transfers []inventory.Transfer
	draws     []inventory.TestingDraw
	outbox    []eventing.OutboxRecord
}

func txFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(txKey{}).(*memTx)
	return tx
}

// RunInTx runs fn as one unit of work. Nested calls join the outer unit.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}
	tx := &memTx{
		held: make(map[string]func()),
		lots: make(map[string]*inventory.FuelLot),
		seqs: make(map[string]int),
	}
	defer tx.releaseAll()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range tx.inserted {
		lot := tx.lots[id]
		if owner, ok := s.codes[lot.LotCode]; ok && owner != id {
			return fmt.Errorf("%w: %s", inventory.ErrDuplicateLotCode, lot.LotCode)
		}
	}
	for id, lot := range tx.lots {
		if prev, ok := s.lots[id]; ok && prev.LotCode != lot.LotCode {
			delete(s.codes, prev.LotCode)
		}
		s.lots[id] = *lot
		s.codes[lot.LotCode] = id
	}
	for key, value := range tx.seqs {
		s.seqs[key] = value
	}
	s.transfers = append(s.transfers, tx.transfers...)
	s.draws = append(s.draws, tx.draws...)
	for _, record := range tx.outbox {
		s.outbox = append(s.outbox, outboxEntry{record: record, status: "pending"})
	}
	return nil
}

func (tx *memTx) releaseAll() {
	for key, release := range tx.held {
		release()
		delete(tx.held, key)
	}
}

func (s *Store) lockKey(ctx context.Context, tx *memTx, key string) error {
	if _, ok := tx.held[key]; ok {
		return nil
	}
	release, err := s.locks.Lock(ctx, key, s.lockWait)
	if err != nil {
		return err
	}
	tx.held[key] = release
	return nil
}

// Units returns the unit repository view.
func (s *Store) Units() *UnitRepository { return &UnitRepository{s: s} }

// Lots returns the lot repository view.
func (s *Store) Lots() *LotRepository { return &LotRepository{s: s} }

// Sequences returns the sequence repository view.
func (s *Store) Sequences() *SequenceRepository { return &SequenceRepository{s: s} }

// Transfers returns the transfer repository view.
func (s *Store) Transfers() *TransferRepository { return &TransferRepository{s: s} }

// Outbox returns the outbox view.
func (s *Store) Outbox() *OutboxStore { return &OutboxStore{s: s} }

// UnitRepository stores units in memory.
type UnitRepository struct{ s *Store }

// Get loads a unit by id.
func (r *UnitRepository) Get(_ context.Context, id string) (*inventory.StorageUnit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	unit, ok := r.s.units[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", inventory.ErrUnknownUnit, id)
	}
	return &unit, nil
}

// Save upserts a unit. Once lots reference it only Active may change.
func (r *UnitRepository) Save(_ context.Context, unit *inventory.StorageUnit) error {
	if unit == nil {
		return fmt.Errorf("%w: nil unit", inventory.ErrInvalidUnit)
	}
	if err := unit.Validate(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, existing := range r.s.units {
		if id != unit.ID && existing.UnitCode == unit.UnitCode {
			return fmt.Errorf("%w: unit code %s already used", inventory.ErrInvalidUnit, unit.UnitCode)
		}
	}
	prev, exists := r.s.units[unit.ID]
	if exists && !prev.SameIdentity(*unit) {
		for _, lot := range r.s.lots {
			if lot.UnitID == unit.ID {
				return fmt.Errorf("%w: %s", inventory.ErrUnitInUse, unit.ID)
			}
		}
	}
	now := time.Now().UTC()
	stored := *unit
	if exists {
		stored.CreatedAt = prev.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.s.units[unit.ID] = stored
	*unit = stored
	return nil
}

// List returns units ordered by code.
func (r *UnitRepository) List(_ context.Context) ([]inventory.StorageUnit, error) {
	r.s.mu.RLock()
	result := make([]inventory.StorageUnit, 0, len(r.s.units))
	for _, unit := range r.s.units {
		result = append(result, unit)
	}
	r.s.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].UnitCode < result[j].UnitCode })
	return result, nil
}

// SequenceRepository keeps lot counters in memory.
type SequenceRepository struct{ s *Store }

func sequenceKey(unitID string, loadDate time.Time) string {
	return unitID + "|" + inventory.NormalizeDate(loadDate).Format("2006-01-02")
}

// Next locks the (unit, date) key for the rest of the unit of work and returns the next index.
func (r *SequenceRepository) Next(ctx context.Context, unitID string, loadDate time.Time) (int, error) {
	tx := txFrom(ctx)
	if tx == nil {
		return 0, inventory.ErrNoTransaction
	}
	key := sequenceKey(unitID, loadDate)
	if err := r.s.lockKey(ctx, tx, "seq:"+key); err != nil {
		return 0, err
	}
	current, ok := tx.seqs[key]
	if !ok {
		r.s.mu.RLock()
		current = r.s.seqs[key]
		r.s.mu.RUnlock()
	}
	current++
	tx.seqs[key] = current
	return current, nil
}

// Current returns the last committed index for the key.
func (r *SequenceRepository) Current(ctx context.Context, unitID string, loadDate time.Time) (int, error) {
	key := sequenceKey(unitID, loadDate)
	if tx := txFrom(ctx); tx != nil {
		if value, ok := tx.seqs[key]; ok {
			return value, nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.seqs[key], nil
}

// LotRepository stores lots in memory.
type LotRepository struct{ s *Store }

// Insert stages a new lot.
func (r *LotRepository) Insert(ctx context.Context, lot *inventory.FuelLot) error {
	if lot == nil {
		return fmt.Errorf("%w: nil lot", inventory.ErrLotNotFound)
	}
	tx := txFrom(ctx)
	if tx == nil {
		return r.s.RunInTx(ctx, func(ctx context.Context) error { return r.Insert(ctx, lot) })
	}
	r.s.mu.RLock()
	_, exists := r.s.lots[lot.ID]
	_, codeTaken := r.s.codes[lot.LotCode]
	r.s.mu.RUnlock()
	if _, staged := tx.lots[lot.ID]; exists || staged {
		return fmt.Errorf("memory lot repo: lot %s already exists", lot.ID)
	}
	if codeTaken {
		return fmt.Errorf("%w: %s", inventory.ErrDuplicateLotCode, lot.LotCode)
	}
	for _, id := range tx.inserted {
		if tx.lots[id].LotCode == lot.LotCode {
			return fmt.Errorf("%w: %s", inventory.ErrDuplicateLotCode, lot.LotCode)
		}
	}
	staged := *lot
	tx.lots[lot.ID] = &staged
	tx.inserted = append(tx.inserted, lot.ID)
	return nil
}

// Get returns a copy of a lot.
func (r *LotRepository) Get(ctx context.Context, id string) (*inventory.FuelLot, error) {
	if tx := txFrom(ctx); tx != nil {
		if lot, ok := tx.lots[id]; ok {
			copied := *lot
			return &copied, nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	lot, ok := r.s.lots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", inventory.ErrLotNotFound, id)
	}
	return &lot, nil
}

// GetByCode returns a lot by its code.
func (r *LotRepository) GetByCode(ctx context.Context, code string) (*inventory.FuelLot, error) {
	r.s.mu.RLock()
	id, ok := r.s.codes[code]
	r.s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: code %s", inventory.ErrLotNotFound, code)
	}
	return r.Get(ctx, id)
}

// GetForUpdate locks the lot for the rest of the unit of work.
func (r *LotRepository) GetForUpdate(ctx context.Context, id string) (*inventory.FuelLot, error) {
	tx := txFrom(ctx)
	if tx == nil {
		return nil, inventory.ErrNoTransaction
	}
	if err := r.s.lockKey(ctx, tx, "lot:"+id); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// LatestOpen returns the most recent INSTOCK lot of a unit.
func (r *LotRepository) LatestOpen(ctx context.Context, unitID string) (*inventory.FuelLot, error) {
	lots, err := r.List(ctx, inventory.LotFilter{UnitID: unitID, Status: inventory.StockStatusInStock})
	if err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return nil, fmt.Errorf("%w: no open lot for unit %s", inventory.ErrLotNotFound, unitID)
	}
	latest := lots[len(lots)-1]
	return &latest, nil
}

// UpdateBalance stages new loaded/used/status values.
func (r *LotRepository) UpdateBalance(ctx context.Context, lot *inventory.FuelLot) error {
	if lot == nil {
		return fmt.Errorf("%w: nil lot", inventory.ErrLotNotFound)
	}
	tx := txFrom(ctx)
	if tx == nil {
		return r.s.RunInTx(ctx, func(ctx context.Context) error { return r.UpdateBalance(ctx, lot) })
	}
	current, err := r.Get(ctx, lot.ID)
	if err != nil {
		return err
	}
	current.LoadedLiters = lot.LoadedLiters
	current.UsedLiters = lot.UsedLiters
	current.StockStatus = lot.StockStatus
	current.UpdatedAt = lot.UpdatedAt
	tx.lots[lot.ID] = current
	return nil
}

// List returns lots ordered by load date, unit code and sequence.
func (r *LotRepository) List(ctx context.Context, filter inventory.LotFilter) ([]inventory.FuelLot, error) {
	merged := make(map[string]inventory.FuelLot)
	r.s.mu.RLock()
	for id, lot := range r.s.lots {
		merged[id] = lot
	}
	r.s.mu.RUnlock()
	if tx := txFrom(ctx); tx != nil {
		for id, lot := range tx.lots {
			merged[id] = *lot
		}
	}

	result := make([]inventory.FuelLot, 0, len(merged))
	for _, lot := range merged {
		if filter.UnitID != "" && lot.UnitID != filter.UnitID {
			continue
		}
		if filter.Status != "" && lot.StockStatus != filter.Status {
			continue
		}
		if !filter.From.IsZero() && lot.LoadDate.Before(inventory.NormalizeDate(filter.From)) {
			continue
		}
		if !filter.To.IsZero() && lot.LoadDate.After(inventory.NormalizeDate(filter.To)) {
			continue
		}
		result = append(result, lot)
	}
	sort.Slice(result, func(i, j int) bool { return lotLess(result[i], result[j]) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}
	return result, nil
}

func lotLess(a, b inventory.FuelLot) bool {
	if !a.LoadDate.Equal(b.LoadDate) {
		return a.LoadDate.Before(b.LoadDate)
	}
	if a.UnitCode != b.UnitCode {
		return a.UnitCode < b.UnitCode
	}
	if a.SeqIndex != b.SeqIndex {
		return a.SeqIndex < b.SeqIndex
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// TransferRepository stores transfers and testing draws in memory.
type TransferRepository struct{ s *Store }

// InsertTransfer stages a transfer.
func (r *TransferRepository) InsertTransfer(ctx context.Context, transfer *inventory.Transfer) error {
	if transfer == nil {
		return fmt.Errorf("%w: nil transfer", inventory.ErrInvalidTransfer)
	}
	tx := txFrom(ctx)
	if tx == nil {
		return r.s.RunInTx(ctx, func(ctx context.Context) error { return r.InsertTransfer(ctx, transfer) })
	}
	tx.transfers = append(tx.transfers, *transfer)
	return nil
}

// InsertTestingDraw stages a testing draw.
func (r *TransferRepository) InsertTestingDraw(ctx context.Context, draw *inventory.TestingDraw) error {
	if draw == nil {
		return fmt.Errorf("%w: nil testing draw", inventory.ErrInvalidTransfer)
	}
	tx := txFrom(ctx)
	if tx == nil {
		return r.s.RunInTx(ctx, func(ctx context.Context) error { return r.InsertTestingDraw(ctx, draw) })
	}
	tx.draws = append(tx.draws, *draw)
	return nil
}

// ListTransfers returns committed transfers in time order.
func (r *TransferRepository) ListTransfers(_ context.Context, filter inventory.TransferFilter) ([]inventory.Transfer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []inventory.Transfer
	for _, transfer := range r.s.transfers {
		if filter.LotID != "" && transfer.FromLotID != filter.LotID && transfer.ToLotID != filter.LotID {
			continue
		}
		if filter.UnitID != "" && transfer.FromUnitID != filter.UnitID && transfer.ToUnitID != filter.UnitID {
			continue
		}
		if filter.Kind != "" && transfer.Kind != filter.Kind {
			continue
		}
		if !inRange(transfer.OccurredAt, filter.From, filter.To) {
			continue
		}
		result = append(result, transfer)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].OccurredAt.Before(result[j].OccurredAt) })
	return limitTail(result, filter.Limit), nil
}

// ListTestingDraws returns committed testing draws in time order.
func (r *TransferRepository) ListTestingDraws(_ context.Context, filter inventory.TransferFilter) ([]inventory.TestingDraw, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []inventory.TestingDraw
	for _, draw := range r.s.draws {
		if filter.LotID != "" && draw.LotID != filter.LotID {
			continue
		}
		if filter.UnitID != "" && draw.UnitID != filter.UnitID {
			continue
		}
		if !inRange(draw.OccurredAt, filter.From, filter.To) {
			continue
		}
		result = append(result, draw)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].OccurredAt.Before(result[j].OccurredAt) })
	return limitTail(result, filter.Limit), nil
}

func inRange(at, from, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}

func limitTail[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[len(items)-limit:]
	}
	return items
}

// OutboxStore is the in-memory outbox. Inserts made inside a unit of work
// become visible only when it commits.
type OutboxStore struct{ s *Store }

// Insert stages an envelope.
func (o *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	id := eventing.NewEventID()
	record := eventing.OutboxRecord{ID: id, Envelope: env}
	tx := txFrom(ctx)
	if tx == nil {
		o.s.mu.Lock()
		o.s.outbox = append(o.s.outbox, outboxEntry{record: record, status: "pending"})
		o.s.mu.Unlock()
		return id, nil
	}
	tx.outbox = append(tx.outbox, record)
	return id, nil
}

// ListPending returns pending and failed records, oldest first.
func (o *OutboxStore) ListPending(_ context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	var result []eventing.OutboxRecord
	for _, entry := range o.s.outbox {
		if entry.status != "pending" && entry.status != "failed" {
			continue
		}
		result = append(result, entry.record)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

// MarkSent marks a record as delivered.
func (o *OutboxStore) MarkSent(_ context.Context, id string) error {
	return o.mark(id, "sent")
}

// MarkFailed marks a record for retry.
func (o *OutboxStore) MarkFailed(_ context.Context, id string) error {
	return o.mark(id, "failed")
}

// MarkDead stops retrying a record.
func (o *OutboxStore) MarkDead(_ context.Context, id string) error {
	return o.mark(id, "dead")
}

// Envelopes returns every committed envelope in insertion order.
func (o *OutboxStore) Envelopes() []eventing.Envelope {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	result := make([]eventing.Envelope, 0, len(o.s.outbox))
	for _, entry := range o.s.outbox {
		result = append(result, entry.record.Envelope)
	}
	return result
}

// Status returns the delivery status and failed attempts of a record.
func (o *OutboxStore) Status(id string) (string, int, bool) {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	for _, entry := range o.s.outbox {
		if entry.record.ID == id {
			return entry.status, entry.record.Attempts, true
		}
	}
	return "", 0, false
}

// Pending counts undelivered records.
func (o *OutboxStore) Pending() int {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	count := 0
	for _, entry := range o.s.outbox {
		if entry.status == "pending" || entry.status == "failed" {
			count++
		}
	}
	return count
}

func (o *OutboxStore) mark(id, status string) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for i := range o.s.outbox {
		if o.s.outbox[i].record.ID == id {
			o.s.outbox[i].status = status
			if status != "sent" {
				o.s.outbox[i].record.Attempts++
			}
			return nil
		}
	}
	return fmt.Errorf("memory outbox: record %s not found", id)
}
