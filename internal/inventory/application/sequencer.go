package application

import (
	"context"
	"errors"
	"time"

	inventory "fuel-ledger/internal/inventory/domain"
)

// LotSequencer allocates per (unit, load date) sequence indexes.
type LotSequencer struct {
	seqs inventory.SequenceRepository
}

// NewLotSequencer constructs a sequencer.
func NewLotSequencer(seqs inventory.SequenceRepository) (*LotSequencer, error) {
	if seqs == nil {
		return nil, errors.New("lot sequencer: nil repository")
	}
	return &LotSequencer{seqs: seqs}, nil
}

// Next reserves the next index. It must run inside a unit of work; the
// (unit, date) key stays locked until that unit commits or rolls back.
func (s *LotSequencer) Next(ctx context.Context, unitID string, loadDate time.Time) (int, error) {
	return s.seqs.Next(ctx, unitID, inventory.NormalizeDate(loadDate))
}

// Preview returns the index Next would hand out now, without reserving it.
func (s *LotSequencer) Preview(ctx context.Context, unitID string, loadDate time.Time) (int, error) {
	current, err := s.seqs.Current(ctx, unitID, inventory.NormalizeDate(loadDate))
	if err != nil {
		return 0, err
	}
	return current + 1, nil
}
