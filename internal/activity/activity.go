package activity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fuel-ledger/internal/eventing"
	"fuel-ledger/internal/inventory/application/events"
)

// ErrAppendFailed wraps any sink failure. It never reaches ledger callers.
var ErrAppendFailed = errors.New("activity: append failed")

// Event is one activity trail line.
type Event struct {
	EventID    string          `json:"event_id"`
	TenantID   string          `json:"tenant_id"`
	EventType  string          `json:"event_type"`
	UnitID     string          `json:"unit_id"`
	LotID      string          `json:"lot_id,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	Summary    string          `json:"summary"`
	Digest     string          `json:"digest"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Sink stores or forwards activity events.
type Sink interface {
	Name() string
	Append(ctx context.Context, event Event) error
}

// Filter narrows activity listings.
type Filter struct {
	UnitID string
	LotID  string
	Limit  int
}

// Reader lists stored activity, most recent first.
type Reader interface {
	List(ctx context.Context, filter Filter) ([]Event, error)
}

// FromEnvelope converts a relayed envelope and its decoded payload into an Event.
func FromEnvelope(env eventing.Envelope, payload any) Event {
	return Event{
		EventID:    env.EventID,
		TenantID:   env.TenantID,
		EventType:  shortType(env.EventType),
		UnitID:     env.UnitID,
		LotID:      env.LotID,
		Actor:      env.Actor,
		Summary:    Summarize(payload),
		Digest:     DigestJSON(env.Payload),
		Payload:    env.Payload,
		OccurredAt: env.OccurredAt,
	}
}

// Summarize renders a one-line human description of a ledger event.
func Summarize(payload any) string {
	switch e := payload.(type) {
	case events.LotCreated:
		return fmt.Sprintf("lot %s created on %s with %d L (%s)", e.LotCode, e.UnitCode, e.LoadedLiters, strings.ToLower(e.Origin))
	case events.TransferRecorded:
		if e.ToLotCode != "" {
			return fmt.Sprintf("%s: %d L from %s to %s", e.Kind, e.VolumeLiters, e.FromLotCode, e.ToLotCode)
		}
		if e.VehicleRef != "" {
			return fmt.Sprintf("%s: %d L from %s to vehicle %s", e.Kind, e.VolumeLiters, e.FromLotCode, e.VehicleRef)
		}
		return fmt.Sprintf("%s: %d L from %s", e.Kind, e.VolumeLiters, e.FromLotCode)
	case events.TestingDrawRecorded:
		return fmt.Sprintf("TESTING: %d L drawn from %s", e.VolumeLiters, e.LotCode)
	default:
		return eventing.EventType(payload)
	}
}

// DigestJSON computes a SHA256 hex digest of a payload.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func shortType(eventType string) string {
	if i := strings.LastIndex(eventType, "."); i >= 0 {
		return eventType[i+1:]
	}
	return eventType
}
