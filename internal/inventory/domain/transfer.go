package inventory

import (
	"fmt"
	"time"
)

// ActivityKind classifies a movement of fuel out of a lot.
type ActivityKind string

const (
	KindTankerToTanker  ActivityKind = "TANKER_TO_TANKER"
	KindTankerToFixed   ActivityKind = "TANKER_TO_FIXED"
	KindTankerToVehicle ActivityKind = "TANKER_TO_VEHICLE"
	KindFixedToVehicle  ActivityKind = "FIXED_TO_VEHICLE"
	KindTesting         ActivityKind = "TESTING"
)

// IsValid reports whether the kind is known.
func (k ActivityKind) IsValid() bool {
	switch k {
	case KindTankerToTanker, KindTankerToFixed, KindTankerToVehicle, KindFixedToVehicle, KindTesting:
		return true
	default:
		return false
	}
}

// IsInternal reports whether volume stays in the ledger.
func (k ActivityKind) IsInternal() bool {
	return k == KindTankerToTanker || k == KindTankerToFixed
}

// IsSale reports whether volume leaves the ledger to a vehicle.
func (k ActivityKind) IsSale() bool {
	return k == KindTankerToVehicle || k == KindFixedToVehicle
}

// CheckSource verifies that the source unit type fits the kind.
func (k ActivityKind) CheckSource(t UnitType) error {
	switch k {
	case KindTankerToTanker, KindTankerToFixed, KindTankerToVehicle:
		if t != UnitTypeTanker {
			return fmt.Errorf("%w: %s requires a tanker source, got %s", ErrKindMismatch, k, t)
		}
	case KindFixedToVehicle:
		if !t.IsFixed() {
			return fmt.Errorf("%w: %s requires a fixed source, got %s", ErrKindMismatch, k, t)
		}
	case KindTesting:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, k)
	}
	return nil
}

// CheckDestination verifies that the destination unit type fits an internal kind.
func (k ActivityKind) CheckDestination(t UnitType) error {
	switch k {
	case KindTankerToTanker:
		if t != UnitTypeTanker {
			return fmt.Errorf("%w: %s requires a tanker destination, got %s", ErrKindMismatch, k, t)
		}
	case KindTankerToFixed:
		if !t.IsFixed() {
			return fmt.Errorf("%w: %s requires a fixed destination, got %s", ErrKindMismatch, k, t)
		}
	default:
		return fmt.Errorf("%w: %s has no destination", ErrInvalidTransfer, k)
	}
	return nil
}

// Transfer records an internal transfer or a sale.
type Transfer struct {
	ID           string       `json:"id"`
	Kind         ActivityKind `json:"kind"`
	FromLotID    string       `json:"from_lot_id"`
	FromUnitID   string       `json:"from_unit_id"`
	ToLotID      string       `json:"to_lot_id,omitempty"`
	ToUnitID     string       `json:"to_unit_id,omitempty"`
	VolumeLiters int64        `json:"volume_liters"`
	VehicleRef   string       `json:"vehicle_ref,omitempty"`
	Note         string       `json:"note,omitempty"`
	CreatedBy    string       `json:"created_by,omitempty"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// TestingDraw records self-consumption for quality testing. It is kept apart
// from transfers so that sale and transfer reporting never include it.
type TestingDraw struct {
	ID           string    `json:"id"`
	LotID        string    `json:"lot_id"`
	UnitID       string    `json:"unit_id"`
	VolumeLiters int64     `json:"volume_liters"`
	Note         string    `json:"note,omitempty"`
	CreatedBy    string    `json:"created_by,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
