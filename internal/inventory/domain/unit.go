package inventory

import (
	"fmt"
	"strings"
	"time"
)

// UnitType classifies a storage unit.
type UnitType string

const (
	UnitTypeTanker    UnitType = "TANKER"
	UnitTypeFixedTank UnitType = "FIXED_TANK"
	UnitTypeDispenser UnitType = "DISPENSER"
)

// IsValid reports whether the unit type is known.
func (t UnitType) IsValid() bool {
	switch t {
	case UnitTypeTanker, UnitTypeFixedTank, UnitTypeDispenser:
		return true
	default:
		return false
	}
}

// IsFixed reports whether the unit is a stationary installation.
func (t UnitType) IsFixed() bool {
	return t == UnitTypeFixedTank || t == UnitTypeDispenser
}

// StorageUnit is a tanker, fixed tank or dispenser able to hold fuel.
type StorageUnit struct {
	ID             string    `json:"id"`
	UnitType       UnitType  `json:"unit_type"`
	UnitCode       string    `json:"unit_code"`
	CapacityLiters int64     `json:"capacity_liters"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SameIdentity reports whether code, type and capacity match other. Only
// Active may change once lots reference a unit.
func (u StorageUnit) SameIdentity(other StorageUnit) bool {
	return u.UnitCode == other.UnitCode && u.UnitType == other.UnitType && u.CapacityLiters == other.CapacityLiters
}

// Validate checks unit invariants.
func (u StorageUnit) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidUnit)
	}
	if !u.UnitType.IsValid() {
		return fmt.Errorf("%w: unit type %q", ErrInvalidUnit, u.UnitType)
	}
	code := strings.TrimSpace(u.UnitCode)
	if code == "" {
		return fmt.Errorf("%w: empty unit code", ErrInvalidUnit)
	}
	// Lot codes append sequence letters right after the unit code.
	if last := code[len(code)-1]; last < '0' || last > '9' {
		return fmt.Errorf("%w: unit code %q must end in a digit", ErrInvalidUnit, code)
	}
	if u.CapacityLiters <= 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidUnit)
	}
	return nil
}
