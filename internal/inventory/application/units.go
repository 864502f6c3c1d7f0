package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	inventory "fuel-ledger/internal/inventory/domain"
)

// UnitRegistry resolves and maintains storage units.
type UnitRegistry struct {
	units  inventory.UnitRepository
	logger *zap.Logger
}

// NewUnitRegistry constructs a registry.
func NewUnitRegistry(units inventory.UnitRepository, logger *zap.Logger) (*UnitRegistry, error) {
	if units == nil {
		return nil, errors.New("unit registry: nil repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnitRegistry{units: units, logger: logger}, nil
}

// Get returns the unit or ErrUnknownUnit.
func (r *UnitRegistry) Get(ctx context.Context, unitID string) (*inventory.StorageUnit, error) {
	if strings.TrimSpace(unitID) == "" {
		return nil, fmt.Errorf("%w: empty unit id", inventory.ErrUnknownUnit)
	}
	return r.units.Get(ctx, unitID)
}

// RequireActive returns the unit when it exists and accepts new lots and transfers.
func (r *UnitRegistry) RequireActive(ctx context.Context, unitID string) (*inventory.StorageUnit, error) {
	unit, err := r.Get(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if !unit.Active {
		return nil, fmt.Errorf("%w: %s", inventory.ErrUnitInactive, unit.UnitCode)
	}
	return unit, nil
}

// Register validates and upserts a unit. A unit that lots reference is frozen
// except for Active; other edits fail with ErrUnitInUse.
func (r *UnitRegistry) Register(ctx context.Context, unit inventory.StorageUnit) (*inventory.StorageUnit, error) {
	unit.ID = strings.TrimSpace(unit.ID)
	unit.UnitCode = strings.TrimSpace(unit.UnitCode)
	unit.UnitType = inventory.UnitType(strings.ToUpper(strings.TrimSpace(string(unit.UnitType))))
	if err := unit.Validate(); err != nil {
		return nil, err
	}
	if err := r.units.Save(ctx, &unit); err != nil {
		return nil, err
	}
	r.logger.Info("storage unit registered",
		zap.String("unit_id", unit.ID),
		zap.String("unit_code", unit.UnitCode),
		zap.String("unit_type", string(unit.UnitType)),
		zap.Int64("capacity_liters", unit.CapacityLiters),
		zap.Bool("active", unit.Active),
	)
	return &unit, nil
}

// List returns all units ordered by code.
func (r *UnitRegistry) List(ctx context.Context) ([]inventory.StorageUnit, error) {
	return r.units.List(ctx)
}

// Seed registers each unit, stopping at the first failure.
func (r *UnitRegistry) Seed(ctx context.Context, units []inventory.StorageUnit) error {
	for _, unit := range units {
		if _, err := r.Register(ctx, unit); err != nil {
			return fmt.Errorf("seed unit %s: %w", unit.ID, err)
		}
	}
	return nil
}
