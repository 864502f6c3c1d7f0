package inventory

import "errors"

var (
	// ErrUnknownUnit is returned when a referenced storage unit does not exist.
	ErrUnknownUnit = errors.New("inventory: unknown unit")
	// ErrUnitInactive is returned when a retired unit is used for a new lot or transfer.
	ErrUnitInactive = errors.New("inventory: unit inactive")
	// ErrVolumeOutOfRange is returned when a volume is not positive or exceeds capacity.
	ErrVolumeOutOfRange = errors.New("inventory: volume out of range")
	// ErrInsufficientBalance is returned when a debit would exceed the loaded volume.
	ErrInsufficientBalance = errors.New("inventory: insufficient balance")
	// ErrLotNotFound is returned when a lot is not found.
	ErrLotNotFound = errors.New("inventory: lot not found")
	// ErrDuplicateLotCode is returned when a lot code already exists.
	ErrDuplicateLotCode = errors.New("inventory: duplicate lot code")
	// ErrSequenceContention is a transient failure to obtain a sequence or lot lock in time.
	ErrSequenceContention = errors.New("inventory: sequence contention")
	// ErrInvalidKind is returned for an unknown activity kind.
	ErrInvalidKind = errors.New("inventory: invalid activity kind")
	// ErrKindMismatch is returned when unit types do not fit the activity kind.
	ErrKindMismatch = errors.New("inventory: activity kind does not match unit types")
	// ErrInvalidTransfer is returned for structurally invalid transfers.
	ErrInvalidTransfer = errors.New("inventory: invalid transfer")
	// ErrInvalidUnit is returned when a storage unit fails validation.
	ErrInvalidUnit = errors.New("inventory: invalid unit")
	// ErrUnitInUse is returned when the code, type or capacity of a unit with lots is changed.
	ErrUnitInUse = errors.New("inventory: unit referenced by lots")
	// ErrInvalidFilter is returned for malformed listing filters.
	ErrInvalidFilter = errors.New("inventory: invalid filter")
	// ErrNoTransaction is returned when a tx-scoped operation runs outside a unit of work.
	ErrNoTransaction = errors.New("inventory: no active unit of work")
)
