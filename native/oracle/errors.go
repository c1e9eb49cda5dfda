package oracle

import "errors"

// The closed set of failures the oracle can signal. Every update-path failure
// aborts the enclosing call without committing partial state; queries never
// return these for missing data.
var (
	// ErrAlreadyInitialized is returned when Configure is called twice.
	ErrAlreadyInitialized = errors.New("oracle: already initialized")
	// ErrNotInitialized is returned when an operation runs before Configure.
	ErrNotInitialized = errors.New("oracle: not initialized")
	// ErrUnauthorized is returned when the caller is not the configured admin.
	ErrUnauthorized = errors.New("oracle: unauthorized")
	// ErrAssetMissing is returned when a registered asset vanished from the registry.
	ErrAssetMissing = errors.New("oracle: asset missing from registry")
	// ErrAssetAlreadyExists is returned when registering a duplicate asset.
	ErrAssetAlreadyExists = errors.New("oracle: asset already registered")
	// ErrAssetLimitExceeded is returned when the registry would exceed 255 slots.
	ErrAssetLimitExceeded = errors.New("oracle: asset registry full")
	// ErrFxAlreadyExists is returned when registering a duplicate FX symbol.
	ErrFxAlreadyExists = errors.New("oracle: fx symbol already registered")
	// ErrFxLimitExceeded is returned when the FX registry would exceed 255 slots.
	ErrFxLimitExceeded = errors.New("oracle: fx registry full")
	// ErrFxArrayLengthMismatch is returned when assets and FX symbols differ in length.
	ErrFxArrayLengthMismatch = errors.New("oracle: assets and fx symbols length mismatch")
	// ErrInvalidTimestamp is returned for zero, unaligned, or future update timestamps.
	ErrInvalidTimestamp = errors.New("oracle: invalid update timestamp")
	// ErrInvalidUpdateLength is returned when the update batch does not match the registry.
	ErrInvalidUpdateLength = errors.New("oracle: update length mismatch")
	// ErrInvalidYieldRate is returned for yield rates below 1.0 at the configured decimals.
	ErrInvalidYieldRate = errors.New("oracle: yield rate below minimum")
	// ErrYieldRateDecreased is returned when a yield rate drops more than one percent.
	ErrYieldRateDecreased = errors.New("oracle: yield rate decreased beyond tolerance")
	// ErrYieldRateDeviationExceeded is returned when a yield rate moves past the
	// configured deviation bound.
	ErrYieldRateDeviationExceeded = errors.New("oracle: yield rate deviation exceeded")
	// ErrStaleFxPrice is returned when the FX oracle has no usable price.
	ErrStaleFxPrice = errors.New("oracle: stale fx price")
	// ErrInvalidFxPrice is returned when the FX oracle reports a non-positive price.
	ErrInvalidFxPrice = errors.New("oracle: invalid fx price")
	// ErrFxOracleUnavailable is returned when no FX oracle is configured or reachable.
	ErrFxOracleUnavailable = errors.New("oracle: fx oracle unavailable")
	// ErrFxOracleTimestampDrift is returned when the FX oracle timestamp strays more
	// than two resolution windows from the timestamp being priced.
	ErrFxOracleTimestampDrift = errors.New("oracle: fx oracle timestamp drift")
	// ErrIntegerOverflow is returned when a computation leaves the signed 128-bit range.
	ErrIntegerOverflow = errors.New("oracle: integer overflow")
)
