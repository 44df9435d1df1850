package service

import "errors"

// Domain errors surfaced at the API boundary. Validation failures are typed
// separately (telemetry.ValidationError) since they carry field detail.
var (
	// ErrUnknownDevice: telemetry or configuration for a device id that is
	// not registered (and auto-provisioning is off) or is deactivated.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrUnauthorized: missing or invalid application API key.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDeviceConflict: the device id is already registered to a different
	// company, or telemetry arrived under a key bound to the wrong company.
	ErrDeviceConflict = errors.New("device registered to another company")

	// ErrLedgerInvariant: applying the transaction would violate a balance
	// invariant (e.g. a BURN driving current credit negative). The
	// transaction is FAILED and the balance left unchanged.
	ErrLedgerInvariant = errors.New("ledger invariant violation")

	// ErrInvalidThreshold: non-positive threshold configuration.
	ErrInvalidThreshold = errors.New("invalid threshold: co2, energy and time window must be > 0")
)
