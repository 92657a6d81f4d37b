package fleet

import "errors"

// Domain errors for the fleet package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, fleet.ErrAttributeUnmapped) {
//	    // internal invariant violation, device is still online
//	}
var (
	// ErrDeviceNotFound is returned when a device ID is not registered.
	ErrDeviceNotFound = errors.New("fleet: device not found")

	// ErrAttributeUnmapped is returned when a command names an attribute the
	// device did not report as supported. This is an internal invariant
	// violation, not a device fault; it never marks the device offline.
	ErrAttributeUnmapped = errors.New("fleet: attribute not mapped for device")

	// ErrSubDeviceUnknown is returned when a command targets a sub-device ID
	// that is not present in the last applied snapshot.
	ErrSubDeviceUnknown = errors.New("fleet: unknown sub-device")

	// ErrShuttingDown is returned when an operation is abandoned because the
	// process is stopping.
	ErrShuttingDown = errors.New("fleet: shutting down")
)

// errHalted aborts a refresh without marking the device offline.
// Used when the lifecycle left the running state between the tick and the
// serialized section, or when a remote response arrived after the device was
// already demoted.
var errHalted = errors.New("fleet: refresh halted")
