package history

import "errors"

// Sentinel errors for history operations.
var (
	// ErrInvalidLimit is returned when Recent is called with a non-positive limit.
	ErrInvalidLimit = errors.New("history: limit must be positive")
)
