package bridge

import "errors"

// Sentinel errors for command handling.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrBadTopic is returned for command topics that don't match
	// kasa/set/<device>[/<sub>]/<attribute>.
	ErrBadTopic = errors.New("bridge: malformed command topic")

	// ErrBadPayload is returned for command payloads that aren't a JSON
	// boolean or number.
	ErrBadPayload = errors.New("bridge: command payload must be a JSON boolean or number")
)
