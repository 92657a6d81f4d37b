package kasa

import "errors"

var (
	// ErrNetwork indicates the sidecar or the device behind it was
	// unreachable. The fleet treats this as a device-offline signal.
	ErrNetwork = errors.New("kasa: device unreachable")

	// ErrProtocol indicates the sidecar answered but the exchange failed:
	// unexpected status, malformed JSON, or an error payload.
	ErrProtocol = errors.New("kasa: protocol error")
)
