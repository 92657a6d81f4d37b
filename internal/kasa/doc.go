// Package kasa is the HTTP client for the python-kasa sidecar service that
// owns the actual device connections.
//
// The sidecar exposes a small JSON API:
//
//	POST /getSysInfo     {"host": "..."}                     -> {"sys_info": {...}}
//	POST /controlDevice  {"host","feature","action",...}     -> {"status": "success"}
//	POST /discover       {"additionalBroadcasts","manualDevices"} -> {host: {...}, ...}
//	GET  /health                                             -> {"status": "healthy"}
//
// The sidecar reports failures two ways: a non-2xx status, or a 200 carrying
// an {"error": "..."} body. Both surface here as ErrProtocol or ErrNetwork
// depending on where the failure occurred.
//
// The adapter in this package converts sidecar payloads into the mirror's
// snapshot and capability types, and maps attribute writes onto the sidecar's
// feature/action vocabulary.
package kasa
