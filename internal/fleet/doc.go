// Package fleet maintains a low-latency local mirror of the operational
// state of a fleet of Kasa smart-power devices (plugs, power strips,
// multi-channel dimmer and fan switches).
//
// The hard problem the package solves is coordinating concurrent access to
// the same physical device across independent triggers: a background polling
// loop per device, user-issued control commands, and a periodic fleet-wide
// discovery sweep. No stale write may overwrite a newer one, no command may
// race a background refresh, and one slow device must never stall another.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────────┐
//	│                              Fleet                                 │
//	│                                                                    │
//	│  ┌───────────────┐   ┌──────────────────┐   ┌──────────────────┐   │
//	│  │  Coordinator  │   │   Synchronizer   │   │      Handle      │   │
//	│  │(coordinator.go│──▶│ (synchronizer.go)│──▶│   (handle.go)    │   │
//	│  │               │   │                  │   │                  │   │
//	│  │ • SetValue    │   │ • poll loop      │   │ • snapshots      │   │
//	│  │ • busy/sweep  │   │ • diff + events  │   │ • lifecycle      │   │
//	│  │   waiters     │   │ • suspend/resume │   │ • in-flight ops  │   │
//	│  └───────┬───────┘   └────────┬─────────┘   └──────────────────┘   │
//	│          │                    │                                    │
//	│          ▼                    ▼                                    │
//	│  ┌───────────────┐   ┌──────────────────┐                          │
//	│  │KeyedSerializer│   │   Coalescer[T]   │                          │
//	│  │(serializer.go)│   │  (coalescer.go)  │                          │
//	│  └───────────────┘   └──────────────────┘                          │
//	└────────────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Fleet: registry of device handles plus the process-wide sweep signal
//   - Handle: long-lived object bound 1:1 to a physical device
//   - Snapshot: point-in-time record of a device's reported attributes
//   - KeyedSerializer: strict FIFO mutual exclusion per lock key
//   - Coalescer: collapses concurrent identical reads into one remote call
//   - Coordinator: mediates commands against refreshes and sweeps
//
// # Lock keys
//
// The unit of serialization is the lock key: the device ID for
// single-channel devices, or "deviceID/subID" for one channel of a
// multi-channel device. Commands to two different sub-devices of one strip
// proceed independently; commands to the same sub-device, or a whole-device
// refresh, serialize.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Per device, the mutable
// tuple (snapshot, previous snapshot, lifecycle, busy flags) is only mutated
// while holding that device's serializer key; reads of the last applied
// snapshot are lock-free best-effort and never block on in-flight refreshes.
package fleet
