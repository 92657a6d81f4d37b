// Package discovery runs the periodic network sweep that feeds the device
// fleet.
//
// Each sweep asks the sidecar to probe the configured broadcast domains and
// manual hosts, then registers every reported device with the fleet. Known
// devices get their address refreshed and, if they had been demoted offline,
// come back online with polling resumed. Devices absent from a sweep are left
// alone; their own poll loop decides when they are gone.
//
// While a sweep is in flight the fleet parks refreshes and commands behind
// it, so a sweep never interleaves with device I/O.
package discovery
