// Package history persists mirrored attribute changes.
//
// Every change notification emitted by the device mirror is appended to
// the attribute_history table in SQLite, and optionally forwarded to
// InfluxDB as a time-series point. The Recorder consumes a change channel
// and drives both sinks; the Store owns the SQL.
//
// Rows are pruned on a rolling window controlled by
// database.retention_days (0 keeps everything).
package history
