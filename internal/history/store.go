package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MichaelCWarren/homebridge-kasa-python/internal/fleet"
	"github.com/MichaelCWarren/homebridge-kasa-python/internal/infrastructure/database"
)

// hoursPerDay converts retention days to a time.Duration multiplier.
const hoursPerDay = 24

// Entry is one persisted attribute change.
type Entry struct {
	ID         int64
	DeviceID   string
	SubID      string
	Attribute  fleet.Attribute
	Value      string
	Source     string
	RecordedAt time.Time
}

// Store persists attribute changes in the attribute_history table.
// The table is created by the embedded migrations; callers must run
// db.Migrate before using the store.
type Store struct {
	db *database.DB
}

// NewStore creates a store over an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Record appends one change. Values are stored as JSON so booleans and
// numbers round-trip without a schema per attribute.
func (s *Store) Record(ctx context.Context, change fleet.Change, at time.Time) error {
	value, err := json.Marshal(change.Value)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attribute_history (device_id, sub_id, attribute, value, source, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		change.DeviceID,
		change.SubID,
		string(change.Attribute),
		string(value),
		change.Source,
		at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting history row: %w", err)
	}
	return nil
}

// Recent returns the newest entries for one device attribute, newest first.
// subID is empty for whole-device attributes.
func (s *Store) Recent(ctx context.Context, deviceID, subID string, attribute fleet.Attribute, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, sub_id, attribute, value, source, recorded_at
		FROM attribute_history
		WHERE device_id = ? AND sub_id = ? AND attribute = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`,
		deviceID, subID, string(attribute), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var attr, recordedAt string
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.SubID, &attr, &e.Value, &e.Source, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e.Attribute = fleet.Attribute(attr)
		e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the retention window and reports how
// many rows were removed. A non-positive retention keeps everything.
func (s *Store) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-time.Duration(retentionDays) * hoursPerDay * time.Hour)

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM attribute_history WHERE recorded_at < ?",
		cutoff.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading prune result: %w", err)
	}
	return deleted, nil
}
