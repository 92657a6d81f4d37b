package history

import (
	"context"
	"time"

	"github.com/MichaelCWarren/homebridge-kasa-python/internal/fleet"
)

// pruneInterval is how often the retention window is enforced.
const pruneInterval = time.Hour

// MetricsWriter receives attribute changes as time-series points.
// Satisfied by influxdb.Client. Writes are fire-and-forget.
type MetricsWriter interface {
	WriteAttributeChange(deviceID, subID, attribute, source string, value float64, timestamp time.Time)
}

// Logger is the logging surface the recorder needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder drains a change channel into the store and, when configured,
// into InfluxDB. One recorder per mirror subscription.
type Recorder struct {
	store         *Store
	metrics       MetricsWriter
	logger        Logger
	retentionDays int
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// Metrics is optional; nil disables time-series forwarding.
	Metrics MetricsWriter

	// Logger is optional.
	Logger Logger

	// RetentionDays bounds the SQLite history. 0 disables pruning.
	RetentionDays int
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store *Store, opts RecorderOptions) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		store:         store,
		metrics:       opts.Metrics,
		logger:        logger,
		retentionDays: opts.RetentionDays,
	}
}

// Run consumes changes until the channel closes or ctx is cancelled.
// Persistence failures are logged, never fatal; a broken disk must not
// stall the mirror's event fan-out.
func (r *Recorder) Run(ctx context.Context, changes <-chan fleet.Change) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	r.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.prune(ctx)
		case change, ok := <-changes:
			if !ok {
				return
			}
			r.record(ctx, change)
		}
	}
}

func (r *Recorder) record(ctx context.Context, change fleet.Change) {
	now := time.Now()

	if err := r.store.Record(ctx, change, now); err != nil {
		r.logger.Error("recording attribute change failed",
			"device", change.DeviceID,
			"sub", change.SubID,
			"attribute", string(change.Attribute),
			"error", err,
		)
	}

	if r.metrics == nil {
		return
	}
	value, ok := numericValue(change.Value)
	if !ok {
		r.logger.Debug("skipping non-numeric value for metrics",
			"device", change.DeviceID,
			"attribute", string(change.Attribute),
		)
		return
	}
	r.metrics.WriteAttributeChange(change.DeviceID, change.SubID, string(change.Attribute), change.Source, value, now)
}

func (r *Recorder) prune(ctx context.Context) {
	if r.retentionDays <= 0 {
		return
	}
	deleted, err := r.store.Prune(ctx, r.retentionDays)
	if err != nil {
		r.logger.Warn("history prune failed", "error", err)
		return
	}
	if deleted > 0 {
		r.logger.Debug("history pruned", "rows", deleted)
	}
}

// numericValue converts a normalised attribute value to a float64 for
// time-series storage. Booleans encode as 0/1.
func numericValue(v any) (float64, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case float64:
		return val, true
	default:
		return 0, false
	}
}
