// Kasa Bridge - smart-power device mirror
//
// This is the main entry point for the Kasa bridge. It mirrors the state
// of a fleet of Kasa smart-power devices (plugs, power strips, dimmers)
// reached through a local python-kasa sidecar, and exposes the mirror
// over MQTT:
//   - Periodic discovery sweeps register devices as they appear
//   - Per-device pollers keep the in-memory mirror fresh
//   - Attribute changes are published retained and persisted to SQLite
//   - Set commands received over MQTT drive the devices
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/MichaelCWarren/homebridge-kasa-python/migrations"

	"github.com/MichaelCWarren/homebridge-kasa-python/internal/bridge"
	"github.com/MichaelCWarren/homebridge-kasa-python/internal/discovery"
	"github.com/MichaelCWarren/homebridge-kasa-python/internal/fleet"
	"github.com/MichaelCWarren/homebridge-kasa-python/internal/history"
	"github.com/MichaelCWarren/homebridge-kasa-python/internal/infrastructure/config"
	"github.com/MichaelCWarren/homebridge-kasa-python/internal/infrastructure/database"
	"github.com/MichaelCWarren/homebridge-kasa-python/internal/infrastructure/influxdb"
	"github.com/MichaelCWarren/homebridge-kasa-python/internal/infrastructure/logging"
	"github.com/MichaelCWarren/homebridge-kasa-python/internal/infrastructure/mqtt"
	"github.com/MichaelCWarren/homebridge-kasa-python/internal/kasa"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Kasa bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Sidecar client. The sidecar may still be starting; an unreachable
	// sidecar is reported at the first discovery sweep rather than fatal.
	kasaClient := kasa.NewClient(cfg.Kasa)
	if healthErr := kasaClient.Health(ctx); healthErr != nil {
		log.Warn("kasa sidecar not reachable yet", "url", cfg.Kasa.BaseURL, "error", healthErr)
	} else {
		log.Info("kasa sidecar reachable", "url", cfg.Kasa.BaseURL)
	}

	// Device mirror. The post-sweep settle window follows the discovery
	// cadence: a command parked behind a sweep is abandoned only after a
	// full discovery cycle fails to revive its device.
	mirror := fleet.New(fleet.Options{
		Client:         kasa.NewAdapter(kasaClient),
		Logger:         log,
		PollInterval:   cfg.Mirror.PollInterval,
		CoalesceWindow: cfg.Mirror.CoalesceWindow,
		SettleDelay:    cfg.Discovery.Interval,
		EventBuffer:    cfg.Mirror.EventBuffer,
	})
	defer mirror.Shutdown()
	log.Info("device mirror started",
		"poll_interval", cfg.Mirror.PollInterval,
		"coalesce_window", cfg.Mirror.CoalesceWindow,
	)

	var wg sync.WaitGroup

	// History recorder persists every attribute change.
	store := history.NewStore(db)
	var metrics history.MetricsWriter
	if influxClient != nil {
		metrics = influxClient
	}
	recorder := history.NewRecorder(store, history.RecorderOptions{
		Metrics:       metrics,
		Logger:        log,
		RetentionDays: cfg.Database.RetentionDays,
	})
	changes, cancelChanges := mirror.Subscribe()
	defer cancelChanges()
	wg.Add(1)
	go func() {
		defer wg.Done()
		recorder.Run(ctx, changes)
	}()
	log.Info("history recorder started", "retention_days", cfg.Database.RetentionDays)

	// MQTT bridge forwards changes out and commands in.
	if mqttClient != nil {
		mqttBridge := bridge.New(bridge.Options{
			Mirror: mirror,
			Client: mqttClient,
			Logger: log,
			QoS:    byte(cfg.MQTT.QoS),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if runErr := mqttBridge.Run(ctx); runErr != nil {
				log.Error("MQTT bridge stopped", "error", runErr)
			}
		}()
		log.Info("MQTT bridge started")
	}

	// Discovery sweeper registers devices and revives demoted ones.
	sweeper := discovery.NewSweeper(cfg.Discovery, kasaClient, mirror, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if runErr := sweeper.Run(ctx); runErr != nil && ctx.Err() == nil {
			log.Error("discovery sweeper stopped", "error", runErr)
		}
	}()
	log.Info("discovery sweeper started", "interval", cfg.Discovery.Interval)

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Stop the background loops before the deferred closes tear down the
	// connections they use.
	wg.Wait()

	log.Info("Kasa bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses KASABRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("KASABRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
