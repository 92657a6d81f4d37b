package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/MichaelCWarren/homebridge-kasa-python/internal/fleet"
	"github.com/MichaelCWarren/homebridge-kasa-python/internal/kasa"
)

// Config holds the discovery sweep settings.
type Config struct {
	// Interval between sweeps.
	// Default: 5m
	Interval time.Duration `yaml:"interval"`

	// AdditionalBroadcasts lists broadcast addresses probed beyond the
	// default 255.255.255.255, one per extra subnet.
	AdditionalBroadcasts []string `yaml:"additional_broadcasts"`

	// ManualDevices lists hosts probed directly, for devices broadcast
	// cannot reach.
	ManualDevices []string `yaml:"manual_devices"`
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("discovery: interval must not be negative")
	}
	if c.Interval == 0 {
		c.Interval = 5 * time.Minute
	}
	return nil
}

// Registry is the part of the fleet the sweeper drives.
type Registry interface {
	Upsert(id, host, alias string, caps fleet.Capabilities, initial *fleet.Snapshot) *fleet.Handle
	BeginSweep()
	CompleteSweep()
}

// Discoverer is the sidecar discovery call. Implemented by kasa.Client.
type Discoverer interface {
	Discover(ctx context.Context, req kasa.DiscoveryRequest) (map[string]kasa.DeviceInfo, error)
}

// Logger matches the logging facade used across the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Sweeper owns the discovery loop.
type Sweeper struct {
	cfg      Config
	client   Discoverer
	registry Registry
	logger   Logger
}

// NewSweeper creates a sweeper from a validated config.
func NewSweeper(cfg Config, client Discoverer, registry Registry, logger Logger) *Sweeper {
	return &Sweeper{
		cfg:      cfg,
		client:   client,
		registry: registry,
		logger:   logger,
	}
}

// Run sweeps once immediately, then on every interval tick until ctx is
// cancelled. The initial sweep populates the fleet before anything else in
// the service needs it.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.Sweep(ctx); err != nil {
		s.logger.Error("initial discovery sweep failed", "error", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("discovery sweep failed", "error", err)
			}
		}
	}
}

// Sweep performs one discovery pass. The fleet-wide sweep marker is held for
// the full duration, including device registration, so parked commands see a
// settled fleet when released.
func (s *Sweeper) Sweep(ctx context.Context) error {
	s.logger.Debug("discovery sweep starting",
		"broadcasts", len(s.cfg.AdditionalBroadcasts), "manual", len(s.cfg.ManualDevices))

	s.registry.BeginSweep()
	defer s.registry.CompleteSweep()

	devices, err := s.client.Discover(ctx, kasa.DiscoveryRequest{
		AdditionalBroadcasts: s.cfg.AdditionalBroadcasts,
		ManualDevices:        s.cfg.ManualDevices,
	})
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	registered := 0
	for host, info := range devices {
		sysInfo := info.SysInfo
		if sysInfo.DeviceID == "" {
			s.logger.Warn("discovered device without an id, skipping", "host", host)
			continue
		}

		snap := kasa.SnapshotFromSysInfo(&sysInfo)
		caps := kasa.CapabilitiesFromFeatureInfo(&sysInfo, info.FeatureInfo)
		s.registry.Upsert(sysInfo.DeviceID, host, sysInfo.Alias, caps, snap)
		registered++
	}

	s.logger.Info("discovery sweep complete", "devices", registered)
	return nil
}
