package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MichaelCWarren/homebridge-kasa-python/internal/kasa"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
kasa:
  base_url: "http://127.0.0.1:9999"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Kasa.BaseURL != "http://127.0.0.1:9999" {
		t.Errorf("Kasa.BaseURL = %q, want %q", cfg.Kasa.BaseURL, "http://127.0.0.1:9999")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	// Defaults survive partial files.
	if cfg.Mirror.PollInterval != 10*time.Second {
		t.Errorf("Mirror.PollInterval = %v, want 10s", cfg.Mirror.PollInterval)
	}
	if cfg.Discovery.Interval != 5*time.Minute {
		t.Errorf("Discovery.Interval = %v, want 5m", cfg.Discovery.Interval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
kasa:
  base_url: ""
database:
  path: "/tmp/test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty kasa.base_url, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing kasa base URL",
			mutate:  func(c *Config) { c.Kasa = kasa.Config{} },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Mirror.PollInterval = 0 },
			wantErr: true,
		},
		{
			name:    "negative coalesce window",
			mutate:  func(c *Config) { c.Mirror.CoalesceWindow = -time.Second },
			wantErr: true,
		},
		{
			name:    "negative discovery interval",
			mutate:  func(c *Config) { c.Discovery.Interval = -time.Minute },
			wantErr: true,
		},
		{
			name: "invalid QoS when mqtt enabled",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{
			name:    "invalid QoS ignored when mqtt disabled",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: false,
		},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.Bucket = "kasa"
			},
			wantErr: true,
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Database.RetentionDays = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("KASABRIDGE_KASA_BASE_URL", "http://sidecar:9123")
	t.Setenv("KASABRIDGE_KASA_USERNAME", "kasa-user")
	t.Setenv("KASABRIDGE_KASA_PASSWORD", "kasa-pass")
	t.Setenv("KASABRIDGE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("KASABRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("KASABRIDGE_MQTT_PORT", "8883")
	t.Setenv("KASABRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("KASABRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("KASABRIDGE_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Kasa.BaseURL != "http://sidecar:9123" {
		t.Errorf("Kasa.BaseURL = %q", cfg.Kasa.BaseURL)
	}
	if cfg.Kasa.Username != "kasa-user" || cfg.Kasa.Password != "kasa-pass" {
		t.Errorf("Kasa credentials not overridden: %q/%q", cfg.Kasa.Username, cfg.Kasa.Password)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT auth not overridden: %q/%q", cfg.MQTT.Auth.Username, cfg.MQTT.Auth.Password)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Kasa.BaseURL == "" {
		t.Error("defaultConfig should have non-empty Kasa.BaseURL")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Mirror.EventBuffer != 64 {
		t.Errorf("defaultConfig Mirror.EventBuffer = %d, want 64", cfg.Mirror.EventBuffer)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig must validate: %v", err)
	}
}
