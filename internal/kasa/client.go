package kasa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the sidecar connection settings.
type Config struct {
	// BaseURL is the sidecar's address, e.g. "http://127.0.0.1:9123".
	BaseURL string `yaml:"base_url"`

	// Username and Password are sent as basic auth on discovery requests.
	// Required only for devices that need cloud credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Timeout bounds each request. Discovery gets DiscoveryTimeout instead,
	// since a sweep probes every broadcast domain.
	// Default: 15s
	Timeout time.Duration `yaml:"timeout"`

	// DiscoveryTimeout bounds a discovery sweep.
	// Default: 2m
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("kasa: base_url is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = 2 * time.Minute
	}
	return nil
}

// Client talks to the sidecar. Safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a sidecar client from a validated config.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// GetSysInfo fetches the full current state of one device.
func (c *Client) GetSysInfo(ctx context.Context, host string) (*SysInfo, error) {
	var resp struct {
		SysInfo *SysInfo `json:"sys_info"`
		Error   string   `json:"error"`
	}
	body := map[string]any{"host": host}
	if err := c.post(ctx, "/getSysInfo", body, false, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: getSysInfo %s: %s", ErrNetwork, host, resp.Error)
	}
	if resp.SysInfo == nil {
		return nil, fmt.Errorf("%w: getSysInfo %s: empty sys_info", ErrProtocol, host)
	}
	return resp.SysInfo, nil
}

// ControlDevice performs one feature action on a device or one of its
// children. childNum below zero addresses the whole device.
func (c *Client) ControlDevice(ctx context.Context, host, feature, action string, value any, childNum int) error {
	body := map[string]any{
		"host":    host,
		"feature": feature,
		"action":  action,
	}
	if value != nil {
		body["value"] = value
	}
	if childNum >= 0 {
		body["child_num"] = childNum
	}

	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := c.post(ctx, "/controlDevice", body, false, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: controlDevice %s %s/%s: %s", ErrNetwork, host, feature, action, resp.Error)
	}
	if resp.Status != "success" {
		return fmt.Errorf("%w: controlDevice %s: unexpected status %q", ErrProtocol, host, resp.Status)
	}
	return nil
}

// Discover runs one discovery sweep and returns every reachable supported
// device, keyed by host.
func (c *Client) Discover(ctx context.Context, req DiscoveryRequest) (map[string]DeviceInfo, error) {
	if req.AdditionalBroadcasts == nil {
		req.AdditionalBroadcasts = []string{}
	}
	if req.ManualDevices == nil {
		req.ManualDevices = []string{}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DiscoveryTimeout)
	defer cancel()

	devices := make(map[string]DeviceInfo)
	if err := c.post(ctx, "/discover", req, true, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Health checks the sidecar is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: build health request: %v", ErrProtocol, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health: status %d", ErrProtocol, resp.StatusCode)
	}
	return nil
}

// post sends one JSON request and decodes the JSON response. withAuth adds
// basic auth when credentials are configured.
func (c *Client) post(ctx context.Context, path string, body any, withAuth bool, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode %s request: %v", ErrProtocol, path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build %s request: %v", ErrProtocol, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if withAuth && c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNetwork, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", ErrNetwork, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: status %d: %s", ErrProtocol, path, resp.StatusCode, truncate(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrProtocol, path, err)
	}
	return nil
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
