package kasa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{BaseURL: srv.URL, Username: "user", Password: "pass"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return NewClient(cfg)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty base_url should fail validation")
	}

	cfg = Config{BaseURL: "http://127.0.0.1:9123"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("default timeout = %v, want 15s", cfg.Timeout)
	}
	if cfg.DiscoveryTimeout != 2*time.Minute {
		t.Errorf("default discovery timeout = %v, want 2m", cfg.DiscoveryTimeout)
	}
}

func TestGetSysInfo(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getSysInfo" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["host"] != "10.0.0.5" {
			t.Errorf("host = %q, want 10.0.0.5", body["host"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"sys_info": map[string]any{
				"alias":     "Lamp",
				"device_id": "dev-1",
				"state":     true,
			},
		})
	})

	info, err := c.GetSysInfo(context.Background(), "10.0.0.5")
	if err != nil {
		t.Fatalf("GetSysInfo: %v", err)
	}
	if info.Alias != "Lamp" || info.DeviceID != "dev-1" {
		t.Errorf("unexpected sys_info: %+v", info)
	}
	if info.State == nil || *info.State != true {
		t.Errorf("state = %v, want true", info.State)
	}
}

func TestGetSysInfoErrorPayload(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "device timed out"})
	})

	_, err := c.GetSysInfo(context.Background(), "10.0.0.5")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestGetSysInfoBadStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.GetSysInfo(context.Background(), "10.0.0.5")
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestGetSysInfoUnreachable(t *testing.T) {
	cfg := Config{BaseURL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond}
	cfg.Validate()
	c := NewClient(cfg)

	_, err := c.GetSysInfo(context.Background(), "10.0.0.5")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestControlDevice(t *testing.T) {
	var got map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/controlDevice" {
			t.Errorf("path = %s, want /controlDevice", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	})

	err := c.ControlDevice(context.Background(), "10.0.0.5", "brightness", "set_brightness", 75, 1)
	if err != nil {
		t.Fatalf("ControlDevice: %v", err)
	}

	if got["host"] != "10.0.0.5" || got["feature"] != "brightness" || got["action"] != "set_brightness" {
		t.Errorf("unexpected request body: %v", got)
	}
	if got["value"] != float64(75) {
		t.Errorf("value = %v, want 75", got["value"])
	}
	if got["child_num"] != float64(1) {
		t.Errorf("child_num = %v, want 1", got["child_num"])
	}
}

func TestControlDeviceWholeDeviceOmitsChildNum(t *testing.T) {
	var got map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	})

	if err := c.ControlDevice(context.Background(), "10.0.0.5", "state", "turn_on", nil, -1); err != nil {
		t.Fatalf("ControlDevice: %v", err)
	}
	if _, present := got["child_num"]; present {
		t.Error("whole-device control must not send child_num")
	}
	if _, present := got["value"]; present {
		t.Error("turn_on must not send a value")
	}
}

func TestControlDeviceFailure(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "connection reset"})
	})

	err := c.ControlDevice(context.Background(), "10.0.0.5", "state", "turn_on", nil, -1)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestDiscover(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user" || pass != "pass" {
			t.Error("discovery request missing basic auth")
		}
		var req DiscoveryRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.ManualDevices) != 1 || req.ManualDevices[0] != "10.0.0.42" {
			t.Errorf("manualDevices = %v", req.ManualDevices)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"10.0.0.5": map[string]any{
				"sys_info":     map[string]any{"alias": "Lamp", "device_id": "dev-1", "state": false},
				"feature_info": map[string]any{"brightness": true},
			},
		})
	})

	devices, err := c.Discover(context.Background(), DiscoveryRequest{
		ManualDevices: []string{"10.0.0.42"},
	})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	info, ok := devices["10.0.0.5"]
	if !ok {
		t.Fatalf("discovered devices = %v, want 10.0.0.5", devices)
	}
	if info.SysInfo.Alias != "Lamp" || !info.FeatureInfo.Brightness {
		t.Errorf("unexpected device info: %+v", info)
	}
}

func TestHealth(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
