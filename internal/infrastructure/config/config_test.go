package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
mqtt:
  broker:
    host: "broker.local"
    port: 1884
    client_id: "test-client"
  reconnect:
    initial_delay: 4
    max_delay: 30
topics:
  temperature: "sensors/dht11/temp"
  humidity: ""
api:
  host: "127.0.0.1"
  port: 8080
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

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("MQTT.Broker.Port = %d, want 1884", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Reconnect.InitialDelay != 4 {
		t.Errorf("MQTT.Reconnect.InitialDelay = %d, want 4", cfg.MQTT.Reconnect.InitialDelay)
	}
	if cfg.Topics.Temperature != "sensors/dht11/temp" {
		t.Errorf("Topics.Temperature = %q, want %q", cfg.Topics.Temperature, "sensors/dht11/temp")
	}
	if cfg.Topics.HumidityEnabled() {
		t.Error("Topics.HumidityEnabled() = true, want false when humidity topic is blank")
	}
	// Unset keys keep their defaults.
	if cfg.Topics.OutputCommand != "fan/output" {
		t.Errorf("Topics.OutputCommand = %q, want %q", cfg.Topics.OutputCommand, "fan/output")
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
mqtt:
  reconnect:
    initial_delay: 1
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "initial_delay") {
		t.Errorf("Load() error = %v, want mention of initial_delay", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			modify: func(_ *Config) {},
		},
		{
			name:    "missing broker host",
			modify:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: "mqtt.broker.host",
		},
		{
			name:    "broker port out of range",
			modify:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: "mqtt.broker.port",
		},
		{
			name:    "reconnect delay below floor",
			modify:  func(c *Config) { c.MQTT.Reconnect.InitialDelay = 2 },
			wantErr: "initial_delay",
		},
		{
			name: "max delay below initial delay",
			modify: func(c *Config) {
				c.MQTT.Reconnect.InitialDelay = 10
				c.MQTT.Reconnect.MaxDelay = 5
			},
			wantErr: "max_delay",
		},
		{
			name:    "zero publish timeout",
			modify:  func(c *Config) { c.MQTT.Timeouts.Publish = 0 },
			wantErr: "mqtt.timeouts.publish",
		},
		{
			name:    "missing status command topic",
			modify:  func(c *Config) { c.Topics.StatusCommand = "" },
			wantErr: "topics.status_command",
		},
		{
			name:    "missing output command topic",
			modify:  func(c *Config) { c.Topics.OutputCommand = "" },
			wantErr: "topics.output_command",
		},
		{
			name: "no inbound topics",
			modify: func(c *Config) {
				c.Topics.Temperature = ""
				c.Topics.Humidity = ""
				c.Topics.ObservedOutput = ""
				c.Topics.StatusReadback = ""
			},
			wantErr: "at least one inbound topic",
		},
		{
			name:    "wildcard inbound topic",
			modify:  func(c *Config) { c.Topics.Temperature = "sensors/#" },
			wantErr: "wildcards",
		},
		{
			name:    "api port out of range",
			modify:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := defaultConfig()
	cfg.API.Timeouts.Read = 10
	cfg.API.Timeouts.Write = 20
	cfg.API.Timeouts.Idle = 30

	if got := cfg.API.GetReadTimeout(); got != 10*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 10s", got)
	}
	if got := cfg.API.GetWriteTimeout(); got != 20*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 20s", got)
	}
	if got := cfg.API.GetIdleTimeout(); got != 30*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 30s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("FANBRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("FANBRIDGE_MQTT_PORT", "8883")
	t.Setenv("FANBRIDGE_MQTT_CLIENT_ID", "bridge-1")
	t.Setenv("FANBRIDGE_MQTT_USERNAME", "fan")
	t.Setenv("FANBRIDGE_MQTT_PASSWORD", "secret")
	t.Setenv("FANBRIDGE_API_HOST", "127.0.0.1")
	t.Setenv("FANBRIDGE_API_PORT", "9090")
	t.Setenv("FANBRIDGE_LOG_LEVEL", "debug")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Broker.ClientID != "bridge-1" {
		t.Errorf("MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "bridge-1")
	}
	if cfg.MQTT.Auth.Username != "fan" || cfg.MQTT.Auth.Password != "secret" {
		t.Errorf("MQTT.Auth = %+v, want fan/secret", cfg.MQTT.Auth)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestApplyEnvOverrides_InvalidPortIgnored(t *testing.T) {
	t.Setenv("FANBRIDGE_MQTT_PORT", "not-a-number")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("FANBRIDGE_API_PORT", "5050")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if cfg.API.Port != 5050 {
		t.Errorf("API.Port = %d, want 5050", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Reconnect.InitialDelay < MinReconnectDelay {
		t.Errorf("MQTT.Reconnect.InitialDelay = %d, want >= %d", cfg.MQTT.Reconnect.InitialDelay, MinReconnectDelay)
	}
	if cfg.Topics.Temperature != "sensors/temp" {
		t.Errorf("Topics.Temperature = %q, want %q", cfg.Topics.Temperature, "sensors/temp")
	}
	if cfg.Topics.ObservedOutput != "fan/read" {
		t.Errorf("Topics.ObservedOutput = %q, want %q", cfg.Topics.ObservedOutput, "fan/read")
	}
	if cfg.Topics.StatusCommand != "fan/status" {
		t.Errorf("Topics.StatusCommand = %q, want %q", cfg.Topics.StatusCommand, "fan/status")
	}
	if cfg.Topics.StatusReadback != "" {
		t.Errorf("Topics.StatusReadback = %q, want empty", cfg.Topics.StatusReadback)
	}
	if !cfg.Topics.HumidityEnabled() {
		t.Error("Topics.HumidityEnabled() = false, want true by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

// TestLoad_ShippedConfig keeps configs/config.yaml in step with the built-in defaults.
func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load(shipped config) error = %v", err)
	}

	want := defaultConfig()
	if cfg.Topics != want.Topics {
		t.Errorf("Topics = %+v, want defaults %+v", cfg.Topics, want.Topics)
	}
	if cfg.API.Port != want.API.Port {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, want.API.Port)
	}
	if cfg.MQTT.Reconnect != want.MQTT.Reconnect {
		t.Errorf("MQTT.Reconnect = %+v, want %+v", cfg.MQTT.Reconnect, want.MQTT.Reconnect)
	}
	if cfg.WebSocket.Path != want.WebSocket.Path {
		t.Errorf("WebSocket.Path = %q, want %q", cfg.WebSocket.Path, want.WebSocket.Path)
	}
}
