package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
openvpn:
  log_path: /var/log/openvpn/server.log
  status_path: /var/log/openvpn/status.log
state:
  path: /var/lib/vpntrail/state.json
  max_tracked_sessions: 500
  idle_session_timeout: 12h
schedule:
  log_interval: 1m
  stats_interval: 10m
server:
  name: vpn-fra-1
  location: Frankfurt
logging:
  level: debug
  format: console
sink:
  type: mongodb
  timeout: 5s
  mongodb:
    uri: mongodb://localhost:27017
    database: openvpn_logs
metrics:
  enabled: true
  address: ":9090"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.OpenVPN.LogPath != "/var/log/openvpn/server.log" {
		t.Errorf("Unexpected log path: %s", cfg.OpenVPN.LogPath)
	}
	if cfg.State.MaxTrackedSessions != 500 {
		t.Errorf("Expected 500 tracked sessions, got %d", cfg.State.MaxTrackedSessions)
	}
	if cfg.State.IdleSessionTimeout != 12*time.Hour {
		t.Errorf("Unexpected idle timeout: %v", cfg.State.IdleSessionTimeout)
	}
	if cfg.Schedule.LogInterval != time.Minute {
		t.Errorf("Unexpected log interval: %v", cfg.Schedule.LogInterval)
	}
	if cfg.Server.Name != "vpn-fra-1" || cfg.Server.Location != "Frankfurt" {
		t.Errorf("Unexpected server identity: %+v", cfg.Server)
	}
	if cfg.Sink.Type != "mongodb" || cfg.Sink.MongoDB.URI != "mongodb://localhost:27017" {
		t.Errorf("Unexpected sink config: %+v", cfg.Sink)
	}
	if cfg.Sink.WriteTimeout() != 5*time.Second {
		t.Errorf("Unexpected write timeout: %v", cfg.Sink.WriteTimeout())
	}
	if cfg.Metrics == nil || !cfg.Metrics.Enabled || cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Unexpected metrics config: %+v", cfg.Metrics)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  name: vpn-1
sink:
  type: stdout
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.OpenVPN.LogPath != DefaultLogPath {
		t.Errorf("Expected default log path, got %s", cfg.OpenVPN.LogPath)
	}
	if cfg.State.Path != DefaultStatePath {
		t.Errorf("Expected default state path, got %s", cfg.State.Path)
	}
	if cfg.State.MaxTrackedSessions != DefaultMaxTrackedSessions {
		t.Errorf("Expected default session cap, got %d", cfg.State.MaxTrackedSessions)
	}
	if cfg.Schedule.LogInterval != DefaultLogInterval || cfg.Schedule.StatsInterval != DefaultStatsInterval {
		t.Errorf("Expected default intervals, got %+v", cfg.Schedule)
	}
	if cfg.Logging.Level != DefaultLogLevel || cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("Expected default logging, got %+v", cfg.Logging)
	}
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("VPNTRAIL_MONGO_URI", "mongodb://db.internal:27017")

	path := writeConfig(t, `
server:
  name: vpn-1
sink:
  type: mongodb
  mongodb:
    uri: ${VPNTRAIL_MONGO_URI}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sink.MongoDB.URI != "mongodb://db.internal:27017" {
		t.Errorf("Environment variable not expanded: %s", cfg.Sink.MongoDB.URI)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing server name", `
sink:
  type: stdout
`},
		{"bad log level", `
server:
  name: vpn-1
logging:
  level: verbose
sink:
  type: stdout
`},
		{"mongodb without uri", `
server:
  name: vpn-1
sink:
  type: mongodb
`},
		{"kafka without brokers", `
server:
  name: vpn-1
sink:
  type: kafka
  kafka:
    topic: vpn-events
`},
		{"unknown sink", `
server:
  name: vpn-1
sink:
  type: rabbitmq
`},
		{"metrics without address", `
server:
  name: vpn-1
sink:
  type: stdout
metrics:
  enabled: true
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := Load(path); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}
