package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleetcore.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
platform:
  id: "test-fleet"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
management:
  classifier: "sys"
  requester_id: "core-1"
  default_timeout_ms: 1500
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Platform.ID != "test-fleet" {
		t.Errorf("Platform.ID = %q, want %q", cfg.Platform.ID, "test-fleet")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.Management.Classifier != "sys" {
		t.Errorf("Management.Classifier = %q, want %q", cfg.Management.Classifier, "sys")
	}
	if got := cfg.DefaultCallTimeout(); got != 1500*time.Millisecond {
		t.Errorf("DefaultCallTimeout() = %v, want 1.5s", got)
	}
	// Untouched sections keep their defaults.
	if cfg.Management.Transport != TransportMQTT {
		t.Errorf("Management.Transport = %q, want %q", cfg.Management.Transport, TransportMQTT)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/fleetcore.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
platform:
  id: ""
management:
  classifier: "a/b"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"platform.id", "management.classifier"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "missing platform ID", mutate: func(c *Config) { c.Platform.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid mqtt QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "unknown transport", mutate: func(c *Config) { c.Management.Transport = "amqp" }, wantErr: true},
		{name: "loopback transport", mutate: func(c *Config) { c.Management.Transport = TransportLoopback }, wantErr: false},
		{name: "empty classifier", mutate: func(c *Config) { c.Management.Classifier = "" }, wantErr: true},
		{name: "wildcard classifier", mutate: func(c *Config) { c.Management.Classifier = "#" }, wantErr: true},
		{name: "missing requester", mutate: func(c *Config) { c.Management.RequesterID = "" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Management.DefaultTimeoutMS = 0 }, wantErr: true},
		{name: "invalid request QoS", mutate: func(c *Config) { c.Management.RequestQoS = -1 }, wantErr: true},
		{name: "health port out of range", mutate: func(c *Config) { c.Health.Port = 70000 }, wantErr: true},
		{name: "health disabled ignores port", mutate: func(c *Config) { c.Health.Enabled = false; c.Health.Port = 0 }, wantErr: false},
		{name: "loopback simulators", mutate: func(c *Config) {
			c.Management.Transport = TransportLoopback
			c.Management.Simulators = []SimulatorConfig{{Scope: "acme", ClientID: "gw-01", Encoding: "cbor"}}
		}, wantErr: false},
		{name: "simulators over mqtt", mutate: func(c *Config) {
			c.Management.Simulators = []SimulatorConfig{{Scope: "acme", ClientID: "gw-01"}}
		}, wantErr: true},
		{name: "simulator without client", mutate: func(c *Config) {
			c.Management.Transport = TransportLoopback
			c.Management.Simulators = []SimulatorConfig{{Scope: "acme"}}
		}, wantErr: true},
		{name: "simulator unknown encoding", mutate: func(c *Config) {
			c.Management.Transport = TransportLoopback
			c.Management.Simulators = []SimulatorConfig{{Scope: "acme", ClientID: "gw-01", Encoding: "xml"}}
		}, wantErr: true},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
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

	t.Setenv("FLEETCORE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("FLEETCORE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("FLEETCORE_MQTT_USERNAME", "testuser")
	t.Setenv("FLEETCORE_MQTT_PASSWORD", "testpass")
	t.Setenv("FLEETCORE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("FLEETCORE_MANAGEMENT_TRANSPORT", "loopback")
	t.Setenv("FLEETCORE_MANAGEMENT_CLASSIFIER", "sys")
	t.Setenv("FLEETCORE_MANAGEMENT_REQUESTER_ID", "core-9")
	t.Setenv("FLEETCORE_MANAGEMENT_DEFAULT_TIMEOUT_MS", "2500")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Management.Transport", cfg.Management.Transport, "loopback"},
		{"Management.Classifier", cfg.Management.Classifier, "sys"},
		{"Management.RequesterID", cfg.Management.RequesterID, "core-9"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}

	if cfg.Management.DefaultTimeoutMS != 2500 {
		t.Errorf("Management.DefaultTimeoutMS = %d, want 2500", cfg.Management.DefaultTimeoutMS)
	}
}

func TestApplyEnvOverrides_BadTimeoutIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("FLEETCORE_MANAGEMENT_DEFAULT_TIMEOUT_MS", "soon")

	applyEnvOverrides(cfg)

	if cfg.Management.DefaultTimeoutMS != 30000 {
		t.Errorf("Management.DefaultTimeoutMS = %d, want default 30000", cfg.Management.DefaultTimeoutMS)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaultConfig should validate, got %v", err)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Management.Classifier != "$ctl" {
		t.Errorf("defaultConfig Management.Classifier = %q, want $ctl", cfg.Management.Classifier)
	}
	if got := cfg.HealthAddr(); got != "0.0.0.0:8081" {
		t.Errorf("HealthAddr() = %q, want 0.0.0.0:8081", got)
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "fleetcore.yaml"))
	if err != nil {
		t.Fatalf("Load(configs/fleetcore.yaml) error = %v", err)
	}
	if cfg.Management.Transport != TransportMQTT || cfg.Health.Port != 8081 {
		t.Errorf("unexpected shipped config: %+v", cfg.Management)
	}
}
