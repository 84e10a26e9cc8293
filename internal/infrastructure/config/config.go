package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport kinds accepted by management.transport.
const (
	TransportMQTT     = "mqtt"
	TransportLoopback = "loopback"
)

// Config is the root configuration structure for Fleet Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Platform   PlatformConfig   `yaml:"platform"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Management ManagementConfig `yaml:"management"`
	Health     HealthConfig     `yaml:"health"`
}

// PlatformConfig identifies this fleet core instance.
type PlatformConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ManagementConfig contains device management call settings.
type ManagementConfig struct {
	// Transport selects the transport client: "mqtt" or "loopback".
	Transport string `yaml:"transport"`

	// Classifier is the reserved first topic segment of control traffic.
	Classifier string `yaml:"classifier"`

	// RequesterID is the client id this core puts in outgoing requests.
	// Device replies are published to a topic containing it.
	RequesterID string `yaml:"requester_id"`

	// DefaultTimeoutMS applies when a call does not set its own timeout.
	DefaultTimeoutMS int `yaml:"default_timeout_ms"`

	// RequestQoS is the MQTT QoS used for outgoing requests.
	RequestQoS int `yaml:"request_qos"`

	// StrictBodyLength fails inbound messages whose readable body is
	// shorter than the declared length instead of logging a warning.
	StrictBodyLength bool `yaml:"strict_body_length"`

	// Simulators are in-process agents started with the loopback transport.
	Simulators []SimulatorConfig `yaml:"simulators"`
}

// SimulatorConfig describes one simulated agent.
type SimulatorConfig struct {
	Scope    string `yaml:"scope"`
	ClientID string `yaml:"client_id"`

	// Encoding is "json" (default) or "cbor".
	Encoding string `yaml:"encoding"`
}

// HealthConfig contains the operational health endpoint settings.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FLEETCORE_SECTION_KEY
// For example: FLEETCORE_DATABASE_PATH, FLEETCORE_MANAGEMENT_REQUESTER_ID
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			ID:   "fleet-001",
			Name: "Fleet Core",
		},
		Database: DatabaseConfig{
			Path:        "./data/fleetcore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fleetcore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Management: ManagementConfig{
			Transport:        TransportMQTT,
			Classifier:       "$ctl",
			RequesterID:      "fleetcore",
			DefaultTimeoutMS: 30000,
			RequestQoS:       1,
		},
		Health: HealthConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8081,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FLEETCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("FLEETCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("FLEETCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FLEETCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FLEETCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FLEETCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Management
	if v := os.Getenv("FLEETCORE_MANAGEMENT_TRANSPORT"); v != "" {
		cfg.Management.Transport = v
	}
	if v := os.Getenv("FLEETCORE_MANAGEMENT_CLASSIFIER"); v != "" {
		cfg.Management.Classifier = v
	}
	if v := os.Getenv("FLEETCORE_MANAGEMENT_REQUESTER_ID"); v != "" {
		cfg.Management.RequesterID = v
	}
	if v := os.Getenv("FLEETCORE_MANAGEMENT_DEFAULT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Management.DefaultTimeoutMS = ms
		}
	}
}

// Validate checks the configuration for errors.
//
// All problems are reported together so an operator can fix the file in one pass.
func (c *Config) Validate() error {
	var errs []string

	if c.Platform.ID == "" {
		errs = append(errs, "platform.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	switch c.Management.Transport {
	case TransportMQTT, TransportLoopback:
	default:
		errs = append(errs, fmt.Sprintf("management.transport must be %q or %q", TransportMQTT, TransportLoopback))
	}

	if c.Management.Classifier == "" {
		errs = append(errs, "management.classifier is required")
	} else if strings.ContainsAny(c.Management.Classifier, "/+#") {
		errs = append(errs, "management.classifier must be a single topic segment")
	}

	if c.Management.RequesterID == "" {
		errs = append(errs, "management.requester_id is required")
	}

	if c.Management.DefaultTimeoutMS <= 0 {
		errs = append(errs, "management.default_timeout_ms must be positive")
	}

	if c.Management.RequestQoS < 0 || c.Management.RequestQoS > 2 {
		errs = append(errs, "management.request_qos must be 0, 1, or 2")
	}

	for i, sim := range c.Management.Simulators {
		if sim.Scope == "" || sim.ClientID == "" {
			errs = append(errs, fmt.Sprintf("management.simulators[%d] needs scope and client_id", i))
		}
		switch sim.Encoding {
		case "", "json", "cbor":
		default:
			errs = append(errs, fmt.Sprintf("management.simulators[%d].encoding must be json or cbor", i))
		}
	}
	if len(c.Management.Simulators) > 0 && c.Management.Transport != TransportLoopback {
		errs = append(errs, "management.simulators require the loopback transport")
	}

	if c.Health.Enabled && (c.Health.Port < 1 || c.Health.Port > 65535) {
		errs = append(errs, "health.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DefaultCallTimeout returns the management default timeout as a Duration.
func (c *Config) DefaultCallTimeout() time.Duration {
	return time.Duration(c.Management.DefaultTimeoutMS) * time.Millisecond
}

// HealthAddr returns the listen address of the health endpoint.
func (c *Config) HealthAddr() string {
	return fmt.Sprintf("%s:%d", c.Health.Host, c.Health.Port)
}
