package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Danfoss Air bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Session   SessionConfig   `yaml:"session"`
	Transport TransportConfig `yaml:"transport"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies the ventilation unit managed by this bridge.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Hostname seeds the stored device settings on first start.
	// Once settings exist in the database they take precedence.
	Hostname string `yaml:"hostname"`
}

// SessionConfig tunes the device session controller.
type SessionConfig struct {
	// DebounceWindow suppresses inbound mode echoes after a mode write.
	// Default: 6s
	DebounceWindow time.Duration `yaml:"debounce_window"`

	// ReinitDelay is the fixed delay between reconnection attempts.
	// Default: 30s
	ReinitDelay time.Duration `yaml:"reinit_delay"`

	// PollInterval is how often the transport refreshes parameters.
	// Default: 5s
	PollInterval time.Duration `yaml:"poll_interval"`

	// StartTimeout bounds transport start plus the serial-number reads.
	// Default: 20s
	StartTimeout time.Duration `yaml:"start_timeout"`

	// ContinueOnError keeps the transport polling after read errors.
	// Default: true
	ContinueOnError bool `yaml:"continue_on_error"`
}

// TransportConfig selects and configures the transport collaborator.
type TransportConfig struct {
	Type   string       `yaml:"type"`
	Modbus ModbusConfig `yaml:"modbus"`
}

// ModbusConfig contains Modbus TCP gateway settings.
type ModbusConfig struct {
	Port      int              `yaml:"port"`
	UnitID    int              `yaml:"unit_id"`
	Timeout   time.Duration    `yaml:"timeout"`
	Registers []RegisterConfig `yaml:"registers"`
}

// RegisterConfig maps one raw parameter onto a Modbus table entry.
type RegisterConfig struct {
	Name     string  `yaml:"name"`
	Table    string  `yaml:"table"` // holding, input, coil
	Address  uint16  `yaml:"address"`
	Kind     string  `yaml:"kind"` // number, bool
	Scale    float64 `yaml:"scale"`
	Signed   bool    `yaml:"signed"`
	Unit     string  `yaml:"unit"`
	Writable bool    `yaml:"writable"`
}

// BridgeConfig contains MQTT bridge settings.
type BridgeConfig struct {
	ID               string        `yaml:"id"`
	HealthInterval   time.Duration `yaml:"health_interval"`
	HistoryRetention time.Duration `yaml:"history_retention"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APIAuthConfig protects the mutating device routes.
type APIAuthConfig struct {
	// JWTSecret is the HMAC key bearer tokens are signed with.
	// Override with GRAYLOGIC_API_JWT_SECRET rather than storing it in the file.
	JWTSecret string `yaml:"jwt_secret"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_DANFOSS_HOSTNAME
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
		Device: DeviceConfig{
			ID:   "danfoss-air-01",
			Name: "Danfoss Air",
		},
		Session: SessionConfig{
			DebounceWindow:  6 * time.Second,
			ReinitDelay:     30 * time.Second,
			PollInterval:    5 * time.Second,
			StartTimeout:    20 * time.Second,
			ContinueOnError: true,
		},
		Transport: TransportConfig{
			Type: "modbus",
			Modbus: ModbusConfig{
				Port:    502,
				UnitID:  1,
				Timeout: 5 * time.Second,
			},
		},
		Bridge: BridgeConfig{
			ID:               "danfoss-bridge-01",
			HealthInterval:   30 * time.Second,
			HistoryRetention: 30 * 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Path:        "./data/danfossair.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-danfoss",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
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
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("GRAYLOGIC_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}
	if v := os.Getenv("GRAYLOGIC_DANFOSS_HOSTNAME"); v != "" {
		cfg.Device.Hostname = v
	}
	if v := os.Getenv("GRAYLOGIC_MODBUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Transport.Modbus.Port = port
		}
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
// All problems are reported together rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	errs = append(errs, c.Session.validate()...)
	errs = append(errs, c.Transport.validate()...)

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.HealthInterval <= 0 {
		errs = append(errs, "bridge.health_interval must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Auth.JWTSecret == "" {
		errs = append(errs, "api.auth.jwt_secret is required (set GRAYLOGIC_API_JWT_SECRET)")
	} else if len(c.API.Auth.JWTSecret) < MinJWTSecretLength {
		errs = append(errs, fmt.Sprintf("api.auth.jwt_secret must be at least %d characters", MinJWTSecretLength))
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (s SessionConfig) validate() []string {
	var errs []string
	if s.DebounceWindow <= 0 {
		errs = append(errs, "session.debounce_window must be positive")
	}
	if s.ReinitDelay <= 0 {
		errs = append(errs, "session.reinit_delay must be positive")
	}
	if s.PollInterval <= 0 {
		errs = append(errs, "session.poll_interval must be positive")
	}
	if s.StartTimeout <= 0 {
		errs = append(errs, "session.start_timeout must be positive")
	}
	return errs
}

// MinJWTSecretLength is the shortest accepted HMAC secret.
const MinJWTSecretLength = 32

// maxModbusUnitID is the highest addressable Modbus slave.
const maxModbusUnitID = 247

func (t TransportConfig) validate() []string {
	var errs []string
	if t.Type != "modbus" {
		return append(errs, fmt.Sprintf("transport.type %q is not supported (supported: modbus)", t.Type))
	}

	m := t.Modbus
	if m.Port < 1 || m.Port > 65535 {
		errs = append(errs, "transport.modbus.port must be between 1 and 65535")
	}
	if m.UnitID < 0 || m.UnitID > maxModbusUnitID {
		errs = append(errs, "transport.modbus.unit_id must be between 0 and 247")
	}
	if m.Timeout <= 0 {
		errs = append(errs, "transport.modbus.timeout must be positive")
	}
	if len(m.Registers) == 0 {
		errs = append(errs, "transport.modbus.registers must not be empty")
	}

	seen := make(map[string]bool, len(m.Registers))
	for i, r := range m.Registers {
		prefix := fmt.Sprintf("transport.modbus.registers[%d]", i)
		if r.Name == "" {
			errs = append(errs, prefix+".name is required")
		} else if seen[r.Name] {
			errs = append(errs, fmt.Sprintf("%s.name %q is duplicated", prefix, r.Name))
		}
		seen[r.Name] = true

		switch r.Table {
		case "holding", "input", "coil":
		default:
			errs = append(errs, fmt.Sprintf("%s.table %q must be holding, input or coil", prefix, r.Table))
		}
		switch r.Kind {
		case "number", "bool":
		default:
			errs = append(errs, fmt.Sprintf("%s.kind %q must be number or bool", prefix, r.Kind))
		}
		if r.Writable && r.Table == "input" {
			errs = append(errs, prefix+" input registers cannot be writable")
		}
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
