package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Poll interval limits in milliseconds.
const (
	// MinPollIntervalMS is the enforced floor for the MyQ poll interval.
	// Polling faster than this risks vendor-side rate limiting.
	MinPollIntervalMS = 5000

	// DefaultPollIntervalMS is used when no interval is configured or the
	// configured value is below the floor.
	DefaultPollIntervalMS = 10000
)

// Config is the root configuration structure for the MyQ bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	MyQ      MyQConfig      `yaml:"myq"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BridgeConfig contains bridge identity settings.
type BridgeConfig struct {
	// ID identifies this bridge instance in MQTT topics and health messages.
	ID string `yaml:"id"`
}

// MyQConfig contains MyQ cloud account and polling settings.
type MyQConfig struct {
	// Brand selects the vendor variant: "liftmaster", "chamberlain" or
	// "craftsman". LiftMaster and Chamberlain share the same endpoint;
	// Craftsman uses its own endpoint and application id.
	Brand string `yaml:"brand"`

	// Username is the MyQ account email address.
	Username string `yaml:"username"`

	// Password is the MyQ account password, base64-obscured at rest.
	// This is deliberately reversible: it only keeps the password out of
	// casual plaintext reads, it is not a security boundary.
	Password string `yaml:"password"`

	// PollIntervalMS is the device poll interval in milliseconds.
	// Values below MinPollIntervalMS are rejected at load and replaced
	// with DefaultPollIntervalMS.
	PollIntervalMS int `yaml:"poll_interval_ms"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for door-state history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the local status HTTP endpoint settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_MYQ_SECTION_KEY
// For example: GRAYLOGIC_MYQ_USERNAME, GRAYLOGIC_MYQ_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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

	// Enforce the poll interval floor. A value below the floor is rejected
	// and replaced with the default rather than silently clamped, matching
	// the runtime behaviour of the poll scheduler.
	if cfg.MyQ.PollIntervalMS < MinPollIntervalMS {
		cfg.MyQ.PollIntervalMS = DefaultPollIntervalMS
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID: "myq",
		},
		MyQ: MyQConfig{
			Brand:          "liftmaster",
			PollIntervalMS: DefaultPollIntervalMS,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-myq",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/myqbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8091,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_MYQ_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MyQ account
	if v := os.Getenv("GRAYLOGIC_MYQ_USERNAME"); v != "" {
		cfg.MyQ.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MYQ_PASSWORD"); v != "" {
		cfg.MyQ.Password = v
	}
	if v := os.Getenv("GRAYLOGIC_MYQ_BRAND"); v != "" {
		cfg.MyQ.Brand = v
	}
	if v := os.Getenv("GRAYLOGIC_MYQ_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MyQ.PollIntervalMS = n
		}
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MYQ_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MYQ_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MYQ_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_MYQ_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_MYQ_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	switch strings.ToLower(c.MyQ.Brand) {
	case "liftmaster", "chamberlain", "craftsman":
	default:
		errs = append(errs, fmt.Sprintf("myq.brand %q is not one of liftmaster, chamberlain, craftsman", c.MyQ.Brand))
	}

	if c.MyQ.Password != "" {
		if _, err := c.MyQ.DecodedPassword(); err != nil {
			errs = append(errs, "myq.password is not valid base64 (store the password base64-encoded)")
		}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DecodedPassword returns the MyQ password in cleartext.
// The stored value is base64-obscured; decoding failures indicate a
// hand-edited config file.
func (c *MyQConfig) DecodedPassword() (string, error) {
	if c.Password == "" {
		return "", nil
	}
	decoded, err := base64.StdEncoding.DecodeString(c.Password)
	if err != nil {
		return "", fmt.Errorf("decoding myq password: %w", err)
	}
	return string(decoded), nil
}

// ObscurePassword base64-encodes a cleartext password for storage.
func ObscurePassword(cleartext string) string {
	return base64.StdEncoding.EncodeToString([]byte(cleartext))
}

// GetPollInterval returns the MyQ poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.MyQ.PollIntervalMS) * time.Millisecond
}
