package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the Tank Utility cloud API root.
const DefaultBaseURL = "https://data.tankutility.com/api"

// DefaultPollInterval is the polling period per tank (6 hours, in seconds).
const DefaultPollInterval = 21600

// Config is the root configuration structure for the Tank Utility bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Account  AccountConfig  `yaml:"account"`
	Devices  []DeviceConfig `yaml:"devices"`
	Polling  PollingConfig  `yaml:"polling"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AccountConfig contains the Tank Utility account credentials.
type AccountConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	BaseURL  string `yaml:"base_url"`
}

// DeviceConfig describes one tank monitor to poll.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`

	// Interval overrides polling.interval for this device (seconds).
	// Zero means use the global interval.
	Interval int `yaml:"interval,omitempty"`
}

// PollingConfig contains refresh scheduling settings.
type PollingConfig struct {
	// Interval is the default time between poll cycles (seconds).
	Interval int `yaml:"interval"`

	// RequestTimeout bounds each HTTP request to the API (seconds).
	RequestTimeout int `yaml:"request_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Forward   MQTTForwardConfig   `yaml:"forward"`
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
}

// MQTTForwardConfig controls forwarding of tank readings to MQTT topics.
type MQTTForwardConfig struct {
	Enabled     bool   `yaml:"enabled"`
	TopicPrefix string `yaml:"topic_prefix"`
	Retain      bool   `yaml:"retain"`
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TANKUTILITY_SECTION_KEY
// For example: TANKUTILITY_EMAIL, TANKUTILITY_MQTT_HOST
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Account: AccountConfig{
			BaseURL: DefaultBaseURL,
		},
		Polling: PollingConfig{
			Interval:       DefaultPollInterval,
			RequestTimeout: 10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tankutility-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Forward: MQTTForwardConfig{
				TopicPrefix: "homeassistant/generac_tank_utility",
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
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Credentials are expected to come from the environment in production.
func applyEnvOverrides(cfg *Config) {
	// Account
	if v := os.Getenv("TANKUTILITY_EMAIL"); v != "" {
		cfg.Account.Email = v
	}
	if v := os.Getenv("TANKUTILITY_PASSWORD"); v != "" {
		cfg.Account.Password = v
	}
	if v := os.Getenv("TANKUTILITY_BASE_URL"); v != "" {
		cfg.Account.BaseURL = v
	}

	// MQTT
	if v := os.Getenv("TANKUTILITY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TANKUTILITY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TANKUTILITY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("TANKUTILITY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Account validation
	if c.Account.Email == "" {
		errs = append(errs, "account.email is required (set TANKUTILITY_EMAIL environment variable)")
	}
	if c.Account.Password == "" {
		errs = append(errs, "account.password is required (set TANKUTILITY_PASSWORD environment variable)")
	}
	if u, err := url.Parse(c.Account.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "account.base_url must be an absolute URL")
	}

	// Devices validation
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
			continue
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicated", i, d.ID))
		}
		seen[d.ID] = true
		if d.Interval < 0 {
			errs = append(errs, fmt.Sprintf("devices[%d].interval must not be negative", i))
		}
	}

	// Polling validation
	if c.Polling.Interval <= 0 {
		errs = append(errs, "polling.interval must be positive")
	}
	if c.Polling.RequestTimeout <= 0 {
		errs = append(errs, "polling.request_timeout must be positive")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}
	if c.MQTT.Forward.Enabled && !c.MQTT.Enabled {
		errs = append(errs, "mqtt.forward.enabled requires mqtt.enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
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

// GetPollInterval returns the global poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Polling.Interval) * time.Second
}

// GetRequestTimeout returns the per-request API timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Polling.RequestTimeout) * time.Second
}

// DeviceInterval returns the poll interval for a device, falling back to the
// global interval when the device has no override.
func (c *Config) DeviceInterval(d DeviceConfig) time.Duration {
	if d.Interval > 0 {
		return time.Duration(d.Interval) * time.Second
	}
	return c.GetPollInterval()
}
