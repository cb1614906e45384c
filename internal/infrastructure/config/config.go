package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "ENTELIWEB_CONFIG"

// Config is the root configuration structure for the enteliWEB service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Polling  PollingConfig  `yaml:"polling"`
	Journal  JournalConfig  `yaml:"journal"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

// GatewayConfig contains the enteliWEB server and login settings.
type GatewayConfig struct {
	Server        string `yaml:"server"` // host[:port], no scheme
	Scheme        string `yaml:"scheme"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	SessionCookie string `yaml:"session_cookie"`
	CSRFKey       string `yaml:"csrf_key"`
	Timeout       int    `yaml:"timeout"` // seconds per request
}

// PollingConfig bounds the status polls of the asynchronous workflows.
type PollingConfig struct {
	SaveDatabase PollConfig `yaml:"save_database"`
	CopyObject   PollConfig `yaml:"copy_object"`
}

// PollConfig is one poll policy. Interval and MaxInterval are seconds.
type PollConfig struct {
	Interval          int     `yaml:"interval"`
	MaxAttempts       int     `yaml:"max_attempts"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	MaxInterval       int     `yaml:"max_interval"`
}

// JournalConfig contains the SQLite task journal settings.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays prunes finished runs older than this at startup;
	// 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// JobsConfig contains the scheduled job settings.
type JobsConfig struct {
	Backup BackupJobConfig `yaml:"backup"`
	Sample SampleJobConfig `yaml:"sample"`
}

// BackupJobConfig schedules periodic device-database exports.
type BackupJobConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval int      `yaml:"interval"` // minutes
	DestDir  string   `yaml:"dest_dir"`
	Devices  []string `yaml:"devices"` // "site/device"
}

// SampleJobConfig schedules periodic property reads.
type SampleJobConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Interval int            `yaml:"interval"` // seconds
	Objects  []SampleObject `yaml:"objects"`
}

// SampleObject names one object and the properties sampled from it.
type SampleObject struct {
	Site       string   `yaml:"site"`
	Device     string   `yaml:"device"`
	Object     string   `yaml:"object"` // "AV1000" or "AV,1000"
	Properties []string `yaml:"properties"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ENTELIWEB_SECTION_KEY
// For example: ENTELIWEB_GATEWAY_SERVER, ENTELIWEB_JOURNAL_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
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
		Gateway: GatewayConfig{
			Scheme:        "http",
			SessionCookie: "enteliWebID",
			CSRFKey:       "_csrfToken",
			Timeout:       30,
		},
		Polling: PollingConfig{
			SaveDatabase: PollConfig{Interval: 5, MaxAttempts: 100, BackoffMultiplier: 1},
			CopyObject:   PollConfig{Interval: 5, MaxAttempts: 10, BackoffMultiplier: 1},
		},
		Journal: JournalConfig{
			Enabled:       true,
			Path:          "./data/enteliweb.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "enteliweb",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
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
		Jobs: JobsConfig{
			Backup: BackupJobConfig{Interval: 1440, DestDir: "./backups"},
			Sample: SampleJobConfig{Interval: 60},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ENTELIWEB_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("ENTELIWEB_GATEWAY_SERVER"); v != "" {
		cfg.Gateway.Server = v
	}
	if v := os.Getenv("ENTELIWEB_GATEWAY_USERNAME"); v != "" {
		cfg.Gateway.Username = v
	}
	if v := os.Getenv("ENTELIWEB_GATEWAY_PASSWORD"); v != "" {
		cfg.Gateway.Password = v
	}

	// Journal
	if v := os.Getenv("ENTELIWEB_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	// MQTT
	if v := os.Getenv("ENTELIWEB_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ENTELIWEB_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ENTELIWEB_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("ENTELIWEB_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.Server == "" {
		errs = append(errs, "gateway.server is required (set ENTELIWEB_GATEWAY_SERVER)")
	}
	if c.Gateway.Username == "" {
		errs = append(errs, "gateway.username is required")
	}
	if c.Gateway.Scheme != "http" && c.Gateway.Scheme != "https" {
		errs = append(errs, "gateway.scheme must be http or https")
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, "gateway.timeout must be positive")
	}

	errs = append(errs, c.Polling.SaveDatabase.validate("polling.save_database")...)
	errs = append(errs, c.Polling.CopyObject.validate("polling.copy_object")...)

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}
	if c.Journal.RetentionDays < 0 {
		errs = append(errs, "journal.retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if b := c.Jobs.Backup; b.Enabled {
		if b.Interval <= 0 {
			errs = append(errs, "jobs.backup.interval must be positive")
		}
		if len(b.Devices) == 0 {
			errs = append(errs, "jobs.backup.devices must name at least one device")
		}
		for _, d := range b.Devices {
			if site, dev, ok := strings.Cut(d, "/"); !ok || site == "" || dev == "" || strings.Contains(dev, "/") {
				errs = append(errs, fmt.Sprintf("jobs.backup.devices: %q is not site/device", d))
			}
		}
	}
	if s := c.Jobs.Sample; s.Enabled {
		if s.Interval <= 0 {
			errs = append(errs, "jobs.sample.interval must be positive")
		}
		if len(s.Objects) == 0 {
			errs = append(errs, "jobs.sample.objects must name at least one object")
		}
		for i, o := range s.Objects {
			if o.Site == "" || o.Device == "" || o.Object == "" || len(o.Properties) == 0 {
				errs = append(errs, fmt.Sprintf("jobs.sample.objects[%d] needs site, device, object and properties", i))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (p PollConfig) validate(name string) []string {
	var errs []string
	if p.Interval <= 0 {
		errs = append(errs, name+".interval must be positive")
	}
	if p.MaxAttempts <= 0 {
		errs = append(errs, name+".max_attempts must be positive")
	}
	if p.BackoffMultiplier < 0 {
		errs = append(errs, name+".backoff_multiplier must not be negative")
	}
	return errs
}

// GetTimeout returns the per-request gateway timeout as a Duration.
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Gateway.Timeout) * time.Second
}

// GetJournalRetention returns how long finished runs are kept; zero means
// forever.
func (c *Config) GetJournalRetention() time.Duration {
	return time.Duration(c.Journal.RetentionDays) * 24 * time.Hour
}

// GetBackupInterval returns the backup job period as a Duration.
func (c *Config) GetBackupInterval() time.Duration {
	return time.Duration(c.Jobs.Backup.Interval) * time.Minute
}

// GetSampleInterval returns the sample job period as a Duration.
func (c *Config) GetSampleInterval() time.Duration {
	return time.Duration(c.Jobs.Sample.Interval) * time.Second
}

// IntervalDuration returns the poll interval as a Duration.
func (p PollConfig) IntervalDuration() time.Duration {
	return time.Duration(p.Interval) * time.Second
}

// MaxIntervalDuration returns the backoff cap as a Duration; zero means no cap.
func (p PollConfig) MaxIntervalDuration() time.Duration {
	return time.Duration(p.MaxInterval) * time.Second
}
