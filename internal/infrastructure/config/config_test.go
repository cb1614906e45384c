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
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// validConfig returns the defaults plus the fields Validate requires.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Gateway.Server = "10.0.0.5"
	cfg.Gateway.Username = "admin"
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  server: "bms.example.com:8080"
  username: "operator"
  password: "from-file"
polling:
  save_database:
    interval: 2
    max_attempts: 30
journal:
  path: "/tmp/enteliweb-test.db"
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
jobs:
  sample:
    enabled: true
    interval: 15
    objects:
      - site: "Main"
        device: "100"
        object: "AV1"
        properties: ["present-value", "units"]
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.Server != "bms.example.com:8080" {
		t.Errorf("Gateway.Server = %q, want %q", cfg.Gateway.Server, "bms.example.com:8080")
	}
	if cfg.Polling.SaveDatabase.MaxAttempts != 30 || cfg.Polling.SaveDatabase.IntervalDuration() != 2*time.Second {
		t.Errorf("Polling.SaveDatabase = %+v", cfg.Polling.SaveDatabase)
	}
	// Untouched sections keep their defaults.
	if cfg.Polling.CopyObject.MaxAttempts != 10 {
		t.Errorf("Polling.CopyObject.MaxAttempts = %d, want 10", cfg.Polling.CopyObject.MaxAttempts)
	}
	if cfg.Gateway.SessionCookie != "enteliWebID" || cfg.Gateway.CSRFKey != "_csrfToken" {
		t.Errorf("Gateway cookie/key = %q/%q", cfg.Gateway.SessionCookie, cfg.Gateway.CSRFKey)
	}
	if got := cfg.Jobs.Sample.Objects[0].Properties; len(got) != 2 {
		t.Errorf("sample properties = %v", got)
	}
	if cfg.GetSampleInterval() != 15*time.Second {
		t.Errorf("GetSampleInterval() = %v", cfg.GetSampleInterval())
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Progress polls are evenly spaced unless an operator opts in to backoff.
	want := defaultConfig().Polling
	if cfg.Polling.CopyObject != want.CopyObject {
		t.Errorf("Polling.CopyObject = %+v, want %+v", cfg.Polling.CopyObject, want.CopyObject)
	}
	if cfg.Polling.SaveDatabase != want.SaveDatabase {
		t.Errorf("Polling.SaveDatabase = %+v, want %+v", cfg.Polling.SaveDatabase, want.SaveDatabase)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, `
gateway:
  username: "operator"
`))
	if err == nil {
		t.Fatal("Load() expected validation error for missing gateway.server, got nil")
	}
	if !strings.Contains(err.Error(), "gateway.server") {
		t.Errorf("error = %v, want it to name gateway.server", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("ENTELIWEB_GATEWAY_SERVER", "from-env")
	t.Setenv("ENTELIWEB_GATEWAY_PASSWORD", "env-secret")

	cfg, err := Load(writeConfig(t, `
gateway:
  server: "from-file"
  username: "operator"
  password: "file-secret"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.Server != "from-env" || cfg.Gateway.Password != "env-secret" {
		t.Errorf("Gateway = %+v, want environment values", cfg.Gateway)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing server", mutate: func(c *Config) { c.Gateway.Server = "" }, wantErr: "gateway.server"},
		{name: "missing username", mutate: func(c *Config) { c.Gateway.Username = "" }, wantErr: "gateway.username"},
		{name: "bad scheme", mutate: func(c *Config) { c.Gateway.Scheme = "ftp" }, wantErr: "gateway.scheme"},
		{name: "zero poll attempts", mutate: func(c *Config) { c.Polling.CopyObject.MaxAttempts = 0 }, wantErr: "polling.copy_object.max_attempts"},
		{name: "zero poll interval", mutate: func(c *Config) { c.Polling.SaveDatabase.Interval = 0 }, wantErr: "polling.save_database.interval"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "journal without path", mutate: func(c *Config) { c.Journal.Path = "" }, wantErr: "journal.path"},
		{name: "disabled journal needs no path", mutate: func(c *Config) { c.Journal.Enabled = false; c.Journal.Path = "" }},
		{name: "negative retention", mutate: func(c *Config) { c.Journal.RetentionDays = -1 }, wantErr: "journal.retention_days"},
		{name: "influxdb without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Bucket = "b" }, wantErr: "influxdb.url"},
		{
			name:    "backup without devices",
			mutate:  func(c *Config) { c.Jobs.Backup.Enabled = true },
			wantErr: "jobs.backup.devices",
		},
		{
			name: "backup device not site/device",
			mutate: func(c *Config) {
				c.Jobs.Backup.Enabled = true
				c.Jobs.Backup.Devices = []string{"Main"}
			},
			wantErr: `"Main" is not site/device`,
		},
		{
			name: "sample object without properties",
			mutate: func(c *Config) {
				c.Jobs.Sample.Enabled = true
				c.Jobs.Sample.Objects = []SampleObject{{Site: "Main", Device: "1", Object: "AV1"}}
			},
			wantErr: "jobs.sample.objects[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateAggregates(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway.Server = ""
	cfg.MQTT.QoS = 9

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	for _, want := range []string{"gateway.server", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := validConfig()
	cfg.Jobs.Backup.Interval = 90
	cfg.Polling.CopyObject.MaxInterval = 20

	if got := cfg.GetTimeout(); got != 30*time.Second {
		t.Errorf("GetTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetBackupInterval(); got != 90*time.Minute {
		t.Errorf("GetBackupInterval() = %v, want 90m", got)
	}
	if got := cfg.Polling.CopyObject.MaxIntervalDuration(); got != 20*time.Second {
		t.Errorf("MaxIntervalDuration() = %v, want 20s", got)
	}
	if got := cfg.GetJournalRetention(); got != 90*24*time.Hour {
		t.Errorf("GetJournalRetention() = %v, want 90 days", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("ENTELIWEB_GATEWAY_SERVER", "gw.example.com")
	t.Setenv("ENTELIWEB_GATEWAY_USERNAME", "svc")
	t.Setenv("ENTELIWEB_JOURNAL_PATH", "/custom/path.db")
	t.Setenv("ENTELIWEB_MQTT_HOST", "mqtt.example.com")
	t.Setenv("ENTELIWEB_MQTT_USERNAME", "testuser")
	t.Setenv("ENTELIWEB_MQTT_PASSWORD", "testpass")
	t.Setenv("ENTELIWEB_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	checks := []struct{ name, got, want string }{
		{"Gateway.Server", cfg.Gateway.Server, "gw.example.com"},
		{"Gateway.Username", cfg.Gateway.Username, "svc"},
		{"Journal.Path", cfg.Journal.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Polling.SaveDatabase.MaxAttempts != 100 || cfg.Polling.SaveDatabase.Interval != 5 {
		t.Errorf("save_database poll = %+v, want 100 attempts every 5s", cfg.Polling.SaveDatabase)
	}
	if cfg.Polling.CopyObject.MaxAttempts != 10 {
		t.Errorf("copy_object attempts = %d, want 10", cfg.Polling.CopyObject.MaxAttempts)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Journal.Path == "" {
		t.Error("defaultConfig should have non-empty Journal.Path")
	}
}
