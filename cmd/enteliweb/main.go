// enteliweb - enteliWEB gateway service
//
// This is the main entry point for the enteliweb service. It logs in to an
// enteliWEB gateway and runs the scheduled jobs against it:
//   - Periodic device-database backups
//   - Periodic property sampling, published to MQTT and InfluxDB
//   - A SQLite journal of every asynchronous gateway workflow
//
// Jobs can also be started on demand by publishing to
// enteliweb/command/backup or enteliweb/command/sample.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkaufman2023/enteliweb/internal/gateway"
	"github.com/mkaufman2023/enteliweb/internal/infrastructure/config"
	"github.com/mkaufman2023/enteliweb/internal/infrastructure/database"
	"github.com/mkaufman2023/enteliweb/internal/infrastructure/influxdb"
	"github.com/mkaufman2023/enteliweb/internal/infrastructure/logging"
	"github.com/mkaufman2023/enteliweb/internal/infrastructure/mqtt"
	"github.com/mkaufman2023/enteliweb/internal/jobs"
	"github.com/mkaufman2023/enteliweb/internal/journal"
	"github.com/mkaufman2023/enteliweb/internal/telemetry"
	"github.com/mkaufman2023/enteliweb/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// healthInterval is how often service health is published on MQTT.
const healthInterval = 30 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting enteliweb",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Task journal (optional)
	var observers gateway.Observers
	var recorder jobs.ResultRecorder
	if cfg.Journal.Enabled {
		db, taskJournal, journalErr := openJournal(ctx, cfg, log)
		if journalErr != nil {
			return journalErr
		}
		defer func() {
			log.Info("closing task journal")
			taskJournal.Stop()
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		observers = append(observers, taskJournal)
		recorder = taskJournal
	} else {
		log.Info("task journal disabled")
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	var publisher telemetry.Publisher
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		publisher = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	var metrics telemetry.MetricsWriter
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		metrics = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	qos := byte(cfg.MQTT.QoS)
	tel := telemetry.New(telemetry.Config{Publisher: publisher, Metrics: metrics, QoS: &qos})
	tel.SetLogger(log.Component("telemetry"))
	observers = append(observers, tel)

	client := newGatewayClient(cfg, observers, log.Component("gateway"))

	runner, err := jobs.New(jobs.Config{
		Client:   client,
		Server:   cfg.Gateway.Server,
		Username: cfg.Gateway.Username,
		Password: cfg.Gateway.Password,
		Jobs:     cfg.Jobs,
		Sampler:  tel,
		Recorder: recorder,
	})
	if err != nil {
		return fmt.Errorf("configuring jobs: %w", err)
	}
	runner.SetLogger(log.Component("jobs"))

	if err := runner.Login(ctx); err != nil {
		return fmt.Errorf("gateway login: %w", err)
	}
	log.Info("gateway login succeeded", "server", cfg.Gateway.Server)

	runner.Start(ctx)
	defer func() {
		log.Info("stopping jobs")
		runner.Stop()
	}()

	if mqttClient != nil {
		stopHealth, subErr := startMQTTControl(ctx, mqttClient, runner, tel, cfg, log)
		if subErr != nil {
			return subErr
		}
		defer stopHealth()
	}

	if err := healthCheck(ctx, runner, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred cleanup runs in reverse order: health reporter, jobs,
	// InfluxDB, MQTT, journal.

	log.Info("enteliweb stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ENTELIWEB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(config.EnvConfigPath); path != "" {
		return path
	}
	return defaultConfigPath
}

// openJournal opens and migrates the journal database, prunes expired runs,
// and starts the journal.
func openJournal(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, *journal.Journal, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Journal.Path,
		WALMode:     cfg.Journal.WALMode,
		BusyTimeout: cfg.Journal.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Journal.Path)

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	taskJournal := journal.New(db.DB)
	taskJournal.SetLogger(log.Component("journal"))
	if err := taskJournal.Start(); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("starting task journal: %w", err)
	}

	if retention := cfg.GetJournalRetention(); retention > 0 {
		pruned, err := taskJournal.PruneBefore(ctx, time.Now().Add(-retention))
		if err != nil {
			log.Warn("pruning task journal", "error", err)
		} else if pruned > 0 {
			log.Info("pruned old task runs", "count", pruned)
		}
	}

	if counts, err := taskJournal.CountByStatus(ctx); err == nil {
		args := make([]any, 0, 2*len(counts))
		for status, n := range counts {
			args = append(args, string(status), n)
		}
		log.Info("task journal ready", args...)
	}

	return db, taskJournal, nil
}

// newGatewayClient builds the gateway client from the gateway and polling
// config sections.
func newGatewayClient(cfg *config.Config, observer gateway.TaskObserver, log gateway.Logger) *gateway.Client {
	return gateway.New(gateway.Options{
		Scheme:           cfg.Gateway.Scheme,
		Timeout:          cfg.GetTimeout(),
		SessionCookie:    cfg.Gateway.SessionCookie,
		CSRFKey:          cfg.Gateway.CSRFKey,
		SaveDatabasePoll: pollPolicy(cfg.Polling.SaveDatabase),
		CopyObjectPoll:   pollPolicy(cfg.Polling.CopyObject),
		Observer:         observer,
		Logger:           log,
	})
}

func pollPolicy(p config.PollConfig) gateway.PollPolicy {
	return gateway.PollPolicy{
		Interval:          p.IntervalDuration(),
		MaxAttempts:       p.MaxAttempts,
		BackoffMultiplier: p.BackoffMultiplier,
		MaxInterval:       p.MaxIntervalDuration(),
	}
}

// startMQTTControl subscribes job commands and starts the health reporter.
// The returned func stops the reporter.
func startMQTTControl(ctx context.Context, client *mqtt.Client, runner *jobs.Runner, tel *telemetry.Telemetry, cfg *config.Config, log *logging.Logger) (func(), error) {
	topics := mqtt.Topics{}

	err := client.Subscribe(topics.AllCommands(), byte(cfg.MQTT.QoS), commandHandler(runner, log))
	if err != nil {
		return nil, fmt.Errorf("subscribing to commands: %w", err)
	}
	log.Info("listening for commands", "topic", topics.AllCommands())

	reporter := telemetry.NewHealthReporter(telemetry.HealthReporterConfig{
		Version:   version,
		Interval:  healthInterval,
		Publisher: client,
		Checks:    []telemetry.HealthCheck{runner.CheckSession},
		Telemetry: tel,
	})
	reporter.SetLogger(log.Component("health"))
	reporter.Start(ctx)

	return func() {
		log.Info("stopping health reporter")
		reporter.Stop()
	}, nil
}

// commandHandler turns enteliweb/command/<job> messages into job triggers.
// The payload is ignored.
func commandHandler(runner *jobs.Runner, log *logging.Logger) mqtt.MessageHandler {
	return func(topic string, _ []byte) error {
		name := mqtt.Topics{}.CommandName(topic)
		if err := runner.Trigger(name); err != nil {
			return fmt.Errorf("command %q: %w", name, err)
		}
		log.Info("job triggered by command", "job", name)
		return nil
	}
}

// healthCheck verifies the gateway session and every enabled connection.
func healthCheck(ctx context.Context, runner *jobs.Runner, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := runner.CheckSession(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
