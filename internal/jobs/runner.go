package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mkaufman2023/enteliweb/internal/gateway"
	"github.com/mkaufman2023/enteliweb/internal/infrastructure/config"
)

// Job names accepted by Trigger.
const (
	JobBackup = "backup"
	JobSample = "sample"
)

// Logger is the logging interface used by the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sampler receives the values of one sampled object. Implemented by
// *telemetry.Telemetry.
type Sampler interface {
	PublishSample(ref gateway.ObjectReference, values map[string]string, ts time.Time) int
}

// ResultRecorder stores the outcome of a workflow. Implemented by
// *journal.Journal.
type ResultRecorder interface {
	RecordResult(ctx context.Context, res gateway.TaskResult) error
}

// Config holds everything a Runner needs.
type Config struct {
	Client *gateway.Client

	// Gateway credentials, used for the first login and every re-login.
	Server   string
	Username string
	Password string

	Jobs config.JobsConfig

	// Sampler and Recorder are optional.
	Sampler  Sampler
	Recorder ResultRecorder

	// Now stamps samples. Default: time.Now.
	Now func() time.Time
}

// sampleTarget is one object of the sample job.
type sampleTarget struct {
	ref        gateway.ObjectReference
	properties []string
}

// Runner schedules the backup and sample jobs.
//
// Thread Safety: All methods are safe for concurrent use; gateway
// operations from different jobs run one at a time.
type Runner struct {
	client   *gateway.Client
	keeper   *sessionKeeper
	sampler  Sampler
	recorder ResultRecorder
	now      func() time.Time
	logger   Logger

	backupEnabled  bool
	backupInterval time.Duration
	backupDir      string
	devices        []gateway.DeviceAddress

	sampleEnabled  bool
	sampleInterval time.Duration
	targets        []sampleTarget

	triggers map[string]chan struct{}

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New validates the configured targets and returns a Runner. Nothing talks
// to the gateway until Login, a Run method, or Start.
func New(cfg Config) (*Runner, error) {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	r := &Runner{
		client:         cfg.Client,
		sampler:        cfg.Sampler,
		recorder:       cfg.Recorder,
		now:            now,
		logger:         noopLogger{},
		backupEnabled:  cfg.Jobs.Backup.Enabled,
		backupInterval: time.Duration(cfg.Jobs.Backup.Interval) * time.Minute,
		backupDir:      cfg.Jobs.Backup.DestDir,
		sampleEnabled:  cfg.Jobs.Sample.Enabled,
		sampleInterval: time.Duration(cfg.Jobs.Sample.Interval) * time.Second,
		triggers: map[string]chan struct{}{
			JobBackup: make(chan struct{}, 1),
			JobSample: make(chan struct{}, 1),
		},
		done: make(chan struct{}),
	}
	if r.backupEnabled && r.backupInterval <= 0 {
		return nil, fmt.Errorf("%w: backup interval must be positive", ErrInvalidSchedule)
	}
	if r.sampleEnabled && r.sampleInterval <= 0 {
		return nil, fmt.Errorf("%w: sample interval must be positive", ErrInvalidSchedule)
	}

	r.keeper = &sessionKeeper{
		client:   cfg.Client,
		server:   cfg.Server,
		username: cfg.Username,
		password: cfg.Password,
		logger:   r.logger,
	}

	for _, d := range cfg.Jobs.Backup.Devices {
		site, device, ok := strings.Cut(d, "/")
		dev := gateway.DeviceAddress{Site: site, Device: device}
		if !ok {
			return nil, fmt.Errorf("%w: backup device %q is not site/device", ErrInvalidTarget, d)
		}
		if err := dev.Validate(); err != nil {
			return nil, fmt.Errorf("%w: backup device %q: %w", ErrInvalidTarget, d, err)
		}
		r.devices = append(r.devices, dev)
	}

	for _, o := range cfg.Jobs.Sample.Objects {
		ref, err := gateway.NewObjectReference(gateway.DeviceAddress{Site: o.Site, Device: o.Device}, o.Object)
		if err != nil {
			return nil, fmt.Errorf("%w: sample object %s/%s/%s: %w", ErrInvalidTarget, o.Site, o.Device, o.Object, err)
		}
		r.targets = append(r.targets, sampleTarget{ref: ref, properties: o.Properties})
	}

	return r, nil
}

// SetLogger sets the logger for job output.
func (r *Runner) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
	r.keeper.logger = logger
}

// Login establishes the shared session now rather than on first use.
func (r *Runner) Login(ctx context.Context) error {
	return r.keeper.login(ctx)
}

// Logins returns how many successful logins the runner has made.
func (r *Runner) Logins() int64 {
	return r.keeper.logins.Load()
}

// CheckSession reports ErrNoSession while no authenticated session exists.
// It never blocks on a running job.
func (r *Runner) CheckSession(_ context.Context) error {
	if !r.keeper.authenticated.Load() {
		return ErrNoSession
	}
	return nil
}

// Start runs the enabled jobs on their intervals until ctx is done or Stop
// is called. Each job runs once immediately.
func (r *Runner) Start(ctx context.Context) {
	if r.backupEnabled {
		r.wg.Add(1)
		go r.loop(ctx, JobBackup, r.backupInterval, func(ctx context.Context) { r.RunBackup(ctx) })
	}
	if r.sampleEnabled {
		r.wg.Add(1)
		go r.loop(ctx, JobSample, r.sampleInterval, func(ctx context.Context) { r.RunSample(ctx) })
	}
}

// Stop ends the job loops, waits for running jobs, and forgets the
// session. Safe to call multiple times.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.keeper.close()
	})
}

// Trigger queues an immediate run of the named job. At most one run per
// job is queued; a second Trigger before it starts returns ErrBusy.
func (r *Runner) Trigger(name string) error {
	ch, ok := r.triggers[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	if (name == JobBackup && !r.backupEnabled) || (name == JobSample && !r.sampleEnabled) {
		return fmt.Errorf("%w: %s", ErrJobDisabled, name)
	}
	select {
	case ch <- struct{}{}:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrBusy, name)
	}
}

func (r *Runner) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("job started", "job", name, "interval", interval.String())
	run(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job stopped", "job", name)
			return
		case <-ticker.C:
			run(ctx)
		case <-r.triggers[name]:
			r.logger.Info("job triggered", "job", name)
			run(ctx)
		}
	}
}
