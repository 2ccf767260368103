package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a unit of scheduled work
type Job func(ctx context.Context) error

// cronParser accepts six-field expressions with a leading seconds field
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ScheduleManagerConfig configuration for the schedule manager
type ScheduleManagerConfig struct {
	// JobTimeout bounds a single run
	JobTimeout time.Duration `json:"job_timeout"`
	Location   *time.Location
}

// DefaultScheduleManagerConfig returns default configuration
func DefaultScheduleManagerConfig() ScheduleManagerConfig {
	return ScheduleManagerConfig{
		JobTimeout: 5 * time.Minute,
		Location:   time.UTC,
	}
}

// ScheduleManager runs named jobs on cron schedules. A run that is still in
// progress when its next tick fires is skipped, and a panicking job is
// recovered and logged.
type ScheduleManager struct {
	cron    *cron.Cron
	jobs    map[string]cron.EntryID
	config  ScheduleManagerConfig
	logger  *zap.Logger
	mu      sync.RWMutex
	running bool

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewScheduleManager creates a new schedule manager
func NewScheduleManager(logger *zap.Logger, config ScheduleManagerConfig) *ScheduleManager {
	if config.Location == nil {
		config.Location = time.UTC
	}
	adapter := cronLogger{logger: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())

	return &ScheduleManager{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(config.Location),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		jobs:    make(map[string]cron.EntryID),
		config:  config,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// AddJob registers job under name, replacing any job already registered
// under that name
func (m *ScheduleManager) AddJob(name, spec string, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entryID, ok := m.jobs[name]; ok {
		m.cron.Remove(entryID)
		delete(m.jobs, name)
	}

	entryID, err := m.cron.AddFunc(spec, func() { m.run(name, job) })
	if err != nil {
		return fmt.Errorf("failed to add cron job %s: %w", name, err)
	}
	m.jobs[name] = entryID

	m.logger.Info("Added schedule",
		zap.String("job", name),
		zap.String("cron", spec),
		zap.String("timezone", m.config.Location.String()))

	return nil
}

// RemoveJob removes a job from the manager
func (m *ScheduleManager) RemoveJob(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entryID, ok := m.jobs[name]; ok {
		m.cron.Remove(entryID)
		delete(m.jobs, name)
		m.logger.Info("Removed schedule", zap.String("job", name))
	}
}

// RunNow executes the named job immediately on the calling goroutine
func (m *ScheduleManager) RunNow(name string) error {
	m.mu.RLock()
	entryID, ok := m.jobs[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}

	m.cron.Entry(entryID).WrappedJob.Run()
	return nil
}

func (m *ScheduleManager) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(m.baseCtx, m.config.JobTimeout)
	defer cancel()

	start := time.Now()
	if err := job(ctx); err != nil {
		m.logger.Error("Scheduled job failed",
			zap.String("job", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	m.logger.Debug("Scheduled job completed",
		zap.String("job", name),
		zap.Duration("elapsed", time.Since(start)))
}

// Start starts the schedule manager
func (m *ScheduleManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("schedule manager already running")
	}
	m.running = true

	m.logger.Info("Starting schedule manager", zap.Int("jobs", len(m.jobs)))
	m.cron.Start()
	return nil
}

// Stop stops scheduling new runs, cancels the context of in-flight runs and
// waits for them to return or for ctx to expire
func (m *ScheduleManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	m.logger.Info("Stopping schedule manager")
	done := m.cron.Stop()
	m.cancel()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("schedule manager stop: %w", ctx.Err())
	}
}

// JobStatus represents the status of a scheduled job
type JobStatus struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
	PrevRun time.Time `json:"prev_run"`
}

// Jobs reports every registered job
func (m *ScheduleManager) Jobs() []JobStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]JobStatus, 0, len(m.jobs))
	for name, entryID := range m.jobs {
		entry := m.cron.Entry(entryID)
		statuses = append(statuses, JobStatus{Name: name, NextRun: entry.Next, PrevRun: entry.Prev})
	}
	return statuses
}

// ValidateCronExpression validates a six-field cron expression
func ValidateCronExpression(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

// cronLogger routes cron's internal logging through zap
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
