package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Sink receives committed market events. Deliver may be retried, so sinks
// should tolerate seeing the same event id twice.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event *Event) error
}

// KindFilter is implemented by sinks that only want some event kinds
type KindFilter interface {
	Accepts(kind EventKind) bool
}

// Emitter publishes events. Emit never fails the caller.
type Emitter interface {
	Emit(ctx context.Context, event *Event)
}

// DispatcherConfig contains dispatcher configuration
type DispatcherConfig struct {
	Workers         int           `json:"workers"`
	QueueSize       int           `json:"queue_size"`
	DeliveryTimeout time.Duration `json:"delivery_timeout"`
	RetryInterval   time.Duration `json:"retry_interval"`
	RetryMaxElapsed time.Duration `json:"retry_max_elapsed"`
}

// DefaultDispatcherConfig returns default configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:         8,
		QueueSize:       1024,
		DeliveryTimeout: 5 * time.Second,
		RetryInterval:   500 * time.Millisecond,
		RetryMaxElapsed: 30 * time.Second,
	}
}

// Dispatcher fans events out to registered sinks on a worker pool
type Dispatcher struct {
	mu     sync.RWMutex
	sinks  []Sink
	pool   pond.Pool
	logger *zap.Logger
	config DispatcherConfig
	closed bool
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(logger *zap.Logger, config DispatcherConfig) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = defaults.DeliveryTimeout
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaults.RetryInterval
	}
	if config.RetryMaxElapsed < 0 {
		config.RetryMaxElapsed = 0
	}

	return &Dispatcher{
		pool:   pond.NewPool(config.Workers, pond.WithQueueSize(config.QueueSize)),
		logger: logger,
		config: config,
	}
}

// Register adds a sink. Sink names must be unique.
func (d *Dispatcher) Register(sink Sink) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.sinks {
		if existing.Name() == sink.Name() {
			return fmt.Errorf("notifications: duplicate sink registration: %s", sink.Name())
		}
	}
	d.sinks = append(d.sinks, sink)

	d.logger.Info("Registered event sink", zap.String("sink", sink.Name()))
	return nil
}

// Sinks returns the names of the registered sinks
func (d *Dispatcher) Sinks() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.sinks))
	for _, sink := range d.sinks {
		names = append(names, sink.Name())
	}
	return names
}

// Emit queues event for delivery to every sink that accepts it. Delivery
// outlives the caller's context cancellation but keeps its values.
func (d *Dispatcher) Emit(ctx context.Context, event *Event) {
	if event == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("Dropping event emitted after shutdown",
			zap.String("event_id", event.ID.String()),
			zap.String("kind", string(event.Kind)))
		return
	}

	deliveryCtx := context.WithoutCancel(ctx)
	for _, sink := range d.sinks {
		if filter, ok := sink.(KindFilter); ok && !filter.Accepts(event.Kind) {
			continue
		}
		sink := sink
		d.pool.Submit(func() {
			d.deliver(deliveryCtx, sink, event)
		})
	}
}

// deliver retries a single sink delivery with exponential backoff
func (d *Dispatcher) deliver(ctx context.Context, sink Sink, event *Event) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.config.RetryInterval
	b.MaxElapsedTime = d.config.RetryMaxElapsed
	b.Multiplier = 2.0

	var policy backoff.BackOff = b
	if d.config.RetryMaxElapsed == 0 {
		policy = &backoff.StopBackOff{}
	}

	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, d.config.DeliveryTimeout)
		defer cancel()
		return sink.Deliver(attemptCtx, event)
	}

	attempts := 0
	notify := func(err error, next time.Duration) {
		attempts++
		d.logger.Warn("Event delivery failed, retrying",
			zap.String("sink", sink.Name()),
			zap.String("event_id", event.ID.String()),
			zap.Int("attempt", attempts),
			zap.Duration("next_retry_in", next),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		d.logger.Error("Event delivery abandoned",
			zap.String("sink", sink.Name()),
			zap.String("event_id", event.ID.String()),
			zap.String("kind", string(event.Kind)),
			zap.Error(err))
	}
}

// Close waits for queued deliveries and stops the worker pool
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.pool.StopAndWait()

	d.logger.Info("Event dispatcher stopped",
		zap.Uint64("submitted", d.pool.SubmittedTasks()),
		zap.Uint64("completed", d.pool.CompletedTasks()))
}
