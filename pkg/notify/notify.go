// Package notify provides a best-effort asynchronous notification
// dispatcher. Deliveries are queued and handled by a small worker pool;
// a full queue drops the notification rather than blocking the caller.
package notify

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	QueueSize      = 1000
	WorkerPoolSize = 4
)

// Notification is a single queued delivery.
type Notification struct {
	UserID    string
	Event     string
	Payload   map[string]any
	Timestamp time.Time
}

// Sink receives notifications from the dispatcher workers. The real
// delivery channel (websocket fan-out, email, etc.) lives behind it.
type Sink interface {
	Deliver(n Notification) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(n Notification) error

func (f SinkFunc) Deliver(n Notification) error {
	return f(n)
}

type dispatcherMetrics struct {
	queued    prometheus.Counter
	delivered prometheus.Counter
	dropped   prometheus.Counter
	failed    prometheus.Counter
}

// Dispatcher fans notifications out to a Sink via a bounded queue and
// worker pool.
type Dispatcher struct {
	sink    Sink
	logger  *slog.Logger
	metrics *dispatcherMetrics

	queue   chan Notification
	wg      sync.WaitGroup
	stopCh  chan struct{}
	stopped bool
	stopMu  sync.Mutex
}

// NewDispatcher creates a dispatcher and starts its worker pool. A nil
// promRegistry disables metrics; a nil logger discards logs.
func NewDispatcher(
	sink Sink,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	d := &Dispatcher{
		sink:   sink,
		logger: logger,
		queue:  make(chan Notification, QueueSize),
		stopCh: make(chan struct{}),
	}
	if promRegistry != nil {
		d.initMetrics(promRegistry)
	}
	for i := 0; i < WorkerPoolSize; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) initMetrics(promRegistry prometheus.Registerer) {
	d.metrics = &dispatcherMetrics{
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realum_notifications_queued_total",
			Help: "Total notifications accepted into the queue",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realum_notifications_delivered_total",
			Help: "Total notifications delivered to the sink",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realum_notifications_dropped_total",
			Help: "Total notifications dropped due to a full queue",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realum_notifications_failed_total",
			Help: "Total notifications the sink failed to deliver",
		}),
	}
	promRegistry.MustRegister(
		d.metrics.queued,
		d.metrics.delivered,
		d.metrics.dropped,
		d.metrics.failed,
	)
}

// Notify queues a notification. Never blocks: when the queue is full or
// the dispatcher is stopped, the notification is dropped and counted.
func (d *Dispatcher) Notify(userID string, event string, payload map[string]any) {
	n := Notification{
		UserID:    userID,
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	select {
	case <-d.stopCh:
		d.drop(n)
		return
	default:
	}
	select {
	case d.queue <- n:
		if d.metrics != nil {
			d.metrics.queued.Inc()
		}
	default:
		d.drop(n)
	}
}

func (d *Dispatcher) drop(n Notification) {
	if d.metrics != nil {
		d.metrics.dropped.Inc()
	}
	d.logger.Warn("notification dropped",
		"user_id", n.UserID,
		"event", n.Event,
	)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case n, ok := <-d.queue:
			if !ok {
				return
			}
			if err := d.sink.Deliver(n); err != nil {
				if d.metrics != nil {
					d.metrics.failed.Inc()
				}
				d.logger.Warn("notification delivery failed",
					"user_id", n.UserID,
					"event", n.Event,
					"error", err,
				)
				continue
			}
			if d.metrics != nil {
				d.metrics.delivered.Inc()
			}
		}
	}
}

// Stop shuts down the worker pool. Queued but undelivered notifications
// are discarded; Stop is safe to call more than once.
func (d *Dispatcher) Stop() {
	d.stopMu.Lock()
	defer d.stopMu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	close(d.stopCh)
	d.wg.Wait()
}

// LogSink is a Sink that just logs deliveries. Dev-mode default.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(n Notification) error {
	s.Logger.Info("notification",
		"user_id", n.UserID,
		"event", n.Event,
	)
	return nil
}
