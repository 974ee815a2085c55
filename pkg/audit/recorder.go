package audit

import (
	"context"
	"sync"
	"time"

	"github.com/pariksha-io/pariksha/pkg/observability"
)

// DefaultQueueSize is the default capacity of the async recorder queue
const DefaultQueueSize = 1024

// writeTimeout bounds how long a single sink write may take. The worker
// owns its own context: the request that produced the event has usually
// completed (or been canceled) by the time the write happens.
const writeTimeout = 5 * time.Second

// Recorder is the interface call sites use to emit audit events. Record
// never blocks and never fails; losing an event under pressure is preferred
// over failing the request that produced it.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent)
}

// NoopRecorder discards all events
type NoopRecorder struct{}

// Record implements the Recorder interface
func (NoopRecorder) Record(ctx context.Context, event *AuditEvent) {}

// AsyncRecorder queues events on a buffered channel and persists them from a
// single background worker. When the queue is full events are dropped and
// counted rather than blocking the request path.
type AsyncRecorder struct {
	sink    Logger
	queue   chan *AuditEvent
	done    chan struct{}
	logger  *observability.Logger
	metrics *observability.Metrics

	mu     sync.RWMutex
	closed bool
}

// NewAsyncRecorder creates a recorder writing to sink and starts its worker.
// A queueSize of zero or less uses DefaultQueueSize.
func NewAsyncRecorder(sink Logger, queueSize int, logger *observability.Logger, metrics *observability.Metrics) *AsyncRecorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	r := &AsyncRecorder{
		sink:    sink,
		queue:   make(chan *AuditEvent, queueSize),
		done:    make(chan struct{}),
		logger:  logger,
		metrics: metrics,
	}

	go r.run()

	return r
}

// Record enqueues an event for persistence. The context is accepted for
// interface symmetry but not stored; the worker persists with its own
// context so canceled requests still get audited.
func (r *AsyncRecorder) Record(ctx context.Context, event *AuditEvent) {
	if event == nil {
		return
	}
	event.normalize()

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.drop(event)
		return
	}

	select {
	case r.queue <- event:
		if r.metrics != nil {
			r.metrics.AuditQueueDepth.Set(float64(len(r.queue)))
		}
	default:
		r.drop(event)
	}
}

func (r *AsyncRecorder) drop(event *AuditEvent) {
	if r.metrics != nil {
		r.metrics.AuditEventsDroppedTotal.Inc()
	}
	if r.logger != nil {
		r.logger.WithField("event_type", string(event.EventType)).Warn("audit queue full, dropping event")
	}
}

// run is the worker loop. It exits when the queue is closed and drained.
func (r *AsyncRecorder) run() {
	defer close(r.done)

	for event := range r.queue {
		r.persist(event)

		if r.metrics != nil {
			r.metrics.AuditQueueDepth.Set(float64(len(r.queue)))
		}
	}
}

// persist writes one event to the sink. A panicking sink loses that event
// but not the worker.
func (r *AsyncRecorder) persist(event *AuditEvent) {
	if r.logger != nil {
		defer observability.RecoverPanic(r.logger, "audit sink write")
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	err := r.sink.Log(ctx, event)
	cancel()

	if err != nil {
		if r.logger != nil {
			r.logger.WithError(err).WithField("event_type", string(event.EventType)).Error("failed to persist audit event")
		}
		return
	}

	if r.metrics != nil {
		r.metrics.AuditEventsTotal.WithLabelValues(string(event.EventType), string(event.Status)).Inc()
	}
}

// Close stops accepting events, drains the queue, and closes the sink
func (r *AsyncRecorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	return r.sink.Close()
}
