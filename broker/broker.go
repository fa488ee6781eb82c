// Package broker implements the in-process event bus described in
// SPEC_FULL.md §4.1: hierarchical wildcard topic matching over a
// segment-trie, bounded-worker-pool fan-out delivery, and bounded
// exponential backoff for reliable deliveries.
//
// There is no network transport here by design (spec §1 Non-goals rules
// out cross-process agent migration) — grounded on the gRPC EventBus
// (internal/agenthub/broker.go), collapsed to direct in-process dispatch:
// its per-subscriber channel-send-with-timeout loop becomes this package's
// worker pool, and its "recover from panic while sending" pattern becomes
// dispatch's per-handler recover.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentmesh/meshhub/errtax"
	"github.com/agentmesh/meshhub/event"
	"github.com/agentmesh/meshhub/internal/observability"
)

// HandlerFunc is invoked once per matching (agentID, pattern) subscription
// for every published event. It must not block indefinitely: the broker
// treats a returned error as a delivery failure, retried under reliable
// mode and dropped under best-effort mode.
type HandlerFunc func(ctx context.Context, e event.Event) error

const (
	backoffBase   = 100 * time.Millisecond
	backoffCap    = 5 * time.Second
	maxRetries    = 5
)

// Config tunes the worker pool and back-pressure thresholds.
type Config struct {
	Workers    int // number of concurrent delivery workers
	QueueSize  int // high-water mark: publish blocks once the queue is this full
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}

type deliveryJob struct {
	key     subKey
	handler HandlerFunc
	ev      event.Event
}

// Broker is the in-process pub/sub router. Zero value is not usable; build
// one with New.
type Broker struct {
	cfg Config

	logger *slog.Logger
	trace  *observability.TraceManager
	metric *observability.MetricsManager

	mu       sync.RWMutex // guards trie structure mutations (subscribe/unsubscribe)
	trie     *subscriptionTrie
	closed   bool
	closedMu sync.RWMutex

	queue   chan deliveryJob
	wg      sync.WaitGroup
	stopped chan struct{}
}

// New creates a Broker and starts its worker pool. Call Close to drain and
// stop it.
func New(cfg Config, logger *slog.Logger, trace *observability.TraceManager, metrics *observability.MetricsManager) *Broker {
	cfg = cfg.withDefaults()
	b := &Broker{
		cfg:     cfg,
		logger:  logger,
		trace:   trace,
		metric:  metrics,
		trie:    newSubscriptionTrie(),
		queue:   make(chan deliveryJob, cfg.QueueSize),
		stopped: make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *Broker) isClosed() bool {
	b.closedMu.RLock()
	defer b.closedMu.RUnlock()
	return b.closed
}

// Subscribe registers agentID to receive events whose topic matches pattern.
// Re-subscribing the same (agentID, pattern) pair is a no-op (idempotent).
func (b *Broker) Subscribe(agentID, pattern string, handler HandlerFunc) error {
	if b.isClosed() {
		return fmt.Errorf("broker: %w", errtax.ErrBrokerClosed)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	added, err := b.trie.insert(agentID, pattern, handler)
	if err != nil {
		return err
	}
	if added {
		b.logger.Info("subscription added", "agent_id", agentID, "pattern", pattern)
	}
	return nil
}

// Unsubscribe removes a (agentID, pattern) subscription. A no-op if absent.
func (b *Broker) Unsubscribe(agentID, pattern string) error {
	if b.isClosed() {
		return fmt.Errorf("broker: %w", errtax.ErrBrokerClosed)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trie.remove(agentID, pattern)
	b.logger.Info("subscription removed", "agent_id", agentID, "pattern", pattern)
	return nil
}

// Publish delivers e to every subscription whose pattern matches e.Topic.
// It returns once every matching delivery has been scheduled onto the
// worker pool, not once handlers have run. If the pool's queue is at or
// above the high-water mark, Publish blocks (context-aware) until it drains.
func (b *Broker) Publish(ctx context.Context, e event.Event) error {
	if b.isClosed() {
		return fmt.Errorf("broker: %w", errtax.ErrBrokerClosed)
	}

	ctx, span := b.trace.StartPublishSpan(ctx, e.Topic(), e.Topic())
	defer span.End()
	b.trace.AddComponentAttribute(span, "broker")

	b.mu.RLock()
	matches := b.trie.match(e.Topic())
	b.mu.RUnlock()

	if len(matches) == 0 {
		b.logger.DebugContext(ctx, "publish: no subscribers", "topic", e.Topic())
		b.trace.SetSpanSuccess(span)
		return nil
	}

	for key, handler := range matches {
		job := deliveryJob{key: key, handler: handler, ev: e}
		select {
		case b.queue <- job:
		case <-ctx.Done():
			b.trace.RecordError(span, ctx.Err())
			return ctx.Err()
		case <-b.stopped:
			return fmt.Errorf("broker: %w", errtax.ErrBrokerClosed)
		}
	}

	b.metric.IncrementEventsPublished(ctx, e.Topic(), fmt.Sprintf("%d_subscribers", len(matches)))
	b.trace.SetSpanSuccess(span)
	return nil
}

// Close drains in-flight deliveries and rejects further publishes/subscribes.
// In-flight handler goroutines are not force-killed; Close waits for the
// worker pool to finish whatever is already queued.
func (b *Broker) Close() error {
	b.closedMu.Lock()
	if b.closed {
		b.closedMu.Unlock()
		return nil
	}
	b.closed = true
	b.closedMu.Unlock()

	close(b.stopped)
	close(b.queue)
	b.wg.Wait()
	return nil
}

func (b *Broker) worker() {
	defer b.wg.Done()
	for job := range b.queue {
		b.deliver(job)
	}
}

func (b *Broker) deliver(job deliveryJob) {
	ctx := context.Background()
	ctx, span := b.trace.StartConsumeSpan(ctx, job.key.agentID, job.ev.Topic())
	defer span.End()
	b.trace.AddComponentAttribute(span, "broker")

	if job.ev.DeliveryOptions().Expired(time.Now()) {
		b.logger.InfoContext(ctx, "delivery skipped: expired", "agent_id", job.key.agentID, "topic", job.ev.Topic())
		return
	}

	timer := b.metric.StartTimer()
	defer timer(ctx, job.ev.Topic(), job.key.agentID)

	attempts := 1
	if job.ev.DeliveryOptions().Mode == event.Reliable {
		attempts = maxRetries
	}

	var lastErr error
	backoff := backoffBase
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-b.stopped:
				return
			}
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
		}

		if err := b.invoke(ctx, job); err != nil {
			lastErr = err
			b.metric.IncrementEventErrors(ctx, job.ev.Topic(), job.key.agentID, "handler_error")
			if job.ev.DeliveryOptions().Mode == event.BestEffort {
				break
			}
			continue
		}
		lastErr = nil
		break
	}

	if lastErr != nil {
		b.logger.ErrorContext(ctx, "delivery failed",
			"agent_id", job.key.agentID, "pattern", job.key.pattern, "topic", job.ev.Topic(), "error", lastErr)
		b.trace.RecordError(span, lastErr)
		b.metric.IncrementBrokerConnectionErrors(ctx)
		return
	}

	b.metric.IncrementEventsProcessed(ctx, job.ev.Topic(), job.key.agentID, true)
	b.trace.SetSpanSuccess(span)
}

// invoke calls the handler, recovering a panic into an error so that one
// misbehaving handler never aborts another delivery (spec §4.1).
func (b *Broker) invoke(ctx context.Context, job deliveryJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("broker: handler panic: %v", r)
		}
	}()
	return job.handler(ctx, job.ev)
}
