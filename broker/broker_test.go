package broker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/meshhub/broker"
	"github.com/agentmesh/meshhub/errtax"
	"github.com/agentmesh/meshhub/event"
	"github.com/agentmesh/meshhub/internal/observability"
)

func newTestBroker(t *testing.T) *broker.Broker {
	t.Helper()
	logger, trace, metrics := observability.NewForTesting("meshhub-test")
	b := broker.New(broker.Config{Workers: 4, QueueSize: 32}, logger, trace, metrics)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func mustEvent(t *testing.T, topic string, opts event.DeliveryOptions) event.Event {
	t.Helper()
	e, err := event.New(topic, map[string]any{"k": "v"}, "sender", "corr-1", opts)
	require.NoError(t, err)
	return e
}

// TestWildcardSubscription grounds scenario S6: orchestrator.** receives both
// orchestrator.task.request and orchestrator.status but not other.topic.
func TestWildcardSubscription(t *testing.T) {
	b := newTestBroker(t)
	var got []string
	var mu sync.Mutex
	done := make(chan struct{}, 2)

	err := b.Subscribe("agent-1", "orchestrator.**", func(ctx context.Context, e event.Event) error {
		mu.Lock()
		got = append(got, e.Topic())
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), mustEvent(t, "orchestrator.task.request", event.DeliveryOptions{})))
	require.NoError(t, b.Publish(context.Background(), mustEvent(t, "orchestrator.status", event.DeliveryOptions{})))
	require.NoError(t, b.Publish(context.Background(), mustEvent(t, "other.topic", event.DeliveryOptions{})))

	waitN(t, done, 2)
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"orchestrator.task.request", "orchestrator.status"}, got)
}

func TestSingleSegmentWildcardDoesNotMatchDeeper(t *testing.T) {
	b := newTestBroker(t)
	delivered := make(chan struct{}, 1)
	require.NoError(t, b.Subscribe("agent-1", "a.*", func(ctx context.Context, e event.Event) error {
		delivered <- struct{}{}
		return nil
	}))

	require.NoError(t, b.Publish(context.Background(), mustEvent(t, "a.b.c", event.DeliveryOptions{})))

	select {
	case <-delivered:
		t.Fatal("a.* must not match a.b.c")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInvalidPatternRejected(t *testing.T) {
	b := newTestBroker(t)
	err := b.Subscribe("agent-1", "a.**.b", func(context.Context, event.Event) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, errtax.ErrInvalidPattern)
}

func TestPublishAfterCloseFails(t *testing.T) {
	b := newTestBroker(t)
	require.NoError(t, b.Close())
	err := b.Publish(context.Background(), mustEvent(t, "a.b", event.DeliveryOptions{}))
	assert.ErrorIs(t, err, errtax.ErrBrokerClosed)
}

func TestExactlyOncePerSubscription(t *testing.T) {
	b := newTestBroker(t)
	var count int32
	done := make(chan struct{}, 1)
	require.NoError(t, b.Subscribe("agent-1", "a.b.c", func(ctx context.Context, e event.Event) error {
		atomic.AddInt32(&count, 1)
		done <- struct{}{}
		return nil
	}))

	require.NoError(t, b.Publish(context.Background(), mustEvent(t, "a.b.c", event.DeliveryOptions{})))
	waitN(t, done, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestBestEffortDropsOnFirstError(t *testing.T) {
	b := newTestBroker(t)
	var attempts int32
	done := make(chan struct{}, 1)
	require.NoError(t, b.Subscribe("agent-1", "a.b", func(ctx context.Context, e event.Event) error {
		n := atomic.AddInt32(&attempts, 1)
		done <- struct{}{}
		_ = n
		return assert.AnError
	}))

	require.NoError(t, b.Publish(context.Background(), mustEvent(t, "a.b", event.DeliveryOptions{Mode: event.BestEffort})))
	waitN(t, done, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBroker(t)
	delivered := make(chan struct{}, 1)
	require.NoError(t, b.Subscribe("agent-1", "a.b", func(context.Context, event.Event) error {
		delivered <- struct{}{}
		return nil
	}))
	require.NoError(t, b.Unsubscribe("agent-1", "a.b"))
	require.NoError(t, b.Publish(context.Background(), mustEvent(t, "a.b", event.DeliveryOptions{})))

	select {
	case <-delivered:
		t.Fatal("handler should not fire after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func waitN(t *testing.T, ch chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d deliveries", n)
		}
	}
}
