package observability

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsManager owns every counter and histogram the mesh exports. The
// "broker" instruments still use the message_broker_* names even though
// delivery never crosses a socket: operators graph them the same way
// regardless of whether the hop was in-process or remote.
type MetricsManager struct {
	meter metric.Meter

	eventsProcessedTotal    metric.Int64Counter
	eventProcessingDuration metric.Float64Histogram
	eventErrorsTotal        metric.Int64Counter
	eventsPublishedTotal    metric.Int64Counter

	processCPUSecondsTotal      metric.Float64Counter
	processResidentMemoryBytes  metric.Int64UpDownCounter
	goGoroutines                metric.Int64UpDownCounter
	goMemstatsAllocBytes        metric.Int64UpDownCounter

	messageBrokerPublishDuration  metric.Float64Histogram
	messageBrokerConsumeDuration  metric.Float64Histogram
	messageBrokerConnectionErrors metric.Int64Counter

	tasksDispatchedTotal  metric.Int64Counter
	tasksCompletedTotal   metric.Int64Counter
	workflowDuration      metric.Float64Histogram
	cacheHitsTotal        metric.Int64Counter
	cacheMissesTotal      metric.Int64Counter
	fallbackInvokedTotal  metric.Int64Counter
}

func NewMetricsManager(meter metric.Meter) (*MetricsManager, error) {
	mm := &MetricsManager{meter: meter}

	var err error

	mm.eventsProcessedTotal, err = meter.Int64Counter(
		"events_processed_total",
		metric.WithDescription("Total number of events processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.eventProcessingDuration, err = meter.Float64Histogram(
		"event_processing_duration_seconds",
		metric.WithDescription("Event processing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.eventErrorsTotal, err = meter.Int64Counter(
		"event_errors_total",
		metric.WithDescription("Total number of event processing errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.eventsPublishedTotal, err = meter.Int64Counter(
		"events_published_total",
		metric.WithDescription("Total number of events published"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.processCPUSecondsTotal, err = meter.Float64Counter(
		"process_cpu_seconds_total",
		metric.WithDescription("Total user and system CPU time spent in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.processResidentMemoryBytes, err = meter.Int64UpDownCounter(
		"process_resident_memory_bytes",
		metric.WithDescription("Resident memory size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	mm.goGoroutines, err = meter.Int64UpDownCounter(
		"go_goroutines",
		metric.WithDescription("Number of goroutines that currently exist"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.goMemstatsAllocBytes, err = meter.Int64UpDownCounter(
		"go_memstats_alloc_bytes",
		metric.WithDescription("Number of bytes allocated and still in use"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	mm.messageBrokerPublishDuration, err = meter.Float64Histogram(
		"message_broker_publish_duration_seconds",
		metric.WithDescription("Broker publish duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.messageBrokerConsumeDuration, err = meter.Float64Histogram(
		"message_broker_consume_duration_seconds",
		metric.WithDescription("Broker delivery-to-subscriber duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.messageBrokerConnectionErrors, err = meter.Int64Counter(
		"message_broker_connection_errors_total",
		metric.WithDescription("Total number of broker delivery failures exhausting retries"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.tasksDispatchedTotal, err = meter.Int64Counter(
		"tasks_dispatched_total",
		metric.WithDescription("Total number of task requests dispatched by the workflow coordinator"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.tasksCompletedTotal, err = meter.Int64Counter(
		"tasks_completed_total",
		metric.WithDescription("Total number of task steps that reached a terminal state"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.workflowDuration, err = meter.Float64Histogram(
		"workflow_duration_seconds",
		metric.WithDescription("End-to-end workflow execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.cacheHitsTotal, err = meter.Int64Counter(
		"cache_hits_total",
		metric.WithDescription("Total number of response/intent cache hits"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.cacheMissesTotal, err = meter.Int64Counter(
		"cache_misses_total",
		metric.WithDescription("Total number of response/intent cache misses"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.fallbackInvokedTotal, err = meter.Int64Counter(
		"fallback_invoked_total",
		metric.WithDescription("Total number of times the rule-based fallback engine produced a response"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return mm, nil
}

func (mm *MetricsManager) IncrementEventsProcessed(ctx context.Context, eventType, source string, success bool) {
	mm.eventsProcessedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("source", source),
		attribute.Bool("success", success),
	))
}

func (mm *MetricsManager) RecordEventProcessingDuration(ctx context.Context, eventType, source string, duration time.Duration) {
	mm.eventProcessingDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("source", source),
	))
}

func (mm *MetricsManager) IncrementEventErrors(ctx context.Context, eventType, source, errorType string) {
	mm.eventErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("source", source),
		attribute.String("error", errorType),
	))
}

func (mm *MetricsManager) IncrementEventsPublished(ctx context.Context, eventType, destination string) {
	mm.eventsPublishedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("destination", destination),
	))
}

func (mm *MetricsManager) UpdateSystemMetrics(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.goGoroutines.Add(ctx, int64(runtime.NumGoroutine()))
	mm.goMemstatsAllocBytes.Add(ctx, int64(m.Alloc))
	mm.processResidentMemoryBytes.Add(ctx, int64(m.Sys))
}

func (mm *MetricsManager) RecordBrokerPublishDuration(ctx context.Context, topic string, duration time.Duration) {
	mm.messageBrokerPublishDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("topic", topic),
	))
}

func (mm *MetricsManager) RecordBrokerConsumeDuration(ctx context.Context, topic string, duration time.Duration) {
	mm.messageBrokerConsumeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("topic", topic),
	))
}

func (mm *MetricsManager) IncrementBrokerConnectionErrors(ctx context.Context) {
	mm.messageBrokerConnectionErrors.Add(ctx, 1)
}

func (mm *MetricsManager) IncrementTasksDispatched(ctx context.Context, capability string) {
	mm.tasksDispatchedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("capability", capability)))
}

func (mm *MetricsManager) IncrementTasksCompleted(ctx context.Context, capability, status string) {
	mm.tasksCompletedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("status", status),
	))
}

func (mm *MetricsManager) RecordWorkflowDuration(ctx context.Context, duration time.Duration) {
	mm.workflowDuration.Record(ctx, duration.Seconds())
}

func (mm *MetricsManager) IncrementCacheHits(ctx context.Context, cacheName string) {
	mm.cacheHitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cacheName)))
}

func (mm *MetricsManager) IncrementCacheMisses(ctx context.Context, cacheName string) {
	mm.cacheMissesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cacheName)))
}

func (mm *MetricsManager) IncrementFallbackInvoked(ctx context.Context, category string) {
	mm.fallbackInvokedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

// StartTimer returns a closure that records event processing duration when invoked, meant to be deferred.
func (mm *MetricsManager) StartTimer() func(ctx context.Context, eventType, source string) {
	start := time.Now()
	return func(ctx context.Context, eventType, source string) {
		duration := time.Since(start)
		mm.RecordEventProcessingDuration(ctx, eventType, source, duration)
	}
}
