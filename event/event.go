// Package event defines the immutable message type that flows through the
// broker (spec §3 Event, §4.1).
package event

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DeliveryMode selects the broker's retry behavior for a published event.
type DeliveryMode int

const (
	// BestEffort drops a delivery on the first handler error.
	BestEffort DeliveryMode = iota
	// Reliable retries a failed delivery with bounded exponential backoff.
	Reliable
)

func (m DeliveryMode) String() string {
	if m == Reliable {
		return "reliable"
	}
	return "best-effort"
}

// DeliveryOptions carries the per-event delivery policy (spec §3).
type DeliveryOptions struct {
	Mode      DeliveryMode
	ExpiresAt time.Time // zero value means "never expires"
}

// Expired reports whether the event's delivery window has passed as of now.
func (d DeliveryOptions) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && now.After(d.ExpiresAt)
}

var segmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Event is an immutable record published on the broker. Construct one with
// New; every field is read-only after construction by convention (Go has no
// const structs, so callers are expected not to mutate a published Event).
type Event struct {
	topic           string
	payload         map[string]any
	sender          string
	correlationID   string
	deliveryOptions DeliveryOptions
	timestamp       time.Time
}

// New builds an Event, validating that topic is a well-formed dot-separated
// hierarchical path with segments matching [A-Za-z0-9_-]+.
func New(topic string, payload map[string]any, sender, correlationID string, opts DeliveryOptions) (Event, error) {
	if err := ValidateTopic(topic); err != nil {
		return Event{}, err
	}
	return Event{
		topic:           topic,
		payload:         payload,
		sender:          sender,
		correlationID:   correlationID,
		deliveryOptions: opts,
		timestamp:       time.Now().UTC(),
	}, nil
}

// ValidateTopic reports whether topic is a well-formed concrete (non-pattern)
// topic: non-empty dot-separated segments, each matching [A-Za-z0-9_-]+.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("event: empty topic")
	}
	for _, seg := range strings.Split(topic, ".") {
		if !segmentRE.MatchString(seg) {
			return fmt.Errorf("event: invalid topic segment %q in %q", seg, topic)
		}
	}
	return nil
}

func (e Event) Topic() string                      { return e.topic }
func (e Event) Payload() map[string]any             { return e.payload }
func (e Event) Sender() string                      { return e.sender }
func (e Event) CorrelationID() string                { return e.correlationID }
func (e Event) DeliveryOptions() DeliveryOptions    { return e.deliveryOptions }
func (e Event) Timestamp() time.Time                { return e.timestamp }

// WithPayload returns a copy of e with a replaced payload, leaving the
// original untouched. Used by agents that republish a derived event under
// the same correlation ID.
func (e Event) WithPayload(payload map[string]any) Event {
	e.payload = payload
	return e
}
