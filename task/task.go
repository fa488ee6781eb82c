// Package task implements the task protocol of spec §4.4: the fixed
// request/response payload shapes carried over task-request/task-response
// Events, and the Build/Parse functions satisfying the round-trip law of
// spec §8 (parse(build(x)) == x).
//
// Parameters and extras are round-tripped through structpb.Struct at the
// event-payload boundary, the same opaque-structured-value pattern
// internal/agenthub/metadata.go uses for protobuf task messages — here it
// buys us one thing stdlib map[string]any doesn't: a guarantee that every
// value surviving the boundary is JSON-representable.
package task

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/agentmesh/meshhub/event"
)

// UserContext accompanies every task request (SPEC_FULL.md §3).
type UserContext struct {
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId"`
	Locale    string         `json:"locale,omitempty"`
	Extras    map[string]any `json:"extras,omitempty"`
}

// Request is the task-request payload shape of spec §4.4.
type Request struct {
	TaskID      string         `json:"taskId"`
	Capability  string         `json:"capability"`
	Parameters  map[string]any `json:"parameters"`
	UserContext UserContext    `json:"userContext"`
	Priority    int            `json:"priority"`
	Deadline    time.Time      `json:"deadline"`
	ReplyTopic  string         `json:"replyTopic"`
}

// ResponseError is the task-response error shape of spec §4.4.
type ResponseError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
}

// Response is the task-response payload shape of spec §4.4.
type Response struct {
	TaskID    string         `json:"taskId"`
	Success   bool           `json:"success"`
	Result    map[string]any `json:"result,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
	LatencyMs int64          `json:"latencyMs"`
}

// RequestTopic returns the topic a Request is published on: "task.<capability>".
func RequestTopic(capability string) string {
	return "task." + capability
}

// toPayload round-trips v through structpb to guarantee the result is a
// plain JSON-representable map[string]any, and returns that map.
func toPayload(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("task: marshal: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("task: unmarshal: %w", err)
	}
	s, err := structpb.NewStruct(generic)
	if err != nil {
		return nil, fmt.Errorf("task: structpb: %w", err)
	}
	return s.AsMap(), nil
}

func fromPayload(payload map[string]any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("task: marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("task: unmarshal payload: %w", err)
	}
	return nil
}

// BuildRequest constructs the task-request Event for req, published on
// RequestTopic(req.Capability) and correlated by req.TaskID.
func BuildRequest(req Request, sender string, opts event.DeliveryOptions) (event.Event, error) {
	payload, err := toPayload(req)
	if err != nil {
		return event.Event{}, err
	}
	return event.New(RequestTopic(req.Capability), payload, sender, req.TaskID, opts)
}

// ParseRequest recovers the Request a task-request Event carries.
func ParseRequest(e event.Event) (Request, error) {
	var req Request
	if err := fromPayload(e.Payload(), &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// BuildResponse constructs the task-response Event for resp, published on
// replyTopic and correlated by resp.TaskID.
func BuildResponse(resp Response, replyTopic, sender string, opts event.DeliveryOptions) (event.Event, error) {
	payload, err := toPayload(resp)
	if err != nil {
		return event.Event{}, err
	}
	return event.New(replyTopic, payload, sender, resp.TaskID, opts)
}

// ParseResponse recovers the Response a task-response Event carries.
func ParseResponse(e event.Event) (Response, error) {
	var resp Response
	if err := fromPayload(e.Payload(), &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
