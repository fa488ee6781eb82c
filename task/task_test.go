package task_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/meshhub/event"
	"github.com/agentmesh/meshhub/task"
)

func TestRequestRoundTrip(t *testing.T) {
	req := task.Request{
		TaskID:     "task-1",
		Capability: "weather.current",
		Parameters: map[string]any{"location": "London,GB"},
		UserContext: task.UserContext{
			UserID:    "u1",
			SessionID: "s1",
			Locale:    "en",
		},
		Priority:   5,
		Deadline:   time.Now().UTC().Truncate(time.Second),
		ReplyTopic: "orchestrator.task.response",
	}

	e, err := task.BuildRequest(req, "orchestrator", event.DeliveryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "task.weather.current", e.Topic())
	assert.Equal(t, "task-1", e.CorrelationID())

	got, err := task.ParseRequest(e)
	require.NoError(t, err)
	assert.Equal(t, req.TaskID, got.TaskID)
	assert.Equal(t, req.Capability, got.Capability)
	assert.Equal(t, req.Parameters["location"], got.Parameters["location"])
	assert.Equal(t, req.UserContext, got.UserContext)
	assert.Equal(t, req.Priority, got.Priority)
	assert.True(t, req.Deadline.Equal(got.Deadline))
	assert.Equal(t, req.ReplyTopic, got.ReplyTopic)
}

func TestResponseRoundTrip(t *testing.T) {
	resp := task.Response{
		TaskID:    "task-1",
		Success:   true,
		Result:    map[string]any{"temperature": 18.5},
		LatencyMs: 42,
	}

	e, err := task.BuildResponse(resp, "orchestrator.task.response", "weather-agent", event.DeliveryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "orchestrator.task.response", e.Topic())

	got, err := task.ParseResponse(e)
	require.NoError(t, err)
	assert.Equal(t, resp.TaskID, got.TaskID)
	assert.Equal(t, resp.Success, got.Success)
	assert.Equal(t, resp.Result["temperature"], got.Result["temperature"])
	assert.Equal(t, resp.LatencyMs, got.LatencyMs)
	assert.Nil(t, got.Error)
}

func TestResponseWithError(t *testing.T) {
	resp := task.Response{
		TaskID:  "task-2",
		Success: false,
		Error: &task.ResponseError{
			Kind:      "Timeout",
			Message:   "deadline exceeded",
			Retriable: true,
		},
	}
	e, err := task.BuildResponse(resp, "orchestrator.task.response", "stock-agent", event.DeliveryOptions{})
	require.NoError(t, err)

	got, err := task.ParseResponse(e)
	require.NoError(t, err)
	require.NotNil(t, got.Error)
	assert.Equal(t, "Timeout", got.Error.Kind)
	assert.True(t, got.Error.Retriable)
}
