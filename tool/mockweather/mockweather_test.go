package mockweather_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/meshhub/tool"
	"github.com/agentmesh/meshhub/tool/mockweather"
)

var _ tool.Connector = (*mockweather.Connector)(nil)

func TestInvokeCurrentIsDeterministic(t *testing.T) {
	c := mockweather.New()
	req := tool.Request{Operation: "current", Parameters: map[string]any{"location": "Nice,FR"}, RequestID: "r1"}

	resp1, err := c.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp1.Success)

	resp2, err := c.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, resp1.Data["temperatureC"], resp2.Data["temperatureC"])
	assert.Equal(t, resp1.Data["conditions"], resp2.Data["conditions"])
}

func TestInvokeMissingLocationFails(t *testing.T) {
	c := mockweather.New()
	resp, err := c.Invoke(context.Background(), tool.Request{Operation: "current", RequestID: "r2"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
}

func TestInvokeUnsupportedOperationFails(t *testing.T) {
	c := mockweather.New()
	resp, err := c.Invoke(context.Background(), tool.Request{Operation: "forecast", RequestID: "r3"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
}
