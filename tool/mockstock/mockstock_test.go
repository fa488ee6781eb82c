package mockstock_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/meshhub/tool"
	"github.com/agentmesh/meshhub/tool/mockstock"
)

var _ tool.Connector = (*mockstock.Connector)(nil)

func TestInvokeQuoteIsDeterministic(t *testing.T) {
	c := mockstock.New()
	req := tool.Request{Operation: "quote", Parameters: map[string]any{"ticker": "aapl"}, RequestID: "r1"}

	resp1, err := c.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp1.Success)
	assert.Equal(t, "AAPL", resp1.Data["ticker"])

	resp2, err := c.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, resp1.Data["price"], resp2.Data["price"])
}

func TestInvokeMissingTickerFails(t *testing.T) {
	c := mockstock.New()
	resp, err := c.Invoke(context.Background(), tool.Request{Operation: "quote", RequestID: "r2"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
}
