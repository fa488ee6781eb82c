// Package mockstock is a deterministic stand-in for a real stock-quote API,
// used only by the illustrative stock agent and its tests (spec §4.11).
package mockstock

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/agentmesh/meshhub/tool"
)

const (
	toolID  = "mock-stock"
	version = "1.0.0"
)

// Connector implements tool.Connector with synthetic, ticker-seeded quotes
// so the same ticker always yields the same price.
type Connector struct{}

// New builds a mock stock Connector.
func New() *Connector { return &Connector{} }

func (c *Connector) ToolID() string                { return toolID }
func (c *Connector) Version() string               { return version }
func (c *Connector) SupportedOperations() []string { return []string{"quote"} }

func (c *Connector) Schema() map[string]any {
	return map[string]any{
		"operations": map[string]any{
			"quote": map[string]any{
				"parameters": map[string]any{"ticker": "string"},
				"returns":    map[string]any{"price": "number", "currency": "string"},
			},
		},
	}
}

func (c *Connector) Initialize(ctx context.Context, config map[string]any) error { return nil }
func (c *Connector) Shutdown(ctx context.Context) error                          { return nil }

// Invoke serves the "quote" operation; any other operation is rejected.
func (c *Connector) Invoke(ctx context.Context, req tool.Request) (tool.Response, error) {
	start := time.Now()
	if req.Operation != "quote" {
		return tool.Response{
			Success:         false,
			ErrorMessage:    fmt.Sprintf("mockstock: unsupported operation %q", req.Operation),
			RequestID:       req.RequestID,
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	ticker, _ := req.Parameters["ticker"].(string)
	if ticker == "" {
		return tool.Response{
			Success:         false,
			ErrorMessage:    "mockstock: missing ticker parameter",
			RequestID:       req.RequestID,
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	price := synthesize(ticker)
	return tool.Response{
		Success: true,
		Data: map[string]any{
			"ticker":   strings.ToUpper(ticker),
			"price":    price,
			"currency": "USD",
		},
		RequestID:       req.RequestID,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func synthesize(ticker string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToUpper(ticker)))
	seed := h.Sum32()
	return 10 + float64(seed%49000)/100 // 10.00..499.99
}
