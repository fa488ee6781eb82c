// Package mockweather is a deterministic stand-in for a real weather API,
// used only by the illustrative weather agent and its tests (spec §4.11:
// "real HTTP adapters to third-party weather/stock/search APIs remain out
// of scope").
package mockweather

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/agentmesh/meshhub/tool"
)

const (
	toolID  = "mock-weather"
	version = "1.0.0"
)

// Connector implements tool.Connector with synthetic, location-seeded
// weather data so the same location always yields the same reading.
type Connector struct{}

// New builds a mock weather Connector.
func New() *Connector { return &Connector{} }

func (c *Connector) ToolID() string               { return toolID }
func (c *Connector) Version() string              { return version }
func (c *Connector) SupportedOperations() []string { return []string{"current"} }

func (c *Connector) Schema() map[string]any {
	return map[string]any{
		"operations": map[string]any{
			"current": map[string]any{
				"parameters": map[string]any{"location": "string"},
				"returns":    map[string]any{"temperatureC": "number", "conditions": "string"},
			},
		},
	}
}

func (c *Connector) Initialize(ctx context.Context, config map[string]any) error { return nil }
func (c *Connector) Shutdown(ctx context.Context) error                          { return nil }

// Invoke serves the "current" operation; any other operation is rejected.
func (c *Connector) Invoke(ctx context.Context, req tool.Request) (tool.Response, error) {
	start := time.Now()
	if req.Operation != "current" {
		return tool.Response{
			Success:         false,
			ErrorMessage:    fmt.Sprintf("mockweather: unsupported operation %q", req.Operation),
			RequestID:       req.RequestID,
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	location, _ := req.Parameters["location"].(string)
	if location == "" {
		return tool.Response{
			Success:         false,
			ErrorMessage:    "mockweather: missing location parameter",
			RequestID:       req.RequestID,
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	temp, conditions := synthesize(location)
	return tool.Response{
		Success: true,
		Data: map[string]any{
			"temperatureC": temp,
			"conditions":   conditions,
			"location":     location,
		},
		RequestID:       req.RequestID,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

var conditionSet = []string{"sunny", "cloudy", "rainy", "windy", "clear"}

func synthesize(location string) (float64, string) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(location))
	seed := h.Sum32()

	temp := float64(seed%35) - 5 // -5..29 degrees C
	conditions := conditionSet[int(seed)%len(conditionSet)]
	return temp, conditions
}
