package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentmesh/meshhub/broker"
	"github.com/agentmesh/meshhub/event"
	"github.com/agentmesh/meshhub/internal/observability"
)

// Context is the per-node runtime (spec §2 component C): it owns the broker
// and the registry and exposes publish/subscribe/register/activate as the
// only surface agents need. Agents hold a non-owning reference to their
// Context (Design Notes "Cyclic references") — the registry, not the agent,
// decides when the agent is destroyed.
type Context struct {
	Broker   *broker.Broker
	registry *Registry

	logger *slog.Logger
	trace  *observability.TraceManager
	metric *observability.MetricsManager
}

// NewContext wires a fresh broker-backed runtime with its own registry.
func NewContext(b *broker.Broker, logger *slog.Logger, trace *observability.TraceManager, metrics *observability.MetricsManager) *Context {
	c := &Context{Broker: b, logger: logger, trace: trace, metric: metrics}
	c.registry = newRegistry(c, logger, trace, metrics)
	return c
}

// Registry exposes the Context's registry for callers that need the fuller
// surface (discover, list, count) beyond the convenience wrappers below.
func (c *Context) Registry() *Registry { return c.registry }

// Publish forwards to the broker.
func (c *Context) Publish(ctx context.Context, e event.Event) error {
	return c.Broker.Publish(ctx, e)
}

// Subscribe registers agentID to receive events matching pattern, wrapping
// handler with panic recovery so a handler that panics synchronously
// surfaces as a delivery error returned to the broker rather than crashing
// the delivery worker (spec §4.2 invariant). The wrapper then waits for the
// returned Completion and hands its error, if any, to the broker.
func (c *Context) Subscribe(agentID AgentID, pattern string, handler HandlerFunc) error {
	return c.Broker.Subscribe(string(agentID), pattern, func(ctx context.Context, e event.Event) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("agent: handler panic: %v", r)
			}
		}()
		completion := handler(ctx, e)
		_, werr := completion.Wait(ctx)
		return werr
	})
}

// Unsubscribe removes a subscription registered via Subscribe.
func (c *Context) Unsubscribe(agentID AgentID, pattern string) error {
	return c.Broker.Unsubscribe(string(agentID), pattern)
}

// Register stores an AgentDefinition in the registry; names are unique.
func (c *Context) Register(name string, factory Factory, description string, capabilities []string) error {
	return c.registry.Register(name, factory, description, capabilities)
}

// Activate creates and starts an instance of the named definition.
func (c *Context) Activate(ctx context.Context, name string) (AgentID, error) {
	return c.registry.Activate(ctx, name)
}

// Deactivate stops the named agent's instance, idempotently.
func (c *Context) Deactivate(ctx context.Context, name string) error {
	return c.registry.Deactivate(ctx, name)
}

// Discover returns (agentID, description, capabilities) for every active
// agent, the feed the planner consumes (spec §4.3).
func (c *Context) Discover() []AgentInfo {
	return c.registry.Discover()
}
