// Package agent defines the agent contract (spec §4.2), the per-node
// runtime Context agents use to publish/subscribe (spec §4.1 "Agent
// Context" component C), and the Registry that owns agent lifecycle
// (component D). Grounded on SubAgent (internal/subagent) for the lifecycle
// sequencing, generalized from its single concrete-agent-per-process model
// to many agents sharing one in-process broker and registry.
package agent

import (
	"context"
	"fmt"

	"github.com/agentmesh/meshhub/event"
)

// AgentID is an opaque identity with a stable string form; equality is by
// string value (spec §3).
type AgentID string

func (id AgentID) String() string { return string(id) }

// AgentInfo is the discovery-facing projection of an AgentDefinition
// consumed by the planner (SPEC_FULL.md §3 supplemental types).
type AgentInfo struct {
	ID           AgentID
	Description  string
	Capabilities []string
}

// Result is the value carried by a Completion once resolved.
type Result struct {
	Value any
	Err   error
}

// Completion is the non-blocking handle HandleEvent returns (spec §4.2): the
// call itself must return immediately, with the real outcome delivered here
// later. A Completion does not recover panics itself.
type Completion struct {
	done chan Result
}

// NewCompletion returns an unresolved Completion and the function used to
// resolve it exactly once; further Resolve calls are ignored.
func NewCompletion() (*Completion, func(Result)) {
	c := &Completion{done: make(chan Result, 1)}
	resolved := false
	resolve := func(r Result) {
		if resolved {
			return
		}
		resolved = true
		c.done <- r
	}
	return c, resolve
}

// Completed returns an already-resolved Completion, for handlers with a
// synchronous result (e.g. the no-op on an unrecognized topic, spec §4.2).
func Completed(value any, err error) *Completion {
	c, resolve := NewCompletion()
	resolve(Result{Value: value, Err: err})
	return c
}

// Wait blocks until the completion resolves or ctx is done.
func (c *Completion) Wait(ctx context.Context) (any, error) {
	select {
	case r := <-c.done:
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Agent is the single capability interface every mesh participant
// implements (spec §4.2). Specialized behavior is added through
// composition (the agents under agents/* embed a Router, plus an llm.Client
// or a tool.Connector where they need one), not inheritance (SPEC_FULL.md Design Notes "Polymorphism over
// inheritance hierarchies").
type Agent interface {
	ID() AgentID
	OnActivate(ctx context.Context) error
	OnDeactivate(ctx context.Context) error
	OnDestroy(ctx context.Context) error
	// HandleEvent must not block and must not panic synchronously out of
	// this call; return a Completion and do real work (if any) off a
	// goroutine that resolves it.
	HandleEvent(ctx context.Context, e event.Event) *Completion
}

// Factory constructs an Agent instance, wired to the Context that owns it.
// The Context handle the factory receives is non-owning on the agent's
// side: agents hold a reference to publish/subscribe through, but the
// registry — not the agent — owns the agent's lifetime (Design Notes
// "Cyclic references").
type Factory func(ctx *Context) (Agent, error)

// AgentDefinition is what the registry stores at Register time (spec §3).
type AgentDefinition struct {
	Name         string
	Factory      Factory
	Description  string
	Capabilities []string
}

var (
	// ErrDuplicateName is returned by Register when name is already taken.
	ErrDuplicateName = fmt.Errorf("agent: name already registered")
)
