package agent

import (
	"context"

	"github.com/agentmesh/meshhub/broker"
	"github.com/agentmesh/meshhub/event"
)

// HandlerFunc handles one matched event for a Router route.
type HandlerFunc func(ctx context.Context, e event.Event) *Completion

type route struct {
	pattern string
	handler HandlerFunc
}

// Router is the "pattern -> handler" route table design note
// (SPEC_FULL.md §9 "Dynamic dispatch on event topic"): agents compose a
// Router instead of branching on topic prefix inside HandleEvent, matched
// with the exact same grammar broker.Match uses.
type Router struct {
	routes []route
}

// On registers a handler for events whose topic matches pattern. Routes are
// tried in registration order; the first match wins.
func (r *Router) On(pattern string, handler HandlerFunc) {
	r.routes = append(r.routes, route{pattern: pattern, handler: handler})
}

// Dispatch runs the first matching route's handler, or no-ops (spec §4.2:
// "An agent receiving an unknown topic must no-op, not fail") by returning
// an already-completed, error-free Completion.
func (r *Router) Dispatch(ctx context.Context, e event.Event) *Completion {
	for _, rt := range r.routes {
		matched, err := broker.Match(rt.pattern, e.Topic())
		if err != nil || !matched {
			continue
		}
		return rt.handler(ctx, e)
	}
	return Completed(nil, nil)
}
