// Package weather is an illustrative specialist agent serving the
// "weather.current" capability (SPEC_FULL.md §4.12). It is grounded on the
// agent mains agents/echo_agent, agents/chat_responder, and agents/subscriber:
// the same "subscribe, do work, publish a response" shape, adapted from a
// gRPC message stream to agent.Context.Subscribe.
package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmesh/meshhub/agent"
	"github.com/agentmesh/meshhub/event"
	"github.com/agentmesh/meshhub/task"
	"github.com/agentmesh/meshhub/tool"
)

// Name is the registry name the demo binds this agent's factory under.
const Name = "weather-agent"

const capability = "weather.current"

// Capabilities lists what this agent advertises to the planner.
var Capabilities = []string{capability}

// Agent answers "weather.current" task requests using a tool.Connector.
type Agent struct {
	id        agent.AgentID
	ctx       *agent.Context
	connector tool.Connector
	router    agent.Router
}

// NewFactory builds an agent.Factory bound to the given connector, so the
// demo can swap in a real weather API adapter without touching this file.
func NewFactory(connector tool.Connector) agent.Factory {
	return func(c *agent.Context) (agent.Agent, error) {
		a := &Agent{
			id:        agent.AgentID(Name),
			ctx:       c,
			connector: connector,
		}
		a.router.On(task.RequestTopic(capability), a.handleCurrent)
		return a, nil
	}
}

func (a *Agent) ID() agent.AgentID { return a.id }

func (a *Agent) OnActivate(ctx context.Context) error {
	if err := a.connector.Initialize(ctx, nil); err != nil {
		return err
	}
	return a.ctx.Subscribe(a.id, task.RequestTopic(capability), a.HandleEvent)
}

func (a *Agent) OnDeactivate(ctx context.Context) error {
	return a.ctx.Unsubscribe(a.id, task.RequestTopic(capability))
}

func (a *Agent) OnDestroy(ctx context.Context) error {
	return a.connector.Shutdown(ctx)
}

func (a *Agent) HandleEvent(ctx context.Context, e event.Event) *agent.Completion {
	return a.router.Dispatch(ctx, e)
}

func (a *Agent) handleCurrent(ctx context.Context, e event.Event) *agent.Completion {
	completion, resolve := agent.NewCompletion()
	go func() {
		req, err := task.ParseRequest(e)
		if err != nil {
			resolve(agent.Result{Err: err})
			return
		}

		start := time.Now()
		toolResp, invokeErr := a.connector.Invoke(ctx, tool.Request{
			Operation:  "current",
			Parameters: req.Parameters,
			RequestID:  req.TaskID,
		})

		resp := task.Response{TaskID: req.TaskID, LatencyMs: time.Since(start).Milliseconds()}
		switch {
		case invokeErr != nil:
			resp.Error = &task.ResponseError{Kind: "ToolError", Message: invokeErr.Error(), Retriable: true}
		case !toolResp.Success:
			resp.Error = &task.ResponseError{Kind: "ToolError", Message: toolResp.ErrorMessage, Retriable: true}
		default:
			resp.Success = true
			resp.Result = toolResp.Data
		}

		if err := a.publish(ctx, resp, req.ReplyTopic); err != nil {
			resolve(agent.Result{Err: err})
			return
		}
		resolve(agent.Result{Value: resp})
	}()
	return completion
}

func (a *Agent) publish(ctx context.Context, resp task.Response, replyTopic string) error {
	if replyTopic == "" {
		return fmt.Errorf("weather: task %s carries no reply topic", resp.TaskID)
	}
	respEvent, err := task.BuildResponse(resp, replyTopic, string(a.id), event.DeliveryOptions{Mode: event.Reliable})
	if err != nil {
		return err
	}
	return a.ctx.Publish(ctx, respEvent)
}
