// Package stock is an illustrative specialist agent serving the
// "stock.quote" capability (SPEC_FULL.md §4.12), mirroring agents/weather's
// shape with a different tool.Connector and parameter name.
package stock

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
const Name = "stock-agent"

const capability = "stock.quote"

// Capabilities lists what this agent advertises to the planner.
var Capabilities = []string{capability}

// Agent answers "stock.quote" task requests using a tool.Connector.
type Agent struct {
	id        agent.AgentID
	ctx       *agent.Context
	connector tool.Connector
	router    agent.Router
}

// NewFactory builds an agent.Factory bound to the given connector.
func NewFactory(connector tool.Connector) agent.Factory {
	return func(c *agent.Context) (agent.Agent, error) {
		a := &Agent{
			id:        agent.AgentID(Name),
			ctx:       c,
			connector: connector,
		}
		a.router.On(task.RequestTopic(capability), a.handleQuote)
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

func (a *Agent) handleQuote(ctx context.Context, e event.Event) *agent.Completion {
	completion, resolve := agent.NewCompletion()
	go func() {
		req, err := task.ParseRequest(e)
		if err != nil {
			resolve(agent.Result{Err: err})
			return
		}

		start := time.Now()
		toolResp, invokeErr := a.connector.Invoke(ctx, tool.Request{
			Operation:  "quote",
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
		return fmt.Errorf("stock: task %s carries no reply topic", resp.TaskID)
	}
	respEvent, err := task.BuildResponse(resp, replyTopic, string(a.id), event.DeliveryOptions{Mode: event.Reliable})
	if err != nil {
		return err
	}
	return a.ctx.Publish(ctx, respEvent)
}
