// Package travel is an illustrative specialist agent serving the
// "travel.plan" capability (SPEC_FULL.md §4.12). Unlike agents/weather and
// agents/stock it has no tool.Connector of its own: it is the example of a
// step with a dependency, reading the prior weather step's result out of
// the "dependencyResults" parameter the coordinator threads through (spec
// §4.6), rather than calling a connector.
package travel

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmesh/meshhub/agent"
	"github.com/agentmesh/meshhub/event"
	"github.com/agentmesh/meshhub/task"
)

// Name is the registry name the demo binds this agent's factory under.
const Name = "travel-agent"

const capability = "travel.plan"

// Capabilities lists what this agent advertises to the planner.
var Capabilities = []string{capability}

// Agent answers "travel.plan" task requests, folding in weather advice when
// a dependency step supplied one.
type Agent struct {
	id     agent.AgentID
	ctx    *agent.Context
	router agent.Router
}

// NewFactory builds an agent.Factory for the travel planning agent.
func NewFactory() agent.Factory {
	return func(c *agent.Context) (agent.Agent, error) {
		a := &Agent{id: agent.AgentID(Name), ctx: c}
		a.router.On(task.RequestTopic(capability), a.handlePlan)
		return a, nil
	}
}

func (a *Agent) ID() agent.AgentID { return a.id }

func (a *Agent) OnActivate(ctx context.Context) error {
	return a.ctx.Subscribe(a.id, task.RequestTopic(capability), a.HandleEvent)
}

func (a *Agent) OnDeactivate(ctx context.Context) error {
	return a.ctx.Unsubscribe(a.id, task.RequestTopic(capability))
}

func (a *Agent) OnDestroy(ctx context.Context) error { return nil }

func (a *Agent) HandleEvent(ctx context.Context, e event.Event) *agent.Completion {
	return a.router.Dispatch(ctx, e)
}

func (a *Agent) handlePlan(ctx context.Context, e event.Event) *agent.Completion {
	completion, resolve := agent.NewCompletion()
	go func() {
		req, err := task.ParseRequest(e)
		if err != nil {
			resolve(agent.Result{Err: err})
			return
		}

		start := time.Now()
		resp := task.Response{TaskID: req.TaskID}

		destination, _ := req.Parameters["location"].(string)
		if destination == "" {
			resp.Error = &task.ResponseError{Kind: "BadRequest", Message: "travel: missing location parameter", Retriable: false}
		} else {
			resp.Success = true
			resp.Result = map[string]any{
				"destination": destination,
				"itinerary":   fmt.Sprintf("Day trip to %s.", destination),
				"advisory":    weatherAdvisory(req.Parameters),
			}
		}
		resp.LatencyMs = time.Since(start).Milliseconds()

		if err := a.publish(ctx, resp, req.ReplyTopic); err != nil {
			resolve(agent.Result{Err: err})
			return
		}
		resolve(agent.Result{Value: resp})
	}()
	return completion
}

// weatherAdvisory folds a dependency weather step's result, if present,
// into a one-line advisory; it never fails the overall plan when the
// weather data is absent or in an unexpected shape.
func weatherAdvisory(params map[string]any) string {
	deps, _ := params["dependencyResults"].(map[string]any)
	for _, v := range deps {
		weather, ok := v.(map[string]any)
		if !ok {
			continue
		}
		conditions, _ := weather["conditions"].(string)
		temp, hasTemp := weather["temperatureC"]
		if conditions == "" && !hasTemp {
			continue
		}
		return fmt.Sprintf("Expect %s weather around %v°C.", conditions, temp)
	}
	return "No weather forecast available for this trip."
}

func (a *Agent) publish(ctx context.Context, resp task.Response, replyTopic string) error {
	if replyTopic == "" {
		return fmt.Errorf("travel: task %s carries no reply topic", resp.TaskID)
	}
	respEvent, err := task.BuildResponse(resp, replyTopic, string(a.id), event.DeliveryOptions{Mode: event.Reliable})
	if err != nil {
		return err
	}
	return a.ctx.Publish(ctx, respEvent)
}
