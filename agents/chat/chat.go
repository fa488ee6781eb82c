// Package chat is an illustrative specialist agent serving the
// "chat.general" capability (SPEC_FULL.md §4.12): an LLM-backed passthrough,
// grounded on agents/chat_responder (queryVertexAI → extract response text),
// adapted from a one-shot gRPC message handler to agent.Context.Subscribe.
// It falls back to a fallback.Engine canned response when the LLM is
// unavailable, rather than failing the task.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentmesh/meshhub/agent"
	"github.com/agentmesh/meshhub/errtax"
	"github.com/agentmesh/meshhub/event"
	"github.com/agentmesh/meshhub/fallback"
	"github.com/agentmesh/meshhub/llm"
	"github.com/agentmesh/meshhub/task"
)

// Name is the registry name the demo binds this agent's factory under.
const Name = "chat-agent"

const capability = "chat.general"

// Capabilities lists what this agent advertises to the planner.
var Capabilities = []string{capability}

const defaultTemperature = 0.7

// Agent answers "chat.general" task requests via an llm.Client, falling
// back to fallback.Engine on LLM failure.
type Agent struct {
	id       agent.AgentID
	ctx      *agent.Context
	client   llm.Client
	model    string
	fallback *fallback.Engine
	logger   *slog.Logger
	router   agent.Router
}

// NewFactory builds an agent.Factory bound to an llm.Client and the
// fallback.Engine invoked when the LLM call fails (spec §4.9 "resilience").
func NewFactory(client llm.Client, model string, fallbackEngine *fallback.Engine, logger *slog.Logger) agent.Factory {
	return func(c *agent.Context) (agent.Agent, error) {
		a := &Agent{
			id:       agent.AgentID(Name),
			ctx:      c,
			client:   client,
			model:    model,
			fallback: fallbackEngine,
			logger:   logger,
		}
		a.router.On(task.RequestTopic(capability), a.handleChat)
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

func (a *Agent) handleChat(ctx context.Context, e event.Event) *agent.Completion {
	completion, resolve := agent.NewCompletion()
	go func() {
		req, err := task.ParseRequest(e)
		if err != nil {
			resolve(agent.Result{Err: err})
			return
		}

		prompt, _ := req.Parameters["prompt"].(string)
		if prompt == "" {
			prompt, _ = req.Parameters["message"].(string)
		}

		start := time.Now()
		resp := task.Response{TaskID: req.TaskID}
		if prompt == "" {
			resp.Error = &task.ResponseError{Kind: "BadRequest", Message: "chat: missing prompt parameter", Retriable: false}
		} else {
			text, source, replyErr := a.reply(ctx, prompt)
			if replyErr != nil {
				resp.Error = &task.ResponseError{Kind: "LLMUnavailable", Message: replyErr.Error(), Retriable: true}
			} else {
				resp.Success = true
				resp.Result = map[string]any{"response": text, "source": source}
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

// reply tries the LLM first and falls back to the canned-response engine,
// returning which of the two produced the answer for observability.
func (a *Agent) reply(ctx context.Context, prompt string) (text string, source string, err error) {
	if a.client != nil {
		text, llmErr := a.client.Complete(ctx, llm.CompletionRequest{
			Prompt:      prompt,
			Model:       a.model,
			Temperature: defaultTemperature,
		})
		if llmErr == nil {
			return text, "llm", nil
		}
		if a.logger != nil {
			a.logger.WarnContext(ctx, "chat: llm call failed, falling back", "error", llmErr)
		}
	}

	if a.fallback == nil {
		return "", "", fmt.Errorf("chat: %w", errtax.ErrLLMUnavailable)
	}
	text, fallbackErr := a.fallback.Match(prompt)
	if fallbackErr != nil {
		return "", "", fmt.Errorf("chat: %w", errtax.ErrLLMUnavailable)
	}
	return text, "fallback", nil
}

func (a *Agent) publish(ctx context.Context, resp task.Response, replyTopic string) error {
	if replyTopic == "" {
		return fmt.Errorf("chat: task %s carries no reply topic", resp.TaskID)
	}
	respEvent, err := task.BuildResponse(resp, replyTopic, string(a.id), event.DeliveryOptions{Mode: event.Reliable})
	if err != nil {
		return err
	}
	return a.ctx.Publish(ctx, respEvent)
}
