// Package coordinator drives a Workflow from PLANNING through SYNTHESIZING
// (spec §4.6): it schedules the ready-set of TaskSteps each tick,
// dispatches task-request Events over the broker, and resolves each step
// against a per-workflow pending-response map on timeout or reply.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/meshhub/broker"
	"github.com/agentmesh/meshhub/errtax"
	"github.com/agentmesh/meshhub/event"
	"github.com/agentmesh/meshhub/internal/observability"
	"github.com/agentmesh/meshhub/planner"
	"github.com/agentmesh/meshhub/task"
)

const defaultTaskTimeout = 60 * time.Second

// Config carries the coordinator's scheduling options (spec §6
// "parallelExecution", "taskTimeoutMs", "maxRetries").
type Config struct {
	Parallel    bool
	TaskTimeout time.Duration
	// MaxRetries bounds how many times a step whose response carries a
	// Retriable error is redispatched before it is given up as failed.
	// Zero (the default) means no retries.
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.TaskTimeout == 0 {
		c.TaskTimeout = defaultTaskTimeout
	}
	return c
}

// Coordinator executes Workflows over a Broker.
type Coordinator struct {
	cfg    Config
	broker *broker.Broker
	logger *slog.Logger
	trace  *observability.TraceManager
	metric *observability.MetricsManager
}

// New builds a Coordinator dispatching task-request Events over b.
func New(cfg Config, b *broker.Broker, logger *slog.Logger, trace *observability.TraceManager, metric *observability.MetricsManager) *Coordinator {
	return &Coordinator{cfg: cfg.withDefaults(), broker: b, logger: logger, trace: trace, metric: metric}
}

type resolution struct {
	taskID string
	resp   task.Response
}

// Execute drives wf from EXECUTING to a terminal state, publishing one
// task-request Event per dispatched step and resolving each against its own
// reply subscription (spec §4.6).
func (c *Coordinator) Execute(ctx context.Context, wf *Workflow) error {
	replyTopic := fmt.Sprintf("orchestrator.task.response.%s", wf.ID)
	subscriberID := "coordinator-" + wf.ID

	resolutions := make(chan resolution, len(wf.Plan.Steps)+1)
	err := c.broker.Subscribe(subscriberID, replyTopic, func(handlerCtx context.Context, e event.Event) error {
		resp, err := task.ParseResponse(e)
		if err != nil {
			c.logger.WarnContext(handlerCtx, "coordinator: dropping unparsable response", "error", err)
			return nil
		}
		select {
		case resolutions <- resolution{taskID: resp.TaskID, resp: resp}:
		case <-handlerCtx.Done():
			return handlerCtx.Err()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("coordinator: subscribe for workflow %s: %w", wf.ID, err)
	}
	defer func() { _ = c.broker.Unsubscribe(subscriberID, replyTopic) }()

	wf.State = Executing

	stepIndexByID := make(map[string]int, len(wf.Plan.Steps))
	for i, step := range wf.Plan.Steps {
		stepIndexByID[step.ID] = i
	}

	dependents := make(map[string][]string, len(wf.Plan.Steps))
	for stepID, deps := range wf.Plan.Dependencies {
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], stepID)
		}
	}

	taskIDToStep := make(map[string]string)
	retryCounts := make(map[string]int)
	var timersMu sync.Mutex
	timers := make(map[string]*time.Timer)

	stopTimer := func(taskID string) {
		timersMu.Lock()
		if t, ok := timers[taskID]; ok {
			t.Stop()
			delete(timers, taskID)
		}
		timersMu.Unlock()
	}

	dispatchStep := func(stepIdx int) error {
		step := wf.Plan.Steps[stepIdx]
		taskID := uuid.NewString()
		taskIDToStep[taskID] = step.ID
		wf.TaskStatus[step.ID] = StepRunning

		req := task.Request{
			TaskID:      taskID,
			Capability:  step.Capability,
			Parameters:  mergeDependencyResults(step.Parameters, wf.Plan.Dependencies[step.ID], wf.Results),
			UserContext: wf.UserContext,
			Priority:    step.Priority,
			Deadline:    time.Now().Add(c.cfg.TaskTimeout),
			ReplyTopic:  replyTopic,
		}
		e, err := task.BuildRequest(req, subscriberID, event.DeliveryOptions{Mode: event.Reliable})
		if err != nil {
			return fmt.Errorf("build task request for step %s: %w", step.ID, err)
		}
		if err := c.broker.Publish(ctx, e); err != nil {
			return fmt.Errorf("publish task request for step %s: %w", step.ID, err)
		}

		timer := time.AfterFunc(c.cfg.TaskTimeout, func() {
			resolutions <- resolution{taskID: taskID, resp: task.Response{
				TaskID:  taskID,
				Success: false,
				Error:   &task.ResponseError{Kind: "Timeout", Message: "task timed out", Retriable: false},
			}}
		})
		timersMu.Lock()
		timers[taskID] = timer
		timersMu.Unlock()
		return nil
	}

	for !wf.allTerminal() {
		ready := wf.readySteps()
		if len(ready) > 0 {
			if c.cfg.Parallel {
				for _, idx := range ready {
					if err := dispatchStep(idx); err != nil {
						return err
					}
				}
			} else {
				idx := pickNext(wf.Plan.Steps, ready)
				if err := dispatchStep(idx); err != nil {
					return err
				}
			}
		}

		if wf.allTerminal() {
			break
		}

		// No step is ready and nothing is in flight: the remaining pending
		// steps can never become ready (their dependencies stopped short of
		// COMPLETED). Rather than block forever on resolutions that will
		// never arrive, mark them skipped so the workflow can terminate.
		if len(ready) == 0 && len(taskIDToStep) == 0 {
			for _, step := range wf.Plan.Steps {
				if wf.TaskStatus[step.ID] == StepPending {
					wf.TaskStatus[step.ID] = StepFailed
					wf.StepErrors[step.ID] = fmt.Errorf("coordinator: step %s skipped, a dependency never completed", step.ID)
				}
			}
			break
		}

		select {
		case res := <-resolutions:
			stopTimer(res.taskID)
			stepID, ok := taskIDToStep[res.taskID]
			if !ok {
				c.logger.Warn("coordinator: response for unknown task dropped", "taskId", res.taskID)
				continue
			}
			delete(taskIDToStep, res.taskID)

			switch {
			case res.resp.Success:
				wf.TaskStatus[stepID] = StepCompleted
				wf.Results[stepID] = res.resp.Result

			case res.resp.Error != nil && res.resp.Error.Retriable && retryCounts[stepID] < c.cfg.MaxRetries:
				retryCounts[stepID]++
				c.logger.InfoContext(ctx, "coordinator: retrying step", "stepId", stepID, "attempt", retryCounts[stepID], "error", res.resp.Error.Message)
				wf.TaskStatus[stepID] = StepPending
				if err := dispatchStep(stepIndexByID[stepID]); err != nil {
					return err
				}

			case res.resp.Error != nil && res.resp.Error.Kind == "Timeout":
				wf.TaskStatus[stepID] = StepTimeout
				wf.StepErrors[stepID] = fmt.Errorf("%w: %s", errtax.ErrTimeout, res.resp.Error.Message)
				skipDependents(wf, dependents, stepID)

			default:
				wf.TaskStatus[stepID] = StepFailed
				if res.resp.Error != nil {
					wf.StepErrors[stepID] = fmt.Errorf("%s: %s", res.resp.Error.Kind, res.resp.Error.Message)
				}
				skipDependents(wf, dependents, stepID)
			}

		case <-ctx.Done():
			c.cancelOutstanding(wf, taskIDToStep, stopTimer)
			wf.State = Failed
			wf.Err = fmt.Errorf("coordinator: %w", errtax.ErrCancelled)
			return wf.Err
		}
	}

	if wf.anyFailed() {
		wf.State = Failed
		wf.Err = fmt.Errorf("coordinator: workflow %s had failed steps", wf.ID)
		return wf.Err
	}

	wf.State = Synthesizing
	wf.State = Completed
	return nil
}

// cancelOutstanding marks every in-flight, non-terminal step FAILED with
// errtax.ErrCancelled and stops its timer (spec §4.6 "Cancellation"). Steps
// that were never dispatched keep their PENDING status.
func (c *Coordinator) cancelOutstanding(wf *Workflow, taskIDToStep map[string]string, stopTimer func(string)) {
	for taskID, stepID := range taskIDToStep {
		if !wf.TaskStatus[stepID].terminal() {
			wf.TaskStatus[stepID] = StepFailed
			wf.StepErrors[stepID] = errtax.ErrCancelled
			stopTimer(taskID)
		}
	}
}

// skipDependents marks every still-PENDING step that transitively depends on
// failedStepID as FAILED, so a failure upstream in the DAG never leaves a
// dependent step waiting on a dependency that will never reach COMPLETED
// (spec §4.6/§8 S3 "if s1 FAILS, s2 is never dispatched and workflow ends
// FAILED").
func skipDependents(wf *Workflow, dependents map[string][]string, failedStepID string) {
	queue := []string{failedStepID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range dependents[id] {
			if wf.TaskStatus[dep] == StepPending {
				wf.TaskStatus[dep] = StepFailed
				wf.StepErrors[dep] = fmt.Errorf("coordinator: step %s skipped, dependency %s did not complete", dep, id)
				queue = append(queue, dep)
			}
		}
	}
}

// dependencyResultsKey is the synthetic parameter agents read to see the
// results of the steps they depend on (spec §4.6 "downstream steps may
// reference prior results").
const dependencyResultsKey = "dependencyResults"

// mergeDependencyResults copies params and, if deps is non-empty, adds a
// dependencyResultsKey entry mapping each completed dependency's step id to
// its result, so a step like travel.plan can read the weather step's output
// without the planner having to thread it through explicit parameters.
func mergeDependencyResults(params map[string]any, deps []string, results map[string]any) map[string]any {
	if len(deps) == 0 {
		return params
	}
	merged := make(map[string]any, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	depResults := make(map[string]any, len(deps))
	for _, dep := range deps {
		if r, ok := results[dep]; ok {
			depResults[dep] = r
		}
	}
	merged[dependencyResultsKey] = depResults
	return merged
}

// pickNext selects the next step to dispatch sequentially: highest
// priority first, ties broken by lexicographic step id (spec §4.6).
func pickNext(steps []planner.TaskStep, ready []int) int {
	sort.Slice(ready, func(i, j int) bool {
		a, b := steps[ready[i]], steps[ready[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.ID < b.ID
	})
	return ready[0]
}
