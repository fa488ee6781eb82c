package coordinator

import (
	"time"

	"github.com/agentmesh/meshhub/planner"
	"github.com/agentmesh/meshhub/task"
)

// StepStatus is the TaskExecution.status enum of spec §3.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepCompleted
	StepFailed
	StepTimeout
)

func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "PENDING"
	case StepRunning:
		return "RUNNING"
	case StepCompleted:
		return "COMPLETED"
	case StepFailed:
		return "FAILED"
	case StepTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

func (s StepStatus) terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepTimeout
}

// WorkflowState is the Workflow.state enum of spec §3.
type WorkflowState int

const (
	Planning WorkflowState = iota
	Executing
	Synthesizing
	Completed
	Failed
)

func (s WorkflowState) String() string {
	switch s {
	case Planning:
		return "PLANNING"
	case Executing:
		return "EXECUTING"
	case Synthesizing:
		return "SYNTHESIZING"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Workflow is the spec §3 Workflow type: one user request's lifecycle from
// planning to synthesis. It is owned by a single logical coordinator
// goroutine (spec §5) — Execute never shares it across goroutines.
type Workflow struct {
	ID          string
	Prompt      string
	UserContext task.UserContext
	StartedAt   time.Time
	State       WorkflowState
	Plan        *planner.ExecutionPlan
	Results     map[string]any
	TaskStatus  map[string]StepStatus
	StepErrors  map[string]error
	FinalResult any
	Err         error
}

// NewWorkflow builds a Workflow in state PLANNING for the given plan.
func NewWorkflow(id, prompt string, uc task.UserContext, plan *planner.ExecutionPlan) *Workflow {
	status := make(map[string]StepStatus, len(plan.Steps))
	for _, s := range plan.Steps {
		status[s.ID] = StepPending
	}
	return &Workflow{
		ID:          id,
		Prompt:      prompt,
		UserContext: uc,
		StartedAt:   time.Now(),
		State:       Planning,
		Plan:        plan,
		Results:     make(map[string]any, len(plan.Steps)),
		TaskStatus:  status,
		StepErrors:  make(map[string]error),
	}
}

func (w *Workflow) allTerminal() bool {
	for _, status := range w.TaskStatus {
		if !status.terminal() {
			return false
		}
	}
	return true
}

func (w *Workflow) anyFailed() bool {
	for _, status := range w.TaskStatus {
		if status == StepFailed || status == StepTimeout {
			return true
		}
	}
	return false
}

// readySteps returns the steps whose dependencies are all COMPLETED and
// which have not yet been dispatched (spec §4.6).
func (w *Workflow) readySteps() []int {
	var ready []int
	for i, step := range w.Plan.Steps {
		if w.TaskStatus[step.ID] != StepPending {
			continue
		}
		depsOK := true
		for _, dep := range w.Plan.Dependencies[step.ID] {
			if w.TaskStatus[dep] != StepCompleted {
				depsOK = false
				break
			}
		}
		if depsOK {
			ready = append(ready, i)
		}
	}
	return ready
}
