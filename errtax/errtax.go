// Package errtax defines the mesh-wide error taxonomy (spec §7).
//
// Rather than a hierarchy of exception types, every failure mode the mesh
// can produce is represented by a sentinel error value and checked with
// errors.Is. Components wrap a sentinel with context via fmt.Errorf's %w
// so callers keep the ability to branch on error kind without losing the
// detail message.
package errtax

import "errors"

// Kind enumerates the error taxonomy of spec.md §7.
type Kind int

const (
	// InvalidPattern is raised by broker subscribe on a malformed topic pattern.
	InvalidPattern Kind = iota
	// BrokerClosed is raised by publish/subscribe after the broker is closed.
	BrokerClosed
	// AgentNotFound is raised when a registry lookup targets an unregistered name.
	AgentNotFound
	// AlreadyActive is raised by Registry.Activate on an already-active agent.
	AlreadyActive
	// LifecycleError is raised when an agent's activation hook fails.
	LifecycleError
	// Timeout is raised when a coordinator step or LLM call exceeds its deadline.
	Timeout
	// LLMUnavailable is raised by the planner/synthesizer when the LLM cannot be reached.
	LLMUnavailable
	// RuleMatchMiss is raised by the fallback engine when no rule clears the confidence floor.
	RuleMatchMiss
	// MalformedPlan is raised by the planner when the LLM's JSON cannot be parsed or validated.
	MalformedPlan
	// Cancelled is raised when a workflow or step is cancelled before completion.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case InvalidPattern:
		return "InvalidPattern"
	case BrokerClosed:
		return "BrokerClosed"
	case AgentNotFound:
		return "AgentNotFound"
	case AlreadyActive:
		return "AlreadyActive"
	case LifecycleError:
		return "LifecycleError"
	case Timeout:
		return "Timeout"
	case LLMUnavailable:
		return "LLMUnavailable"
	case RuleMatchMiss:
		return "RuleMatchMiss"
	case MalformedPlan:
		return "MalformedPlan"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Sentinel error values, one per Kind, suitable for errors.Is comparisons.
var (
	ErrInvalidPattern  = errors.New(InvalidPattern.String())
	ErrBrokerClosed    = errors.New(BrokerClosed.String())
	ErrAgentNotFound   = errors.New(AgentNotFound.String())
	ErrAlreadyActive   = errors.New(AlreadyActive.String())
	ErrLifecycleError  = errors.New(LifecycleError.String())
	ErrTimeout         = errors.New(Timeout.String())
	ErrLLMUnavailable  = errors.New(LLMUnavailable.String())
	ErrRuleMatchMiss   = errors.New(RuleMatchMiss.String())
	ErrMalformedPlan   = errors.New(MalformedPlan.String())
	ErrCancelled       = errors.New(Cancelled.String())
)

// ForKind returns the sentinel error for a Kind, so code that only has the
// enum value (e.g. decoded from a task response) can still build an error
// chain that errors.Is resolves correctly.
func ForKind(k Kind) error {
	switch k {
	case InvalidPattern:
		return ErrInvalidPattern
	case BrokerClosed:
		return ErrBrokerClosed
	case AgentNotFound:
		return ErrAgentNotFound
	case AlreadyActive:
		return ErrAlreadyActive
	case LifecycleError:
		return ErrLifecycleError
	case Timeout:
		return ErrTimeout
	case LLMUnavailable:
		return ErrLLMUnavailable
	case RuleMatchMiss:
		return ErrRuleMatchMiss
	case MalformedPlan:
		return ErrMalformedPlan
	case Cancelled:
		return ErrCancelled
	default:
		return errors.New(k.String())
	}
}
