package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentmesh/meshhub/errtax"
	"github.com/agentmesh/meshhub/internal/observability"
)

// State is the agent lifecycle state (spec §3).
type State int

const (
	Inactive State = iota
	Active
	Destroyed
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "INACTIVE"
	case Active:
		return "ACTIVE"
	case Destroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

const activateTimeBudget = 5 * time.Second

type instance struct {
	id    AgentID
	agent Agent
	state State
}

// Registry registers AgentDefinitions and owns the lifecycle of every agent
// it instantiates (spec §4.3): it is the sole owner of activation,
// deactivation, and discovery.
type Registry struct {
	ctx *Context

	logger *slog.Logger
	trace  *observability.TraceManager
	metric *observability.MetricsManager

	mu          sync.RWMutex
	definitions map[string]*AgentDefinition
	instances   map[string]*instance // keyed by definition name
}

func newRegistry(ctx *Context, logger *slog.Logger, trace *observability.TraceManager, metrics *observability.MetricsManager) *Registry {
	return &Registry{
		ctx:         ctx,
		logger:      logger,
		trace:       trace,
		metric:      metrics,
		definitions: make(map[string]*AgentDefinition),
		instances:   make(map[string]*instance),
	}
}

// Register stores a definition under name. Names must be unique.
func (r *Registry) Register(name string, factory Factory, description string, capabilities []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[name]; exists {
		return fmt.Errorf("agent: %w: %s", ErrDuplicateName, name)
	}
	r.definitions[name] = &AgentDefinition{
		Name:         name,
		Factory:      factory,
		Description:  description,
		Capabilities: capabilities,
	}
	r.logger.Info("agent registered", "name", name, "capabilities", capabilities)
	return nil
}

// Activate creates an instance via the named definition's factory, wires it
// to the Context, and calls OnActivate, bounded by a 5s time budget (spec
// §4.3). The registry's own lock is never held while invoking the
// lifecycle hook (Design Notes "Deadlock avoidance").
func (r *Registry) Activate(ctx context.Context, name string) (AgentID, error) {
	r.mu.Lock()
	def, ok := r.definitions[name]
	if !ok {
		r.mu.Unlock()
		return "", fmt.Errorf("agent: %w: %s", errtax.ErrAgentNotFound, name)
	}
	if inst, active := r.instances[name]; active && inst.state == Active {
		r.mu.Unlock()
		return "", fmt.Errorf("agent: %w: %s", errtax.ErrAlreadyActive, name)
	}
	r.mu.Unlock()

	actCtx, cancel := context.WithTimeout(ctx, activateTimeBudget)
	defer cancel()

	a, err := def.Factory(r.ctx)
	if err != nil {
		return "", fmt.Errorf("agent: %w: factory for %s: %v", errtax.ErrLifecycleError, name, err)
	}

	if err := a.OnActivate(actCtx); err != nil {
		return "", fmt.Errorf("agent: %w: OnActivate for %s: %v", errtax.ErrLifecycleError, name, err)
	}

	r.mu.Lock()
	r.instances[name] = &instance{id: a.ID(), agent: a, state: Active}
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "agent activated", "name", name, "agent_id", a.ID())
	return a.ID(), nil
}

// Deactivate calls OnDeactivate, drops the instance, and is idempotent.
func (r *Registry) Deactivate(ctx context.Context, name string) error {
	r.mu.Lock()
	inst, ok := r.instances[name]
	if !ok || inst.state != Active {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := inst.agent.OnDeactivate(ctx); err != nil {
		r.logger.ErrorContext(ctx, "agent deactivate hook failed", "name", name, "error", err)
		// The agent is forced back to INACTIVE regardless (spec §7 LifecycleError policy).
	}

	r.mu.Lock()
	inst.state = Inactive
	delete(r.instances, name)
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "agent deactivated", "name", name)
	return nil
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (*AgentDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[name]
	return def, ok
}

// List returns every registered definition name.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	return names
}

// Count returns the number of currently active instances.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, inst := range r.instances {
		if inst.state == Active {
			n++
		}
	}
	return n
}

// Discover returns (agentID, description, capabilities) for every active
// agent (spec §4.3), the feed the planner consumes.
func (r *Registry) Discover() []AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentInfo, 0, len(r.instances))
	for name, inst := range r.instances {
		if inst.state != Active {
			continue
		}
		def := r.definitions[name]
		out = append(out, AgentInfo{
			ID:           inst.id,
			Description:  def.Description,
			Capabilities: def.Capabilities,
		})
	}
	return out
}

// ShutdownAll deactivates every active instance in parallel, bounded by
// timeout (spec §4.3): it returns nil once every Deactivate call has
// returned, or the context error if the timeout passes first. It waits only
// for the Deactivate calls; event handlers already running are not waited
// for.
func (r *Registry) ShutdownAll(ctx context.Context, timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.mu.RLock()
	names := make([]string, 0, len(r.instances))
	for name, inst := range r.instances {
		if inst.state == Active {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			if err := r.Deactivate(shutdownCtx, n); err != nil {
				r.logger.ErrorContext(shutdownCtx, "shutdown: deactivate failed", "name", n, "error", err)
			}
		}(name)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-shutdownCtx.Done():
		return shutdownCtx.Err()
	}
}
