package agent_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/meshhub/agent"
	"github.com/agentmesh/meshhub/broker"
	"github.com/agentmesh/meshhub/errtax"
	"github.com/agentmesh/meshhub/event"
	"github.com/agentmesh/meshhub/internal/observability"
)

type stubAgent struct {
	id            agent.AgentID
	activateErr   error
	deactivateErr error
	router        agent.Router
}

func (s *stubAgent) ID() agent.AgentID                          { return s.id }
func (s *stubAgent) OnActivate(ctx context.Context) error       { return s.activateErr }
func (s *stubAgent) OnDeactivate(ctx context.Context) error     { return s.deactivateErr }
func (s *stubAgent) OnDestroy(ctx context.Context) error        { return nil }
func (s *stubAgent) HandleEvent(ctx context.Context, e event.Event) *agent.Completion {
	return s.router.Dispatch(ctx, e)
}

func newTestContext(t *testing.T) *agent.Context {
	t.Helper()
	logger, trace, metrics := observability.NewForTesting("meshhub-test")
	b := broker.New(broker.Config{Workers: 2, QueueSize: 16}, logger, trace, metrics)
	t.Cleanup(func() { _ = b.Close() })
	return agent.NewContext(b, logger, trace, metrics)
}

func TestRegisterActivateDeactivate(t *testing.T) {
	ctx := newTestContext(t)
	factory := func(c *agent.Context) (agent.Agent, error) {
		return &stubAgent{id: "weather-1"}, nil
	}
	require.NoError(t, ctx.Register("weather", factory, "weather agent", []string{"weather.current"}))

	id, err := ctx.Activate(context.Background(), "weather")
	require.NoError(t, err)
	assert.Equal(t, agent.AgentID("weather-1"), id)

	infos := ctx.Discover()
	require.Len(t, infos, 1)
	assert.Equal(t, "weather agent", infos[0].Description)
	assert.Equal(t, []string{"weather.current"}, infos[0].Capabilities)

	require.NoError(t, ctx.Deactivate(context.Background(), "weather"))
	assert.Empty(t, ctx.Discover())

	// Idempotent.
	require.NoError(t, ctx.Deactivate(context.Background(), "weather"))
}

func TestActivateAlreadyActive(t *testing.T) {
	ctx := newTestContext(t)
	factory := func(c *agent.Context) (agent.Agent, error) {
		return &stubAgent{id: "x"}, nil
	}
	require.NoError(t, ctx.Register("x", factory, "x agent", nil))
	_, err := ctx.Activate(context.Background(), "x")
	require.NoError(t, err)

	_, err = ctx.Activate(context.Background(), "x")
	assert.ErrorIs(t, err, errtax.ErrAlreadyActive)
}

func TestActivateUnknownAgent(t *testing.T) {
	ctx := newTestContext(t)
	_, err := ctx.Activate(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, errtax.ErrAgentNotFound)
}

func TestRegisterDuplicateName(t *testing.T) {
	ctx := newTestContext(t)
	factory := func(c *agent.Context) (agent.Agent, error) { return &stubAgent{id: "a"}, nil }
	require.NoError(t, ctx.Register("dup", factory, "", nil))
	err := ctx.Register("dup", factory, "", nil)
	assert.ErrorIs(t, err, agent.ErrDuplicateName)
}

func TestShutdownAllDrains(t *testing.T) {
	ctx := newTestContext(t)
	for _, name := range []string{"a", "b", "c"} {
		n := name
		require.NoError(t, ctx.Register(n, func(c *agent.Context) (agent.Agent, error) {
			return &stubAgent{id: agent.AgentID(n)}, nil
		}, "", nil))
		_, err := ctx.Activate(context.Background(), n)
		require.NoError(t, err)
	}
	require.Equal(t, 3, ctx.Registry().Count())
	require.NoError(t, ctx.Registry().ShutdownAll(context.Background(), 2*time.Second))
	assert.Equal(t, 0, ctx.Registry().Count())
}

func TestUnknownTopicNoOps(t *testing.T) {
	s := &stubAgent{id: "agent-1"}
	s.router.On("known.topic", func(ctx context.Context, e event.Event) *agent.Completion {
		return agent.Completed("handled", nil)
	})

	e, err := event.New("unknown.topic", nil, "", "corr", event.DeliveryOptions{})
	require.NoError(t, err)

	completion := s.HandleEvent(context.Background(), e)
	val, err := completion.Wait(context.Background())
	require.NoError(t, err)
	assert.Nil(t, val)
}
