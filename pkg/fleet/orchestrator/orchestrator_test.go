package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fm/pkg/fleet/provider"
	"github.com/cuemby/fm/pkg/fleet/storage"
	"github.com/cuemby/fm/pkg/fleet/types"
	"github.com/cuemby/fm/pkg/fleet/workspace"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	st, err := storage.New(t.TempDir())
	require.NoError(t, err)
	ports := map[types.ProviderKind]provider.Port{
		types.ProviderLocal: provider.NewLocalProvider(),
	}
	return New(Config{Store: st, Ports: ports, RootName: "testfleet", SessionPrefix: "fm-"})
}

func TestCreateStartStopDestroyAgentLifecycle(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	agent, err := o.CreateAgent(ctx, CreateAgentRequest{
		Name:            "alpha",
		AgentType:       "shell",
		Command:         []string{"sh", "-c", "sleep 100"},
		WorkspaceMode:   workspace.ModeInPlace,
		WorkspaceSource: workspace.Endpoint{Path: t.TempDir()},
	})
	require.NoError(t, err)
	assert.Equal(t, types.AgentRunning, agent.State)

	require.NoError(t, o.StopAgent(ctx, agent.HostID, agent.ID))
	stopped, err := o.store.GetAgent(agent.HostID, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AgentStopped, stopped.State)

	require.NoError(t, o.StartAgent(ctx, agent.HostID, agent.ID))
	running, err := o.store.GetAgent(agent.HostID, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AgentRunning, running.State)

	require.NoError(t, o.DestroyAgent(ctx, agent.HostID, agent.ID, true))
	_, err = o.store.GetAgent(agent.HostID, agent.ID)
	assert.Error(t, err)
}

func TestDestroyRunningAgentRequiresForce(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	agent, err := o.CreateAgent(ctx, CreateAgentRequest{
		Name:            "beta",
		AgentType:       "shell",
		Command:         []string{"sh", "-c", "sleep 100"},
		WorkspaceMode:   workspace.ModeInPlace,
		WorkspaceSource: workspace.Endpoint{Path: t.TempDir()},
	})
	require.NoError(t, err)

	err = o.DestroyAgent(ctx, agent.HostID, agent.ID, false)
	assert.Error(t, err)
}

func TestRenameAgentUpdatesDescriptorAndSession(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	agent, err := o.CreateAgent(ctx, CreateAgentRequest{
		Name:            "gamma",
		AgentType:       "shell",
		Command:         []string{"sh", "-c", "sleep 100"},
		WorkspaceMode:   workspace.ModeInPlace,
		WorkspaceSource: workspace.Endpoint{Path: t.TempDir()},
	})
	require.NoError(t, err)

	require.NoError(t, o.RenameAgent(ctx, agent.HostID, agent.ID, "gamma-renamed"))
	renamed, err := o.store.GetAgent(agent.HostID, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "gamma-renamed", renamed.Name)
}

func TestResolveHostFallsBackToLocal(t *testing.T) {
	o := newTestOrchestrator(t)
	host, err := o.ResolveHost(context.Background(), HostTarget{})
	require.NoError(t, err)
	assert.Equal(t, types.ProviderLocal, host.Provider)
}

func TestResolveHostRejectsConflictingOptions(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.ResolveHost(context.Background(), HostTarget{TargetHost: "x", NewHostProvider: types.ProviderContainer})
	assert.Error(t, err)
}
