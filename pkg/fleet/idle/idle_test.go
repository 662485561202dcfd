package idle

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fm/pkg/fleet/storage"
	"github.com/cuemby/fm/pkg/fleet/types"
)

type fakeStopper struct {
	stopped []string
}

func (f *fakeStopper) StopAgent(ctx context.Context, hostID, agentID string) error {
	f.stopped = append(f.stopped, agentID)
	return nil
}

func TestSweepStopsIdleAgent(t *testing.T) {
	st, err := storage.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, st.CreateHost(&types.Host{ID: "h1"}))

	agent := &types.Agent{
		ID: "a1", HostID: "h1", Name: "alpha", State: types.AgentRunning,
		IdleMode: types.IdleModeCreate, IdleTimeoutSeconds: 1,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, st.CreateAgent(agent))

	stopper := &fakeStopper{}
	sup := New(st, stopper, nil, zerolog.Nop(), time.Second)

	require.NoError(t, sup.sweep(context.Background()))
	assert.Contains(t, stopper.stopped, "a1")
}

func TestSweepSkipsRecentActivity(t *testing.T) {
	st, err := storage.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, st.CreateHost(&types.Host{ID: "h1"}))

	agent := &types.Agent{
		ID: "a1", HostID: "h1", Name: "alpha", State: types.AgentRunning,
		IdleMode: types.IdleModeCreate, IdleTimeoutSeconds: 3600,
		CreatedAt: time.Now(),
	}
	require.NoError(t, st.CreateAgent(agent))

	stopper := &fakeStopper{}
	sup := New(st, stopper, nil, zerolog.Nop(), time.Second)

	require.NoError(t, sup.sweep(context.Background()))
	assert.Empty(t, stopper.stopped)
}

func TestSweepSkipsDisabledMode(t *testing.T) {
	st, err := storage.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, st.CreateHost(&types.Host{ID: "h1"}))

	agent := &types.Agent{
		ID: "a1", HostID: "h1", Name: "alpha", State: types.AgentRunning,
		IdleMode: types.IdleModeDisabled, IdleTimeoutSeconds: 1,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, st.CreateAgent(agent))

	stopper := &fakeStopper{}
	sup := New(st, stopper, nil, zerolog.Nop(), time.Second)

	require.NoError(t, sup.sweep(context.Background()))
	assert.Empty(t, stopper.stopped)
}
