package storage

import (
	"testing"
	"time"

	"github.com/cuemby/fm/pkg/fleet/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestHostRoundTrip(t *testing.T) {
	s := newTestStore(t)
	h := &types.Host{ID: "h1", Name: "alpha", Provider: types.ProviderLocal, State: types.HostRunning, CreatedAt: time.Now()}
	require.NoError(t, s.CreateHost(h))

	got, err := s.GetHost("h1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)

	_, err = s.GetHostByName("alpha")
	require.NoError(t, err)

	list, err := s.ListHosts()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateHostFailsOnDuplicate(t *testing.T) {
	s := newTestStore(t)
	h := &types.Host{ID: "h1", Name: "alpha"}
	require.NoError(t, s.CreateHost(h))
	err := s.CreateHost(h)
	assert.Error(t, err)
}

func TestAgentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateHost(&types.Host{ID: "h1", Name: "alpha"}))
	a := &types.Agent{ID: "a1", HostID: "h1", Name: "foo", State: types.AgentRunning}
	require.NoError(t, s.CreateAgent(a))

	got, err := s.GetAgent("h1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "foo", got.Name)

	list, err := s.ListAgents("h1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteAgent("h1", "a1"))
	_, err = s.GetAgent("h1", "a1")
	assert.Error(t, err)
}

func TestActivityTouchUpdatesMtime(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateHost(&types.Host{ID: "h1"}))

	zero, err := s.ActivityTime("h1", types.ActivityUser)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	require.NoError(t, s.TouchActivity("h1", types.ActivityUser))
	ts, err := s.ActivityTime("h1", types.ActivityUser)
	require.NoError(t, err)
	assert.False(t, ts.IsZero())
}

func TestHostLockExcludesSecondAcquirer(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateHost(&types.Host{ID: "h1"}))

	lock, err := s.AcquireHostLock("h1", "stop", time.Second)
	require.NoError(t, err)

	_, err = s.AcquireHostLock("h1", "start", 200*time.Millisecond)
	assert.Error(t, err)

	require.NoError(t, lock.Release())

	lock2, err := s.AcquireHostLock("h1", "start", time.Second)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}
