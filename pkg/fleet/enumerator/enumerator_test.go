package enumerator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fm/pkg/fleet/types"
)

func rowFixture(state types.AgentState, provider types.ProviderKind) Row {
	return Row{
		Agent: &types.Agent{Name: "a1", State: state, Labels: map[string]string{"team": "infra"}, CreatedAt: time.Now()},
		Host:  &types.Host{Name: "h1", Provider: provider},
	}
}

func TestEffectiveStateOrphanedWhenProviderMissing(t *testing.T) {
	assert.Equal(t, types.EffectiveOrphaned, effectiveState(&types.Agent{State: types.AgentRunning}, false, true))
}

func TestEffectiveStateExitedWhenSessionGone(t *testing.T) {
	assert.Equal(t, types.EffectiveExited, effectiveState(&types.Agent{State: types.AgentRunning}, true, false))
}

func TestEffectiveStateDestroyedTombstone(t *testing.T) {
	assert.Equal(t, types.EffectiveDestroyed, effectiveState(&types.Agent{Destroyed: true}, true, true))
}

func TestFilterMatchesOnLabel(t *testing.T) {
	f, err := NewFilter(`labels.team == "infra"`)
	require.NoError(t, err)
	r := rowFixture(types.AgentRunning, types.ProviderLocal)
	r.Effective = types.EffectiveRunning
	ok, err := f.Match(r)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShorthandExpandsRunning(t *testing.T) {
	f, err := NewFilter(Shorthand("running"))
	require.NoError(t, err)
	r := rowFixture(types.AgentRunning, types.ProviderLocal)
	r.Effective = types.EffectiveStopped
	ok, err := f.Match(r)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSortRowsByName(t *testing.T) {
	rows := []Row{
		{Agent: &types.Agent{Name: "zeta"}, Host: &types.Host{}},
		{Agent: &types.Agent{Name: "alpha"}, Host: &types.Host{}},
	}
	SortRows(rows, []SortKey{SortByName})
	assert.Equal(t, "alpha", rows[0].Agent.Name)
}
