// Package enumerator implements the Fleet Enumerator (C8): a read-only
// reconciliation of the local state store, each provider's list_hosts, and
// the session multiplexer's live presence into one effective_state view.
// The three-source merge-and-diff table is grounded on the teacher's
// pkg/reconciler/reconciler.go reconcileNodes/reconcileContainers rule
// table (compare declared vs. observed state, derive a verdict); the
// enumerator is a read-only analogue of that reconciler.
package enumerator

import (
	"context"

	"github.com/cuemby/fm/pkg/fleet/provider"
	"github.com/cuemby/fm/pkg/fleet/session"
	"github.com/cuemby/fm/pkg/fleet/storage"
	"github.com/cuemby/fm/pkg/fleet/types"
)

// Row is one merged agent view, ready for filtering/sorting/formatting.
type Row struct {
	Agent     *types.Agent
	Host      *types.Host
	Effective types.EffectiveState
}

// Enumerator merges the three sources of truth for one fleet.
type Enumerator struct {
	store    *storage.Store
	ports    map[types.ProviderKind]provider.Port
	rootName string
}

func New(store *storage.Store, ports map[types.ProviderKind]provider.Port, rootName string) *Enumerator {
	return &Enumerator{store: store, ports: ports, rootName: rootName}
}

// List produces the merged, effective_state-annotated view across every
// host and agent in the local store.
func (e *Enumerator) List(ctx context.Context) ([]Row, error) {
	hosts, err := e.store.ListHosts()
	if err != nil {
		return nil, err
	}

	providerHosts := e.liveProviderHosts(ctx)

	var rows []Row
	for _, host := range hosts {
		agents, err := e.store.ListAgents(host.ID)
		if err != nil {
			return nil, err
		}
		liveSessions := e.liveSessions(ctx, host)

		providerExists := providerHosts[host.Provider][host.ID] ||
			(host.ProviderInstance != "" && providerHosts[host.Provider][host.ProviderInstance])

		for _, agent := range agents {
			sessionName := agent.SessionName("")
			present := sessionNamePresent(liveSessions, agent, sessionName)
			rows = append(rows, Row{
				Agent:     agent,
				Host:      host,
				Effective: effectiveState(agent, providerExists, present),
			})
		}
	}
	return rows, nil
}

// sessionNamePresent checks live sessions by suffix match since the
// enumerator does not know the configured session-name prefix; callers
// that need an exact match should pass prefix-qualified names through
// Row.Agent.SessionName(prefix) themselves.
func sessionNamePresent(live map[string]bool, agent *types.Agent, bareName string) bool {
	if live[bareName] {
		return true
	}
	for name := range live {
		if len(name) >= len(agent.Name) && name[len(name)-len(agent.Name):] == agent.Name {
			return true
		}
	}
	return false
}

// effectiveState implements the §4.8 discrepancy table.
func effectiveState(agent *types.Agent, providerExists, sessionPresent bool) types.EffectiveState {
	if agent.Destroyed {
		return types.EffectiveDestroyed
	}
	if !providerExists {
		return types.EffectiveOrphaned
	}
	switch agent.State {
	case types.AgentRunning:
		if sessionPresent {
			return types.EffectiveRunning
		}
		return types.EffectiveExited
	case types.AgentStopped:
		return types.EffectiveStopped
	default:
		return types.EffectiveUnknown
	}
}

func (e *Enumerator) liveProviderHosts(ctx context.Context) map[types.ProviderKind]map[string]bool {
	out := make(map[types.ProviderKind]map[string]bool)
	for kind, port := range e.ports {
		handles, err := port.ListHosts(ctx, provider.HostFilter{FleetTag: e.rootName})
		seen := map[string]bool{}
		if err == nil {
			for _, h := range handles {
				seen[h.ProviderHostID] = true
			}
		}
		out[kind] = seen
	}
	return out
}

func (e *Enumerator) liveSessions(ctx context.Context, host *types.Host) map[string]bool {
	port, ok := e.ports[host.Provider]
	if !ok {
		return nil
	}
	sess := session.New(port)
	names, err := sess.ListSessions(ctx, host.ID)
	if err != nil {
		return nil
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}
