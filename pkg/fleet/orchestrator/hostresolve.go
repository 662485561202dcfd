package orchestrator

import (
	"context"
	"fmt"

	"github.com/cuemby/fm/pkg/fleet/fleeterr"
	"github.com/cuemby/fm/pkg/fleet/ids"
	"github.com/cuemby/fm/pkg/fleet/types"
)

// HostTarget is the caller's request for which host an agent should run
// on: at most one of TargetHost or NewHostProvider may be set.
type HostTarget struct {
	TargetHost      string // existing host name or id
	NewHostProvider types.ProviderKind
	Image           string
	Resources       types.Resources
	Tags            []string
}

// ResolveHost implements §4.7: resolve {target-host?, new-host-provider?}
// plus the local-host fallback to a concrete host descriptor, creating a
// new host via its provider when requested.
func (o *Orchestrator) ResolveHost(ctx context.Context, t HostTarget) (*types.Host, error) {
	if t.TargetHost != "" && t.NewHostProvider != "" {
		return nil, fleeterr.InvalidRequestf("orchestrator.resolve_host",
			fmt.Errorf("target-host and new-host-provider are mutually exclusive"))
	}

	if t.TargetHost != "" {
		if h, err := o.store.GetHost(t.TargetHost); err == nil {
			return h, nil
		}
		h, err := o.store.GetHostByName(t.TargetHost)
		if err != nil {
			return nil, fleeterr.NotFoundHost("orchestrator.resolve_host", t.TargetHost)
		}
		return h, nil
	}

	if t.NewHostProvider != "" {
		return o.createHost(ctx, t)
	}

	return o.localHost()
}

// localHost returns the always-present built-in local host, creating its
// descriptor on first use.
func (o *Orchestrator) localHost() (*types.Host, error) {
	const localHostID = "local"
	h, err := o.store.GetHost(localHostID)
	if err == nil {
		return h, nil
	}
	h = &types.Host{
		ID:       localHostID,
		Name:     "local",
		Provider: types.ProviderLocal,
		State:    types.HostRunning,
	}
	if err := o.store.CreateHost(h); err != nil {
		return nil, err
	}
	return h, nil
}

func (o *Orchestrator) createHost(ctx context.Context, t HostTarget) (*types.Host, error) {
	port, ok := o.ports[t.NewHostProvider]
	if !ok {
		return nil, fleeterr.InvalidSpecf("orchestrator.create_host",
			fmt.Errorf("no provider configured for kind %q", t.NewHostProvider))
	}

	id, err := ids.Generate()
	if err != nil {
		return nil, fleeterr.Internalf("orchestrator.create_host", err)
	}

	h := &types.Host{
		ID:       id,
		Name:     id,
		Provider: t.NewHostProvider,
		Image:    t.Image,
		Resources: t.Resources,
		Tags:     t.Tags,
		State:    types.HostBuilding,
	}
	if err := o.store.CreateHost(h); err != nil {
		return nil, err
	}

	handle, err := port.CreateHost(ctx, h.ID, o.rootName, t.Image, t.Resources, nil, t.Tags)
	if err != nil {
		h.State = types.HostFailed
		o.store.PutHost(h)
		return nil, fleeterr.Unavailablef("orchestrator.create_host", err)
	}
	h.ProviderInstance = handle.ProviderHostID
	h.State = types.HostStarting
	if err := o.store.PutHost(h); err != nil {
		return nil, err
	}

	if err := port.StartHost(ctx, h.ID, ""); err != nil {
		h.State = types.HostFailed
		o.store.PutHost(h)
		return nil, fleeterr.Unavailablef("orchestrator.create_host", err)
	}
	h.State = types.HostRunning
	if err := o.store.PutHost(h); err != nil {
		return nil, err
	}
	return h, nil
}
