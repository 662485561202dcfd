// Package gc implements the Garbage Collector (C11): per-category sweeps
// that enumerate resources tagged for this fleet and remove whichever ones
// no live descriptor references. The tag-matching sweep (enumerate tagged
// resources, diff against live descriptors, delete unreferenced) is
// grounded on the same pkg/reconciler/reconciler.go reconciliation idiom
// used for the fleet enumerator, specialized to deletion rather than
// state-repair, and on the teacher's pkg/scheduler/scheduler.go
// scheduleGlobalService "remove containers for nodes no longer present"
// sweep.
package gc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/fm/pkg/fleet/events"
	"github.com/cuemby/fm/pkg/fleet/provider"
	"github.com/cuemby/fm/pkg/fleet/storage"
	"github.com/cuemby/fm/pkg/fleet/types"
)

// Category is one of the six resource classes gc sweeps independently.
type Category string

const (
	CategoryWorkDirs   Category = "work_dirs"
	CategoryLogs       Category = "logs"
	CategoryBuildCache Category = "build_cache"
	CategoryMachines   Category = "machines"
	CategorySnapshots  Category = "snapshots"
	CategoryVolumes    Category = "volumes"
)

// AllCategories is the default sweep set when Options.Categories is empty.
var AllCategories = []Category{
	CategoryWorkDirs, CategoryLogs, CategoryBuildCache,
	CategoryMachines, CategorySnapshots, CategoryVolumes,
}

// OnError selects how Run handles a per-item deletion failure.
type OnError string

const (
	OnErrorAbort    OnError = "abort"
	OnErrorContinue OnError = "continue"
)

// Options configures one gc run.
type Options struct {
	Categories []Category // empty means AllCategories
	Include    []string   // glob patterns matched against Item.Ref; empty matches everything
	Exclude    []string   // glob patterns matched against Item.Ref
	Providers  []types.ProviderKind // empty means every configured provider
	DryRun     bool
	OnError    OnError
}

// Item is one resource gc found unreferenced, whether or not it was
// actually removed (DryRun leaves Removed false).
type Item struct {
	Category Category
	HostID   string
	Ref      string
	Reason   string
	Removed  bool
}

// Result is the outcome of one Run.
type Result struct {
	Items  []Item
	Errors []error
}

// Collector sweeps a fleet's state store and provider backends for
// resources no live descriptor references.
type Collector struct {
	store    *storage.Store
	ports    map[types.ProviderKind]provider.Port
	broker   *events.Broker
	logger   zerolog.Logger
	rootName string
}

func New(store *storage.Store, ports map[types.ProviderKind]provider.Port, broker *events.Broker, logger zerolog.Logger, rootName string) *Collector {
	return &Collector{store: store, ports: ports, broker: broker, logger: logger, rootName: rootName}
}

// Run sweeps every requested category, deleting unreferenced resources
// unless opts.DryRun is set.
func (c *Collector) Run(ctx context.Context, opts Options) (*Result, error) {
	cats := opts.Categories
	if len(cats) == 0 {
		cats = AllCategories
	}
	res := &Result{}
	for _, cat := range cats {
		items, err := c.sweepCategory(ctx, cat, opts)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("sweep %s: %w", cat, err))
			if opts.OnError == OnErrorAbort {
				return res, res.Errors[len(res.Errors)-1]
			}
			continue
		}
		res.Items = append(res.Items, items...)
	}
	if c.broker != nil {
		c.broker.Publish(&events.Event{
			Type:     events.GCSwept,
			Message:  fmt.Sprintf("swept %d item(s)", len(res.Items)),
			Metadata: map[string]string{"dry_run": fmt.Sprintf("%t", opts.DryRun)},
		})
	}
	return res, nil
}

func (c *Collector) sweepCategory(ctx context.Context, cat Category, opts Options) ([]Item, error) {
	switch cat {
	case CategoryWorkDirs:
		return c.sweepAgentSubdir(ctx, "work_dir", cat, opts)
	case CategoryLogs:
		return c.sweepAgentSubdir(ctx, "logs", cat, opts)
	case CategoryBuildCache:
		return c.sweepBuildCache(ctx, opts)
	case CategoryMachines:
		return c.sweepMachines(ctx, opts)
	case CategorySnapshots:
		return c.sweepSnapshots(ctx, opts)
	case CategoryVolumes:
		return c.sweepVolumes(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown category %q", cat)
	}
}

// sweepAgentSubdir handles work_dirs and logs identically: both are
// per-agent on-disk subtrees that the orchestrator's destroy path already
// removes as part of DeleteAgent, so a survivor here means an agent
// directory exists without a readable descriptor (a crash mid-create or
// mid-destroy left it behind).
func (c *Collector) sweepAgentSubdir(ctx context.Context, subdir string, cat Category, opts Options) ([]Item, error) {
	hostsDir := filepath.Join(c.store.Root(), "hosts")
	hostEntries, err := os.ReadDir(hostsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var items []Item
	for _, he := range hostEntries {
		if !he.IsDir() {
			continue
		}
		hostID := he.Name()
		agentsDir := filepath.Join(hostsDir, hostID, "agents")
		agentEntries, err := os.ReadDir(agentsDir)
		if err != nil {
			continue // no agents dir yet on this host
		}
		for _, ae := range agentEntries {
			if !ae.IsDir() {
				continue
			}
			agentID := ae.Name()
			if _, err := c.store.GetAgent(hostID, agentID); err == nil {
				continue // live descriptor; not garbage
			}
			ref := filepath.Join(hostID, agentID, subdir)
			if !matches(ref, opts.Include, opts.Exclude) {
				continue
			}
			item := Item{Category: cat, HostID: hostID, Ref: ref, Reason: "agent descriptor missing"}
			if !opts.DryRun {
				path := filepath.Join(agentsDir, agentID)
				if err := os.RemoveAll(path); err != nil {
					return items, err
				}
				item.Removed = true
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// sweepBuildCache removes cached build outputs under <root>/cache whose
// name doesn't match any image currently referenced by a live host.
func (c *Collector) sweepBuildCache(ctx context.Context, opts Options) ([]Item, error) {
	cacheDir := filepath.Join(c.store.Root(), "cache")
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	hosts, err := c.store.ListHosts()
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		live[cacheKey(h.Image)] = true
	}

	var items []Item
	for _, e := range entries {
		if live[e.Name()] {
			continue
		}
		ref := filepath.Join("cache", e.Name())
		if !matches(ref, opts.Include, opts.Exclude) {
			continue
		}
		item := Item{Category: CategoryBuildCache, Ref: ref, Reason: "no host references this image"}
		if !opts.DryRun {
			if err := os.RemoveAll(filepath.Join(cacheDir, e.Name())); err != nil {
				return items, err
			}
			item.Removed = true
		}
		items = append(items, item)
	}
	return items, nil
}

func cacheKey(imageRef string) string {
	return strings.ReplaceAll(strings.ReplaceAll(imageRef, "/", "_"), ":", "_")
}

// sweepMachines diffs each provider's live, fleet-tagged resources against
// the local host descriptors, destroying provider-side hosts that no
// descriptor claims. Providers whose list_hosts can't represent an orphan
// (local's single synthetic entry, secure-shell's static inventory) are
// skipped since they never leave this kind of garbage behind.
func (c *Collector) sweepMachines(ctx context.Context, opts Options) ([]Item, error) {
	hosts, err := c.store.ListHosts()
	if err != nil {
		return nil, err
	}
	liveByID := make(map[string]*types.Host, len(hosts))
	for _, h := range hosts {
		liveByID[h.ID] = h
	}

	var items []Item
	for kind, port := range c.ports {
		if kind == types.ProviderLocal || kind == types.ProviderSecureShell {
			continue
		}
		if !providerSelected(kind, opts.Providers) {
			continue
		}
		handles, err := port.ListHosts(ctx, provider.HostFilter{FleetTag: c.rootName})
		if err != nil {
			c.logger.Warn().Err(err).Str("provider", string(kind)).Msg("gc: list_hosts failed")
			continue
		}
		for _, h := range handles {
			hostID := providerHostToLocalID(kind, h.ProviderHostID)
			if _, ok := liveByID[hostID]; ok {
				continue
			}
			if !matches(hostID, opts.Include, opts.Exclude) {
				continue
			}
			item := Item{Category: CategoryMachines, HostID: hostID, Ref: h.ProviderHostID, Reason: "no local host descriptor"}
			if !opts.DryRun {
				if err := port.DestroyHost(ctx, hostID, true); err != nil {
					return items, fmt.Errorf("destroy orphan host %s: %w", hostID, err)
				}
				item.Removed = true
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func providerHostToLocalID(kind types.ProviderKind, providerHostID string) string {
	if kind == types.ProviderCloudSandbox {
		return strings.TrimPrefix(providerHostID, "fm-")
	}
	return providerHostID
}

func providerSelected(kind types.ProviderKind, selected []types.ProviderKind) bool {
	if len(selected) == 0 {
		return true
	}
	for _, k := range selected {
		if k == kind {
			return true
		}
	}
	return false
}

// sweepSnapshots trims every host's retained snapshots down to its active
// one, since providers that support StopHost(doSnapshot) accumulate one
// entry per stop and the state store never prunes them on its own.
func (c *Collector) sweepSnapshots(ctx context.Context, opts Options) ([]Item, error) {
	hosts, err := c.store.ListHosts()
	if err != nil {
		return nil, err
	}
	var items []Item
	for _, h := range hosts {
		if len(h.Snapshots) == 0 {
			continue
		}
		var kept []types.Snapshot
		var changed bool
		for _, snap := range h.Snapshots {
			if snap.Ref == h.ActiveSnapshot {
				kept = append(kept, snap)
				continue
			}
			ref := fmt.Sprintf("%s/%s", h.ID, snap.Ref)
			if !matches(ref, opts.Include, opts.Exclude) {
				kept = append(kept, snap)
				continue
			}
			item := Item{Category: CategorySnapshots, HostID: h.ID, Ref: snap.Ref, Reason: "superseded by active snapshot"}
			if !opts.DryRun {
				item.Removed = true
				changed = true
			} else {
				kept = append(kept, snap)
			}
			items = append(items, item)
		}
		if changed {
			h.Snapshots = kept
			if err := c.store.PutHost(h); err != nil {
				return items, err
			}
		}
	}
	return items, nil
}

// sweepVolumes sweeps <root>/volumes/<id> directories that no agent's
// descriptor (via its labels) claims, the same directory-per-resource
// shape as the teacher's pkg/volume/local.go LocalDriver, generalized from
// a container-volume driver to a fleet-root-scoped garbage category.
func (c *Collector) sweepVolumes(ctx context.Context, opts Options) ([]Item, error) {
	volumesDir := filepath.Join(c.store.Root(), "volumes")
	entries, err := os.ReadDir(volumesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	agents, err := c.store.ListAllAgents()
	if err != nil {
		return nil, err
	}
	claimed := make(map[string]bool, len(agents))
	for _, a := range agents {
		if v, ok := a.Labels["volume"]; ok {
			claimed[v] = true
		}
	}

	var items []Item
	for _, e := range entries {
		if claimed[e.Name()] {
			continue
		}
		ref := filepath.Join("volumes", e.Name())
		if !matches(ref, opts.Include, opts.Exclude) {
			continue
		}
		item := Item{Category: CategoryVolumes, Ref: ref, Reason: "no agent claims this volume"}
		if !opts.DryRun {
			if err := os.RemoveAll(filepath.Join(volumesDir, e.Name())); err != nil {
				return items, err
			}
			item.Removed = true
		}
		items = append(items, item)
	}
	return items, nil
}

// matches applies gc's include/exclude glob filters: empty include matches
// everything, any exclude match rejects regardless of include.
func matches(ref string, include, exclude []string) bool {
	for _, pat := range exclude {
		if ok, _ := filepath.Match(pat, ref); ok {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, pat := range include {
		if ok, _ := filepath.Match(pat, ref); ok {
			return true
		}
	}
	return false
}
