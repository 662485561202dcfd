package gc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fm/pkg/fleet/provider"
	"github.com/cuemby/fm/pkg/fleet/storage"
	"github.com/cuemby/fm/pkg/fleet/types"
)

func newTestCollector(t *testing.T) (*Collector, *storage.Store) {
	t.Helper()
	st, err := storage.New(t.TempDir())
	require.NoError(t, err)
	ports := map[types.ProviderKind]provider.Port{
		types.ProviderLocal: provider.NewLocalProvider(),
	}
	return New(st, ports, nil, zerolog.Nop(), "testfleet"), st
}

func TestSweepWorkDirsRemovesOrphanAgentDir(t *testing.T) {
	c, st := newTestCollector(t)
	require.NoError(t, st.CreateHost(&types.Host{ID: "h1"}))

	orphanDir := filepath.Join(st.Root(), "hosts", "h1", "agents", "ghost", "work_dir")
	require.NoError(t, os.MkdirAll(orphanDir, 0o755))

	res, err := c.Run(context.Background(), Options{Categories: []Category{CategoryWorkDirs}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.True(t, res.Items[0].Removed)

	_, err = os.Stat(filepath.Join(st.Root(), "hosts", "h1", "agents", "ghost"))
	assert.True(t, os.IsNotExist(err))
}

func TestSweepWorkDirsDryRunLeavesDiskUntouched(t *testing.T) {
	c, st := newTestCollector(t)
	require.NoError(t, st.CreateHost(&types.Host{ID: "h1"}))
	orphanDir := filepath.Join(st.Root(), "hosts", "h1", "agents", "ghost", "work_dir")
	require.NoError(t, os.MkdirAll(orphanDir, 0o755))

	res, err := c.Run(context.Background(), Options{Categories: []Category{CategoryWorkDirs}, DryRun: true})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.False(t, res.Items[0].Removed)

	_, err = os.Stat(orphanDir)
	assert.NoError(t, err)
}

func TestSweepWorkDirsSkipsLiveAgent(t *testing.T) {
	c, st := newTestCollector(t)
	require.NoError(t, st.CreateHost(&types.Host{ID: "h1"}))
	require.NoError(t, st.CreateAgent(&types.Agent{ID: "a1", HostID: "h1", Name: "alpha"}))

	res, err := c.Run(context.Background(), Options{Categories: []Category{CategoryWorkDirs}})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestSweepSnapshotsKeepsActiveOnly(t *testing.T) {
	c, st := newTestCollector(t)
	h := &types.Host{
		ID: "h1", ActiveSnapshot: "snap-2",
		Snapshots: []types.Snapshot{{Ref: "snap-2"}, {Ref: "snap-1"}},
	}
	require.NoError(t, st.CreateHost(h))

	res, err := c.Run(context.Background(), Options{Categories: []Category{CategorySnapshots}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "snap-1", res.Items[0].Ref)

	got, err := st.GetHost("h1")
	require.NoError(t, err)
	require.Len(t, got.Snapshots, 1)
	assert.Equal(t, "snap-2", got.Snapshots[0].Ref)
}

func TestSweepVolumesRespectsExcludeFilter(t *testing.T) {
	c, st := newTestCollector(t)
	require.NoError(t, os.MkdirAll(filepath.Join(st.Root(), "volumes", "orphan1"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(st.Root(), "volumes", "orphan2"), 0o755))

	res, err := c.Run(context.Background(), Options{
		Categories: []Category{CategoryVolumes},
		Exclude:    []string{"volumes/orphan1"},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "volumes/orphan2", res.Items[0].Ref)
}
