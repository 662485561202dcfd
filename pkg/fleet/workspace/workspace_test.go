package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyTreeRespectsExclude(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dst")

	require.NoError(t, os.WriteFile(filepath.Join(src, "keep.txt"), []byte("a"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "node_modules", "x.js"), []byte("b"), 0o644))

	e := New(Endpoint{Path: src}, Endpoint{Path: dst})
	err := e.Materialize(context.Background(), ModeCopy, Options{Exclude: []string{"node_modules"}})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dst, "keep.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "node_modules", "x.js"))
	assert.True(t, os.IsNotExist(err))
}

func TestInPlaceIsNoop(t *testing.T) {
	e := New(Endpoint{Path: "/a"}, Endpoint{Path: "/a"})
	assert.NoError(t, e.Materialize(context.Background(), ModeInPlace, Options{}))
}

func TestMaterializeRejectsSyncOnlyMode(t *testing.T) {
	e := New(Endpoint{Path: "/a"}, Endpoint{Path: "/b"})
	err := e.Materialize(context.Background(), ModeRsync, Options{})
	assert.Error(t, err)
}
