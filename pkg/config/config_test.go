package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAppliesBuiltinDefaults(t *testing.T) {
	l := NewLoader()
	l.BindEnv()
	cfg, prov, err := l.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "fm-", cfg.SessionPrefix)
	assert.Equal(t, ScopeDefault, prov["log_level"])
}

func TestProjectScopeOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"debug\"\n"), 0o644))

	l := NewLoader()
	require.NoError(t, l.LoadFile(ScopeProject, path))
	l.BindEnv()
	cfg, prov, err := l.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ScopeProject, prov["log_level"])
}

func TestEnvOverridesCommandParam(t *testing.T) {
	t.Setenv("FM_COMMANDS_CREATE_PROVIDER", "container")

	l := NewLoader()
	l.BindEnv()
	cfg, prov, err := l.Resolve()
	require.NoError(t, err)
	require.Contains(t, cfg.Commands, "create")
	assert.Equal(t, "container", cfg.Commands["create"].Provider)
	assert.Equal(t, ScopeEnv, prov["commands.create.provider"])
}

func TestMissingConfigFileIsNotAnError(t *testing.T) {
	l := NewLoader()
	err := l.LoadFile(ScopeLocal, filepath.Join(t.TempDir(), "missing.toml"))
	assert.NoError(t, err)
}
