package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalExecCapturesOutput(t *testing.T) {
	p := NewLocalProvider()
	res, err := p.Exec(context.Background(), "local", []string{"sh", "-c", "echo hi"}, "", "", Timeouts{Hard: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, string(res.Stdout), "hi")
}

func TestLocalExecNonZeroExit(t *testing.T) {
	p := NewLocalProvider()
	res, err := p.Exec(context.Background(), "local", []string{"sh", "-c", "exit 3"}, "", "", Timeouts{Hard: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestLocalSnapshotUnsupported(t *testing.T) {
	p := NewLocalProvider()
	_, err := p.Snapshot(context.Background(), "local")
	var unsupported *ErrUnsupported
	require.ErrorAs(t, err, &unsupported)
}

func TestLocalListHosts(t *testing.T) {
	p := NewLocalProvider()
	hosts, err := p.ListHosts(context.Background(), HostFilter{})
	require.NoError(t, err)
	assert.Len(t, hosts, 1)
}
