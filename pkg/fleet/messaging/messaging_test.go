package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fm/pkg/fleet/provider"
	"github.com/cuemby/fm/pkg/fleet/session"
	"github.com/cuemby/fm/pkg/fleet/types"
)

type fakePort struct{ fail map[string]bool }

func (f *fakePort) Kind() types.ProviderKind { return types.ProviderLocal }
func (f *fakePort) Build(ctx context.Context, spec provider.BuildSpec) (string, error) {
	return "", nil
}
func (f *fakePort) CreateHost(ctx context.Context, hostID, rootName, image string, res types.Resources, env map[string]string, tags []string) (provider.HostHandle, error) {
	return provider.HostHandle{}, nil
}
func (f *fakePort) StartHost(ctx context.Context, hostID string, snapshot string) error { return nil }
func (f *fakePort) StopHost(ctx context.Context, hostID string, doSnapshot bool) (string, error) {
	return "", nil
}
func (f *fakePort) DestroyHost(ctx context.Context, hostID string, purgeSnapshots bool) error {
	return nil
}
func (f *fakePort) Snapshot(ctx context.Context, hostID string) (string, error) { return "", nil }
func (f *fakePort) Exec(ctx context.Context, hostID string, argv []string, cwd, user string, t provider.Timeouts) (provider.ExecResult, error) {
	if f.fail[hostID] {
		return provider.ExecResult{ExitCode: 1}, nil
	}
	return provider.ExecResult{ExitCode: 0}, nil
}
func (f *fakePort) Transfer(ctx context.Context, hostID string, dir provider.TransferDirection, local, remote string, opts provider.TransferOptions) error {
	return nil
}
func (f *fakePort) ListHosts(ctx context.Context, filter provider.HostFilter) ([]provider.HostHandle, error) {
	return nil, nil
}

func TestSendContinuesPastFailureByDefault(t *testing.T) {
	port := &fakePort{fail: map[string]bool{"h1": true}}
	sess := session.New(port)
	targets := []Target{
		{Agent: &types.Agent{ID: "a1", Name: "alpha", HostID: "h1"}, Sess: sess},
		{Agent: &types.Agent{ID: "a2", Name: "beta", HostID: "h2"}, Sess: sess},
	}
	results, err := Send(context.Background(), targets, "fm-", "hello", true, OnErrorContinue)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}

func TestSendAbortsOnFirstFailure(t *testing.T) {
	port := &fakePort{fail: map[string]bool{"h1": true}}
	sess := session.New(port)
	targets := []Target{
		{Agent: &types.Agent{ID: "a1", Name: "alpha", HostID: "h1"}, Sess: sess},
		{Agent: &types.Agent{ID: "a2", Name: "beta", HostID: "h2"}, Sess: sess},
	}
	_, err := Send(context.Background(), targets, "fm-", "hello", true, OnErrorAbort)
	assert.Error(t, err)
}
