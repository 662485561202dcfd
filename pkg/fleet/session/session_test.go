package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fm/pkg/fleet/provider"
	"github.com/cuemby/fm/pkg/fleet/types"
)

type fakePort struct {
	sessions map[string]bool
	calls    [][]string
}

func newFakePort() *fakePort { return &fakePort{sessions: map[string]bool{}} }

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
	f.calls = append(f.calls, argv)
	switch argv[1] {
	case "new-session":
		name := argv[4]
		f.sessions[name] = true
		return provider.ExecResult{ExitCode: 0}, nil
	case "has-session":
		name := argv[3]
		if f.sessions[name] {
			return provider.ExecResult{ExitCode: 0}, nil
		}
		return provider.ExecResult{ExitCode: 1}, nil
	case "send-keys":
		name := argv[3]
		if !f.sessions[name] {
			return provider.ExecResult{ExitCode: 1}, nil
		}
		return provider.ExecResult{ExitCode: 0}, nil
	case "kill-session":
		name := argv[3]
		delete(f.sessions, name)
		return provider.ExecResult{ExitCode: 0}, nil
	case "list-sessions":
		var names []string
		for n := range f.sessions {
			names = append(names, n)
		}
		out := ""
		for _, n := range names {
			out += n + "\n"
		}
		return provider.ExecResult{ExitCode: 0, Stdout: []byte(out)}, nil
	}
	return provider.ExecResult{}, nil
}

func (f *fakePort) Transfer(ctx context.Context, hostID string, dir provider.TransferDirection, local, remote string, opts provider.TransferOptions) error {
	return nil
}
func (f *fakePort) ListHosts(ctx context.Context, filter provider.HostFilter) ([]provider.HostHandle, error) {
	return nil, nil
}

func TestStartIsIdempotent(t *testing.T) {
	p := newFakePort()
	a := New(p)
	ctx := context.Background()

	require.NoError(t, a.Start(ctx, "h1", "sess-a", "bash", "/work", nil))
	require.NoError(t, a.Start(ctx, "h1", "sess-a", "bash", "/work", nil))

	newSessionCalls := 0
	for _, c := range p.calls {
		if c[1] == "new-session" {
			newSessionCalls++
		}
	}
	assert.Equal(t, 1, newSessionCalls)
}

func TestSendKeysToMissingSessionFails(t *testing.T) {
	a := New(newFakePort())
	err := a.SendKeys(context.Background(), "h1", "ghost", "hello", false)
	assert.Error(t, err)
}

func TestKillThenListIsEmpty(t *testing.T) {
	p := newFakePort()
	a := New(p)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx, "h1", "sess-a", "bash", "", nil))
	require.NoError(t, a.Kill(ctx, "h1", "sess-a"))

	sessions, err := a.ListSessions(ctx, "h1")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
