package provision

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fm/pkg/fleet/provider"
	"github.com/cuemby/fm/pkg/fleet/types"
)

type recordingPort struct {
	files map[string]string
	calls []string
}

func newRecordingPort() *recordingPort {
	return &recordingPort{files: map[string]string{}}
}

func (r *recordingPort) Kind() types.ProviderKind { return types.ProviderLocal }
func (r *recordingPort) Build(ctx context.Context, spec provider.BuildSpec) (string, error) {
	return "", nil
}
func (r *recordingPort) CreateHost(ctx context.Context, hostID, rootName, image string, res types.Resources, env map[string]string, tags []string) (provider.HostHandle, error) {
	return provider.HostHandle{}, nil
}
func (r *recordingPort) StartHost(ctx context.Context, hostID string, snapshot string) error {
	return nil
}
func (r *recordingPort) StopHost(ctx context.Context, hostID string, doSnapshot bool) (string, error) {
	return "", nil
}
func (r *recordingPort) DestroyHost(ctx context.Context, hostID string, purgeSnapshots bool) error {
	return nil
}
func (r *recordingPort) Snapshot(ctx context.Context, hostID string) (string, error) { return "", nil }

func (r *recordingPort) Exec(ctx context.Context, hostID string, argv []string, cwd, user string, t provider.Timeouts) (provider.ExecResult, error) {
	r.calls = append(r.calls, strings.Join(argv, " "))
	if len(argv) == 2 && argv[0] == "cat" {
		content, ok := r.files[argv[1]]
		if !ok {
			return provider.ExecResult{ExitCode: 1}, nil
		}
		return provider.ExecResult{ExitCode: 0, Stdout: []byte(content)}, nil
	}
	if len(argv) == 3 && argv[0] == "sh" && argv[1] == "-c" {
		// Simulate append semantics for the heredoc scripts our pipeline emits.
		if strings.Contains(argv[2], "cat >>") {
			r.files[".fm_env"] += "appended\n"
		}
	}
	return provider.ExecResult{ExitCode: 0}, nil
}

func (r *recordingPort) Transfer(ctx context.Context, hostID string, dir provider.TransferDirection, local, remote string, opts provider.TransferOptions) error {
	return nil
}
func (r *recordingPort) ListHosts(ctx context.Context, filter provider.HostFilter) ([]provider.HostHandle, error) {
	return nil, nil
}

func TestRunOrdersDefaultThenUserThenEnv(t *testing.T) {
	p := newRecordingPort()
	pipe := New(p, "h1", "agent", provider.Timeouts{})

	err := pipe.Run(context.Background(), "claude-code", []Step{
		{Kind: StepRunUser, Command: "echo hi"},
	}, map[string]string{"FOO": "bar"})
	require.NoError(t, err)

	// Default step (mkdir ~/.claude) should appear before the user step.
	mkdirIdx, userIdx := -1, -1
	for i, c := range p.calls {
		if strings.Contains(c, "mkdir") {
			mkdirIdx = i
		}
		if strings.Contains(c, "echo hi") {
			userIdx = i
		}
	}
	assert.NotEqual(t, -1, mkdirIdx)
	assert.NotEqual(t, -1, userIdx)
	assert.Less(t, mkdirIdx, userIdx)

	// The env write for FOO should appear after the user step.
	envIdx := -1
	for i, c := range p.calls {
		if strings.Contains(c, "FOO=") {
			envIdx = i
		}
	}
	assert.NotEqual(t, -1, envIdx)
	assert.Less(t, userIdx, envIdx)
}

func TestAppendSkipsWhenTextAlreadyPresent(t *testing.T) {
	p := newRecordingPort()
	p.files["/etc/motd"] = "hello already here"
	pipe := New(p, "h1", "agent", provider.Timeouts{})

	err := pipe.Run(context.Background(), "shell", []Step{
		{Kind: StepAppendToFile, RemotePath: "/etc/motd", Text: "hello already here"},
	}, nil)
	require.NoError(t, err)

	for _, c := range p.calls {
		assert.NotContains(t, c, "cat >>")
	}
}

func TestUnknownAgentTypeRunsOnlyUserSteps(t *testing.T) {
	p := newRecordingPort()
	pipe := New(p, "h1", "agent", provider.Timeouts{})
	err := pipe.Run(context.Background(), "nonexistent", []Step{{Kind: StepRunUser, Command: "true"}}, nil)
	require.NoError(t, err)
}
