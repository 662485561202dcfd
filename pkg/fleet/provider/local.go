package provider

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/cuemby/fm/pkg/fleet/types"
)

// LocalProvider runs agents directly on the machine FM itself runs on. The
// local host always exists; create/start/stop/destroy are bookkeeping
// no-ops beyond what the orchestrator records. Command execution follows
// the teacher's test/framework/process.go subprocess idiom: a
// context-cancellable exec.Cmd with captured stdout/stderr.
type LocalProvider struct{}

// NewLocalProvider constructs the local backend. It never fails: there is
// nothing to dial or authenticate against.
func NewLocalProvider() *LocalProvider { return &LocalProvider{} }

func (p *LocalProvider) Kind() types.ProviderKind { return types.ProviderLocal }

func (p *LocalProvider) Build(ctx context.Context, spec BuildSpec) (string, error) {
	// The local provider has no image concept; the "image" is just the
	// base image string passed straight through so callers have a
	// consistent reference to record.
	if spec.BaseImage == "" {
		return "", fmt.Errorf("local build: base_image required")
	}
	return spec.BaseImage, nil
}

func (p *LocalProvider) CreateHost(ctx context.Context, hostID, rootName, image string, res types.Resources, env map[string]string, tags []string) (HostHandle, error) {
	return HostHandle{ProviderHostID: hostID}, nil
}

func (p *LocalProvider) StartHost(ctx context.Context, hostID string, snapshot string) error {
	return nil
}

func (p *LocalProvider) StopHost(ctx context.Context, hostID string, doSnapshot bool) (string, error) {
	if doSnapshot {
		return "", &ErrUnsupported{Op: "snapshot", Kind: string(types.ProviderLocal)}
	}
	return "", nil
}

func (p *LocalProvider) DestroyHost(ctx context.Context, hostID string, purgeSnapshots bool) error {
	return nil
}

func (p *LocalProvider) Snapshot(ctx context.Context, hostID string) (string, error) {
	return "", &ErrUnsupported{Op: "snapshot", Kind: string(types.ProviderLocal)}
}

func (p *LocalProvider) Exec(ctx context.Context, hostID string, argv []string, cwd, user string, t Timeouts) (ExecResult, error) {
	if len(argv) == 0 {
		return ExecResult{}, fmt.Errorf("local exec: empty argv")
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if t.Hard > 0 {
		execCtx, cancel = context.WithTimeout(ctx, t.Hard)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if exitErr, ok := err.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("local exec: %w", err)
	}
	return res, nil
}

func (p *LocalProvider) Transfer(ctx context.Context, hostID string, dir TransferDirection, local, remote string, opts TransferOptions) error {
	// On the local provider, "host" and "local" are the same filesystem;
	// transfer is a no-op. Higher-level copy/clone/worktree/rsync modes in
	// pkg/fleet/workspace operate on paths directly rather than through
	// this primitive when source and target share a host.
	return nil
}

func (p *LocalProvider) ListHosts(ctx context.Context, filter HostFilter) ([]HostHandle, error) {
	return []HostHandle{{ProviderHostID: "local"}}, nil
}
