package provider

import (
	"bytes"
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/google/uuid"

	"github.com/cuemby/fm/pkg/fleet/types"
)

// DefaultSocketPath is the default containerd control socket.
const DefaultSocketPath = "/run/containerd/containerd.sock"

const (
	labelFleet = "fm.fleet"
	labelHost  = "fm.host_id"
)

// ContainerProvider runs hosts as containerd containers, one per host. The
// fleet root name is used as the containerd namespace so multiple FM fleets
// on the same machine never see each other's containers.
type ContainerProvider struct {
	client    *containerd.Client
	namespace string
}

// NewContainerProvider dials containerd at socketPath, namespacing every
// operation under rootName so container resources for distinct fleet roots
// never collide.
func NewContainerProvider(socketPath, rootName string) (*ContainerProvider, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}
	return &ContainerProvider{client: client, namespace: rootName}, nil
}

func (p *ContainerProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func (p *ContainerProvider) Kind() types.ProviderKind { return types.ProviderContainer }

func (p *ContainerProvider) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, p.namespace)
}

func (p *ContainerProvider) Build(ctx context.Context, spec BuildSpec) (string, error) {
	ctx = p.ctx(ctx)
	if spec.BaseImage == "" {
		return "", fmt.Errorf("container build: base_image required")
	}
	img, err := p.client.Pull(ctx, spec.BaseImage, containerd.WithPullUnpack)
	if err != nil {
		return "", fmt.Errorf("pull image %s: %w", spec.BaseImage, err)
	}
	return img.Name(), nil
}

func (p *ContainerProvider) CreateHost(ctx context.Context, hostID, rootName, image string, res types.Resources, env map[string]string, tags []string) (HostHandle, error) {
	ctx = p.ctx(ctx)

	img, err := p.client.GetImage(ctx, image)
	if err != nil {
		img, err = p.client.Pull(ctx, image, containerd.WithPullUnpack)
		if err != nil {
			return HostHandle{}, fmt.Errorf("resolve image %s: %w", image, err)
		}
	}

	var envSlice []string
	for k, v := range env {
		envSlice = append(envSlice, k+"="+v)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(img),
		oci.WithEnv(envSlice),
	}
	if res.CPUCores > 0 {
		shares := uint64(res.CPUCores * 1024)
		quota := int64(res.CPUCores * 100000)
		opts = append(opts, oci.WithCPUShares(shares), oci.WithCPUCFS(quota, 100000))
	}
	if res.MemoryBytes > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(res.MemoryBytes)))
	}

	labels := map[string]string{labelFleet: rootName, labelHost: hostID}

	ctr, err := p.client.NewContainer(
		ctx,
		hostID,
		containerd.WithImage(img),
		containerd.WithNewSnapshot(hostID+"-snapshot", img),
		containerd.WithNewSpec(opts...),
		containerd.WithContainerLabels(labels),
	)
	if err != nil {
		return HostHandle{}, fmt.Errorf("create container: %w", err)
	}
	return HostHandle{ProviderHostID: ctr.ID()}, nil
}

func (p *ContainerProvider) StartHost(ctx context.Context, hostID string, snapshot string) error {
	ctx = p.ctx(ctx)
	ctr, err := p.client.LoadContainer(ctx, hostID)
	if err != nil {
		return fmt.Errorf("load container %s: %w", hostID, err)
	}
	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return task.Start(ctx)
}

func (p *ContainerProvider) StopHost(ctx context.Context, hostID string, doSnapshot bool) (string, error) {
	ctx = p.ctx(ctx)
	if doSnapshot {
		return "", &ErrUnsupported{Op: "snapshot", Kind: string(types.ProviderContainer)}
	}

	ctr, err := p.client.LoadContainer(ctx, hostID)
	if err != nil {
		return "", fmt.Errorf("load container %s: %w", hostID, err)
	}
	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return "", nil // no task: already stopped
	}

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return "", fmt.Errorf("kill task: %w", err)
	}
	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return "", fmt.Errorf("wait task: %w", err)
	}
	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return "", fmt.Errorf("force kill task: %w", err)
		}
	}
	if _, err := task.Delete(ctx); err != nil {
		return "", fmt.Errorf("delete task: %w", err)
	}
	return "", nil
}

func (p *ContainerProvider) DestroyHost(ctx context.Context, hostID string, purgeSnapshots bool) error {
	ctx = p.ctx(ctx)
	ctr, err := p.client.LoadContainer(ctx, hostID)
	if err != nil {
		return nil // already gone
	}
	p.StopHost(ctx, hostID, false)
	return ctr.Delete(ctx, containerd.WithSnapshotCleanup)
}

func (p *ContainerProvider) Snapshot(ctx context.Context, hostID string) (string, error) {
	return "", &ErrUnsupported{Op: "snapshot", Kind: string(types.ProviderContainer)}
}

// Exec runs argv inside the container's running task via a new exec
// process, following the teacher's task-lifecycle idiom (StartContainer /
// StopContainer in pkg/runtime/containerd.go) but for a one-shot process
// rather than the container's main task.
func (p *ContainerProvider) Exec(ctx context.Context, hostID string, argv []string, cwd, user string, t Timeouts) (ExecResult, error) {
	ctx = p.ctx(ctx)
	if len(argv) == 0 {
		return ExecResult{}, fmt.Errorf("container exec: empty argv")
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if t.Hard > 0 {
		execCtx, cancel = context.WithTimeout(ctx, t.Hard)
		defer cancel()
	}

	ctr, err := p.client.LoadContainer(execCtx, hostID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("load container %s: %w", hostID, err)
	}
	task, err := ctr.Task(execCtx, nil)
	if err != nil {
		return ExecResult{}, fmt.Errorf("container %s has no running task: %w", hostID, err)
	}

	spec, err := ctr.Spec(execCtx)
	if err != nil {
		return ExecResult{}, fmt.Errorf("load spec: %w", err)
	}
	pspec := spec.Process
	pspec.Args = argv
	if cwd != "" {
		pspec.Cwd = cwd
	}
	if user != "" {
		pspec.User = specs.User{Username: user}
	}

	var stdout, stderr bytes.Buffer
	execID := "exec-" + uuid.New().String()[:8]
	process, err := task.Exec(execCtx, execID, pspec, cio.NewCreator(cio.WithStreams(nil, &stdout, &stderr)))
	if err != nil {
		return ExecResult{}, fmt.Errorf("create exec process: %w", err)
	}
	defer process.Delete(execCtx)

	statusC, err := process.Wait(execCtx)
	if err != nil {
		return ExecResult{}, fmt.Errorf("wait exec process: %w", err)
	}
	if err := process.Start(execCtx); err != nil {
		return ExecResult{}, fmt.Errorf("start exec process: %w", err)
	}

	status := <-statusC
	return ExecResult{
		ExitCode: int(status.ExitCode()),
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}, nil
}

// Transfer is not implemented for containers: containerd has no native
// copy primitive comparable to `docker cp`, and no tar-over-Exec path
// exists here, so every call returns ErrUnsupported.
func (p *ContainerProvider) Transfer(ctx context.Context, hostID string, dir TransferDirection, local, remote string, opts TransferOptions) error {
	return &ErrUnsupported{Op: "transfer (direct tar-over-exec not wired)", Kind: string(types.ProviderContainer)}
}

func (p *ContainerProvider) ListHosts(ctx context.Context, filter HostFilter) ([]HostHandle, error) {
	ctx = p.ctx(ctx)
	filterStr := fmt.Sprintf(`labels."%s"==%q`, labelFleet, filter.FleetTag)
	containers, err := p.client.Containers(ctx, filterStr)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	out := make([]HostHandle, 0, len(containers))
	for _, c := range containers {
		out = append(out, HostHandle{ProviderHostID: c.ID()})
	}
	return out, nil
}

// Status reports the effective_state of a host's container task. It is not
// part of the Port interface; the Fleet Enumerator (C8) reconciles through
// ListHosts instead.
func (p *ContainerProvider) Status(ctx context.Context, hostID string) (types.EffectiveState, error) {
	ctx = p.ctx(ctx)
	ctr, err := p.client.LoadContainer(ctx, hostID)
	if err != nil {
		return types.EffectiveUnknown, fmt.Errorf("load container %s: %w", hostID, err)
	}
	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return types.EffectiveExited, nil
	}
	status, err := task.Status(ctx)
	if err != nil {
		return types.EffectiveUnknown, fmt.Errorf("task status: %w", err)
	}
	switch status.Status {
	case containerd.Running, containerd.Paused:
		return types.EffectiveRunning, nil
	case containerd.Stopped:
		return types.EffectiveExited, nil
	default:
		return types.EffectiveUnknown, nil
	}
}
