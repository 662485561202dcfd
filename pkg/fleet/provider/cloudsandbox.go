package provider

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/lima-vm/lima/pkg/instance"
	"github.com/lima-vm/lima/pkg/limayaml"
	"github.com/lima-vm/lima/pkg/store"

	"github.com/cuemby/fm/pkg/fleet/types"
)

// CloudSandboxProvider runs each host as its own Lima micro-VM, one
// instance per host id rather than the single fixed "warren" instance the
// teacher ran as a shared containerd backend. Host-level isolation (one VM
// per agent host, not one shared VM for the whole fleet) matches the
// cloud-sandbox contract in SPEC_FULL.md §4.1.
type CloudSandboxProvider struct {
	dataDir string
}

// NewCloudSandboxProvider constructs the Lima-backed variant. dataDir is
// mounted writable into every instance it creates so agent work_dir trees
// are visible from the host side too.
func NewCloudSandboxProvider(dataDir string) *CloudSandboxProvider {
	return &CloudSandboxProvider{dataDir: dataDir}
}

func (p *CloudSandboxProvider) Kind() types.ProviderKind { return types.ProviderCloudSandbox }

func instanceName(hostID string) string { return "fm-" + hostID }

func (p *CloudSandboxProvider) Build(ctx context.Context, spec BuildSpec) (string, error) {
	if spec.BaseImage == "" {
		return "", fmt.Errorf("cloud-sandbox build: base_image required")
	}
	return spec.BaseImage, nil
}

func (p *CloudSandboxProvider) CreateHost(ctx context.Context, hostID, rootName, image string, res types.Resources, env map[string]string, tags []string) (HostHandle, error) {
	if !p.limaInstalled() {
		return HostHandle{}, fmt.Errorf("lima is not installed (limactl not found on PATH)")
	}

	name := instanceName(hostID)
	cfg := p.buildConfig(rootName, hostID, image, res)
	configYAML, err := limayaml.Marshal(&cfg, false)
	if err != nil {
		return HostHandle{}, fmt.Errorf("marshal lima config: %w", err)
	}
	if _, err := instance.Create(ctx, name, configYAML, false); err != nil {
		return HostHandle{}, fmt.Errorf("create lima instance %s: %w", name, err)
	}
	return HostHandle{ProviderHostID: name}, nil
}

func (p *CloudSandboxProvider) buildConfig(rootName, hostID, image string, res types.Resources) limayaml.LimaYAML {
	arch := limayaml.AARCH64
	if runtime.GOARCH == "amd64" {
		arch = limayaml.X8664
	}
	cpus := 2
	if res.CPUCores > 0 {
		cpus = int(res.CPUCores)
	}
	memory := "2GiB"
	disk := "20GiB"

	return limayaml.LimaYAML{
		Arch:   &arch,
		CPUs:   &cpus,
		Memory: &memory,
		Disk:   &disk,
		Containerd: limayaml.Containerd{
			System: boolPtr(false),
		},
		Mounts: []limayaml.Mount{
			{Location: filepath.Join(p.dataDir, "hosts", hostID), Writable: boolPtr(true)},
		},
		Provision: []limayaml.Provision{
			{
				Mode:   limayaml.ProvisionModeSystem,
				Script: "#!/bin/sh\nset -eux\ntrue # base image provisioning handled by the provisioning pipeline (C6)",
			},
		},
		Message: fmt.Sprintf("fm cloud-sandbox host %s (fleet=%s, image=%s)", hostID, rootName, image),
	}
}

func (p *CloudSandboxProvider) StartHost(ctx context.Context, hostID string, snapshot string) error {
	name := instanceName(hostID)
	inst, err := store.Inspect(name)
	if err != nil {
		return fmt.Errorf("inspect lima instance %s: %w", name, err)
	}
	if inst.Status == store.StatusRunning {
		return nil
	}
	if err := instance.Start(ctx, inst, "", false); err != nil {
		return fmt.Errorf("start lima instance %s: %w", name, err)
	}
	return p.waitForReady(ctx, name)
}

func (p *CloudSandboxProvider) StopHost(ctx context.Context, hostID string, doSnapshot bool) (string, error) {
	if doSnapshot {
		return "", &ErrUnsupported{Op: "snapshot", Kind: string(types.ProviderCloudSandbox)}
	}
	name := instanceName(hostID)
	inst, err := store.Inspect(name)
	if err != nil {
		return "", nil // already gone
	}
	if err := instance.StopGracefully(ctx, inst, false); err != nil {
		instance.StopForcibly(inst)
	}
	return "", nil
}

func (p *CloudSandboxProvider) DestroyHost(ctx context.Context, hostID string, purgeSnapshots bool) error {
	name := instanceName(hostID)
	inst, err := store.Inspect(name)
	if err != nil {
		return nil
	}
	instance.StopForcibly(inst)
	return os.RemoveAll(inst.Dir)
}

func (p *CloudSandboxProvider) Snapshot(ctx context.Context, hostID string) (string, error) {
	return "", &ErrUnsupported{Op: "snapshot", Kind: string(types.ProviderCloudSandbox)}
}

// Exec shells through `limactl shell`, Lima's own SSH wrapper, rather than
// hand-rolling an SSH client: Lima already manages the instance's host key
// and agent forwarding.
func (p *CloudSandboxProvider) Exec(ctx context.Context, hostID string, argv []string, cwd, user string, t Timeouts) (ExecResult, error) {
	if len(argv) == 0 {
		return ExecResult{}, fmt.Errorf("cloud-sandbox exec: empty argv")
	}
	execCtx := ctx
	var cancel context.CancelFunc
	if t.Hard > 0 {
		execCtx, cancel = context.WithTimeout(ctx, t.Hard)
		defer cancel()
	}

	args := []string{"shell", instanceName(hostID)}
	if cwd != "" {
		args = append(args, "--workdir", cwd)
	}
	args = append(args, "--")
	args = append(args, argv...)

	cmd := exec.CommandContext(execCtx, "limactl", args...)
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
		return res, fmt.Errorf("cloud-sandbox exec: %w", err)
	}
	return res, nil
}

// Transfer uses `limactl copy`, Lima's scp wrapper, addressing the guest
// side as "<instance>:<path>" per Lima's own convention.
func (p *CloudSandboxProvider) Transfer(ctx context.Context, hostID string, dir TransferDirection, local, remote string, opts TransferOptions) error {
	guest := instanceName(hostID) + ":" + remote
	var args []string
	if opts.Archive {
		args = append(args, "-r")
	}
	switch dir {
	case TransferPush:
		args = append(args, local, guest)
	case TransferPull:
		args = append(args, guest, local)
	default:
		return fmt.Errorf("unknown transfer direction %q", dir)
	}
	cmd := exec.CommandContext(ctx, "limactl", append([]string{"copy"}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("limactl copy: %w (%s)", err, stderr.String())
	}
	return nil
}

func (p *CloudSandboxProvider) ListHosts(ctx context.Context, filter HostFilter) ([]HostHandle, error) {
	instances, err := store.Instances()
	if err != nil {
		return nil, fmt.Errorf("list lima instances: %w", err)
	}
	var out []HostHandle
	prefix := "fm-"
	for _, name := range instances {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			out = append(out, HostHandle{ProviderHostID: name})
		}
	}
	return out, nil
}

func (p *CloudSandboxProvider) waitForReady(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for lima instance %s", name)
		case <-ticker.C:
			inst, err := store.Inspect(name)
			if err != nil {
				continue
			}
			if inst.Status == store.StatusRunning {
				return nil
			}
		}
	}
}

func (p *CloudSandboxProvider) limaInstalled() bool {
	_, err := exec.LookPath("limactl")
	return err == nil
}

func boolPtr(b bool) *bool { return &b }
