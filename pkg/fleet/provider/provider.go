// Package provider defines the Provider Port (C3): a single polymorphic
// interface over the four host backends {local, container, cloud-sandbox,
// secure-shell}. The port never retries internally; callers decide.
package provider

import (
	"context"
	"time"

	"github.com/cuemby/fm/pkg/fleet/types"
)

// BuildSpec describes how to produce an image/snapshot reference.
type BuildSpec struct {
	BaseImage  string
	Dockerfile string
	BuildArgs  map[string]string
}

// ExecResult is the outcome of a synchronous command execution.
type ExecResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// TransferDirection indicates which way bytes move relative to the host.
type TransferDirection string

const (
	TransferPush TransferDirection = "push" // local -> host
	TransferPull TransferDirection = "pull" // host -> local
)

// TransferOptions configures a provider-level file transfer primitive.
type TransferOptions struct {
	Include []string
	Exclude []string
	Archive bool // preserve mode bits and mtimes
}

// HostFilter narrows list_hosts to resources tagged for this fleet.
type HostFilter struct {
	FleetTag string
}

// HostHandle is what create_host/list_hosts return: enough to address the
// host without going back through the local state store.
type HostHandle struct {
	ProviderHostID string // provider-side identifier (container id, VM name, ...)
	SSH            *types.SSHEndpoint
}

// Timeouts is the two-threshold timeout every external call takes: Hard is
// enforced via context cancellation, Warn (if nonzero and exceeded on a
// successful call) should cause the caller to emit a slow_op event.
type Timeouts struct {
	Hard time.Duration
	Warn time.Duration
}

// Port is the uniform interface every backend variant implements.
type Port interface {
	Kind() types.ProviderKind

	// Build produces an image/snapshot reference, idempotent by content
	// hash of spec.
	Build(ctx context.Context, spec BuildSpec) (imageRef string, err error)

	// CreateHost provisions a fresh host, tagging provider-side resources
	// with fleet=<root-name> and host_id=<id> per the semantic
	// requirements in SPEC_FULL.md §4.1.
	CreateHost(ctx context.Context, hostID, rootName, image string, res types.Resources, env map[string]string, tags []string) (HostHandle, error)

	// StartHost wakes a stopped host, restoring snapshot if given.
	StartHost(ctx context.Context, hostID string, snapshot string) error

	// StopHost cleanly stops a host, optionally snapshotting first.
	StopHost(ctx context.Context, hostID string, doSnapshot bool) (snapshotRef string, err error)

	// DestroyHost releases all provider resources for a host. Idempotent.
	DestroyHost(ctx context.Context, hostID string, purgeSnapshots bool) error

	// Snapshot captures filesystem state. MUST return ErrUnsupported for
	// the local variant.
	Snapshot(ctx context.Context, hostID string) (ref string, err error)

	// Exec runs argv synchronously on the host.
	Exec(ctx context.Context, hostID string, argv []string, cwd, user string, t Timeouts) (ExecResult, error)

	// Transfer moves files between the local machine and the host.
	Transfer(ctx context.Context, hostID string, dir TransferDirection, local, remote string, opts TransferOptions) error

	// ListHosts returns every host this provider instance knows about that
	// is tagged as belonging to this fleet — the reconciliation source of
	// truth for alive/dead decisions (C8).
	ListHosts(ctx context.Context, filter HostFilter) ([]HostHandle, error)
}

// ErrUnsupported is returned by operations a variant legitimately cannot
// perform (e.g. Snapshot on the local provider).
type ErrUnsupported struct{ Op, Kind string }

func (e *ErrUnsupported) Error() string {
	return e.Op + " is unsupported on provider " + e.Kind
}
