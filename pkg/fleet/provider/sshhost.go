package provider

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/cuemby/fm/pkg/fleet/types"
)

// SSHHostProvider addresses pre-existing machines over SSH. Unlike the
// other three backends it never creates or destroys compute: hosts come
// from a static inventory supplied at construction time, per the spec's
// explicit carve-out that secure-shell list_hosts reads static config
// rather than querying a resource API.
type SSHHostProvider struct {
	mu        sync.RWMutex
	endpoints map[string]types.SSHEndpoint // hostID -> endpoint
}

// NewSSHHostProvider builds the secure-shell backend from a static
// inventory of host id to SSH endpoint.
func NewSSHHostProvider(inventory map[string]types.SSHEndpoint) *SSHHostProvider {
	cp := make(map[string]types.SSHEndpoint, len(inventory))
	for k, v := range inventory {
		cp[k] = v
	}
	return &SSHHostProvider{endpoints: cp}
}

func (p *SSHHostProvider) Kind() types.ProviderKind { return types.ProviderSecureShell }

func (p *SSHHostProvider) Build(ctx context.Context, spec BuildSpec) (string, error) {
	return "", &ErrUnsupported{Op: "build", Kind: string(types.ProviderSecureShell)}
}

func (p *SSHHostProvider) CreateHost(ctx context.Context, hostID, rootName, image string, res types.Resources, env map[string]string, tags []string) (HostHandle, error) {
	return HostHandle{}, &ErrUnsupported{Op: "create_host", Kind: string(types.ProviderSecureShell)}
}

func (p *SSHHostProvider) StartHost(ctx context.Context, hostID string, snapshot string) error {
	return &ErrUnsupported{Op: "start_host", Kind: string(types.ProviderSecureShell)}
}

func (p *SSHHostProvider) StopHost(ctx context.Context, hostID string, doSnapshot bool) (string, error) {
	return "", &ErrUnsupported{Op: "stop_host", Kind: string(types.ProviderSecureShell)}
}

func (p *SSHHostProvider) DestroyHost(ctx context.Context, hostID string, purgeSnapshots bool) error {
	return &ErrUnsupported{Op: "destroy_host", Kind: string(types.ProviderSecureShell)}
}

func (p *SSHHostProvider) Snapshot(ctx context.Context, hostID string) (string, error) {
	return "", &ErrUnsupported{Op: "snapshot", Kind: string(types.ProviderSecureShell)}
}

func (p *SSHHostProvider) endpoint(hostID string) (types.SSHEndpoint, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ep, ok := p.endpoints[hostID]
	if !ok {
		return types.SSHEndpoint{}, fmt.Errorf("no ssh endpoint configured for host %s", hostID)
	}
	return ep, nil
}

func (p *SSHHostProvider) dial(ctx context.Context, ep types.SSHEndpoint) (*ssh.Client, error) {
	auth, err := keyAuth(ep.KeyPath)
	if err != nil {
		return nil, err
	}
	config := &ssh.ClientConfig{
		User:            ep.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: verify against a known_hosts store once provisioned inventories carry host key fingerprints
		Timeout:         10 * time.Second,
	}
	addr := net.JoinHostPort(ep.Address, strconv.Itoa(ep.Port))

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func keyAuth(keyPath string) (ssh.AuthMethod, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key %s: %w", keyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key %s: %w", keyPath, err)
	}
	return ssh.PublicKeys(signer), nil
}

func (p *SSHHostProvider) Exec(ctx context.Context, hostID string, argv []string, cwd, user string, t Timeouts) (ExecResult, error) {
	ep, err := p.endpoint(hostID)
	if err != nil {
		return ExecResult{}, err
	}
	if user != "" {
		ep.User = user
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if t.Hard > 0 {
		execCtx, cancel = context.WithTimeout(ctx, t.Hard)
		defer cancel()
	}

	client, err := p.dial(execCtx, ep)
	if err != nil {
		return ExecResult{}, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return ExecResult{}, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	cmdLine := shellJoin(argv)
	if cwd != "" {
		cmdLine = "cd " + shellQuote(cwd) + " && " + cmdLine
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(cmdLine) }()

	select {
	case <-execCtx.Done():
		session.Signal(ssh.SIGKILL)
		return ExecResult{}, execCtx.Err()
	case err := <-done:
		res := ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
		if exitErr, ok := err.(*ssh.ExitError); ok {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("ssh exec: %w", err)
		}
		return res, nil
	}
}

// Transfer is not implemented as a provider primitive for SSH hosts: every
// call returns ErrUnsupported. File copies to these hosts go through
// pkg/fleet/workspace's rsync mode, which shells out to the local rsync
// binary.
func (p *SSHHostProvider) Transfer(ctx context.Context, hostID string, dir TransferDirection, local, remote string, opts TransferOptions) error {
	return &ErrUnsupported{Op: "direct provider transfer (use pkg/fleet/workspace rsync mode)", Kind: string(types.ProviderSecureShell)}
}

func (p *SSHHostProvider) ListHosts(ctx context.Context, filter HostFilter) ([]HostHandle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]HostHandle, 0, len(p.endpoints))
	for id, ep := range p.endpoints {
		epCopy := ep
		out = append(out, HostHandle{ProviderHostID: id, SSH: &epCopy})
	}
	return out, nil
}

func shellJoin(argv []string) string {
	out := ""
	for i, a := range argv {
		if i > 0 {
			out += " "
		}
		out += shellQuote(a)
	}
	return out
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
