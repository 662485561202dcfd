// Package workspace implements the Workspace Transfer Engine (C5):
// materializing and synchronizing a code workspace between a source and a
// target (host, path) pair. Since no Go git or rsync library exists
// anywhere in the reference corpus, clone/worktree/vcs-push/vcs-pull shell
// out to the `git` binary and rsync shells out to `rsync`, both via
// os/exec, following the teacher's own exec-based idiom for operations
// with no convenient native Go binding (GetContainerIP's nsenter/ip
// shell-out in pkg/runtime/containerd.go).
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"
)

// Mode selects a transfer strategy.
type Mode string

const (
	ModeInPlace  Mode = "in-place"
	ModeCopy     Mode = "copy"
	ModeClone    Mode = "clone"
	ModeWorktree Mode = "worktree"
	ModeRsync    Mode = "rsync"
	ModeVCSPush  Mode = "vcs-push"
	ModeVCSPull  Mode = "vcs-pull"
)

// ConflictPolicy governs how vcs modes handle a dirty target.
type ConflictPolicy string

const (
	ConflictFail    ConflictPolicy = "fail"
	ConflictStash   ConflictPolicy = "stash"
	ConflictMerge   ConflictPolicy = "merge"
	ConflictClobber ConflictPolicy = "clobber"
)

// Endpoint addresses one side of a transfer: a path, optionally on a
// remote host reached through a shell command prefix (e.g. the result of
// composing an SSH/provider Exec call). A nil Shell means "local
// filesystem, run commands directly".
type Endpoint struct {
	Path  string
	Shell Runner
}

// Runner executes a shell command line against one endpoint's host. The
// local endpoint's Runner runs os/exec directly; remote endpoints wrap a
// provider.Port's Exec.
type Runner interface {
	Run(ctx context.Context, argv []string, cwd string) (stdout, stderr []byte, exitCode int, err error)
}

// LocalRunner executes commands directly on the FM process's own machine.
type LocalRunner struct{}

func (LocalRunner) Run(ctx context.Context, argv []string, cwd string) ([]byte, []byte, int, error) {
	if len(argv) == 0 {
		return nil, nil, 0, fmt.Errorf("empty argv")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if exitErr, ok := err.(*exec.ExitError); ok {
		return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return stdout.Bytes(), stderr.Bytes(), -1, err
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}

// Options configures a transfer beyond the basic mode.
type Options struct {
	Include        []string
	Exclude        []string
	NewBranch      string // worktree mode
	Conflict       ConflictPolicy
	Mirror         bool // vcs-push: accept ref rewrites
	Force          bool // vcs-pull: accept ref rewrites
	ExcludeVCSMeta bool // copy/rsync: leave out .git (included by default)
}

// Engine drives one transfer between a source and a target endpoint. For
// Sync/Materialize (push/pull) the source is always read-only. Pair is
// the exception: it treats Source/Target as two mutable copies and picks
// a sync direction per call through Pair/pairSync (see pair.go).
type Engine struct {
	Source Endpoint
	Target Endpoint
}

func New(source, target Endpoint) *Engine {
	return &Engine{Source: source, Target: target}
}

// Materialize performs a one-shot setup transfer (copy/clone/worktree/
// in-place), used at agent creation time.
func (e *Engine) Materialize(ctx context.Context, mode Mode, opts Options) error {
	switch mode {
	case ModeInPlace:
		return nil
	case ModeCopy:
		return e.copyTree(ctx, opts)
	case ModeClone:
		return e.gitClone(ctx)
	case ModeWorktree:
		return e.gitWorktree(ctx, opts)
	default:
		return fmt.Errorf("mode %q is not a materialization mode", mode)
	}
}

// Sync performs an incremental transfer (push/pull/pair's vcs-sync step),
// used after the workspace already exists on both sides.
func (e *Engine) Sync(ctx context.Context, mode Mode, opts Options) error {
	switch mode {
	case ModeRsync:
		return e.rsync(ctx, opts)
	case ModeVCSPush:
		return e.vcsPush(ctx, opts)
	case ModeVCSPull:
		return e.vcsPull(ctx, opts)
	default:
		return fmt.Errorf("mode %q is not a sync mode", mode)
	}
}

func (e *Engine) gitClone(ctx context.Context) error {
	argv := []string{"git", "clone", "--shared", e.Source.Path, e.Target.Path}
	return run(ctx, e.Target.runner(), argv, "")
}

func (e *Engine) gitWorktree(ctx context.Context, opts Options) error {
	if opts.NewBranch == "" {
		return fmt.Errorf("worktree mode requires a new branch name")
	}
	argv := []string{"git", "worktree", "add", "-b", opts.NewBranch, e.Target.Path}
	return run(ctx, e.Source.runner(), argv, e.Source.Path)
}

func (e *Engine) vcsPush(ctx context.Context, opts Options) error {
	if err := e.checkConflict(ctx, opts); err != nil {
		return err
	}
	argv := []string{"git", "push"}
	if opts.Mirror {
		argv = append(argv, "--force")
	} else {
		argv = append(argv, "--force-with-lease=false")
	}
	return run(ctx, e.Source.runner(), argv, e.Source.Path)
}

func (e *Engine) vcsPull(ctx context.Context, opts Options) error {
	if err := e.checkConflict(ctx, opts); err != nil {
		return err
	}
	argv := []string{"git", "pull", "--ff-only"}
	if opts.Force {
		argv = []string{"git", "reset", "--hard"}
	}
	return run(ctx, e.Target.runner(), argv, e.Target.Path)
}

// checkConflict implements the uncommitted-change policy for vcs modes:
// fail/stash/merge/clobber against the target's working tree.
func (e *Engine) checkConflict(ctx context.Context, opts Options) error {
	runner := e.Target.runner()
	stdout, _, _, err := runner.Run(ctx, []string{"git", "status", "--porcelain"}, e.Target.Path)
	if err != nil {
		return fmt.Errorf("git status: %w", err)
	}
	dirty := len(bytes.TrimSpace(stdout)) > 0
	if !dirty {
		return nil
	}
	switch opts.Conflict {
	case ConflictFail, "":
		return fmt.Errorf("target workspace has uncommitted changes")
	case ConflictStash, ConflictMerge:
		return run(ctx, runner, []string{"git", "stash"}, e.Target.Path)
	case ConflictClobber:
		return run(ctx, runner, []string{"git", "reset", "--hard"}, e.Target.Path)
	default:
		return fmt.Errorf("unknown conflict policy %q", opts.Conflict)
	}
}

// rsync performs an incremental, size+mtime-aware copy. Both endpoints
// may be local paths or provider-addressed paths expressed as
// rsync-style remotes by the caller (workspace.Endpoint.Path already
// carries any "user@host:" prefix the caller composed).
func (e *Engine) rsync(ctx context.Context, opts Options) error {
	argv := []string{"rsync", "-a", "--delete"}
	for _, inc := range opts.Include {
		argv = append(argv, "--include="+inc)
	}
	for _, exc := range opts.Exclude {
		argv = append(argv, "--exclude="+exc)
	}
	if opts.ExcludeVCSMeta {
		argv = append(argv, "--exclude=.git")
	}
	argv = append(argv, ensureTrailingSlash(e.Source.Path), e.Target.Path)
	return run(ctx, LocalRunner{}, argv, "")
}

// copyTree performs a filesystem-level recursive copy honoring exclude
// globs via go-gitignore pattern matching (opts.Include is not applied in
// this mode), used for the
// `copy` materialization mode when no rsync binary round-trip is wanted
// for a single initial snapshot.
func (e *Engine) copyTree(ctx context.Context, opts Options) error {
	var matcher *ignore.GitIgnore
	if len(opts.Exclude) > 0 {
		matcher = ignore.CompileIgnoreLines(opts.Exclude...)
	}

	return filepath.Walk(e.Source.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(e.Source.Path, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if opts.ExcludeVCSMeta && (rel == ".git" || filepathHasPrefix(rel, ".git"+string(filepath.Separator))) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		dst := filepath.Join(e.Target.Path, rel)
		if info.IsDir() {
			return os.MkdirAll(dst, info.Mode())
		}
		return copyFileAtomic(path, dst, info.Mode())
	})
}

func copyFileAtomic(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	tmp.Close()
	os.Chmod(tmpPath, mode)
	return os.Rename(tmpPath, dst)
}

func filepathHasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func ensureTrailingSlash(p string) string {
	if len(p) == 0 || p[len(p)-1] == '/' {
		return p
	}
	return p + "/"
}

func (ep Endpoint) runner() Runner {
	if ep.Shell != nil {
		return ep.Shell
	}
	return LocalRunner{}
}

func run(ctx context.Context, r Runner, argv []string, cwd string) error {
	_, stderr, exitCode, err := r.Run(ctx, argv, cwd)
	if err != nil {
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%s exited %d: %s", argv[0], exitCode, string(stderr))
	}
	return nil
}
