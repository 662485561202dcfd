// Package provision implements the Provisioning Pipeline (C6): an ordered,
// idempotent sequence of steps that prepares an agent's environment
// before its session starts. Step execution and the upload-then-run
// ordering mirrors the teacher's worker.go executeContainer sequence
// (pull -> mount secrets -> mount volumes -> create -> start -> monitor,
// each with cleanup on early exit), generalized from container creation
// to steps run against any Provider Port.
package provision

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/fm/pkg/fleet/provider"
)

// StepKind identifies one of the five step primitives.
type StepKind string

const (
	StepUpload         StepKind = "upload"
	StepCreateDir      StepKind = "create_dir"
	StepAppendToFile   StepKind = "append_to_file"
	StepPrependToFile  StepKind = "prepend_to_file"
	StepRunUser        StepKind = "run_user"
	StepRunSudo        StepKind = "run_sudo"
	StepApplyEnv       StepKind = "apply_env"
)

// Step is one pipeline instruction.
type Step struct {
	Kind       StepKind
	LocalPath  string // upload
	RemotePath string // upload, create_dir, append/prepend_to_file
	Text       string // append/prepend_to_file
	Command    string // run_user, run_sudo
	EnvKey     string // apply_env
	EnvValue   string // apply_env
}

// AgentType is a compile-time-registered default-step table, following the
// teacher's const-enum-keyed lookup table pattern for node roles/service
// modes rather than any plugin-loading mechanism.
type AgentType struct {
	Name         string
	DefaultSteps []Step
}

var agentTypes = map[string]AgentType{}

// RegisterAgentType adds an agent type to the compile-time registry. Called
// from init() in agenttypes.go for each built-in type.
func RegisterAgentType(t AgentType) {
	agentTypes[t.Name] = t
}

// LookupAgentType returns a registered agent type by name.
func LookupAgentType(name string) (AgentType, bool) {
	t, ok := agentTypes[name]
	return t, ok
}

// ListAgentTypes returns every agent type registered at compile time, for
// the `plugin` command's capability-registry introspection (REDESIGN
// FLAGS: dynamic plugins replaced by compile-time registries).
func ListAgentTypes() []AgentType {
	out := make([]AgentType, 0, len(agentTypes))
	for _, t := range agentTypes {
		out = append(out, t)
	}
	return out
}

// Pipeline runs a sequence of steps against one host through a Provider
// Port, with a per-step timeout.
type Pipeline struct {
	port        provider.Port
	hostID      string
	user        string
	stepTimeout provider.Timeouts
}

// New builds a pipeline bound to one host.
func New(port provider.Port, hostID, user string, stepTimeout provider.Timeouts) *Pipeline {
	return &Pipeline{port: port, hostID: hostID, user: user, stepTimeout: stepTimeout}
}

// Run executes agentType's default steps, then userSteps, then env writes,
// in that order, per the ordering contract: agent-type defaults ->
// user-supplied steps -> environment writes -> session start (session
// start is the orchestrator's responsibility, not the pipeline's).
// Failure in any step aborts the remaining sequence; on-host side effects
// of steps already run are not rolled back.
func (p *Pipeline) Run(ctx context.Context, agentType string, userSteps []Step, env map[string]string) error {
	var steps []Step
	if t, ok := LookupAgentType(agentType); ok {
		steps = append(steps, t.DefaultSteps...)
	}
	steps = append(steps, userSteps...)
	for k, v := range env {
		steps = append(steps, Step{Kind: StepApplyEnv, EnvKey: k, EnvValue: v})
	}

	for i, step := range steps {
		if err := p.runStep(ctx, step); err != nil {
			return fmt.Errorf("provisioning step %d (%s): %w", i, step.Kind, err)
		}
	}
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, s Step) error {
	switch s.Kind {
	case StepUpload:
		return p.port.Transfer(ctx, p.hostID, provider.TransferPush, s.LocalPath, s.RemotePath, provider.TransferOptions{Archive: true})

	case StepCreateDir:
		return p.exec(ctx, []string{"mkdir", "-p", s.RemotePath})

	case StepAppendToFile, StepPrependToFile:
		return p.insertText(ctx, s)

	case StepRunUser:
		return p.execAs(ctx, s.Command, p.user)

	case StepRunSudo:
		return p.execAs(ctx, s.Command, "root")

	case StepApplyEnv:
		line := fmt.Sprintf("%s=%s\n", s.EnvKey, shellSingleQuote(s.EnvValue))
		return p.appendIfAbsent(ctx, envFilePath, line)

	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
}

// envFilePath is the environment file apply_env steps persist into: a
// fixed relative path, resolved against the working directory of the
// provider's Exec, shared by every agent on the host; callers that need a
// different path should wrap apply_env as run_user steps instead.
const envFilePath = ".fm_env"

// insertText implements the idempotent text-insertion contract: skip if
// the text already appears verbatim in the file.
func (p *Pipeline) insertText(ctx context.Context, s Step) error {
	if s.Kind == StepAppendToFile {
		return p.appendIfAbsent(ctx, s.RemotePath, s.Text)
	}
	return p.prependIfAbsent(ctx, s.RemotePath, s.Text)
}

func (p *Pipeline) appendIfAbsent(ctx context.Context, path, text string) error {
	present, err := p.fileContains(ctx, path, text)
	if err != nil {
		return err
	}
	if present {
		return nil
	}
	script := fmt.Sprintf("cat >> %s <<'FM_EOF'\n%s\nFM_EOF\n", shellQuote(path), text)
	return p.exec(ctx, []string{"sh", "-c", script})
}

func (p *Pipeline) prependIfAbsent(ctx context.Context, path, text string) error {
	present, err := p.fileContains(ctx, path, text)
	if err != nil {
		return err
	}
	if present {
		return nil
	}
	script := fmt.Sprintf(
		"tmp=$(mktemp) && cat > \"$tmp\" <<'FM_EOF'\n%s\nFM_EOF\n"+
			"cat %s >> \"$tmp\" 2>/dev/null; mv \"$tmp\" %s",
		text, shellQuote(path), shellQuote(path))
	return p.exec(ctx, []string{"sh", "-c", script})
}

func (p *Pipeline) fileContains(ctx context.Context, path, text string) (bool, error) {
	res, err := p.port.Exec(ctx, p.hostID, []string{"cat", path}, "", "", p.stepTimeout)
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		return false, nil // file does not exist yet
	}
	return bytes.Contains(res.Stdout, []byte(text)), nil
}

func (p *Pipeline) exec(ctx context.Context, argv []string) error {
	res, err := p.port.Exec(ctx, p.hostID, argv, "", "", p.stepTimeout)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("exited %d: %s", res.ExitCode, string(res.Stderr))
	}
	return nil
}

func (p *Pipeline) execAs(ctx context.Context, command, user string) error {
	res, err := p.port.Exec(ctx, p.hostID, []string{"sh", "-c", command}, "", user, p.stepTimeout)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("exited %d: %s", res.ExitCode, string(res.Stderr))
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func shellSingleQuote(s string) string { return shellQuote(s) }
