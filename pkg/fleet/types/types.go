// Package types defines the data model shared across the fleet manager:
// agent and host descriptors, their lifecycle states, and the small value
// types that hang off them.
package types

import "time"

// AgentState is the lifecycle state of an agent.
type AgentState string

const (
	AgentCreating   AgentState = "creating"
	AgentRunning    AgentState = "running"
	AgentStopped    AgentState = "stopped"
	AgentDestroying AgentState = "destroying"
	AgentDestroyed  AgentState = "destroyed"
)

// HostState is the lifecycle state of a host.
type HostState string

const (
	HostBuilding  HostState = "building"
	HostStarting  HostState = "starting"
	HostRunning   HostState = "running"
	HostStopping  HostState = "stopping"
	HostStopped   HostState = "stopped"
	HostDestroyed HostState = "destroyed"
	HostFailed    HostState = "failed"
)

// ProviderKind identifies a Provider Port backend.
type ProviderKind string

const (
	ProviderLocal        ProviderKind = "local"
	ProviderContainer    ProviderKind = "container"
	ProviderCloudSandbox ProviderKind = "cloud-sandbox"
	ProviderSecureShell  ProviderKind = "secure-shell"
)

// IdleMode selects which activity sources count toward a host's idleness.
type IdleMode string

const (
	IdleModeIO       IdleMode = "io"
	IdleModeUser     IdleMode = "user"
	IdleModeAgent    IdleMode = "agent"
	IdleModeSSH      IdleMode = "ssh"
	IdleModeCreate   IdleMode = "create"
	IdleModeBoot     IdleMode = "boot"
	IdleModeStart    IdleMode = "start"
	IdleModeRun      IdleMode = "run"
	IdleModeDisabled IdleMode = "disabled"
)

// EffectiveState is the fleet enumerator's derived view of an agent,
// combining descriptor, provider, and session truth (see pkg/fleet/enumerator).
type EffectiveState string

const (
	EffectiveRunning   EffectiveState = "running"
	EffectiveExited    EffectiveState = "exited"
	EffectiveStopped   EffectiveState = "stopped"
	EffectiveOrphaned  EffectiveState = "orphaned"
	EffectiveDestroyed EffectiveState = "destroyed"
	EffectiveUnknown   EffectiveState = "unknown"
)

// Resources describes a host's compute allotment.
type Resources struct {
	CPUCores    float64 `json:"cpu_cores,omitempty"`
	MemoryBytes int64   `json:"memory_bytes,omitempty"`
	DiskBytes   int64   `json:"disk_bytes,omitempty"`
	GPU         string  `json:"gpu,omitempty"`
}

// SSHEndpoint addresses a remote host. Absent on local hosts.
type SSHEndpoint struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
	User    string `json:"user"`
	KeyPath string `json:"key_path"`
}

// Snapshot is an opaque provider-specific filesystem capture plus a locally
// recorded timestamp.
type Snapshot struct {
	Ref       string    `json:"ref"`
	CreatedAt time.Time `json:"created_at"`
}

// HostLock records which operation currently owns a host's mutation lock.
type HostLock struct {
	Operation  string    `json:"operation"`
	Holder     int       `json:"holder"` // PID of the holding process
	AcquiredAt time.Time `json:"acquired_at"`
}

// Host is the on-disk descriptor for one execution environment.
type Host struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Provider         ProviderKind  `json:"provider"`
	ProviderInstance string        `json:"provider_instance,omitempty"`
	Image            string        `json:"image,omitempty"`
	ActiveSnapshot   string        `json:"active_snapshot,omitempty"`
	Resources        Resources     `json:"resources"`
	SSH              *SSHEndpoint  `json:"ssh,omitempty"`
	Tags             []string      `json:"tags,omitempty"`
	State            HostState     `json:"state"`
	CreatedAt        time.Time     `json:"created_at"`
	BootAt           time.Time     `json:"boot_at,omitempty"`
	Snapshots        []Snapshot    `json:"snapshots,omitempty"` // newest-first
	Lock             *HostLock     `json:"lock,omitempty"`
	Destroyed        bool          `json:"destroyed"`
	DestroyedAt       time.Time    `json:"destroyed_at,omitempty"`
}

// IsRunning reports whether the host's recorded state is running.
func (h *Host) IsRunning() bool { return h.State == HostRunning }

// Agent is the on-disk descriptor for one managed process.
type Agent struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	HostID             string            `json:"host_id"`
	Type               string            `json:"type"` // e.g. "claude", "codex", "generic"
	Command            []string          `json:"command"`
	WorkDir            string            `json:"work_dir"`
	Project            string            `json:"project,omitempty"`
	Labels             map[string]string `json:"labels,omitempty"`
	Permissions        []string          `json:"permissions,omitempty"`
	IdleMode           IdleMode          `json:"idle_mode"`
	IdleTimeoutSeconds int               `json:"idle_timeout_seconds"`
	StartOnBoot        bool              `json:"start_on_boot"`
	Env                map[string]string `json:"env,omitempty"`
	State              AgentState        `json:"state"`
	CreatedAt          time.Time         `json:"created_at"`
	StartedAt          time.Time         `json:"started_at,omitempty"`
	UserActivityAt     time.Time         `json:"user_activity_at,omitempty"`
	AgentActivityAt    time.Time         `json:"agent_activity_at,omitempty"`
	SSHActivityAt      time.Time         `json:"ssh_activity_at,omitempty"`
	Destroyed          bool              `json:"destroyed"`
	DestroyedAt        time.Time         `json:"destroyed_at,omitempty"`
}

// SessionName derives the multiplexer session name for this agent given the
// configured prefix (data model invariant 3).
func (a *Agent) SessionName(prefix string) string {
	return prefix + a.Name
}

// RedactedEnv returns a copy of Env with values that look like secrets
// replaced, for use in list output. Keys are matched case-insensitively
// against common secret-ish suffixes; FM forwards opaque strings and makes
// no claim about parsing their structure beyond this display convenience.
func (a *Agent) RedactedEnv() map[string]string {
	if a.Env == nil {
		return nil
	}
	out := make(map[string]string, len(a.Env))
	for k, v := range a.Env {
		if looksSecret(k) {
			out[k] = "********"
		} else {
			out[k] = v
		}
	}
	return out
}

func looksSecret(key string) bool {
	for _, suffix := range []string{"KEY", "TOKEN", "SECRET", "PASSWORD", "CREDENTIAL"} {
		if hasUpperSuffix(key, suffix) {
			return true
		}
	}
	return false
}

func hasUpperSuffix(s, suffix string) bool {
	u := toUpper(s)
	if len(u) < len(suffix) {
		return false
	}
	return u[len(u)-len(suffix):] == suffix
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}

// ActivityKind names the activity files an idle supervisor watches.
type ActivityKind string

const (
	ActivityUser   ActivityKind = "user"
	ActivityAgent  ActivityKind = "agent"
	ActivitySSH    ActivityKind = "ssh"
	ActivityCreate ActivityKind = "create"
	ActivityBoot   ActivityKind = "boot"
)

// IdleModeSignals reports which activity kinds count toward idleness for a
// given mode (table in SPEC_FULL.md §4.9). "proc alive" (run mode's extra
// column) is handled by the idle supervisor directly, not via a file.
func IdleModeSignals(mode IdleMode) []ActivityKind {
	switch mode {
	case IdleModeIO:
		return []ActivityKind{ActivityUser, ActivityAgent, ActivitySSH, ActivityCreate, ActivityBoot}
	case IdleModeUser:
		return []ActivityKind{ActivityUser, ActivitySSH, ActivityCreate, ActivityBoot}
	case IdleModeAgent:
		return []ActivityKind{ActivityAgent, ActivitySSH, ActivityCreate, ActivityBoot}
	case IdleModeSSH:
		return []ActivityKind{ActivitySSH, ActivityCreate, ActivityBoot}
	case IdleModeCreate:
		return []ActivityKind{ActivityCreate}
	case IdleModeBoot:
		return []ActivityKind{ActivityBoot}
	case IdleModeStart:
		return []ActivityKind{ActivityBoot}
	case IdleModeRun:
		return []ActivityKind{ActivityCreate, ActivityBoot}
	case IdleModeDisabled:
		return nil
	default:
		return nil
	}
}

// TamperResistant reports whether an activity kind cannot be forged by the
// agent process itself (only the orchestrator writes it).
func TamperResistant(kind ActivityKind) bool {
	return kind == ActivityCreate || kind == ActivityBoot
}
