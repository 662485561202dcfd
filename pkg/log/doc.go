/*
Package log provides structured logging for fm using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("orchestrator")             │          │
	│  │  - WithHost("host-abc123")                  │          │
	│  │  - WithAgent("agent-xyz")                   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │  JSON:    {"level":"info","host_id":"h1",...│          │
	│  │  Console: 10:30AM INF agent started host_id=│          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Log Levels

  - Debug: Detailed debugging information, development only
  - Info: General informational messages, the default production level
  - Warn: Potential issues that may require attention
  - Error: Operation failures that need investigation
  - Fatal: Unrecoverable errors; logs and calls os.Exit(1)

# Usage

Initializing the logger:

	import "github.com/cuemby/fm/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true, // false for a human console format
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("fleet enumerator started")
	log.Warn("idle sweep skipped: store locked")
	log.Error("failed to start host")

Component and entity loggers:

	orchLog := log.WithComponent("orchestrator")
	orchLog.Info().Msg("creating agent")

	hostLog := log.WithHost(host.ID)
	hostLog.Info().Str("provider", string(host.Provider)).Msg("host started")

	agentLog := log.WithAgent(agent.ID)
	agentLog.Error().Err(err).Msg("provisioning step failed")

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance, initialized once at startup
  - Accessible from every package without threading it through signatures

Context Logger Pattern:
  - Child loggers carry host_id/agent_id/component so call sites don't
    repeat the same fields on every log line

Structured Logging Pattern:
  - Typed fields (.Str, .Int, .Err) rather than string interpolation, so
    logs stay machine-parseable

# Security

Never log secrets or agent environment values verbatim; see
types.Agent.RedactedEnv for the redaction helper every caller that logs an
agent's environment should go through first.

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
