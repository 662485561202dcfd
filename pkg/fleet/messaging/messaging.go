// Package messaging implements the Messaging Adapter (C10): writing user
// input into an agent's session stdin via the session multiplexer's
// send_keys. Multi-target messaging's per-agent error isolation
// (abort-on-first or continue) is grounded on the teacher's
// Worker.syncContainers multi-item loop-with-per-item-error-log pattern.
package messaging

import (
	"context"
	"fmt"

	"github.com/cuemby/fm/pkg/fleet/session"
	"github.com/cuemby/fm/pkg/fleet/types"
)

// OnError selects how Send handles a failure mid-batch.
type OnError string

const (
	OnErrorAbort    OnError = "abort"
	OnErrorContinue OnError = "continue"
)

// Target pairs an agent with the session.Adapter bound to its host's
// provider, since different agents may live on different provider kinds.
type Target struct {
	Agent *types.Agent
	Sess  *session.Adapter
}

// Result records one target's outcome for Send's caller.
type Result struct {
	AgentID string
	Err     error
}

// Send writes text into every target's session, appending a trailing
// newline unless appendNewline is false. sessionPrefix must match the
// prefix the orchestrator used to create each target's session, since
// the multiplexer addresses sessions by name, not by agent id.
func Send(ctx context.Context, targets []Target, sessionPrefix, text string, appendNewline bool, onError OnError) ([]Result, error) {
	var results []Result
	for _, t := range targets {
		err := t.Sess.SendKeys(ctx, t.Agent.HostID, t.Agent.SessionName(sessionPrefix), text, !appendNewline)
		results = append(results, Result{AgentID: t.Agent.ID, Err: err})
		if err != nil && onError == OnErrorAbort {
			return results, fmt.Errorf("message delivery aborted at agent %s: %w", t.Agent.ID, err)
		}
	}
	return results, nil
}
