// Package idle implements the Idle Supervisor (C9): a single supervisor
// that, on each tick, reads the activity-file mtimes of every running
// agent's host and invokes the orchestrator's stop path for an agent when
// every signal the agent's idle mode counts has gone stale. There is no
// separate watcher per host; a host stops through StopAgent when its last
// running agent stops. The
// periodic-ticker-plus-threshold-comparison shape (goroutine, time.Ticker,
// compare time.Since(lastSeen) against a deadline) is grounded on the
// teacher's pkg/reconciler/reconciler.go reconcileNodes heartbeat-staleness
// check and its own Start/Stop/run goroutine lifecycle.
package idle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/fm/pkg/fleet/events"
	"github.com/cuemby/fm/pkg/fleet/storage"
	"github.com/cuemby/fm/pkg/fleet/types"
)

// Stopper is the subset of the orchestrator's surface the supervisor
// needs: stopping an agent exactly as a user-issued stop would.
type Stopper interface {
	StopAgent(ctx context.Context, hostID, agentID string) error
}

// Supervisor watches every running agent's host for idleness.
type Supervisor struct {
	store    *storage.Store
	stopper  Stopper
	broker   *events.Broker
	logger   zerolog.Logger
	interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
}

func New(store *storage.Store, stopper Stopper, broker *events.Broker, logger zerolog.Logger, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Supervisor{store: store, stopper: stopper, broker: broker, logger: logger, interval: interval}
}

// Start begins the background watch loop.
func (s *Supervisor) Start() {
	s.mu.Lock()
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()
	go s.run(stopCh)
}

// Stop ends the watch loop.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

func (s *Supervisor) run(stopCh chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Msg("idle supervisor started")
	for {
		select {
		case <-ticker.C:
			if err := s.sweep(context.Background()); err != nil {
				s.logger.Error().Err(err).Msg("idle sweep failed")
			}
		case <-stopCh:
			s.logger.Info().Msg("idle supervisor stopped")
			return
		}
	}
}

// sweep checks every running agent's host idleness and stops any host
// whose enabled signals have all gone stale past idle_timeout_seconds.
func (s *Supervisor) sweep(ctx context.Context) error {
	agents, err := s.store.ListAllAgents()
	if err != nil {
		return err
	}
	now := time.Now()
	for _, agent := range agents {
		if agent.State != types.AgentRunning || agent.IdleMode == types.IdleModeDisabled {
			continue
		}
		idle, err := s.isIdle(agent, now)
		if err != nil {
			s.logger.Warn().Err(err).Str("agent_id", agent.ID).Msg("idle check failed")
			continue
		}
		if !idle {
			continue
		}
		s.logger.Info().Str("agent_id", agent.ID).Str("host_id", agent.HostID).Msg("idle timeout fired")
		if s.broker != nil {
			s.broker.Publish(&events.Event{Type: events.IdleFired, HostID: agent.HostID, AgentID: agent.ID})
		}
		if err := s.stopper.StopAgent(ctx, agent.HostID, agent.ID); err != nil {
			s.logger.Error().Err(err).Str("agent_id", agent.ID).Msg("idle stop failed")
		}
	}
	return nil
}

// isIdle checks every activity kind the agent's idle mode counts; the
// agent is idle only if every one of them has been stale past the
// timeout. A signal that has never fired (zero mtime) counts as stale
// from the agent's created_at.
func (s *Supervisor) isIdle(agent *types.Agent, now time.Time) (bool, error) {
	timeout := time.Duration(agent.IdleTimeoutSeconds) * time.Second
	if timeout <= 0 {
		return false, nil
	}
	for _, kind := range types.IdleModeSignals(agent.IdleMode) {
		ts, err := s.store.ActivityTime(agent.HostID, kind)
		if err != nil {
			return false, err
		}
		if ts.IsZero() {
			ts = agent.CreatedAt
		}
		if now.Sub(ts) < timeout {
			return false, nil
		}
	}
	return true, nil
}
