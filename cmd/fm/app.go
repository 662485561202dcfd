package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/config"
	"github.com/cuemby/fm/pkg/fleet/enumerator"
	"github.com/cuemby/fm/pkg/fleet/events"
	"github.com/cuemby/fm/pkg/fleet/gc"
	"github.com/cuemby/fm/pkg/fleet/idle"
	"github.com/cuemby/fm/pkg/fleet/orchestrator"
	"github.com/cuemby/fm/pkg/fleet/provider"
	"github.com/cuemby/fm/pkg/fleet/storage"
	"github.com/cuemby/fm/pkg/fleet/types"
	"github.com/cuemby/fm/pkg/log"
	"github.com/cuemby/fm/pkg/metrics"
)

// App bundles every wired dependency a subcommand needs. It is built once
// per invocation from the resolved Config, following the teacher's
// main.go pattern of constructing its manager/scheduler/reconciler trio
// inline in each command rather than through a shared container type —
// generalized here into one helper since FM's commands share far more
// wiring (store, ports, orchestrator, enumerator) than warren's cluster
// subcommands did.
type App struct {
	Config   *config.Config
	Store    *storage.Store
	Ports    map[types.ProviderKind]provider.Port
	Broker   *events.Broker
	Orch     *orchestrator.Orchestrator
	Enum     *enumerator.Enumerator
	Provenance map[string]config.Scope
}

// rootName defaults to the base name of the root dir; FM_ROOT_NAME
// overrides it so operators can run multiple fleets against distinct root
// dirs without any two providers' tagged resources colliding.
func rootName(rootDir string) string {
	if v := os.Getenv("FM_ROOT_NAME"); v != "" {
		return v
	}
	return filepath.Base(rootDir)
}

// resolveConfig implements the two-pass config bootstrap: first resolve
// with only defaults/user-file/env/flags to learn RootDir, then load the
// project- and local-scope files that live under that RootDir and resolve
// again. This breaks the chicken-and-egg problem of RootDir itself being
// an overridable setting that also names where to look for two of the
// six scopes' files.
func resolveConfig(cmd *cobra.Command) (*config.Config, map[string]config.Scope, error) {
	l := config.NewLoader()

	home, _ := os.UserHomeDir()
	userPath := filepath.Join(home, ".config", "fm", "settings.toml")
	if err := l.LoadFile(config.ScopeUser, userPath); err != nil {
		return nil, nil, fmt.Errorf("load user config: %w", err)
	}
	l.BindEnv()
	if err := l.BindFlags(cmd); err != nil {
		return nil, nil, err
	}

	prelim, _, err := l.Resolve()
	if err != nil {
		return nil, nil, err
	}

	user, project, local := config.ProfilePaths(prelim.RootDir, "default")
	_ = user // already loaded above; ProfilePaths recomputes it for documentation parity
	if err := l.LoadFile(config.ScopeProject, project); err != nil {
		return nil, nil, fmt.Errorf("load project config: %w", err)
	}
	if err := l.LoadFile(config.ScopeLocal, local); err != nil {
		return nil, nil, fmt.Errorf("load local config: %w", err)
	}

	return l.Resolve()
}

// buildApp wires the full dependency graph for one CLI invocation: config,
// state store, every Provider Port variant that can be constructed in
// this environment, the event broker, the orchestrator, and the
// enumerator. Providers that fail to construct (no containerd socket, for
// instance) are logged and simply omitted from Ports rather than failing
// the whole command, since most commands only ever touch one provider.
func buildApp(cmd *cobra.Command) (*App, error) {
	cfg, prov, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.RootDir)
	if err != nil {
		return nil, err
	}

	root := rootName(cfg.RootDir)
	ports := map[types.ProviderKind]provider.Port{
		types.ProviderLocal:       provider.NewLocalProvider(),
		types.ProviderCloudSandbox: provider.NewCloudSandboxProvider(cfg.RootDir),
		types.ProviderSecureShell: provider.NewSSHHostProvider(nil),
	}
	if cp, err := provider.NewContainerProvider("", root); err != nil {
		log.Logger.Debug().Err(err).Msg("container provider unavailable, omitting from this invocation")
	} else {
		ports[types.ProviderContainer] = cp
	}

	broker := events.NewBroker()
	broker.Start()

	orch := orchestrator.New(orchestrator.Config{
		Store:         store,
		Ports:         ports,
		Broker:        broker,
		RootName:      root,
		SessionPrefix: cfg.SessionPrefix,
	})
	enum := enumerator.New(store, ports, root)

	if cfg.MetricsAddr != "" {
		startMetricsServer(cfg.MetricsAddr, store, log.WithComponent("metrics"))
	}

	return &App{Config: cfg, Store: store, Ports: ports, Broker: broker, Orch: orch, Enum: enum, Provenance: prov}, nil
}

func startMetricsServer(addr string, store *storage.Store, logger zerolog.Logger) {
	collector := metrics.NewCollector(store)
	collector.Start()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics endpoint serving")
}

// newIdleSupervisor wires the idle supervisor's Stopper to this
// invocation's orchestrator. No command in this package calls it, so no
// command starts the idle supervisor.
func newIdleSupervisor(app *App) *idle.Supervisor {
	return idle.New(app.Store, app.Orch, app.Broker, log.WithComponent("idle"), 0)
}

// resolveAgent finds an agent by name or id, scanning every host the way
// the teacher's GetXByName linear scan does for nodes/services.
func resolveAgent(app *App, nameOrID string) (*types.Agent, error) {
	if a, err := app.Store.FindAgentByName(nameOrID); err == nil {
		return a, nil
	}
	agents, err := app.Store.ListAllAgents()
	if err != nil {
		return nil, err
	}
	for _, a := range agents {
		if a.ID == nameOrID {
			return a, nil
		}
	}
	return nil, fmt.Errorf("agent %q not found", nameOrID)
}

// gcCollector builds a gc.Collector bound to this invocation's app.
func gcCollector(app *App) *gc.Collector {
	return gc.New(app.Store, app.Ports, app.Broker, log.WithComponent("gc"), rootName(app.Config.RootDir))
}
