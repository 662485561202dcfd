// Package config implements fm's layered configuration: built-in defaults,
// user-scope file, project-scope file, local-scope file, environment
// overrides, then CLI flags, in that precedence order (low to high). It is
// grounded on the layered viper.Viper-per-scope plus mapstructure-unmarshal
// shape used by the kdlbs-kandev example repo's internal/common/config
// package, adapted from that repo's single-file YAML load into FM's
// six-level TOML precedence chain with per-field provenance tracking
// (SPEC_FULL.md property L4).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Scope names one precedence level. Scopes earlier in Order are
// overridden by scopes later in Order.
type Scope string

const (
	ScopeDefault Scope = "default"
	ScopeUser    Scope = "user"
	ScopeProject Scope = "project"
	ScopeLocal   Scope = "local"
	ScopeEnv     Scope = "env"
	ScopeFlag    Scope = "flag"
)

// Order is the precedence chain, lowest first.
var Order = []Scope{ScopeDefault, ScopeUser, ScopeProject, ScopeLocal, ScopeEnv, ScopeFlag}

const envPrefix = "FM"

// CommandConfig holds the per-command settings a profile can override
// (the `[commands.create]` etc. tables in settings.toml).
type CommandConfig struct {
	Provider           string   `mapstructure:"provider" toml:"provider"`
	Image              string   `mapstructure:"image" toml:"image"`
	IdleMode           string   `mapstructure:"idle_mode" toml:"idle_mode"`
	IdleTimeoutSeconds int      `mapstructure:"idle_timeout_seconds" toml:"idle_timeout_seconds"`
	Permissions        []string `mapstructure:"permissions" toml:"permissions"`
}

// Limits holds the per-host resource caps that the `limit` command shows
// and writes to the user settings file. create passes them unchanged as
// the new host's requested HostTarget.Resources; no command checks a
// request against them.
type Limits struct {
	MaxCPUCores    float64 `mapstructure:"max_cpu_cores" toml:"max_cpu_cores"`
	MaxMemoryBytes int64   `mapstructure:"max_memory_bytes" toml:"max_memory_bytes"`
	MaxDiskBytes   int64   `mapstructure:"max_disk_bytes" toml:"max_disk_bytes"`
}

// Config is the fully merged, typed settings FM runs with. Fields carry
// both mapstructure tags (viper's Unmarshal) and toml tags (marshaling the
// built-in defaults into the same flattened key space the file and env
// scopes use), so all six precedence scopes agree on one key naming.
type Config struct {
	RootDir       string                   `mapstructure:"root_dir" toml:"root_dir"`
	LogLevel      string                   `mapstructure:"log_level" toml:"log_level"`
	LogJSON       bool                     `mapstructure:"log_json" toml:"log_json"`
	MetricsAddr   string                   `mapstructure:"metrics_addr" toml:"metrics_addr"`
	SessionPrefix string                   `mapstructure:"session_prefix" toml:"session_prefix"`
	Commands      map[string]CommandConfig `mapstructure:"commands" toml:"commands"`
	Limits        Limits                   `mapstructure:"limits" toml:"limits"`
}

func defaults() Config {
	return Config{
		RootDir:       defaultRootDir(),
		LogLevel:      "info",
		LogJSON:       false,
		SessionPrefix: "fm-",
		Commands:      map[string]CommandConfig{},
		Limits:        Limits{},
	}
}

func defaultRootDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fm"
	}
	return filepath.Join(home, ".fm")
}

// Loader builds the merged Config, keeping one viper.Viper per scope so
// Provenance can report which scope last set a given key.
type Loader struct {
	scopes map[Scope]*viper.Viper
}

// NewLoader creates a Loader seeded with built-in defaults.
func NewLoader() *Loader {
	l := &Loader{scopes: make(map[Scope]*viper.Viper, len(Order))}
	for _, s := range Order {
		l.scopes[s] = viper.New()
	}
	d := defaults()
	defaultMap, err := toMap(d)
	if err == nil {
		for k, v := range defaultMap {
			l.scopes[ScopeDefault].Set(k, v)
		}
	}
	return l
}

// LoadFile merges a TOML file into the given scope. A missing file is not
// an error: user/project/local config files are all optional.
func (l *Loader) LoadFile(scope Scope, path string) error {
	v, ok := l.scopes[scope]
	if !ok {
		return fmt.Errorf("config: unknown scope %q", scope)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return v.MergeConfigMap(raw)
}

// BindEnv applies FM_-prefixed environment overrides, including the
// command-scoped FM_COMMANDS_<COMMAND>_<PARAM> form. AutomaticEnv alone
// can't express the nested commands.<name>.<field> shape, so the command
// form is parsed explicitly from the process environment.
func (l *Loader) BindEnv() {
	v := l.scopes[ScopeEnv]
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	prefix := envPrefix + "_COMMANDS_"
	for _, kv := range os.Environ() {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		parts := strings.SplitN(rest, "_", 2)
		if len(parts) != 2 {
			continue
		}
		command := strings.ToLower(parts[0])
		param := strings.ToLower(parts[1])
		settingKey := fmt.Sprintf("commands.%s.%s", command, param)
		if val == "" {
			v.Set(settingKey, nil) // empty clears a list, per §6
			continue
		}
		v.Set(settingKey, val)
	}
}

// BindFlags layers a command's explicitly-set flags as the
// highest-precedence scope, matching the teacher's cobra root-command
// flag-binding idiom generalized from per-subcommand viper.BindPFlag calls
// to a single pass over every flag the invocation actually set. Flags the
// user didn't pass are left to lower scopes, since their zero value would
// otherwise incorrectly shadow a file- or env-set value.
func (l *Loader) BindFlags(cmd *cobra.Command) error {
	v := l.scopes[ScopeFlag]
	var bindErr error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("config: bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// Resolve merges every scope in precedence order and unmarshals the
// result into a typed Config, recording per-key provenance along the way.
func (l *Loader) Resolve() (*Config, map[string]Scope, error) {
	merged := viper.New()
	provenance := make(map[string]Scope)
	for _, s := range Order {
		v := l.scopes[s]
		for _, key := range v.AllKeys() {
			val := v.Get(key)
			merged.Set(key, val)
			provenance[key] = s
		}
	}
	var cfg Config
	if err := merged.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config: unmarshal merged settings: %w", err)
	}
	if cfg.RootDir == "" {
		cfg.RootDir = defaultRootDir()
	}
	return &cfg, provenance, nil
}

func toMap(cfg Config) (map[string]any, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ProfilePaths returns the three on-disk settings files FM checks, in
// precedence order, for a given profile id: the user and project
// settings.toml, then .fm.toml in the working directory (see §6 persisted
// layout).
func ProfilePaths(rootDir, profileID string) (user, project, local string) {
	home, _ := os.UserHomeDir()
	user = filepath.Join(home, ".config", "fm", "settings.toml")
	project = filepath.Join(rootDir, "profiles", profileID, "settings.toml")
	wd, _ := os.Getwd()
	local = filepath.Join(wd, ".fm.toml")
	return user, project, local
}
