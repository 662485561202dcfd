// Command fm is the fleet manager CLI: a root command plus one subcommand
// per primary/secondary command in SPEC_FULL.md §6, matching the teacher's
// cmd/warren/main.go structure (persistent flags, cobra.OnInitialize
// wiring logging, RunE returning a Go error translated into a process
// exit code).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/fleet/fleeterr"
	"github.com/cuemby/fm/pkg/log"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(fleeterr.ExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "fm",
	Short: "fm manages a fleet of AI coding agents across local, container, cloud-sandbox, and SSH hosts",
	Long: `fm creates, watches, and tears down coding-agent sessions spread across
whatever hosts you give it: this machine, ephemeral containers, cloud
sandboxes, or a static inventory of SSH boxes — one tmux session per agent,
one state store per fleet.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("fm version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("root-dir", "", "Fleet state root directory (defaults to ~/.fm)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Address to serve Prometheus metrics on, empty disables")
	rootCmd.PersistentFlags().String("output", "table", "Output format: table, json, jsonl, template")
	rootCmd.PersistentFlags().String("template", "", "Go template for --output template")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(messageCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(limitCmd)
	rootCmd.AddCommand(pluginCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}
