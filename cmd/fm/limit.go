package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// limitCmd reads and writes the user-scope `[limits]` table directly,
// since fm's configuration is a file a user edits, not a running service
// with its own API (matching settings.toml's role as the single source of
// truth config.Loader merges from).
var limitCmd = &cobra.Command{
	Use:   "limit",
	Short: "Show or set the per-host resource caps create consults",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}

		cpu, cpuSet := flagFloat(cmd, "cpu")
		mem, memSet := flagInt(cmd, "memory")
		disk, diskSet := flagInt(cmd, "disk")
		if !cpuSet && !memSet && !diskSet {
			return renderJSON(app.Config.Limits)
		}

		home, _ := os.UserHomeDir()
		path := filepath.Join(home, ".config", "fm", "settings.toml")
		doc, err := readSettings(path)
		if err != nil {
			return err
		}
		limits, _ := doc["limits"].(map[string]any)
		if limits == nil {
			limits = map[string]any{}
		}
		if cpuSet {
			limits["max_cpu_cores"] = cpu
		}
		if memSet {
			limits["max_memory_bytes"] = mem
		}
		if diskSet {
			limits["max_disk_bytes"] = disk
		}
		doc["limits"] = limits
		if err := writeSettings(path, doc); err != nil {
			return err
		}
		fmt.Println("limits updated")
		return nil
	},
}

func init() {
	limitCmd.Flags().Float64("cpu", 0, "Max CPU cores a new host may request")
	limitCmd.Flags().Int64("memory", 0, "Max memory bytes a new host may request")
	limitCmd.Flags().Int64("disk", 0, "Max disk bytes a new host may request")
}

func flagFloat(cmd *cobra.Command, name string) (float64, bool) {
	if !cmd.Flags().Changed(name) {
		return 0, false
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return v, true
}

func flagInt(cmd *cobra.Command, name string) (int64, bool) {
	if !cmd.Flags().Changed(name) {
		return 0, false
	}
	v, _ := cmd.Flags().GetInt64(name)
	return v, true
}

func readSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func writeSettings(path string, doc map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
