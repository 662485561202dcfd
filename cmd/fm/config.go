package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration and which scope set each value",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		view, _ := cmd.Flags().GetString("key")
		if view != "" {
			scope, ok := app.Provenance[view]
			if !ok {
				return fmt.Errorf("unknown config key %q", view)
			}
			fmt.Printf("%s = (set by %s)\n", view, scope)
			return nil
		}
		return renderJSON(struct {
			Config     interface{}       `json:"config"`
			Provenance map[string]string `json:"provenance"`
		}{
			Config:     app.Config,
			Provenance: scopeNames(app.Provenance),
		})
	},
}

func init() {
	configCmd.Flags().String("key", "", "Show only one key's resolving scope")
}

func scopeNames(p map[string]config.Scope) map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = string(v)
	}
	return out
}
