package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/fleet/enumerator"
)

// rowView is the flattened, redacted shape emitted to JSON/template output
// — agent env is run through RedactedEnv so a list/exec dump never leaks a
// secret-looking value to a terminal or log aggregator.
type rowView struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	HostID         string            `json:"host_id"`
	HostName       string            `json:"host_name"`
	Provider       string            `json:"provider"`
	State          string            `json:"state"`
	EffectiveState string            `json:"effective_state"`
	Project        string            `json:"project,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
}

func toView(r enumerator.Row) rowView {
	return rowView{
		ID:             r.Agent.ID,
		Name:           r.Agent.Name,
		HostID:         r.Host.ID,
		HostName:       r.Host.Name,
		Provider:       string(r.Host.Provider),
		State:          string(r.Agent.State),
		EffectiveState: string(r.Effective),
		Project:        r.Agent.Project,
		Labels:         r.Agent.Labels,
		Env:            r.Agent.RedactedEnv(),
	}
}

// renderRows prints rows in the --output-selected format: human table,
// one JSON array, one-JSON-object-per-line stream, or a user Go template
// applied once per row (§4.8's "multiple output forms").
func renderRows(cmd *cobra.Command, rows []enumerator.Row) error {
	format, _ := cmd.Flags().GetString("output")
	views := make([]rowView, len(rows))
	for i, r := range rows {
		views[i] = toView(r)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(views)

	case "jsonl":
		enc := json.NewEncoder(os.Stdout)
		for _, v := range views {
			if err := enc.Encode(v); err != nil {
				return err
			}
		}
		return nil

	case "template":
		tmplText, _ := cmd.Flags().GetString("template")
		if tmplText == "" {
			return fmt.Errorf("--output template requires --template")
		}
		tmpl, err := template.New("row").Parse(tmplText)
		if err != nil {
			return fmt.Errorf("parse template: %w", err)
		}
		for _, v := range views {
			if err := tmpl.Execute(os.Stdout, v); err != nil {
				return err
			}
			fmt.Println()
		}
		return nil

	default:
		return renderTable(views)
	}
}

func renderTable(views []rowView) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tHOST\tPROVIDER\tSTATE\tEFFECTIVE")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", v.Name, v.ID, v.HostName, v.Provider, v.State, v.EffectiveState)
	}
	return w.Flush()
}

// renderJSON marshals an arbitrary single value as pretty JSON to stdout,
// used by the config, limit and plugin commands; it prints JSON whatever
// --output says.
func renderJSON(v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	fmt.Print(buf.String())
	return nil
}
