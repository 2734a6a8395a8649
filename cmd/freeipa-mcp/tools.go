package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/ipatools"
)

type toolSummary struct {
	Name        ipatools.Name `json:"name"`
	Description string        `json:"description"`
	SessionFree bool          `json:"session_free"`
	InputSchema any           `json:"input_schema,omitempty"`
}

func newToolsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the available tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			catalog := ipatools.Catalog()
			if !asJSON {
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, spec := range catalog {
					if _, err := fmt.Fprintf(w, "%s\t%s\n", spec.Name, spec.Description); err != nil {
						return err
					}
				}
				return w.Flush()
			}

			summaries := make([]toolSummary, 0, len(catalog))
			for _, spec := range catalog {
				schema, err := spec.InputSchema()
				if err != nil {
					return fmt.Errorf("schema for %s: %w", spec.Name, err)
				}
				summaries = append(summaries, toolSummary{
					Name:        spec.Name,
					Description: spec.Description,
					SessionFree: spec.SessionFree,
					InputSchema: schema,
				})
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(summaries)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print tools with their input schemas as JSON")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}
