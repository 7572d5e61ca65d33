package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nugget/emoroom/internal/tools"
)

func newToolsCmd(_ *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the agent can call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := tools.NewDefaultRegistry(nil).List()
			w := cmd.OutOrStdout()
			switch output {
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			case "text", "":
			default:
				return fmt.Errorf("unknown output format %q (valid: text, json)", output)
			}

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tEPHEMERAL\tDESCRIPTION")
			for _, t := range list {
				fmt.Fprintf(tw, "%s\t%t\t%s\n", t.Name, t.Ephemeral, t.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text or json)")
	return cmd
}
