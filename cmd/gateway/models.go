package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"promptgate/internal/registry"
)

func newModelsCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models the gateway can route",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			reg, err := registry.Default(cfg.Aliases)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch output {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(reg.List())
			case "text":
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPROVIDER\tUPSTREAM\tCONFIGURED")
				for _, m := range reg.List() {
					configured := cfg.Providers[m.Provider].APIKey != ""
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", m.ID, m.Provider, m.UpstreamName, configured)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unknown output format %q (text, json)", output)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json)")
	return cmd
}
