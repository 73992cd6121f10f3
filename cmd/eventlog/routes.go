package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dejobratic/orderbus/internal/config"
	"github.com/spf13/cobra"
)

func newRoutesCmd() *cobra.Command {
	var (
		path    string
		forward bool
		asTOML  bool
	)

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Validate and print the effective routing table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			routing, err := config.LoadRouting(path, forward)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case asTOML:
				return routing.Encode(out)
			case jsonOutput:
				return printJSON(out, routing)
			default:
				return printRoutes(out, routing)
			}
		},
	}

	cmd.Flags().StringVar(&path, "config", envOrDefault("ROUTING_CONFIG_PATH", ""), "routing TOML file (defaults are used when empty)")
	cmd.Flags().BoolVar(&forward, "forward", false, "include the NATS forwarding rule in the defaults")
	cmd.Flags().BoolVar(&asTOML, "toml", false, "print the routing as TOML")

	return cmd
}

func printRoutes(w io.Writer, routing *config.Routing) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "RULE\tSOURCE PREFIX\tDETAIL TYPES\tTARGET")
	for _, r := range routing.Rules {
		prefix := r.SourcePrefix
		if prefix == "" {
			prefix = "*"
		}
		types := "*"
		if len(r.DetailTypes) > 0 {
			types = strings.Join(r.DetailTypes, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, prefix, types, r.Target)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "STORE\tDETAIL TYPE\tRETAILER\tTARGET")
	for _, r := range routing.Retailers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.StoreID, r.DetailType, r.DisplayName(), r.Target())
	}

	return tw.Flush()
}
