// Command eventlog inspects an orderbus deployment: stored customer history,
// the effective routing table and the live forwarded event stream.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var jsonOutput bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "eventlog <command>",
		Short:         "Inspect orderbus events and routing",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	root.AddCommand(newHistoryCmd())
	root.AddCommand(newRoutesCmd())
	root.AddCommand(newTailCmd())

	return root
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
