package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dejobratic/orderbus/internal/events"
	"github.com/dejobratic/orderbus/internal/messaging"
	"github.com/spf13/cobra"
)

func newTailCmd() *cobra.Command {
	var (
		natsURL string
		prefix  string
		source  string
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow events forwarded to NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			nc, err := messaging.Connect(natsURL, "orderbus-eventlog", nil)
			if err != nil {
				return err
			}
			defer nc.Close()

			subject := tailSubject(prefix, source)
			stderr := cmd.ErrOrStderr()
			tail, err := messaging.NewTail(nc, subject, messaging.WithSkipHandler(func(subject string, err error) {
				fmt.Fprintf(stderr, "skipping message on %s: %v\n", subject, err)
			}))
			if err != nil {
				return err
			}

			fmt.Fprintf(stderr, "Following %s on %s\n", subject, nc.ConnectedUrl())

			out := cmd.OutOrStdout()
			return tail.Run(cmd.Context(), func(subject string, event events.Event) error {
				if jsonOutput {
					return printJSON(out, event)
				}
				return printEvent(out, subject, event)
			})
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats-url", envOrDefault("NATS_URL", "nats://127.0.0.1:4222"), "NATS server URL")
	cmd.Flags().StringVar(&prefix, "prefix", envOrDefault("NATS_SUBJECT_PREFIX", "orderbus"), "subject prefix events are forwarded under")
	cmd.Flags().StringVar(&source, "source", "", "only follow events from this source")

	return cmd
}

// tailSubject matches what the forwarder publishes: <prefix>.<source>.<detail-type>.
func tailSubject(prefix, source string) string {
	var base string
	if source == "" {
		base = messaging.Subject(prefix)
	} else {
		base = messaging.Subject(prefix, source)
	}
	wildcard := ">"
	if source != "" {
		wildcard = "*"
	}
	if base == "" {
		return wildcard
	}
	return base + "." + wildcard
}

func printEvent(w io.Writer, subject string, event events.Event) error {
	_, err := fmt.Fprintf(w, "%s  %-12s %-16s %s %v\n",
		event.OccurredAt.Format(time.RFC3339Nano), event.Source, event.DetailType, subject, map[string]any(event.Detail))
	return err
}
