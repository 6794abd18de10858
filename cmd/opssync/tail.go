package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/jerrsapps1/opssync/internal/events"
	"github.com/jerrsapps1/opssync/internal/model"
	natsgo "github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

// tailCmd follows raw events straight off the broker, bypassing the HTTP
// stream. Useful for operators debugging the bus; unlike watch it has no
// cursor, so missed events are simply missed.
var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow raw events directly from NATS (no resume)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats-url")
		if natsURL == "" {
			natsURL = os.Getenv("OPSSYNC_NATS_URL")
		}
		if natsURL == "" {
			return fmt.Errorf("no NATS URL: pass --nats-url or set OPSSYNC_NATS_URL")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		sub, err := events.NewNATSSubscriber(natsURL,
			natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
				statusLine(fmt.Sprintf("nats: disconnected: %v", err))
			}),
			natsgo.ReconnectHandler(func(_ *natsgo.Conn) {
				statusLine("nats: reconnected")
			}),
		)
		if err != nil {
			return err
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(events.TopicAll)
		if err != nil {
			return err
		}
		defer cancel()

		statusLine("tailing " + events.TopicAll)
		for {
			select {
			case <-ctx.Done():
				return nil
			case data := <-ch:
				var ev model.AssignmentEvent
				if err := json.Unmarshal(data, &ev); err != nil {
					statusLine(fmt.Sprintf("skipping malformed event: %v", err))
					continue
				}
				printEvent(ev)
			}
		}
	},
}

func init() {
	tailCmd.Flags().String("nats-url", "", "NATS server URL (defaults to OPSSYNC_NATS_URL)")
}
