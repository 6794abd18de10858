package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/jerrsapps1/opssync/internal/client"
	"github.com/jerrsapps1/opssync/internal/model"
	"github.com/jerrsapps1/opssync/internal/reconcile"
	"github.com/jerrsapps1/opssync/internal/ui"
	"github.com/spf13/cobra"
)

var statusStyle = ui.NewStyler(os.Stderr)

func statusLine(msg string) {
	fmt.Fprintln(os.Stderr, statusStyle.Dim(msg))
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live assignment changes, resuming across disconnects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		rec := reconcile.New(api, reconcile.Options{
			Notifier: notifierFunc(statusLine),
		})

		// Bootstrap: fetch the roster and seed the stream cursor from its
		// consistency point.
		if err := rec.Resync(ctx); err != nil {
			return fmt.Errorf("initial roster fetch: %w", err)
		}
		fmt.Printf("watching %d entities from seq %d\n", rec.Cache().Len(), rec.LastSeq())

		sc := client.NewStreamClient(serverURL, authToken, client.StreamOptions{
			OnStateChange: func(s client.ConnState) {
				switch s {
				case client.ConnBackoff:
					statusLine("disconnected, reconnecting...")
				case client.ConnLive:
					statusLine("connected")
				}
			},
		})
		sc.SetCursor(rec.LastSeq())

		// Expire abandoned optimistic mutations in the background.
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					rec.ExpireStale(ctx)
				}
			}
		}()

		err := sc.Run(ctx, func(ev model.AssignmentEvent) {
			rec.ApplyEvent(ctx, ev)
			printEvent(ev)
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

// notifierFunc adapts a plain function to the reconcile.Notifier interface.
type notifierFunc func(string)

func (f notifierFunc) Notify(message string) { f(message) }
