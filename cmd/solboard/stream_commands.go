package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solboard/client"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Stream airdrop and transfer outcomes via SSE",
		ArgsUsage: "[ADDRESS]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Stop after this many matching events (0 streams until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			codes := make([]*gojq.Code, 0, len(c.StringSlice("must-jq")))
			for _, filter := range c.StringSlice("must-jq") {
				code, err := compileJQ(filter)
				if err != nil {
					return err
				}
				codes = append(codes, code)
			}

			// Create context that cancels on interrupt
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					cancel()
				case <-ctx.Done():
				}
			}()

			jsonOutput := c.Bool("json")
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "Streaming activity... (Ctrl+C to stop)\n\n")
			}

			limit := c.Int("count")
			seen := 0
			err = cl.StreamActivity(ctx, c.Args().First(), func(ev *client.ActivityEvent) error {
				if !matchesAll(codes, ev) {
					return nil
				}
				if jsonOutput {
					data, err := json.Marshal(ev)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, string(data))
				} else {
					printEvent(c.App.Writer, ev)
				}
				seen++
				if limit > 0 && seen >= limit {
					cancel()
				}
				return nil
			})
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func printEvent(w io.Writer, ev *client.ActivityEvent) {
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintf(w, "Kind:       %s (%s)\n", ev.Kind, ev.Outcome)
	fmt.Fprintf(w, "Wallet:     %s\n", ev.WalletAddress)
	if ev.Counterparty != nil {
		fmt.Fprintf(w, "To:         %s\n", *ev.Counterparty)
	}
	fmt.Fprintf(w, "Amount:     %s SOL\n", ev.Amount)
	if ev.Signature != "" {
		fmt.Fprintf(w, "Signature:  %s\n", shortSignature(ev.Signature))
	}
	fmt.Fprintf(w, "Status:     %s\n", ev.Status)
	fmt.Fprintf(w, "Published:  %s\n", ev.PublishedAt.Format(time.RFC3339))
	fmt.Fprintln(w)
}
