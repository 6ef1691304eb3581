package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/brojonat/solboard/client"
	"github.com/urfave/cli/v2"
)

func activityCommands() *cli.Command {
	return &cli.Command{
		Name:    "activity",
		Aliases: []string{"txns"},
		Usage:   "Recent transactions of the connected account",
		Subcommands: []*cli.Command{
			activityListCommand(),
			activityPageCommand("more", "Load the next page of transactions", (*client.Client).LoadMore),
			activityPageCommand("reset", "Clear the feed and load the first page again", (*client.Client).ResetActivity),
		},
	}
}

func activityListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Show the transactions loaded so far",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			feed, err := cl.Activity(c.Context)
			if err != nil {
				return err
			}
			return emit(c, feed, func(w io.Writer) {
				if len(feed.Items) == 0 {
					fmt.Fprintf(w, "No transactions loaded\n")
					return
				}
				fmt.Fprintf(w, "Found %d transaction(s) for %s:\n\n", len(feed.Items), feed.Owner)
				for _, txn := range feed.Items {
					printTransaction(w, txn)
				}
				if feed.Exhausted {
					fmt.Fprintf(w, "(no more transactions)\n")
				}
			})
		},
	}
}

func activityPageCommand(name, usage string, load func(*client.Client, context.Context) (*client.Page, error)) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			page, err := load(cl, c.Context)
			if err != nil {
				return err
			}
			return emit(c, page, func(w io.Writer) {
				for _, txn := range page.Entries {
					printTransaction(w, txn)
				}
				if page.Exhausted {
					fmt.Fprintf(w, "(no more transactions)\n")
				}
			})
		},
	}
}

func printTransaction(w io.Writer, txn client.Transaction) {
	fmt.Fprintf(w, "Signature:  %s\n", shortSignature(txn.Signature))
	fmt.Fprintf(w, "Slot:       %d\n", txn.Slot)
	if txn.BlockTime != nil {
		fmt.Fprintf(w, "Block Time: %s\n", txn.BlockTime.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Fee:        %s\n", txn.Fee)
	fmt.Fprintf(w, "Status:     %s\n", txn.Status)
	if txn.Transfer != nil {
		fmt.Fprintf(w, "Transfer:   %s -> %s (%d lamports)\n",
			shortSignature(txn.Transfer.From), shortSignature(txn.Transfer.To), txn.Transfer.Lamports)
	}
	if txn.Memo != nil {
		fmt.Fprintf(w, "Memo:       %s\n", *txn.Memo)
	}
	fmt.Fprintln(w)
}
