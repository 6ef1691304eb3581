package main

import (
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"
)

func airdropCommand() *cli.Command {
	return &cli.Command{
		Name:      "airdrop",
		Usage:     "Request an airdrop of AMOUNT SOL (devnet and testnet only)",
		ArgsUsage: "AMOUNT",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("amount is required")
			}
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			res, err := cl.Airdrop(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			return emit(c, res, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s\n", res.Status)
				fmt.Fprintf(w, "  Signature: %s\n", res.Signature)
			})
		},
	}
}

func transferCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Aliases:   []string{"send"},
		Usage:     "Send AMOUNT SOL from the connected wallet to RECIPIENT",
		ArgsUsage: "RECIPIENT AMOUNT",
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("recipient and amount are required")
			}
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			res, err := cl.Transfer(c.Context, c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return err
			}
			return emit(c, res, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Transaction confirmed\n")
				fmt.Fprintf(w, "  Amount:    %s SOL\n", res.Amount)
				fmt.Fprintf(w, "  Signature: %s\n", res.Signature)
			})
		},
	}
}

func noticeCommand() *cli.Command {
	return &cli.Command{
		Name:  "notice",
		Usage: "Show the transfer notice, if one is visible",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			n, err := cl.Notice(c.Context)
			if err != nil {
				return err
			}
			return emit(c, n, func(w io.Writer) {
				if !n.Visible {
					fmt.Fprintf(w, "No notice\n")
					return
				}
				fmt.Fprintf(w, "%s\n", n.Status)
				fmt.Fprintf(w, "(shown at %s)\n", n.ShownAt.Format(time.RFC3339))
			})
		},
	}
}
