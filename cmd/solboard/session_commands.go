package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/brojonat/solboard/client"
	"github.com/urfave/cli/v2"
)

func sessionCommands() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Connect, inspect and disconnect the dashboard account",
		Subcommands: []*cli.Command{
			sessionShowCommand(),
			sessionConnectCommand(),
			sessionDisconnectCommand(),
		},
	}
}

func sessionShowCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show the connected account",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			session, err := cl.Session(c.Context)
			if err != nil {
				return err
			}
			return emit(c, session, func(w io.Writer) { printSession(w, session) })
		},
	}
}

func sessionConnectCommand() *cli.Command {
	return &cli.Command{
		Name:      "connect",
		Usage:     "Connect a watch-only address, or the server keypair when none is given",
		ArgsUsage: "[ADDRESS]",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			session, err := cl.Connect(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			return emit(c, session, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Connected\n")
				printSession(w, session)
			})
		},
	}
}

func sessionDisconnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "disconnect",
		Usage: "Disconnect the current account",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			session, err := cl.Disconnect(c.Context)
			if err != nil {
				return err
			}
			return emit(c, session, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Disconnected\n")
			})
		},
	}
}

func printSession(w io.Writer, s *client.Session) {
	if !s.Connected {
		fmt.Fprintf(w, "Not connected\n")
		return
	}
	fmt.Fprintf(w, "Address:      %s\n", s.Address)
	fmt.Fprintf(w, "Wallet:       %s\n", s.Wallet)
	fmt.Fprintf(w, "Balance:      %s\n", s.Balance.Display)
	fmt.Fprintf(w, "Sign:         %t\n", s.Capabilities.SignMessage)
	fmt.Fprintf(w, "Send:         %t\n", s.Capabilities.SendTransaction)
	if s.Warning != "" {
		fmt.Fprintf(w, "Warning:      %s\n", s.Warning)
	}
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Refresh and show the SOL balance",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			bal, err := cl.Balance(c.Context)
			if err != nil {
				return err
			}
			return emit(c, bal, func(w io.Writer) {
				fmt.Fprintln(w, bal.Display)
			})
		},
	}
}

func tokensCommand() *cli.Command {
	return &cli.Command{
		Name:  "tokens",
		Usage: "Refresh and list token holdings",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			tokens, err := cl.Tokens(c.Context)
			if err != nil {
				return err
			}
			return emit(c, tokens, func(w io.Writer) {
				if len(tokens) == 0 {
					fmt.Fprintf(w, "No tokens found\n")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "SYMBOL\tNAME\tAMOUNT\tMINT")
				for _, t := range tokens {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Symbol, t.Name, t.UIAmount, t.Mint)
				}
				tw.Flush()
			})
		},
	}
}
