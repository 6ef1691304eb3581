package main

import (
	"fmt"
	"io"

	"github.com/brojonat/solboard/client"
	"github.com/urfave/cli/v2"
)

func messageCommands() *cli.Command {
	return &cli.Command{
		Name:  "message",
		Usage: "Sign a message with the connected wallet and verify it",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the sign/verify state",
				Action: func(c *cli.Context) error {
					cl, err := newClient(c)
					if err != nil {
						return err
					}
					state, err := cl.MessageState(c.Context)
					if err != nil {
						return err
					}
					return emit(c, state, func(w io.Writer) { printMessageState(w, state) })
				},
			},
			{
				Name:      "sign",
				Usage:     "Sign MESSAGE",
				ArgsUsage: "MESSAGE",
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return fmt.Errorf("message is required")
					}
					cl, err := newClient(c)
					if err != nil {
						return err
					}
					state, err := cl.Sign(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					return emit(c, state, func(w io.Writer) { printMessageState(w, state) })
				},
			},
			{
				Name:      "verify",
				Usage:     "Verify the stored signature, optionally against an edited MESSAGE",
				ArgsUsage: "[MESSAGE]",
				Action: func(c *cli.Context) error {
					cl, err := newClient(c)
					if err != nil {
						return err
					}
					var message *string
					if c.NArg() > 0 {
						m := c.Args().First()
						message = &m
					}
					state, err := cl.Verify(c.Context, message)
					if err != nil {
						return err
					}
					return emit(c, state, func(w io.Writer) { printMessageState(w, state) })
				},
			},
		},
	}
}

func printMessageState(w io.Writer, s *client.MessageState) {
	fmt.Fprintf(w, "State:     %s\n", s.State)
	if s.Message != "" {
		fmt.Fprintf(w, "Message:   %s\n", s.Message)
	}
	if s.Signature != "" {
		fmt.Fprintf(w, "Signature: %s\n", s.Signature)
	}
	if s.Status != "" {
		fmt.Fprintf(w, "Status:    %s\n", s.Status)
	}
}
