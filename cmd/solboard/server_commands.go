package main

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			if err := cl.Health(c.Context); err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Server is healthy\n")
			fmt.Fprintf(c.App.Writer, "  URL: %s\n", c.String("server-url"))
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show CLI and server version information",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}
			server, err := cl.Version(c.Context)
			if err != nil {
				return err
			}
			info := map[string]any{
				"cli":    map[string]string{"version": version, "commit": commit, "built": date},
				"server": server,
			}
			return emit(c, info, func(w io.Writer) {
				fmt.Fprintf(w, "solboard CLI\n")
				fmt.Fprintf(w, "  Version: %s\n", version)
				fmt.Fprintf(w, "  Commit:  %s\n", commit)
				fmt.Fprintf(w, "  Built:   %s\n", date)
				fmt.Fprintf(w, "solboard server\n")
				fmt.Fprintf(w, "  Version: %s\n", server.Version)
				fmt.Fprintf(w, "  Commit:  %s\n", server.Commit)
			})
		},
	}
}
