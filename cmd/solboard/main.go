package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "solboard",
		Usage: "Solana account dashboard CLI",
		Description: `A command-line client for the solboard server.

Use this CLI to connect an account, inspect its balance, tokens and activity,
sign and verify messages, and request airdrops or send transfers.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			sessionCommands(),
			balanceCommand(),
			tokensCommand(),
			activityCommands(),
			messageCommands(),
			airdropCommand(),
			transferCommand(),
			noticeCommand(),
			streamCommand(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Aliases: []string{"s"},
				Usage:   "Dashboard server URL",
				EnvVars: []string{"SOLBOARD_SERVER_URL", "SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 2 * time.Minute,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter applied to the JSON output (implies --json)",
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
