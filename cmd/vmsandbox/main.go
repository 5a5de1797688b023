package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// Optional .env for local development; environment always wins.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "vmsandbox",
		Usage: "Gate simulated VM executions served by the node's read API",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the VM call gateway",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "remove",
				Usage:  "Drop the ledger tables",
				Flags:  removeFlags(),
				Action: remove,
			},
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
