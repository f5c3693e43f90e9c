package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

var version = "1.0.0"

func main() {
	app := &cli.Command{
		Name:    "chatter",
		Usage:   "Group chat backend with realtime rooms and smart replies",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Optional TOML configuration file; environment variables override it",
				Sources: cli.EnvVars("CHATTER_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			tokenCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
