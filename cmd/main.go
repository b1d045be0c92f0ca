/*
Package main is the entry point for the accompany chat tools.

It loads configuration, initializes the global logging system and dispatches to one of
three commands: the interactive chat session client, the development backend, and a
helper that mints development access tokens.
*/
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"accompany/internal/configs"
	"accompany/internal/pkg/logx"
)

func main() {
	app := &cli.App{
		Name:  "accompany",
		Usage: "Chat and live-location session client for accompany rooms",
		Before: func(c *cli.Context) error {
			cfg, err := configs.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			logx.InitGlobalLogger(cfg.IsDevelopment() || c.Bool("debug"))
			c.App.Metadata = map[string]any{"config": cfg}
			return nil
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Commands: []*cli.Command{
			chatCommand(),
			devserverCommand(),
			tokenCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

// configFrom returns the configuration loaded in Before.
func configFrom(c *cli.Context) *configs.AppConfig {
	return c.App.Metadata["config"].(*configs.AppConfig)
}
