package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Bataide/cip-enip-driver/internal/app"
	"github.com/Bataide/cip-enip-driver/internal/events"
)

type runFlags struct {
	configPath string
	logLevel   string
	outputDir  string
	quiet      bool
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the endpoint until interrupted",
		Long: `Run the endpoint described by the configuration file.

With endpoint.enable_target the endpoint listens for peers and reports every
Write Tag it receives. With endpoint.enable_originator it keeps a registered
session to endpoint.remote_ip, reconnecting after failures.

Received tags are forwarded to the configured MQTT, Kafka and Valkey sinks.
Press Ctrl+C to stop.`,
		Example: `  # Run with the default configuration file
  cipenip run

  # Run with a specific file and debug logging
  cipenip run --config ./plant.yaml --log-level debug

  # Keep a pcap trace and metrics of the run
  cipenip run --output-dir ./runs/line1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := app.RunOptions{
				ConfigPath: flags.configPath,
				LogLevel:   flags.logLevel,
				OutputDir:  flags.outputDir,
			}
			if !flags.quiet {
				opts.OnEvent = func(ev events.Event) {
					fmt.Fprintln(os.Stdout, formatEvent(ev))
				}
			}
			return app.RunEndpoint(opts)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", defaultConfigPath, "Configuration file")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Override logging.level (silent, error, info, verbose, debug)")
	cmd.Flags().StringVar(&flags.outputDir, "output-dir", "", "Write trace, metrics, summary and run.json to this directory")
	cmd.Flags().BoolVar(&flags.quiet, "quiet", false, "Do not print events to the console")

	return cmd
}
