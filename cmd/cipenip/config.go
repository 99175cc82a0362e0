package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Bataide/cip-enip-driver/internal/config"
	"github.com/Bataide/cip-enip-driver/internal/netdetect"
)

const defaultConfigPath = "cipenip.yaml"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check a configuration file",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		path  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteDefaultConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "config", defaultConfigPath, "Output file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s is valid\n", path)
			if cfg.Endpoint.EnableTarget {
				fmt.Fprintf(out, "  target:     listen on %s", cfg.Endpoint.ListenAddr())
				iface, ok, err := netdetect.InterfaceForListen(cfg.Endpoint.ListenIP)
				switch {
				case err != nil:
					fmt.Fprintf(out, " (warning: %v)", err)
				case ok:
					fmt.Fprintf(out, " (interface %s: %s)", iface.Name, netdetect.AddressString(iface))
				default:
					fmt.Fprint(out, " (all interfaces)")
				}
				fmt.Fprintln(out)
			}
			if cfg.Endpoint.EnableOriginator {
				fmt.Fprintf(out, "  originator: connect to %s\n", cfg.Endpoint.RemoteAddr())
			}
			fmt.Fprintf(out, "  sinks:      %d mqtt, %d kafka, %d valkey\n", len(cfg.MQTT), len(cfg.Kafka), len(cfg.Valkey))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "config", defaultConfigPath, "Configuration file")
	return cmd
}
