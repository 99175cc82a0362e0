package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bataide/cip-enip-driver/internal/app"
	"github.com/Bataide/cip-enip-driver/internal/cip/protocol"
	"github.com/Bataide/cip-enip-driver/internal/config"
	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
)

type sendFlags struct {
	configPath string
	remoteIP   string
	remotePort int
	symbol     string
	dataType   string
	data       string
	values     []string
	timeout    time.Duration
	logLevel   string
}

func newSendCmd() *cobra.Command {
	flags := &sendFlags{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Write one tag to the controller and exit",
		Long: `Register a session with the controller, send one Write Tag request
through the Connection Manager and print the CIP general status.

The payload is given either as raw hex with --data or as one or more
--value arguments encoded for --type.`,
		Example: `  # Write two DINTs as raw little-endian bytes
  cipenip send --remote-ip 10.0.0.5 --symbol RECEIVE --type DINT --data 0100000002000000

  # Write REAL values
  cipenip send --remote-ip 10.0.0.5 --symbol Line.Speed --type REAL --value 12.5 --value 13`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "Configuration file (defaults are used when empty)")
	cmd.Flags().StringVar(&flags.remoteIP, "remote-ip", "", "Controller IP address (overrides endpoint.remote_ip)")
	cmd.Flags().IntVar(&flags.remotePort, "remote-port", 0, "Controller port (overrides endpoint.remote_port)")
	cmd.Flags().StringVar(&flags.symbol, "symbol", "", "Tag name, dotted for members (required)")
	cmd.Flags().StringVar(&flags.dataType, "type", "DINT", "CIP data type (SINT, INT, DINT, LINT, USINT, UINT, UDINT, ULINT, REAL, BYTE, STRING)")
	cmd.Flags().StringVar(&flags.data, "data", "", "Payload as hex bytes")
	cmd.Flags().StringArrayVar(&flags.values, "value", nil, "Value to encode for --type (repeatable)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "Overall timeout for connect, register and write")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "error", "Log level")
	cmd.MarkFlagRequired("symbol")

	return cmd
}

// sendPayload resolves the data type and payload from the flags.
func sendPayload(flags *sendFlags) (protocol.DataType, []byte, error) {
	dt, err := protocol.ParseDataType(strings.ToUpper(flags.dataType))
	if err != nil {
		return 0, nil, err
	}
	if _, ok := dt.Size(); !ok {
		return 0, nil, fmt.Errorf("data type %s cannot be written", dt)
	}

	switch {
	case flags.data != "" && len(flags.values) > 0:
		return 0, nil, fmt.Errorf("use either --data or --value, not both")
	case flags.data != "":
		data, err := hex.DecodeString(strings.ReplaceAll(flags.data, " ", ""))
		if err != nil {
			return 0, nil, fmt.Errorf("invalid --data: %w", err)
		}
		return dt, data, nil
	case len(flags.values) > 0:
		data, err := protocol.EncodeValues(dt, flags.values)
		if err != nil {
			return 0, nil, err
		}
		return dt, data, nil
	default:
		return 0, nil, fmt.Errorf("required flag --data or --value not set")
	}
}

func sendConfig(flags *sendFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if flags.configPath != "" {
		loaded, err := config.LoadConfig(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if flags.remoteIP != "" {
		cfg.Endpoint.RemoteIP = flags.remoteIP
	}
	if flags.remotePort != 0 {
		cfg.Endpoint.RemotePort = flags.remotePort
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	cfg.Endpoint.EnableOriginator = true
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSend(cmd *cobra.Command, flags *sendFlags) error {
	dt, data, err := sendPayload(flags)
	if err != nil {
		return err
	}
	cfg, err := sendConfig(flags)
	if err != nil {
		return err
	}
	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	status, err := app.SendOnce(context.Background(), app.SendOptions{
		Config:   cfg,
		Symbol:   flags.symbol,
		DataType: dt,
		Data:     data,
		Timeout:  flags.timeout,
	}, logger)
	fmt.Fprintln(cmd.OutOrStdout(), formatStatus(flags.symbol, status, err))

	switch {
	case err != nil && cipErrors.KindOf(err) == cipErrors.KindProtocolViolation:
		return cipErrors.WrapCIPError(err, "write tag "+flags.symbol)
	case err != nil:
		return cipErrors.WrapNetworkError(err, cfg.Endpoint.RemoteIP, cfg.Endpoint.RemotePort)
	case status != 0:
		return cipErrors.WrapCIPError(fmt.Errorf("status 0x%02X (%s)", status, protocol.StatusName(status)), "write tag "+flags.symbol)
	}
	return nil
}
