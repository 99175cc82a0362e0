package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/artifact"
	"github.com/Bataide/cip-enip-driver/internal/cip/protocol"
	"github.com/Bataide/cip-enip-driver/internal/config"
	"github.com/Bataide/cip-enip-driver/internal/events"
	"github.com/Bataide/cip-enip-driver/internal/logging"
	"github.com/Bataide/cip-enip-driver/internal/metrics"
)

// RunOptions configure RunEndpoint.
type RunOptions struct {
	ConfigPath string
	LogLevel   string // overrides logging.level when set
	// OutputDir, when set, receives the trace, metrics, summary and
	// run.json of the run, replacing the trace and metrics paths of the
	// configuration.
	OutputDir string
	OnEvent   events.Handler
}

// NewLogger creates the logger described by cfg.
func NewLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLoggerWithOptions(level, cfg.File, cfg.Format, cfg.LogEvery)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

// RunEndpoint loads the configuration, opens an endpoint and runs it until
// SIGINT or SIGTERM.
func RunEndpoint(opts RunOptions) error {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	listen, remote := "(disabled)", "(disabled)"
	if cfg.Endpoint.EnableTarget {
		listen = cfg.Endpoint.ListenAddr()
	}
	if cfg.Endpoint.EnableOriginator {
		remote = cfg.Endpoint.RemoteAddr()
	}
	logger.LogStartup(listen, remote, opts.ConfigPath)

	var output *artifact.OutputManager
	if opts.OutputDir != "" {
		output, err = artifact.NewOutputManager(opts.OutputDir)
		if err != nil {
			return err
		}
		cfg.Trace.PcapFile = output.TracePath()
		cfg.Metrics.CSVFile = output.MetricsCSVPath()
		cfg.Metrics.JSONFile = output.MetricsJSONPath()
		var listenAddr, remoteAddr string
		if cfg.Endpoint.EnableTarget {
			listenAddr = listen
		}
		if cfg.Endpoint.EnableOriginator {
			remoteAddr = remote
		}
		output.SetEndpoint(listenAddr, remoteAddr, opts.ConfigPath)
	}

	ep := NewEndpoint(cfg, logger)
	if opts.OnEvent != nil {
		ep.Events(opts.OnEvent)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := runUntilDone(ctx, ep, listen, remote)
	summary := ep.MetricsSummary()
	fmt.Fprintln(os.Stdout, metrics.FormatSummary(summary))

	if output != nil {
		if err := output.Finalize(summary, runErr); err != nil {
			logger.Error("finalize run artifacts: %v", err)
		} else {
			fmt.Fprintf(os.Stdout, "Run artifacts written to %s\n", output.OutputDir())
		}
	}
	return runErr
}

func runUntilDone(ctx context.Context, ep *Endpoint, listen, remote string) error {
	if err := ep.Open(ctx); err != nil {
		return fmt.Errorf("open endpoint: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Endpoint running (target %s, originator %s)\n", listen, remote)

	<-ctx.Done()
	fmt.Fprintf(os.Stdout, "\nShutting down endpoint...\n")

	if err := ep.Close(); err != nil {
		return fmt.Errorf("close endpoint: %w", err)
	}
	return nil
}

// SendOptions configure SendOnce.
type SendOptions struct {
	Config   *config.Config
	Symbol   string
	DataType protocol.DataType
	Data     []byte
	Timeout  time.Duration // bounds connect, register and write together
}

// SendOnce registers a session with the configured controller, writes one
// tag and closes. Only the originator runs; the target, API and sinks are
// left off.
func SendOnce(ctx context.Context, opts SendOptions, logger *logging.Logger) (uint8, error) {
	cfg := *opts.Config
	cfg.Endpoint.EnableOriginator = true
	cfg.Endpoint.EnableTarget = false
	cfg.API.Enabled = false
	cfg.MQTT, cfg.Kafka, cfg.Valkey = nil, nil, nil

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ep := NewEndpoint(&cfg, logger)
	if err := ep.Open(ctx); err != nil {
		return 0, err
	}
	defer ep.Close()

	if err := ep.WaitReady(ctx); err != nil {
		return 0, fmt.Errorf("register session with %s: %w", cfg.Endpoint.RemoteAddr(), err)
	}
	return ep.SendTagData(ctx, opts.Symbol, opts.DataType, opts.Data)
}
