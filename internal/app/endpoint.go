package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/api"
	"github.com/Bataide/cip-enip-driver/internal/capture"
	"github.com/Bataide/cip-enip-driver/internal/cip/client"
	"github.com/Bataide/cip-enip-driver/internal/cip/protocol"
	"github.com/Bataide/cip-enip-driver/internal/config"
	"github.com/Bataide/cip-enip-driver/internal/events"
	"github.com/Bataide/cip-enip-driver/internal/logging"
	"github.com/Bataide/cip-enip-driver/internal/metrics"
	"github.com/Bataide/cip-enip-driver/internal/server/core"
)

// ErrOriginatorDisabled is returned by SendTagData when the endpoint does
// not run an originating session.
var ErrOriginatorDisabled = errors.New("originator disabled by configuration")

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("endpoint closed")

// Endpoint runs the originating session and the target listener selected
// by the configuration and reports what they see through callbacks, the
// broker sinks and the metrics collector.
type Endpoint struct {
	cfg    *config.Config
	logger *logging.Logger

	originator *client.Originator
	target     *core.Server
	trace      *capture.Trace
	collector  *metrics.Collector
	writer     *metrics.Writer
	apiServer  *api.Server
	fanout     *fanout
	extraSinks []events.Sink

	mu           sync.RWMutex
	onTagData    func(events.TagData)
	onConnStatus func(events.ConnStatus)
	handler      events.Handler
	startedAt    time.Time

	stateMu sync.Mutex
	opened  bool
	closed  bool
	cancel  context.CancelFunc
}

// NewEndpoint creates an endpoint for cfg. Nothing is started until Open.
func NewEndpoint(cfg *config.Config, logger *logging.Logger) *Endpoint {
	return &Endpoint{
		cfg:       cfg,
		logger:    logger,
		collector: metrics.NewCollector(metrics.DefaultHistory),
		fanout:    newFanout(DefaultSinkQueue, logger),
	}
}

// AddSink registers a sink in addition to those in the configuration.
// It must be called before Open.
func (e *Endpoint) AddSink(s events.Sink) {
	e.extraSinks = append(e.extraSinks, s)
}

// OnTagData sets the callback for writes received from peers.
func (e *Endpoint) OnTagData(fn func(events.TagData)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTagData = fn
}

// OnConnStatus sets the callback for connection state changes.
func (e *Endpoint) OnConnStatus(fn func(events.ConnStatus)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onConnStatus = fn
}

// Events sets a handler that receives every event. It is called after the
// typed callbacks.
func (e *Endpoint) Events(h events.Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// Open starts the trace, metrics output, sinks, target and originator in
// that order. A failure undoes what was started.
func (e *Endpoint) Open(ctx context.Context) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.opened {
		return nil
	}

	if err := e.open(ctx); err != nil {
		e.shutdown()
		return err
	}
	e.opened = true
	e.mu.Lock()
	e.startedAt = time.Now()
	e.mu.Unlock()
	return nil
}

func (e *Endpoint) open(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)
	sess := e.cfg.Session

	// A failed Open stops everything it started, the fanout included, so a
	// retry begins from fresh components.
	e.trace, e.writer, e.target, e.originator, e.apiServer = nil, nil, nil, nil, nil
	fan := newFanout(DefaultSinkQueue, e.logger)
	e.mu.Lock()
	e.fanout = fan
	e.mu.Unlock()

	var tracer capture.Tracer
	if path := e.cfg.Trace.PcapFile; path != "" {
		trace, err := capture.Open(path)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		e.trace = trace
		tracer = trace
		e.logger.Info("Tracing frames to %s", path)
	}

	if e.cfg.Metrics.CSVFile != "" || e.cfg.Metrics.JSONFile != "" {
		writer, err := metrics.NewWriter(e.cfg.Metrics.CSVFile, e.cfg.Metrics.JSONFile)
		if err != nil {
			return fmt.Errorf("open metrics output: %w", err)
		}
		e.writer = writer
	}

	sinks := append(buildSinks(e.cfg, e.logger), e.extraSinks...)
	fan.start(ctx, sinks)

	if e.cfg.Endpoint.EnableTarget {
		e.target = core.NewServer(core.Options{
			ListenAddr:   e.cfg.Endpoint.ListenAddr(),
			KeepAlive:    sess.KeepAlive(),
			StallTimeout: sess.StallTimeout(),
			ReadTimeout:  sess.ReadTimeout(),
			Tracer:       tracer,
			OnEvent:      e.dispatch,
		}, e.logger)
		if err := e.target.Start(); err != nil {
			e.target = nil
			return fmt.Errorf("start target: %w", err)
		}
	}

	if e.cfg.Endpoint.EnableOriginator {
		e.originator = client.NewOriginator(client.OriginatorOptions{
			Addr: e.cfg.Endpoint.RemoteAddr(),
			Session: client.SessionOptions{
				SendTimeout: sess.SendTimeout(),
				KeepAlive:   sess.KeepAlive(),
			},
			Reconnect:    sess.Reconnect(),
			ReadTimeout:  sess.ReadTimeout(),
			StallTimeout: sess.StallTimeout(),
			Tracer:       tracer,
			OnEvent:      e.dispatch,
		}, e.logger)
		e.originator.Start(ctx)
	}

	if e.cfg.API.Enabled {
		e.apiServer = api.NewServer(e.cfg.API.ListenAddr, e, e.logger)
		if err := e.apiServer.Start(); err != nil {
			e.apiServer = nil
			return fmt.Errorf("start status API: %w", err)
		}
	}
	return nil
}

// Close stops everything Open started, in reverse order. It is safe to
// call more than once.
func (e *Endpoint) Close() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.shutdown()
}

func (e *Endpoint) shutdown() error {
	var errs []error
	if e.apiServer != nil {
		errs = append(errs, e.apiServer.Stop())
	}
	if e.originator != nil {
		errs = append(errs, e.originator.Close())
	}
	if e.target != nil {
		errs = append(errs, e.target.Stop())
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.fanout.stop()
	if e.writer != nil {
		errs = append(errs, e.writer.Close())
	}
	if e.trace != nil {
		e.logger.Info("Trace closed after %d packets", e.trace.Packets())
		errs = append(errs, e.trace.Close())
	}
	return errors.Join(errs...)
}

// WaitReady blocks until the originating session is registered.
func (e *Endpoint) WaitReady(ctx context.Context) error {
	if e.originator == nil {
		return ErrOriginatorDisabled
	}
	return e.originator.WaitReady(ctx)
}

// SendTagData writes data to symbol on the controller and returns the CIP
// general status of the reply. Every call is recorded as a SEND metric.
func (e *Endpoint) SendTagData(ctx context.Context, symbol string, dt protocol.DataType, data []byte) (uint8, error) {
	if e.originator == nil {
		return 0, ErrOriginatorDisabled
	}

	start := time.Now()
	status, err := e.originator.SendTagData(ctx, symbol, dt, data)
	rtt := float64(time.Since(start).Microseconds()) / 1000.0

	m := metrics.Metric{
		Timestamp: start,
		Operation: metrics.OperationSend,
		Symbol:    symbol,
		DataType:  dt.String(),
		Remote:    e.cfg.Endpoint.RemoteAddr(),
		Bytes:     len(data),
		Success:   err == nil && status == 0,
		RTTMs:     rtt,
		Status:    status,
	}
	m.SetError(err)
	e.record(m)

	e.logger.LogOperation(string(metrics.OperationSend), symbol, fmt.Sprintf("0x%02X", uint8(protocol.ServiceWriteTag)), m.Success, rtt, status, err)
	return status, err
}

func (e *Endpoint) record(m metrics.Metric) {
	m = e.collector.Record(m)
	if e.writer != nil {
		if err := e.writer.WriteMetric(m); err != nil {
			e.logger.Error("write metric: %v", err)
		}
	}
}

// dispatch routes events from the originator and the target. It runs on
// connection goroutines.
func (e *Endpoint) dispatch(ev events.Event) {
	e.mu.RLock()
	onTagData, onConnStatus, handler := e.onTagData, e.onConnStatus, e.handler
	fan := e.fanout
	e.mu.RUnlock()

	switch ev.Kind {
	case events.KindTagData:
		td := *ev.TagData
		e.record(metrics.Metric{
			Timestamp: td.Timestamp,
			Operation: metrics.OperationReceive,
			Symbol:    td.Symbol,
			DataType:  td.DataType.String(),
			Remote:    td.Remote,
			Bytes:     len(td.Data),
			Success:   true,
		})
		fan.enqueue(td)
		if onTagData != nil {
			onTagData(td)
		}
	case events.KindConnStatus:
		if onConnStatus != nil {
			onConnStatus(*ev.ConnStatus)
		}
	}

	if handler != nil {
		handler(ev)
	}
}

// Status reports the current state of both roles and the sinks.
func (e *Endpoint) Status() api.Status {
	e.mu.RLock()
	st := api.Status{StartedAt: e.startedAt}
	fan := e.fanout
	e.mu.RUnlock()

	if e.originator != nil {
		sess := e.originator.Session()
		st.Originator = &api.OriginatorStatus{
			Remote: e.cfg.Endpoint.RemoteAddr(),
			State:  sess.State().String(),
			Handle: sess.Handle(),
			ConnID: e.originator.ConnID(),
		}
	}
	if e.target != nil {
		listen := e.cfg.Endpoint.ListenAddr()
		if addr := e.target.TCPAddr(); addr != nil {
			listen = addr.String()
		}
		st.Target = &api.TargetStatus{
			Listen:      listen,
			Connections: e.target.Connections(),
		}
	}
	st.Sinks = fan.status()
	return st
}

// MetricsSummary returns the aggregated send and receive metrics.
func (e *Endpoint) MetricsSummary() *metrics.Summary {
	return e.collector.Summary()
}

// TargetAddr returns the bound listen address, or "" when the target is
// not running.
func (e *Endpoint) TargetAddr() string {
	if e.target == nil {
		return ""
	}
	if addr := e.target.TCPAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
