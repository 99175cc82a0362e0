package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/capture"
	"github.com/Bataide/cip-enip-driver/internal/cip/protocol"
	"github.com/Bataide/cip-enip-driver/internal/enip"
	"github.com/Bataide/cip-enip-driver/internal/events"
	"github.com/Bataide/cip-enip-driver/internal/logging"
)

// OriginatorOptions configure the dial loop around a Session.
type OriginatorOptions struct {
	Addr         string
	Session      SessionOptions
	Reconnect    time.Duration
	ReadTimeout  time.Duration
	StallTimeout time.Duration
	Tracer       capture.Tracer
	OnEvent      events.Handler
}

// Originator keeps one registered session to a controller alive,
// reconnecting after failures.
type Originator struct {
	opts      OriginatorOptions
	logger    *logging.Logger
	transport *TCPTransport
	session   *Session

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu     sync.Mutex
	connID string
	drop   chan struct{}
}

// NewOriginator creates an originator for opts.Addr. Call Start to dial.
func NewOriginator(opts OriginatorOptions, logger *logging.Logger) *Originator {
	if opts.Reconnect <= 0 {
		opts.Reconnect = 5 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 500 * time.Millisecond
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = 2 * time.Second
	}
	o := &Originator{
		opts:      opts,
		logger:    logger,
		transport: NewTCPTransport(opts.Tracer),
	}
	sessOpts := opts.Session
	sessOpts.OnReset = o.dropConnection
	o.session = NewSession(logger, sessOpts)
	return o
}

// Session returns the state machine driven by this originator.
func (o *Originator) Session() *Session {
	return o.session
}

// Start launches the dial loop and the session driver.
func (o *Originator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)

	o.wg.Add(2)
	go func() {
		defer o.wg.Done()
		_ = o.session.Run(ctx)
	}()
	go func() {
		defer o.wg.Done()
		o.connectLoop(ctx)
	}()
}

// ConnID returns the identifier of the current or last connection.
func (o *Originator) ConnID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connID
}

// WaitReady blocks until the session is registered.
func (o *Originator) WaitReady(ctx context.Context) error {
	return o.session.WaitReady(ctx)
}

// SendTagData writes data to symbol through the registered session.
func (o *Originator) SendTagData(ctx context.Context, symbol string, dt protocol.DataType, data []byte) (uint8, error) {
	return o.session.SendTagData(ctx, symbol, dt, data)
}

// Close unregisters the session, closes the connection and waits for the
// loops to exit (idempotent).
func (o *Originator) Close() error {
	o.closeOnce.Do(func() {
		if handle := o.session.Handle(); handle != 0 && o.transport.IsConnected() {
			if frame, err := enip.BuildUnRegisterSession(handle); err == nil {
				if _, err := o.transport.Write(frame); err != nil {
					o.logger.Verbose("UnRegisterSession: %v", err)
				}
			}
		}
		if o.cancel != nil {
			o.cancel()
		}
		_ = o.transport.Disconnect()
		o.wg.Wait()
	})
	return nil
}

func (o *Originator) connectLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := o.transport.Connect(ctx, o.opts.Addr); err != nil {
			o.logger.Verbose("Connect to %s failed: %v", o.opts.Addr, err)
		} else {
			o.serve(ctx)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(o.opts.Reconnect):
		}
	}
}

// serve runs one connection until it fails or is dropped.
func (o *Originator) serve(ctx context.Context) {
	connID := o.transport.ConnID()
	drop := make(chan struct{})
	o.mu.Lock()
	o.connID = connID
	o.drop = drop
	o.mu.Unlock()

	o.logger.Info("Connected to %s (%s)", o.opts.Addr, connID)
	o.emit(events.NewConnStatus(events.DirectionSend, true, connID))
	o.session.Connected(o.transport)

	err := o.readLoop(ctx, drop)

	o.session.Disconnected(err)
	_ = o.transport.Disconnect()
	o.mu.Lock()
	o.drop = nil
	o.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		o.logger.Error("Connection to %s lost: %v", o.opts.Addr, err)
	} else {
		o.logger.Info("Connection to %s closed", o.opts.Addr)
	}
	o.emit(events.NewConnStatus(events.DirectionSend, false, connID))
}

func (o *Originator) readLoop(ctx context.Context, drop <-chan struct{}) error {
	var reasm enip.Reassembler
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-drop:
			return fmt.Errorf("connection reset")
		default:
		}

		n, err := o.transport.Read(buf, o.opts.ReadTimeout)
		now := time.Now()
		if n > 0 {
			for _, f := range reasm.Feed(buf[:n], now) {
				if herr := o.session.HandleFrame(f); herr != nil {
					o.logger.Error("Frame %s from %s: %v", f.Header.Command, o.opts.Addr, herr)
				}
			}
		}
		if reasm.Stalled(now, o.opts.StallTimeout) {
			return fmt.Errorf("partial frame stalled for %v", o.opts.StallTimeout)
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("closed by peer")
			}
			return err
		}
	}
}

// dropConnection is the session's reset hook.
func (o *Originator) dropConnection(reason error) {
	o.logger.Info("Dropping connection to %s: %v", o.opts.Addr, reason)
	o.mu.Lock()
	drop := o.drop
	o.drop = nil
	o.mu.Unlock()
	if drop != nil {
		close(drop)
	}
	_ = o.transport.Disconnect()
}

func (o *Originator) emit(ev events.Event) {
	if o.opts.OnEvent != nil {
		o.opts.OnEvent(ev)
	}
}
