package client

// Originating session state machine: ListServices, RegisterSession, then
// correlated tag writes with NOP keep-alives while idle.

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/cip/protocol"
	"github.com/Bataide/cip-enip-driver/internal/enip"
	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
	"github.com/Bataide/cip-enip-driver/internal/logging"
)

// State is the handshake position of a Session.
type State int

const (
	StateDisconnected State = iota
	StateSendListServices
	StateWaitListServicesReply
	StateSendRegisterSession
	StateWaitRegisterSessionReply
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateSendListServices:
		return "SendListServices"
	case StateWaitListServicesReply:
		return "WaitListServicesReply"
	case StateSendRegisterSession:
		return "SendRegisterSession"
	case StateWaitRegisterSessionReply:
		return "WaitRegisterSessionReply"
	case StateReady:
		return "Ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	DefaultSendTimeout = 2 * time.Second
	DefaultKeepAlive   = 2 * time.Second
)

// ErrNotReady is returned by SendTagData before the session is registered.
var ErrNotReady = stderrors.New("session not registered")

// SessionOptions tune a Session. Zero values take the defaults.
type SessionOptions struct {
	SendTimeout time.Duration
	KeepAlive   time.Duration
	// OnReset is called when a send times out or a write fails. The owner
	// is expected to drop the connection and call Disconnected.
	OnReset func(error)
	// OnReady is called each time the session reaches Ready.
	OnReady func(handle uint32)
}

type sendResult struct {
	status uint8
	err    error
}

type pendingSend struct {
	token uint64
	done  chan sendResult
}

// Session drives one originating EtherNet/IP session over a connected
// writer. HandleFrame must be called from a single goroutine in arrival
// order; SendTagData may be called from any goroutine.
type Session struct {
	logger      *logging.Logger
	sendTimeout time.Duration
	keepAlive   time.Duration
	onReset     func(error)
	onReady     func(uint32)

	sendMu  sync.Mutex // one outstanding SendTagData
	writeMu sync.Mutex

	mu          sync.Mutex
	state       State
	w           io.Writer
	handle      uint32
	lastToken   uint64
	lastWrite   time.Time
	pending     *pendingSend
	ready       chan struct{}
	readyClosed bool
	wake        chan struct{}
}

// NewSession creates a disconnected session.
func NewSession(logger *logging.Logger, opts SessionOptions) *Session {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	return &Session{
		logger:      logger,
		sendTimeout: opts.SendTimeout,
		keepAlive:   opts.KeepAlive,
		onReset:     opts.OnReset,
		onReady:     opts.OnReady,
		ready:       make(chan struct{}),
		wake:        make(chan struct{}, 1),
	}
}

// State returns the current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handle returns the registered session handle, or 0.
func (s *Session) Handle() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Connected starts the handshake on a fresh connection.
func (s *Session) Connected(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.handle = 0
	s.lastWrite = time.Time{}
	s.setState(StateSendListServices)
	s.mu.Unlock()
	s.signal()
}

// Disconnected drops the connection and fails any outstanding send.
func (s *Session) Disconnected(err error) {
	s.mu.Lock()
	s.w = nil
	s.handle = 0
	s.setState(StateDisconnected)
	if s.readyClosed {
		s.ready = make(chan struct{})
		s.readyClosed = false
	}
	p := s.pending
	s.pending = nil
	s.mu.Unlock()

	if p != nil {
		if err == nil {
			err = io.ErrClosedPipe
		}
		p.done <- sendResult{err: cipErrors.Transport("send tag data", err)}
	}
	s.signal()
}

// WaitReady blocks until the session is registered or ctx ends.
func (s *Session) WaitReady(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.state == StateReady {
			s.mu.Unlock()
			return nil
		}
		ready := s.ready
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready:
		}
	}
}

// Run drives the handshake writes and keep-alives until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	timer := time.NewTimer(s.keepAlive)
	defer timer.Stop()

	for {
		s.step(time.Now())

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.keepAlive)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// step performs the write owed by the current state.
func (s *Session) step(now time.Time) {
	s.mu.Lock()
	state := s.state
	handle := s.handle
	idle := s.pending == nil && now.Sub(s.lastWrite) >= s.keepAlive
	s.mu.Unlock()

	var (
		frame []byte
		next  State
		err   error
	)
	switch state {
	case StateSendListServices:
		frame, err = enip.BuildListServices([8]byte{})
		next = StateWaitListServicesReply
	case StateSendRegisterSession:
		frame, err = enip.BuildRegisterSession([8]byte{})
		next = StateWaitRegisterSessionReply
	case StateReady:
		if !idle {
			return
		}
		frame, err = enip.BuildNOP(handle)
		next = StateReady
	default:
		return
	}
	if err != nil {
		s.logger.Error("Build %s frame: %v", state, err)
		return
	}

	s.mu.Lock()
	if s.state != state {
		s.mu.Unlock()
		return
	}
	s.setState(next)
	s.mu.Unlock()

	if err := s.write(frame); err != nil {
		s.reset(fmt.Errorf("%s: %w", state, err))
	}
}

// HandleFrame applies one decoded frame from the controller. Errors on
// a single frame are returned for logging; handshake failures also reset
// the connection.
func (s *Session) HandleFrame(f enip.Frame) error {
	switch f.Header.Command {
	case enip.CommandListServices:
		return s.handleListServices(f)
	case enip.CommandRegisterSession:
		return s.handleRegisterSession(f)
	case enip.CommandSendRRData:
		return s.handleSendRRData(f)
	case enip.CommandNOP, enip.CommandUnRegisterSession:
		return nil
	default:
		return cipErrors.UnknownVariant("handle frame", "command %s not supported", f.Header.Command)
	}
}

func (s *Session) handleListServices(f enip.Frame) error {
	if len(f.Body) == 0 {
		return nil
	}
	if s.State() != StateWaitListServicesReply {
		s.logger.Debug("Ignoring ListServices reply in state %s", s.State())
		return nil
	}
	reply, err := enip.DecodeListServicesReply(f.Body)
	if err != nil {
		return s.failHandshake(err)
	}
	if len(reply.Items) == 0 || !reply.Items[0].HasTCP() {
		return s.failHandshake(cipErrors.Violation("list services", "peer does not support encapsulation over TCP"))
	}

	s.mu.Lock()
	if s.state == StateWaitListServicesReply {
		s.setState(StateSendRegisterSession)
	}
	s.mu.Unlock()
	s.signal()
	return nil
}

func (s *Session) handleRegisterSession(f enip.Frame) error {
	if s.State() != StateWaitRegisterSessionReply {
		s.logger.Debug("Ignoring RegisterSession reply in state %s", s.State())
		return nil
	}
	if f.Header.Status != enip.StatusSuccess || f.Header.SessionHandle == 0 {
		return s.failHandshake(cipErrors.Violation("register session",
			"status 0x%08X handle 0x%08X", f.Header.Status, f.Header.SessionHandle))
	}
	if _, err := enip.DecodeRegisterSession(f.Body); err != nil {
		return s.failHandshake(err)
	}

	s.mu.Lock()
	if s.state != StateWaitRegisterSessionReply {
		s.mu.Unlock()
		return nil
	}
	s.handle = f.Header.SessionHandle
	s.lastWrite = time.Now()
	s.setState(StateReady)
	if !s.readyClosed {
		close(s.ready)
		s.readyClosed = true
	}
	s.mu.Unlock()

	s.logger.Info("Session registered (handle 0x%08X)", f.Header.SessionHandle)
	if s.onReady != nil {
		s.onReady(f.Header.SessionHandle)
	}
	return nil
}

func (s *Session) handleSendRRData(f enip.Frame) error {
	rr, err := enip.DecodeRRData(f.Body)
	if err != nil {
		return err
	}
	reply, err := enip.DecodeReply(rr)
	if err != nil {
		return err
	}
	token := enip.ContextValue(f.Header.SenderContext)

	s.mu.Lock()
	p := s.pending
	if p == nil || token == 0 || p.token != token {
		s.mu.Unlock()
		s.logger.Debug("Discarding reply with context %d", token)
		return nil
	}
	s.pending = nil
	s.mu.Unlock()

	p.done <- sendResult{status: uint8(reply.GeneralStatus)}
	return nil
}

// SendTagData writes data to symbol on the controller and returns the
// reply's general status. Concurrent calls are serialized.
func (s *Session) SendTagData(ctx context.Context, symbol string, dt protocol.DataType, data []byte) (uint8, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return 0, cipErrors.Transport("send tag data", ErrNotReady)
	}
	token := s.nextToken()
	frame, err := enip.BuildWriteTag(s.handle, enip.ContextFromUint64(token), symbol, dt, data, nil)
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("build write tag: %w", err)
	}
	p := &pendingSend{token: token, done: make(chan sendResult, 1)}
	s.pending = p
	s.mu.Unlock()

	if err := s.write(frame); err != nil {
		s.clearPending(p)
		s.reset(err)
		return 0, cipErrors.Transport("send tag data", err)
	}

	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()

	select {
	case res := <-p.done:
		if res.err != nil {
			return 0, res.err
		}
		if protocol.GeneralStatus(res.status) != protocol.StatusSuccess {
			return res.status, cipErrors.Violation("send tag data",
				"%s: status 0x%02X (%s)", symbol, res.status, protocol.StatusName(res.status))
		}
		return res.status, nil
	case <-timer.C:
		s.clearPending(p)
		err := cipErrors.Timeout("send tag data", "no reply for %s within %v", symbol, s.sendTimeout)
		s.reset(err)
		return 0, err
	case <-ctx.Done():
		s.clearPending(p)
		return 0, ctx.Err()
	}
}

// nextToken returns a strictly increasing nanosecond timestamp. Callers
// hold s.mu.
func (s *Session) nextToken() uint64 {
	token := uint64(time.Now().UnixNano())
	if token <= s.lastToken {
		token = s.lastToken + 1
	}
	s.lastToken = token
	return token
}

func (s *Session) clearPending(p *pendingSend) {
	s.mu.Lock()
	if s.pending == p {
		s.pending = nil
	}
	s.mu.Unlock()
}

func (s *Session) write(frame []byte) error {
	s.mu.Lock()
	w := s.w
	s.mu.Unlock()
	if w == nil {
		return fmt.Errorf("not connected")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := w.Write(frame); err != nil {
		return err
	}
	s.logger.LogHex("TX", frame)

	s.mu.Lock()
	s.lastWrite = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *Session) failHandshake(err error) error {
	s.logger.Error("Handshake failed: %v", err)
	s.reset(err)
	return err
}

func (s *Session) reset(err error) {
	if s.onReset != nil {
		s.onReset(err)
	}
}

// setState records a transition. Callers hold s.mu.
func (s *Session) setState(next State) {
	if s.state != next {
		s.logger.Debug("Session state %s -> %s", s.state, next)
	}
	s.state = next
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
