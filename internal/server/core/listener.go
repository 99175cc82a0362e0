package core

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/enip"
	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
	"github.com/Bataide/cip-enip-driver/internal/events"
)

var errConnClosed = errors.New("connection closed")

// Start starts the server.
func (s *Server) Start() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", s.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("resolve TCP address: %w", err)
	}

	s.tcpListener, err = net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("listen TCP: %w", err)
	}

	s.logger.Info("TCP target listening on %s", s.tcpListener.Addr())

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// TCPAddr returns the bound TCP address after Start.
func (s *Server) TCPAddr() *net.TCPAddr {
	if s.tcpListener == nil {
		return nil
	}
	if addr, ok := s.tcpListener.Addr().(*net.TCPAddr); ok {
		return addr
	}
	return nil
}

// Stop closes the listener and every connection, then waits for their
// goroutines. It is safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()

		if s.tcpListener != nil {
			s.tcpListener.Close()
		}

		s.connsMu.RLock()
		for _, c := range s.conns {
			c.Close()
		}
		s.connsMu.RUnlock()

		s.wg.Wait()
		s.logger.Info("Target stopped")
	})
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.tcpListener.SetDeadline(time.Now().Add(1 * time.Second))
		conn, err := s.tcpListener.AcceptTCP()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("Accept error: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(tcp *net.TCPConn) {
	defer s.wg.Done()
	_ = tcp.SetNoDelay(true)

	remote := tcp.RemoteAddr().String()
	c := &Conn{
		ID:        events.ConnID(tcp.LocalAddr().String(), remote),
		Remote:    remote,
		CreatedAt: time.Now(),
		tcp:       tcp,
		out:       make(chan []byte, s.opts.QueueSize),
		done:      make(chan struct{}),
	}
	s.addConn(c)
	if s.ctx.Err() != nil {
		// Stop ran between accept and registration.
		c.Close()
	}

	s.logger.Info("New connection from %s", remote)
	s.emit(events.NewConnStatus(events.DirectionReceive, true, c.ID))

	s.wg.Add(1)
	go s.writeLoop(c)

	err := s.readLoop(c)
	c.Close()
	s.removeConn(c.ID)

	switch {
	case err == nil:
		s.logger.Info("Connection from %s closed", remote)
	case errors.Is(err, ErrUnregistered):
		s.logger.Info("Connection from %s closed: %v", remote, err)
	default:
		s.logger.Error("Connection from %s dropped: %v", remote, err)
	}
	s.emit(events.NewConnStatus(events.DirectionReceive, false, c.ID))
}

// readLoop feeds the connection's bytes through a reassembler and the
// responder until the peer leaves, a fatal frame arrives or a partial frame
// stalls.
func (s *Server) readLoop(c *Conn) error {
	responder := NewResponder(c.Remote, s.logger)
	var reasm enip.Reassembler
	readBuf := make([]byte, 4096)

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-c.done:
			return nil
		default:
		}

		_ = c.tcp.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		n, err := c.tcp.Read(readBuf)
		now := time.Now()
		if n > 0 {
			if s.opts.Tracer != nil {
				s.opts.Tracer.Record(c.tcp.RemoteAddr(), c.tcp.LocalAddr(), readBuf[:n])
			}
			for _, f := range reasm.Feed(readBuf[:n], now) {
				if ferr := s.handleFrame(c, responder, f); ferr != nil {
					return ferr
				}
			}
		}
		if reasm.Stalled(now, s.opts.StallTimeout) {
			return cipErrors.Timeout("read frame", "%d byte partial frame stalled for %v", reasm.Pending(), s.opts.StallTimeout)
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			select {
			case <-c.done:
				return nil
			default:
			}
			return cipErrors.Transport("read", err)
		}
	}
}

// handleFrame returns an error only when the connection must close.
func (s *Server) handleFrame(c *Conn, responder *Responder, f enip.Frame) error {
	s.logger.LogHex(fmt.Sprintf("RX %s from %s", f.Header.Command, c.Remote), f.Body)

	reply, td, err := responder.Handle(f)
	c.handle.Store(responder.SessionHandle())

	if td != nil {
		s.emit(events.NewTagData(*td))
	}
	if reply != nil {
		select {
		case c.out <- reply:
		case <-c.done:
			return errConnClosed
		}
	}

	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnregistered) || errors.Is(err, ErrSessionMismatch) {
		return err
	}
	s.logger.Error("Frame %s from %s: %v", f.Header.Command, c.Remote, err)
	return nil
}

// writeLoop drains the reply queue and sends a NOP whenever the queue has
// been idle for the keep-alive interval.
func (s *Server) writeLoop(c *Conn) {
	defer s.wg.Done()

	idle := time.NewTimer(s.opts.KeepAlive)
	defer idle.Stop()

	for {
		var msg []byte
		select {
		case <-c.done:
			return
		case msg = <-c.out:
		case <-idle.C:
			nop, err := enip.BuildNOP(c.SessionHandle())
			if err != nil {
				s.logger.Error("Build NOP: %v", err)
				idle.Reset(s.opts.KeepAlive)
				continue
			}
			msg = nop
		}

		if err := s.writeResponse(c, msg); err != nil {
			s.logger.Error("Write to %s failed: %v", c.Remote, err)
			c.Close()
			return
		}
		idle.Reset(s.opts.KeepAlive)
	}
}

func (s *Server) writeResponse(c *Conn, msg []byte) error {
	_ = c.tcp.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.tcp.Write(msg); err != nil {
		return cipErrors.Transport("write", err)
	}
	if s.opts.Tracer != nil {
		s.opts.Tracer.Record(c.tcp.LocalAddr(), c.tcp.RemoteAddr(), msg)
	}
	return nil
}
