package client

// TCP transport for the originating session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/capture"
	"github.com/Bataide/cip-enip-driver/internal/events"
)

// TCPTransport owns one TCP connection to the controller. Writes may come
// from several goroutines; reads belong to the originator's reader.
type TCPTransport struct {
	conn    *net.TCPConn
	addr    string
	connMu  sync.RWMutex
	writeMu sync.Mutex
	tracer  capture.Tracer
}

// NewTCPTransport creates a new TCP transport. tracer may be nil.
func NewTCPTransport(tracer capture.Tracer) *TCPTransport {
	return &TCPTransport{tracer: tracer}
}

// Connect establishes a TCP connection
func (t *TCPTransport) Connect(ctx context.Context, addr string) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != nil {
		return fmt.Errorf("already connected")
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("resolve TCP address: %w", err)
	}

	dialer := net.Dialer{
		Timeout: 5 * time.Second,
	}

	conn, err := dialer.DialContext(ctx, "tcp", tcpAddr.String())
	if err != nil {
		return fmt.Errorf("dial TCP: %w", err)
	}

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return fmt.Errorf("not a TCP connection")
	}

	if err := tcpConn.SetNoDelay(true); err != nil {
		tcpConn.Close()
		return fmt.Errorf("set no-delay: %w", err)
	}

	t.conn = tcpConn
	t.addr = addr
	return nil
}

// Disconnect closes the TCP connection
func (t *TCPTransport) Disconnect() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil
	t.addr = ""

	return err
}

// Write sends one encoded frame. It implements io.Writer so the session
// can write without knowing about TCP.
func (t *TCPTransport) Write(data []byte) (int, error) {
	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()

	if conn == nil {
		return 0, fmt.Errorf("not connected")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return 0, fmt.Errorf("set write deadline: %w", err)
	}
	n, err := conn.Write(data)
	if err != nil {
		return n, err
	}
	if t.tracer != nil {
		t.tracer.Record(conn.LocalAddr(), conn.RemoteAddr(), data)
	}
	return n, nil
}

// Read reads whatever bytes are available, waiting at most timeout. A
// timeout is reported as a net.Error with Timeout() true.
func (t *TCPTransport) Read(buf []byte, timeout time.Duration) (int, error) {
	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()

	if conn == nil {
		return 0, fmt.Errorf("not connected")
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}
	n, err := conn.Read(buf)
	if n > 0 && t.tracer != nil {
		t.tracer.Record(conn.RemoteAddr(), conn.LocalAddr(), buf[:n])
	}
	return n, err
}

// IsConnected returns whether the transport is connected
func (t *TCPTransport) IsConnected() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn != nil
}

// ConnID returns "local/remote" for the current connection, or "" when
// disconnected.
func (t *TCPTransport) ConnID() string {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	if t.conn == nil {
		return ""
	}
	return events.ConnID(t.conn.LocalAddr().String(), t.conn.RemoteAddr().String())
}
