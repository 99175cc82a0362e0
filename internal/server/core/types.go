package core

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/capture"
	"github.com/Bataide/cip-enip-driver/internal/events"
	"github.com/Bataide/cip-enip-driver/internal/logging"
)

// Options configure the target listener.
type Options struct {
	ListenAddr   string
	KeepAlive    time.Duration
	StallTimeout time.Duration
	ReadTimeout  time.Duration
	QueueSize    int
	Tracer       capture.Tracer
	OnEvent      events.Handler
}

// Server accepts EtherNet/IP connections and answers them as a target.
type Server struct {
	opts        Options
	logger      *logging.Logger
	tcpListener *net.TCPListener
	conns       map[string]*Conn
	connsMu     sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

// Conn is one accepted connection. Replies are queued to out and written
// by the connection's worker.
type Conn struct {
	ID        string
	Remote    string
	CreatedAt time.Time

	tcp       *net.TCPConn
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	handle    atomic.Uint32
}

// Close tears the connection down once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.tcp.Close()
	})
}

// SessionHandle returns the handle registered on this connection.
func (c *Conn) SessionHandle() uint32 {
	return c.handle.Load()
}
