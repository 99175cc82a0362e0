package core

import (
	"context"
	"sort"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/events"
	"github.com/Bataide/cip-enip-driver/internal/logging"
)

// Defaults for zero Options fields.
const (
	DefaultKeepAlive    = 2 * time.Second
	DefaultStallTimeout = 2 * time.Second
	DefaultReadTimeout  = 500 * time.Millisecond
	DefaultQueueSize    = 64
)

// NewServer creates a target server. Call Start to listen.
func NewServer(opts Options, logger *logging.Logger) *Server {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = DefaultStallTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:   opts,
		logger: logger,
		conns:  make(map[string]*Conn),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connections returns the IDs of the open connections, sorted.
func (s *Server) Connections() []string {
	s.connsMu.RLock()
	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	s.connsMu.RUnlock()
	sort.Strings(ids)
	return ids
}

// CloseConnection closes the connection with id, if any.
func (s *Server) CloseConnection(id string) bool {
	s.connsMu.RLock()
	c, ok := s.conns[id]
	s.connsMu.RUnlock()
	if ok {
		c.Close()
	}
	return ok
}

func (s *Server) addConn(c *Conn) {
	s.connsMu.Lock()
	s.conns[c.ID] = c
	s.connsMu.Unlock()
}

// removeConn reports whether id was still registered. Removing an absent
// id is a no-op.
func (s *Server) removeConn(id string) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if _, ok := s.conns[id]; !ok {
		return false
	}
	delete(s.conns, id)
	return true
}

func (s *Server) emit(ev events.Event) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
}
