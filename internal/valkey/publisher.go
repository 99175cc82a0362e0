// Package valkey stores received tag data in Valkey/Redis and announces
// each write on a pub/sub channel.
package valkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Bataide/cip-enip-driver/internal/config"
	"github.com/Bataide/cip-enip-driver/internal/events"
	"github.com/Bataide/cip-enip-driver/internal/logging"
)

// ErrNotRunning is returned by Publish before Start or after Close.
var ErrNotRunning = errors.New("valkey publisher not connected")

// joinKey joins key segments with colons, dropping empty segments and
// stray colons at segment edges.
func joinKey(segments ...string) string {
	var parts []string
	for _, s := range segments {
		s = strings.Trim(s, ":")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ":")
}

// Publisher writes the latest value of each tag to <prefix>:<symbol>.
type Publisher struct {
	config config.ValkeyConfig
	logger *logging.Logger

	mu     sync.RWMutex
	client *redis.Client
}

// NewPublisher creates a publisher for cfg. Call Start to connect.
func NewPublisher(cfg config.ValkeyConfig, logger *logging.Logger) *Publisher {
	return &Publisher{config: cfg, logger: logger}
}

// Name returns the configured sink name.
func (p *Publisher) Name() string {
	return "valkey:" + p.config.Name
}

// Key returns the key holding the latest value of symbol.
func (p *Publisher) Key(symbol string) string {
	return joinKey(p.config.KeyPrefix, symbol)
}

// Channel returns the pub/sub channel announcing changes.
func (p *Publisher) Channel() string {
	return joinKey(p.config.KeyPrefix, "changes")
}

// Start connects and pings the server.
func (p *Publisher) Start(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:         p.config.Address,
		Password:     p.config.Password,
		DB:           p.config.Database,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("connect to valkey at %s: %w", p.config.Address, err)
	}

	p.mu.Lock()
	old := p.client
	p.client = client
	p.mu.Unlock()
	if old != nil {
		old.Close()
	}

	p.logger.Info("Valkey %s connected to %s (db %d)", p.config.Name, p.config.Address, p.config.Database)
	return nil
}

// Publish stores td and, when enabled, publishes it on Channel in the same
// round trip.
func (p *Publisher) Publish(ctx context.Context, td events.TagData) error {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		return ErrNotRunning
	}

	data, err := td.JSON()
	if err != nil {
		return fmt.Errorf("marshal tag %s: %w", td.Symbol, err)
	}

	_, err = client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.Key(td.Symbol), data, p.config.KeyTTL)
		if p.config.PublishChanges {
			pipe.Publish(ctx, p.Channel(), data)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store tag %s: %w", td.Symbol, err)
	}
	return nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client != nil {
		return client.Close()
	}
	return nil
}
