// Package mqtt publishes received tag data to an MQTT broker.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Bataide/cip-enip-driver/internal/config"
	"github.com/Bataide/cip-enip-driver/internal/events"
	"github.com/Bataide/cip-enip-driver/internal/logging"
)

// ErrNotRunning is returned by Publish before Start or after Close.
var ErrNotRunning = errors.New("mqtt publisher not connected")

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Publisher handles one broker connection. Each tag is published retained
// at QoS 1 to <root_topic>/<symbol>.
type Publisher struct {
	config config.MQTTConfig
	logger *logging.Logger

	mu      sync.RWMutex
	client  pahomqtt.Client
	running bool
}

// NewPublisher creates a publisher for cfg. Call Start to connect.
func NewPublisher(cfg config.MQTTConfig, logger *logging.Logger) *Publisher {
	return &Publisher{config: cfg, logger: logger}
}

// Name returns the configured sink name.
func (p *Publisher) Name() string {
	return "mqtt:" + p.config.Name
}

// BrokerURL returns the broker address with its scheme.
func (p *Publisher) BrokerURL() string {
	scheme := "tcp"
	if p.config.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, p.config.Broker, p.config.Port)
}

// Topic returns the topic a symbol is published on.
func (p *Publisher) Topic(symbol string) string {
	root := strings.Trim(p.config.RootTopic, "/")
	if root == "" {
		return symbol
	}
	return root + "/" + symbol
}

// Start connects to the broker. The client reconnects on its own after a
// successful first connect.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.RLock()
	if p.running {
		p.mu.RUnlock()
		return nil
	}
	p.mu.RUnlock()

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(p.BrokerURL())
	if p.config.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.SetClientID(p.config.ClientID)
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.logger.Error("MQTT %s connection lost: %v", p.config.Name, err)
	})

	client := pahomqtt.NewClient(opts)
	p.logger.Verbose("Connecting to MQTT broker %s", p.BrokerURL())
	if err := wait(ctx, client.Connect(), connectTimeout); err != nil {
		return fmt.Errorf("connect to MQTT broker %s: %w", p.BrokerURL(), err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		client.Disconnect(100)
		return nil
	}
	p.client = client
	p.running = true
	p.logger.Info("MQTT %s connected to %s", p.config.Name, p.BrokerURL())
	return nil
}

// Publish sends td as a retained JSON message on its topic.
func (p *Publisher) Publish(ctx context.Context, td events.TagData) error {
	p.mu.RLock()
	client, running := p.client, p.running
	p.mu.RUnlock()
	if !running || client == nil {
		return ErrNotRunning
	}

	payload, err := td.JSON()
	if err != nil {
		return fmt.Errorf("marshal tag %s: %w", td.Symbol, err)
	}
	topic := p.Topic(td.Symbol)
	if err := wait(ctx, client.Publish(topic, 1, true, payload), publishTimeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.running = false
	p.mu.Unlock()

	if client != nil {
		client.Disconnect(500)
	}
	return nil
}

// wait blocks until token completes, ctx ends or timeout elapses.
func wait(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %v", timeout)
	}
}
