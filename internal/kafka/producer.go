// Package kafka produces received tag data to a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Bataide/cip-enip-driver/internal/config"
	"github.com/Bataide/cip-enip-driver/internal/events"
	"github.com/Bataide/cip-enip-driver/internal/logging"
)

// ErrNotConnected is returned by Publish before Start or after Close.
var ErrNotConnected = errors.New("kafka producer not connected")

// ConnectionStatus represents the state of a Kafka connection.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Producer writes one message per received tag, keyed by symbol so that
// writes to the same tag stay ordered within a partition.
type Producer struct {
	config config.KafkaConfig
	logger *logging.Logger

	mu      sync.RWMutex
	writer  *kafka.Writer
	status  ConnectionStatus
	lastErr error
	sent    int64
	failed  int64
}

// NewProducer creates a producer for cfg. Call Start to connect.
func NewProducer(cfg config.KafkaConfig, logger *logging.Logger) *Producer {
	return &Producer{config: cfg, logger: logger}
}

// Name returns the configured sink name.
func (p *Producer) Name() string {
	return "kafka:" + p.config.Name
}

// Status returns the connection status and the last error.
func (p *Producer) Status() (ConnectionStatus, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status, p.lastErr
}

// Stats returns the count of produced and failed messages.
func (p *Producer) Stats() (sent, failed int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sent, p.failed
}

// Start checks that the first broker is reachable and creates the writer.
func (p *Producer) Start(ctx context.Context) error {
	if len(p.config.Brokers) == 0 {
		return fmt.Errorf("kafka %s: no brokers configured", p.config.Name)
	}

	p.mu.Lock()
	p.status = StatusConnecting
	p.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	conn, err := dialer.DialContext(dialCtx, "tcp", p.config.Brokers[0])
	if err != nil {
		err = fmt.Errorf("connect to kafka %s: %w", p.config.Brokers[0], err)
		p.mu.Lock()
		p.status = StatusError
		p.lastErr = err
		p.mu.Unlock()
		return err
	}
	conn.Close()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.config.Brokers...),
		Topic:                  p.config.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequiredAcks(p.config.RequiredAcks),
		MaxAttempts:            p.config.MaxRetries,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: p.config.AutoCreate,
	}

	p.mu.Lock()
	if p.writer != nil {
		p.writer.Close()
	}
	p.writer = writer
	p.status = StatusConnected
	p.lastErr = nil
	p.mu.Unlock()

	p.logger.Info("Kafka %s producing to topic %s via %v", p.config.Name, p.config.Topic, p.config.Brokers)
	return nil
}

// Message builds the record produced for td.
func Message(td events.TagData) (kafka.Message, error) {
	value, err := td.JSON()
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal tag %s: %w", td.Symbol, err)
	}
	return kafka.Message{
		Key:   []byte(td.Symbol),
		Value: value,
		Time:  td.Timestamp,
		Headers: []kafka.Header{
			{Key: "data_type", Value: []byte(td.DataType.String())},
			{Key: "remote", Value: []byte(td.Remote)},
		},
	}, nil
}

// Publish produces td synchronously.
func (p *Producer) Publish(ctx context.Context, td events.TagData) error {
	p.mu.RLock()
	writer := p.writer
	p.mu.RUnlock()
	if writer == nil {
		return ErrNotConnected
	}

	msg, err := Message(td)
	if err != nil {
		return err
	}
	err = writer.WriteMessages(ctx, msg)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.failed++
		p.lastErr = err
		return fmt.Errorf("kafka produce %s: %w", td.Symbol, err)
	}
	p.sent++
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	p.mu.Lock()
	writer := p.writer
	p.writer = nil
	p.status = StatusDisconnected
	p.mu.Unlock()

	if writer != nil {
		return writer.Close()
	}
	return nil
}
