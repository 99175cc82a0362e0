package mqtt

import (
	"context"
	"errors"
	"testing"

	"github.com/Bataide/cip-enip-driver/internal/config"
	"github.com/Bataide/cip-enip-driver/internal/events"
	"github.com/Bataide/cip-enip-driver/internal/logging"
)

var _ events.Sink = (*Publisher)(nil)

func TestTopic(t *testing.T) {
	tests := []struct {
		root, symbol, want string
	}{
		{"cipenip", "RECEIVE", "cipenip/RECEIVE"},
		{"/plant/line1/", "Motor.Speed", "plant/line1/Motor.Speed"},
		{"", "RECEIVE", "RECEIVE"},
	}
	for _, tt := range tests {
		p := NewPublisher(config.MQTTConfig{RootTopic: tt.root}, nil)
		if got := p.Topic(tt.symbol); got != tt.want {
			t.Errorf("Topic(%q) with root %q = %q, want %q", tt.symbol, tt.root, got, tt.want)
		}
	}
}

func TestBrokerURL(t *testing.T) {
	p := NewPublisher(config.MQTTConfig{Name: "plant", Broker: "broker.local", Port: 1883}, nil)
	if got := p.BrokerURL(); got != "tcp://broker.local:1883" {
		t.Errorf("BrokerURL = %q", got)
	}
	if p.Name() != "mqtt:plant" {
		t.Errorf("Name = %q", p.Name())
	}

	p = NewPublisher(config.MQTTConfig{Broker: "broker.local", Port: 8883, UseTLS: true}, nil)
	if got := p.BrokerURL(); got != "ssl://broker.local:8883" {
		t.Errorf("BrokerURL = %q", got)
	}
}

func TestPublishBeforeStart(t *testing.T) {
	logger, _ := logging.NewLogger(logging.LogLevelSilent, "")
	p := NewPublisher(config.MQTTConfig{Broker: "127.0.0.1", Port: 1883}, logger)
	err := p.Publish(context.Background(), events.TagData{Symbol: "RECEIVE"})
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Publish = %v, want ErrNotRunning", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
