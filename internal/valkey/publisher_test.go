package valkey

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/config"
	"github.com/Bataide/cip-enip-driver/internal/events"
)

var _ events.Sink = (*Publisher)(nil)

func TestJoinKey(t *testing.T) {
	tests := []struct {
		segments []string
		want     string
	}{
		{[]string{"cipenip", "RECEIVE"}, "cipenip:RECEIVE"},
		{[]string{":cipenip:", "Line.Speed"}, "cipenip:Line.Speed"},
		{[]string{"", "RECEIVE"}, "RECEIVE"},
		{[]string{"a", "", "b"}, "a:b"},
	}
	for _, tt := range tests {
		if got := joinKey(tt.segments...); got != tt.want {
			t.Errorf("joinKey(%q) = %q, want %q", tt.segments, got, tt.want)
		}
	}
}

func TestKeyAndChannel(t *testing.T) {
	p := NewPublisher(config.ValkeyConfig{Name: "cache", KeyPrefix: "plant1"}, nil)
	if got := p.Key("RECEIVE"); got != "plant1:RECEIVE" {
		t.Errorf("Key = %q", got)
	}
	if got := p.Channel(); got != "plant1:changes" {
		t.Errorf("Channel = %q", got)
	}
	if p.Name() != "valkey:cache" {
		t.Errorf("Name = %q", p.Name())
	}
}

func TestPublishBeforeStart(t *testing.T) {
	p := NewPublisher(config.ValkeyConfig{Address: "127.0.0.1:6379"}, nil)
	if err := p.Publish(context.Background(), events.TagData{Symbol: "X"}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Publish = %v, want ErrNotRunning", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestStartUnreachable(t *testing.T) {
	p := NewPublisher(config.ValkeyConfig{Name: "down", Address: "127.0.0.1:1"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Start(ctx); err == nil {
		t.Fatal("Start against a closed port should fail")
	}
	if err := p.Publish(ctx, events.TagData{Symbol: "X"}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Publish after failed Start = %v", err)
	}
}
