package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/enip"
	"github.com/Bataide/cip-enip-driver/internal/errors"
)

func TestDefaultPorts(t *testing.T) {
	if enip.DefaultPort != 44818 {
		t.Fatalf("enip.DefaultPort = %d, want 44818", enip.DefaultPort)
	}
	cfg := DefaultConfig()
	if cfg.Endpoint.ListenPort != enip.DefaultPort || cfg.Endpoint.RemotePort != enip.DefaultPort {
		t.Errorf("ports = %d/%d, want %d", cfg.Endpoint.ListenPort, cfg.Endpoint.RemotePort, enip.DefaultPort)
	}

	sparse := &Config{Endpoint: EndpointConfig{RemoteIP: "10.0.0.50"}}
	ApplyDefaults(sparse)
	if sparse.Endpoint.ListenPort != enip.DefaultPort || sparse.Endpoint.RemotePort != enip.DefaultPort {
		t.Errorf("defaulted ports = %d/%d", sparse.Endpoint.ListenPort, sparse.Endpoint.RemotePort)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default config",
			mutate: func(*Config) {},
		},
		{
			name: "target only without remote",
			mutate: func(c *Config) {
				c.Endpoint.EnableOriginator = false
				c.Endpoint.RemoteIP = ""
			},
		},
		{
			name: "no roles",
			mutate: func(c *Config) {
				c.Endpoint.EnableOriginator = false
				c.Endpoint.EnableTarget = false
			},
			wantErr: "at least one of",
		},
		{
			name:    "originator without remote",
			mutate:  func(c *Config) { c.Endpoint.RemoteIP = "" },
			wantErr: "remote_ip is required",
		},
		{
			name:    "bad remote ip",
			mutate:  func(c *Config) { c.Endpoint.RemoteIP = "plc.local" },
			wantErr: "remote_ip: invalid address",
		},
		{
			name:    "listen port out of range",
			mutate:  func(c *Config) { c.Endpoint.ListenPort = 70000 },
			wantErr: "endpoint.listen_port",
		},
		{
			name:    "negative timer",
			mutate:  func(c *Config) { c.Session.SendTimeoutMs = -1 },
			wantErr: "session.send_timeout_ms",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "chatty" },
			wantErr: "logging.level",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name: "api with bad address",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.ListenAddr = "8080"
			},
			wantErr: "api.listen_addr",
		},
		{
			name: "duplicate mqtt names",
			mutate: func(c *Config) {
				c.MQTT = []MQTTConfig{
					{Name: "a", Broker: "localhost", Port: 1883},
					{Name: "a", Broker: "localhost", Port: 1883},
				}
			},
			wantErr: "duplicate name",
		},
		{
			name: "enabled mqtt without broker",
			mutate: func(c *Config) {
				c.MQTT = []MQTTConfig{{Name: "a", Enabled: true, Port: 1883}}
			},
			wantErr: "broker is required",
		},
		{
			name: "enabled kafka without brokers",
			mutate: func(c *Config) {
				c.Kafka = []KafkaConfig{{Name: "k", Enabled: true}}
			},
			wantErr: "at least one broker",
		},
		{
			name: "kafka acks out of range",
			mutate: func(c *Config) {
				c.Kafka = []KafkaConfig{{Name: "k", Brokers: []string{"b:9092"}, RequiredAcks: 3}}
			},
			wantErr: "required_acks",
		},
		{
			name: "enabled valkey without address",
			mutate: func(c *Config) {
				c.Valkey = []ValkeyConfig{{Name: "v", Enabled: true}}
			},
			wantErr: "address is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cipenip.yaml")
	content := `
endpoint:
  listen_port: 2222
  remote_ip: "10.0.0.50"
  enable_originator: true
  enable_target: true
session:
  send_timeout_ms: 1500
logging:
  level: debug
mqtt:
  - name: plant
    enabled: true
    broker: mqtt.local
valkey:
  - name: cache
    address: "localhost:6379"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Endpoint.ListenAddr() != "0.0.0.0:2222" {
		t.Errorf("listen addr = %q", cfg.Endpoint.ListenAddr())
	}
	if cfg.Endpoint.RemoteAddr() != "10.0.0.50:44818" {
		t.Errorf("remote addr = %q", cfg.Endpoint.RemoteAddr())
	}
	if cfg.Session.SendTimeout() != 1500*time.Millisecond {
		t.Errorf("send timeout = %v", cfg.Session.SendTimeout())
	}
	if cfg.Session.KeepAlive() != 2*time.Second || cfg.Session.StallTimeout() != 2*time.Second {
		t.Errorf("timer defaults not applied: %+v", cfg.Session)
	}
	if cfg.Session.Reconnect() != 5*time.Second {
		t.Errorf("reconnect = %v", cfg.Session.Reconnect())
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" || cfg.Logging.LogEvery != 1 {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if len(cfg.MQTT) != 1 || cfg.MQTT[0].Port != 1883 || cfg.MQTT[0].RootTopic != "cipenip" || cfg.MQTT[0].ClientID != "cipenip-plant" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
	if len(cfg.Valkey) != 1 || cfg.Valkey[0].KeyPrefix != "cipenip" {
		t.Errorf("valkey = %+v", cfg.Valkey)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error")
	}
	var ufe errors.UserFriendlyError
	if !stderrors.As(err, &ufe) {
		t.Fatalf("expected UserFriendlyError, got %T", err)
	}
	if !strings.Contains(ufe.Try, "config init") || !stderrors.Is(err, os.ErrNotExist) {
		t.Errorf("Try = %q", ufe.Try)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("endpoint: [unclosed"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "parse YAML") {
		t.Fatalf("error = %v", err)
	}
}

func TestWriteDefaultConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cipenip.yaml")
	if err := WriteDefaultConfig(path); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := DefaultConfig()
	if cfg.Endpoint != want.Endpoint || cfg.Session != want.Session || cfg.Logging != want.Logging {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", cfg, want)
	}
}
