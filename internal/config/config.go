package config

// Configuration loading and validation for the cipenip endpoint

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Bataide/cip-enip-driver/internal/enip"
	"github.com/Bataide/cip-enip-driver/internal/errors"
	"github.com/Bataide/cip-enip-driver/internal/logging"
)

// EndpointConfig selects the roles the endpoint plays and their addresses.
type EndpointConfig struct {
	ListenIP         string `yaml:"listen_ip"`
	ListenPort       int    `yaml:"listen_port"`
	RemoteIP         string `yaml:"remote_ip"`
	RemotePort       int    `yaml:"remote_port"`
	EnableOriginator bool   `yaml:"enable_originator"`
	EnableTarget     bool   `yaml:"enable_target"`
}

// ListenAddr returns the host:port the target listens on.
func (e EndpointConfig) ListenAddr() string {
	return net.JoinHostPort(e.ListenIP, fmt.Sprint(e.ListenPort))
}

// RemoteAddr returns the host:port of the controller the originator dials.
func (e EndpointConfig) RemoteAddr() string {
	return net.JoinHostPort(e.RemoteIP, fmt.Sprint(e.RemotePort))
}

// SessionConfig holds protocol timers, all in milliseconds.
type SessionConfig struct {
	SendTimeoutMs  int `yaml:"send_timeout_ms"`
	KeepAliveMs    int `yaml:"keepalive_ms"`
	StallTimeoutMs int `yaml:"stall_timeout_ms"`
	ReconnectMs    int `yaml:"reconnect_ms"`
	ReadTimeoutMs  int `yaml:"read_timeout_ms"`
}

func (s SessionConfig) SendTimeout() time.Duration  { return ms(s.SendTimeoutMs) }
func (s SessionConfig) KeepAlive() time.Duration    { return ms(s.KeepAliveMs) }
func (s SessionConfig) StallTimeout() time.Duration { return ms(s.StallTimeoutMs) }
func (s SessionConfig) Reconnect() time.Duration    { return ms(s.ReconnectMs) }
func (s SessionConfig) ReadTimeout() time.Duration  { return ms(s.ReadTimeoutMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// LoggingConfig configures the leveled logger.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	File     string `yaml:"file,omitempty"`
	Format   string `yaml:"format"`    // "text" or "json"
	LogEvery int    `yaml:"log_every"` // console sampling of non-error messages
}

// MetricsConfig names the optional metrics output files.
type MetricsConfig struct {
	CSVFile  string `yaml:"csv_file,omitempty"`
	JSONFile string `yaml:"json_file,omitempty"`
}

// APIConfig configures the HTTP status API.
type APIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// TraceConfig enables a pcap trace of every frame on the wire.
type TraceConfig struct {
	PcapFile string `yaml:"pcap_file,omitempty"`
}

// MQTTConfig holds MQTT publisher configuration.
type MQTTConfig struct {
	Name      string `yaml:"name"`
	Enabled   bool   `yaml:"enabled"`
	Broker    string `yaml:"broker"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
	ClientID  string `yaml:"client_id"`
	RootTopic string `yaml:"root_topic"`
	UseTLS    bool   `yaml:"use_tls,omitempty"`
}

// KafkaConfig holds Kafka producer configuration.
type KafkaConfig struct {
	Name         string   `yaml:"name"`
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	RequiredAcks int      `yaml:"required_acks,omitempty"` // -1=all, 0=none, 1=leader
	MaxRetries   int      `yaml:"max_retries,omitempty"`
	AutoCreate   bool     `yaml:"auto_create_topics,omitempty"`
}

// ValkeyConfig holds Valkey/Redis publisher configuration.
type ValkeyConfig struct {
	Name           string        `yaml:"name"`
	Enabled        bool          `yaml:"enabled"`
	Address        string        `yaml:"address"` // host:port
	Password       string        `yaml:"password,omitempty"`
	Database       int           `yaml:"database"`
	KeyPrefix      string        `yaml:"key_prefix"`
	KeyTTL         time.Duration `yaml:"key_ttl,omitempty"`
	PublishChanges bool          `yaml:"publish_changes,omitempty"`
}

// Config is the complete endpoint configuration.
type Config struct {
	Endpoint EndpointConfig `yaml:"endpoint"`
	Session  SessionConfig  `yaml:"session"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
	API      APIConfig      `yaml:"api"`
	Trace    TraceConfig    `yaml:"trace,omitempty"`
	MQTT     []MQTTConfig   `yaml:"mqtt,omitempty"`
	Kafka    []KafkaConfig  `yaml:"kafka,omitempty"`
	Valkey   []ValkeyConfig `yaml:"valkey,omitempty"`
}

// DefaultConfig returns a configuration that runs both roles on the
// standard port against a controller on localhost.
func DefaultConfig() *Config {
	cfg := &Config{
		Endpoint: EndpointConfig{
			ListenIP:         "0.0.0.0",
			ListenPort:       enip.DefaultPort,
			RemoteIP:         "127.0.0.1",
			RemotePort:       enip.DefaultPort,
			EnableOriginator: true,
			EnableTarget:     true,
		},
		API: APIConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:8080",
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values with the protocol defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Endpoint.ListenIP == "" {
		cfg.Endpoint.ListenIP = "0.0.0.0"
	}
	if cfg.Endpoint.ListenPort == 0 {
		cfg.Endpoint.ListenPort = enip.DefaultPort
	}
	if cfg.Endpoint.RemotePort == 0 {
		cfg.Endpoint.RemotePort = enip.DefaultPort
	}
	if cfg.Session.SendTimeoutMs == 0 {
		cfg.Session.SendTimeoutMs = 2000
	}
	if cfg.Session.KeepAliveMs == 0 {
		cfg.Session.KeepAliveMs = 2000
	}
	if cfg.Session.StallTimeoutMs == 0 {
		cfg.Session.StallTimeoutMs = 2000
	}
	if cfg.Session.ReconnectMs == 0 {
		cfg.Session.ReconnectMs = 5000
	}
	if cfg.Session.ReadTimeoutMs == 0 {
		cfg.Session.ReadTimeoutMs = 500
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.LogEvery == 0 {
		cfg.Logging.LogEvery = 1
	}
	if cfg.API.ListenAddr == "" {
		cfg.API.ListenAddr = "127.0.0.1:8080"
	}
	for i := range cfg.MQTT {
		if cfg.MQTT[i].Port == 0 {
			cfg.MQTT[i].Port = 1883
		}
		if cfg.MQTT[i].RootTopic == "" {
			cfg.MQTT[i].RootTopic = "cipenip"
		}
		if cfg.MQTT[i].ClientID == "" {
			cfg.MQTT[i].ClientID = "cipenip-" + cfg.MQTT[i].Name
		}
	}
	for i := range cfg.Kafka {
		if cfg.Kafka[i].Topic == "" {
			cfg.Kafka[i].Topic = "cipenip.tags"
		}
	}
	for i := range cfg.Valkey {
		if cfg.Valkey[i].KeyPrefix == "" {
			cfg.Valkey[i].KeyPrefix = "cipenip"
		}
	}
}

// WriteDefaultConfig writes the default configuration to a file
func WriteDefaultConfig(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LoadConfig reads, defaults and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WrapConfigError(err, path)
	}
	return cfg, nil
}

// Parse decodes YAML into a defaulted, validated configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks a configuration for values the endpoint cannot run with.
func Validate(cfg *Config) error {
	ep := cfg.Endpoint
	if !ep.EnableOriginator && !ep.EnableTarget {
		return fmt.Errorf("endpoint: at least one of enable_originator or enable_target must be true")
	}
	if err := validatePort("endpoint.listen_port", ep.ListenPort); err != nil {
		return err
	}
	if err := validatePort("endpoint.remote_port", ep.RemotePort); err != nil {
		return err
	}
	if ep.ListenIP != "" && net.ParseIP(ep.ListenIP) == nil {
		return fmt.Errorf("endpoint.listen_ip: invalid address %q", ep.ListenIP)
	}
	if ep.EnableOriginator {
		if ep.RemoteIP == "" {
			return fmt.Errorf("endpoint.remote_ip is required when enable_originator is true")
		}
		if net.ParseIP(ep.RemoteIP) == nil {
			return fmt.Errorf("endpoint.remote_ip: invalid address %q", ep.RemoteIP)
		}
	}

	timers := []struct {
		name string
		v    int
	}{
		{"session.send_timeout_ms", cfg.Session.SendTimeoutMs},
		{"session.keepalive_ms", cfg.Session.KeepAliveMs},
		{"session.stall_timeout_ms", cfg.Session.StallTimeoutMs},
		{"session.reconnect_ms", cfg.Session.ReconnectMs},
		{"session.read_timeout_ms", cfg.Session.ReadTimeoutMs},
	}
	for _, tm := range timers {
		if tm.v < 0 {
			return fmt.Errorf("%s must be positive, got %d", tm.name, tm.v)
		}
	}

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.LogEvery < 1 {
		return fmt.Errorf("logging.log_every must be at least 1, got %d", cfg.Logging.LogEvery)
	}

	if cfg.API.Enabled {
		if _, _, err := net.SplitHostPort(cfg.API.ListenAddr); err != nil {
			return fmt.Errorf("api.listen_addr: %w", err)
		}
	}

	names := make(map[string]bool)
	checkName := func(section, name string, i int) error {
		if name == "" {
			return fmt.Errorf("%s[%d]: name is required", section, i)
		}
		key := section + "/" + name
		if names[key] {
			return fmt.Errorf("%s[%d]: duplicate name %q", section, i, name)
		}
		names[key] = true
		return nil
	}
	for i, m := range cfg.MQTT {
		if err := checkName("mqtt", m.Name, i); err != nil {
			return err
		}
		if m.Enabled && m.Broker == "" {
			return fmt.Errorf("mqtt[%d]: broker is required", i)
		}
		if err := validatePort(fmt.Sprintf("mqtt[%d].port", i), m.Port); err != nil {
			return err
		}
	}
	for i, k := range cfg.Kafka {
		if err := checkName("kafka", k.Name, i); err != nil {
			return err
		}
		if k.Enabled && len(k.Brokers) == 0 {
			return fmt.Errorf("kafka[%d]: at least one broker is required", i)
		}
		if k.RequiredAcks < -1 || k.RequiredAcks > 1 {
			return fmt.Errorf("kafka[%d]: required_acks must be -1, 0 or 1, got %d", i, k.RequiredAcks)
		}
	}
	for i, v := range cfg.Valkey {
		if err := checkName("valkey", v.Name, i); err != nil {
			return err
		}
		if v.Enabled && v.Address == "" {
			return fmt.Errorf("valkey[%d]: address is required", i)
		}
		if v.Database < 0 {
			return fmt.Errorf("valkey[%d]: database must not be negative", i)
		}
	}
	return nil
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}
