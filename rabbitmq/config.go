package rabbitmq

import (
	"crypto/tls"
	"fmt"
	"maps"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/israelio/rabbit-go-core/internal/protocol"
)

// Authentication is a SASL mechanism offered in connection.start-ok. The
// amqp091-go PlainAuth and AMQPlainAuth types satisfy it.
type Authentication interface {
	Mechanism() string
	Response() string
}

// PlainAuth returns SASL PLAIN credentials
func PlainAuth(username, password string) Authentication {
	return &amqp.PlainAuth{Username: username, Password: password}
}

// AMQPlainAuth returns credentials for the legacy AMQPLAIN mechanism
func AMQPlainAuth(username, password string) Authentication {
	return &amqp.AMQPlainAuth{Username: username, Password: password}
}

// FlowPolicy decides what a publish does while the broker has paused the
// channel with channel.flow.
type FlowPolicy int

const (
	// FlowReject fails the publish with ErrFlowBlocked
	FlowReject FlowPolicy = iota
	// FlowQueue holds the message and sends it when flow resumes
	FlowQueue
)

func (p FlowPolicy) String() string {
	switch p {
	case FlowReject:
		return "reject"
	case FlowQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// Config holds the connection parameters consumed by the protocol core
type Config struct {
	// Connection settings
	Host  string
	Port  int
	VHost string

	// SASL mechanisms in order of preference
	Auth []Authentication

	// TLS configuration, used by Dial
	TLS *tls.Config

	// Timeouts
	ConnectionTimeout time.Duration
	HandshakeTimeout  time.Duration

	// Requested limits. 0 accepts the server's value.
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  time.Duration

	Locale string

	// Client properties sent to server
	ClientProperties Table

	FlowPolicy FlowPolicy

	// Recovery, used by BlockingConnection.Reconnect. TopologyRecovery
	// replays declared exchanges, queues, bindings and consumers.
	TopologyRecovery bool
	RecoveryInterval time.Duration
	RecoveryAttempts int

	// Logger overrides the package logger for this connection
	Logger *zerolog.Logger

	Metrics MetricsCollector
}

// NewConfig creates a Config with defaults and applies opts
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Host:              "localhost",
		Port:              5672,
		VHost:             "/",
		Auth:              []Authentication{PlainAuth("guest", "guest")},
		ConnectionTimeout: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		Heartbeat:         10 * time.Second,
		ChannelMax:        2047,
		FrameMax:          protocol.DefaultFrameMax,
		Locale:            "en_US",
		ClientProperties:  defaultClientProperties(),
		FlowPolicy:        FlowReject,
		TopologyRecovery:  true,
		RecoveryInterval:  5 * time.Second,
		RecoveryAttempts:  3,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// Validate validates the configuration
func (cfg *Config) Validate() error {
	if cfg.VHost == "" {
		return fmt.Errorf("vhost cannot be empty")
	}

	if len(cfg.Auth) == 0 {
		return fmt.Errorf("at least one authentication mechanism is required")
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}

	if cfg.ConnectionTimeout < 0 {
		return fmt.Errorf("connection timeout cannot be negative, got %v", cfg.ConnectionTimeout)
	}
	if cfg.HandshakeTimeout < 0 {
		return fmt.Errorf("handshake timeout cannot be negative, got %v", cfg.HandshakeTimeout)
	}

	// 0 lets the server decide
	if cfg.Heartbeat < 0 {
		return fmt.Errorf("heartbeat cannot be negative, got %v", cfg.Heartbeat)
	}
	if cfg.Heartbeat > 0xFFFF*time.Second {
		return fmt.Errorf("heartbeat too large, got %v", cfg.Heartbeat)
	}

	if cfg.FrameMax != 0 && cfg.FrameMax < protocol.FrameMinSize {
		return fmt.Errorf("frame max must be 0 or >= %d, got %d", protocol.FrameMinSize, cfg.FrameMax)
	}

	if cfg.RecoveryInterval < 0 {
		return fmt.Errorf("recovery interval cannot be negative, got %v", cfg.RecoveryInterval)
	}
	if cfg.RecoveryAttempts < 0 {
		return fmt.Errorf("recovery attempts cannot be negative, got %d", cfg.RecoveryAttempts)
	}

	if cfg.FlowPolicy != FlowReject && cfg.FlowPolicy != FlowQueue {
		return fmt.Errorf("unknown flow policy %d", cfg.FlowPolicy)
	}

	return nil
}

func (cfg *Config) clone() *Config {
	c := *cfg
	c.Auth = append([]Authentication(nil), cfg.Auth...)
	c.ClientProperties = maps.Clone(cfg.ClientProperties)
	return &c
}

func (cfg *Config) logger() zerolog.Logger {
	if cfg.Logger != nil {
		return *cfg.Logger
	}
	return logger
}

func (cfg *Config) metrics() MetricsCollector {
	if cfg.Metrics != nil {
		return cfg.Metrics
	}
	return NewNoOpMetricsCollector()
}

// defaultClientProperties returns default client properties
func defaultClientProperties() Table {
	return Table{
		"product":     "rabbit-go-core",
		"version":     "1.0.0",
		"platform":    "Go",
		"information": "AMQP 0-9-1 client core",
		"capabilities": Table{
			"publisher_confirms":           true,
			"exchange_exchange_bindings":   true,
			"basic.nack":                   true,
			"consumer_cancel_notify":       true,
			"connection.blocked":           true,
			"authentication_failure_close": true,
		},
	}
}
