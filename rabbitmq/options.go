package rabbitmq

import (
	"crypto/tls"
	"time"

	"github.com/rs/zerolog"
)

// Option is a functional option for Config
type Option func(*Config)

// WithHost sets the host to connect to
func WithHost(host string) Option {
	return func(cfg *Config) {
		cfg.Host = host
	}
}

// WithPort sets the port to connect to
func WithPort(port int) Option {
	return func(cfg *Config) {
		cfg.Port = port
	}
}

// WithCredentials replaces the SASL mechanisms with PLAIN username/password
func WithCredentials(username, password string) Option {
	return func(cfg *Config) {
		cfg.Auth = []Authentication{PlainAuth(username, password)}
	}
}

// WithAuth sets the SASL mechanisms, most preferred first
func WithAuth(auth ...Authentication) Option {
	return func(cfg *Config) {
		cfg.Auth = auth
	}
}

// WithVHost sets the virtual host
func WithVHost(vhost string) Option {
	return func(cfg *Config) {
		cfg.VHost = vhost
	}
}

// WithTLS enables TLS with the given configuration
func WithTLS(config *tls.Config) Option {
	return func(cfg *Config) {
		cfg.TLS = config
	}
}

// WithConnectionTimeout sets the connection timeout
func WithConnectionTimeout(timeout time.Duration) Option {
	return func(cfg *Config) {
		cfg.ConnectionTimeout = timeout
	}
}

// WithHandshakeTimeout sets the handshake timeout
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(cfg *Config) {
		cfg.HandshakeTimeout = timeout
	}
}

// WithHeartbeat sets the heartbeat interval
func WithHeartbeat(interval time.Duration) Option {
	return func(cfg *Config) {
		cfg.Heartbeat = interval
	}
}

// WithChannelMax sets the maximum number of channels
func WithChannelMax(max uint16) Option {
	return func(cfg *Config) {
		cfg.ChannelMax = max
	}
}

// WithFrameMax sets the maximum frame size
func WithFrameMax(max uint32) Option {
	return func(cfg *Config) {
		cfg.FrameMax = max
	}
}

// WithLocale sets the locale requested in start-ok
func WithLocale(locale string) Option {
	return func(cfg *Config) {
		cfg.Locale = locale
	}
}

// WithClientProperties sets custom client properties
func WithClientProperties(properties Table) Option {
	return func(cfg *Config) {
		if cfg.ClientProperties == nil {
			cfg.ClientProperties = make(Table)
		}
		for k, v := range properties {
			cfg.ClientProperties[k] = v
		}
	}
}

// WithClientProperty sets a single client property
func WithClientProperty(key string, value interface{}) Option {
	return func(cfg *Config) {
		if cfg.ClientProperties == nil {
			cfg.ClientProperties = make(Table)
		}
		cfg.ClientProperties[key] = value
	}
}

// WithConnectionName sets the connection_name client property shown by the
// broker management UI
func WithConnectionName(name string) Option {
	return WithClientProperty("connection_name", name)
}

// WithFlowPolicy sets what publishing does while the channel is paused
func WithFlowPolicy(policy FlowPolicy) Option {
	return func(cfg *Config) {
		cfg.FlowPolicy = policy
	}
}

// WithTopologyRecovery enables or disables topology replay on Reconnect
func WithTopologyRecovery(enabled bool) Option {
	return func(cfg *Config) {
		cfg.TopologyRecovery = enabled
	}
}

// WithRecoveryInterval sets the interval between reconnect attempts
func WithRecoveryInterval(interval time.Duration) Option {
	return func(cfg *Config) {
		cfg.RecoveryInterval = interval
	}
}

// WithRecoveryAttempts sets how many times Reconnect dials before giving up
func WithRecoveryAttempts(attempts int) Option {
	return func(cfg *Config) {
		cfg.RecoveryAttempts = attempts
	}
}

// WithLogger sets a custom logger
func WithLogger(l zerolog.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = &l
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m MetricsCollector) Option {
	return func(cfg *Config) {
		cfg.Metrics = m
	}
}
