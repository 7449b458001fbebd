package rabbitmq

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
)

// Dial parses uri, connects to the broker and runs the handshake. opts are
// applied on top of what the URI sets.
func Dial(ctx context.Context, uri string, opts ...Option) (*BlockingConnection, error) {
	cfg, err := ParseURI(uri, opts...)
	if err != nil {
		return nil, err
	}
	return DialConfig(ctx, cfg)
}

// DialConfig connects to cfg.Host:cfg.Port, over TLS when cfg.TLS is set,
// and runs the handshake
func DialConfig(ctx context.Context, cfg *Config) (*BlockingConnection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return OpenDialer(ctx, func(ctx context.Context) (io.ReadWriteCloser, error) {
		return dial(ctx, cfg)
	}, cfg)
}

// OpenDialer opens a transport with dialer and runs the handshake over it.
// The connection keeps dialer for Reconnect.
func OpenDialer(ctx context.Context, dialer Dialer, cfg *Config) (*BlockingConnection, error) {
	transport, err := dialer(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetupFailed, &TransportError{Op: "dial", Err: err})
	}
	b, err := Open(ctx, transport, cfg)
	if err != nil {
		return nil, err
	}
	b.redial = dialer
	return b, nil
}

// dial establishes a network connection (TCP or TLS)
func dial(ctx context.Context, cfg *Config) (net.Conn, error) {
	addr := cfg.addr()

	dialer := &net.Dialer{
		Timeout: cfg.ConnectionTimeout,
	}

	if cfg.TLS != nil {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config:    cfg.TLS,
		}
		return tlsDialer.DialContext(ctx, "tcp", addr)
	}

	return dialer.DialContext(ctx, "tcp", addr)
}
