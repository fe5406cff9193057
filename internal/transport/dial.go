package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"

	"github.com/cockroachdb/errors"
)

// ContextDialer is the custom-dialer escape hatch: anything satisfying it
// can stand in for the built-in TCP/TLS dial, including the in-memory
// loopback used in tests.
type ContextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// dial resolves cfg.ServerURL and returns a connected net.Conn, applying
// TLS when the scheme or cfg.TLSConfig calls for it. Scheme -> default
// port: tcp/mqtt -> 1883, tls/ssl/mqtts -> 8883.
func dial(ctx context.Context, cfg Config) (net.Conn, error) {
	if cfg.Dialer != nil {
		network := "tcp"
		if u, err := url.Parse(cfg.ServerURL); err == nil && u.Scheme != "" {
			network = u.Scheme
		}
		conn, err := cfg.Dialer.DialContext(ctx, network, cfg.ServerURL)
		if err != nil {
			return nil, errors.Wrap(err, "transport: custom dialer failed")
		}
		return conn, nil
	}

	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, errors.Wrap(err, "transport: invalid server URL")
	}
	if u.Port() == "" {
		switch u.Scheme {
		case "tls", "ssl", "mqtts":
			u.Host = net.JoinHostPort(u.Host, "8883")
		case "tcp", "mqtt", "":
			u.Host = net.JoinHostPort(u.Host, "1883")
		}
	}

	useTLS := u.Scheme == "tls" || u.Scheme == "ssl" || u.Scheme == "mqtts" || cfg.TLSConfig != nil
	if !useTLS && u.Scheme != "tcp" && u.Scheme != "mqtt" && u.Scheme != "" {
		return nil, errors.Newf("transport: unsupported scheme %q (supported: tcp, mqtt, tls, ssl, mqtts)", u.Scheme)
	}

	if useTLS {
		tlsConfig := cfg.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		}
		d := &tls.Dialer{NetDialer: &net.Dialer{}, Config: tlsConfig}
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, errors.Wrap(err, "transport: TLS dial failed")
		}
		return conn, nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return nil, errors.Wrap(err, "transport: dial failed")
	}
	return conn, nil
}
