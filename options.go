// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"context"
	"net"
	"time"
)

// Client configuration options using the functional options pattern

// TLSCert sets the TLS client certificate file path (PEM)
//
// The certificate will be loaded when the connection is established.
// If the certificate file cannot be read, an error will be returned during connection.
func TLSCert(certPath string) func(*Client) {
	return func(c *Client) {
		c.tlsCert = certPath
	}
}

// TLSKey sets the TLS private key file path (PEM)
//
// The key will be loaded when the connection is established.
// If the key file cannot be read, an error will be returned during connection.
func TLSKey(keyPath string) func(*Client) {
	return func(c *Client) {
		c.tlsKey = keyPath
	}
}

// TLSCA sets the CA certificate file path used to authorize the server (PEM)
//
// Needed when the server uses a self-signed certificate.
func TLSCA(caPath string) func(*Client) {
	return func(c *Client) {
		c.tlsCA = caPath
	}
}

// WithCredentials supplies TLS material from code instead of files
//
// The supplier is invoked on every Connect; it takes precedence over
// TLSCert, TLSKey and TLSCA. Enables TLS.
func WithCredentials(supplier CredentialSupplier) func(*Client) {
	return func(c *Client) {
		if supplier != nil {
			c.credentials = supplier
			c.UseTLS = true
		}
	}
}

// Port sets the OVSDB port (default: 6640)
func Port(port int) func(*Client) {
	return func(c *Client) {
		c.Port = port
	}
}

// TLS enables or disables TLS (default: false)
//
// ovsdb-server commonly listens on plain TCP (ptcp:6640) on a management
// network. Use TLS (pssl:6640) whenever the stream leaves the host.
func TLS(enabled bool) func(*Client) {
	return func(c *Client) {
		c.UseTLS = enabled
	}
}

// VerifyCertificate enables or disables TLS certificate verification (default: true)
//
// With verification disabled the handshake succeeds against any server
// certificate. The verification outcome is still computed against the
// configured CA and reported by Authorized().
//
// WARNING: Disabling certificate verification makes the connection vulnerable
// to Man-in-the-Middle attacks. Only use this in testing environments where
// security is not a concern.
func VerifyCertificate(verify bool) func(*Client) {
	return func(c *Client) {
		c.VerifyCertificate = verify
	}
}

// ConnectTimeout sets the connection timeout, covering dial and TLS handshake (default: 10s)
func ConnectTimeout(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.ConnectTimeout = duration
	}
}

// OperationTimeout sets the per-call timeout (default: 8s)
func OperationTimeout(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.OperationTimeout = duration
	}
}

// ResolveConcurrency bounds the concurrent cross-link lookups of one fetch (default: 16)
func ResolveConcurrency(n int) func(*Client) {
	return func(c *Client) {
		c.ResolveConcurrency = n
	}
}

// MaxUpdates bounds the in-memory update log (default: 1000)
func MaxUpdates(n int) func(*Client) {
	return func(c *Client) {
		c.MaxUpdates = n
	}
}

// WithMonitor subscribes to changes of table columns on every Connect
//
// The subscription targets the first discovered database. Changes arrive as
// update notifications and are recorded in the update log.
//
// Example:
//
//	client, _ := ovsdb.NewClient("192.168.1.1",
//	    ovsdb.WithMonitor("Bridge", "name"),
//	    ovsdb.WithMonitor("Port", "name"))
func WithMonitor(table string, columns ...string) func(*Client) {
	return func(c *Client) {
		c.monitorSpecs = append(c.monitorSpecs, MonitorSpec{Table: table, Columns: columns})
	}
}

// WithEventHandler observes connection events (connect, data, drain, end,
// error, close, request, notification, response)
func WithEventHandler(handler EventHandler) func(*Client) {
	return func(c *Client) {
		c.eventHandler = handler
	}
}

// WithHandler exposes a local method the server may call
//
// Handlers are registered on every Connect. The built-in "echo" and "update"
// methods cannot be replaced. A nil handler is ignored.
func WithHandler(method string, h Handler) func(*Client) {
	return func(c *Client) {
		if h != nil {
			c.services = append(c.services, service{methods: map[string]Handler{method: h}})
		}
	}
}

// WithService exposes every handler of a service as "namespace.method"
//
// Example:
//
//	client, _ := ovsdb.NewClient("192.168.1.1",
//	    ovsdb.WithService("stats", map[string]ovsdb.Handler{
//	        "reset": resetCounters,
//	    }))
func WithService(namespace string, methods map[string]Handler) func(*Client) {
	return func(c *Client) {
		if len(methods) > 0 {
			c.services = append(c.services, service{namespace: namespace, methods: methods})
		}
	}
}

// WithDialer replaces the network dialer, e.g. to tunnel the stream or to
// attach an in-memory peer
func WithDialer(dial func(ctx context.Context, network, address string) (net.Conn, error)) func(*Client) {
	return func(c *Client) {
		c.dial = dial
	}
}

// WithLogger configures a custom logger for the client
//
// By default, the client uses NoOpLogger which discards all log messages.
// Use this option to enable logging with DefaultLogger or a custom logger.
//
// All JSON content logged at Debug level is automatically redacted to remove
// sensitive data (passwords, private keys, certificates, secrets, tokens).
//
// Example (DefaultLogger):
//
//	logger := ovsdb.NewDefaultLogger(ovsdb.LogLevelInfo)
//	client, _ := ovsdb.NewClient("192.168.1.1",
//	    ovsdb.WithLogger(logger))
func WithLogger(logger Logger) func(*Client) {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPrettyPrintLogs enables/disables JSON pretty printing in logs
//
// When enabled, JSON content in debug logs is formatted for better
// readability. When disabled (default), raw JSON is logged without formatting.
func WithPrettyPrintLogs(enabled bool) func(*Client) {
	return func(c *Client) {
		c.prettyPrintLogs = enabled
	}
}

// Request modifiers for individual operations

// Timeout returns a request modifier that sets a custom timeout for one call.
//
// It replaces the client's OperationTimeout for that call only. The call
// still ends early when its context is canceled.
//
// Example:
//
//	// Transact with 30 second timeout
//	res, err := client.Transact(ctx, "Open_vSwitch", ops,
//	    ovsdb.Timeout(30*time.Second))
func Timeout(duration time.Duration) func(*Req) {
	return func(req *Req) {
		req.Timeout = duration
	}
}
