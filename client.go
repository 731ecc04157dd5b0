// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Default client configuration values
const (
	DefaultPort               = 6640
	DefaultConnectTimeout     = 10 * time.Second
	DefaultOperationTimeout   = 8 * time.Second
	DefaultResolveConcurrency = 16
	DefaultMaxUpdates         = 1000
	DefaultUseTLS             = false
	DefaultVerifyCertificate  = true
	DefaultPrettyPrintLogs    = false
)

// Security limits for JSON processing and logging
const (
	MaxJSONSizeForLogging = 1 * 1024 * 1024 // 1MB limit to prevent ReDoS attacks
	MaxSensitiveFields    = 1000            // Max redaction operations to prevent DoS
)

// Logging message constants
const (
	JSONTooLargeMessage     = "[JSON TOO LARGE FOR LOGGING]"
	JSONTooManySensitiveMsg = "[JSON CONTAINS TOO MANY SENSITIVE FIELDS]"
)

// sensitiveFields are redacted from JSON before it is logged
var sensitiveFields = []string{
	"password",
	"private_key",
	"certificate",
	"secret",
	"key",
	"token",
}

// defaultRedactionPatterns contains regex patterns for redacting sensitive data in logs
var defaultRedactionPatterns = func() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(sensitiveFields))
	for _, field := range sensitiveFields {
		patterns = append(patterns, regexp.MustCompile(`"`+field+`"\s*:\s*"[^"]*"`))
	}
	return patterns
}()

// Credentials carries PEM encoded TLS material
type Credentials struct {
	PrivateKey    []byte
	Certificate   []byte
	CACertificate []byte
}

// CredentialSupplier returns the TLS material for a new connection
type CredentialSupplier func(ctx context.Context) (Credentials, error)

// service is a set of local methods exposed under a namespace
type service struct {
	namespace string
	methods   map[string]Handler
}

// Client represents an OVSDB client connection to one server
//
// A Client discovers every database and its schema on Connect and exposes
// each one as a Database object graph. All methods are safe for concurrent
// use; calls are multiplexed over the single connection.
type Client struct {
	// RWMutex to synchronize access to mutable state
	mu sync.RWMutex

	// connectMu serializes Connect; Close never takes it
	connectMu sync.Mutex

	// connectCancel aborts the Connect in progress, nil otherwise
	connectCancel context.CancelFunc

	conn       *Conn
	rpc        *rpcClient
	databases  map[string]*Database
	dbOrder    []string
	authorized bool
	authErr    error
	monitors   map[string]MonitorSpec
	updates    *updateLog

	// Connection parameters
	Target string
	Port   int

	// TLS configuration
	tlsCert     string // unexported for security
	tlsKey      string // unexported for security
	tlsCA       string // unexported for security
	credentials CredentialSupplier

	// TLS options
	UseTLS             bool
	VerifyCertificate  bool
	InsecureSkipVerify bool // Alias for !VerifyCertificate

	// Timeout configuration
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration

	// Object graph and update log limits
	ResolveConcurrency int
	MaxUpdates         int

	monitorSpecs []MonitorSpec
	services     []service
	eventHandler EventHandler
	dial         func(ctx context.Context, network, address string) (net.Conn, error)

	// Logging configuration
	logger            Logger
	prettyPrintLogs   bool
	redactionPatterns []*regexp.Regexp
}

// NewClient creates a new OVSDB client with the specified target and options
//
// NewClient only validates the configuration. Call Connect to open the
// stream and discover databases.
//
// Example:
//
//	client, err := ovsdb.NewClient("192.168.1.1",
//	    ovsdb.Port(6640),
//	    ovsdb.OperationTimeout(5*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)  // Configuration error
//	}
//	defer client.Close()
//
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)  // Connection error
//	}
//
// Returns a configured Client or an error if configuration validation fails.
func NewClient(target string, opts ...func(*Client)) (*Client, error) {
	client := &Client{
		Target:             target,
		Port:               DefaultPort,
		UseTLS:             DefaultUseTLS,
		VerifyCertificate:  DefaultVerifyCertificate,
		ConnectTimeout:     DefaultConnectTimeout,
		OperationTimeout:   DefaultOperationTimeout,
		ResolveConcurrency: DefaultResolveConcurrency,
		MaxUpdates:         DefaultMaxUpdates,
		logger:             &NoOpLogger{},
		prettyPrintLogs:    DefaultPrettyPrintLogs,
		redactionPatterns:  defaultRedactionPatterns,
		databases:          make(map[string]*Database),
		monitors:           make(map[string]MonitorSpec),
	}

	for _, opt := range opts {
		opt(client)
	}

	client.InsecureSkipVerify = !client.VerifyCertificate

	if err := client.validateConfig(); err != nil {
		return nil, err
	}

	client.updates = newUpdateLog(client.MaxUpdates)

	client.logger.Info(context.Background(), "OVSDB client created",
		"target", client.Target,
		"port", client.Port,
		"tls", client.UseTLS)

	return client, nil
}

// Connect opens the stream, discovers every database and its schema, builds
// the object graphs and starts the configured monitors
//
// Calling Connect on a connected client is a no-op. After Close (or after the
// connection failed) Connect dials again and rediscovers everything.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.Connected() {
		return nil
	}

	// Close cancels ctx to abort dialing and discovery
	ctx, cancelConnect := context.WithCancel(ctx)
	c.mu.Lock()
	c.connectCancel = cancelConnect
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.connectCancel = nil
		c.mu.Unlock()
		cancelConnect()
	}()

	dialCtx, cancel := context.WithTimeout(ctx, c.ConnectTimeout)
	nc, auth, err := c.dialStream(dialCtx)
	cancel()
	if err != nil {
		c.logger.Error(ctx, "OVSDB connection failed",
			"target", c.Target,
			"error", err.Error())
		return newTransportError("connect", err)
	}

	conn := newConn(nc, c.logger, c.eventHandler)
	conn.writeTimeout = c.OperationTimeout
	rpc := newRPCClient(conn, c.OperationTimeout, c.logger)
	for _, svc := range c.services {
		conn.ExposeService(svc.namespace, svc.methods)
	}
	conn.Expose(MethodEcho, c.handleEcho)
	conn.Expose(MethodUpdate, c.handleUpdate)
	conn.start()

	c.mu.Lock()
	c.conn = conn
	c.rpc = rpc
	c.authorized = auth.authorized
	c.authErr = auth.err
	c.databases = make(map[string]*Database)
	c.dbOrder = nil
	c.monitors = make(map[string]MonitorSpec)
	c.mu.Unlock()

	c.logger.Info(ctx, "OVSDB connection established",
		"target", c.Target,
		"port", c.Port,
		"authorized", auth.authorized)

	if err := c.discover(ctx); err != nil {
		_ = conn.Close() //nolint:errcheck // discovery error takes precedence
		return err
	}

	for _, spec := range c.monitorSpecs {
		if _, _, err := c.Monitor(ctx, "", spec.Table, spec.Columns); err != nil {
			_ = conn.Close() //nolint:errcheck // monitor error takes precedence
			return fmt.Errorf("monitor %s: %w", spec.Table, err)
		}
	}

	return nil
}

// discover lists databases, fetches every schema and builds the object graphs
func (c *Client) discover(ctx context.Context) error {
	names, err := c.ListDatabases(ctx)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	databases := make(map[string]*Database, len(names))
	for _, name := range names {
		schema, err := c.GetSchema(ctx, name)
		if err != nil {
			return fmt.Errorf("discover %s: %w", name, err)
		}
		databases[name] = newDatabase(c, name, schema)

		c.logger.Debug(ctx, "OVSDB database discovered",
			"database", name,
			"version", schema.Version,
			"tables", len(schema.Tables()))
	}

	c.mu.Lock()
	c.databases = databases
	c.dbOrder = names
	c.mu.Unlock()

	return nil
}

// Close closes the connection and fails every pending call
//
// A Connect still dialing or discovering is aborted and returns an error.
// Thread-safe: safe to call multiple times (subsequent calls are no-ops).
// The configuration is kept; Connect may be called again.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	cancelConnect := c.connectCancel
	c.mu.Unlock()

	if cancelConnect != nil {
		cancelConnect()
	}
	if conn == nil || !conn.Connected() {
		return nil
	}

	err := conn.Close()

	c.logger.Info(context.Background(), "OVSDB connection closed",
		"target", c.Target)

	return err
}

// Connected reports whether the connection is live
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.Connected()
}

// Done is closed when the current connection ends; nil before the first Connect
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Done()
}

// Authorized reports whether the server certificate verified against the
// configured CA (or the system roots). Always false for plain TCP.
func (c *Client) Authorized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authorized
}

// AuthorizationError returns why the server certificate did not verify
func (c *Client) AuthorizationError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authErr
}

// Databases returns the discovered database names in server order
func (c *Client) Databases() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.dbOrder...)
}

// Database returns the object graph of a database; an empty name selects the
// first discovered database
//
// Example:
//
//	db, err := client.Database("Open_vSwitch")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bridges, err := db.Table("bridges")
func (c *Client) Database(name string) (*Database, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if name == "" {
		if len(c.dbOrder) == 0 {
			return nil, ErrDatabaseNotFound
		}
		name = c.dbOrder[0]
	}
	db, ok := c.databases[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, name)
	}
	return db, nil
}

// DBSchema returns the schema of a database; an empty name selects the
// first discovered database
func (c *Client) DBSchema(name string) (*Schema, error) {
	db, err := c.Database(name)
	if err != nil {
		return nil, err
	}
	return db.Schema(), nil
}

// Pending returns the number of calls awaiting a response
func (c *Client) Pending() int {
	c.mu.RLock()
	rpc := c.rpc
	c.mu.RUnlock()
	if rpc == nil {
		return 0
	}
	return rpc.inFlight()
}

// HasCredentials returns true if TLS client credentials are configured
//
// This method only indicates if credentials exist without exposing
// the actual values.
func (c *Client) HasCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tlsCert != "" || c.credentials != nil
}

// handleEcho answers the liveness check with its own params
func (c *Client) handleEcho(_ context.Context, params []json.RawMessage) (any, error) {
	if params == nil {
		return []json.RawMessage{}, nil
	}
	return params, nil
}

// handleUpdate records an update notification: [monitor id, table updates]
func (c *Client) handleUpdate(ctx context.Context, params []json.RawMessage) (any, error) {
	u := Update{Received: time.Now()}
	if len(params) > 0 {
		var id string
		if err := json.Unmarshal(params[0], &id); err == nil {
			u.MonitorID = id
		} else {
			u.MonitorID = string(params[0])
		}
	}
	if len(params) > 1 {
		u.Tables = append(json.RawMessage(nil), params[1]...)
	}
	c.updates.add(u)

	c.logger.Debug(ctx, "OVSDB update received",
		"monitor", u.MonitorID,
		"tables", c.prepareJSONForLogging(string(u.Tables)))
	return nil, nil
}

// peerAuth is the outcome of verifying the server certificate
type peerAuth struct {
	authorized bool
	err        error
}

// dialStream opens the plain or TLS stream
func (c *Client) dialStream(ctx context.Context) (net.Conn, peerAuth, error) {
	address := c.address()

	dial := c.dial
	if dial == nil {
		d := &net.Dialer{}
		dial = d.DialContext
	}

	c.logger.Debug(ctx, "Dialing OVSDB server",
		"address", address,
		"tls", c.UseTLS)

	nc, err := dial(ctx, "tcp", address)
	if err != nil {
		return nil, peerAuth{}, err
	}
	if !c.UseTLS {
		return nc, peerAuth{}, nil
	}

	cfg, roots, err := c.tlsConfig(ctx)
	if err != nil {
		_ = nc.Close() //nolint:errcheck // config error takes precedence
		return nil, peerAuth{}, err
	}

	tc := tls.Client(nc, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = nc.Close() //nolint:errcheck // handshake error takes precedence
		return nil, peerAuth{}, fmt.Errorf("TLS handshake failed: %w", err)
	}

	authErr := verifyPeer(tc.ConnectionState(), roots, cfg.ServerName)
	if authErr != nil {
		c.logger.Warn(ctx, "OVSDB server certificate not authorized",
			"target", c.Target,
			"error", authErr.Error())
	}
	return tc, peerAuth{authorized: authErr == nil, err: authErr}, nil
}

// tlsConfig assembles the TLS client configuration from the credential
// supplier or the certificate files
func (c *Client) tlsConfig(ctx context.Context) (*tls.Config, *x509.CertPool, error) {
	var creds Credentials
	if c.credentials != nil {
		var err error
		creds, err = c.credentials(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("credentials: %w", err)
		}
	} else {
		var err error
		if creds.Certificate, err = readPEM(c.tlsCert); err != nil {
			return nil, nil, err
		}
		if creds.PrivateKey, err = readPEM(c.tlsKey); err != nil {
			return nil, nil, err
		}
		if creds.CACertificate, err = readPEM(c.tlsCA); err != nil {
			return nil, nil, err
		}
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: c.Target,
		//nolint:gosec // G402: verification is computed separately and reported by Authorized()
		InsecureSkipVerify: c.InsecureSkipVerify,
	}

	if len(creds.Certificate) > 0 || len(creds.PrivateKey) > 0 {
		cert, err := tls.X509KeyPair(creds.Certificate, creds.PrivateKey)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid client certificate or key: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	var roots *x509.CertPool
	if len(creds.CACertificate) > 0 {
		roots = x509.NewCertPool()
		if !roots.AppendCertsFromPEM(creds.CACertificate) {
			return nil, nil, fmt.Errorf("invalid CA certificate")
		}
		cfg.RootCAs = roots
	}

	return cfg, roots, nil
}

// verifyPeer checks the server chain the same way the handshake would have
func verifyPeer(state tls.ConnectionState, roots *x509.CertPool, serverName string) error {
	if len(state.PeerCertificates) == 0 {
		return fmt.Errorf("server presented no certificate")
	}
	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: x509.NewCertPool(),
		DNSName:       serverName,
	}
	for _, cert := range state.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}
	_, err := state.PeerCertificates[0].Verify(opts)
	return err
}

func readPEM(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied configuration
	if err != nil {
		return nil, fmt.Errorf("cannot read %s", filepath.Base(path))
	}
	return data, nil
}

// address joins target and port unless the target already carries a port
func (c *Client) address() string {
	if _, _, err := net.SplitHostPort(c.Target); err == nil {
		return c.Target
	}
	return net.JoinHostPort(strings.Trim(c.Target, "[]"), strconv.Itoa(c.Port))
}

// prepareJSONForLogging redacts sensitive data and formats JSON for logging
//
// This method performs security checks and data sanitization:
//  1. Validates JSON size to prevent ReDoS attacks (max 1MB)
//  2. Checks sensitive field count to prevent DoS (max 1000 fields)
//  3. Redacts sensitive data (passwords, private keys, certificates, secrets, tokens)
//  4. Pretty-prints JSON if prettyPrintLogs is enabled
//
// Returns the processed JSON string safe for logging.
func (c *Client) prepareJSONForLogging(jsonStr string) string {
	if len(jsonStr) > MaxJSONSizeForLogging {
		return JSONTooLargeMessage
	}

	sensitiveCount := 0
	for _, field := range sensitiveFields {
		sensitiveCount += strings.Count(jsonStr, `"`+field+`"`)
	}

	if sensitiveCount > MaxSensitiveFields {
		c.logger.Warn(context.Background(), "Too many sensitive fields detected",
			"count", sensitiveCount,
			"max", MaxSensitiveFields)
		return JSONTooManySensitiveMsg
	}

	redacted := c.redactSensitiveData(jsonStr)

	if c.prettyPrintLogs {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(redacted), "", "  "); err == nil {
			return buf.String()
		} else {
			c.logger.Debug(context.Background(), "JSON pretty-print failed, using raw redacted output",
				"error", err.Error())
		}
	}

	return redacted
}

// redactSensitiveData replaces sensitive string values in JSON with [REDACTED]
//
// Handles flexible whitespace around colons (RFC 8259 compliant).
func (c *Client) redactSensitiveData(json string) string {
	result := json
	for i, pattern := range c.redactionPatterns {
		if i >= len(sensitiveFields) {
			break
		}
		result = pattern.ReplaceAllString(result, `"`+sensitiveFields[i]+`":"[REDACTED]"`)
	}
	return result
}

// validateConfig validates client configuration before connection
//
// Validates:
//   - Target is not empty
//   - Port range (1-65535)
//   - Positive timeouts (ConnectTimeout, OperationTimeout > 0)
//   - Positive limits (ResolveConcurrency, MaxUpdates > 0)
//   - TLS certificate file paths exist (if provided)
//
// Returns an error if validation fails.
func (c *Client) validateConfig() error {
	if strings.TrimSpace(c.Target) == "" {
		return fmt.Errorf("target address cannot be empty")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive, got: %v", c.ConnectTimeout)
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("operation timeout must be positive, got: %v", c.OperationTimeout)
	}

	if c.ResolveConcurrency < 1 {
		return fmt.Errorf("resolve concurrency must be positive, got: %d", c.ResolveConcurrency)
	}
	if c.MaxUpdates < 1 {
		return fmt.Errorf("max updates must be positive, got: %d", c.MaxUpdates)
	}

	for _, spec := range c.monitorSpecs {
		if spec.Table == "" {
			return fmt.Errorf("monitor table cannot be empty")
		}
	}

	if c.UseTLS && c.InsecureSkipVerify {
		c.logger.Warn(context.Background(), "InsecureSkipVerify enabled - TLS certificate verification disabled",
			"target", c.Target,
			"security_risk", "Man-in-the-Middle attacks possible",
			"recommendation", "Use only in testing environments")
	}

	if !c.UseTLS && (c.tlsCert != "" || c.tlsKey != "" || c.tlsCA != "") {
		c.logger.Warn(context.Background(), "TLS files configured but TLS disabled",
			"target", c.Target)
	}

	if (c.tlsCert == "") != (c.tlsKey == "") {
		return fmt.Errorf("TLS certificate and key must be configured together")
	}

	if c.tlsCert != "" {
		if _, err := os.Stat(c.tlsCert); err != nil {
			c.logger.Debug(context.Background(), "TLS certificate validation failed",
				"path", c.tlsCert,
				"error", err.Error())
			filename := filepath.Base(c.tlsCert)
			return fmt.Errorf("TLS certificate file not found: %s", filename)
		}
	}
	if c.tlsKey != "" {
		if _, err := os.Stat(c.tlsKey); err != nil {
			c.logger.Debug(context.Background(), "TLS key validation failed",
				"path", c.tlsKey,
				"error", err.Error())
			filename := filepath.Base(c.tlsKey)
			return fmt.Errorf("TLS key file not found: %s", filename)
		}
	}
	if c.tlsCA != "" {
		if _, err := os.Stat(c.tlsCA); err != nil {
			c.logger.Debug(context.Background(), "TLS CA validation failed",
				"path", c.tlsCA,
				"error", err.Error())
			filename := filepath.Base(c.tlsCA)
			return fmt.Errorf("TLS CA file not found: %s", filename)
		}
	}

	return nil
}
