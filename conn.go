// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// readBufferSize is the chunk size handed to the FrameParser
const readBufferSize = 64 * 1024

// EventType identifies a connection-level event
type EventType int

const (
	// EventConnect fires once the stream is established (after the TLS handshake for TLS)
	EventConnect EventType = iota + 1

	// EventData fires for every chunk read from the stream
	EventData

	// EventDrain fires when an outgoing message was fully handed to the socket
	EventDrain

	// EventEnd fires when the peer closed its side of the stream
	EventEnd

	// EventError fires for framing and transport failures; a close follows
	EventError

	// EventClose fires exactly once when the connection is torn down
	EventClose

	// EventRequest fires for every request received from the peer, after
	// its handler ran and the reply was sent
	EventRequest

	// EventNotification fires for every notification received from the peer,
	// after its handler ran
	EventNotification

	// EventResponse fires for every response received from the peer
	EventResponse
)

// String returns the string representation of an EventType
func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventData:
		return "data"
	case EventDrain:
		return "drain"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	case EventRequest:
		return "request"
	case EventNotification:
		return "notification"
	case EventResponse:
		return "response"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Event is delivered to an EventHandler
type Event struct {
	Type EventType

	// Message is set for request, notification and response events
	Message *Message

	// Data is set for data events
	Data []byte

	// Err is set for error events and for close events caused by a failure
	Err error
}

// EventHandler observes connection events. It runs on the connection's read
// goroutine (or on the writing goroutine for drain) and must not block.
type EventHandler func(Event)

// Handler implements a method the peer may call on us
//
// params are the positional parameters of the call. The returned value is
// sent back as the result when the call carried a non-null id; a returned
// error (or a panic) is sent back as the error message.
type Handler func(ctx context.Context, params []json.RawMessage) (any, error)

// Conn owns one duplex stream to the server
//
// A single read goroutine feeds incoming bytes into a FrameParser and
// dispatches every frame: responses go to the RPC layer, requests and
// notifications go to exposed handlers. Handlers therefore run one at a time,
// in the order the peer sent them. Writes are serialized with a mutex.
type Conn struct {
	conn         net.Conn
	parser       *FrameParser
	logger       Logger
	onEvent      EventHandler
	writeTimeout time.Duration

	// set by the RPC layer before start
	onResponse func(*Message)
	onClose    func(error)

	mu      sync.RWMutex
	methods map[string]Handler

	writeMu   sync.Mutex
	connected atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func newConn(nc net.Conn, logger Logger, onEvent EventHandler) *Conn {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		conn:    nc,
		parser:  NewFrameParser(),
		logger:  logger,
		onEvent: onEvent,
		methods: make(map[string]Handler),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Expose registers a handler under an exact method name
func (c *Conn) Expose(name string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods[name] = h
}

// ExposeService registers every handler of a service as "namespace.method".
// An empty namespace registers the plain method names.
func (c *Conn) ExposeService(namespace string, service map[string]Handler) {
	prefix := ""
	if namespace != "" {
		prefix = namespace + "."
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, h := range service {
		c.methods[prefix+name] = h
	}
}

// start marks the connection live and launches the read goroutine
func (c *Conn) start() {
	c.connected.Store(true)
	c.emit(Event{Type: EventConnect})
	go c.readLoop()
}

// Connected reports whether the stream is usable
func (c *Conn) Connected() bool {
	return c.connected.Load()
}

// Done is closed once the connection has been torn down
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the failure that ended the connection, or nil after a clean Close.
// Only meaningful once Done is closed.
func (c *Conn) Err() error {
	<-c.done
	return c.closeErr
}

// Send serializes v and writes it to the stream
//
// Messages are never queued: when the stream is not writable Send fails with
// a transport error and the message is not sent. A failed write tears the
// connection down.
func (c *Conn) Send(v any) error {
	if !c.connected.Load() {
		return newTransportError("send", ErrNotConnected)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cannot encode message: %w", err)
	}

	c.writeMu.Lock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err = c.conn.Write(data)
	c.writeMu.Unlock()

	if err != nil {
		terr := newTransportError("write", err)
		c.emit(Event{Type: EventError, Err: terr})
		c.teardown(terr)
		return terr
	}

	c.logger.Debug(c.ctx, "OVSDB message sent", "bytes", len(data))
	c.emit(Event{Type: EventDrain})
	return nil
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	c.teardown(nil)
	return nil
}

func (c *Conn) readLoop() {
	buf := make([]byte, readBufferSize)
	var cause error

	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if c.onEvent != nil {
				c.emit(Event{Type: EventData, Data: append([]byte(nil), chunk...)})
			}
			if ferr := c.parser.Feed(chunk, c.handleFrame); ferr != nil {
				c.logger.Error(c.ctx, "OVSDB framing error, closing connection",
					"error", ferr.Error())
				c.emit(Event{Type: EventError, Err: ferr})
				cause = ferr
				break
			}
		}
		if err != nil {
			switch {
			case !c.connected.Load():
				// closed locally
			case errors.Is(err, io.EOF):
				c.logger.Info(c.ctx, "OVSDB peer closed the connection")
				c.emit(Event{Type: EventEnd})
				cause = newTransportError("read", io.ErrUnexpectedEOF)
			case isClosedConnError(err):
			default:
				cause = newTransportError("read", err)
				c.logger.Error(c.ctx, "OVSDB read failed", "error", err.Error())
				c.emit(Event{Type: EventError, Err: cause})
			}
			break
		}
	}

	c.teardown(cause)
}

// handleFrame classifies one frame and routes it
func (c *Conn) handleFrame(frame []byte) error {
	msg, err := decodeMessage(frame)
	if err != nil {
		return err
	}

	switch msg.Kind {
	case KindResponse:
		c.emit(Event{Type: EventResponse, Message: msg})
		if c.onResponse != nil {
			c.onResponse(msg)
		}
	case KindRequest:
		c.dispatch(msg)
		c.emit(Event{Type: EventRequest, Message: msg})
	default:
		c.dispatch(msg)
		c.emit(Event{Type: EventNotification, Message: msg})
	}
	return nil
}

// dispatch runs the exposed handler for a request or notification and
// replies when the message carried a non-null id
func (c *Conn) dispatch(msg *Message) {
	c.mu.RLock()
	h, ok := c.methods[msg.Method]
	c.mu.RUnlock()

	if !ok {
		c.logger.Debug(c.ctx, "OVSDB peer called unknown method", "method", msg.Method)
		c.complete(msg, nil, ErrMethodNotFound)
		return
	}

	params, err := msg.params()
	if err != nil {
		c.complete(msg, nil, err)
		return
	}

	result, err := c.invoke(h, params)
	c.complete(msg, result, err)
}

// invoke runs h and turns a panic into an error
func (c *Conn) invoke(h Handler, params []json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return h(c.ctx, params)
}

// complete sends the reply for msg; notifications are never answered
func (c *Conn) complete(msg *Message, result any, err error) {
	if !msg.hasID() {
		if err != nil {
			c.logger.Warn(c.ctx, "OVSDB notification handler failed",
				"method", msg.Method,
				"error", err.Error())
		}
		return
	}

	rep := reply{ID: msg.ID}
	if err != nil {
		rep.Error = err.Error()
	} else {
		if result == nil {
			result = ""
		}
		rep.Result = result
	}

	if sendErr := c.Send(rep); sendErr != nil {
		c.logger.Warn(c.ctx, "OVSDB reply not sent",
			"method", msg.Method,
			"error", sendErr.Error())
	}
}

// teardown destroys the socket exactly once and notifies the RPC layer
func (c *Conn) teardown(cause error) {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		c.closeErr = cause
		c.cancel()
		_ = c.conn.Close() //nolint:errcheck // connection may already be broken

		if c.onClose != nil {
			c.onClose(cause)
		}
		c.emit(Event{Type: EventClose, Err: cause})
		close(c.done)
	})
}

func (c *Conn) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

func isClosedConnError(err error) bool {
	return errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection")
}
