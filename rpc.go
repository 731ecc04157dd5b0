// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// callResult is what a pending call is completed with
type callResult struct {
	result json.RawMessage
	err    error
}

type pendingCall struct {
	method string
	done   chan callResult // buffered, receives exactly one value
}

// rpcClient correlates outgoing requests with responses on one Conn
//
// Every call owns a pending entry keyed by its id. Whoever removes the entry
// under the lock (response delivery, the caller on timeout or cancellation,
// or teardown) completes the call; everyone else finds nothing and backs off.
// That makes completion exactly-once without a per-call state machine.
type rpcClient struct {
	conn    *Conn
	logger  Logger
	timeout time.Duration

	nextID atomic.Uint64

	// sendMu spans id allocation and the write so ids hit the wire in order
	sendMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]*pendingCall
	closed  bool
}

// newRPCClient attaches to conn; it must run before conn.start
func newRPCClient(conn *Conn, timeout time.Duration, logger Logger) *rpcClient {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	r := &rpcClient{
		conn:    conn,
		logger:  logger,
		timeout: timeout,
		pending: make(map[uint64]*pendingCall),
	}
	conn.onResponse = r.deliver
	conn.onClose = r.failAll
	return r
}

// call sends one request and blocks until it completes
//
// Completion is the first of: the matching response, the per-call timer,
// ctx cancellation, or connection teardown. Ids start at 1 and strictly
// increase per connection, in the order requests are written.
func (r *rpcClient) call(ctx context.Context, method string, params []any, mods ...func(*Req)) (json.RawMessage, error) {
	req := newReq(r.timeout, mods)
	if params == nil {
		params = []any{}
	}

	pc := &pendingCall{method: method, done: make(chan callResult, 1)}

	r.sendMu.Lock()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.sendMu.Unlock()
		return nil, fmt.Errorf("%s: %w", method, ErrConnectionClosed)
	}
	id := r.nextID.Add(1)
	r.pending[id] = pc
	r.mu.Unlock()

	r.logger.Debug(ctx, "OVSDB request",
		"id", id,
		"method", method,
		"timeout", req.Timeout.String())

	err := r.conn.Send(request{ID: id, Method: method, Params: params})
	r.sendMu.Unlock()
	if err != nil {
		r.remove(id)
		return nil, err
	}

	timer := time.NewTimer(req.Timeout)
	defer timer.Stop()

	select {
	case res := <-pc.done:
		return res.result, res.err
	case <-timer.C:
		if r.remove(id) {
			r.logger.Warn(ctx, "OVSDB request timed out",
				"id", id,
				"method", method,
				"timeout", req.Timeout.String())
			return nil, newTimeoutError(method, id, req.Timeout)
		}
	case <-ctx.Done():
		if r.remove(id) {
			return nil, fmt.Errorf("%s: %w", method, ctx.Err())
		}
	}

	// lost the race against delivery; the result is already on its way
	res := <-pc.done
	return res.result, res.err
}

// remove deletes a pending entry and reports whether the caller now owns it
func (r *rpcClient) remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[id]; !ok {
		return false
	}
	delete(r.pending, id)
	return true
}

// deliver completes the pending call matching a response
func (r *rpcClient) deliver(msg *Message) {
	id, ok := msg.numericID()
	if !ok {
		r.logger.Debug(r.conn.ctx, "OVSDB response with foreign id ignored", "id", string(msg.ID))
		return
	}

	r.mu.Lock()
	pc := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()

	if pc == nil {
		// late response after a timeout, or an id we never issued
		r.logger.Debug(r.conn.ctx, "OVSDB response without pending request ignored", "id", id)
		return
	}

	if err := msg.remoteError(pc.method); err != nil {
		pc.done <- callResult{err: err}
		return
	}
	pc.done <- callResult{result: msg.Result}
}

// failAll completes every pending call after teardown
func (r *rpcClient) failAll(cause error) {
	r.mu.Lock()
	r.closed = true
	pending := r.pending
	r.pending = make(map[uint64]*pendingCall)
	r.mu.Unlock()

	err := ErrConnectionClosed
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
	}
	for _, pc := range pending {
		pc.done <- callResult{err: fmt.Errorf("%s: %w", pc.method, err)}
	}
}

// inFlight returns the number of calls awaiting completion
func (r *rpcClient) inFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
