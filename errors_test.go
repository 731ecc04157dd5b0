// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
)

// TestOvsdbError_Error tests the Error() method of OvsdbError
func TestOvsdbError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      OvsdbError
		expected string
	}{
		{
			name: "remote error",
			err: OvsdbError{
				Kind:      KindRemote,
				Operation: "get_schema",
				Message:   "unknown database",
			},
			expected: "ovsdb: get_schema failed: unknown database",
		},
		{
			name: "framing error",
			err: OvsdbError{
				Kind:      KindFraming,
				Operation: "frame",
				Message:   "unbalanced closing brace",
			},
			expected: "ovsdb: frame failed: unbalanced closing brace",
		},
		{
			name: "error without operation",
			err: OvsdbError{
				Kind:    KindLookup,
				Message: "no rows",
			},
			expected: "ovsdb: no rows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

// TestOvsdbError_DetailedError tests the DetailedError() method
func TestOvsdbError_DetailedError(t *testing.T) {
	tests := []struct {
		name     string
		err      OvsdbError
		expected string
	}{
		{
			name: "without internal message",
			err: OvsdbError{
				Kind:      KindTimeout,
				Operation: "transact",
				Message:   "request 7 timed out after 8s",
			},
			expected: "ovsdb: transact failed: request 7 timed out after 8s (timeout)",
		},
		{
			name: "with internal message",
			err: OvsdbError{
				Kind:        KindRemote,
				Operation:   "transact",
				Message:     "operation 0: constraint violation",
				InternalMsg: "Transaction causes multiple rows in \"Bridge\" table to have identical values",
			},
			expected: "ovsdb: transact failed: operation 0: constraint violation (remote, internal: Transaction causes multiple rows in \"Bridge\" table to have identical values)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.DetailedError(); got != tt.expected {
				t.Errorf("DetailedError() = %q, want %q", got, tt.expected)
			}
		})
	}
}

// TestErrorConstructors tests the kind and message of each constructor
func TestErrorConstructors(t *testing.T) {
	cause := errors.New("no rows")

	tests := []struct {
		name    string
		err     *OvsdbError
		kind    ErrorKind
		message string
	}{
		{
			name:    "framing",
			err:     newFramingError("frame exceeds maximum size", `{"id":1`),
			kind:    KindFraming,
			message: "ovsdb: frame failed: frame exceeds maximum size",
		},
		{
			name:    "timeout",
			err:     newTimeoutError("echo", 3, 50*time.Millisecond),
			kind:    KindTimeout,
			message: "ovsdb: echo failed: request 3 timed out after 50ms",
		},
		{
			name:    "remote",
			err:     newRemoteError("get_schema", "unknown database", "details"),
			kind:    KindRemote,
			message: "ovsdb: get_schema failed: unknown database",
		},
		{
			name:    "lookup",
			err:     newLookupError("Port", "p1", cause),
			kind:    KindLookup,
			message: "ovsdb: resolve failed: cannot resolve Port row p1: no rows",
		},
		{
			name:    "lookup without cause",
			err:     newLookupError("Port", "p1", nil),
			kind:    KindLookup,
			message: "ovsdb: resolve failed: cannot resolve Port row p1",
		},
		{
			name:    "transport",
			err:     newTransportError("read", io.ErrUnexpectedEOF),
			kind:    KindTransport,
			message: "ovsdb: read failed: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if got := tt.err.Error(); got != tt.message {
				t.Errorf("Error() = %q, want %q", got, tt.message)
			}
		})
	}

	if !errors.Is(newLookupError("Port", "p1", cause), cause) {
		t.Error("lookup error does not unwrap to its cause")
	}
	if !errors.Is(newTransportError("read", io.ErrUnexpectedEOF), io.ErrUnexpectedEOF) {
		t.Error("transport error does not unwrap to its cause")
	}
}

// TestErrorPredicates tests the Is helpers through wrapping
func TestErrorPredicates(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("discover: %w", err) }

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"framing", wrap(newFramingError("bad", "")), KindFraming},
		{"timeout", wrap(newTimeoutError("echo", 1, time.Second)), KindTimeout},
		{"remote", wrap(newRemoteError("transact", "x", "")), KindRemote},
		{"lookup", wrap(newLookupError("Port", "p1", nil)), KindLookup},
		{"transport", wrap(newTransportError("write", io.ErrClosedPipe)), KindTransport},
		{"plain", errors.New("plain"), 0},
		{"nil", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := map[ErrorKind]bool{
				KindFraming:   IsFraming(tt.err),
				KindTimeout:   IsTimeout(tt.err),
				KindRemote:    IsRemote(tt.err),
				KindLookup:    IsLookup(tt.err),
				KindTransport: IsTransport(tt.err),
			}
			for kind, is := range got {
				if is != (kind == tt.want) {
					t.Errorf("Is%s = %v for %v", kind, is, tt.err)
				}
			}
		})
	}
}

// TestErrorKind_String tests ErrorKind string representation
func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindFraming, "framing"},
		{KindTimeout, "timeout"},
		{KindRemote, "remote"},
		{KindLookup, "lookup"},
		{KindTransport, "transport"},
		{ErrorKind(42), "unknown(42)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

// TestSentinelErrors tests that sentinels survive wrapping
func TestSentinelErrors(t *testing.T) {
	err := fmt.Errorf("transact: %w", ErrNotConnected)
	if !errors.Is(err, ErrNotConnected) {
		t.Error("wrapped ErrNotConnected not detected")
	}
	if ErrMethodNotFound.Error() != "Method Not Found" {
		t.Errorf("ErrMethodNotFound = %q", ErrMethodNotFound.Error())
	}
	closed := fmt.Errorf("%w: %w", ErrConnectionClosed, io.EOF)
	if !errors.Is(closed, ErrConnectionClosed) || !errors.Is(closed, io.EOF) {
		t.Error("connection closed error must carry its cause")
	}
}
