// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by the client and the object graph
var (
	// ErrNotConnected is returned when an operation needs a live connection
	ErrNotConnected = errors.New("ovsdb: not connected")

	// ErrConnectionClosed is delivered to calls still pending when the connection is torn down
	ErrConnectionClosed = errors.New("ovsdb: connection closed")

	// ErrTableNotFound is returned when a table or accessor name is not part of the schema
	ErrTableNotFound = errors.New("ovsdb: table not found")

	// ErrDatabaseNotFound is returned when a database was not discovered on connect
	ErrDatabaseNotFound = errors.New("ovsdb: database not found")

	// ErrMethodNotFound is sent back to the peer when it calls a method that is not exposed
	ErrMethodNotFound = errors.New("Method Not Found")

	// ErrRowNotFound is returned when a select by uuid yields no row
	ErrRowNotFound = errors.New("ovsdb: row not found")
)

// ErrorKind classifies an OvsdbError
type ErrorKind int

const (
	// KindFraming marks a malformed or unbalanced stream. Fatal for the connection.
	KindFraming ErrorKind = iota + 1

	// KindTimeout marks a call that got no response before its deadline.
	// The connection stays open.
	KindTimeout

	// KindRemote marks a response carrying a non-null error
	KindRemote

	// KindLookup marks a failed or empty cross-link follow-up query
	KindLookup

	// KindTransport marks a socket or TLS failure. Fatal for the connection.
	KindTransport
)

// String returns the string representation of an ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindFraming:
		return "framing"
	case KindTimeout:
		return "timeout"
	case KindRemote:
		return "remote"
	case KindLookup:
		return "lookup"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// OvsdbError represents a structured OVSDB error with operation context
type OvsdbError struct {
	// Kind classifies the error
	Kind ErrorKind

	// Operation is the RPC method or component that failed
	Operation string

	// Human-readable error message
	Message string

	// InternalMsg contains detailed error information for internal logging
	// (remote error details, offending frame excerpt)
	InternalMsg string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface
func (e *OvsdbError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("ovsdb: %s", e.Message)
	}
	return fmt.Sprintf("ovsdb: %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying cause
func (e *OvsdbError) Unwrap() error {
	return e.Err
}

// DetailedError returns the full error message including kind and internal details
//
// This should only be used in secure logging contexts where sensitive information
// disclosure is acceptable (e.g., server-side logs, debug output).
//
// Example:
//
//	if err != nil {
//	    var ovsErr *ovsdb.OvsdbError
//	    if errors.As(err, &ovsErr) {
//	        log.Debug(ovsErr.DetailedError())
//	    }
//	}
func (e *OvsdbError) DetailedError() string {
	if e.InternalMsg == "" {
		return fmt.Sprintf("%s (%s)", e.Error(), e.Kind)
	}
	return fmt.Sprintf("%s (%s, internal: %s)", e.Error(), e.Kind, e.InternalMsg)
}

func newFramingError(message, excerpt string) *OvsdbError {
	return &OvsdbError{
		Kind:        KindFraming,
		Operation:   "frame",
		Message:     message,
		InternalMsg: excerpt,
	}
}

func newTimeoutError(method string, id uint64, timeout time.Duration) *OvsdbError {
	return &OvsdbError{
		Kind:      KindTimeout,
		Operation: method,
		Message:   fmt.Sprintf("request %d timed out after %s", id, timeout),
	}
}

func newRemoteError(method, message, details string) *OvsdbError {
	return &OvsdbError{
		Kind:        KindRemote,
		Operation:   method,
		Message:     message,
		InternalMsg: details,
	}
}

func newLookupError(table, id string, err error) *OvsdbError {
	msg := fmt.Sprintf("cannot resolve %s row %s", table, id)
	if err != nil {
		msg = fmt.Sprintf("%s: %s", msg, err.Error())
	}
	return &OvsdbError{
		Kind:      KindLookup,
		Operation: "resolve",
		Message:   msg,
		Err:       err,
	}
}

func newTransportError(op string, err error) *OvsdbError {
	return &OvsdbError{
		Kind:      KindTransport,
		Operation: op,
		Message:   err.Error(),
		Err:       err,
	}
}

func errorKind(err error) ErrorKind {
	var e *OvsdbError
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsFraming reports whether err is a framing error
func IsFraming(err error) bool { return errorKind(err) == KindFraming }

// IsTimeout reports whether err is a per-call timeout
func IsTimeout(err error) bool { return errorKind(err) == KindTimeout }

// IsRemote reports whether err was returned by the peer
func IsRemote(err error) bool { return errorKind(err) == KindRemote }

// IsLookup reports whether err is a failed cross-link lookup
func IsLookup(err error) bool { return errorKind(err) == KindLookup }

// IsTransport reports whether err is a socket or TLS failure
func IsTransport(err error) bool { return errorKind(err) == KindTransport }
