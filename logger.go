// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"
)

// MaxLogValueLength caps a single logged value. Longer values (schema
// documents, large select results) are cut and marked.
const MaxLogValueLength = 1024

// Logger receives the client's structured log output
//
// keysAndValues alternate key and value: "database", "Open_vSwitch",
// "id", 3. ctx is the context of the call being logged; messages from the
// read goroutine (responses, peer requests, teardown) carry the
// connection's own context.
//
// DefaultLogger writes through the standard log package; NoOpLogger is used
// when no logger is configured. See examples/logging for a logrus adapter.
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...any)
	Info(ctx context.Context, msg string, keysAndValues ...any)
	Warn(ctx context.Context, msg string, keysAndValues ...any)
	Error(ctx context.Context, msg string, keysAndValues ...any)
}

// LogLevel is the minimum severity a DefaultLogger writes
type LogLevel int

const (
	// LogLevelDebug adds wire payloads and per-request traces
	LogLevelDebug LogLevel = iota

	// LogLevelInfo adds connection lifecycle messages
	LogLevelInfo

	// LogLevelWarn adds timeouts, dropped replies and insecure settings
	LogLevelWarn

	// LogLevelError logs failed connects and teardown causes only
	LogLevelError

	// LogLevelNone disables all logging
	LogLevelNone
)

// String returns the string representation of a LogLevel
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// DefaultLogger writes one line per message through the standard log package
//
// Format: [LEVEL] message key1=value1 key2=value2
//
//	client, _ := ovsdb.NewClient("192.168.1.1",
//	    ovsdb.WithLogger(ovsdb.NewDefaultLogger(ovsdb.LogLevelDebug)))
type DefaultLogger struct {
	level LogLevel
}

// NewDefaultLogger creates a DefaultLogger with the specified log level
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return &DefaultLogger{level: level}
}

// Debug logs at LogLevelDebug
func (l *DefaultLogger) Debug(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelDebug, msg, keysAndValues)
}

// Info logs at LogLevelInfo
func (l *DefaultLogger) Info(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelInfo, msg, keysAndValues)
}

// Warn logs at LogLevelWarn
func (l *DefaultLogger) Warn(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelWarn, msg, keysAndValues)
}

// Error logs at LogLevelError
func (l *DefaultLogger) Error(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelError, msg, keysAndValues)
}

// sanitizeLogValue renders a value for a single log line
//
// Values come from the server: bridge and interface names, external_ids,
// error details, payload excerpts. A row name holding a newline or an ANSI
// sequence must not forge or recolor log entries, so line breaks and tabs
// become spaces, other control bytes and invalid UTF-8 become '.', zero-width
// characters are dropped and a right-to-left override becomes a space.
func sanitizeLogValue(val any) string {
	str := fmt.Sprint(val)

	truncated := false
	if len(str) > MaxLogValueLength {
		cut := MaxLogValueLength
		for cut > 0 && !utf8.RuneStart(str[cut]) {
			cut--
		}
		str = str[:cut]
		truncated = true
	}

	var b strings.Builder
	b.Grow(len(str))
	for i := 0; i < len(str); {
		r, size := utf8.DecodeRuneInString(str[i:])
		i += size

		switch {
		case r == utf8.RuneError && size == 1:
			b.WriteByte('.')
		case r == '\n', r == '\r', r == '\t', r == '\f':
			b.WriteByte(' ')
		case r == '\u202E':
			b.WriteByte(' ')
		case r == '\u200B', r == '\u200C', r == '\u200D', r == '\uFEFF':
		case r < 0x20, r == 0x7F:
			b.WriteByte('.')
		default:
			b.WriteRune(r)
		}
	}

	if truncated {
		b.WriteString("...[TRUNCATED]")
	}
	return b.String()
}

// log writes msg with its sanitized key-value pairs. msg itself is a
// constant from this package and is written as is.
func (l *DefaultLogger) log(level LogLevel, msg string, keysAndValues []any) {
	if level < l.level {
		return
	}

	var b strings.Builder
	b.Grow(len(msg) + 10 + len(keysAndValues)*25)
	b.WriteString("[")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)

	for i := 0; i < len(keysAndValues); i += 2 {
		b.WriteString(" ")
		b.WriteString(sanitizeLogValue(keysAndValues[i]))
		b.WriteString("=")
		if i+1 < len(keysAndValues) {
			b.WriteString(sanitizeLogValue(keysAndValues[i+1]))
		} else {
			b.WriteString("<MISSING>")
		}
	}

	log.Println(b.String())
}

// NoOpLogger discards everything; it is the client's default
type NoOpLogger struct{}

// Debug discards the log message
func (n *NoOpLogger) Debug(_ context.Context, _ string, _ ...any) {}

// Info discards the log message
func (n *NoOpLogger) Info(_ context.Context, _ string, _ ...any) {}

// Warn discards the log message
func (n *NoOpLogger) Warn(_ context.Context, _ string, _ ...any) {}

// Error discards the log message
func (n *NoOpLogger) Error(_ context.Context, _ string, _ ...any) {}
