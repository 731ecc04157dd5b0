// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// DefaultMaxFrameSize bounds a single top-level JSON value (64MB)
const DefaultMaxFrameSize = 64 * 1024 * 1024

// maxExcerpt limits how much of a bad frame ends up in an error
const maxExcerpt = 128

// FrameParser splits a raw stream of back-to-back JSON objects into frames
//
// The wire carries no length prefix or delimiter, so frame boundaries are
// derived from brace balance. String and escape state is tracked so that
// braces inside string values never move the depth counter. Chunks may be
// split at arbitrary byte offsets, including inside a string, an escape
// sequence or a multi-byte UTF-8 character.
//
// A FrameParser is not safe for concurrent use; a connection owns exactly one
// and feeds it from its read goroutine.
type FrameParser struct {
	// MaxFrameSize is the largest accepted frame in bytes
	MaxFrameSize int

	buf      []byte // carried-over bytes of the value being assembled
	depth    int
	inString bool
	escaped  bool
}

// NewFrameParser creates a FrameParser with DefaultMaxFrameSize
func NewFrameParser() *FrameParser {
	return &FrameParser{MaxFrameSize: DefaultMaxFrameSize}
}

// Feed consumes one chunk and calls emit for every top-level value completed
// by it, in closing-brace order. Emitted frames never alias chunk.
//
// Whitespace between values is skipped. Any other byte outside a value, or a
// balanced span that is not valid JSON, returns a framing error and resets the
// parser. An error returned by emit stops scanning and is returned as-is.
func (p *FrameParser) Feed(chunk []byte, emit func(frame []byte) error) error {
	start := 0
	for i := 0; i < len(chunk); i++ {
		c := chunk[i]

		if p.depth == 0 {
			switch c {
			case ' ', '\t', '\r', '\n':
				start = i + 1
			case '{':
				p.depth = 1
				start = i
			default:
				p.Reset()
				return newFramingError(
					fmt.Sprintf("unexpected %q outside of a JSON object", c),
					excerpt(chunk[i:]))
			}
			continue
		}

		if p.inString {
			switch {
			case p.escaped:
				p.escaped = false
			case c == '\\':
				p.escaped = true
			case c == '"':
				p.inString = false
			}
			continue
		}

		switch c {
		case '"':
			p.inString = true
		case '{':
			p.depth++
		case '}':
			p.depth--
			if p.depth > 0 {
				continue
			}

			frame := make([]byte, 0, len(p.buf)+i+1-start)
			frame = append(frame, p.buf...)
			frame = append(frame, chunk[start:i+1]...)
			p.buf = p.buf[:0]
			start = i + 1

			if p.MaxFrameSize > 0 && len(frame) > p.MaxFrameSize {
				p.Reset()
				return newFramingError(
					fmt.Sprintf("frame of %d bytes exceeds limit of %d bytes", len(frame), p.MaxFrameSize), "")
			}
			if !gjson.ValidBytes(frame) {
				p.Reset()
				return newFramingError("balanced span is not valid JSON", excerpt(frame))
			}
			if err := emit(frame); err != nil {
				return err
			}
		}
	}

	if p.depth > 0 && start < len(chunk) {
		p.buf = append(p.buf, chunk[start:]...)
		if p.MaxFrameSize > 0 && len(p.buf) > p.MaxFrameSize {
			size := len(p.buf)
			p.Reset()
			return newFramingError(
				fmt.Sprintf("partial frame of %d bytes exceeds limit of %d bytes", size, p.MaxFrameSize), "")
		}
	}
	return nil
}

// Buffered returns the number of bytes carried over for an incomplete frame
func (p *FrameParser) Buffered() int {
	return len(p.buf)
}

// Reset discards any partially assembled frame
func (p *FrameParser) Reset() {
	p.buf = nil
	p.depth = 0
	p.inString = false
	p.escaped = false
}

func excerpt(b []byte) string {
	if len(b) <= maxExcerpt {
		return string(b)
	}
	return string(b[:maxExcerpt]) + "..."
}
