// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/buger/jsonparser"
)

// MessageKind classifies a decoded frame
type MessageKind int

const (
	// KindRequest is a call from the peer that expects a reply (non-null id)
	KindRequest MessageKind = iota + 1

	// KindNotification is a call from the peer with a null id; it is never answered
	KindNotification

	// KindResponse answers a request we sent
	KindResponse
)

// String returns the string representation of a MessageKind
func (k MessageKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Message is one JSON-RPC object on the wire
//
// Requests and notifications carry Method and Params; responses carry Result
// and Error. ID is kept raw so that ids chosen by the peer round-trip exactly.
type Message struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`

	// Kind is set by decodeMessage
	Kind MessageKind `json:"-"`
}

// request is the outgoing call shape; params are always positional
type request struct {
	ID     any    `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// reply is the outgoing response shape; both fields are always present
type reply struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result"`
	Error  any             `json:"error"`
}

// classify decides the kind of a raw frame
//
// A "result" or "error" key makes a response. Otherwise a non-null "id" makes
// a request and anything else a notification.
func classify(frame []byte) MessageKind {
	if _, dt, _, err := jsonparser.Get(frame, "result"); err == nil && dt != jsonparser.NotExist {
		return KindResponse
	}
	if _, dt, _, err := jsonparser.Get(frame, "error"); err == nil && dt != jsonparser.NotExist {
		return KindResponse
	}
	if _, dt, _, err := jsonparser.Get(frame, "id"); err == nil && dt != jsonparser.NotExist && dt != jsonparser.Null {
		return KindRequest
	}
	return KindNotification
}

// decodeMessage classifies and decodes a frame produced by the FrameParser
func decodeMessage(frame []byte) (*Message, error) {
	msg := &Message{}
	if err := json.Unmarshal(frame, msg); err != nil {
		return nil, newFramingError("cannot decode message: "+err.Error(), excerpt(frame))
	}
	msg.Kind = classify(frame)
	return msg, nil
}

// hasID reports whether the message carries a non-null id
func (m *Message) hasID() bool {
	return len(m.ID) > 0 && !bytes.Equal(bytes.TrimSpace(m.ID), []byte("null"))
}

// numericID returns the id of a response to one of our requests
func (m *Message) numericID() (uint64, bool) {
	if !m.hasID() {
		return 0, false
	}
	id, err := strconv.ParseUint(string(bytes.TrimSpace(m.ID)), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// remoteError converts a non-null error member into an error
//
// OVSDB servers send either a plain string or an object
// {"error": "...", "details": "..."}.
func (m *Message) remoteError(method string) error {
	raw := bytes.TrimSpace(m.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case '"':
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil {
			return newRemoteError(method, msg, "")
		}
	case '{':
		msg, _ := jsonparser.GetString(raw, "error")
		details, _ := jsonparser.GetString(raw, "details")
		if msg == "" {
			msg = string(raw)
		}
		return newRemoteError(method, msg, details)
	}
	return newRemoteError(method, string(raw), "")
}

// params splits positional params into raw elements
func (m *Message) params() ([]json.RawMessage, error) {
	raw := bytes.TrimSpace(m.Params)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var out []json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("params must be an array: %w", err)
	}
	return out, nil
}
