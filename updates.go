// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// MonitorSpec describes one table subscription
type MonitorSpec struct {
	Database string
	Table    string
	Columns  []string
}

// request returns the per-table monitor request object
func (s MonitorSpec) request() map[string]any {
	if len(s.Columns) == 0 {
		return map[string]any{}
	}
	return map[string]any{"columns": s.Columns}
}

// Update is one recorded update notification
type Update struct {
	// MonitorID is the id the subscription was started with
	MonitorID string

	// Tables maps table name to row uuid to {"old": row, "new": row}
	Tables json.RawMessage

	// Received is the local arrival time
	Received time.Time
}

// GetValue retrieves a value from the table updates using a gjson path
//
// Example:
//
//	for _, u := range client.Updates(10) {
//	    u.GetValue("Bridge.@keys")
//	}
func (u Update) GetValue(path string) gjson.Result {
	if len(u.Tables) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(u.Tables, path)
}

// updateLog keeps the most recent updates, newest first
type updateLog struct {
	mu      sync.Mutex
	max     int
	entries []Update
}

func newUpdateLog(max int) *updateLog {
	return &updateLog{max: max}
}

func (l *updateLog) add(u Update) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Update{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = u
	if len(l.entries) > l.max {
		l.entries = l.entries[:l.max]
	}
}

func (l *updateLog) newest(count int) []Update {
	l.mu.Lock()
	defer l.mu.Unlock()
	if count < 0 || count > len(l.entries) {
		count = len(l.entries)
	}
	return append([]Update(nil), l.entries[:count]...)
}

func (l *updateLog) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Updates returns up to count recorded updates, newest first; a negative
// count returns all of them
func (c *Client) Updates(count int) []Update {
	return c.updates.newest(count)
}

// ClearUpdates discards every recorded update
func (c *Client) ClearUpdates() {
	c.updates.clear()
}
