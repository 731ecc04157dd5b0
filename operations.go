// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Input validation constants
const (
	// MaxOperations bounds the operations of one transact request
	MaxOperations = 10000
)

// validateOperations validates the operations of a transact request
//
// Checks:
//   - Operations slice is not empty and not larger than MaxOperations
//   - Each operation was built without error
//   - Each operation is a JSON object carrying an "op" member
//
// Returns an error if any operation is invalid with a descriptive message.
func validateOperations(ops []Operation) error {
	if len(ops) == 0 {
		return fmt.Errorf("operations cannot be empty")
	}
	if len(ops) > MaxOperations {
		return fmt.Errorf("too many operations: %d (max %d)", len(ops), MaxOperations)
	}
	for i, op := range ops {
		if err := op.Err(); err != nil {
			return fmt.Errorf("operation at index %d is invalid: %w", i, err)
		}
		if !gjson.Get(op.str, "op").Exists() {
			return fmt.Errorf("operation at index %d has no op member", i)
		}
	}
	return nil
}

// session returns the live RPC client or ErrNotConnected
func (c *Client) session() (*rpcClient, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rpc == nil || c.conn == nil || !c.conn.Connected() {
		return nil, ErrNotConnected
	}
	return c.rpc, nil
}

// Call sends an arbitrary JSON-RPC request and returns the raw result
//
// Example:
//
//	res, err := client.Call(ctx, "list_dbs", nil)
func (c *Client) Call(ctx context.Context, method string, params []any, mods ...func(*Req)) (json.RawMessage, error) {
	if err := checkContextCancellation(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	rpc, err := c.session()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return rpc.call(ctx, method, params, mods...)
}

// ListDatabases returns the names of the databases served by the remote
func (c *Client) ListDatabases(ctx context.Context, mods ...func(*Req)) ([]string, error) {
	raw, err := c.Call(ctx, MethodListDbs, nil, mods...)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("list_dbs: unexpected result: %w", err)
	}
	return names, nil
}

// GetSchema fetches and reflects the schema of one database
func (c *Client) GetSchema(ctx context.Context, db string, mods ...func(*Req)) (*Schema, error) {
	raw, err := c.Call(ctx, MethodGetSchema, []any{db}, mods...)
	if err != nil {
		return nil, err
	}
	schema, err := ParseSchema(raw)
	if err != nil {
		return nil, fmt.Errorf("get_schema %s: %w", db, err)
	}
	return schema, nil
}

// Transact runs operations against one database in a single request
//
// The result holds one element per operation, in order. When the server
// reports an error for any operation, Transact returns a remote error naming
// the first failed operation together with the full result.
//
// Example:
//
//	res, err := client.Transact(ctx, "Open_vSwitch", []ovsdb.Operation{
//	    ovsdb.Select("Bridge").Columns("name"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, row := range res.Rows(0) {
//	    fmt.Println(row.Get("name").String())
//	}
func (c *Client) Transact(ctx context.Context, db string, ops []Operation, mods ...func(*Req)) (TransactRes, error) {
	if err := validateOperations(ops); err != nil {
		return TransactRes{}, fmt.Errorf("transact: %w", err)
	}

	params := make([]any, 0, len(ops)+1)
	params = append(params, db)
	for _, op := range ops {
		params = append(params, op)
	}

	if encoded, err := json.Marshal(ops); err == nil {
		c.logger.Debug(ctx, "OVSDB transact",
			"database", db,
			"operations", len(ops),
			"body", c.prepareJSONForLogging(string(encoded)))
	}

	raw, err := c.Call(ctx, MethodTransact, params, mods...)
	if err != nil {
		return TransactRes{}, err
	}

	result := gjson.ParseBytes(raw)
	if !result.IsArray() {
		return TransactRes{}, fmt.Errorf("transact: result is not an array")
	}

	res := TransactRes{Raw: result.Raw, OK: true}
	if idx, failed := res.firstError(); idx >= 0 {
		res.OK = false
		c.logger.Warn(ctx, "OVSDB transact operation failed",
			"database", db,
			"index", idx,
			"error", failed.Get("error").String())
		return res, newRemoteError(MethodTransact,
			fmt.Sprintf("operation %d: %s", idx, failed.Get("error").String()),
			failed.Get("details").String())
	}

	return res, nil
}

// Select runs a single select operation and returns its rows unresolved
//
// Example:
//
//	rows, err := client.Select(ctx, "Open_vSwitch",
//	    ovsdb.Select("Interface").Where("name", "==", "eth0"))
func (c *Client) Select(ctx context.Context, db string, op Operation, mods ...func(*Req)) ([]Row, error) {
	res, err := c.Transact(ctx, db, []Operation{op}, mods...)
	if err != nil {
		return nil, err
	}
	return res.Rows(0), nil
}

// Multicall starts a batch of operations against db sent as one transact
func (c *Client) Multicall(db string) *Multicall {
	return &Multicall{client: c, db: db}
}

// RawRequest passes pre-encoded operations through to transact unchanged
func (c *Client) RawRequest(ctx context.Context, db string, ops []json.RawMessage, mods ...func(*Req)) (TransactRes, error) {
	wrapped := make([]Operation, 0, len(ops))
	for i, raw := range ops {
		if !gjson.ValidBytes(raw) {
			return TransactRes{}, fmt.Errorf("transact: operation at index %d is not valid JSON", i)
		}
		wrapped = append(wrapped, Operation{str: string(raw)})
	}
	return c.Transact(ctx, db, wrapped, mods...)
}

// Monitor subscribes to changes of table columns; an empty db selects the
// first discovered database
//
// It returns the generated monitor id and the initial table contents. Later
// changes arrive as update notifications and are recorded in the update log.
func (c *Client) Monitor(ctx context.Context, db, table string, columns []string, mods ...func(*Req)) (string, json.RawMessage, error) {
	if db == "" {
		d, err := c.Database("")
		if err != nil {
			return "", nil, fmt.Errorf("monitor: %w", err)
		}
		db = d.Name()
	}

	id := uuid.NewString()
	spec := MonitorSpec{Database: db, Table: table, Columns: columns}
	request := map[string]any{table: spec.request()}

	raw, err := c.Call(ctx, MethodMonitor, []any{db, id, request}, mods...)
	if err != nil {
		return "", nil, err
	}

	c.mu.Lock()
	c.monitors[id] = spec
	c.mu.Unlock()

	c.logger.Info(ctx, "OVSDB monitor started",
		"database", db,
		"table", table,
		"monitor", id)

	return id, raw, nil
}

// MonitorCancel ends a subscription started by Monitor
func (c *Client) MonitorCancel(ctx context.Context, id string, mods ...func(*Req)) error {
	if _, err := c.Call(ctx, MethodMonitorCancel, []any{id}, mods...); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.monitors, id)
	c.mu.Unlock()
	return nil
}

// Monitors returns the active subscriptions keyed by monitor id
func (c *Client) Monitors() map[string]MonitorSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]MonitorSpec, len(c.monitors))
	for id, spec := range c.monitors {
		out[id] = spec
	}
	return out
}

// Echo sends the liveness check; the server answers with the same arguments
func (c *Client) Echo(ctx context.Context, args ...any) (json.RawMessage, error) {
	return c.Call(ctx, MethodEcho, args)
}

// Ping verifies the server answers by listing its databases
//
// Example:
//
//	if err := client.Ping(ctx); err != nil {
//	    log.Fatal(err)
//	}
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListDatabases(ctx)
	return err
}

// checkContextCancellation checks if context is canceled or deadline exceeded
//
// This is a non-blocking check that immediately returns if the context is canceled
// or deadline has exceeded.
func checkContextCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
