// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"
)

// Operation provides a fluent interface for building one transact operation
// using sjson for path-based manipulation.
//
// The Operation builder tracks errors internally to enable method chaining
// while providing error checking through String() or Err() methods.
//
// Example:
//
//	op := ovsdb.Select("Bridge").
//	    Where("name", "==", "br-int").
//	    Columns("_uuid", "name", "ports")
//
//	res, err := client.Transact(ctx, "Open_vSwitch", []ovsdb.Operation{op})
type Operation struct {
	// str contains the JSON object being built
	str string
	// err tracks the first error encountered during building
	err error
}

// NewOperation starts an operation of any kind. The server defines the
// semantics; the builder only assembles the object.
func NewOperation(op, table string) Operation {
	o := Operation{}.Set("op", op)
	if table != "" {
		o = o.Set("table", table)
	}
	return o
}

// Select builds a select operation with an empty where clause (all rows)
func Select(table string) Operation {
	return NewOperation(OpSelect, table).Set("where", []any{})
}

// Insert builds an insert operation for row
func Insert(table string, row any) Operation {
	return NewOperation(OpInsert, table).Set("row", row)
}

// UpdateOp builds an update operation; narrow it with Where
func UpdateOp(table string, row any) Operation {
	return NewOperation(OpUpdate, table).Set("where", []any{}).Set("row", row)
}

// Delete builds a delete operation; narrow it with Where
func Delete(table string) Operation {
	return NewOperation(OpDelete, table).Set("where", []any{})
}

// Comment builds a comment operation recorded in the server log
func Comment(text string) Operation {
	return NewOperation(OpComment, "").Set("comment", text)
}

// Where appends the condition [column, function, value] to the where clause
func (o Operation) Where(column, function string, value any) Operation {
	if o.err != nil {
		return o
	}
	if err := ValidateFunction(function); err != nil {
		return Operation{str: o.str, err: err}
	}
	return o.Set("where.-1", []any{column, function, value})
}

// WhereUUID appends a condition matching the row identity
func (o Operation) WhereUUID(id string) Operation {
	return o.Where(UUIDColumn, "==", []any{TagUUID, id})
}

// Columns restricts the columns returned by a select
func (o Operation) Columns(columns ...string) Operation {
	if len(columns) == 0 {
		return o.Delete("columns")
	}
	return o.Set("columns", columns)
}

// Set sets a value at the specified JSON path and returns a new Operation
//
// If an error occurs, the error is stored and returned by String() or Err().
// Once an error occurs, all subsequent operations are no-ops that preserve the error.
func (o Operation) Set(path string, value any) Operation {
	if o.err != nil {
		return o
	}

	result, err := sjson.Set(o.str, path, value)
	if err != nil {
		return Operation{str: o.str, err: fmt.Errorf("Set(%q): %w", path, err)}
	}
	return Operation{str: result}
}

// SetRaw sets pre-encoded JSON at the specified path
func (o Operation) SetRaw(path, raw string) Operation {
	if o.err != nil {
		return o
	}

	result, err := sjson.SetRaw(o.str, path, raw)
	if err != nil {
		return Operation{str: o.str, err: fmt.Errorf("SetRaw(%q): %w", path, err)}
	}
	return Operation{str: result}
}

// Delete removes a value at the specified JSON path and returns a new Operation
func (o Operation) Delete(path string) Operation {
	if o.err != nil {
		return o
	}

	result, err := sjson.Delete(o.str, path)
	if err != nil {
		return Operation{str: o.str, err: fmt.Errorf("Delete(%q): %w", path, err)}
	}
	return Operation{str: result}
}

// String returns the JSON string representation and any error encountered during building
func (o Operation) String() (string, error) {
	return o.str, o.err
}

// Err returns any error that occurred during the building process
func (o Operation) Err() error {
	return o.err
}

// Bytes returns the JSON byte slice representation and any error encountered during building
func (o Operation) Bytes() ([]byte, error) {
	if o.err != nil {
		return nil, o.err
	}
	return []byte(o.str), nil
}

// MarshalJSON embeds the operation verbatim in a transact request
func (o Operation) MarshalJSON() ([]byte, error) {
	if o.err != nil {
		return nil, o.err
	}
	if o.str == "" {
		return nil, fmt.Errorf("empty operation")
	}
	return json.RawMessage(o.str), nil
}

// Multicall batches operations against one database into a single transact
// request. The server answers with one result per operation, in order.
//
// Example:
//
//	mc := client.Multicall("Open_vSwitch")
//	mc.Add(ovsdb.Select("Port").WhereUUID(id1))
//	mc.Add(ovsdb.Select("Port").WhereUUID(id2))
//	res, err := mc.Call(ctx)
type Multicall struct {
	client *Client
	db     string
	ops    []Operation
}

// Add appends an operation and returns the Multicall for chaining
func (m *Multicall) Add(op Operation) *Multicall {
	m.ops = append(m.ops, op)
	return m
}

// Len returns the number of queued operations
func (m *Multicall) Len() int {
	return len(m.ops)
}

// Call sends all queued operations as one transact request
func (m *Multicall) Call(ctx context.Context, mods ...func(*Req)) (TransactRes, error) {
	return m.client.Transact(ctx, m.db, m.ops, mods...)
}
