// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// TransactRes represents the result of a transact request
//
// The server answers with one element per operation, in request order. A
// select contributes {"rows": [...]}, an insert {"uuid": [...]}, an update or
// delete {"count": n}.
type TransactRes struct {
	// Raw is the result array as received
	Raw string

	// OK indicates if every operation succeeded
	OK bool
}

// GetValue retrieves a value from the result array using a gjson path.
//
// Example paths:
//   - "0.rows.#" - number of rows returned by the first operation
//   - "0.rows.0.name" - name column of the first row
//   - "1.count" - rows touched by the second operation
//
// Example:
//
//	res, err := client.Transact(ctx, "Open_vSwitch", ops)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	name := res.GetValue("0.rows.0.name").String()
func (r TransactRes) GetValue(path string) gjson.Result {
	if r.Raw == "" {
		return gjson.Result{}
	}
	return gjson.Get(r.Raw, path)
}

// JSON returns the raw result array
func (r TransactRes) JSON() string {
	return r.Raw
}

// Len returns the number of operation results
func (r TransactRes) Len() int {
	if r.Raw == "" {
		return 0
	}
	return int(gjson.Get(r.Raw, "#").Int())
}

// Rows returns the rows selected by operation i
func (r TransactRes) Rows(i int) []Row {
	return rowsOf(r.GetValue(fmt.Sprintf("%d.rows", i)))
}

// AllRows flattens the rows of every operation, in operation order
func (r TransactRes) AllRows() []Row {
	var rows []Row
	if r.Raw == "" {
		return rows
	}
	gjson.Parse(r.Raw).ForEach(func(_, value gjson.Result) bool {
		rows = append(rows, rowsOf(value.Get("rows"))...)
		return true
	})
	return rows
}

// firstError returns the index and the error member of the first failed
// operation, or -1 when every operation succeeded
func (r TransactRes) firstError() (int, gjson.Result) {
	idx := -1
	var failed gjson.Result
	i := 0
	gjson.Parse(r.Raw).ForEach(func(_, value gjson.Result) bool {
		if e := value.Get("error"); e.Exists() && e.Type != gjson.Null {
			idx = i
			failed = value
			return false
		}
		i++
		return true
	})
	return idx, failed
}

func rowsOf(value gjson.Result) []Row {
	if !value.IsArray() {
		return nil
	}
	arr := value.Array()
	rows := make([]Row, 0, len(arr))
	for _, v := range arr {
		rows = append(rows, Row{raw: v.Raw})
	}
	return rows
}

// Row is one table row as a JSON object of column name to cell
//
// Cells keep the OVSDB value notation: an atom, ["uuid", id],
// ["set", [...]] or ["map", [[k, v], ...]]. After cross-link resolution a
// uuid cell carries two more elements, the label of the referenced row and
// its table: ["uuid", id, label, table].
type Row struct {
	raw string
}

// NewRow wraps a JSON object
func NewRow(raw string) Row {
	return Row{raw: raw}
}

// Get returns the cell of a column
func (r Row) Get(column string) gjson.Result {
	return gjson.Get(r.raw, gjson.Escape(column))
}

// GetValue retrieves a value from the row using a gjson path
func (r Row) GetValue(path string) gjson.Result {
	return gjson.Get(r.raw, path)
}

// Has reports whether the row carries a column
func (r Row) Has(column string) bool {
	return r.Get(column).Exists()
}

// UUID returns the row identity, whether _uuid is still a uuid cell or was
// normalized to a plain string
func (r Row) UUID() string {
	return uuidOf(r.Get(UUIDColumn))
}

// JSON returns the row as a JSON object
func (r Row) JSON() string {
	return r.raw
}

// MarshalJSON embeds the row verbatim
func (r Row) MarshalJSON() ([]byte, error) {
	if r.raw == "" {
		return []byte("null"), nil
	}
	return json.RawMessage(r.raw), nil
}

// uuidOf extracts the id of a uuid cell or returns the plain string
func uuidOf(cell gjson.Result) string {
	if cell.IsArray() {
		if cell.Get("0").String() == TagUUID {
			return cell.Get("1").String()
		}
		return ""
	}
	return cell.String()
}
