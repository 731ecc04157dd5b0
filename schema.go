// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// RefPlace tells where the uuids of a reference column live
type RefPlace string

const (
	// PlaceKey marks references in the atom, set elements or map keys
	PlaceKey RefPlace = "key"

	// PlaceValue marks references in map values
	PlaceValue RefPlace = "value"

	// PlaceSelf marks the implicit _uuid column referencing its own table
	PlaceSelf RefPlace = "self"
)

// ReferenceColumn describes a column holding uuids of rows in RefTable
type ReferenceColumn struct {
	Column   string
	RefTable string
	Place    RefPlace
}

// nameColumnOverrides maps tables whose display label is not their "name"
// column. A "_uuid" entry means the row is labelled by its own id.
var nameColumnOverrides = map[string]string{
	"Controller":                "target",
	"Manager":                   "target",
	"SSL":                       "certificate",
	"IPFIX":                     UUIDColumn,
	"FlowTable":                 UUIDColumn,
	"sFlow":                     UUIDColumn,
	"NetFlow":                   UUIDColumn,
	"QoS":                       UUIDColumn,
	"Queue":                     UUIDColumn,
	"Open_vSwitch":              UUIDColumn,
	"Flow_Sample_Collector_Set": UUIDColumn,
}

// TableSchema is the reflected shape of one table
type TableSchema struct {
	Name    string
	IsRoot  bool
	MaxRows int64
	Indexes [][]string

	columns    []string
	refs       map[string]ReferenceColumn
	nameColumn string
	hasName    bool
}

// Columns returns the declared columns in schema order
func (t *TableSchema) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Schema is the parsed schema document of one database
//
// Reflection results are computed once in ParseSchema; lookups afterwards
// are plain map reads and safe for concurrent use.
type Schema struct {
	Name    string
	Version string
	Cksum   string

	raw    string
	order  []string
	tables map[string]*TableSchema
}

// ParseSchema parses a get_schema result
//
// Expected shape:
//
//	{"name": "...", "version": "...", "tables": {
//	    "T": {"columns": {"C": {"type": ...}}, "indexes": [["C", ...]]}}}
func ParseSchema(data []byte) (*Schema, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("schema is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("schema must be a JSON object")
	}
	tables := doc.Get("tables")
	if !tables.IsObject() {
		return nil, fmt.Errorf("schema %q has no tables", doc.Get("name").String())
	}

	s := &Schema{
		Name:    doc.Get("name").String(),
		Version: doc.Get("version").String(),
		Cksum:   doc.Get("cksum").String(),
		raw:     doc.Raw,
		tables:  make(map[string]*TableSchema),
	}

	var err error
	tables.ForEach(func(key, value gjson.Result) bool {
		var t *TableSchema
		t, err = reflectTable(key.String(), value)
		if err != nil {
			return false
		}
		s.order = append(s.order, t.Name)
		s.tables[t.Name] = t
		return true
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func reflectTable(name string, def gjson.Result) (*TableSchema, error) {
	columns := def.Get("columns")
	if !columns.IsObject() {
		return nil, fmt.Errorf("table %s has no columns", name)
	}

	t := &TableSchema{
		Name:    name,
		IsRoot:  def.Get("isRoot").Bool(),
		MaxRows: def.Get("maxRows").Int(),
		refs:    make(map[string]ReferenceColumn),
	}

	columns.ForEach(func(key, value gjson.Result) bool {
		col := key.String()
		t.columns = append(t.columns, col)

		typ := value.Get("type")
		if ref := typ.Get("key.refTable"); ref.Exists() {
			t.refs[col] = ReferenceColumn{Column: col, RefTable: ref.String(), Place: PlaceKey}
		}
		if ref := typ.Get("value.refTable"); ref.Exists() {
			t.refs[col] = ReferenceColumn{Column: col, RefTable: ref.String(), Place: PlaceValue}
		}
		return true
	})
	t.refs[UUIDColumn] = ReferenceColumn{Column: UUIDColumn, RefTable: name, Place: PlaceSelf}

	def.Get("indexes").ForEach(func(_, index gjson.Result) bool {
		var cols []string
		index.ForEach(func(_, c gjson.Result) bool {
			cols = append(cols, c.String())
			return true
		})
		t.Indexes = append(t.Indexes, cols)
		return true
	})

	switch {
	case nameColumnOverrides[name] != "":
		t.nameColumn, t.hasName = nameColumnOverrides[name], true
	case columns.Get("name").Exists():
		t.nameColumn, t.hasName = "name", true
	case len(t.Indexes) > 0 && len(t.Indexes[0]) > 0:
		t.nameColumn, t.hasName = t.Indexes[0][0], true
	}

	return t, nil
}

// Tables returns the table names in declaration order
func (s *Schema) Tables() []string {
	return append([]string(nil), s.order...)
}

// HasTable reports whether the schema declares a table
func (s *Schema) HasTable(table string) bool {
	_, ok := s.tables[table]
	return ok
}

// Table returns the reflected table
func (s *Schema) Table(table string) (*TableSchema, error) {
	t, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return t, nil
}

// Columns returns the declared columns of a table in schema order
func (s *Schema) Columns(table string) ([]string, error) {
	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	return t.Columns(), nil
}

// ColumnsWithRefs returns every reference column of a table keyed by column
// name, including the implicit _uuid self reference
//
// When both the key and the value side of a map column carry a refTable the
// value side wins.
func (s *Schema) ColumnsWithRefs(table string) (map[string]ReferenceColumn, error) {
	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	refs := make(map[string]ReferenceColumn, len(t.refs))
	for k, v := range t.refs {
		refs[k] = v
	}
	return refs, nil
}

// NameColumn returns the column used as the display label of a table's rows
func (s *Schema) NameColumn(table string) (string, bool) {
	t, ok := s.tables[table]
	if !ok {
		return "", false
	}
	return t.nameColumn, t.hasName
}

// JSON returns the schema document as received
func (s *Schema) JSON() string {
	return s.raw
}
