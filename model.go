// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/sjson"
)

// Database is the object graph of one database on one connection
//
// It is built once per database on Connect from the reflected schema and is
// passed to every Collection and Object it hands out. Tables are reachable
// by name or by accessor alias, the lower-cased table name plus "s"
// ("bridges" for Bridge).
type Database struct {
	client    *Client
	name      string
	schema    *Schema
	accessors map[string]string
}

func newDatabase(client *Client, name string, schema *Schema) *Database {
	d := &Database{
		client:    client,
		name:      name,
		schema:    schema,
		accessors: make(map[string]string),
	}
	for _, table := range schema.Tables() {
		d.accessors[Accessor(table)] = table
	}
	return d
}

// Accessor returns the collection alias of a table
func Accessor(table string) string {
	return strings.ToLower(table) + "s"
}

// Name returns the database name
func (d *Database) Name() string {
	return d.name
}

// Schema returns the reflected schema
func (d *Database) Schema() *Schema {
	return d.schema
}

// Tables returns the table names in schema order
func (d *Database) Tables() []string {
	return d.schema.Tables()
}

// tableName resolves a table name or accessor alias
func (d *Database) tableName(name string) (string, bool) {
	if d.schema.HasTable(name) {
		return name, true
	}
	t, ok := d.accessors[name]
	return t, ok
}

// Table returns the root collection of every row of a table
//
// Example:
//
//	bridges, err := db.Table("bridges")
//	err = bridges.Each(ctx, func(bridge *ovsdb.Object) error {
//	    ports := bridge.Related("Port")
//	    ...
//	})
func (d *Database) Table(name string) (*Collection, error) {
	table, ok := d.tableName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return &Collection{db: d, table: table}, nil
}

// Filter narrows a collection to rows whose Column equals Value
type Filter struct {
	Column string
	Value  any
}

func (f *Filter) condition() []any {
	value := f.Value
	if f.Column == UUIDColumn {
		if id, ok := value.(string); ok {
			value = []any{TagUUID, id}
		}
	}
	return []any{f.Column, "==", value}
}

// rowSource is what a child collection is scoped to: a collection or an object
type rowSource interface {
	tableName() string
	refRows(ctx context.Context, column string) ([]Row, error)
}

// Collection is a lazily evaluated set of rows of one table
//
// A root collection covers the whole table. A child collection (from Related
// or RelatedVia) covers the rows referenced by its parent through one
// reference column. Nothing is fetched until List, Data or Each runs, and
// every run fetches again.
type Collection struct {
	db        *Database
	table     string
	parent    rowSource
	parentCol string
	filter    *Filter
	err       error
}

// Table returns the table name
func (c *Collection) Table() string {
	return c.table
}

func (c *Collection) tableName() string {
	return c.table
}

// Get returns the object with a given uuid; no query is issued
func (c *Collection) Get(id string) *Object {
	return &Object{db: c.db, table: c.table, id: id, parent: c}
}

// Find narrows the collection to rows whose column equals value
func (c *Collection) Find(column string, value any) *Collection {
	child := *c
	child.filter = &Filter{Column: column, Value: value}
	return &child
}

// FindByName narrows the collection to rows whose display label equals value
func (c *Collection) FindByName(value any) *Collection {
	col, ok := c.db.schema.NameColumn(c.table)
	if !ok {
		child := *c
		child.err = fmt.Errorf("table %s has no name column", c.table)
		return &child
	}
	return c.Find(col, value)
}

// Related returns the rows of table referenced by the rows of this collection
func (c *Collection) Related(table string) *Collection {
	return related(c.db, c, table)
}

// RelatedVia returns the rows referenced through one reference column
func (c *Collection) RelatedVia(column string) *Collection {
	return relatedVia(c.db, c, column)
}

// Data fetches the rows with cross links resolved; no columns selects all
func (c *Collection) Data(ctx context.Context, columns ...string) ([]Row, error) {
	rows, err := c.fetch(ctx, columns)
	if err != nil {
		return nil, err
	}
	return c.db.resolve(ctx, c.table, rows)
}

// List fetches _uuid plus the requested columns, resolves cross links and
// reports _uuid as the plain id string
func (c *Collection) List(ctx context.Context, columns ...string) ([]Row, error) {
	cols := append([]string{UUIDColumn}, columns...)
	rows, err := c.Data(ctx, cols...)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		raw, err := sjson.Set(row.raw, UUIDColumn, row.UUID())
		if err != nil {
			return nil, fmt.Errorf("normalize %s row: %w", c.table, err)
		}
		rows[i] = Row{raw: raw}
	}
	return rows, nil
}

// Each calls fn for every row in order
//
// The first error returned by fn stops the iteration and is returned.
func (c *Collection) Each(ctx context.Context, fn func(*Object) error) error {
	rows, err := c.List(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := checkContextCancellation(ctx); err != nil {
			return err
		}
		if err := fn(c.Get(row.UUID())); err != nil {
			return err
		}
	}
	return nil
}

// fetch runs the select for this collection without resolving cross links
func (c *Collection) fetch(ctx context.Context, columns []string) ([]Row, error) {
	if c.err != nil {
		return nil, c.err
	}

	if c.parent == nil {
		op := c.selectOp(columns)
		rows, err := c.db.client.Select(ctx, c.db.name, op)
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", c.table, err)
		}
		return rows, nil
	}

	ids, err := c.parentIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Row{}, nil
	}

	mc := c.db.client.Multicall(c.db.name)
	for _, id := range ids {
		mc.Add(c.selectOp(columns).WhereUUID(id))
	}
	res, err := mc.Call(ctx)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", c.table, err)
	}
	return res.AllRows(), nil
}

func (c *Collection) selectOp(columns []string) Operation {
	op := Select(c.table).Columns(columns...)
	if c.filter != nil {
		op = op.Set("where.-1", c.filter.condition())
	}
	return op
}

// parentIDs collects the uuids referenced by every parent row in order,
// keeping the first occurrence of each
func (c *Collection) parentIDs(ctx context.Context) ([]string, error) {
	refs, err := c.db.schema.ColumnsWithRefs(c.parent.tableName())
	if err != nil {
		return nil, err
	}
	ref, ok := refs[c.parentCol]
	if !ok {
		return nil, fmt.Errorf("%s.%s is not a reference column", c.parent.tableName(), c.parentCol)
	}

	rows, err := c.parent.refRows(ctx, c.parentCol)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, row := range rows {
		for _, id := range CellUUIDs(row.Get(c.parentCol), ref.Place) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// refRows returns the unresolved reference column of every row
func (c *Collection) refRows(ctx context.Context, column string) ([]Row, error) {
	return c.fetch(ctx, []string{column})
}

// Object is one row of a table, addressed by uuid
type Object struct {
	db     *Database
	table  string
	id     string
	parent *Collection
}

// UUID returns the row identity
func (o *Object) UUID() string {
	return o.id
}

// Table returns the table name
func (o *Object) Table() string {
	return o.table
}

// Parent returns the collection the object was taken from
func (o *Object) Parent() *Collection {
	return o.parent
}

func (o *Object) tableName() string {
	return o.table
}

// Data fetches the row with cross links resolved; no columns selects all
func (o *Object) Data(ctx context.Context, columns ...string) (Row, error) {
	rows, err := o.selectRow(ctx, columns...)
	if err != nil {
		return Row{}, err
	}
	resolved, err := o.db.resolve(ctx, o.table, rows[:1])
	if err != nil {
		return Row{}, err
	}
	return resolved[0], nil
}

// Column fetches one column of the row without resolving cross links
func (o *Object) Column(ctx context.Context, column string) (Row, error) {
	rows, err := o.selectRow(ctx, column)
	if err != nil {
		return Row{}, err
	}
	return rows[0], nil
}

// Each calls fn once with the object itself
func (o *Object) Each(_ context.Context, fn func(*Object) error) error {
	return fn(o)
}

// Related returns the rows of table referenced by this row
func (o *Object) Related(table string) *Collection {
	return related(o.db, o, table)
}

// RelatedVia returns the rows referenced through one reference column
func (o *Object) RelatedVia(column string) *Collection {
	return relatedVia(o.db, o, column)
}

func (o *Object) refRows(ctx context.Context, column string) ([]Row, error) {
	return o.selectRow(ctx, column)
}

// selectRow selects the row by uuid; an empty result is ErrRowNotFound
func (o *Object) selectRow(ctx context.Context, columns ...string) ([]Row, error) {
	op := Select(o.table).WhereUUID(o.id).Columns(columns...)
	rows, err := o.db.client.Select(ctx, o.db.name, op)
	if err != nil {
		return nil, fmt.Errorf("select %s %s: %w", o.table, o.id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrRowNotFound, o.table, o.id)
	}
	return rows, nil
}

// related picks the first reference column of p's table pointing at table
// (name or accessor alias) in schema column order
func related(db *Database, p rowSource, table string) *Collection {
	target, ok := db.tableName(table)
	if !ok {
		return &Collection{db: db, table: table, err: fmt.Errorf("%w: %s", ErrTableNotFound, table)}
	}
	refs, err := db.schema.ColumnsWithRefs(p.tableName())
	if err != nil {
		return &Collection{db: db, table: target, err: err}
	}
	columns, _ := db.schema.Columns(p.tableName())
	columns = append(columns, UUIDColumn)
	for _, col := range columns {
		if ref, ok := refs[col]; ok && ref.RefTable == target {
			return &Collection{db: db, table: target, parent: p, parentCol: col}
		}
	}
	return &Collection{db: db, table: target,
		err: fmt.Errorf("%s has no reference to %s", p.tableName(), target)}
}

func relatedVia(db *Database, p rowSource, column string) *Collection {
	refs, err := db.schema.ColumnsWithRefs(p.tableName())
	if err != nil {
		return &Collection{db: db, err: err}
	}
	ref, ok := refs[column]
	if !ok {
		return &Collection{db: db, err: fmt.Errorf("%s.%s is not a reference column", p.tableName(), column)}
	}
	return &Collection{db: db, table: ref.RefTable, parent: p, parentCol: column}
}
