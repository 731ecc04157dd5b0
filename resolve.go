// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"context"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"
)

// linkTarget is one referenced row awaiting its label
type linkTarget struct {
	table string
	id    string
}

// linkEdit appends (label, table) to the uuid cell at path of row
type linkEdit struct {
	row    int
	path   string
	target linkTarget
	self   bool
	label  any
}

// resolve appends the display label and table of every referenced row to the
// uuid cell pointing at it, turning ["uuid", id] into
// ["uuid", id, label, table]
//
// Labels of foreign rows are looked up concurrently, each distinct row once,
// bounded by the client's ResolveConcurrency. The first failed lookup cancels
// the rest and fails the whole batch. Element positions never change.
func (d *Database) resolve(ctx context.Context, table string, rows []Row) ([]Row, error) {
	if len(rows) == 0 {
		return rows, nil
	}
	refs, err := d.schema.ColumnsWithRefs(table)
	if err != nil {
		return nil, err
	}

	// deterministic edit order
	columns := make([]string, 0, len(refs))
	for col := range refs {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var edits []linkEdit
	for i, row := range rows {
		for _, col := range columns {
			edits = append(edits, d.collectLinks(i, row, refs[col])...)
		}
	}
	if len(edits) == 0 {
		return rows, nil
	}

	labels, err := d.lookupLabels(ctx, edits)
	if err != nil {
		return nil, err
	}

	out := make([]Row, len(rows))
	copy(out, rows)
	for _, e := range edits {
		label := e.label
		if !e.self {
			label = labels[e.target]
		}
		raw, err := sjson.Set(out[e.row].raw, e.path+".-1", label)
		if err == nil {
			raw, err = sjson.Set(raw, e.path+".-1", e.target.table)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve %s.%s: %w", table, e.path, err)
		}
		out[e.row] = Row{raw: raw}
	}
	return out, nil
}

// collectLinks finds the uuid cells of one reference column of one row
//
// Cells that are not arrays, empty arrays and items of any other shape are
// left alone.
func (d *Database) collectLinks(rowIdx int, row Row, ref ReferenceColumn) []linkEdit {
	cell := row.Get(ref.Column)
	if !cell.IsArray() || len(cell.Array()) == 0 {
		return nil
	}
	base := gjson.Escape(ref.Column)

	if ref.Place == PlaceSelf {
		if !isUUIDCell(cell) {
			return nil
		}
		return []linkEdit{{
			row:    rowIdx,
			path:   base,
			target: linkTarget{table: ref.RefTable, id: cell.Get("1").String()},
			self:   true,
			label:  d.ownLabel(ref.RefTable, row),
		}}
	}

	var edits []linkEdit
	add := func(path string, v gjson.Result) {
		edits = append(edits, linkEdit{
			row:    rowIdx,
			path:   path,
			target: linkTarget{table: ref.RefTable, id: v.Get("1").String()},
		})
	}

	switch KindOf(cell) {
	case CellUUID:
		add(base, cell)
	case CellSet:
		for i, el := range cell.Get("1").Array() {
			if isUUIDCell(el) {
				add(fmt.Sprintf("%s.1.%d", base, i), el)
			}
		}
	case CellMap:
		side := 0
		if ref.Place == PlaceValue {
			side = 1
		}
		for i, pair := range cell.Get("1").Array() {
			if v := pair.Get(fmt.Sprint(side)); isUUIDCell(v) {
				add(fmt.Sprintf("%s.1.%d.%d", base, i, side), v)
			}
		}
	}
	return edits
}

// ownLabel returns the label of a row from its own columns; no query
func (d *Database) ownLabel(table string, row Row) any {
	col, ok := d.schema.NameColumn(table)
	if !ok {
		return nil
	}
	return labelOf(row.Get(col))
}

// lookupLabels fetches the label of every distinct foreign row
func (d *Database) lookupLabels(ctx context.Context, edits []linkEdit) (map[linkTarget]any, error) {
	var targets []linkTarget
	labels := make(map[linkTarget]any)
	for _, e := range edits {
		if e.self {
			continue
		}
		if _, ok := labels[e.target]; ok {
			continue
		}
		labels[e.target] = nil
		targets = append(targets, e.target)
	}
	if len(targets) == 0 {
		return labels, nil
	}

	results := make([]any, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.client.ResolveConcurrency)
	for i, t := range targets {
		g.Go(func() error {
			label, err := d.lookupLabel(gctx, t)
			if err != nil {
				return err
			}
			results[i] = label
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, t := range targets {
		labels[t] = results[i]
	}
	return labels, nil
}

// lookupLabel selects the name column of one row
//
// A table without a name column yields a nil label without a query. A
// missing row is a lookup error.
func (d *Database) lookupLabel(ctx context.Context, t linkTarget) (any, error) {
	col, ok := d.schema.NameColumn(t.table)
	if !ok {
		return nil, nil
	}

	op := Select(t.table).WhereUUID(t.id).Columns(col)
	rows, err := d.client.Select(ctx, d.name, op)
	if err != nil {
		return nil, newLookupError(t.table, t.id, err)
	}
	if len(rows) == 0 {
		return nil, newLookupError(t.table, t.id, ErrRowNotFound)
	}
	return labelOf(rows[0].Get(col)), nil
}

// labelOf turns a label cell into a plain value; uuid cells become their id
func labelOf(cell gjson.Result) any {
	if !cell.Exists() {
		return nil
	}
	if isUUIDCell(cell) {
		return cell.Get("1").String()
	}
	return cell.Value()
}
