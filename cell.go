// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// CellKind classifies a cell in OVSDB value notation
type CellKind int

const (
	// CellAtom is a plain string, number or boolean
	CellAtom CellKind = iota + 1

	// CellUUID is ["uuid", id], optionally followed by a resolved label and table
	CellUUID

	// CellNamedUUID is ["named-uuid", name], only valid inside a transaction
	CellNamedUUID

	// CellSet is ["set", [element, ...]]
	CellSet

	// CellMap is ["map", [[key, value], ...]]
	CellMap
)

// String returns the string representation of a CellKind
func (k CellKind) String() string {
	switch k {
	case CellAtom:
		return "atom"
	case CellUUID:
		return "uuid"
	case CellNamedUUID:
		return "named-uuid"
	case CellSet:
		return "set"
	case CellMap:
		return "map"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// KindOf returns the kind of a cell; 0 for a missing or malformed cell
func KindOf(cell gjson.Result) CellKind {
	if !cell.Exists() || cell.Type == gjson.Null {
		return 0
	}
	if !cell.IsArray() {
		if cell.IsObject() {
			return 0
		}
		return CellAtom
	}
	switch cell.Get("0").String() {
	case TagUUID:
		return CellUUID
	case TagNamedUUID:
		return CellNamedUUID
	case TagSet:
		return CellSet
	case TagMap:
		return CellMap
	}
	return 0
}

// isUUIDCell reports whether v is ["uuid", id, ...]
func isUUIDCell(v gjson.Result) bool {
	return v.IsArray() && v.Get("0").String() == TagUUID && v.Get("1").Type == gjson.String
}

// CellUUIDs returns every uuid contained in a cell, in element order
//
// Set elements and atoms contribute for PlaceKey and PlaceSelf. Map pairs
// contribute their key for PlaceKey and their value for PlaceValue.
func CellUUIDs(cell gjson.Result, place RefPlace) []string {
	var ids []string
	switch KindOf(cell) {
	case CellUUID:
		if place != PlaceValue {
			ids = append(ids, cell.Get("1").String())
		}
	case CellSet:
		if place == PlaceValue {
			return nil
		}
		cell.Get("1").ForEach(func(_, el gjson.Result) bool {
			if isUUIDCell(el) {
				ids = append(ids, el.Get("1").String())
			}
			return true
		})
	case CellMap:
		side := "0"
		if place == PlaceValue {
			side = "1"
		}
		cell.Get("1").ForEach(func(_, pair gjson.Result) bool {
			if v := pair.Get(side); isUUIDCell(v) {
				ids = append(ids, v.Get("1").String())
			}
			return true
		})
	}
	return ids
}
