// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import "fmt"

// JSON-RPC methods of the OVSDB management protocol
const (
	// MethodListDbs lists the databases served by the remote
	MethodListDbs = "list_dbs"

	// MethodGetSchema returns the schema document of one database
	MethodGetSchema = "get_schema"

	// MethodTransact runs an ordered list of operations against one database
	MethodTransact = "transact"

	// MethodMonitor subscribes to table changes
	MethodMonitor = "monitor"

	// MethodMonitorCancel ends a subscription
	MethodMonitorCancel = "monitor_cancel"

	// MethodEcho is the liveness check; either side may send it
	MethodEcho = "echo"

	// MethodUpdate is the notification carrying monitored changes
	MethodUpdate = "update"
)

// Cell tags of the OVSDB value notation
const (
	TagUUID      = "uuid"
	TagSet       = "set"
	TagMap       = "map"
	TagNamedUUID = "named-uuid"
)

// Operation names accepted inside a transact request
const (
	OpSelect  = "select"
	OpInsert  = "insert"
	OpUpdate  = "update"
	OpMutate  = "mutate"
	OpDelete  = "delete"
	OpWait    = "wait"
	OpCommit  = "commit"
	OpAbort   = "abort"
	OpComment = "comment"
	OpAssert  = "assert"
)

// UUIDColumn is the implicit row identity column present in every table
const UUIDColumn = "_uuid"

// ValidFunctions contains the condition functions usable in a where clause
var ValidFunctions = []string{"<", "<=", "==", "!=", ">=", ">", "includes", "excludes"}

// ValidateFunction checks if a where-clause function is valid
//
// Returns an error if the function is not one of the supported values.
//
// Example:
//
//	if err := ovsdb.ValidateFunction("=="); err != nil {
//	    log.Fatal(err)
//	}
func ValidateFunction(fn string) error {
	for _, valid := range ValidFunctions {
		if fn == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid condition function: %s (valid values: <, <=, ==, !=, >=, >, includes, excludes)", fn)
}
