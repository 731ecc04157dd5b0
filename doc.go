// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package ovsdb provides a simple, fluent API for talking to Open vSwitch
// database servers using the OVSDB management protocol (RFC 7047).
//
// The library handles the JSON-RPC stream over TCP or TLS, multiplexes
// concurrent calls over one connection, reflects the schema of every
// database on the server and exposes each database as a lazily evaluated
// object graph whose reference columns are resolved to readable labels.
//
// # Quick Start
//
// Create a client, connect and walk the graph:
//
//	client, err := ovsdb.NewClient("192.168.1.1",
//	    ovsdb.Port(6640),
//	    ovsdb.OperationTimeout(5*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	ctx := context.Background()
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	db, err := client.Database("Open_vSwitch")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bridges, _ := db.Table("bridges")
//	rows, err := bridges.List(ctx, "name", "ports")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, row := range rows {
//	    // ports: ["set", [["uuid", "...", "eth0", "Port"], ...]]
//	    fmt.Println(row.Get("name").String(), row.Get("ports.1.#.2"))
//	}
//
// # Operations
//
// Use the Operation builder for transact requests:
//
//	op := ovsdb.Select("Interface").
//	    Where("name", "==", "eth0").
//	    Columns("name", "statistics")
//
//	res, err := client.Transact(ctx, "Open_vSwitch", []ovsdb.Operation{op})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.GetValue("0.rows.0.statistics"))
//
// Several operations sent as a single transact form a Multicall:
//
//	mc := client.Multicall("Open_vSwitch")
//	mc.Add(ovsdb.Select("Bridge").Columns("name"))
//	mc.Add(ovsdb.Select("Port").Columns("name"))
//	res, err = mc.Call(ctx)
//
// # Error Handling
//
// Errors are classified by kind and can be inspected with errors.As or the
// Is* helpers:
//
//	if _, err := client.ListDatabases(ctx); err != nil {
//	    if ovsdb.IsTimeout(err) {
//	        // no response within the operation timeout
//	    }
//	}
//
// # Thread Safety
//
// All Client methods are safe for concurrent use. Every call carries its
// own id and completes exactly once: with its response, its timeout, or the
// loss of the connection.
//
// # References
//
//   - RFC 7047: https://www.rfc-editor.org/rfc/rfc7047
//   - gjson: https://github.com/tidwall/gjson
//   - sjson: https://github.com/tidwall/sjson
package ovsdb
