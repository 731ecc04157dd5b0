// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// testSchema is a trimmed Open_vSwitch schema covering every reference shape
const testSchema = `{
  "name": "Open_vSwitch",
  "version": "8.3.0",
  "cksum": "3682332033 31324",
  "tables": {
    "Open_vSwitch": {
      "columns": {
        "bridges": {"type": {"key": {"type": "uuid", "refTable": "Bridge"}, "min": 0, "max": "unlimited"}},
        "ovs_version": {"type": {"key": "string", "min": 0, "max": 1}}
      },
      "isRoot": true,
      "maxRows": 1
    },
    "Bridge": {
      "columns": {
        "name": {"type": "string"},
        "ports": {"type": {"key": {"type": "uuid", "refTable": "Port"}, "min": 0, "max": "unlimited"}},
        "controller": {"type": {"key": {"type": "uuid", "refTable": "Controller"}, "min": 0, "max": "unlimited"}},
        "flow_tables": {"type": {"key": {"type": "integer"}, "value": {"type": "uuid", "refTable": "Flow_Table"}, "min": 0, "max": "unlimited"}},
        "external_ids": {"type": {"key": "string", "value": "string", "min": 0, "max": "unlimited"}}
      },
      "isRoot": true,
      "indexes": [["name"]]
    },
    "Port": {
      "columns": {
        "name": {"type": "string"},
        "interfaces": {"type": {"key": {"type": "uuid", "refTable": "Interface"}, "min": 1, "max": "unlimited"}}
      },
      "indexes": [["name"]]
    },
    "Interface": {
      "columns": {
        "name": {"type": "string"},
        "type": {"type": "string"},
        "statistics": {"type": {"key": "string", "value": "integer", "min": 0, "max": "unlimited"}}
      },
      "indexes": [["name"]]
    },
    "Controller": {
      "columns": {
        "target": {"type": "string"}
      }
    },
    "Flow_Table": {
      "columns": {
        "name": {"type": {"key": "string", "min": 0, "max": 1}}
      }
    },
    "Datapath": {
      "columns": {
        "datapath_version": {"type": "string"}
      },
      "indexes": [["datapath_version"]]
    },
    "AutoAttach": {
      "columns": {
        "system_description": {"type": "string"}
      }
    }
  }
}`

// testRows returns the default table contents of the fake server
func testRows() map[string][]string {
	return map[string][]string{
		"Open_vSwitch": {
			`{"_uuid":["uuid","ovs-0"],"bridges":["set",[["uuid","b1"],["uuid","b2"]]],"ovs_version":"3.1.0"}`,
		},
		"Bridge": {
			`{"_uuid":["uuid","b1"],"name":"br-int","ports":["set",[["uuid","p1"],["uuid","p2"]]],"controller":["set",[]],"flow_tables":["map",[[0,["uuid","ft1"]]]],"external_ids":["map",[["owner","test"]]]}`,
			`{"_uuid":["uuid","b2"],"name":"br-ex","ports":["uuid","p3"],"controller":["uuid","c1"],"flow_tables":["map",[]],"external_ids":["map",[]]}`,
		},
		"Port": {
			`{"_uuid":["uuid","p1"],"name":"eth0","interfaces":["uuid","i1"]}`,
			`{"_uuid":["uuid","p2"],"name":"eth1","interfaces":["set",[["uuid","i2"],["uuid","i3"]]]}`,
			`{"_uuid":["uuid","p3"],"name":"patch0","interfaces":["uuid","i4"]}`,
		},
		"Interface": {
			`{"_uuid":["uuid","i1"],"name":"eth0","type":"","statistics":["map",[["rx_bytes",1000],["rx_packets",10],["tx_bytes",500]]]}`,
			`{"_uuid":["uuid","i2"],"name":"eth1","type":"","statistics":["map",[["rx_bytes",2000],["tx_bytes",2000]]]}`,
			`{"_uuid":["uuid","i3"],"name":"eth1.100","type":"internal","statistics":["map",[]]}`,
			`{"_uuid":["uuid","i4"],"name":"patch0","type":"patch","statistics":["map",[["tx_bytes",42]]]}`,
		},
		"Controller": {
			`{"_uuid":["uuid","c1"],"target":"tcp:127.0.0.1:6653"}`,
		},
		"Flow_Table": {
			`{"_uuid":["uuid","ft1"],"name":"classifier"}`,
		},
		"AutoAttach": {
			`{"_uuid":["uuid","aa1"],"system_description":"lldp"}`,
		},
	}
}

// serverConn is one accepted connection of the fake server
type serverConn struct {
	nc   net.Conn
	out  chan []byte
	done chan struct{}
}

// fakeServer is an in-memory ovsdb-server speaking over net.Pipe
//
// It answers list_dbs, get_schema, echo, monitor, monitor_cancel and
// transact. Select operations are evaluated against the stored rows with
// "==" conditions and column projection. Writes go through a queue so that
// the read side never blocks on the client.
type fakeServer struct {
	t testing.TB

	mu        sync.Mutex
	tables    map[string][]string
	silent    map[string]bool
	failOps   map[string]string
	requests  []*Message
	transacts [][]gjson.Result
	held      []json.RawMessage
	current   *serverConn
	conns     int

	replies chan *Message
}

func newFakeServer(t testing.TB) *fakeServer {
	t.Helper()
	return &fakeServer{
		t:       t,
		tables:  testRows(),
		silent:  make(map[string]bool),
		failOps: make(map[string]string),
		replies: make(chan *Message, 64),
	}
}

// dialer attaches a new pipe connection to the server
func (s *fakeServer) dialer() func(ctx context.Context, network, address string) (net.Conn, error) {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		client, server := net.Pipe()
		go s.serve(server)
		return client, nil
	}
}

func (s *fakeServer) serve(nc net.Conn) {
	sc := &serverConn{nc: nc, out: make(chan []byte, 256), done: make(chan struct{})}
	s.mu.Lock()
	s.current = sc
	s.conns++
	s.mu.Unlock()

	go func() {
		for {
			select {
			case data := <-sc.out:
				if _, err := nc.Write(data); err != nil {
					return
				}
			case <-sc.done:
				return
			}
		}
	}()

	defer close(sc.done)
	parser := NewFrameParser()
	buf := make([]byte, 4096)
	for {
		n, err := nc.Read(buf)
		if n > 0 {
			ferr := parser.Feed(buf[:n], func(frame []byte) error {
				msg, err := decodeMessage(frame)
				if err != nil {
					return err
				}
				s.handle(sc, msg)
				return nil
			})
			if ferr != nil {
				_ = nc.Close()
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *fakeServer) handle(sc *serverConn, msg *Message) {
	if msg.Kind == KindResponse {
		s.replies <- msg
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, msg)
	silent := s.silent[msg.Method]
	if silent {
		s.held = append(s.held, msg.ID)
	}
	s.mu.Unlock()

	if silent || !msg.hasID() {
		return
	}

	result, errObj := s.answer(msg)
	s.write(sc, map[string]any{"id": msg.ID, "result": result, "error": errObj})
}

func (s *fakeServer) answer(msg *Message) (any, any) {
	params := gjson.ParseBytes(msg.Params).Array()

	switch msg.Method {
	case MethodListDbs:
		return json.RawMessage(`["Open_vSwitch"]`), nil
	case MethodGetSchema:
		if len(params) == 0 || params[0].String() != "Open_vSwitch" {
			return nil, map[string]any{
				"error":   "unknown database",
				"details": "get_schema request specifies unknown database",
			}
		}
		return json.RawMessage(testSchema), nil
	case MethodEcho:
		if len(msg.Params) == 0 {
			return []any{}, nil
		}
		return msg.Params, nil
	case MethodMonitor, MethodMonitorCancel:
		return json.RawMessage(`{}`), nil
	case MethodTransact:
		if len(params) == 0 {
			return nil, "transact needs a database"
		}
		ops := params[1:]
		s.mu.Lock()
		s.transacts = append(s.transacts, ops)
		s.mu.Unlock()

		results := make([]any, 0, len(ops))
		for _, op := range ops {
			results = append(results, s.operate(op))
		}
		return results, nil
	}
	return nil, "unknown method"
}

func (s *fakeServer) operate(op gjson.Result) any {
	table := op.Get("table").String()

	s.mu.Lock()
	failure, fail := s.failOps[table]
	s.mu.Unlock()
	if fail {
		return map[string]any{"error": failure, "details": "rejected by test server"}
	}

	if op.Get("op").String() != OpSelect {
		return map[string]any{"count": 1}
	}
	return map[string]any{"rows": s.selectRows(op)}
}

func (s *fakeServer) selectRows(op gjson.Result) []json.RawMessage {
	s.mu.Lock()
	stored := append([]string(nil), s.tables[op.Get("table").String()]...)
	s.mu.Unlock()

	rows := []json.RawMessage{}
	for _, raw := range stored {
		row := gjson.Parse(raw)
		match := true
		op.Get("where").ForEach(func(_, cond gjson.Result) bool {
			have := row.Get(gjson.Escape(cond.Get("0").String())).Raw
			if compactJSON(have) != compactJSON(cond.Get("2").Raw) {
				match = false
				return false
			}
			return true
		})
		if !match {
			continue
		}

		columns := op.Get("columns")
		if !columns.Exists() {
			rows = append(rows, json.RawMessage(row.Raw))
			continue
		}
		projected := "{}"
		columns.ForEach(func(_, col gjson.Result) bool {
			if v := row.Get(gjson.Escape(col.String())); v.Exists() {
				projected, _ = sjson.SetRaw(projected, col.String(), v.Raw)
			}
			return true
		})
		rows = append(rows, json.RawMessage(projected))
	}
	return rows
}

func (s *fakeServer) write(sc *serverConn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.t.Errorf("fake server cannot encode reply: %v", err)
		return
	}
	select {
	case sc.out <- data:
	case <-sc.done:
	}
}

// send writes a raw frame to the current connection
func (s *fakeServer) send(raw string) {
	s.mu.Lock()
	sc := s.current
	s.mu.Unlock()
	if sc == nil {
		s.t.Fatal("fake server has no connection")
	}
	select {
	case sc.out <- []byte(raw):
	case <-sc.done:
	}
}

// drop closes the current connection from the server side
func (s *fakeServer) drop() {
	s.mu.Lock()
	sc := s.current
	s.mu.Unlock()
	if sc != nil {
		_ = sc.nc.Close()
	}
}

// release answers every request held by a silent method
func (s *fakeServer) release() {
	s.mu.Lock()
	held := s.held
	s.held = nil
	s.mu.Unlock()
	for _, id := range held {
		s.send(`{"id":` + string(id) + `,"result":["late"],"error":null}`)
	}
}

func (s *fakeServer) setSilent(method string, silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent[method] = silent
}

func (s *fakeServer) setRows(table string, rows ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = rows
}

func (s *fakeServer) failTable(table, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOps[table] = message
}

func (s *fakeServer) lastTransact() []gjson.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.transacts) == 0 {
		return nil
	}
	return s.transacts[len(s.transacts)-1]
}

func (s *fakeServer) transactCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transacts)
}

// requestsFor returns the requests received for method, in arrival order
func (s *fakeServer) requestsFor(method string) []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Message
	for _, m := range s.requests {
		if m.Method == method {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeServer) allRequests() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Message(nil), s.requests...)
}

func (s *fakeServer) heldCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}

// waitReply returns the next response the client sent to the server
func (s *fakeServer) waitReply(t *testing.T) *Message {
	t.Helper()
	select {
	case msg := <-s.replies:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no reply from client")
		return nil
	}
}

// connectClient creates a client attached to s and connects it
func connectClient(t *testing.T, s *fakeServer, opts ...func(*Client)) *Client {
	t.Helper()
	opts = append([]func(*Client){
		WithDialer(s.dialer()),
		OperationTimeout(2 * time.Second),
	}, opts...)

	client, err := NewClient("ovsdb.test", opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return client
}

// eventually polls cond until it holds or two seconds have passed
func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func compactJSON(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return raw
	}
	return buf.String()
}

// sameJSON reports whether a and b decode to the same value; escaping and
// key order do not matter
func sameJSON(a, b string) bool {
	if !gjson.Valid(a) || !gjson.Valid(b) {
		return false
	}
	return reflect.DeepEqual(gjson.Parse(a).Value(), gjson.Parse(b).Value())
}
