// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// Default sampler configuration values
const (
	DefaultSampleInterval = 5 * time.Second
	DefaultSampleHistory  = 100
)

// Sample is the throughput of one interface between two polls
type Sample struct {
	Time          time.Time
	BitsPerSecond uint64
}

type series struct {
	last     uint64
	lastTime time.Time
	samples  []Sample
}

// Sampler periodically reads interface byte counters through the object
// graph and keeps a bounded throughput history per interface
//
// Each poll walks Open_vSwitch bridges, their ports and the ports'
// interfaces, and sums rx_bytes and tx_bytes of the interface statistics
// column. The first poll of an interface records zero.
type Sampler struct {
	client   *Client
	database string
	interval time.Duration
	history  int

	mu     sync.RWMutex
	series map[string]*series

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SamplerOption configures a Sampler
type SamplerOption func(*Sampler)

// SampleInterval sets the poll interval (default: 5s)
func SampleInterval(d time.Duration) SamplerOption {
	return func(s *Sampler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// SampleHistory sets how many samples are kept per interface (default: 100)
func SampleHistory(n int) SamplerOption {
	return func(s *Sampler) {
		if n > 0 {
			s.history = n
		}
	}
}

// SampleDatabase selects the database to walk (default: Open_vSwitch)
func SampleDatabase(name string) SamplerOption {
	return func(s *Sampler) {
		s.database = name
	}
}

// NewSampler creates a sampler over a connected client
//
// Example:
//
//	sampler := ovsdb.NewSampler(client, ovsdb.SampleInterval(10*time.Second))
//	sampler.Start(ctx)
//	defer sampler.Stop()
//	...
//	for name, samples := range sampler.Statistics("*") {
//	    fmt.Println(name, samples[len(samples)-1].BitsPerSecond)
//	}
func NewSampler(client *Client, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		client:   client,
		database: "Open_vSwitch",
		interval: DefaultSampleInterval,
		history:  DefaultSampleHistory,
		series:   make(map[string]*series),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start polls every interval until Stop is called or ctx ends. Calling
// Start on a running sampler is a no-op.
func (s *Sampler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.SampleOnce(ctx); err != nil && ctx.Err() == nil {
					s.client.logger.Warn(ctx, "OVSDB statistics poll failed",
						"database", s.database,
						"error", err.Error())
				}
			}
		}
	}(s.done)
}

// Stop ends polling and waits for an in-flight poll to finish
func (s *Sampler) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SampleOnce polls every interface once
func (s *Sampler) SampleOnce(ctx context.Context) error {
	db, err := s.client.Database(s.database)
	if err != nil {
		return err
	}
	bridges, err := db.Table("Bridge")
	if err != nil {
		return err
	}

	now := time.Now()
	return bridges.Each(ctx, func(bridge *Object) error {
		return bridge.Related("Port").Each(ctx, func(port *Object) error {
			return port.Related("Interface").Each(ctx, func(intf *Object) error {
				row, err := intf.Data(ctx, "name", "statistics")
				if err != nil {
					return fmt.Errorf("interface %s: %w", intf.UUID(), err)
				}
				s.record(row.Get("name").String(), interfaceBytes(row), now)
				return nil
			})
		})
	})
}

// interfaceBytes sums rx_bytes and tx_bytes of the statistics map
func interfaceBytes(row Row) uint64 {
	var total uint64
	row.Get("statistics").Get("1").ForEach(func(_, pair gjson.Result) bool {
		switch pair.Get("0").String() {
		case "rx_bytes", "tx_bytes":
			total += pair.Get("1").Uint()
		}
		return true
	})
	return total
}

// record appends the throughput since the previous poll of name
func (s *Sampler) record(name string, counter uint64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sr, ok := s.series[name]
	if !ok {
		sr = &series{last: counter, lastTime: now}
		s.series[name] = sr
	}

	var bps uint64
	elapsed := now.Sub(sr.lastTime).Seconds()
	if counter >= sr.last && elapsed > 0 {
		bps = uint64(float64(counter-sr.last) * 8 / elapsed)
	}
	sr.last = counter
	sr.lastTime = now

	sr.samples = append(sr.samples, Sample{Time: now, BitsPerSecond: bps})
	if len(sr.samples) > s.history {
		sr.samples = sr.samples[len(sr.samples)-s.history:]
	}
}

// Statistics returns the sample history of one interface, or of every
// interface for "*"
func (s *Sampler) Statistics(name string) map[string][]Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]Sample)
	for n, sr := range s.series {
		if name == "*" || name == n {
			out[n] = append([]Sample(nil), sr.samples...)
		}
	}
	return out
}

// latest returns the newest sample of every interface
func (s *Sampler) latest() map[string]Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Sample, len(s.series))
	for n, sr := range s.series {
		if len(sr.samples) > 0 {
			out[n] = sr.samples[len(sr.samples)-1]
		}
	}
	return out
}
