// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "ovsdb"

	interfaceLabel = "interface"
	targetLabel    = "target"
)

// SamplerCollector exports the newest throughput sample of every interface
//
// Example:
//
//	sampler := ovsdb.NewSampler(client)
//	sampler.Start(ctx)
//	prometheus.MustRegister(ovsdb.NewSamplerCollector(sampler))
type SamplerCollector struct {
	sampler    *Sampler
	throughput *prometheus.Desc
	samples    *prometheus.Desc
}

// NewSamplerCollector creates a prometheus collector over a sampler
func NewSamplerCollector(s *Sampler) *SamplerCollector {
	return &SamplerCollector{
		sampler: s,
		throughput: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "interface", "throughput_bits_per_second"),
			"Throughput of the interface between the two most recent polls.",
			[]string{interfaceLabel}, nil,
		),
		samples: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "interface", "samples"),
			"Number of throughput samples kept for the interface.",
			[]string{interfaceLabel}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *SamplerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.throughput
	ch <- c.samples
}

// Collect implements prometheus.Collector
func (c *SamplerCollector) Collect(ch chan<- prometheus.Metric) {
	for name, sample := range c.sampler.latest() {
		ch <- prometheus.MustNewConstMetric(c.throughput, prometheus.GaugeValue,
			float64(sample.BitsPerSecond), name)
	}
	for name, samples := range c.sampler.Statistics("*") {
		ch <- prometheus.MustNewConstMetric(c.samples, prometheus.GaugeValue,
			float64(len(samples)), name)
	}
}

// ClientCollector exports the connection state of a client
type ClientCollector struct {
	client    *Client
	connected *prometheus.Desc
	pending   *prometheus.Desc
	updates   *prometheus.Desc
	monitors  *prometheus.Desc
}

// NewClientCollector creates a prometheus collector over a client
func NewClientCollector(client *Client) *ClientCollector {
	labels := []string{targetLabel}
	return &ClientCollector{
		client: client,
		connected: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "client", "connected"),
			"Whether the connection to the server is live.",
			labels, nil,
		),
		pending: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "client", "pending_calls"),
			"Number of calls awaiting a response.",
			labels, nil,
		),
		updates: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "client", "recorded_updates"),
			"Number of update notifications in the update log.",
			labels, nil,
		),
		monitors: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "client", "monitors"),
			"Number of active monitor subscriptions.",
			labels, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *ClientCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connected
	ch <- c.pending
	ch <- c.updates
	ch <- c.monitors
}

// Collect implements prometheus.Collector
func (c *ClientCollector) Collect(ch chan<- prometheus.Metric) {
	target := c.client.Target
	connected := 0.0
	if c.client.Connected() {
		connected = 1
	}
	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, connected, target)
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(c.client.Pending()), target)
	ch <- prometheus.MustNewConstMetric(c.updates, prometheus.GaugeValue, float64(len(c.client.Updates(-1))), target)
	ch <- prometheus.MustNewConstMetric(c.monitors, prometheus.GaugeValue, float64(len(c.client.Monitors())), target)
}
