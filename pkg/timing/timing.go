// Package timing provides performance measurement utilities for ICAP scans.
package timing

import (
	"fmt"
	"time"
)

// Metrics captures detailed timing information for a scan.
type Metrics struct {
	// DNSLookup is the time spent performing DNS resolution
	DNSLookup time.Duration `json:"dns_lookup"`

	// TCPConnect is the time spent establishing the TCP connection (handshake)
	TCPConnect time.Duration `json:"tcp_connect"`

	// FirstStatusByte is the time spent waiting for the first byte of the
	// final ICAP status line, representing server processing time
	FirstStatusByte time.Duration `json:"first_status_byte"`

	// TotalTime is the total end-to-end scan time
	TotalTime time.Duration `json:"total_time"`
}

// Timer helps measure scan timings.
type Timer struct {
	start       time.Time
	dnsStart    time.Time
	dnsEnd      time.Time
	tcpStart    time.Time
	tcpEnd      time.Time
	statusStart time.Time
	statusEnd   time.Time
}

// NewTimer creates a new timing measurement session.
func NewTimer() *Timer {
	return &Timer{
		start: time.Now(),
	}
}

// Restart resets the total-time origin, for reusing a timer across scans on
// one connection.
func (t *Timer) Restart() {
	t.start = time.Now()
	t.statusStart = time.Time{}
	t.statusEnd = time.Time{}
}

// StartDNS marks the beginning of DNS resolution.
func (t *Timer) StartDNS() {
	t.dnsStart = time.Now()
}

// EndDNS marks the end of DNS resolution.
func (t *Timer) EndDNS() {
	t.dnsEnd = time.Now()
}

// StartTCP marks the beginning of TCP connection.
func (t *Timer) StartTCP() {
	t.tcpStart = time.Now()
}

// EndTCP marks the end of TCP connection.
func (t *Timer) EndTCP() {
	t.tcpEnd = time.Now()
}

// StartStatusWait marks when we start waiting for the ICAP status line.
func (t *Timer) StartStatusWait() {
	if t.statusStart.IsZero() {
		t.statusStart = time.Now()
	}
}

// EndStatusWait marks when the ICAP status line arrived.
func (t *Timer) EndStatusWait() {
	t.statusEnd = time.Now()
}

// GetMetrics returns the calculated timing metrics.
func (t *Timer) GetMetrics() Metrics {
	metrics := Metrics{
		TotalTime: time.Since(t.start),
	}

	if !t.dnsStart.IsZero() && !t.dnsEnd.IsZero() {
		metrics.DNSLookup = t.dnsEnd.Sub(t.dnsStart)
	}

	if !t.tcpStart.IsZero() && !t.tcpEnd.IsZero() {
		metrics.TCPConnect = t.tcpEnd.Sub(t.tcpStart)
	}

	if !t.statusStart.IsZero() && !t.statusEnd.IsZero() {
		metrics.FirstStatusByte = t.statusEnd.Sub(t.statusStart)
	}

	return metrics
}

// GetConnectionTime returns the total connection establishment time (DNS + TCP).
func (m Metrics) GetConnectionTime() time.Duration {
	return m.DNSLookup + m.TCPConnect
}

// GetServerTime returns the server processing time.
func (m Metrics) GetServerTime() time.Duration {
	return m.FirstStatusByte
}

// String provides a human-readable representation of the metrics.
func (m Metrics) String() string {
	return fmt.Sprintf("DNSLookup: %v, TCPConnect: %v, FirstStatusByte: %v, TotalTime: %v",
		m.DNSLookup, m.TCPConnect, m.FirstStatusByte, m.TotalTime)
}
