/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package negotiation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

// DefaultStatsInterval is the poll interval used when none is set.
const DefaultStatsInterval = time.Second

// StatsSource provides stats reports, *webrtc.PeerConnection implements it.
type StatsSource interface {
	GetStats() webrtc.StatsReport
}

// Counters are the cumulative outbound counters of a stats report.
type Counters struct {
	Timestamp time.Time

	BytesSent       uint64
	HeaderBytesSent uint64
	PacketsSent     uint64
}

// Stats are the outbound rates computed from two Counters.
type Stats struct {
	Timestamp time.Time

	BitrateKbps       float64
	HeaderBitrateKbps float64
	PacketsPerSecond  float64
}

// CountersFromReport sums the outbound RTP stream stats of report. When the
// report has no outbound RTP streams, the transport counters are used.
func CountersFromReport(report webrtc.StatsReport) (*Counters, bool) {
	var outbound, transport *Counters
	add := func(c **Counters, ts webrtc.StatsTimestamp, bytes, headerBytes, packets uint64) {
		if *c == nil {
			*c = &Counters{}
		}
		if t := ts.Time(); t.After((*c).Timestamp) {
			(*c).Timestamp = t
		}
		(*c).BytesSent += bytes
		(*c).HeaderBytesSent += headerBytes
		(*c).PacketsSent += packets
	}

	for _, s := range report {
		switch stats := s.(type) {
		case webrtc.OutboundRTPStreamStats:
			add(&outbound, stats.Timestamp, stats.BytesSent, stats.HeaderBytesSent, uint64(stats.PacketsSent))
		case webrtc.TransportStats:
			add(&transport, stats.Timestamp, stats.BytesSent, 0, uint64(stats.PacketsSent))
		}
	}

	if outbound != nil {
		return outbound, true
	}
	if transport != nil {
		return transport, true
	}
	return nil, false
}

// ComputeStats returns the rates between prev and cur. It returns false
// when no time has passed or the counters went backwards.
func ComputeStats(prev, cur *Counters) (*Stats, bool) {
	if prev == nil || cur == nil {
		return nil, false
	}
	elapsed := cur.Timestamp.Sub(prev.Timestamp)
	if elapsed <= 0 {
		return nil, false
	}
	if cur.BytesSent < prev.BytesSent || cur.HeaderBytesSent < prev.HeaderBytesSent || cur.PacketsSent < prev.PacketsSent {
		return nil, false
	}

	ms := float64(elapsed) / float64(time.Millisecond)
	return &Stats{
		Timestamp: cur.Timestamp,

		// Bits per millisecond equals kilobits per second.
		BitrateKbps:       8 * float64(cur.BytesSent-prev.BytesSent) / ms,
		HeaderBitrateKbps: 8 * float64(cur.HeaderBytesSent-prev.HeaderBytesSent) / ms,
		PacketsPerSecond:  float64(cur.PacketsSent-prev.PacketsSent) / elapsed.Seconds(),
	}, true
}

// StatsPollerOptions define the settings of a StatsPoller.
type StatsPollerOptions struct {
	Logger  logrus.FieldLogger
	Metrics prometheus.Registerer

	Interval time.Duration
	OnStats  func(*Stats)
}

// StatsPoller polls a StatsSource and computes outbound rates.
type StatsPoller struct {
	mutex deadlock.RWMutex

	source   StatsSource
	logger   logrus.FieldLogger
	interval time.Duration
	onStats  func(*Stats)

	prev *Counters
	last *Stats

	bitrateGauge prometheus.Gauge
}

// NewStatsPoller creates a StatsPoller for source.
func NewStatsPoller(source StatsSource, options *StatsPollerOptions) (*StatsPoller, error) {
	if source == nil {
		return nil, errors.New("stats source cannot be nil")
	}
	if options == nil || options.Logger == nil {
		return nil, errors.New("stats poller requires options with logger")
	}

	p := &StatsPoller{
		source:   source,
		logger:   options.Logger,
		interval: options.Interval,
		onStats:  options.OnStats,

		bitrateGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "negotiation_outbound_bitrate_kbps",
			Help: "Outbound bitrate of the last polled peer connection",
		}),
	}
	if p.interval <= 0 {
		p.interval = DefaultStatsInterval
	}

	if options.Metrics != nil {
		if err := options.Metrics.Register(p.bitrateGauge); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, fmt.Errorf("failed to register stats metrics: %w", err)
			}
			gauge, ok := are.ExistingCollector.(prometheus.Gauge)
			if !ok {
				return nil, fmt.Errorf("failed to register stats metrics: %w", err)
			}
			p.bitrateGauge = gauge
		}
	}

	return p, nil
}

// Run polls until ctx is done.
func (p *StatsPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Poll fetches one report. It returns the computed stats, or nil when no
// previous report was available.
func (p *StatsPoller) Poll() *Stats {
	cur, ok := CountersFromReport(p.source.GetStats())
	if !ok {
		p.logger.Debugln("stats report without outbound counters")
		return nil
	}

	p.mutex.Lock()
	prev := p.prev
	p.prev = cur
	stats, ok := ComputeStats(prev, cur)
	if ok {
		p.last = stats
	}
	p.mutex.Unlock()

	if !ok {
		return nil
	}

	p.bitrateGauge.Set(stats.BitrateKbps)
	if p.onStats != nil {
		p.onStats(stats)
	}
	return stats
}

// Last returns the most recently computed stats.
func (p *StatsPoller) Last() (*Stats, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.last, p.last != nil
}
