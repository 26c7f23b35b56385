// Copyright 2025 The R1FS Agent Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every agent metric and is served on /metrics.
var Registry = prometheus.NewRegistry()

// Cycle results.
const (
	ResultPublished   = "published"
	ResultSkipped     = "skipped"
	ResultFailed      = "failed"
	ResultInterrupted = "interrupted"
	ResultPanicked    = "panicked"
)

var (
	// GateReady is 1 once the storage daemon has been bootstrapped.
	GateReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "r1fs_bootstrap_gate_ready",
			Help: "Whether the bootstrap gate has opened (1=ready, 0=waiting).",
		},
	)

	// DaemonLaunches counts launch attempts by outcome.
	DaemonLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "r1fs_daemon_launch_total",
			Help: "Storage daemon launch attempts.",
		},
		[]string{"status"}, // success/failed
	)

	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "r1fs_cycles_total",
			Help: "Exchange cycles by result.",
		},
		[]string{"result"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "r1fs_cycle_duration_seconds",
			Help:    "Wall time of one exchange cycle.",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommandsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "r1fs_commands_resolved_total",
			Help: "Commands resolved from the command file, by class.",
		},
		[]string{"class"}, // text/binary/error
	)

	// LastPublished is the unix time of the last published status.
	LastPublished = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "r1fs_status_last_published_timestamp_seconds",
			Help: "Unix time of the last successfully published status.",
		},
	)

	// SwarmPeers is the peer count the storage daemon reported last cycle.
	SwarmPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "r1fs_swarm_peers",
			Help: "Peers the storage daemon is connected to.",
		},
	)

	SinkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "r1fs_status_sink_failures_total",
			Help: "Status sinks that failed to record a publication.",
		},
		[]string{"sink"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		GateReady,
		DaemonLaunches,
		CyclesTotal,
		CycleDuration,
		CommandsResolved,
		LastPublished,
		SwarmPeers,
		SinkFailures,
	)
}
