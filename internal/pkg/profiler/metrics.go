//
// Copyright (c) 2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package profiler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "collective_profiler"

	callProfiled = "profiled"
	callSkipped  = "skipped"

	registryCounts = "counts"
	registryDispls = "displs"
)

type metrics struct {
	calls    *prometheus.CounterVec
	series   *prometheus.GaugeVec
	clusters *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	m := new(metrics)
	m.calls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "calls_total",
			Help:      "Number of collective calls handled, profiled or skipped",
		},
		[]string{"collective", "state"},
	)
	m.series = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "series",
			Help:      "Number of unique call series",
		},
		[]string{"collective", "registry"},
	)
	m.clusters = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rank_groups_total",
			Help:      "Number of groups of ranks created while clustering new series",
		},
		[]string{"collective", "direction"},
	)
	return m
}

func (m *metrics) reset() {
	m.calls.Reset()
	m.series.Reset()
	m.clusters.Reset()
}

// The methods below are no-ops for profilers that are not part of a Set.

func (m *metrics) callHandled(c Collective, profiled bool) {
	if m == nil {
		return
	}
	state := callSkipped
	if profiled {
		state = callProfiled
	}
	m.calls.WithLabelValues(c.String(), state).Inc()
}

func (m *metrics) setSeries(c Collective, registry string, n int) {
	if m == nil {
		return
	}
	m.series.WithLabelValues(c.String(), registry).Set(float64(n))
}

func (m *metrics) groupsCreated(c Collective, clusters *Clusters) {
	if m == nil {
		return
	}
	m.clusters.WithLabelValues(c.String(), "send").Add(float64(len(clusters.Send)))
	m.clusters.WithLabelValues(c.String(), "recv").Add(float64(len(clusters.Recv)))
}
