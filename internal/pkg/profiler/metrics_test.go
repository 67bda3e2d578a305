//
// Copyright (c) 2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package profiler

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetMetrics(t *testing.T) {
	cfg := fullConfig()
	cfg.StartCall = 1
	s, err := NewSet(cfg)
	require.NoError(t, err)

	for id := 0; id < 3; id++ {
		require.NoError(t, s.HandleCall(Alltoallv, blockCall(id)))
	}
	for id := 0; id < 2; id++ {
		require.NoError(t, s.HandleCall(Allgatherv, skewedCall(id)))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.calls.WithLabelValues("alltoallv", callSkipped)))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.calls.WithLabelValues("alltoallv", callProfiled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.calls.WithLabelValues("allgatherv", callProfiled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.series.WithLabelValues("alltoallv", registryCounts)))

	// All the ranks of the block calls send the same amount of data
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.clusters.WithLabelValues("alltoallv", "send")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.clusters.WithLabelValues("allgatherv", "send")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.clusters.WithLabelValues("allgatherv", "recv")))

	families, err := s.Gatherer().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"collective_profiler_calls_total",
		"collective_profiler_series",
		"collective_profiler_rank_groups_total",
	}, names)

	s.Release()
	assert.Equal(t, 0, testutil.CollectAndCount(s.metrics.calls))
	assert.Equal(t, 0, testutil.CollectAndCount(s.metrics.series))
}

func TestProfilerWithoutSet(t *testing.T) {
	p, err := New(Alltoallv, fullConfig())
	require.NoError(t, err)
	assert.Nil(t, p.metrics)
	require.NoError(t, p.HandleCall(blockCall(0)))
	assert.Equal(t, 1, p.ProfiledCalls())
}
