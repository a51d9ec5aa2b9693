package finder

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/crescent/pkg/browser"
	"github.com/odvcencio/crescent/pkg/wait"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestMetrics_RecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	f, clk := newTestFinder(t, WithMetrics(m))

	_, err := f.FindSingle(context.Background(), &scriptedRoot{clock: clk, steps: []step{{err: browser.ErrStaleElement}, {count: 1}}}, rows, wait.New(time.Second))
	require.NoError(t, err)
	_, err = f.FindSingle(context.Background(), &scriptedRoot{clock: clk, steps: counts(0)}, rows, wait.New(time.Second))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.FindStableSet(context.Background(), &scriptedRoot{clock: clk, steps: []step{{err: browser.ErrSessionClosed}}}, rows, wait.New(time.Second))
	require.ErrorIs(t, err, ErrEvaluationFailed)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.Invocations)
	assert.Equal(t, int64(1), snap.Accepted)
	assert.Equal(t, int64(1), snap.TimedOut)
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(0), snap.Cancelled)
	assert.Equal(t, int64(2+5+1), snap.Polls)
	assert.Equal(t, int64(1+5), snap.Retries)
	assert.InDelta(t, 8.0/3.0, snap.AveragePolls, 0.001)

	families := gather(t, reg)
	inv := families["crescent_finder_invocations_total"]
	require.NotNil(t, inv)
	got := map[string]float64{}
	for _, metric := range inv.GetMetric() {
		got[labelValue(metric, "operation")+"/"+labelValue(metric, "outcome")] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{
		"find_single/accepted":   1,
		"find_single/timeout":    1,
		"find_stable_set/failed": 1,
	}, got)

	require.Contains(t, families, "crescent_finder_polls_per_invocation")
	require.Contains(t, families, "crescent_finder_wait_seconds")
	retries := families["crescent_finder_retryable_errors_total"]
	require.NotNil(t, retries)
	require.Len(t, retries.GetMetric(), 1)
	assert.Equal(t, 6.0, retries.GetMetric()[0].GetCounter().GetValue())
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.record(OpFindSingle, pollStats{outcome: outcomeAccepted, polls: 1})
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())

	local := NewMetrics(nil)
	local.record(OpAwait, pollStats{outcome: outcomeCancelled, polls: 2, elapsed: time.Second})
	snap := local.Snapshot()
	assert.Equal(t, int64(1), snap.Cancelled)
	assert.Equal(t, time.Second, snap.AverageWait)
	assert.Equal(t, time.Second, snap.TotalWait)
}
