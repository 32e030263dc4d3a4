package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sosinternet/internal/models"
)

func TestCollectorCountsWatchdogEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	latency := 20 * time.Millisecond
	up := &models.ConnectionStatus{Connected: true, Latency: &latency}
	down := &models.ConnectionStatus{Connected: false}

	for _, ev := range []models.Event{
		{Kind: models.EventMonitoringStarted},
		{Kind: models.EventCheckSucceeded, Status: up},
		{Kind: models.EventCheckFailed, Status: down},
		{Kind: models.EventEscalationStarted},
		{Kind: models.EventRecheckFailed, Status: down},
		{Kind: models.EventRebootAttempted},
		{Kind: models.EventRebootFailed, Error: "boom"},
		{Kind: models.EventNotRestored, Status: down},
		{Kind: models.EventLoopError},
	} {
		c.Emit(ev)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Checks.WithLabelValues("check", "up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Checks.WithLabelValues("check", "down")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Checks.WithLabelValues("recheck", "down")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Checks.WithLabelValues("verify", "down")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Reboots.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Escalations.WithLabelValues("not_restored_after_reboot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LoopErrors))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Connected))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Monitoring))

	c.Emit(models.Event{Kind: models.EventMonitoringStopped})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Monitoring))

	count, err := testutil.GatherAndCount(reg, "sosinternet_probe_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewCollectorRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}

func TestComputeUptime(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	ms := func(v int) *time.Duration {
		d := time.Duration(v) * time.Millisecond
		return &d
	}
	entries := []models.ConnectionStatus{
		{Connected: true, Timestamp: base, Latency: ms(10)},
		{Connected: false, Timestamp: base.Add(time.Minute)},
		{Connected: false, Timestamp: base.Add(2 * time.Minute)},
		{Connected: true, Timestamp: base.Add(3 * time.Minute), Latency: ms(30)},
		{Connected: false, Timestamp: base.Add(4 * time.Minute)},
		{Connected: true, Timestamp: base.Add(5 * time.Minute)},
	}

	got := ComputeUptime(entries)
	assert.Equal(t, 6, got.TotalChecks)
	assert.Equal(t, 3, got.Passing)
	assert.Equal(t, 3, got.Failing)
	assert.Equal(t, 50.0, got.UptimePercent)
	assert.Equal(t, 20.0, got.AvgLatencyMs)
	assert.Equal(t, 2, got.Outages)
	assert.Equal(t, "online", got.LastState)
	assert.Equal(t, "2024-05-01T00:05:00Z", got.LastUpdated)
}

func TestComputeUptimeEmpty(t *testing.T) {
	got := ComputeUptime(nil)
	assert.Zero(t, got.TotalChecks)
	assert.Zero(t, got.UptimePercent)
	assert.Empty(t, got.LastUpdated)
}
