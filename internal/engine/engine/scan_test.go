package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertDecision(t *testing.T) {
	now := testNow
	tests := []struct {
		name     string
		edge     float64
		lastEdge float64
		lastAt   time.Time
		want     bool
		reason   string
	}{
		{"never alerted", 0.08, 0, time.Time{}, true, "new"},
		{"last below threshold", 0.08, 0.03, now.Add(-time.Minute), true, "crossed threshold"},
		{"cooldown expired", 0.08, 0.08, now.Add(-2 * time.Hour), true, "cooldown expired"},
		{"grew inside cooldown", 0.10, 0.06, now.Add(-10 * time.Minute), true, "edge increased"},
		{"small growth inside cooldown", 0.07, 0.06, now.Add(-10 * time.Minute), false, "duplicate within cooldown"},
		{"shrank inside cooldown", 0.06, 0.09, now.Add(-10 * time.Minute), false, "duplicate within cooldown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := alertDecision(tt.edge, tt.lastEdge, tt.lastAt, now, 0.05, time.Hour, 0.02)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestScanOnce_AlertsOncePerCooldown(t *testing.T) {
	src := newFakeSource(fixture("1"), fixture("2"))
	store := newFakeStore()
	notifier := &fakeNotifier{}
	clock := testNow
	e := newTestEngine(t, Deps{Source: src, Store: store, Notifier: notifier, Now: func() time.Time { return clock }})

	report := e.ScanOnce(context.Background())
	assert.Equal(t, 2, report.Fixtures)
	assert.Equal(t, 2, report.Edges)
	assert.Equal(t, 2, report.AlertsSent)
	assert.Equal(t, "2025.09-r2", report.Ruleset)
	assert.Empty(t, report.Error)
	require.Len(t, notifier.sent(), 2)
	assert.Len(t, store.alerts, 2)

	clock = testNow.Add(10 * time.Minute)
	report = e.ScanOnce(context.Background())
	assert.Equal(t, 0, report.AlertsSent)
	assert.Len(t, notifier.sent(), 2)

	clock = testNow.Add(2 * time.Hour)
	report = e.ScanOnce(context.Background())
	assert.Equal(t, 2, report.AlertsSent)
	assert.Len(t, notifier.sent(), 4)
	assert.Equal(t, report, e.LastScan())
}

func TestScanOnce_BelowThreshold(t *testing.T) {
	src := newFakeSource(fixture("1"))
	// a 0.01 edge on the 2.5 line, below the 0.05 alert threshold
	src.odds["1"] = goalsPayload("1", "Bet365", quote{"2.5", "1.75", "2.05"})
	notifier := &fakeNotifier{}
	e := newTestEngine(t, Deps{Source: src, Notifier: notifier})

	report := e.ScanOnce(context.Background())
	assert.Equal(t, 1, report.Edges)
	assert.Equal(t, 0, report.AlertsSent)
	assert.Empty(t, notifier.sent())
}

func TestScanOnce_NoSource(t *testing.T) {
	e := newTestEngine(t, Deps{})

	report := e.ScanOnce(context.Background())
	assert.Contains(t, report.Error, "not configured")
	assert.Equal(t, report, e.LastScan())
}

func TestScanOnce_NotifierFailureIsNotRecorded(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(t, Deps{Source: newFakeSource(fixture("1")), Store: store, Notifier: &fakeNotifier{fail: true}})

	report := e.ScanOnce(context.Background())
	assert.Equal(t, 0, report.AlertsSent)
	assert.Empty(t, store.alerts)
}

func TestStartStopAsync(t *testing.T) {
	e := newTestEngine(t, Deps{Source: newFakeSource()})

	require.NoError(t, e.StartAsync())
	assert.True(t, e.IsAsyncRunning())
	require.NoError(t, e.StartAsync(), "second start is a no-op")

	e.StopAsync()
	assert.False(t, e.IsAsyncRunning())
	e.StopAsync()

	require.NoError(t, e.StartAsync(), "restart after stop")
	assert.True(t, e.IsAsyncRunning())
	e.StopAsync()
}

func TestStartAsync_Disabled(t *testing.T) {
	e := newTestEngine(t, Deps{})
	e.cfg.Alerts.Enabled = false

	assert.Error(t, e.StartAsync())
	assert.False(t, e.IsAsyncRunning())
}

func TestStart_BlocksUntilCancelled(t *testing.T) {
	e := newTestEngine(t, Deps{Source: newFakeSource()})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Start(ctx) }()

	require.Eventually(t, e.IsAsyncRunning, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	assert.False(t, e.IsAsyncRunning())
}
