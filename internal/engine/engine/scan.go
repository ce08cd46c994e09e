package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Vodeneev/ticketedge/internal/pkg/models"
	"github.com/Vodeneev/ticketedge/internal/pkg/storage"
)

const scanTimeout = 2 * time.Minute

// ScanReport summarizes the last completed scan.
type ScanReport struct {
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration"`
	Ruleset    string    `json:"ruleset"`
	Fixtures   int       `json:"fixtures"`
	Edges      int       `json:"edges"`
	AlertsSent int       `json:"alerts_sent"`
	Error      string    `json:"error,omitempty"`
}

// Start runs the periodic scan when alerts are enabled and blocks until ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	if e.cfg.Alerts.Enabled {
		if err := e.StartAsync(); err != nil {
			return err
		}
	} else {
		slog.Info("engine: async scan disabled, running in on-demand mode")
	}

	<-ctx.Done()

	e.StopAsync()
	return nil
}

// StartAsync starts or restarts the periodic scan.
func (e *Engine) StartAsync() error {
	e.asyncMu.Lock()
	defer e.asyncMu.Unlock()

	if !e.cfg.Alerts.Enabled {
		return fmt.Errorf("async scan is not enabled in config")
	}

	if e.asyncTicker != nil && !e.asyncStopped {
		slog.Info("engine: async scan is already running")
		return nil
	}

	if e.asyncCancel != nil {
		e.asyncCancel()
	}
	e.asyncCtx, e.asyncCancel = context.WithCancel(context.Background())

	e.asyncStopped = false
	if e.asyncTicker != nil {
		e.asyncTicker.Stop()
	}
	e.asyncTicker = time.NewTicker(e.cfg.Alerts.Interval)

	slog.Info("engine: starting async scan", "interval", e.cfg.Alerts.Interval)
	go e.runAsyncScan(e.asyncCtx, e.asyncTicker)

	return nil
}

// StopAsync stops the periodic scan.
func (e *Engine) StopAsync() {
	e.asyncMu.Lock()
	defer e.asyncMu.Unlock()

	if !e.asyncStopped && e.asyncTicker != nil {
		e.asyncStopped = true
		e.asyncTicker.Stop()
		if e.asyncCancel != nil {
			e.asyncCancel()
		}
		slog.Info("engine: async scan stopped")
	}
}

// IsAsyncRunning reports whether the periodic scan is active.
func (e *Engine) IsAsyncRunning() bool {
	e.asyncMu.RLock()
	defer e.asyncMu.RUnlock()
	return e.asyncTicker != nil && !e.asyncStopped
}

// LastScan returns the report of the most recent scan.
func (e *Engine) LastScan() ScanReport {
	e.reportMu.RLock()
	defer e.reportMu.RUnlock()
	return e.lastReport
}

func (e *Engine) runAsyncScan(ctx context.Context, ticker *time.Ticker) {
	// Run immediately on start
	e.ScanOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine: stopping async scan")
			return
		case <-ticker.C:
			e.ScanOnce(ctx)
		}
	}
}

// ScanOnce analyzes upcoming fixtures under the default ruleset and alerts on
// edges above the threshold.
func (e *Engine) ScanOnce(ctx context.Context) (report ScanReport) {
	rs := e.rules.Default()
	report = ScanReport{StartedAt: e.now(), Ruleset: rs.Version}
	defer func() {
		report.Duration = e.now().Sub(report.StartedAt).String()
		e.reportMu.Lock()
		e.lastReport = report
		e.reportMu.Unlock()
	}()

	scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	fixtures, err := e.upcoming(scanCtx)
	if err != nil {
		slog.Error("engine: scan: failed to list fixtures", "error", err)
		report.Error = err.Error()
		return report
	}
	report.Fixtures = len(fixtures)
	slog.Info("engine: scan: analyzing fixtures", "fixtures", len(fixtures), "ruleset", rs.Version)

	analyses, err := e.AnalyzeFixtures(scanCtx, fixtures, rs)
	if err != nil {
		report.Error = err.Error()
	}

	threshold := e.cfg.Alerts.EdgeThreshold
	for _, a := range analyses {
		report.Edges += len(a.Edges)
		for _, r := range a.Edges {
			if r.Edge < threshold || e.notifier == nil {
				continue
			}
			if !e.shouldAlert(scanCtx, a.Fixture, r) {
				continue
			}
			if err := e.notifier.SendEdgeAlert(scanCtx, a.Fixture, r, threshold); err != nil {
				slog.Warn("engine: scan: failed to queue alert", "fixture", a.Fixture.ID, "error", err)
				continue
			}
			report.AlertsSent++
			e.metrics.AlertsSent.Inc()
			if e.store != nil {
				if err := e.store.RecordAlert(scanCtx, r.Key(), r.Edge, e.now()); err != nil {
					slog.Warn("engine: scan: failed to record alert", "key", r.Key(), "error", err)
				}
			}
		}
	}

	slog.Info("engine: scan: complete",
		"fixtures", report.Fixtures,
		"edges", report.Edges,
		"alerts_sent", report.AlertsSent,
		"threshold", threshold)
	return report
}

// shouldAlert applies the cooldown against the last alert sent for the same edge key.
func (e *Engine) shouldAlert(ctx context.Context, f models.Fixture, r models.EdgeResult) bool {
	if e.store == nil {
		return true
	}
	lastEdge, lastAt, err := e.store.LastAlert(ctx, r.Key())
	if errors.Is(err, storage.ErrNotFound) {
		return true
	}
	if err != nil {
		// Better to send a duplicate than miss an alert
		slog.Warn("engine: scan: failed to get last alert", "key", r.Key(), "error", err)
		return true
	}

	send, reason := alertDecision(r.Edge, lastEdge, lastAt, e.now(), e.cfg.Alerts.EdgeThreshold, e.cfg.Alerts.Cooldown, e.cfg.Alerts.MinIncrease)
	slog.Debug("engine: scan: alert decision", "fixture", f.Name(), "key", r.Key(), "send", send, "reason", reason,
		"last_edge", lastEdge, "edge", r.Edge)
	return send
}

// alertDecision decides whether an edge that was alerted before is alerted again.
func alertDecision(edge, lastEdge float64, lastAt, now time.Time, threshold float64, cooldown time.Duration, minIncrease float64) (bool, string) {
	switch {
	case lastAt.IsZero():
		return true, "new"
	case lastEdge < threshold:
		return true, "crossed threshold"
	case now.Sub(lastAt) > cooldown:
		return true, "cooldown expired"
	case edge-lastEdge >= minIncrease:
		return true, "edge increased"
	default:
		return false, "duplicate within cooldown"
	}
}
