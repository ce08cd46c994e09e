// Package engine wires the statistical modules into a service: it models
// fixtures, prices them against bookmaker lines, builds tickets and scans
// upcoming fixtures for alerts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Vodeneev/ticketedge/internal/pkg/access"
	"github.com/Vodeneev/ticketedge/internal/pkg/config"
	"github.com/Vodeneev/ticketedge/internal/pkg/edge"
	"github.com/Vodeneev/ticketedge/internal/pkg/models"
	"github.com/Vodeneev/ticketedge/internal/pkg/probability"
	"github.com/Vodeneev/ticketedge/internal/pkg/rules"
	"github.com/Vodeneev/ticketedge/internal/pkg/shrinkage"
	"github.com/Vodeneev/ticketedge/internal/pkg/source"
	"github.com/Vodeneev/ticketedge/internal/pkg/storage"
	"github.com/Vodeneev/ticketedge/internal/pkg/ticket"
	"github.com/Vodeneev/ticketedge/internal/pkg/workers"
)

// ErrNoSource is returned when data must be fetched but no provider is configured.
var ErrNoSource = errors.New("engine: data source is not configured")

// DataSource supplies fixtures, team statistics and odds. *source.Client implements it.
type DataSource interface {
	GetFixtures(ctx context.Context, from, to time.Time) ([]models.Fixture, error)
	GetFixture(ctx context.Context, fixtureID string) (models.Fixture, error)
	GetTeamStats(ctx context.Context, teamID string) (models.TeamStats, error)
	GetOdds(ctx context.Context, fixtureID string) (models.OddsPayload, error)
}

// Deps are the engine's optional collaborators. Nil fields disable the
// feature that needs them.
type Deps struct {
	Source       DataSource
	Cache        storage.Cache
	Store        storage.EdgeStore
	Notifier     Notifier
	Authorizer   access.Authorizer
	Entitlements access.Entitlements
	Metrics      *Metrics
	Now          func() time.Time
	// NewRand seeds the ticket selector. Defaults to math/rand.
	NewRand func(seed int64) ticket.Rand
}

type Engine struct {
	cfg       *config.Config
	rules     *rules.Registry
	estimator shrinkage.Estimator
	aliases   edge.Aliases

	source       DataSource
	cache        storage.Cache
	store        storage.EdgeStore
	notifier     Notifier
	authorizer   access.Authorizer
	entitlements access.Entitlements
	metrics      *Metrics
	now          func() time.Time
	newRand      func(seed int64) ticket.Rand

	asyncTicker  *time.Ticker
	asyncMu      sync.RWMutex
	asyncStopped bool
	asyncCtx     context.Context
	asyncCancel  context.CancelFunc

	reportMu   sync.RWMutex
	lastReport ScanReport
}

func New(cfg *config.Config, registry *rules.Registry, deps Deps) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine: config is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("engine: ruleset registry is required")
	}
	est, err := shrinkage.New(cfg.Engine.Tau, cfg.Engine.HomeAdvantage)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewRand == nil {
		deps.NewRand = func(seed int64) ticket.Rand {
			return rand.New(rand.NewSource(seed))
		}
	}

	return &Engine{
		cfg:          cfg,
		rules:        registry,
		estimator:    est,
		aliases:      edge.NewAliases(cfg.Engine.MarketAliases),
		source:       deps.Source,
		cache:        deps.Cache,
		store:        deps.Store,
		notifier:     deps.Notifier,
		authorizer:   deps.Authorizer,
		entitlements: deps.Entitlements,
		metrics:      deps.Metrics,
		now:          deps.Now,
		newRand:      deps.NewRand,
	}, nil
}

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Rules returns the ruleset registry.
func (e *Engine) Rules() *rules.Registry {
	return e.rules
}

// fixtureRun keeps the priced pairs next to the analysis so ticket building
// does not refetch odds.
type fixtureRun struct {
	analysis models.FixtureAnalysis
	pairs    []edge.LinePair
}

// AnalyzeFixture models one fixture under a ruleset. Missing statistics or
// odds are not errors: the analysis comes back partial with Skipped reasons.
// Only context cancellation is returned as an error.
func (e *Engine) AnalyzeFixture(ctx context.Context, f models.Fixture, rs *rules.Ruleset) (models.FixtureAnalysis, error) {
	run, err := e.analyze(ctx, f, rs)
	return run.analysis, err
}

// AnalyzeFixtures runs AnalyzeFixture on the worker pool. Results keep the
// input order.
func (e *Engine) AnalyzeFixtures(ctx context.Context, fixtures []models.Fixture, rs *rules.Ruleset) ([]models.FixtureAnalysis, error) {
	runs, err := e.analyzeAll(ctx, fixtures, rs)
	out := make([]models.FixtureAnalysis, len(runs))
	for i, r := range runs {
		out[i] = r.analysis
	}
	return out, err
}

func (e *Engine) analyzeAll(ctx context.Context, fixtures []models.Fixture, rs *rules.Ruleset) ([]fixtureRun, error) {
	runs := make([]fixtureRun, len(fixtures))
	for i, f := range fixtures {
		runs[i].analysis = models.FixtureAnalysis{Fixture: f, RulesetVersion: rs.Version, Skipped: []string{"not analyzed"}}
	}

	workers.Run(ctx, len(fixtures), func(ctx context.Context, i int) error {
		run, err := e.analyze(ctx, fixtures[i], rs)
		runs[i] = run
		return err
	}, workers.RunOptions{
		Workers: e.cfg.Engine.Workers,
		Name:    "analyze",
		OnError: func(i int, err error) {
			slog.Warn("engine: fixture analysis failed", "fixture", fixtures[i].ID, "error", err)
		},
	})
	return runs, ctx.Err()
}

func (e *Engine) analyze(ctx context.Context, f models.Fixture, rs *rules.Ruleset) (fixtureRun, error) {
	timer := prometheus.NewTimer(e.metrics.AnalysisDuration)
	defer timer.ObserveDuration()

	run := fixtureRun{analysis: models.FixtureAnalysis{
		Fixture:        f,
		RulesetVersion: rs.Version,
		CalculatedAt:   e.now(),
	}}
	a := &run.analysis

	home, err := e.teamStats(ctx, f.HomeTeamID)
	if err != nil {
		if ctx.Err() != nil {
			return run, ctx.Err()
		}
		a.Skipped = append(a.Skipped, skipReason("home stats", err))
	}
	away, awayErr := e.teamStats(ctx, f.AwayTeamID)
	if awayErr != nil {
		if ctx.Err() != nil {
			return run, ctx.Err()
		}
		a.Skipped = append(a.Skipped, skipReason("away stats", awayErr))
	}

	payload, oddsErr := e.odds(ctx, f.ID)
	if oddsErr != nil {
		if ctx.Err() != nil {
			return run, ctx.Err()
		}
		a.Skipped = append(a.Skipped, skipReason("odds", oddsErr))
	} else {
		var stats edge.ExtractStats
		run.pairs, stats = edge.ExtractPairs(payload, e.aliases)
		e.metrics.MalformedEntries.Add(float64(stats.Malformed))
		if stats.Malformed > 0 || stats.OneSided > 0 {
			slog.Debug("engine: odds entries dropped", "fixture", f.ID, "malformed", stats.Malformed, "one_sided", stats.OneSided)
		}
	}

	e.metrics.FixturesAnalyzed.Inc()
	if err != nil || awayErr != nil {
		return run, nil
	}

	picks, skipped := rulePicks(rs, f.ID, home, away)
	a.Picks = picks
	a.Skipped = append(a.Skipped, skipped...)

	a.Models, skipped = e.buildModels(home, away, picks, run.pairs)
	a.Skipped = append(a.Skipped, skipped...)

	if len(run.pairs) > 0 {
		a.Edges = edge.Calculate(run.pairs, a.Models, edge.Options{
			FixtureID:     f.ID,
			LineTolerance: e.cfg.Engine.LineTolerance,
			TopN:          e.cfg.Engine.TopN,
			Now:           a.CalculatedAt,
		})
		for _, r := range a.Edges {
			e.metrics.EdgesEmitted.WithLabelValues(string(r.Market)).Inc()
		}
	}

	e.persist(ctx, rs, *a)
	return run, nil
}

// rulePicks looks up the ruleset pick for every category the ruleset covers,
// from the teams' raw rolling means.
func rulePicks(rs *rules.Ruleset, fixtureID string, home, away models.TeamStats) ([]models.RulePick, []string) {
	if home.Samples() == 0 || away.Samples() == 0 {
		return nil, []string{"rule picks: no match history"}
	}

	var (
		picks   []models.RulePick
		skipped []string
	)
	for _, cat := range models.Categories {
		if _, ok := rs.Categories[cat]; !ok {
			continue
		}
		h, _ := home.Rate(cat)
		aw, _ := away.Rate(cat)
		p, combined, err := rules.PickFromCombined(rs, cat, h, aw)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s pick: %v", cat, err))
			continue
		}
		if p == nil {
			skipped = append(skipped, fmt.Sprintf("%s pick: combined %.2f not covered by ruleset %s", cat, combined, rs.Version))
			continue
		}
		picks = append(picks, models.RulePick{
			FixtureID:      fixtureID,
			Market:         cat,
			Combined:       combined,
			Side:           p.Side,
			Line:           p.Line,
			RulesetVersion: rs.Version,
		})
	}
	return picks, skipped
}

// buildModels produces over/under probabilities for every category over the
// configured lines, the lines the books quote and the lines the rules picked.
func (e *Engine) buildModels(home, away models.TeamStats, picks []models.RulePick, pairs []edge.LinePair) ([]models.ModelOutput, []string) {
	var (
		out     []models.ModelOutput
		skipped []string
	)
	confidence := models.ConfidenceFor(home.Samples(), away.Samples())

	for _, cat := range models.Categories {
		rates, err := e.estimator.TotalRate(home, away, cat, e.cfg.Engine.LeaguePriors[string(cat)])
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s model: %v", cat, err))
			continue
		}
		dist := probability.ForCategory(rates.Total, e.cfg.Engine.Dispersion[string(cat)])
		rationale := fmt.Sprintf("%s from home %.2f + away %.2f (n=%d/%d)",
			dist, rates.Home, rates.Away, home.Samples(), away.Samples())

		for _, line := range lineSet(cat, e.cfg.Engine.Lines[string(cat)], picks, pairs) {
			over, under := probability.OverUnder(dist, line)
			out = append(out, models.ModelOutput{
				Market:     cat,
				Line:       line,
				ProbOver:   over,
				ProbUnder:  under,
				Confidence: confidence,
				Rationale:  rationale,
			})
		}
	}
	return out, skipped
}

// lineSet merges line sources for a category, deduplicated on the line key
// and sorted ascending.
func lineSet(cat models.Category, configured []float64, picks []models.RulePick, pairs []edge.LinePair) []float64 {
	seen := make(map[string]bool)
	var lines []float64
	add := func(l float64) {
		k := models.LineKey(l)
		if !seen[k] {
			seen[k] = true
			lines = append(lines, l)
		}
	}
	for _, l := range configured {
		add(l)
	}
	for _, p := range picks {
		if p.Market == cat {
			add(p.Line)
		}
	}
	for _, p := range pairs {
		if p.Market == cat {
			add(p.Line)
		}
	}
	sort.Float64s(lines)
	return lines
}

func skipReason(what string, err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, source.ErrNotFound):
		return what + ": unavailable"
	default:
		return fmt.Sprintf("%s: %v", what, err)
	}
}

func (e *Engine) teamStats(ctx context.Context, teamID string) (models.TeamStats, error) {
	if e.cache != nil {
		s, err := e.cache.GetTeamStats(ctx, teamID)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("engine: stats cache read failed", "team", teamID, "error", err)
		}
	}
	if e.source == nil {
		return models.TeamStats{}, ErrNoSource
	}

	s, err := e.source.GetTeamStats(ctx, teamID)
	if err != nil {
		return models.TeamStats{}, err
	}
	if e.cache != nil {
		if err := e.cache.SetTeamStats(ctx, s); err != nil {
			slog.Warn("engine: stats cache write failed", "team", teamID, "error", err)
		}
	}
	return s, nil
}

func (e *Engine) odds(ctx context.Context, fixtureID string) (models.OddsPayload, error) {
	if e.cache != nil {
		p, err := e.cache.GetOdds(ctx, fixtureID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("engine: odds cache read failed", "fixture", fixtureID, "error", err)
		}
	}
	if e.source == nil {
		return models.OddsPayload{}, ErrNoSource
	}

	p, err := e.source.GetOdds(ctx, fixtureID)
	if err != nil {
		return models.OddsPayload{}, err
	}
	if e.cache != nil {
		if err := e.cache.SetOdds(ctx, p); err != nil {
			slog.Warn("engine: odds cache write failed", "fixture", fixtureID, "error", err)
		}
	}
	return p, nil
}

// persist writes edges, picks and the cached analysis. Failures are logged;
// an analysis is still returned to the caller.
func (e *Engine) persist(ctx context.Context, rs *rules.Ruleset, a models.FixtureAnalysis) {
	if e.store != nil {
		if len(a.Edges) > 0 {
			if err := e.store.SaveEdges(ctx, rs.Version, a.Edges); err != nil {
				slog.Error("engine: failed to save edges", "fixture", a.Fixture.ID, "error", err)
			}
		}
		// An empty pick list still replaces what was stored for the fixture.
		if err := e.store.SavePicks(ctx, a.Fixture.ID, rs.Version, rs.Fingerprint(), a.Picks, a.CalculatedAt); err != nil {
			slog.Error("engine: failed to save picks", "fixture", a.Fixture.ID, "error", err)
		}
	}
	if e.cache != nil {
		if err := e.cache.SetAnalysis(ctx, rs.Fingerprint(), a); err != nil {
			slog.Warn("engine: analysis cache write failed", "fixture", a.Fixture.ID, "error", err)
		}
	}
}

// FixtureAnalysis returns the analysis of one fixture by id. With useCache
// a cached analysis for the same ruleset version and fingerprint is served
// when present.
func (e *Engine) FixtureAnalysis(ctx context.Context, fixtureID string, rs *rules.Ruleset, useCache bool) (models.FixtureAnalysis, error) {
	if useCache && e.cache != nil {
		a, err := e.cache.GetAnalysis(ctx, rs.Version, rs.Fingerprint(), fixtureID)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("engine: analysis cache read failed", "fixture", fixtureID, "error", err)
		}
	}
	if e.source == nil {
		return models.FixtureAnalysis{}, ErrNoSource
	}
	f, err := e.source.GetFixture(ctx, fixtureID)
	if err != nil {
		return models.FixtureAnalysis{}, fmt.Errorf("failed to get fixture %s: %w", fixtureID, err)
	}
	return e.AnalyzeFixture(ctx, f, rs)
}

// Picks returns the rule picks for a fixture. Picks stored under the same
// version and fingerprint within engine.picks_max_age are served as is;
// anything else is recomputed, so a ruleset edited without a version bump
// never reuses older picks.
func (e *Engine) Picks(ctx context.Context, fixtureID string, rs *rules.Ruleset) ([]models.RulePick, error) {
	if e.store != nil {
		since := e.now().Add(-e.cfg.Engine.PicksMaxAge)
		picks, err := e.store.GetPicks(ctx, fixtureID, rs.Version, rs.Fingerprint(), since)
		if err == nil {
			return picks, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("engine: stored picks read failed", "fixture", fixtureID, "error", err)
		}
	}
	a, err := e.FixtureAnalysis(ctx, fixtureID, rs, false)
	if err != nil {
		return nil, err
	}
	return a.Picks, nil
}

// upcoming lists fixtures kicking off within the alert lookahead window.
func (e *Engine) upcoming(ctx context.Context) ([]models.Fixture, error) {
	if e.source == nil {
		return nil, ErrNoSource
	}
	now := e.now()
	return e.source.GetFixtures(ctx, now, now.Add(e.cfg.Alerts.Lookahead))
}
