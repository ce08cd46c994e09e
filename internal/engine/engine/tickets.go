package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Vodeneev/ticketedge/internal/pkg/calibration"
	"github.com/Vodeneev/ticketedge/internal/pkg/edge"
	"github.com/Vodeneev/ticketedge/internal/pkg/models"
	"github.com/Vodeneev/ticketedge/internal/pkg/rules"
	"github.com/Vodeneev/ticketedge/internal/pkg/ticket"
)

// ErrInvalidRequest wraps every caller mistake in a ticket request.
var ErrInvalidRequest = errors.New("invalid ticket request")

// Candidate sources for a ticket.
const (
	ModeEdge = "edge" // positive edges, scored by edge
	ModeLine = "line" // rule picks at the best book price, scored by weight x model probability
)

const defaultRiskProfile = "balanced"

// TicketRequest is the caller-facing ticket search.
type TicketRequest struct {
	FixtureIDs     []string `json:"fixture_ids,omitempty"` // empty means every fixture in the lookahead window
	RulesetVersion string   `json:"ruleset_version,omitempty"`
	Mode           string   `json:"mode,omitempty"`
	TargetMin      float64  `json:"target_min"`
	TargetMax      float64  `json:"target_max"`
	MinLegs        int      `json:"min_legs"`
	MaxLegs        int      `json:"max_legs"`
	RiskProfile    string   `json:"risk_profile,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
}

// BuildTicket analyzes the requested fixtures and searches for a ticket.
// A search that finds nothing is a Result status, not an error.
func (e *Engine) BuildTicket(ctx context.Context, req TicketRequest) (ticket.Result, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModeEdge
	}
	if mode != ModeEdge && mode != ModeLine {
		return ticket.Result{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}

	profileName := req.RiskProfile
	if profileName == "" {
		profileName = defaultRiskProfile
	}
	profile, ok := e.cfg.Ticket.RiskProfiles[profileName]
	if !ok {
		return ticket.Result{}, fmt.Errorf("%w: unknown risk profile %q", ErrInvalidRequest, profileName)
	}

	treq := ticket.Request{
		TargetMin: req.TargetMin,
		TargetMax: req.TargetMax,
		MinLegs:   req.MinLegs,
		MaxLegs:   req.MaxLegs,
		Profile: ticket.Profile{
			MinLegOdds:    profile.MinLegOdds,
			MaxLegOdds:    profile.MaxLegOdds,
			PreferredOdds: profile.PreferredOdds,
		},
	}
	if err := treq.Validate(); err != nil {
		return ticket.Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	rs, err := e.rules.Resolve(req.RulesetVersion)
	if err != nil {
		return ticket.Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	fixtures, err := e.fixtures(ctx, req.FixtureIDs)
	if err != nil {
		return ticket.Result{}, err
	}
	runs, err := e.analyzeAll(ctx, fixtures, rs)
	if err != nil {
		return ticket.Result{}, err
	}

	var candidates []models.Candidate
	if mode == ModeLine {
		candidates = lineCandidates(runs, e.weights(ctx, rs))
	} else {
		candidates = edgeCandidates(runs)
	}

	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}
	sel := ticket.New(e.newRand(seed), e.cfg.Ticket.MaxAttempts, e.cfg.Ticket.OvershootTolerance)
	sel.Now = e.now

	res, err := sel.Select(candidates, treq)
	if err != nil {
		return ticket.Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	e.metrics.TicketResults.WithLabelValues(string(res.Status)).Inc()
	slog.Info("engine: ticket search finished",
		"mode", mode,
		"profile", profileName,
		"ruleset", rs.Version,
		"fixtures", len(fixtures),
		"candidates", len(candidates),
		"status", res.Status,
		"attempts", res.Attempts)
	return res, nil
}

// fixtures resolves explicit ids, or lists the lookahead window when none are given.
func (e *Engine) fixtures(ctx context.Context, ids []string) ([]models.Fixture, error) {
	if len(ids) == 0 {
		fixtures, err := e.upcoming(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list fixtures: %w", err)
		}
		return fixtures, nil
	}
	if e.source == nil {
		return nil, ErrNoSource
	}

	out := make([]models.Fixture, 0, len(ids))
	for _, id := range ids {
		f, err := e.source.GetFixture(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("engine: skipping fixture", "fixture", id, "error", err)
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// weights loads calibration weights for the ruleset. Missing weights fall
// back to the default for every pick.
func (e *Engine) weights(ctx context.Context, rs *rules.Ruleset) calibration.Weights {
	if e.store == nil {
		return nil
	}
	w, err := e.store.LoadWeights(ctx, rs.Version)
	if err != nil {
		slog.Warn("engine: failed to load pick weights", "ruleset", rs.Version, "error", err)
		return nil
	}
	return w
}

func edgeCandidates(runs []fixtureRun) []models.Candidate {
	var out []models.Candidate
	for _, run := range runs {
		name := run.analysis.Fixture.Name()
		for _, r := range run.analysis.Edges {
			out = append(out, models.Candidate{
				Leg: models.TicketLeg{
					FixtureID: run.analysis.Fixture.ID,
					Fixture:   name,
					Market:    r.Market,
					Side:      r.Side,
					Line:      r.Line,
					Odds:      r.Odds,
					Bookmaker: r.Bookmaker,
				},
				Score: r.Edge,
			})
		}
	}
	return out
}

func lineCandidates(runs []fixtureRun, weights calibration.Weights) []models.Candidate {
	var out []models.Candidate
	for _, run := range runs {
		if len(run.analysis.Picks) == 0 || len(run.pairs) == 0 {
			continue
		}
		best := edge.BestPrices(run.pairs)
		name := run.analysis.Fixture.Name()
		for _, p := range run.analysis.Picks {
			price, ok := best[edge.PriceKey(p.Market, p.Line, p.Side)]
			if !ok {
				continue
			}
			prob, ok := modelProb(run.analysis.Models, p.Market, p.Line, p.Side)
			if !ok {
				continue
			}
			out = append(out, models.Candidate{
				Leg: models.TicketLeg{
					FixtureID: run.analysis.Fixture.ID,
					Fixture:   name,
					Market:    p.Market,
					Side:      p.Side,
					Line:      p.Line,
					Odds:      price.Odds,
					Bookmaker: price.Bookmaker,
				},
				Score: weights.Score(p.Market, p.Side, p.Line, prob),
			})
		}
	}
	return out
}

func modelProb(outputs []models.ModelOutput, market models.Category, line float64, side models.Side) (float64, bool) {
	key := models.LineKey(line)
	for _, m := range outputs {
		if m.Market == market && models.LineKey(m.Line) == key {
			return m.Prob(side), true
		}
	}
	return 0, false
}
