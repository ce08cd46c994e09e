package engine

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vodeneev/ticketedge/internal/pkg/calibration"
	"github.com/Vodeneev/ticketedge/internal/pkg/models"
	"github.com/Vodeneev/ticketedge/internal/pkg/ticket"
)

func TestBuildTicket_EdgeMode(t *testing.T) {
	src := newFakeSource(fixture("1"), fixture("2"), fixture("3"))
	e := newTestEngine(t, Deps{Source: src})
	seed := int64(7)

	res, err := e.BuildTicket(context.Background(), TicketRequest{
		TargetMin:   4,
		TargetMax:   5,
		MinLegs:     2,
		MaxLegs:     3,
		RiskProfile: "wide",
		Seed:        &seed,
	})
	require.NoError(t, err)

	assert.Equal(t, ticket.StatusExact, res.Status)
	require.NotNil(t, res.Ticket)
	assert.True(t, res.Ticket.InRange)
	assert.InDelta(t, 4.41, res.Ticket.TotalOdds, 1e-9)
	require.Len(t, res.Ticket.Legs, 2)
	assert.NotEqual(t, res.Ticket.Legs[0].FixtureID, res.Ticket.Legs[1].FixtureID)
	for _, leg := range res.Ticket.Legs {
		assert.Equal(t, "Manchester United vs Newcastle", leg.Fixture)
		assert.Equal(t, "Bet365", leg.Bookmaker)
		assert.Equal(t, "Over 2.5", leg.Selection())
	}
	assert.Equal(t, 1, src.calls["GetFixtures"], "lookahead window listed once")
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics().TicketResults.WithLabelValues("exact")))
}

func TestBuildTicket_ExplicitFixtures(t *testing.T) {
	src := newFakeSource(fixture("1"), fixture("2"))
	e := newTestEngine(t, Deps{Source: src})

	res, err := e.BuildTicket(context.Background(), TicketRequest{
		FixtureIDs:  []string{"2", "missing"},
		TargetMin:   2,
		TargetMax:   2.2,
		MinLegs:     1,
		MaxLegs:     1,
		RiskProfile: "wide",
	})
	require.NoError(t, err)

	require.Equal(t, ticket.StatusExact, res.Status)
	assert.Equal(t, "2", res.Ticket.Legs[0].FixtureID)
	assert.Equal(t, 0, src.calls["GetFixtures"])
}

func TestBuildTicket_LineMode(t *testing.T) {
	src := newFakeSource(fixture("1"))
	src.odds["1"] = goalsPayload("1", "Pinnacle", quote{"1.5", "1.30", "3.40"}, quote{"2.5", "2.10", "1.80"})
	store := newFakeStore()
	store.weights["2025.09-r2"] = calibration.Weights{}
	store.weights["2025.09-r2"].Set(models.CategoryGoals, models.SideOver, 1.5, 2.0)
	e := newTestEngine(t, Deps{Source: src, Store: store})

	res, err := e.BuildTicket(context.Background(), TicketRequest{
		Mode:        ModeLine,
		TargetMin:   1.2,
		TargetMax:   1.4,
		MinLegs:     1,
		MaxLegs:     1,
		RiskProfile: "safe",
	})
	require.NoError(t, err)

	require.Equal(t, ticket.StatusExact, res.Status)
	leg := res.Ticket.Legs[0]
	assert.Equal(t, models.CategoryGoals, leg.Market)
	assert.Equal(t, "Over 1.5", leg.Selection())
	assert.Equal(t, 1.30, leg.Odds)
	assert.Equal(t, "Pinnacle", leg.Bookmaker)
}

func TestLineCandidates_ScoreUsesWeights(t *testing.T) {
	src := newFakeSource(fixture("1"))
	src.odds["1"] = goalsPayload("1", "Pinnacle", quote{"1.5", "1.30", "3.40"})
	e := newTestEngine(t, Deps{Source: src})
	rs := e.Rules().Default()

	runs, err := e.analyzeAll(context.Background(), []models.Fixture{fixture("1")}, rs)
	require.NoError(t, err)

	w := calibration.Weights{}
	w.Set(models.CategoryGoals, models.SideOver, 1.5, 2.0)

	got := lineCandidates(runs, w)
	// only the goals pick has a book price; cards and corners are unquoted
	require.Len(t, got, 1)
	prob := findModel(t, runs[0].analysis.Models, models.CategoryGoals, 1.5).ProbOver
	assert.InDelta(t, 2.0*prob, got[0].Score, 1e-12)

	got = lineCandidates(runs, nil)
	assert.InDelta(t, prob, got[0].Score, 1e-12)
}

func TestBuildTicket_NoCandidates(t *testing.T) {
	src := newFakeSource(fixture("1"))
	delete(src.odds, "1")
	e := newTestEngine(t, Deps{Source: src})

	res, err := e.BuildTicket(context.Background(), TicketRequest{
		TargetMin: 3, TargetMax: 5, MinLegs: 2, MaxLegs: 4, RiskProfile: "wide",
	})
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusInsufficient, res.Status)
	assert.Nil(t, res.Ticket)
}

func TestBuildTicket_InvalidRequest(t *testing.T) {
	e := newTestEngine(t, Deps{Source: newFakeSource(fixture("1"))})
	valid := TicketRequest{TargetMin: 3, TargetMax: 5, MinLegs: 2, MaxLegs: 4, RiskProfile: "wide"}

	tests := map[string]func(r *TicketRequest){
		"unknown mode":      func(r *TicketRequest) { r.Mode = "parlay" },
		"unknown profile":   func(r *TicketRequest) { r.RiskProfile = "yolo" },
		"default profile":   func(r *TicketRequest) { r.RiskProfile = "" },
		"target min at one": func(r *TicketRequest) { r.TargetMin = 1 },
		"inverted band":     func(r *TicketRequest) { r.TargetMax = 2 },
		"zero legs":         func(r *TicketRequest) { r.MinLegs = 0 },
		"unknown ruleset":   func(r *TicketRequest) { r.RulesetVersion = "1999.01" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			req := valid
			mutate(&req)
			_, err := e.BuildTicket(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestBuildTicket_NoSource(t *testing.T) {
	e := newTestEngine(t, Deps{})

	_, err := e.BuildTicket(context.Background(), TicketRequest{
		FixtureIDs: []string{"1"}, TargetMin: 3, TargetMax: 5, MinLegs: 2, MaxLegs: 4, RiskProfile: "wide",
	})
	assert.ErrorIs(t, err, ErrNoSource)
}
