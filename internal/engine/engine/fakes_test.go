package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Vodeneev/ticketedge/internal/pkg/calibration"
	"github.com/Vodeneev/ticketedge/internal/pkg/config"
	"github.com/Vodeneev/ticketedge/internal/pkg/models"
	"github.com/Vodeneev/ticketedge/internal/pkg/rules"
	"github.com/Vodeneev/ticketedge/internal/pkg/source"
	"github.com/Vodeneev/ticketedge/internal/pkg/storage"
)

var testNow = time.Date(2025, 9, 20, 12, 0, 0, 0, time.UTC)

const testConfigYAML = `
rules:
  path: ../../../configs/rulesets.yaml
ticket:
  risk_profiles:
    safe:
      min_leg_odds: 1.15
      max_leg_odds: 1.60
      preferred_odds: 1.35
    wide:
      min_leg_odds: 1.50
      max_leg_odds: 3.00
      preferred_odds: 2.00
alerts:
  enabled: true
  interval: 1h
  edge_threshold: 0.05
  cooldown: 1h
  min_increase: 0.02
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfigYAML))
	require.NoError(t, err)
	return cfg
}

func testRegistry(t *testing.T) *rules.Registry {
	t.Helper()
	reg, err := rules.LoadFile("../../../configs/rulesets.yaml")
	require.NoError(t, err)
	return reg
}

func newTestEngine(t *testing.T, deps Deps) *Engine {
	t.Helper()
	if deps.Now == nil {
		deps.Now = func() time.Time { return testNow }
	}
	e, err := New(testConfig(t), testRegistry(t), deps)
	require.NoError(t, err)
	return e
}

func homeStats() models.TeamStats {
	return models.TeamStats{TeamID: "33", Goals: 1.8, Cards: 2.2, Corners: 5.4, Fouls: 11, Offsides: 1.6, SampleSize: 5}
}

func awayStats() models.TeamStats {
	return models.TeamStats{TeamID: "34", Goals: 1.2, Cards: 2.0, Corners: 4.6, Fouls: 10, Offsides: 1.4, SampleSize: 5}
}

func fixture(id string) models.Fixture {
	return models.Fixture{
		ID:         id,
		League:     "39",
		HomeTeamID: "33",
		AwayTeamID: "34",
		HomeTeam:   "Manchester United",
		AwayTeam:   "Newcastle",
		Kickoff:    testNow.Add(6 * time.Hour),
	}
}

type quote struct {
	line        string
	over, under string
}

func goalsPayload(fixtureID, bookmaker string, quotes ...quote) models.OddsPayload {
	var values []models.OddsValue
	for _, q := range quotes {
		values = append(values,
			models.OddsValue{Value: "Over " + q.line, Odd: q.over},
			models.OddsValue{Value: "Under " + q.line, Odd: q.under},
		)
	}
	return models.OddsPayload{
		FixtureID: fixtureID,
		Bookmakers: []models.BookmakerOdds{{
			ID:   8,
			Name: bookmaker,
			Bets: []models.MarketOdds{{ID: 5, Name: "Goals Over/Under", Values: values}},
		}},
	}
}

// fakeSource serves canned provider data. Missing keys answer source.ErrNotFound.
type fakeSource struct {
	mu       sync.Mutex
	fixtures []models.Fixture
	stats    map[string]models.TeamStats
	odds     map[string]models.OddsPayload
	calls    map[string]int
}

func newFakeSource(fixtures ...models.Fixture) *fakeSource {
	s := &fakeSource{
		fixtures: fixtures,
		stats:    map[string]models.TeamStats{"33": homeStats(), "34": awayStats()},
		odds:     map[string]models.OddsPayload{},
		calls:    map[string]int{},
	}
	for _, f := range fixtures {
		s.odds[f.ID] = goalsPayload(f.ID, "Bet365", quote{"2.5", "2.10", "1.80"})
	}
	return s
}

func (s *fakeSource) count(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[method]++
}

func (s *fakeSource) GetFixtures(_ context.Context, from, to time.Time) ([]models.Fixture, error) {
	s.count("GetFixtures")
	return s.fixtures, nil
}

func (s *fakeSource) GetFixture(_ context.Context, id string) (models.Fixture, error) {
	s.count("GetFixture")
	for _, f := range s.fixtures {
		if f.ID == id {
			return f, nil
		}
	}
	return models.Fixture{}, source.ErrNotFound
}

func (s *fakeSource) GetTeamStats(_ context.Context, teamID string) (models.TeamStats, error) {
	s.count("GetTeamStats")
	st, ok := s.stats[teamID]
	if !ok {
		return models.TeamStats{}, source.ErrNotFound
	}
	return st, nil
}

func (s *fakeSource) GetOdds(_ context.Context, fixtureID string) (models.OddsPayload, error) {
	s.count("GetOdds")
	p, ok := s.odds[fixtureID]
	if !ok {
		return models.OddsPayload{}, source.ErrNotFound
	}
	return p, nil
}

type alertRecord struct {
	edge   float64
	sentAt time.Time
}

type storedPicks struct {
	fingerprint string
	picks       []models.RulePick
	at          time.Time
}

// fakeStore is an in-memory EdgeStore.
type fakeStore struct {
	mu      sync.Mutex
	edges   map[string][]models.EdgeResult
	picks   map[string]storedPicks // fixture:version
	alerts  map[string]alertRecord
	weights map[string]calibration.Weights
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		edges:   map[string][]models.EdgeResult{},
		picks:   map[string]storedPicks{},
		alerts:  map[string]alertRecord{},
		weights: map[string]calibration.Weights{},
	}
}

var _ storage.EdgeStore = (*fakeStore)(nil)

func (s *fakeStore) SaveEdges(_ context.Context, version string, edges []models.EdgeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[version] = append(s.edges[version], edges...)
	return nil
}

func (s *fakeStore) SavePicks(_ context.Context, fixtureID, version, fingerprint string, picks []models.RulePick, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.picks[fixtureID+":"+version] = storedPicks{
		fingerprint: fingerprint,
		picks:       append([]models.RulePick(nil), picks...),
		at:          at,
	}
	return nil
}

func (s *fakeStore) GetPicks(_ context.Context, fixtureID, version, fingerprint string, since time.Time) ([]models.RulePick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.picks[fixtureID+":"+version]
	if !ok || sp.fingerprint != fingerprint || sp.at.Before(since) || len(sp.picks) == 0 {
		return nil, storage.ErrNotFound
	}
	return append([]models.RulePick(nil), sp.picks...), nil
}

func (s *fakeStore) TopEdges(_ context.Context, since time.Time, limit int) ([]models.EdgeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EdgeResult
	for _, edges := range s.edges {
		for _, e := range edges {
			if !e.CalculatedAt.Before(since) {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Edge > out[j].Edge })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) LastAlert(_ context.Context, key string) (float64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[key]
	if !ok {
		return 0, time.Time{}, storage.ErrNotFound
	}
	return a.edge, a.sentAt, nil
}

func (s *fakeStore) RecordAlert(_ context.Context, key string, edge float64, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[key] = alertRecord{edge: edge, sentAt: sentAt}
	return nil
}

func (s *fakeStore) LoadWeights(_ context.Context, version string) (calibration.Weights, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weights[version], nil
}

func (s *fakeStore) Close() error { return nil }

// fakeNotifier records alerts instead of sending them.
type fakeNotifier struct {
	mu     sync.Mutex
	alerts []string
	fail   bool
}

func (n *fakeNotifier) SendEdgeAlert(_ context.Context, f models.Fixture, r models.EdgeResult, _ float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("queue full")
	}
	n.alerts = append(n.alerts, r.Key())
	return nil
}

func (n *fakeNotifier) Stop() {}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.alerts...)
}

// fakeCache is an in-memory Cache.
type fakeCache struct {
	mu       sync.Mutex
	stats    map[string]models.TeamStats
	odds     map[string]models.OddsPayload
	analyses map[string]models.FixtureAnalysis
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		stats:    map[string]models.TeamStats{},
		odds:     map[string]models.OddsPayload{},
		analyses: map[string]models.FixtureAnalysis{},
	}
}

var _ storage.Cache = (*fakeCache)(nil)

func (c *fakeCache) GetTeamStats(_ context.Context, teamID string) (models.TeamStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[teamID]
	if !ok {
		return models.TeamStats{}, storage.ErrNotFound
	}
	return s, nil
}

func (c *fakeCache) SetTeamStats(_ context.Context, s models.TeamStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[s.TeamID] = s
	return nil
}

func (c *fakeCache) GetOdds(_ context.Context, fixtureID string) (models.OddsPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.odds[fixtureID]
	if !ok {
		return models.OddsPayload{}, storage.ErrNotFound
	}
	return p, nil
}

func (c *fakeCache) SetOdds(_ context.Context, p models.OddsPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.odds[p.FixtureID] = p
	return nil
}

func (c *fakeCache) GetAnalysis(_ context.Context, version, fingerprint, fixtureID string) (models.FixtureAnalysis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.analyses[version+":"+fingerprint+":"+fixtureID]
	if !ok {
		return models.FixtureAnalysis{}, storage.ErrNotFound
	}
	return a, nil
}

func (c *fakeCache) SetAnalysis(_ context.Context, fingerprint string, a models.FixtureAnalysis) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analyses[a.RulesetVersion+":"+fingerprint+":"+a.Fixture.ID] = a
	return nil
}

func (c *fakeCache) Close() error { return nil }
