package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Vodeneev/ticketedge/internal/pkg/calibration"
	"github.com/Vodeneev/ticketedge/internal/pkg/models"
)

// ErrNotFound is returned when a lookup has no row or cache entry.
var ErrNotFound = errors.New("storage: not found")

// EdgeStore persists engine output and the state the alert loop needs.
type EdgeStore interface {
	// SaveEdges upserts edges keyed by fixture/market/line/side/bookmaker and ruleset version.
	SaveEdges(ctx context.Context, rulesetVersion string, edges []models.EdgeResult) error

	// SavePicks replaces all picks of a fixture under a ruleset version with
	// picks, recording the fingerprint and time they were computed at.
	SavePicks(ctx context.Context, fixtureID, rulesetVersion, fingerprint string, picks []models.RulePick, computedAt time.Time) error

	// GetPicks returns stored picks for a fixture, or ErrNotFound when none
	// were stored under this version and fingerprint since the given time.
	GetPicks(ctx context.Context, fixtureID, rulesetVersion, fingerprint string, since time.Time) ([]models.RulePick, error)

	// TopEdges returns the largest edges calculated since the given time.
	TopEdges(ctx context.Context, since time.Time, limit int) ([]models.EdgeResult, error)

	// LastAlert returns the edge and time of the last alert for a key, or ErrNotFound.
	LastAlert(ctx context.Context, key string) (edge float64, sentAt time.Time, err error)

	// RecordAlert stores that an alert for key was sent.
	RecordAlert(ctx context.Context, key string, edge float64, sentAt time.Time) error

	// LoadWeights reads calibration weights for a ruleset version.
	LoadWeights(ctx context.Context, rulesetVersion string) (calibration.Weights, error)

	Close() error
}

// Cache holds short-lived provider data and computed analyses.
type Cache interface {
	GetTeamStats(ctx context.Context, teamID string) (models.TeamStats, error)
	SetTeamStats(ctx context.Context, stats models.TeamStats) error
	GetOdds(ctx context.Context, fixtureID string) (models.OddsPayload, error)
	SetOdds(ctx context.Context, payload models.OddsPayload) error
	GetAnalysis(ctx context.Context, rulesetVersion, fingerprint, fixtureID string) (models.FixtureAnalysis, error)
	SetAnalysis(ctx context.Context, fingerprint string, analysis models.FixtureAnalysis) error
	Close() error
}
