package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/Vodeneev/ticketedge/internal/pkg/calibration"
	"github.com/Vodeneev/ticketedge/internal/pkg/config"
	"github.com/Vodeneev/ticketedge/internal/pkg/models"
)

var _ EdgeStore = (*PostgresStore)(nil)

// PostgresStore keeps edges, picks, alerts and calibration weights in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects, pings and creates the schema.
func NewPostgresStore(cfg config.PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := NewPostgresStoreFromDB(db)
	if err := store.InitSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("PostgreSQL edge storage initialized")
	return store, nil
}

// NewPostgresStoreFromDB wraps an open handle without touching the schema.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS edges (
	id SERIAL PRIMARY KEY,
	fixture_id VARCHAR(100) NOT NULL,
	market VARCHAR(50) NOT NULL,
	line DECIMAL(6, 2) NOT NULL,
	side VARCHAR(10) NOT NULL,
	bookmaker VARCHAR(100) NOT NULL,
	ruleset_version VARCHAR(100) NOT NULL,
	model_prob DOUBLE PRECISION NOT NULL,
	book_prob DOUBLE PRECISION NOT NULL,
	edge DOUBLE PRECISION NOT NULL,
	odds DECIMAL(10, 4) NOT NULL,
	raw_over_prob DOUBLE PRECISION NOT NULL,
	raw_under_prob DOUBLE PRECISION NOT NULL,
	overround DOUBLE PRECISION NOT NULL,
	confidence VARCHAR(10) NOT NULL DEFAULT '',
	calculated_at TIMESTAMP NOT NULL,
	UNIQUE(fixture_id, market, line, side, bookmaker, ruleset_version)
);

CREATE INDEX IF NOT EXISTS idx_edges_calculated_at ON edges(calculated_at DESC);
CREATE INDEX IF NOT EXISTS idx_edges_edge ON edges(edge DESC);

CREATE TABLE IF NOT EXISTS rule_picks (
	fixture_id VARCHAR(100) NOT NULL,
	market VARCHAR(50) NOT NULL,
	ruleset_version VARCHAR(100) NOT NULL,
	ruleset_fingerprint VARCHAR(32) NOT NULL,
	combined DOUBLE PRECISION NOT NULL,
	side VARCHAR(10) NOT NULL,
	line DECIMAL(6, 2) NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY(fixture_id, market, ruleset_version)
);

CREATE TABLE IF NOT EXISTS edge_alerts (
	edge_key VARCHAR(500) PRIMARY KEY,
	edge DOUBLE PRECISION NOT NULL,
	sent_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS pick_weights (
	ruleset_version VARCHAR(100) NOT NULL,
	market VARCHAR(50) NOT NULL,
	side VARCHAR(10) NOT NULL,
	line DECIMAL(6, 2) NOT NULL,
	weight DOUBLE PRECISION NOT NULL,
	PRIMARY KEY(ruleset_version, market, side, line)
);
`

// InitSchema creates tables and indexes if missing.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const upsertEdge = `
INSERT INTO edges (
	fixture_id, market, line, side, bookmaker, ruleset_version,
	model_prob, book_prob, edge, odds, raw_over_prob, raw_under_prob,
	overround, confidence, calculated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (fixture_id, market, line, side, bookmaker, ruleset_version) DO UPDATE SET
	model_prob = EXCLUDED.model_prob,
	book_prob = EXCLUDED.book_prob,
	edge = EXCLUDED.edge,
	odds = EXCLUDED.odds,
	raw_over_prob = EXCLUDED.raw_over_prob,
	raw_under_prob = EXCLUDED.raw_under_prob,
	overround = EXCLUDED.overround,
	confidence = EXCLUDED.confidence,
	calculated_at = EXCLUDED.calculated_at
`

// SaveEdges upserts all edges in one transaction.
func (s *PostgresStore) SaveEdges(ctx context.Context, rulesetVersion string, edges []models.EdgeResult) error {
	if len(edges) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range edges {
		_, err := tx.ExecContext(ctx, upsertEdge,
			e.FixtureID,
			string(e.Market),
			e.Line,
			string(e.Side),
			e.Bookmaker,
			rulesetVersion,
			e.ModelProb,
			e.BookProb,
			e.Edge,
			e.Odds,
			e.RawOverProb,
			e.RawUnderProb,
			e.Overround,
			string(e.Confidence),
			e.CalculatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to store edge %s: %w", e.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit edges: %w", err)
	}
	return nil
}

const insertPick = `
INSERT INTO rule_picks (
	fixture_id, market, ruleset_version, ruleset_fingerprint, combined, side, line, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// SavePicks replaces every pick stored for the fixture and ruleset version
// with picks, in one transaction. An empty slice clears the fixture, so a
// category that moved into a no-bet zone stops being served.
func (s *PostgresStore) SavePicks(ctx context.Context, fixtureID, rulesetVersion, fingerprint string, picks []models.RulePick, computedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM rule_picks WHERE fixture_id = $1 AND ruleset_version = $2`,
		fixtureID, rulesetVersion)
	if err != nil {
		return fmt.Errorf("failed to clear picks for %s: %w", fixtureID, err)
	}

	for _, p := range picks {
		_, err := tx.ExecContext(ctx, insertPick,
			fixtureID,
			string(p.Market),
			rulesetVersion,
			fingerprint,
			p.Combined,
			string(p.Side),
			p.Line,
			computedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to store pick %s/%s: %w", fixtureID, p.Market, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit picks: %w", err)
	}
	return nil
}

// GetPicks returns picks for a fixture computed under exactly this ruleset
// version and fingerprint no earlier than since.
func (s *PostgresStore) GetPicks(ctx context.Context, fixtureID, rulesetVersion, fingerprint string, since time.Time) ([]models.RulePick, error) {
	query := `
	SELECT market, combined, side, line
	FROM rule_picks
	WHERE fixture_id = $1 AND ruleset_version = $2 AND ruleset_fingerprint = $3 AND created_at >= $4
	ORDER BY market
	`
	rows, err := s.db.QueryContext(ctx, query, fixtureID, rulesetVersion, fingerprint, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query picks: %w", err)
	}
	defer rows.Close()

	var picks []models.RulePick
	for rows.Next() {
		p := models.RulePick{FixtureID: fixtureID, RulesetVersion: rulesetVersion}
		var market, side string
		if err := rows.Scan(&market, &p.Combined, &side, &p.Line); err != nil {
			return nil, fmt.Errorf("failed to scan pick: %w", err)
		}
		p.Market = models.Category(market)
		p.Side = models.Side(side)
		picks = append(picks, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	if len(picks) == 0 {
		return nil, ErrNotFound
	}
	return picks, nil
}

// TopEdges returns edges since the given time ordered by edge descending.
func (s *PostgresStore) TopEdges(ctx context.Context, since time.Time, limit int) ([]models.EdgeResult, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
	SELECT
		fixture_id, market, line, side, bookmaker,
		model_prob, book_prob, edge, odds,
		raw_over_prob, raw_under_prob, overround, confidence, calculated_at
	FROM edges
	WHERE calculated_at >= $1
	ORDER BY edge DESC, calculated_at DESC
	LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top edges: %w", err)
	}
	defer rows.Close()

	var edges []models.EdgeResult
	for rows.Next() {
		var (
			e                        models.EdgeResult
			market, side, confidence string
		)
		err := rows.Scan(
			&e.FixtureID,
			&market,
			&e.Line,
			&side,
			&e.Bookmaker,
			&e.ModelProb,
			&e.BookProb,
			&e.Edge,
			&e.Odds,
			&e.RawOverProb,
			&e.RawUnderProb,
			&e.Overround,
			&confidence,
			&e.CalculatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Market = models.Category(market)
		e.Side = models.Side(side)
		e.Confidence = models.Confidence(confidence)
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return edges, nil
}

// LastAlert returns the last alerted edge for a key.
func (s *PostgresStore) LastAlert(ctx context.Context, key string) (float64, time.Time, error) {
	var (
		edge   float64
		sentAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `SELECT edge, sent_at FROM edge_alerts WHERE edge_key = $1`, key).Scan(&edge, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, ErrNotFound
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to get last alert: %w", err)
	}
	return edge, sentAt, nil
}

// RecordAlert upserts the alert marker for a key.
func (s *PostgresStore) RecordAlert(ctx context.Context, key string, edge float64, sentAt time.Time) error {
	query := `
	INSERT INTO edge_alerts (edge_key, edge, sent_at) VALUES ($1, $2, $3)
	ON CONFLICT (edge_key) DO UPDATE SET edge = EXCLUDED.edge, sent_at = EXCLUDED.sent_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, edge, sentAt); err != nil {
		return fmt.Errorf("failed to record alert: %w", err)
	}
	return nil
}

// LoadWeights reads all weights of a ruleset version into a fresh map.
func (s *PostgresStore) LoadWeights(ctx context.Context, rulesetVersion string) (calibration.Weights, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT market, side, line, weight FROM pick_weights WHERE ruleset_version = $1`, rulesetVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to query weights: %w", err)
	}
	defer rows.Close()

	w := calibration.Weights{}
	for rows.Next() {
		var (
			market, side string
			line, weight float64
		)
		if err := rows.Scan(&market, &side, &line, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan weight: %w", err)
		}
		w.Set(models.Category(market), models.Side(side), line, weight)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return w, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
