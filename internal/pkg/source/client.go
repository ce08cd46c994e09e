// Package source fetches fixtures, team statistics and odds from the
// external sports-data provider.
package source

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/Vodeneev/ticketedge/internal/pkg/config"
	"github.com/Vodeneev/ticketedge/internal/pkg/models"
)

// ErrNotFound means the provider has no data for the requested entity.
var ErrNotFound = errors.New("source: not found")

// errCallerDone marks a request aborted by the caller's context, not by the provider.
var errCallerDone = errors.New("source: caller context done")

// Client talks to the provider with a rate limit and a circuit breaker.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewClient builds a client from config. It returns nil when no base URL is set.
func NewClient(cfg config.SourceConfig) *Client {
	if cfg.BaseURL == "" {
		return nil
	}

	st := gobreaker.Settings{
		Name:    "source",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFails
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, errCallerDone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("source: circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// envelope is the provider's response wrapper.
type envelope struct {
	Errors   json.RawMessage `json:"errors,omitempty"`
	Results  int             `json:"results"`
	Response json.RawMessage `json:"response"`
}

// GetFixtures lists fixtures kicking off in [from, to].
func (c *Client) GetFixtures(ctx context.Context, from, to time.Time) ([]models.Fixture, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))

	var fixtures []models.Fixture
	if err := c.get(ctx, "/fixtures", q, &fixtures); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return fixtures, nil
}

// GetFixture returns one fixture by id.
func (c *Client) GetFixture(ctx context.Context, fixtureID string) (models.Fixture, error) {
	var f models.Fixture
	err := c.get(ctx, "/fixtures/"+url.PathEscape(fixtureID), nil, &f)
	return f, err
}

// GetTeamStats returns a team's rolling per-match means.
func (c *Client) GetTeamStats(ctx context.Context, teamID string) (models.TeamStats, error) {
	var s models.TeamStats
	if err := c.get(ctx, "/teams/"+url.PathEscape(teamID)+"/statistics", nil, &s); err != nil {
		return models.TeamStats{}, err
	}
	if s.TeamID == "" {
		s.TeamID = teamID
	}
	return s, nil
}

// GetOdds returns the bookmaker payload for a fixture.
func (c *Client) GetOdds(ctx context.Context, fixtureID string) (models.OddsPayload, error) {
	q := url.Values{}
	q.Set("fixture", fixtureID)

	var p models.OddsPayload
	if err := c.get(ctx, "/odds", q, &p); err != nil {
		return models.OddsPayload{}, err
	}
	if p.FixtureID == "" {
		p.FixtureID = fixtureID
	}
	return p, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dst any) error {
	if c == nil {
		return fmt.Errorf("source client is not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := c.breaker.Execute(func() (interface{}, error) {
		b, err := c.doRequest(ctx, path, query)
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerDone, err)
		}
		return b, err
	})
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body.([]byte), &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(env.Response) == 0 || string(env.Response) == "null" || string(env.Response) == "[]" {
		return ErrNotFound
	}
	if err := json.Unmarshal(env.Response, dst); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", path, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br, zstd")
	if c.apiKey != "" {
		req.Header.Set("x-apisports-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := readBodyDecode(resp)
		preview := string(b)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		slog.Warn("source: API request failed", "path", path, "status", resp.StatusCode, "body_preview", preview)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, preview)
	}

	return readBodyDecode(resp)
}

// readBodyDecode reads the response body and decompresses it based on Content-Encoding.
func readBodyDecode(resp *http.Response) ([]byte, error) {
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch {
	case strings.Contains(enc, "br"):
		return io.ReadAll(brotli.NewReader(resp.Body))
	case strings.Contains(enc, "zstd"):
		r, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case strings.Contains(enc, "gzip"):
		r, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer r.Close()
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read gzip body: %w", err)
		}
		return b, nil
	default:
		return io.ReadAll(resp.Body)
	}
}
