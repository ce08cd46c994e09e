package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Vodeneev/ticketedge/internal/pkg/config"
	"github.com/Vodeneev/ticketedge/internal/pkg/models"
)

var _ Cache = (*RedisCache)(nil)

// RedisCache caches provider payloads and analyses as JSON with a TTL.
type RedisCache struct {
	client   *redis.Client
	statsTTL time.Duration
	oddsTTL  time.Duration
}

func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Check connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheFromClient(client, cfg.StatsTTL, cfg.OddsTTL), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, statsTTL, oddsTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, statsTTL: statsTTL, oddsTTL: oddsTTL}
}

func statsKey(teamID string) string { return "stats:team:" + teamID }
func oddsKey(fixtureID string) string { return "odds:fixture:" + fixtureID }
func analysisKey(version, fingerprint, fixtureID string) string {
	return "analysis:" + version + ":" + fingerprint + ":" + fixtureID
}

func (r *RedisCache) GetTeamStats(ctx context.Context, teamID string) (models.TeamStats, error) {
	var s models.TeamStats
	err := r.getJSON(ctx, statsKey(teamID), &s)
	return s, err
}

func (r *RedisCache) SetTeamStats(ctx context.Context, stats models.TeamStats) error {
	return r.setJSON(ctx, statsKey(stats.TeamID), stats, r.statsTTL)
}

func (r *RedisCache) GetOdds(ctx context.Context, fixtureID string) (models.OddsPayload, error) {
	var p models.OddsPayload
	err := r.getJSON(ctx, oddsKey(fixtureID), &p)
	return p, err
}

func (r *RedisCache) SetOdds(ctx context.Context, payload models.OddsPayload) error {
	return r.setJSON(ctx, oddsKey(payload.FixtureID), payload, r.oddsTTL)
}

// GetAnalysis returns a cached analysis; it lives as long as the odds it was built from.
func (r *RedisCache) GetAnalysis(ctx context.Context, rulesetVersion, fingerprint, fixtureID string) (models.FixtureAnalysis, error) {
	var a models.FixtureAnalysis
	err := r.getJSON(ctx, analysisKey(rulesetVersion, fingerprint, fixtureID), &a)
	return a, err
}

func (r *RedisCache) SetAnalysis(ctx context.Context, fingerprint string, analysis models.FixtureAnalysis) error {
	return r.setJSON(ctx, analysisKey(analysis.RulesetVersion, fingerprint, analysis.Fixture.ID), analysis, r.oddsTTL)
}

func (r *RedisCache) getJSON(ctx context.Context, key string, dst any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (r *RedisCache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
