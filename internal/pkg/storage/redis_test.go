package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vodeneev/ticketedge/internal/pkg/models"
)

func TestRedisCache_TeamStats(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCacheFromClient(client, 6*time.Hour, 5*time.Minute)
	ctx := context.Background()

	stats := models.TeamStats{TeamID: "33", Goals: 1.8, Cards: 2.2, Corners: 5.4, SampleSize: 5,
		UpdatedAt: time.Date(2025, 9, 19, 0, 0, 0, 0, time.UTC)}
	data, err := json.Marshal(stats)
	require.NoError(t, err)

	mock.ExpectSet("stats:team:33", data, 6*time.Hour).SetVal("OK")
	require.NoError(t, cache.SetTeamStats(ctx, stats))

	mock.ExpectGet("stats:team:33").SetVal(string(data))
	got, err := cache.GetTeamStats(ctx, "33")
	require.NoError(t, err)
	assert.Equal(t, stats, got)

	mock.ExpectGet("stats:team:34").RedisNil()
	_, err = cache.GetTeamStats(ctx, "34")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_Odds(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCacheFromClient(client, time.Hour, 5*time.Minute)
	ctx := context.Background()

	payload := models.OddsPayload{FixtureID: "1035", Bookmakers: []models.BookmakerOdds{{ID: 8, Name: "Bet365"}}}
	data, _ := json.Marshal(payload)

	mock.ExpectSet("odds:fixture:1035", data, 5*time.Minute).SetVal("OK")
	require.NoError(t, cache.SetOdds(ctx, payload))

	mock.ExpectGet("odds:fixture:1035").SetVal(string(data))
	got, err := cache.GetOdds(ctx, "1035")
	require.NoError(t, err)
	assert.Equal(t, "Bet365", got.Bookmakers[0].Name)

	mock.ExpectGet("odds:fixture:1036").SetErr(errors.New("connection refused"))
	_, err = cache.GetOdds(ctx, "1036")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_AnalysisKeyedByRulesetVersionAndFingerprint(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCacheFromClient(client, time.Hour, 5*time.Minute)
	ctx := context.Background()

	a := models.FixtureAnalysis{Fixture: models.Fixture{ID: "1035"}, RulesetVersion: "2025.09-r2"}
	data, _ := json.Marshal(a)

	mock.ExpectSet("analysis:2025.09-r2:abcd:1035", data, 5*time.Minute).SetVal("OK")
	require.NoError(t, cache.SetAnalysis(ctx, "abcd", a))

	mock.ExpectGet("analysis:2025.09-r2:abcd:1035").SetVal(string(data))
	got, err := cache.GetAnalysis(ctx, "2025.09-r2", "abcd", "1035")
	require.NoError(t, err)
	assert.Equal(t, "1035", got.Fixture.ID)

	mock.ExpectGet("analysis:2025.09-r2:ef01:1035").RedisNil()
	_, err = cache.GetAnalysis(ctx, "2025.09-r2", "ef01", "1035")
	assert.ErrorIs(t, err, ErrNotFound, "edited ruleset under the same version misses")

	mock.ExpectGet("analysis:2025.03-r1:abcd:1035").RedisNil()
	_, err = cache.GetAnalysis(ctx, "2025.03-r1", "abcd", "1035")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCacheFromClient(client, time.Hour, time.Minute)

	mock.ExpectGet("stats:team:1").SetVal("{not json")
	_, err := cache.GetTeamStats(context.Background(), "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}
