package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vodeneev/ticketedge/internal/pkg/config"
)

func accessConfig() config.AccessConfig {
	return config.AccessConfig{
		Tokens:     map[string]string{"t-admin": "alice", "t-sub": "bob", "t-trial": "carol", "t-none": "dave"},
		Admins:     []string{"alice"},
		Subscribed: []string{"bob"},
		TrialUntil: map[string]string{"carol": "2025-10-01T00:00:00Z", "dave": "2025-09-01T00:00:00Z"},
	}
}

func TestStaticAuthorizer(t *testing.T) {
	a := NewStaticAuthorizer(accessConfig())
	ctx := context.Background()

	p, ok := a.Authorize(ctx, "t-admin")
	require.True(t, ok)
	assert.Equal(t, Principal{UserID: "alice", Admin: true}, p)

	p, ok = a.Authorize(ctx, "t-sub")
	require.True(t, ok)
	assert.False(t, p.Admin)

	_, ok = a.Authorize(ctx, "")
	assert.False(t, ok)
	_, ok = a.Authorize(ctx, "forged")
	assert.False(t, ok)
}

func TestStaticEntitlements(t *testing.T) {
	now := time.Date(2025, 9, 20, 0, 0, 0, 0, time.UTC)
	e, err := NewStaticEntitlements(accessConfig(), func() time.Time { return now })
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		principal Principal
		want      Level
	}{
		{Principal{UserID: "alice", Admin: true}, LevelSubscribed},
		{Principal{UserID: "bob"}, LevelSubscribed},
		{Principal{UserID: "carol"}, LevelTrial},
		{Principal{UserID: "dave"}, LevelNone},
		{Principal{UserID: "eve"}, LevelNone},
	}
	for _, tt := range tests {
		t.Run(tt.principal.UserID, func(t *testing.T) {
			got, err := e.Access(ctx, tt.principal)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want != LevelNone, got.Active())
		})
	}
}

func TestNewStaticEntitlements_BadDate(t *testing.T) {
	_, err := NewStaticEntitlements(config.AccessConfig{TrialUntil: map[string]string{"x": "tomorrow"}}, nil)
	assert.Error(t, err)
}
