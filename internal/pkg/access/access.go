// Package access decides who may call the engine and at what level.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/Vodeneev/ticketedge/internal/pkg/config"
)

// Principal is an authenticated caller.
type Principal struct {
	UserID string
	Admin  bool
}

// Level is a caller's entitlement.
type Level string

const (
	LevelNone       Level = "none"
	LevelTrial      Level = "trial"
	LevelSubscribed Level = "subscribed"
)

// Active reports whether the level grants access to paid features.
func (l Level) Active() bool {
	return l == LevelTrial || l == LevelSubscribed
}

// Authorizer resolves a bearer token to a principal.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (Principal, bool)
}

// Entitlements reports a principal's access level.
type Entitlements interface {
	Access(ctx context.Context, p Principal) (Level, error)
}

// StaticAuthorizer checks tokens against a fixed map.
type StaticAuthorizer struct {
	tokens map[string]string
	admins map[string]bool
}

func NewStaticAuthorizer(cfg config.AccessConfig) *StaticAuthorizer {
	a := &StaticAuthorizer{tokens: make(map[string]string, len(cfg.Tokens)), admins: make(map[string]bool, len(cfg.Admins))}
	for token, user := range cfg.Tokens {
		a.tokens[token] = user
	}
	for _, u := range cfg.Admins {
		a.admins[u] = true
	}
	return a
}

func (a *StaticAuthorizer) Authorize(_ context.Context, token string) (Principal, bool) {
	if token == "" {
		return Principal{}, false
	}
	user, ok := a.tokens[token]
	if !ok {
		return Principal{}, false
	}
	return Principal{UserID: user, Admin: a.admins[user]}, true
}

// StaticEntitlements grants levels from config. Admins are always subscribed.
type StaticEntitlements struct {
	subscribed map[string]bool
	trialUntil map[string]time.Time
	now        func() time.Time
}

func NewStaticEntitlements(cfg config.AccessConfig, now func() time.Time) (*StaticEntitlements, error) {
	if now == nil {
		now = time.Now
	}
	e := &StaticEntitlements{
		subscribed: make(map[string]bool, len(cfg.Subscribed)),
		trialUntil: make(map[string]time.Time, len(cfg.TrialUntil)),
		now:        now,
	}
	for _, u := range cfg.Subscribed {
		e.subscribed[u] = true
	}
	for u, raw := range cfg.TrialUntil {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("trial_until[%s]: %w", u, err)
		}
		e.trialUntil[u] = t
	}
	return e, nil
}

func (e *StaticEntitlements) Access(_ context.Context, p Principal) (Level, error) {
	if p.Admin || e.subscribed[p.UserID] {
		return LevelSubscribed, nil
	}
	if until, ok := e.trialUntil[p.UserID]; ok && e.now().Before(until) {
		return LevelTrial, nil
	}
	return LevelNone, nil
}
