// Package ticket assembles accumulator tickets whose combined odds land in a
// target band.
package ticket

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Vodeneev/ticketedge/internal/pkg/models"
	"github.com/Vodeneev/ticketedge/internal/pkg/oddsmath"
)

const (
	DefaultMaxAttempts        = 50
	DefaultOvershootTolerance = 0.05
	defaultJitter             = 0.35 // log-odds noise added to the ordering of each attempt
)

// Status tells a caller why a search did or did not produce a ticket.
type Status string

const (
	StatusExact        Status = "exact"        // total odds inside the target band
	StatusFallback     Status = "fallback"     // closest attempt to the band midpoint
	StatusInsufficient Status = "insufficient" // not enough distinct fixture/market candidates
	StatusExhausted    Status = "exhausted"    // no attempt reached min legs
)

// Rand is the randomness the selector needs. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

// Profile bounds per-leg odds and anchors the search ordering.
type Profile struct {
	MinLegOdds    float64 `json:"min_leg_odds"`
	MaxLegOdds    float64 `json:"max_leg_odds"`
	PreferredOdds float64 `json:"preferred_odds"`
}

func (p Profile) allows(odds float64) bool {
	if p.MinLegOdds > 0 && odds < p.MinLegOdds {
		return false
	}
	if p.MaxLegOdds > 0 && odds > p.MaxLegOdds {
		return false
	}
	return true
}

// Request describes the ticket a caller wants.
type Request struct {
	TargetMin float64 `json:"target_min"`
	TargetMax float64 `json:"target_max"`
	MinLegs   int     `json:"min_legs"`
	MaxLegs   int     `json:"max_legs"`
	Profile   Profile `json:"profile"`
}

// Validate rejects requests no search could satisfy.
func (r Request) Validate() error {
	switch {
	case !(r.TargetMin > 1):
		return fmt.Errorf("target_min must be > 1, got %v", r.TargetMin)
	case r.TargetMax < r.TargetMin:
		return fmt.Errorf("target_max %v is below target_min %v", r.TargetMax, r.TargetMin)
	case r.MinLegs < 1:
		return errors.New("min_legs must be >= 1")
	case r.MaxLegs < r.MinLegs:
		return fmt.Errorf("max_legs %d is below min_legs %d", r.MaxLegs, r.MinLegs)
	case r.Profile.MaxLegOdds > 0 && r.Profile.MaxLegOdds < r.Profile.MinLegOdds:
		return errors.New("profile max_leg_odds is below min_leg_odds")
	}
	return nil
}

// Result is the outcome of a search. Ticket is nil unless Status is
// StatusExact or StatusFallback.
type Result struct {
	Ticket   *models.Ticket `json:"ticket,omitempty"`
	Status   Status         `json:"status"`
	Attempts int            `json:"attempts"`
}

// Selector runs a bounded randomized greedy search over candidates.
type Selector struct {
	Rand               Rand
	MaxAttempts        int
	OvershootTolerance float64 // fraction above TargetMax a running product may reach
	Now                func() time.Time
}

// New returns a Selector. A nil rng is seeded from the clock.
func New(rng Rand, maxAttempts int, overshoot float64) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if overshoot < 0 {
		overshoot = DefaultOvershootTolerance
	}
	return &Selector{Rand: rng, MaxAttempts: maxAttempts, OvershootTolerance: overshoot, Now: time.Now}
}

type attempt struct {
	legs    []models.TicketLeg
	product float64
}

// Select searches for a ticket. The first attempt whose running product lands
// in [TargetMin, TargetMax] with at least MinLegs legs wins. Otherwise the
// attempt closest to the band midpoint that reached MinLegs is returned as a
// fallback. Only an invalid request is an error.
func (s *Selector) Select(candidates []models.Candidate, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	pool := make([]models.Candidate, 0, len(candidates))
	distinct := make(map[string]struct{})
	for _, c := range candidates {
		if !oddsmath.ValidOdds(c.Leg.Odds) || !req.Profile.allows(c.Leg.Odds) {
			continue
		}
		pool = append(pool, c)
		distinct[diversityKey(c.Leg)] = struct{}{}
	}
	if len(distinct) < req.MinLegs {
		return Result{Status: StatusInsufficient}, nil
	}

	ceiling := req.TargetMax * (1 + s.OvershootTolerance)
	mid := (req.TargetMin + req.TargetMax) / 2

	var best *attempt
	bestDist := math.Inf(1)
	for i := 1; i <= s.MaxAttempts; i++ {
		a, ok := s.attempt(s.order(pool, req.Profile.PreferredOdds), req, ceiling)
		if ok {
			return Result{Ticket: s.ticket(a, req, true), Status: StatusExact, Attempts: i}, nil
		}
		if len(a.legs) < req.MinLegs {
			continue
		}
		if d := math.Abs(a.product - mid); d < bestDist {
			best, bestDist = &a, d
		}
	}

	if best == nil {
		return Result{Status: StatusExhausted, Attempts: s.MaxAttempts}, nil
	}
	return Result{Ticket: s.ticket(*best, req, false), Status: StatusFallback, Attempts: s.MaxAttempts}, nil
}

// attempt walks candidates in order, accepting a leg while the running
// product stays under ceiling and the fixture/market pair is unused.
func (s *Selector) attempt(order []models.Candidate, req Request, ceiling float64) (attempt, bool) {
	a := attempt{product: 1}
	used := make(map[string]struct{}, req.MaxLegs)
	for _, c := range order {
		if len(a.legs) >= req.MaxLegs {
			break
		}
		key := diversityKey(c.Leg)
		if _, dup := used[key]; dup {
			continue
		}
		next := a.product * c.Leg.Odds
		if next > ceiling {
			continue
		}
		used[key] = struct{}{}
		a.legs = append(a.legs, c.Leg)
		a.product = next
		if len(a.legs) >= req.MinLegs && a.product >= req.TargetMin && a.product <= req.TargetMax {
			return a, true
		}
	}
	return a, false
}

// order sorts candidates by log distance from the preferred odds, less any
// score, plus per-attempt noise.
func (s *Selector) order(pool []models.Candidate, preferred float64) []models.Candidate {
	type keyed struct {
		c   models.Candidate
		key float64
	}
	ks := make([]keyed, len(pool))
	for i, c := range pool {
		dist := 0.0
		if preferred > 1 {
			dist = math.Abs(math.Log(c.Leg.Odds / preferred))
		}
		ks[i] = keyed{c: c, key: dist - c.Score + s.Rand.Float64()*defaultJitter}
	}
	s.Rand.Shuffle(len(ks), func(i, j int) { ks[i], ks[j] = ks[j], ks[i] })
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].key < ks[j].key })

	out := make([]models.Candidate, len(ks))
	for i, k := range ks {
		out[i] = k.c
	}
	return out
}

func (s *Selector) ticket(a attempt, req Request, inRange bool) *models.Ticket {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	legs := make([]models.TicketLeg, len(a.legs))
	copy(legs, a.legs)
	return &models.Ticket{
		ID:        uuid.NewString(),
		Legs:      legs,
		TotalOdds: a.product,
		TargetMin: req.TargetMin,
		TargetMax: req.TargetMax,
		InRange:   inRange,
		CreatedAt: now().UTC(),
	}
}

func diversityKey(l models.TicketLeg) string {
	return l.FixtureID + "|" + string(l.Market)
}
