package models

import "time"

// TicketLeg is one selection on a ticket.
type TicketLeg struct {
	FixtureID string   `json:"fixture_id"`
	Fixture   string   `json:"fixture,omitempty"`
	Market    Category `json:"market"`
	Side      Side     `json:"side"`
	Line      float64  `json:"line"`
	Odds      float64  `json:"odds"`
	Bookmaker string   `json:"bookmaker"`
}

// Selection renders the leg as "Over 2.5".
func (l TicketLeg) Selection() string {
	s := "Over"
	if l.Side == SideUnder {
		s = "Under"
	}
	return s + " " + FormatLine(l.Line)
}

// Candidate is a leg offered to the ticket selector with its ranking score.
type Candidate struct {
	Leg   TicketLeg `json:"leg"`
	Score float64   `json:"score"`
}

// Ticket is an ordered set of legs whose odds multiply to TotalOdds.
type Ticket struct {
	ID        string      `json:"id"`
	Legs      []TicketLeg `json:"legs"`
	TotalOdds float64     `json:"total_odds"`
	TargetMin float64     `json:"target_min"`
	TargetMax float64     `json:"target_max"`
	InRange   bool        `json:"in_range"`
	CreatedAt time.Time   `json:"created_at"`
}
