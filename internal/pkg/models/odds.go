package models

import "time"

// OddsPayload is the provider's nested bookmaker -> market -> value document for one fixture.
type OddsPayload struct {
	FixtureID  string          `json:"fixture_id"`
	Bookmakers []BookmakerOdds `json:"bookmakers"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type BookmakerOdds struct {
	ID   int          `json:"id"`
	Name string       `json:"name"`
	Bets []MarketOdds `json:"bets"`
}

// MarketOdds is one bookmaker market, e.g. "Goals Over/Under".
type MarketOdds struct {
	ID     int         `json:"id"`
	Name   string      `json:"name"`
	Values []OddsValue `json:"values"`
}

// OddsValue keeps the raw strings as delivered: Value "Over 2.5", Odd "1.90".
type OddsValue struct {
	Value string `json:"value"`
	Odd   string `json:"odd"`
}

// Side of a two-way over/under market.
type Side string

const (
	SideOver  Side = "over"
	SideUnder Side = "under"
)

// Opposite returns the other side of the market.
func (s Side) Opposite() Side {
	if s == SideOver {
		return SideUnder
	}
	return SideOver
}
