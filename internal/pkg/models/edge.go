package models

import "time"

// Confidence grades a model by how much data backs it.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceMed  Confidence = "med"
	ConfidenceLow  Confidence = "low"
)

// ConfidenceFor grades a model from both teams' sample sizes.
func ConfidenceFor(homeSamples, awaySamples int) Confidence {
	switch {
	case homeSamples >= 5 && awaySamples >= 5:
		return ConfidenceHigh
	case homeSamples >= 3 && awaySamples >= 3:
		return ConfidenceMed
	default:
		return ConfidenceLow
	}
}

// ModelOutput is one modeled over/under probability for a market and line.
type ModelOutput struct {
	Market     Category   `json:"market"`
	Line       float64    `json:"line"`
	ProbOver   float64    `json:"model_prob_over"`
	ProbUnder  float64    `json:"model_prob_under"`
	Confidence Confidence `json:"model_confidence"`
	Rationale  string     `json:"rationale"`
}

// Prob returns the model probability for a side.
func (m ModelOutput) Prob(s Side) float64 {
	if s == SideOver {
		return m.ProbOver
	}
	return m.ProbUnder
}

// EdgeResult is an actionable opportunity where the model beats the devigged book price.
type EdgeResult struct {
	FixtureID    string     `json:"fixture_id,omitempty"`
	Market       Category   `json:"market"`
	Line         float64    `json:"line"`
	Side         Side       `json:"side"`
	ModelProb    float64    `json:"model_prob"`
	BookProb     float64    `json:"book_prob"`
	Edge         float64    `json:"edge"`
	Odds         float64    `json:"odds"`
	Bookmaker    string     `json:"bookmaker"`
	RawOverProb  float64    `json:"raw_over_prob"`
	RawUnderProb float64    `json:"raw_under_prob"`
	Overround    float64    `json:"overround"`
	Confidence   Confidence `json:"model_confidence,omitempty"`
	CalculatedAt time.Time  `json:"calculated_at"`
}

// Key identifies the edge for dedup and caching.
func (e EdgeResult) Key() string {
	return e.FixtureID + "|" + string(e.Market) + "|" + FormatLine(e.Line) + "|" + string(e.Side) + "|" + e.Bookmaker
}

// RulePick is a rule-matrix recommendation for one fixture and category.
type RulePick struct {
	FixtureID      string   `json:"fixture_id,omitempty"`
	Market         Category `json:"market"`
	Combined       float64  `json:"combined"`
	Side           Side     `json:"side"`
	Line           float64  `json:"line"`
	RulesetVersion string   `json:"ruleset_version"`
}

// FixtureAnalysis is the full engine output for one fixture.
type FixtureAnalysis struct {
	Fixture        Fixture       `json:"fixture"`
	RulesetVersion string        `json:"ruleset_version"`
	Models         []ModelOutput `json:"models"`
	Picks          []RulePick    `json:"picks"`
	Edges          []EdgeResult  `json:"edges"`
	Skipped        []string      `json:"skipped,omitempty"` // reasons parts of the analysis are missing
	CalculatedAt   time.Time     `json:"calculated_at"`
}
