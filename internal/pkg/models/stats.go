package models

import (
	"fmt"
	"time"
)

// Category is a statistical market family shared by rules, models and odds.
type Category string

const (
	CategoryGoals    Category = "goals"
	CategoryCards    Category = "cards"
	CategoryCorners  Category = "corners"
	CategoryFouls    Category = "fouls"
	CategoryOffsides Category = "offsides"
)

// Categories lists every category the engine models, in display order.
var Categories = []Category{CategoryGoals, CategoryCards, CategoryCorners, CategoryFouls, CategoryOffsides}

// Valid reports whether c is one of Categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// IsGoalType reports whether home advantage applies to the category.
func (c Category) IsGoalType() bool {
	return c == CategoryGoals
}

// MaxSampleSize is the length of the rolling match window behind TeamStats.
const MaxSampleSize = 5

// TeamStats is an immutable snapshot of a team's rolling per-match means.
type TeamStats struct {
	TeamID     string    `json:"team_id"`
	Goals      float64   `json:"goals"`
	Cards      float64   `json:"cards"`
	Corners    float64   `json:"corners"`
	Fouls      float64   `json:"fouls"`
	Offsides   float64   `json:"offsides"`
	SampleSize int       `json:"sample_size"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Rate returns the team's mean for a category.
func (s TeamStats) Rate(c Category) (float64, error) {
	switch c {
	case CategoryGoals:
		return s.Goals, nil
	case CategoryCards:
		return s.Cards, nil
	case CategoryCorners:
		return s.Corners, nil
	case CategoryFouls:
		return s.Fouls, nil
	case CategoryOffsides:
		return s.Offsides, nil
	default:
		return 0, fmt.Errorf("unknown category %q", c)
	}
}

// SetRate overwrites the team's mean for a category.
func (s *TeamStats) SetRate(c Category, v float64) error {
	switch c {
	case CategoryGoals:
		s.Goals = v
	case CategoryCards:
		s.Cards = v
	case CategoryCorners:
		s.Corners = v
	case CategoryFouls:
		s.Fouls = v
	case CategoryOffsides:
		s.Offsides = v
	default:
		return fmt.Errorf("unknown category %q", c)
	}
	return nil
}

// Samples returns SampleSize clamped to [0, MaxSampleSize].
func (s TeamStats) Samples() int {
	if s.SampleSize < 0 {
		return 0
	}
	if s.SampleSize > MaxSampleSize {
		return MaxSampleSize
	}
	return s.SampleSize
}

// Fixture is one scheduled match between two teams.
type Fixture struct {
	ID         string    `json:"id"`
	League     string    `json:"league"`
	HomeTeamID string    `json:"home_team_id"`
	AwayTeamID string    `json:"away_team_id"`
	HomeTeam   string    `json:"home_team"`
	AwayTeam   string    `json:"away_team"`
	Kickoff    time.Time `json:"kickoff"`
}

// Name is the human-readable "Home vs Away" label.
func (f Fixture) Name() string {
	return f.HomeTeam + " vs " + f.AwayTeam
}
