package rules

import (
	"fmt"
	"math"

	"github.com/Vodeneev/ticketedge/internal/pkg/models"
)

// PickLine maps a combined value to the category's recommended pick.
//
// Entries are scanned from last to first and the first match wins, so when
// two ranges share a boundary the upper one takes it. A nil pick with a nil
// error means the value is not eligible and the leg must be skipped.
func PickLine(rs *Ruleset, category models.Category, combined float64) (*Pick, error) {
	if rs == nil {
		return nil, fmt.Errorf("rules: nil ruleset")
	}
	table, ok := rs.Categories[category]
	if !ok || table == nil {
		return nil, fmt.Errorf("%w: %q in ruleset %s", ErrUnknownCategory, category, rs.Version)
	}
	if math.IsNaN(combined) {
		return nil, nil
	}

	threshold := gteThreshold(table.Entries)
	for i := len(table.Entries) - 1; i >= 0; i-- {
		e := table.Entries[i]
		if e.Range.GTE {
			if combined >= threshold {
				return clonePick(e.Pick), nil
			}
			continue
		}
		if combined >= e.Range.Lo && combined <= e.Range.Hi {
			return clonePick(e.Pick), nil
		}
	}
	return nil, nil
}

// PickFromCombined combines both teams' rates with the ruleset's formula for
// the category, then looks up the pick. It also returns the combined value.
func PickFromCombined(rs *Ruleset, category models.Category, home, away float64) (*Pick, float64, error) {
	if rs == nil {
		return nil, 0, fmt.Errorf("rules: nil ruleset")
	}
	combined := rs.CombineFor(category).Apply(home, away)
	pick, err := PickLine(rs, category, combined)
	return pick, combined, err
}

// gteThreshold is the largest finite upper bound in the table.
func gteThreshold(entries []Entry) float64 {
	threshold := math.Inf(1)
	found := false
	for _, e := range entries {
		if e.Range.GTE {
			continue
		}
		if !found || e.Range.Hi > threshold {
			threshold = e.Range.Hi
			found = true
		}
	}
	return threshold
}

func clonePick(p *Pick) *Pick {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
