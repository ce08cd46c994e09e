package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vodeneev/ticketedge/internal/pkg/models"
)

func over(line float64) *Pick  { return &Pick{Side: models.SideOver, Line: line} }
func under(line float64) *Pick { return &Pick{Side: models.SideUnder, Line: line} }

func goalsRuleset(t *testing.T) *Ruleset {
	t.Helper()
	rs := &Ruleset{
		Version: "test-1",
		Combine: Combine{Method: CombineSum},
		Categories: map[models.Category]*Table{
			models.CategoryGoals: {Entries: []Entry{
				{Range: Range{Lo: 0, Hi: 1.0}, Pick: under(1.5)},
				{Range: Range{Lo: 1.0, Hi: 2.0}, Pick: under(2.5)},
				{Range: Range{Lo: 2.0, Hi: 2.7}, Pick: over(1.5)},
				{Range: Range{Lo: 2.7, Hi: 2.9}, Pick: nil},
				{Range: Range{Lo: 2.9, Hi: 3.6}, Pick: over(2.5)},
				{Range: Range{GTE: true}, Pick: over(3.5)},
			}},
		},
	}
	require.NoError(t, rs.Validate())
	return rs
}

func TestPickLine(t *testing.T) {
	rs := goalsRuleset(t)

	tests := []struct {
		name  string
		value float64
		want  *Pick
	}{
		{"inside lowest range", 0.4, under(1.5)},
		{"shared boundary goes to upper range", 2.0, over(1.5)},
		{"boundary 1.0 goes to upper range", 1.0, under(2.5)},
		{"explicit no-bet zone", 2.8, nil},
		{"no-bet zone upper edge goes to next range", 2.9, over(2.5)},
		{"exactly at gte threshold", 3.6, over(3.5)},
		{"above all finite ranges", 7.2, over(3.5)},
		{"below lowest range", -0.1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PickLine(rs, models.CategoryGoals, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPickLine_IsPure(t *testing.T) {
	rs := goalsRuleset(t)
	first, err := PickLine(rs, models.CategoryGoals, 2.35)
	require.NoError(t, err)
	first.Line = 99 // callers mutating a result must not leak into the table

	for i := 0; i < 10; i++ {
		got, err := PickLine(rs, models.CategoryGoals, 2.35)
		require.NoError(t, err)
		assert.Equal(t, over(1.5), got)
	}
}

func TestPickLine_UnknownCategory(t *testing.T) {
	rs := goalsRuleset(t)
	_, err := PickLine(rs, models.CategoryCorners, 9)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCategory))
	assert.Contains(t, err.Error(), "test-1")
}

func TestPickLine_GTEUsesMaxFiniteBoundRegardlessOfOrder(t *testing.T) {
	rs := &Ruleset{
		Version: "unordered",
		Categories: map[models.Category]*Table{
			models.CategoryCards: {Entries: []Entry{
				{Range: Range{GTE: true}, Pick: over(5.5)},
				{Range: Range{Lo: 3, Hi: 6}, Pick: over(3.5)},
				{Range: Range{Lo: 0, Hi: 3}, Pick: under(4.5)},
			}},
		},
	}
	require.NoError(t, rs.Validate())

	got, err := PickLine(rs, models.CategoryCards, 6)
	require.NoError(t, err)
	// scanning from the end reaches [3,6] before the gte row
	assert.Equal(t, over(3.5), got)

	got, err = PickLine(rs, models.CategoryCards, 6.01)
	require.NoError(t, err)
	assert.Equal(t, over(5.5), got)
}

func TestPickFromCombined_UsesVersionFormula(t *testing.T) {
	reg, err := LoadFile("../../../configs/rulesets.yaml")
	require.NoError(t, err)

	v1, err := reg.Resolve("2025.03-r1")
	require.NoError(t, err)
	v2, err := reg.Resolve("2025.09-r2")
	require.NoError(t, err)

	// same team inputs, different formulas per version
	pick, combined, err := PickFromCombined(v1, models.CategoryGoals, 1.4, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 1.175, combined, 1e-9)
	assert.Equal(t, over(1.5), pick)

	pick, combined, err = PickFromCombined(v2, models.CategoryGoals, 1.4, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 2.35, combined, 1e-9)
	assert.Equal(t, over(1.5), pick)

	// fouls overrides the ruleset formula with a weighted mean
	_, combined, err = PickFromCombined(v2, models.CategoryFouls, 12, 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.55*12+0.45*10, combined, 1e-9)
}

func TestScenario_Goals235(t *testing.T) {
	reg, err := LoadFile("../../../configs/rulesets.yaml")
	require.NoError(t, err)

	pick, err := PickLine(reg.Default(), models.CategoryGoals, 2.35)
	require.NoError(t, err)
	require.NotNil(t, pick)
	assert.Equal(t, models.SideOver, pick.Side)
	assert.Equal(t, 1.5, pick.Line)
}

func TestCombine_Apply(t *testing.T) {
	assert.Equal(t, 5.0, Combine{Method: CombineSum}.Apply(2, 3))
	assert.Equal(t, 2.5, Combine{Method: CombineAvg}.Apply(2, 3))
	assert.InDelta(t, 2.2, Combine{Method: CombineWeighted, HomeWeight: 0.8}.Apply(2, 3), 1e-9)
}
