// Package edge turns bookmaker totals into devigged line pairs and ranks
// them against model probabilities.
package edge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Vodeneev/ticketedge/internal/pkg/models"
)

var valueRe = regexp.MustCompile(`(?i)^\s*(over|under|o|u)\s*([0-9]+(?:[.,][0-9]+)?)\s*$`)

// ParseValue reads a market value such as "Over 2.5", "under 3" or "o9.5".
func ParseValue(raw string) (models.Side, float64, error) {
	m := valueRe.FindStringSubmatch(raw)
	if m == nil {
		return "", 0, fmt.Errorf("unparseable market value %q", raw)
	}
	side := models.SideOver
	if strings.HasPrefix(strings.ToLower(m[1]), "u") {
		side = models.SideUnder
	}
	line, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", "."), 64)
	if err != nil {
		return "", 0, fmt.Errorf("market value %q: %w", raw, err)
	}
	return side, line, nil
}

// DefaultAliases maps categories to the market names bookmakers use for them.
var DefaultAliases = map[models.Category][]string{
	models.CategoryGoals:    {"Goals Over/Under", "Over/Under", "Total Goals"},
	models.CategoryCards:    {"Cards Over/Under", "Total Cards", "Bookings Over/Under"},
	models.CategoryCorners:  {"Corners Over Under", "Corners Over/Under", "Total Corners"},
	models.CategoryFouls:    {"Fouls Over/Under", "Total Fouls"},
	models.CategoryOffsides: {"Offsides Over/Under", "Total Offsides"},
}

// Aliases resolves a bookmaker market name to a category, case-insensitively.
type Aliases map[string]models.Category

// NewAliases builds the lookup from DefaultAliases plus configured extras
// keyed by category name.
func NewAliases(extra map[string][]string) Aliases {
	a := make(Aliases)
	for cat, names := range DefaultAliases {
		for _, n := range names {
			a[normalizeName(n)] = cat
		}
	}
	for cat, names := range extra {
		for _, n := range names {
			a[normalizeName(n)] = models.Category(cat)
		}
	}
	return a
}

// Category returns the category for a market name.
func (a Aliases) Category(marketName string) (models.Category, bool) {
	c, ok := a[normalizeName(marketName)]
	return c, ok
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
