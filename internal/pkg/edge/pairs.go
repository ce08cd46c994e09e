package edge

import (
	"github.com/Vodeneev/ticketedge/internal/pkg/models"
	"github.com/Vodeneev/ticketedge/internal/pkg/oddsmath"
)

// LinePair is a complete over/under quote from one bookmaker.
type LinePair struct {
	Bookmaker string          `json:"bookmaker"`
	Market    models.Category `json:"market"`
	Line      float64         `json:"line"`
	OverOdds  float64         `json:"over_odds"`
	UnderOdds float64         `json:"under_odds"`
}

// Odds returns the price for a side.
func (p LinePair) Odds(s models.Side) float64 {
	if s == models.SideOver {
		return p.OverOdds
	}
	return p.UnderOdds
}

// ExtractStats counts what ExtractPairs saw and dropped.
type ExtractStats struct {
	Markets   int // markets matched to a category
	Values    int
	Malformed int // values or prices that could not be parsed
	OneSided  int // lines quoted on one side only
}

type halfPair struct {
	line        float64
	over, under float64
}

// ExtractPairs groups every bookmaker's totals into over/under pairs keyed by
// line. Unknown markets are ignored, malformed values are skipped and counted,
// and one-sided lines are dropped. Output follows payload order.
func ExtractPairs(payload models.OddsPayload, aliases Aliases) ([]LinePair, ExtractStats) {
	var (
		out   []LinePair
		stats ExtractStats
	)
	for _, bm := range payload.Bookmakers {
		for _, market := range bm.Bets {
			cat, ok := aliases.Category(market.Name)
			if !ok {
				continue
			}
			stats.Markets++

			byLine := make(map[string]*halfPair)
			var order []string
			for _, v := range market.Values {
				stats.Values++
				side, line, err := ParseValue(v.Value)
				if err != nil {
					stats.Malformed++
					continue
				}
				odds, err := oddsmath.ParseOdds(v.Odd)
				if err != nil {
					stats.Malformed++
					continue
				}
				key := models.LineKey(line)
				hp, ok := byLine[key]
				if !ok {
					hp = &halfPair{line: line}
					byLine[key] = hp
					order = append(order, key)
				}
				// first quote per side wins
				if side == models.SideOver && hp.over == 0 {
					hp.over = odds
				} else if side == models.SideUnder && hp.under == 0 {
					hp.under = odds
				}
			}

			for _, key := range order {
				hp := byLine[key]
				if hp.over == 0 || hp.under == 0 {
					stats.OneSided++
					continue
				}
				out = append(out, LinePair{
					Bookmaker: bm.Name,
					Market:    cat,
					Line:      hp.line,
					OverOdds:  hp.over,
					UnderOdds: hp.under,
				})
			}
		}
	}
	return out, stats
}

// BestPrice is the highest quote for a market, line and side across bookmakers.
type BestPrice struct {
	Market    models.Category `json:"market"`
	Line      float64         `json:"line"`
	Side      models.Side     `json:"side"`
	Odds      float64         `json:"odds"`
	Bookmaker string          `json:"bookmaker"`
}

// BestPrices returns the best price per market/line/side, keyed by
// market|line|side.
func BestPrices(pairs []LinePair) map[string]BestPrice {
	out := make(map[string]BestPrice)
	for _, p := range pairs {
		for _, side := range []models.Side{models.SideOver, models.SideUnder} {
			key := PriceKey(p.Market, p.Line, side)
			odds := p.Odds(side)
			if cur, ok := out[key]; ok && cur.Odds >= odds {
				continue
			}
			out[key] = BestPrice{Market: p.Market, Line: p.Line, Side: side, Odds: odds, Bookmaker: p.Bookmaker}
		}
	}
	return out
}

// PriceKey is the BestPrices map key.
func PriceKey(market models.Category, line float64, side models.Side) string {
	return string(market) + "|" + models.LineKey(line) + "|" + string(side)
}
