// Package rules maps combined team statistics to recommended over/under
// lines using versioned, ordered range tables.
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/Vodeneev/ticketedge/internal/pkg/models"
)

// ErrUnknownCategory is returned when a ruleset has no table for the requested category.
var ErrUnknownCategory = errors.New("rules: unknown category")

// Pick is a recommended side and line.
type Pick struct {
	Side models.Side `yaml:"side" json:"side"`
	Line float64     `yaml:"line" json:"line"`
}

// Range is either a closed interval [Lo, Hi] or the "gte" sentinel.
type Range struct {
	Lo, Hi float64
	GTE    bool
}

func (r Range) String() string {
	if r.GTE {
		return "gte"
	}
	return fmt.Sprintf("[%s, %s]", strconv.FormatFloat(r.Lo, 'f', -1, 64), strconv.FormatFloat(r.Hi, 'f', -1, 64))
}

// UnmarshalYAML accepts `gte` or a two-element sequence.
func (r *Range) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value != "gte" {
			return fmt.Errorf("line %d: range scalar must be \"gte\", got %q", node.Line, node.Value)
		}
		*r = Range{GTE: true}
		return nil
	case yaml.SequenceNode:
		var bounds []float64
		if err := node.Decode(&bounds); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		if len(bounds) != 2 {
			return fmt.Errorf("line %d: range needs exactly two bounds, got %d", node.Line, len(bounds))
		}
		*r = Range{Lo: bounds[0], Hi: bounds[1]}
		return nil
	default:
		return fmt.Errorf("line %d: unsupported range node", node.Line)
	}
}

func (r Range) MarshalJSON() ([]byte, error) {
	if r.GTE {
		return json.Marshal("gte")
	}
	return json.Marshal([2]float64{r.Lo, r.Hi})
}

// Entry is one row of a category table. A nil Pick marks a no-bet zone.
type Entry struct {
	Range Range `yaml:"range" json:"range"`
	Pick  *Pick `yaml:"pick" json:"pick"`
}

// CombineMethod names how two teams' rates become one combined value.
type CombineMethod string

const (
	CombineSum      CombineMethod = "sum"
	CombineAvg      CombineMethod = "avg"
	CombineWeighted CombineMethod = "weighted"
)

// Combine is the combination formula that travels with a ruleset version.
type Combine struct {
	Method     CombineMethod `yaml:"method" json:"method"`
	HomeWeight float64       `yaml:"home_weight,omitempty" json:"home_weight,omitempty"`
}

// Apply combines the home and away rates.
func (c Combine) Apply(home, away float64) float64 {
	switch c.Method {
	case CombineAvg:
		return (home + away) / 2
	case CombineWeighted:
		return c.HomeWeight*home + (1-c.HomeWeight)*away
	default:
		return home + away
	}
}

func (c Combine) validate() error {
	switch c.Method {
	case CombineSum, CombineAvg:
		return nil
	case CombineWeighted:
		if c.HomeWeight < 0 || c.HomeWeight > 1 || math.IsNaN(c.HomeWeight) {
			return fmt.Errorf("home_weight must be in [0,1], got %v", c.HomeWeight)
		}
		return nil
	default:
		return fmt.Errorf("unknown combine method %q", c.Method)
	}
}

// Table is a category's ordered entries with an optional combine override.
type Table struct {
	Combine *Combine `yaml:"combine,omitempty" json:"combine,omitempty"`
	Entries []Entry  `yaml:"entries" json:"entries"`
}

// UnmarshalYAML accepts a bare entry list or a mapping with combine + entries.
func (t *Table) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		t.Combine = nil
		return node.Decode(&t.Entries)
	}
	type plain Table
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = Table(p)
	return nil
}

// Ruleset is one immutable, version-tagged set of category tables.
type Ruleset struct {
	Version     string                     `yaml:"version" json:"version"`
	Description string                     `yaml:"description,omitempty" json:"description,omitempty"`
	Combine     Combine                    `yaml:"combine" json:"combine"`
	Categories  map[models.Category]*Table `yaml:"categories" json:"categories"`
}

// CombineFor returns the formula used for a category.
func (rs *Ruleset) CombineFor(category models.Category) Combine {
	if t, ok := rs.Categories[category]; ok && t.Combine != nil {
		return *t.Combine
	}
	return rs.Combine
}

// Validate checks the ruleset is well formed.
func (rs *Ruleset) Validate() error {
	if rs.Version == "" {
		return errors.New("ruleset version is required")
	}
	if rs.Combine.Method == "" {
		rs.Combine.Method = CombineSum
	}
	if err := rs.Combine.validate(); err != nil {
		return fmt.Errorf("ruleset %s: %w", rs.Version, err)
	}
	if len(rs.Categories) == 0 {
		return fmt.Errorf("ruleset %s: no categories", rs.Version)
	}
	for cat, t := range rs.Categories {
		if t == nil || len(t.Entries) == 0 {
			return fmt.Errorf("ruleset %s: category %s has no entries", rs.Version, cat)
		}
		if t.Combine != nil {
			if err := t.Combine.validate(); err != nil {
				return fmt.Errorf("ruleset %s: category %s: %w", rs.Version, cat, err)
			}
		}
		finite := false
		for i, e := range t.Entries {
			if !e.Range.GTE {
				finite = true
				if e.Range.Lo > e.Range.Hi || !isFinite(e.Range.Lo) || !isFinite(e.Range.Hi) {
					return fmt.Errorf("ruleset %s: %s entry %d: invalid range %s", rs.Version, cat, i, e.Range)
				}
			}
			if e.Pick != nil {
				if e.Pick.Side != models.SideOver && e.Pick.Side != models.SideUnder {
					return fmt.Errorf("ruleset %s: %s entry %d: unknown side %q", rs.Version, cat, i, e.Pick.Side)
				}
				if e.Pick.Line <= 0 || !isFinite(e.Pick.Line) {
					return fmt.Errorf("ruleset %s: %s entry %d: line must be finite and > 0", rs.Version, cat, i)
				}
			}
		}
		if !finite {
			return fmt.Errorf("ruleset %s: %s has only gte entries", rs.Version, cat)
		}
	}
	return nil
}

func isFinite(v float64) bool { return !math.IsInf(v, 0) && !math.IsNaN(v) }

// Fingerprint hashes the ruleset contents so cached picks can detect an
// edited table that kept its version tag. Validate guarantees every number
// is finite, so the JSON encoding cannot fail for a loaded ruleset.
func (rs *Ruleset) Fingerprint() string {
	// json.Marshal sorts map keys, so the encoding is stable.
	b, err := json.Marshal(rs)
	if err != nil {
		b = []byte(fmt.Sprintf("%s:%v", rs.Version, err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
