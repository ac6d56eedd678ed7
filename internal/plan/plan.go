package plan

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lioth/strataforge/internal/config"
)

// Cell is one (category, format) stratum of the plan with its exact count.
type Cell struct {
	Category string
	Format   string
	Count    int
}

// Plan is an allocation of the run target across category and format strata.
// Counts are exact integers summing to the target by construction, and the
// plan is immutable after Build.
type Plan struct {
	target         int
	cells          []Cell
	categoryTotals map[string]int
}

// Build reconciles fractional weights into exact integer counts using
// largest-remainder rounding applied in two levels: the target across
// categories, then each category's total across formats. Rounding ties go to
// the larger weight, then to the lexicographically smaller name, so identical
// inputs always produce the identical plan.
func Build(target int, categories, formats map[string]float64) (*Plan, error) {
	if target < 0 {
		return nil, &config.ConfigError{Field: "run.target", Reason: fmt.Sprintf("must not be negative (got %d)", target)}
	}
	if err := checkWeights("weights.categories", categories); err != nil {
		return nil, err
	}
	if err := checkWeights("weights.formats", formats); err != nil {
		return nil, err
	}

	categoryTotals := apportion(target, categories)

	p := &Plan{
		target:         target,
		categoryTotals: categoryTotals,
		cells:          make([]Cell, 0, len(categories)*len(formats)),
	}
	formatNames := sortedKeys(formats)
	for _, cat := range sortedKeys(categories) {
		formatCounts := apportion(categoryTotals[cat], formats)
		for _, f := range formatNames {
			p.cells = append(p.cells, Cell{Category: cat, Format: f, Count: formatCounts[f]})
		}
	}
	return p, nil
}

func checkWeights(field string, weights map[string]float64) error {
	if len(weights) == 0 {
		return &config.ConfigError{Field: field, Reason: "at least one entry is required"}
	}
	for name, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return &config.ConfigError{Field: field, Reason: fmt.Sprintf("weight for %q must be finite", name)}
		}
		if w <= 0 {
			return &config.ConfigError{Field: field, Reason: fmt.Sprintf("weight for %q must be positive (got %g)", name, w)}
		}
	}
	return nil
}

// apportion splits total into integer counts proportional to weights. Every
// name first gets the floor of its exact share; leftover units go to the
// largest remainders, ties broken by larger weight then smaller name.
func apportion(total int, weights map[string]float64) map[string]int {
	names := sortedKeys(weights)
	var sum float64
	for _, w := range weights {
		sum += w
	}

	type share struct {
		name      string
		weight    float64
		remainder float64
	}

	counts := make(map[string]int, len(names))
	shares := make([]share, 0, len(names))
	allocated := 0
	for _, name := range names {
		exact := float64(total) * weights[name] / sum
		whole := int(exact)
		counts[name] = whole
		allocated += whole
		shares = append(shares, share{name: name, weight: weights[name], remainder: exact - float64(whole)})
	}

	sort.Slice(shares, func(i, j int) bool {
		if shares[i].remainder != shares[j].remainder {
			return shares[i].remainder > shares[j].remainder
		}
		if shares[i].weight != shares[j].weight {
			return shares[i].weight > shares[j].weight
		}
		return shares[i].name < shares[j].name
	})

	for i := 0; i < total-allocated; i++ {
		counts[shares[i%len(shares)].name]++
	}
	return counts
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Target returns the total number of examples the plan allocates.
func (p *Plan) Target() int {
	return p.target
}

// Cells returns every (category, format) stratum in canonical order:
// categories sorted lexicographically, formats sorted within each category.
// Zero-count cells are included.
func (p *Plan) Cells() []Cell {
	out := make([]Cell, len(p.cells))
	copy(out, p.cells)
	return out
}

// CellCount returns the allocated count for one stratum, 0 if absent.
func (p *Plan) CellCount(category, format string) int {
	for _, c := range p.cells {
		if c.Category == category && c.Format == format {
			return c.Count
		}
	}
	return 0
}

// CategoryTotals returns the per-category allocation.
func (p *Plan) CategoryTotals() map[string]int {
	out := make(map[string]int, len(p.categoryTotals))
	for k, v := range p.categoryTotals {
		out[k] = v
	}
	return out
}

// String renders the plan as the distribution table printed before a run.
func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-28s %-16s %8s\n", "CATEGORY", "FORMAT", "COUNT")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 54))
	lastCategory := ""
	for _, c := range p.cells {
		name := c.Category
		if name == lastCategory {
			name = ""
		} else {
			lastCategory = c.Category
		}
		fmt.Fprintf(&b, "%-28s %-16s %8d\n", name, c.Format, c.Count)
	}
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 54))
	fmt.Fprintf(&b, "%-28s %-16s %8d\n", "TOTAL", "", p.target)
	return b.String()
}
