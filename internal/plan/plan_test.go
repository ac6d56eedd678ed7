package plan

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/lioth/strataforge/internal/config"
)

func TestBuildReconciliation(t *testing.T) {
	// N=10 with an even category split and a 70/30 format split: rounding
	// leaves one leftover unit per category, which must go to the heavier
	// format, not the alphabetically first one.
	p, err := Build(10,
		map[string]float64{"A": 0.5, "B": 0.5},
		map[string]float64{"single": 0.7, "chain": 0.3},
	)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := map[string]int{
		"A/single": 4, "A/chain": 1,
		"B/single": 4, "B/chain": 1,
	}
	for _, c := range p.Cells() {
		if got := want[c.Category+"/"+c.Format]; c.Count != got {
			t.Errorf("cell %s/%s = %d, want %d", c.Category, c.Format, c.Count, got)
		}
	}
	if p.Target() != 10 {
		t.Errorf("Target() = %d, want 10", p.Target())
	}
}

func TestBuildExactSums(t *testing.T) {
	weightSets := []struct {
		name       string
		categories map[string]float64
		formats    map[string]float64
	}{
		{
			name:       "even split",
			categories: map[string]float64{"a": 1, "b": 1, "c": 1},
			formats:    map[string]float64{"x": 1, "y": 1},
		},
		{
			name:       "skewed",
			categories: map[string]float64{"a": 0.61, "b": 0.22, "c": 0.17},
			formats:    map[string]float64{"x": 0.9, "y": 0.07, "z": 0.03},
		},
		{
			name:       "unnormalized",
			categories: map[string]float64{"a": 3, "b": 7, "c": 11, "d": 2},
			formats:    map[string]float64{"x": 5, "y": 1},
		},
	}
	targets := []int{0, 1, 2, 7, 10, 99, 100, 1000, 4501}

	for _, ws := range weightSets {
		t.Run(ws.name, func(t *testing.T) {
			for _, target := range targets {
				p, err := Build(target, ws.categories, ws.formats)
				if err != nil {
					t.Fatalf("Build(target=%d) error = %v", target, err)
				}

				total := 0
				perCategory := make(map[string]int)
				for _, c := range p.Cells() {
					if c.Count < 0 {
						t.Fatalf("negative count in cell %s/%s: %d", c.Category, c.Format, c.Count)
					}
					total += c.Count
					perCategory[c.Category] += c.Count
				}
				if total != target {
					t.Errorf("target=%d: cell counts sum to %d", target, total)
				}
				for cat, sum := range perCategory {
					if sum != p.CategoryTotals()[cat] {
						t.Errorf("target=%d: category %s cells sum to %d, total says %d",
							target, cat, sum, p.CategoryTotals()[cat])
					}
				}
			}
		})
	}
}

func TestBuildDeterministic(t *testing.T) {
	categories := map[string]float64{"noticing": 0.4, "reframing": 0.35, "accepting": 0.25}
	formats := map[string]float64{"single": 0.6, "chain": 0.25, "dialogue": 0.15}

	a, err := Build(137, categories, formats)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	b, err := Build(137, categories, formats)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !reflect.DeepEqual(a.Cells(), b.Cells()) {
		t.Error("identical inputs produced different plans")
	}
}

func TestBuildProportionality(t *testing.T) {
	p, err := Build(4,
		map[string]float64{"a": 3, "b": 1},
		map[string]float64{"x": 1},
	)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := p.CellCount("a", "x"); got != 3 {
		t.Errorf("a/x = %d, want 3", got)
	}
	if got := p.CellCount("b", "x"); got != 1 {
		t.Errorf("b/x = %d, want 1", got)
	}
	if got := p.CellCount("missing", "x"); got != 0 {
		t.Errorf("missing cell = %d, want 0", got)
	}
}

func TestBuildCanonicalOrder(t *testing.T) {
	p, err := Build(12,
		map[string]float64{"zeta": 1, "alpha": 1},
		map[string]float64{"single": 1, "chain": 1},
	)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var got []string
	for _, c := range p.Cells() {
		got = append(got, c.Category+"/"+c.Format)
	}
	want := []string{"alpha/chain", "alpha/single", "zeta/chain", "zeta/single"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("cell order = %v, want %v", got, want)
	}
}

func TestBuildRejectsInvalidWeights(t *testing.T) {
	tests := []struct {
		name       string
		target     int
		categories map[string]float64
		formats    map[string]float64
	}{
		{
			name:       "negative target",
			target:     -1,
			categories: map[string]float64{"a": 1},
			formats:    map[string]float64{"x": 1},
		},
		{
			name:       "empty categories",
			target:     10,
			categories: map[string]float64{},
			formats:    map[string]float64{"x": 1},
		},
		{
			name:       "zero weight",
			target:     10,
			categories: map[string]float64{"a": 0},
			formats:    map[string]float64{"x": 1},
		},
		{
			name:       "negative weight",
			target:     10,
			categories: map[string]float64{"a": 1},
			formats:    map[string]float64{"x": -2},
		},
		{
			name:       "NaN weight",
			target:     10,
			categories: map[string]float64{"a": math.NaN()},
			formats:    map[string]float64{"x": 1},
		},
		{
			name:       "infinite weight",
			target:     10,
			categories: map[string]float64{"a": 1},
			formats:    map[string]float64{"x": math.Inf(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.target, tt.categories, tt.formats)
			if err == nil {
				t.Fatal("Build() accepted invalid input")
			}
			var cfgErr *config.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected *config.ConfigError, got %T", err)
			}
		})
	}
}

func TestBuildZeroTarget(t *testing.T) {
	p, err := Build(0,
		map[string]float64{"a": 1, "b": 2},
		map[string]float64{"x": 1, "y": 1},
	)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for _, c := range p.Cells() {
		if c.Count != 0 {
			t.Errorf("cell %s/%s = %d, want 0", c.Category, c.Format, c.Count)
		}
	}
}

func TestString(t *testing.T) {
	p, err := Build(10,
		map[string]float64{"A": 0.5, "B": 0.5},
		map[string]float64{"single": 0.7, "chain": 0.3},
	)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	out := p.String()
	for _, want := range []string{"CATEGORY", "single", "chain", "TOTAL", "10"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q:\n%s", want, out)
		}
	}
}
