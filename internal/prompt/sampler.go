package prompt

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/lioth/strataforge/internal/config"
	"github.com/lioth/strataforge/pkg/models"
)

// Sampler draws the randomized per-task variables: cosmetic prompt
// ingredients plus the complexity level and perspective. One seeded source
// behind a mutex serves all workers, so a fixed seed gives a reproducible
// draw sequence while plan counts stay untouched by any redraw.
type Sampler struct {
	mu    sync.Mutex
	rng   *rand.Rand
	pools config.PoolsConfig

	complexityNames  []string
	complexityW      map[string]float64
	perspectiveNames []string
	perspectiveW     map[string]float64
	categoryNames    []string
}

// NewSampler builds a sampler from the configured pools and optional
// complexity/perspective weights. Seed -1 means time-based.
func NewSampler(cfg *config.Config) *Sampler {
	seed := cfg.Run.Seed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}

	s := &Sampler{
		rng:          rand.New(rand.NewSource(seed)),
		pools:        cfg.Pools,
		complexityW:  cfg.Weights.Complexity,
		perspectiveW: cfg.Weights.Perspectives,
	}

	if len(s.complexityW) > 0 {
		s.complexityNames = sortedWeightKeys(s.complexityW)
	} else {
		for name := range cfg.Pools.Complexity {
			s.complexityNames = append(s.complexityNames, name)
		}
		sort.Strings(s.complexityNames)
	}

	if len(s.perspectiveW) > 0 {
		s.perspectiveNames = sortedWeightKeys(s.perspectiveW)
	} else {
		s.perspectiveNames = cfg.Pools.Perspectives
	}

	for name := range cfg.Pools.Categories {
		s.categoryNames = append(s.categoryNames, name)
	}
	sort.Strings(s.categoryNames)

	return s
}

// Draw samples a fresh set of variables for one task slot. Chain-format
// tasks additionally get two secondary categories distinct from the primary
// for the sequence steps.
func (s *Sampler) Draw(category, format string) (models.CosmeticVariables, string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars := models.CosmeticVariables{
		Subject:        s.pick(s.pools.Subjects),
		Domain:         s.pick(s.pools.Domains),
		Trigger:        s.pick(s.pools.Triggers),
		EmotionalState: s.pick(s.pools.EmotionalStates),
		LanguageStyle:  s.pick(s.pools.LanguageStyles),
		UniqueAngle:    s.pick(s.pools.UniqueAngles),
	}
	if format == "chain" {
		vars.SecondaryCategories = s.drawSecondaries(category)
	}

	complexity := s.weighted(s.complexityNames, s.complexityW)
	perspective := s.weighted(s.perspectiveNames, s.perspectiveW)
	return vars, complexity, perspective
}

func (s *Sampler) pick(pool []string) string {
	return pool[s.rng.Intn(len(pool))]
}

// drawSecondaries picks two categories other than the primary. With a pool
// too small to supply two distinct others it repeats what is available.
func (s *Sampler) drawSecondaries(primary string) []string {
	others := make([]string, 0, len(s.categoryNames))
	for _, name := range s.categoryNames {
		if name != primary {
			others = append(others, name)
		}
	}
	if len(others) == 0 {
		return []string{primary, primary}
	}
	first := others[s.rng.Intn(len(others))]
	if len(others) == 1 {
		return []string{first, first}
	}
	second := first
	for second == first {
		second = others[s.rng.Intn(len(others))]
	}
	return []string{first, second}
}

// weighted picks a name by weight, or uniformly when no weights are set.
func (s *Sampler) weighted(names []string, weights map[string]float64) string {
	if len(weights) == 0 {
		return names[s.rng.Intn(len(names))]
	}
	var total float64
	for _, name := range names {
		total += weights[name]
	}
	x := s.rng.Float64() * total
	for _, name := range names {
		x -= weights[name]
		if x < 0 {
			return name
		}
	}
	return names[len(names)-1]
}

func sortedWeightKeys(weights map[string]float64) []string {
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
