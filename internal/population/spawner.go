// Package population builds randomly populated neighborhoods: two-type
// split populations, continuous age populations and noise-clustered layouts.
package population

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/dustin/go-humanize"

	"github.com/talgya/schelling/internal/agents"
	"github.com/talgya/schelling/internal/neighborhood"
)

// ErrInvalidSplit is returned when type split fractions are negative or
// add up to more than 1.0.
var ErrInvalidSplit = errors.New("split values must add to at most 1.0")

// SplitConfig describes a two-type discrete population.
type SplitConfig struct {
	Dimension  int
	Preference float64
	TypeA      string
	TypeB      string
	SplitA     float64 // Probability a lot holds TypeA
	SplitB     float64 // Probability a lot holds TypeB; the rest stay empty
	ViewRadius int
}

// DefaultSplitConfig returns the classic X/O setup: half X, 40% O, 10% empty.
func DefaultSplitConfig(dimension int) SplitConfig {
	return SplitConfig{
		Dimension:  dimension,
		Preference: 0.4,
		TypeA:      "X",
		TypeB:      "O",
		SplitA:     0.5,
		SplitB:     0.4,
		ViewRadius: agents.DefaultViewRadius,
	}
}

// Validate checks the split fractions.
func (c SplitConfig) Validate() error {
	if c.SplitA < 0 || c.SplitB < 0 {
		return fmt.Errorf("%w: negative split (%v, %v)", ErrInvalidSplit, c.SplitA, c.SplitB)
	}
	if c.SplitA+c.SplitB > 1.0 {
		return fmt.Errorf("%w: %v + %v", ErrInvalidSplit, c.SplitA, c.SplitB)
	}
	if c.TypeA == c.TypeB {
		return fmt.Errorf("type labels must differ, both are %q", c.TypeA)
	}
	return nil
}

// AgeConfig describes a continuous population whose type is an age.
type AgeConfig struct {
	Dimension  int
	Populated  float64 // Probability a lot is occupied
	Preference float64
	Average    float64 // Mode of the triangular age distribution
	Min        float64
	Max        float64
	Spread     float64 // Each agent accepts ages within ±Spread of its own
	ViewRadius int
}

// DefaultAgeConfig returns a 95% populated neighborhood of ages 20–90.
func DefaultAgeConfig(dimension int) AgeConfig {
	return AgeConfig{
		Dimension:  dimension,
		Populated:  0.95,
		Preference: 0.3,
		Average:    45,
		Min:        20,
		Max:        90,
		Spread:     5,
		ViewRadius: agents.DefaultViewRadius,
	}
}

// Validate checks the age distribution parameters.
func (c AgeConfig) Validate() error {
	if c.Populated < 0 || c.Populated > 1 {
		return fmt.Errorf("populated fraction %v outside [0,1]", c.Populated)
	}
	if !(c.Min <= c.Average && c.Average <= c.Max) || c.Min == c.Max {
		return fmt.Errorf("age distribution needs min <= average <= max with min < max, got %v/%v/%v",
			c.Min, c.Average, c.Max)
	}
	if c.Spread < 0 {
		return fmt.Errorf("negative age spread %v", c.Spread)
	}
	return nil
}

// Spawner populates neighborhoods from a seeded random source.
type Spawner struct {
	rng  *rand.Rand
	seed int64
}

// NewSpawner creates a spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:  rand.New(rand.NewSource(seed + 300)),
		seed: seed,
	}
}

// LikesSame fills a grid with similarity-seeking agents of two types.
func (s *Spawner) LikesSame(cfg SplitConfig, opts ...neighborhood.Option) (*neighborhood.Grid, error) {
	return s.split(cfg, agents.NewLikesSame, opts)
}

// LikesOthers fills a grid with diversity-seeking agents of two types.
func (s *Spawner) LikesOthers(cfg SplitConfig, opts ...neighborhood.Option) (*neighborhood.Grid, error) {
	return s.split(cfg, agents.NewLikesOthers, opts)
}

type discreteCtor func(agents.Type, float64, ...agents.Option) (*agents.Agent, error)

func (s *Spawner) split(cfg SplitConfig, ctor discreteCtor, opts []neighborhood.Option) (*neighborhood.Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g, err := neighborhood.New(cfg.Dimension, opts...)
	if err != nil {
		return nil, err
	}

	for x := 0; x < cfg.Dimension; x++ {
		for y := 0; y < cfg.Dimension; y++ {
			pick := s.rng.Float64()
			var label string
			switch {
			case pick <= cfg.SplitA:
				label = cfg.TypeA
			case pick <= cfg.SplitA+cfg.SplitB:
				label = cfg.TypeB
			default:
				continue
			}
			a, err := ctor(agents.Label(label), cfg.Preference, agents.At(x, y), agents.WithViewRadius(cfg.ViewRadius))
			if err != nil {
				return nil, err
			}
			if err := g.Place(a); err != nil {
				return nil, err
			}
		}
	}

	logPopulated(g)
	return g, nil
}

// Ages fills a grid with continuous similarity-seeking agents whose type is
// an integer age drawn from a triangular distribution.
func (s *Spawner) Ages(cfg AgeConfig, opts ...neighborhood.Option) (*neighborhood.Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g, err := neighborhood.New(cfg.Dimension, opts...)
	if err != nil {
		return nil, err
	}

	for x := 0; x < cfg.Dimension; x++ {
		for y := 0; y < cfg.Dimension; y++ {
			if s.rng.Float64() >= cfg.Populated {
				continue
			}
			age := math.Floor(s.triangular(cfg.Min, cfg.Max, cfg.Average))
			a, err := agents.NewContinuousLikesSame(age, age-cfg.Spread, age+cfg.Spread, cfg.Preference,
				agents.At(x, y), agents.WithViewRadius(cfg.ViewRadius))
			if err != nil {
				return nil, err
			}
			if err := g.Place(a); err != nil {
				return nil, err
			}
		}
	}

	logPopulated(g)
	return g, nil
}

// triangular samples a triangular distribution on [low, high] with the given
// mode by inverting its CDF.
func (s *Spawner) triangular(low, high, mode float64) float64 {
	u := s.rng.Float64()
	c := (mode - low) / (high - low)
	if u > c {
		u = 1 - u
		c = 1 - c
		low, high = high, low
	}
	return low + (high-low)*math.Sqrt(u*c)
}

func logPopulated(g *neighborhood.Grid) {
	slog.Info("neighborhood populated",
		"dimension", g.Dimension(),
		"agents", humanize.Comma(int64(len(g.Agents))),
		"empty", humanize.Comma(int64(g.Torus.CellCount()-len(g.Agents))),
	)
}
