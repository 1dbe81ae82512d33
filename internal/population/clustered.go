package population

import (
	"fmt"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/schelling/internal/agents"
	"github.com/talgya/schelling/internal/neighborhood"
)

// ClusterConfig describes a two-type population whose initial layout is
// already lumpy: simplex noise shifts the odds of TypeA from lot to lot.
type ClusterConfig struct {
	SplitConfig
	Scale   float64 // Noise frequency per lot; smaller means larger patches
	Bias    float64 // How far noise may push the TypeA odds, 0..1
	Octaves int
}

// DefaultClusterConfig returns the default split with moderate patches.
func DefaultClusterConfig(dimension int) ClusterConfig {
	return ClusterConfig{
		SplitConfig: DefaultSplitConfig(dimension),
		Scale:       0.12,
		Bias:        0.6,
		Octaves:     3,
	}
}

// Validate checks the split and noise parameters.
func (c ClusterConfig) Validate() error {
	if err := c.SplitConfig.Validate(); err != nil {
		return err
	}
	if c.Scale <= 0 {
		return fmt.Errorf("noise scale must be positive, got %v", c.Scale)
	}
	if c.Bias < 0 || c.Bias > 1 {
		return fmt.Errorf("noise bias %v outside [0,1]", c.Bias)
	}
	if c.Octaves < 1 {
		return fmt.Errorf("need at least one noise octave, got %d", c.Octaves)
	}
	return nil
}

// Clustered fills a grid with similarity-seeking agents. The share of
// occupied lots matches SplitA+SplitB; which type lands on a lot follows a
// noise field seeded from the spawner seed.
func (s *Spawner) Clustered(cfg ClusterConfig, opts ...neighborhood.Option) (*neighborhood.Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g, err := neighborhood.New(cfg.Dimension, opts...)
	if err != nil {
		return nil, err
	}

	noise := opensimplex.NewNormalized(s.seed)
	populated := cfg.SplitA + cfg.SplitB
	if populated == 0 {
		logPopulated(g)
		return g, nil
	}
	baseA := cfg.SplitA / populated

	for x := 0; x < cfg.Dimension; x++ {
		for y := 0; y < cfg.Dimension; y++ {
			if s.rng.Float64() > populated {
				continue
			}
			n := octaveNoise(noise, float64(x), float64(y), cfg.Octaves, cfg.Scale, 0.5)
			oddsA := clamp01(baseA + cfg.Bias*(2*n-1))

			label := cfg.TypeB
			if s.rng.Float64() < oddsA {
				label = cfg.TypeA
			}
			a, err := agents.NewLikesSame(agents.Label(label), cfg.Preference,
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

// octaveNoise layers several frequencies of noise, normalized back to [0,1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total, amplitude, maxValue := 0.0, 1.0, 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxValue += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxValue
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
