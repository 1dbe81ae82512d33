package neighborhood

import (
	"fmt"

	"gonum.org/v1/gonum/floats/scalar"
)

// StatsPrecision is the number of decimal digits Stats reports.
const StatsPrecision = 4

// Stats is the per-tick summary of a neighborhood.
type Stats struct {
	Unhappy float64 `json:"unhappy"` // Fraction of agents wanting to move
	Similar float64 `json:"similar"` // Same-type neighbor links over all neighbor links
}

func (s Stats) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", s.Unhappy, s.Similar)
}

// FractionUnhappy returns the share of agents that are unhappy. It reuses
// the result of an Unhappy call made since the last change to the grid.
func (g *Grid) FractionUnhappy() (float64, error) {
	if len(g.Agents) == 0 {
		return 0, ErrNoAgents
	}
	unhappy := g.unhappy
	if !g.unhappyFresh {
		unhappy = g.Unhappy()
	}
	g.unhappyFresh = false
	return float64(len(unhappy)) / float64(len(g.Agents)), nil
}

// FractionSimilar returns the population-weighted similarity: the sum of
// same-type neighbor counts over the sum of all neighbor counts. This is not
// the mean of per-agent fractions. When no agent has a neighbor the result
// is 0.0.
func (g *Grid) FractionSimilar() (float64, error) {
	if len(g.Agents) == 0 {
		return 0, ErrNoAgents
	}
	sameTotal, total := 0, 0
	for _, a := range g.Agents {
		same, n := a.CountNeighbors(g)
		sameTotal += same
		total += n
	}
	if total == 0 {
		return 0.0, nil
	}
	return float64(sameTotal) / float64(total), nil
}

// Stats returns both fractions rounded to StatsPrecision digits.
func (g *Grid) Stats() (Stats, error) {
	unhappy, err := g.FractionUnhappy()
	if err != nil {
		return Stats{}, fmt.Errorf("fraction unhappy: %w", err)
	}
	similar, err := g.FractionSimilar()
	if err != nil {
		return Stats{}, fmt.Errorf("fraction similar: %w", err)
	}
	return Stats{
		Unhappy: scalar.Round(unhappy, StatsPrecision),
		Similar: scalar.Round(similar, StatsPrecision),
	}, nil
}
