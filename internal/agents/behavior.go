// Agent behavior: neighbor lookup, similarity and happiness.
// Behavior reads the surrounding lots through the Lots passed in; agents hold
// no reference to the grid they live on.
package agents

import "fmt"

// Lots is the read view of a neighborhood that behavior functions consult.
type Lots interface {
	// Block returns the (2r+1)×(2r+1) occupants around (x, y) with wraparound.
	Block(x, y, radius int) [][]*Agent
}

// IsMyType reports whether other counts as the same type as a. The judgement
// uses a's own rule and range, so it is not symmetric for continuous agents.
func (a *Agent) IsMyType(other *Agent) bool {
	switch a.Kind {
	case KindContinuous:
		if !other.Type.Numeric {
			return false
		}
		return other.Type.Value >= a.MinRange && other.Type.Value <= a.MaxRange
	default:
		return other.Type == a.Type
	}
}

// Neighbors returns the real occupants within the agent's view radius,
// excluding empty lots and the agent itself, in row-major block order.
func (a *Agent) Neighbors(lots Lots) []*Agent {
	block := lots.Block(a.Position.X, a.Position.Y, a.ViewRadius)
	var neighbors []*Agent
	for _, row := range block {
		for _, lot := range row {
			if lot.IsEmpty() || lot == a {
				continue
			}
			neighbors = append(neighbors, lot)
		}
	}
	return neighbors
}

// SameNeighbors filters neighbors down to those a considers its own type.
func (a *Agent) SameNeighbors(neighbors []*Agent) []*Agent {
	var same []*Agent
	for _, n := range neighbors {
		if a.IsMyType(n) {
			same = append(same, n)
		}
	}
	return same
}

// CountNeighbors returns the number of same-type neighbors and all neighbors.
func (a *Agent) CountNeighbors(lots Lots) (same, total int) {
	neighbors := a.Neighbors(lots)
	return len(a.SameNeighbors(neighbors)), len(neighbors)
}

// FractionSame returns the share of neighbors of the agent's type, or 0.0
// when the agent is surrounded only by empty lots.
func (a *Agent) FractionSame(lots Lots) float64 {
	return a.fractionSame(a.Neighbors(lots))
}

func (a *Agent) fractionSame(neighbors []*Agent) float64 {
	if len(neighbors) == 0 {
		return 0.0
	}
	return float64(len(a.SameNeighbors(neighbors))) / float64(len(neighbors))
}

// IsUnhappy reports whether the agent wants to relocate. An agent with no
// real neighbors is never unhappy: preferences do not apply in a vacuum.
func (a *Agent) IsUnhappy(lots Lots) bool {
	if a.Rule == RuleNone || a.Kind == KindEmpty {
		return false
	}
	neighbors := a.Neighbors(lots)
	if len(neighbors) == 0 {
		return false
	}
	same := a.fractionSame(neighbors)
	switch a.Rule {
	case RuleLikesSame:
		return same < a.Preference
	case RuleLikesOthers:
		return 1.0-same < a.Preference
	}
	return false
}

// Info returns a one-line description of the occupant.
func (a *Agent) Info() string {
	at := a.Position.String()
	if a.Kind == KindEmpty {
		return fmt.Sprintf("Empty lot at %s.", at)
	}

	var likes string
	switch a.Rule {
	case RuleLikesSame:
		likes = "Likes Same Agent"
	case RuleLikesOthers:
		likes = "Likes Other Agent"
	default:
		return fmt.Sprintf("Agent Type %s at %s.", a.Type, at)
	}

	if a.Kind == KindContinuous {
		return fmt.Sprintf("Continuous %s Type %s Range %g-%g Preference %g at %s.",
			likes, a.Type, a.MinRange, a.MaxRange, a.Preference, at)
	}
	return fmt.Sprintf("%s Type %s Preference %g at %s.", likes, a.Type, a.Preference, at)
}
