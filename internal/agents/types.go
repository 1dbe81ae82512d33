// Package agents provides the resident model: a single Agent representation
// tagged with how it compares types and what makes it unhappy.
package agents

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/talgya/schelling/internal/world"
)

// EmptyLabel is the reserved type label carried by empty lots.
const EmptyLabel = "Empty"

// DefaultViewRadius is how far an agent looks when no radius is given.
const DefaultViewRadius = 1

// ErrInvalidAgent is returned when agent parameters are out of range.
var ErrInvalidAgent = errors.New("invalid agent")

// Kind determines how an agent compares its own type to a neighbor's.
type Kind uint8

const (
	KindEmpty      Kind = iota // Empty lot placeholder, never a real participant
	KindDiscrete               // Same type means equal labels
	KindContinuous             // Same type means neighbor value inside own [MinRange, MaxRange]
)

// Rule determines when an agent is unhappy with its surroundings.
type Rule uint8

const (
	RuleNone        Rule = iota // Never unhappy
	RuleLikesSame               // Unhappy when the same-type share falls below Preference
	RuleLikesOthers             // Unhappy when the other-type share falls below Preference
)

func (r Rule) String() string {
	switch r {
	case RuleLikesSame:
		return "likes-same"
	case RuleLikesOthers:
		return "likes-others"
	default:
		return "none"
	}
}

// Type is an agent's group identity: a label such as "X" or a numeric value
// such as an age. Numeric types also carry a label for display and export.
type Type struct {
	Label   string  `json:"label"`
	Value   float64 `json:"value,omitempty"`
	Numeric bool    `json:"numeric,omitempty"`
}

// Label returns a discrete type.
func Label(s string) Type {
	return Type{Label: s}
}

// Numeric returns a numeric type labelled with its shortest decimal form.
func Numeric(v float64) Type {
	return Type{Label: strconv.FormatFloat(v, 'f', -1, 64), Value: v, Numeric: true}
}

func (t Type) String() string {
	return t.Label
}

// Agent is an occupant of one lot. Empty lots are agents of KindEmpty.
// Only Position changes over an agent's lifetime.
type Agent struct {
	Kind       Kind        `json:"kind"`
	Rule       Rule        `json:"rule"`
	Type       Type        `json:"type"`
	Preference float64     `json:"preference"`  // 0.0–1.0 tolerance threshold
	ViewRadius int         `json:"view_radius"` // Neighborhood block is (2r+1)²
	MinRange   float64     `json:"min_range,omitempty"`
	MaxRange   float64     `json:"max_range,omitempty"`
	Position   world.Coord `json:"position"`
}

// Resident is the behavior every occupant variant exposes.
type Resident interface {
	IsMyType(other *Agent) bool
	IsUnhappy(lots Lots) bool
}

var _ Resident = (*Agent)(nil)

// Option customises an agent at construction.
type Option func(*Agent)

// At sets the agent's starting coordinates. Without it the agent starts at
// (0,0) and is not on any grid until it is placed.
func At(x, y int) Option {
	return func(a *Agent) {
		a.Position = world.Coord{X: x, Y: y}
	}
}

// WithViewRadius overrides DefaultViewRadius.
func WithViewRadius(r int) Option {
	return func(a *Agent) {
		a.ViewRadius = r
	}
}

// NewAgent creates a discrete agent that is never unhappy.
func NewAgent(t Type, preference float64, opts ...Option) (*Agent, error) {
	return build(&Agent{Kind: KindDiscrete, Rule: RuleNone, Type: t, Preference: preference}, opts)
}

// NewLikesSame creates a discrete agent that wants similar neighbors.
func NewLikesSame(t Type, preference float64, opts ...Option) (*Agent, error) {
	return build(&Agent{Kind: KindDiscrete, Rule: RuleLikesSame, Type: t, Preference: preference}, opts)
}

// NewLikesOthers creates a discrete agent that wants different neighbors.
func NewLikesOthers(t Type, preference float64, opts ...Option) (*Agent, error) {
	return build(&Agent{Kind: KindDiscrete, Rule: RuleLikesOthers, Type: t, Preference: preference}, opts)
}

// NewContinuousLikesSame creates a numeric agent that counts neighbors whose
// value lies in [minRange, maxRange] as similar and wants enough of them.
func NewContinuousLikesSame(value, minRange, maxRange, preference float64, opts ...Option) (*Agent, error) {
	return build(&Agent{
		Kind:       KindContinuous,
		Rule:       RuleLikesSame,
		Type:       Numeric(value),
		Preference: preference,
		MinRange:   minRange,
		MaxRange:   maxRange,
	}, opts)
}

// NewContinuousLikesOthers is the diversity-seeking numeric variant.
func NewContinuousLikesOthers(value, minRange, maxRange, preference float64, opts ...Option) (*Agent, error) {
	return build(&Agent{
		Kind:       KindContinuous,
		Rule:       RuleLikesOthers,
		Type:       Numeric(value),
		Preference: preference,
		MinRange:   minRange,
		MaxRange:   maxRange,
	}, opts)
}

// NewEmptyLot creates the placeholder occupant for an unoccupied cell.
func NewEmptyLot(c world.Coord) *Agent {
	return &Agent{Kind: KindEmpty, Rule: RuleNone, Type: Label(EmptyLabel), Position: c}
}

func build(a *Agent, opts []Option) (*Agent, error) {
	a.ViewRadius = DefaultViewRadius
	for _, opt := range opts {
		opt(a)
	}
	if a.Preference < 0 || a.Preference > 1 {
		return nil, fmt.Errorf("%w: preference %v outside [0,1]", ErrInvalidAgent, a.Preference)
	}
	if a.ViewRadius < 0 {
		return nil, fmt.Errorf("%w: negative view radius %d", ErrInvalidAgent, a.ViewRadius)
	}
	if a.Kind == KindContinuous && a.MinRange > a.MaxRange {
		return nil, fmt.Errorf("%w: range [%v, %v] is inverted", ErrInvalidAgent, a.MinRange, a.MaxRange)
	}
	if a.Type.Label == EmptyLabel {
		return nil, fmt.Errorf("%w: type label %q is reserved", ErrInvalidAgent, EmptyLabel)
	}
	return a, nil
}

// IsEmpty reports whether the agent is an empty lot.
func (a *Agent) IsEmpty() bool {
	return a.Kind == KindEmpty
}

// String returns the type label, which is also what exports write per cell.
func (a *Agent) String() string {
	return a.Type.Label
}
