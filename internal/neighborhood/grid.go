// Package neighborhood provides the toroidal grid of lots, its per-tick
// statistics and the randomized relocation step that advances it.
package neighborhood

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/talgya/schelling/internal/agents"
	"github.com/talgya/schelling/internal/world"
)

var (
	// ErrNoAgents is returned when statistics are requested on a grid
	// holding no agents.
	ErrNoAgents = errors.New("neighborhood has no agents")
	// ErrOutOfBounds is returned when placing an agent outside the grid.
	ErrOutOfBounds = errors.New("coordinates out of bounds")
	// ErrOccupied is returned when placing an agent on a lot that already
	// holds one.
	ErrOccupied = errors.New("lot already occupied")
	// ErrAlreadyPlaced is returned when placing an agent the grid already
	// holds.
	ErrAlreadyPlaced = errors.New("agent already placed")
)

// Shuffler randomizes the order of the mobility pool each tick.
// *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// Grid is a square torus of lots. Every cell holds exactly one occupant,
// an agent or an empty lot, and Agents lists the non-empty occupants in
// placement order.
type Grid struct {
	Torus  world.Torus
	Agents []*agents.Agent

	lots [][]*agents.Agent // lots[x][y]
	rng  Shuffler

	// unhappy caches the last Unhappy result for the next FractionUnhappy
	// call only.
	unhappy      []*agents.Agent
	unhappyFresh bool
}

// Option customises a Grid.
type Option func(*Grid)

// WithShuffler sets the randomness used to pair the mobility pool.
func WithShuffler(s Shuffler) Option {
	return func(g *Grid) {
		g.rng = s
	}
}

// WithSeed seeds a math/rand source for pairing.
func WithSeed(seed int64) Option {
	return WithShuffler(rand.New(rand.NewSource(seed)))
}

// New creates a grid of the given side length with every lot empty.
func New(dimension int, opts ...Option) (*Grid, error) {
	torus, err := world.NewTorus(dimension)
	if err != nil {
		return nil, err
	}

	lots := make([][]*agents.Agent, dimension)
	for x := range lots {
		lots[x] = make([]*agents.Agent, dimension)
		for y := range lots[x] {
			lots[x][y] = agents.NewEmptyLot(world.Coord{X: x, Y: y})
		}
	}

	g := &Grid{Torus: torus, lots: lots}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return g, nil
}

// Dimension returns the side length of the grid.
func (g *Grid) Dimension() int {
	return g.Torus.Dimension
}

// At returns the occupant of (x, y), wrapping out-of-range coordinates.
func (g *Grid) At(x, y int) *agents.Agent {
	return g.lots[g.Torus.Wrap(x)][g.Torus.Wrap(y)]
}

// Place registers an agent at its current Position. The position must
// already be set and the lot must be empty.
func (g *Grid) Place(a *agents.Agent) error {
	if a.IsEmpty() {
		return fmt.Errorf("place %s: empty lots are created by the grid", a.Position)
	}
	if !g.Torus.InBounds(a.Position) {
		return fmt.Errorf("place %s on %s: %w", a.Position, g.Torus, ErrOutOfBounds)
	}
	if g.holds(a) {
		return fmt.Errorf("place %s: %w", a.Position, ErrAlreadyPlaced)
	}
	if cur := g.lots[a.Position.X][a.Position.Y]; !cur.IsEmpty() {
		return fmt.Errorf("place %s: %w by %s", a.Position, ErrOccupied, cur)
	}
	g.Agents = append(g.Agents, a)
	g.lots[a.Position.X][a.Position.Y] = a
	g.unhappyFresh = false
	return nil
}

// PlaceAt sets the agent's position to (x, y) and places it. An agent the
// grid already holds keeps its position.
func (g *Grid) PlaceAt(a *agents.Agent, x, y int) error {
	if g.holds(a) {
		return fmt.Errorf("place %s at %d,%d: %w", a.Position, x, y, ErrAlreadyPlaced)
	}
	a.Position = world.Coord{X: x, Y: y}
	return g.Place(a)
}

// holds reports whether a is registered. Swap keeps every agent's Position
// in step with its lot, so the lot at a.Position is enough.
func (g *Grid) holds(a *agents.Agent) bool {
	return g.Torus.InBounds(a.Position) && g.lots[a.Position.X][a.Position.Y] == a
}

// Block returns the (2r+1)×(2r+1) occupant block centered on (x, y), each
// coordinate wrapped independently. It makes Grid an agents.Lots.
func (g *Grid) Block(x, y, radius int) [][]*agents.Agent {
	coords := g.Torus.Block(x, y, radius)
	block := make([][]*agents.Agent, len(coords))
	for i, row := range coords {
		block[i] = make([]*agents.Agent, len(row))
		for j, c := range row {
			block[i][j] = g.lots[c.X][c.Y]
		}
	}
	return block
}

var _ agents.Lots = (*Grid)(nil)

// Rows returns the occupant rows, rows over x and columns over y. The
// returned slices are copies; occupants are shared.
func (g *Grid) Rows() [][]*agents.Agent {
	rows := make([][]*agents.Agent, len(g.lots))
	for x, row := range g.lots {
		rows[x] = append([]*agents.Agent(nil), row...)
	}
	return rows
}

// Empties returns every empty lot in row-major order.
func (g *Grid) Empties() []*agents.Agent {
	var empties []*agents.Agent
	for _, row := range g.lots {
		for _, lot := range row {
			if lot.IsEmpty() {
				empties = append(empties, lot)
			}
		}
	}
	return empties
}

// Unhappy returns the agents that currently want to relocate. The result is
// remembered for the next FractionUnhappy call only.
func (g *Grid) Unhappy() []*agents.Agent {
	var unhappy []*agents.Agent
	for _, a := range g.Agents {
		if a.IsUnhappy(g) {
			unhappy = append(unhappy, a)
		}
	}
	g.unhappy = unhappy
	g.unhappyFresh = true
	return unhappy
}

// MobilityPool returns the occupants eligible to swap this tick: unhappy
// agents in placement order followed by empty lots in row-major order.
func (g *Grid) MobilityPool() []*agents.Agent {
	unhappy := g.Unhappy()
	g.unhappyFresh = false
	empties := g.Empties()
	pool := make([]*agents.Agent, 0, len(unhappy)+len(empties))
	pool = append(pool, unhappy...)
	pool = append(pool, empties...)
	return pool
}

// Swap exchanges the positions of two occupants and updates both lots.
func (g *Grid) Swap(a, b *agents.Agent) {
	a.Position, b.Position = b.Position, a.Position
	g.lots[a.Position.X][a.Position.Y] = a
	g.lots[b.Position.X][b.Position.Y] = b
	g.unhappyFresh = false
}

// Move advances the grid one tick. The mobility pool is shuffled once and
// consumed two at a time, so every occupant swaps at most once and an odd
// pool leaves one occupant where it is. Unhappy agents may trade places with
// each other as well as with empty lots. Move returns the number of swaps.
func (g *Grid) Move() int {
	pool := g.MobilityPool()
	g.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	swaps := 0
	for i := 0; i+1 < len(pool); i += 2 {
		g.Swap(pool[i], pool[i+1])
		swaps++
	}
	return swaps
}

// Check verifies that lots and agent positions agree and that every
// registered agent occupies exactly one lot.
func (g *Grid) Check() error {
	seen := make(map[*agents.Agent]bool, g.Torus.CellCount())
	placed := 0
	for x, row := range g.lots {
		for y, lot := range row {
			if lot == nil {
				return fmt.Errorf("lot %d,%d has no occupant", x, y)
			}
			if seen[lot] {
				return fmt.Errorf("occupant %s appears more than once", lot.Info())
			}
			seen[lot] = true
			if lot.Position.X != x || lot.Position.Y != y {
				return fmt.Errorf("lot %d,%d holds occupant positioned at %s", x, y, lot.Position)
			}
			if !lot.IsEmpty() {
				placed++
			}
		}
	}
	if placed != len(g.Agents) {
		return fmt.Errorf("%d agents on lots, %d registered", placed, len(g.Agents))
	}
	for _, a := range g.Agents {
		if !seen[a] {
			return fmt.Errorf("registered agent %s is not on any lot", a.Info())
		}
	}
	return nil
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Neighborhood(dimension=%d, agents=%d)", g.Dimension(), len(g.Agents))
}
