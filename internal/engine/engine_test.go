package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/talgya/schelling/internal/agents"
	"github.com/talgya/schelling/internal/logging"
	"github.com/talgya/schelling/internal/neighborhood"
	"github.com/talgya/schelling/internal/world"
)

// pairFirst arranges the pool so that its first two slots hold the occupants
// at the given pool indices.
type pairFirst struct {
	i, j  int
	calls int
}

func (p *pairFirst) Shuffle(n int, swap func(i, j int)) {
	p.calls++
	if p.i < n && p.j < n {
		swap(0, p.i)
		swap(1, p.j)
	}
}

func mustAgent(a *agents.Agent, err error) *agents.Agent {
	if err != nil {
		panic(err)
	}
	return a
}

func newGrid(t *testing.T, dim int, s neighborhood.Shuffler, placed ...*agents.Agent) *neighborhood.Grid {
	t.Helper()
	g, err := neighborhood.New(dim, neighborhood.WithShuffler(s))
	if err != nil {
		t.Fatalf("neighborhood.New() error = %v", err)
	}
	for _, a := range placed {
		if err := g.Place(a); err != nil {
			t.Fatalf("Place() error = %v", err)
		}
	}
	return g
}

func indexOf(pool []*agents.Agent, a *agents.Agent) int {
	for i, p := range pool {
		if p == a {
			return i
		}
	}
	return -1
}

func TestRun_ConvergesAndStops(t *testing.T) {
	shuffle := &pairFirst{}
	o := mustAgent(agents.NewLikesSame(agents.Label("O"), 0.4, agents.At(0, 2)))
	g := newGrid(t, 10, shuffle,
		mustAgent(agents.NewLikesSame(agents.Label("X"), 0.1, agents.At(0, 1))),
		mustAgent(agents.NewLikesSame(agents.Label("X"), 0.1, agents.At(1, 1))),
		mustAgent(agents.NewLikesSame(agents.Label("X"), 0.1, agents.At(2, 1))),
		o,
	)

	pool := g.MobilityPool()
	shuffle.i = indexOf(pool, o)
	// After the first swap slot 1 still holds what it held before unless
	// the mover came from there, which it does not: O is at index 0.
	shuffle.j = indexOf(pool, g.At(5, 5))

	history, err := Run(g, 30)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := History{
		{Tick: 0, Stats: neighborhood.Stats{Unhappy: 0.25, Similar: 0.5}},
		{Tick: 1, Stats: neighborhood.Stats{Unhappy: 0, Similar: 1}},
	}
	if len(history) != len(want) {
		t.Fatalf("len(history) = %d, want %d: %v", len(history), len(want), history)
	}
	for i := range want {
		if history[i] != want[i] {
			t.Errorf("history[%d] = %v, want %v", i, history[i], want[i])
		}
	}
	if !history.Converged() {
		t.Error("Converged() = false, want true")
	}
	if shuffle.calls != 1 {
		t.Errorf("grid moved %d times, want 1 (no move after convergence)", shuffle.calls)
	}
	if o.Position != (world.Coord{X: 5, Y: 5}) {
		t.Errorf("O at %v, want 5,5", o.Position)
	}
}

func TestRun_AlreadyConverged(t *testing.T) {
	g := newGrid(t, 10, &pairFirst{},
		mustAgent(agents.NewLikesSame(agents.Label("X"), 0.5, agents.At(0, 0))),
		mustAgent(agents.NewLikesSame(agents.Label("X"), 0.5, agents.At(0, 1))),
	)
	history, err := Run(g, 30)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	if history[0].Tick != 0 || history[0].Stats.Unhappy != 0 {
		t.Errorf("history[0] = %v, want tick 0 with no unhappy agents", history[0])
	}
}

func TestRun_StopsAtMaxTicks(t *testing.T) {
	// A 3x3 torus with radius 1 lets every agent see every other, so a lone
	// X and O can never get away from each other.
	g := newGrid(t, 3, neighborhood.Shuffler(nil),
		mustAgent(agents.NewLikesSame(agents.Label("X"), 0.5, agents.At(0, 0))),
		mustAgent(agents.NewLikesSame(agents.Label("O"), 0.5, agents.At(2, 2))),
	)
	history, err := Run(g, 5)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("len(history) = %d, want 5", len(history))
	}
	for i, rec := range history {
		if rec.Tick != i {
			t.Errorf("history[%d].Tick = %d", i, rec.Tick)
		}
		if rec.Stats != (neighborhood.Stats{Unhappy: 1, Similar: 0}) {
			t.Errorf("history[%d].Stats = %v, want (1, 0)", i, rec.Stats)
		}
	}
	if history.Converged() {
		t.Error("Converged() = true, want false")
	}
}

func TestRun_NoAgents(t *testing.T) {
	g := newGrid(t, 5, &pairFirst{})
	history, err := Run(g, 10)
	if !errors.Is(err, neighborhood.ErrNoAgents) {
		t.Errorf("Run() error = %v, want ErrNoAgents", err)
	}
	if len(history) != 0 {
		t.Errorf("len(history) = %d, want 0", len(history))
	}
}

func TestRun_ZeroTicks(t *testing.T) {
	g := newGrid(t, 5, &pairFirst{},
		mustAgent(agents.NewLikesSame(agents.Label("X"), 0.5, agents.At(0, 0))),
	)
	history, err := Run(g, 0)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := history.Final(); ok {
		t.Error("Final() on empty history should report false")
	}
}

func TestSimulation_StatusAndSubscribe(t *testing.T) {
	g := newGrid(t, 3, neighborhood.Shuffler(nil),
		mustAgent(agents.NewLikesSame(agents.Label("X"), 0.5, agents.At(0, 0))),
		mustAgent(agents.NewLikesSame(agents.Label("O"), 0.5, agents.At(2, 2))),
	)
	sim := NewSimulation(g)
	records, unsubscribe := sim.Subscribe(4)

	for i := 0; i < 3; i++ {
		if _, done, err := sim.Step(); err != nil || done {
			t.Fatalf("Step() = done %v, err %v", done, err)
		}
	}
	for i := 0; i < 3; i++ {
		select {
		case rec := <-records:
			if rec.Tick != i {
				t.Errorf("received tick %d, want %d", rec.Tick, i)
			}
		default:
			t.Fatalf("missing record %d", i)
		}
	}
	unsubscribe()
	unsubscribe()

	st := sim.Status()
	if st.Dimension != 3 || st.Agents != 2 || st.Empty != 7 || st.Ticks != 3 {
		t.Errorf("Status() = %+v", st)
	}
	if st.Swaps != 12 {
		t.Errorf("Status().Swaps = %d, want 12 (pool of 9 pairs 4 per tick)", st.Swaps)
	}
	labels := sim.Labels()
	count := map[string]int{}
	for _, row := range labels {
		for _, l := range row {
			count[l]++
		}
	}
	if count["X"] != 1 || count["O"] != 1 || count[agents.EmptyLabel] != 7 {
		t.Errorf("Labels() counts = %v", count)
	}
}

func TestEngine_StopsWhenTickDeclines(t *testing.T) {
	e := NewEngine()
	e.Interval = time.Millisecond
	e.ReportEvery = 2
	reports := 0
	e.OnTick = func(tick uint64) bool { return tick < 2 }
	e.OnReport = func(tick uint64) { reports++ }

	e.Run(context.Background())

	if e.Tick != 3 {
		t.Errorf("Tick = %d, want 3", e.Tick)
	}
	if reports != 1 {
		t.Errorf("OnReport called %d times, want 1", reports)
	}
	if e.Running() {
		t.Error("Running() = true after Run returned")
	}
}

func TestEngine_Stop(t *testing.T) {
	e := NewEngine()
	e.Interval = time.Millisecond
	e.OnTick = func(tick uint64) bool {
		if tick == 4 {
			e.Stop()
		}
		return true
	}
	e.Run(context.Background())
	e.Stop()
	if e.Tick != 5 {
		t.Errorf("Tick = %d, want 5", e.Tick)
	}
}

func TestEngine_ContextCancel(t *testing.T) {
	e := NewEngine()
	e.SetSpeed(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	e.OnTick = func(tick uint64) bool {
		t.Error("paused engine should not tick")
		return false
	}
	e.Run(ctx)
	if e.Speed() != 0 {
		t.Errorf("Speed() = %v, want 0", e.Speed())
	}
}

func TestSimulation_TracesUnhappyAgents(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	slog.SetDefault(logging.NewLogger("trace", &buf))

	x := mustAgent(agents.NewLikesSame(agents.Label("X"), 0.5, agents.At(1, 1)))
	o := mustAgent(agents.NewLikesSame(agents.Label("O"), 0.5, agents.At(1, 2)))
	sim := NewSimulation(newGrid(t, 5, &pairFirst{}, x, o))
	if _, _, err := sim.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	out := buf.String()
	if n := strings.Count(out, "level=TRACE msg=unhappy tick=0"); n != 2 {
		t.Errorf("trace lines = %d, want 2:\n%s", n, out)
	}
	if !strings.Contains(out, "Likes Same Agent Type X") || !strings.Contains(out, "Likes Same Agent Type O") {
		t.Errorf("trace does not describe both agents:\n%s", out)
	}
}
