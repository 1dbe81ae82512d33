package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/schelling/internal/logging"
	"github.com/talgya/schelling/internal/neighborhood"
)

// Record is the statistics observed at the start of one tick, before any
// agent moved.
type Record struct {
	Tick  int                `json:"tick"`
	Stats neighborhood.Stats `json:"stats"`
}

// History is the ordered list of records of a run.
type History []Record

// Final returns the last record, if any.
func (h History) Final() (Record, bool) {
	if len(h) == 0 {
		return Record{}, false
	}
	return h[len(h)-1], true
}

// Converged reports whether the last record has no unhappy agents.
func (h History) Converged() bool {
	last, ok := h.Final()
	return ok && last.Stats.Unhappy == 0
}

// Simulation owns one neighborhood and its history. It is safe for
// concurrent observers while a single goroutine calls Step.
type Simulation struct {
	mu        sync.RWMutex
	grid      *neighborhood.Grid
	history   History
	converged bool
	swaps     int

	subMu       sync.Mutex
	subscribers map[chan Record]struct{}
}

// NewSimulation wraps a populated grid.
func NewSimulation(g *neighborhood.Grid) *Simulation {
	return &Simulation{
		grid:        g,
		subscribers: make(map[chan Record]struct{}),
	}
}

// Step records the current statistics and, unless no agent is unhappy,
// advances the grid one tick. It reports whether the grid has converged.
// Once converged, further calls return the final record without moving.
func (s *Simulation) Step() (Record, bool, error) {
	s.mu.Lock()
	if s.converged {
		rec, _ := s.history.Final()
		s.mu.Unlock()
		return rec, true, nil
	}

	stats, err := s.grid.Stats()
	if err != nil {
		s.mu.Unlock()
		return Record{}, false, fmt.Errorf("tick %d: %w", len(s.history), err)
	}
	rec := Record{Tick: len(s.history), Stats: stats}
	s.history = append(s.history, rec)

	if stats.Unhappy == 0 {
		s.converged = true
	} else {
		if logging.TraceEnabled() {
			for _, info := range UnhappyInfo(s.grid) {
				logging.Trace("unhappy", "tick", rec.Tick, "agent", info)
			}
		}
		s.swaps += s.grid.Move()
	}
	converged := s.converged
	s.mu.Unlock()

	slog.Debug("tick", "tick", rec.Tick, "unhappy", fmt.Sprintf("%.4f", stats.Unhappy),
		"similar", fmt.Sprintf("%.4f", stats.Similar))
	s.publish(rec)
	return rec, converged, nil
}

// History returns a copy of the records so far.
func (s *Simulation) History() History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(History(nil), s.history...)
}

// Converged reports whether a recorded tick had no unhappy agents.
func (s *Simulation) Converged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.converged
}

// Status is a point-in-time summary of a simulation.
type Status struct {
	Dimension int                `json:"dimension"`
	Agents    int                `json:"agents"`
	Empty     int                `json:"empty"`
	Ticks     int                `json:"ticks"`
	Swaps     int                `json:"swaps"`
	Converged bool               `json:"converged"`
	Latest    neighborhood.Stats `json:"latest"`
}

// Status returns a summary of the simulation.
func (s *Simulation) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Dimension: s.grid.Dimension(),
		Agents:    len(s.grid.Agents),
		Empty:     s.grid.Torus.CellCount() - len(s.grid.Agents),
		Ticks:     len(s.history),
		Swaps:     s.swaps,
		Converged: s.converged,
	}
	if last, ok := s.history.Final(); ok {
		st.Latest = last.Stats
	}
	return st
}

// Labels returns the type label of every lot, rows over x.
func (s *Simulation) Labels() [][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.grid.Rows()
	labels := make([][]string, len(rows))
	for x, row := range rows {
		labels[x] = make([]string, len(row))
		for y, lot := range row {
			labels[x][y] = lot.String()
		}
	}
	return labels
}

// View runs fn with read access to the grid. fn must not modify it.
func (s *Simulation) View(fn func(g *neighborhood.Grid)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.grid)
}

// Subscribe returns a channel receiving every new record and a function
// that unsubscribes. Slow subscribers miss records rather than block Step.
func (s *Simulation) Subscribe(buffer int) (<-chan Record, func()) {
	ch := make(chan Record, buffer)
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Simulation) publish(rec Record) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- rec:
		default:
		}
	}
}

// Run records the pre-move statistics of each tick and advances the grid,
// for at most maxTicks ticks. It stops early after the first record with no
// unhappy agents; that record is included.
func Run(g *neighborhood.Grid, maxTicks int) (History, error) {
	sim := NewSimulation(g)
	slog.Info("run starting",
		"dimension", g.Dimension(),
		"agents", humanize.Comma(int64(len(g.Agents))),
		"max_ticks", maxTicks,
	)
	for i := 0; i < maxTicks; i++ {
		_, done, err := sim.Step()
		if err != nil {
			return sim.History(), err
		}
		if done {
			break
		}
	}

	history := sim.History()
	if last, ok := history.Final(); ok {
		slog.Info("run finished",
			"ticks", len(history),
			"converged", history.Converged(),
			"unhappy", fmt.Sprintf("%.4f", last.Stats.Unhappy),
			"similar", fmt.Sprintf("%.4f", last.Stats.Similar),
		)
	}
	return history, nil
}

// UnhappyInfo describes every currently unhappy agent, for diagnostics.
// It only reads the grid, so it may run under View.
func UnhappyInfo(g *neighborhood.Grid) []string {
	var out []string
	for _, a := range g.Agents {
		if a.IsUnhappy(g) {
			out = append(out, a.Info())
		}
	}
	return out
}
