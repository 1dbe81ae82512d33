// Package export writes neighborhoods and run histories to flat files for
// offline inspection: occupant grids and history as CSV, history as a PNG
// line chart.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/talgya/schelling/internal/agents"
	"github.com/talgya/schelling/internal/engine"
	"github.com/talgya/schelling/internal/neighborhood"
	"github.com/talgya/schelling/internal/world"
)

// DefaultGridFile is the file name used when none is given.
const DefaultGridFile = "testSchelling.csv"

// Cell is one occupied lot as recorded in an export.
type Cell struct {
	Coord world.Coord
	Label string
}

// Layout is the positional content of an exported grid. Only type labels
// survive export; preferences and view radii are not recorded.
type Layout struct {
	Dimension int
	Cells     []Cell // Occupied lots, row-major
}

// Labels returns the count of cells per type label.
func (l Layout) Labels() map[string]int {
	counts := make(map[string]int)
	for _, c := range l.Cells {
		counts[c.Label]++
	}
	return counts
}

// LayoutOf captures the occupant layout of a grid.
func LayoutOf(g *neighborhood.Grid) Layout {
	l := Layout{Dimension: g.Dimension()}
	for _, row := range g.Rows() {
		for _, lot := range row {
			if lot.IsEmpty() {
				continue
			}
			l.Cells = append(l.Cells, Cell{Coord: lot.Position, Label: lot.String()})
		}
	}
	return l
}

// Build places a similarity-seeking agent with the given preference on
// every recorded cell of a fresh grid.
func (l Layout) Build(preference float64, opts ...neighborhood.Option) (*neighborhood.Grid, error) {
	g, err := neighborhood.New(l.Dimension, opts...)
	if err != nil {
		return nil, err
	}
	for _, c := range l.Cells {
		a, err := agents.NewLikesSame(agents.Label(c.Label), preference, agents.At(c.Coord.X, c.Coord.Y))
		if err != nil {
			return nil, fmt.Errorf("cell %s: %w", c.Coord, err)
		}
		if err := g.Place(a); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// WriteCSV writes one record per grid row holding each lot's type label.
// Empty lots are written as agents.EmptyLabel.
func WriteCSV(w io.Writer, g *neighborhood.Grid) error {
	cw := csv.NewWriter(w)
	for _, row := range g.Rows() {
		record := make([]string, len(row))
		for y, lot := range row {
			record[y] = lot.String()
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write grid row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the grid to path, creating or truncating it.
func WriteCSVFile(path string, g *neighborhood.Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCSV parses a grid written by WriteCSV. The grid must be square.
func ReadCSV(r io.Reader) (Layout, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return Layout{}, fmt.Errorf("read grid: %w", err)
	}
	n := len(records)
	if n == 0 {
		return Layout{}, fmt.Errorf("read grid: no rows")
	}
	l := Layout{Dimension: n}
	for x, record := range records {
		if len(record) != n {
			return Layout{}, fmt.Errorf("read grid: row %d has %d lots, want %d", x, len(record), n)
		}
		for y, label := range record {
			if label == agents.EmptyLabel {
				continue
			}
			l.Cells = append(l.Cells, Cell{Coord: world.Coord{X: x, Y: y}, Label: label})
		}
	}
	return l, nil
}

// ReadCSVFile reads a grid layout from path.
func ReadCSVFile(path string) (Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return Layout{}, err
	}
	defer f.Close()
	return ReadCSV(f)
}

var historyHeader = []string{"tick", "fraction_unhappy", "fraction_similar"}

// WriteHistoryCSV writes one record per tick.
func WriteHistoryCSV(w io.Writer, h engine.History) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(historyHeader); err != nil {
		return err
	}
	for _, rec := range h {
		err := cw.Write([]string{
			strconv.Itoa(rec.Tick),
			strconv.FormatFloat(rec.Stats.Unhappy, 'f', neighborhood.StatsPrecision, 64),
			strconv.FormatFloat(rec.Stats.Similar, 'f', neighborhood.StatsPrecision, 64),
		})
		if err != nil {
			return fmt.Errorf("write tick %d: %w", rec.Tick, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadHistoryCSV parses a history written by WriteHistoryCSV.
func ReadHistoryCSV(r io.Reader) (engine.History, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read history: missing header")
	}
	var h engine.History
	for i, record := range records[1:] {
		if len(record) != len(historyHeader) {
			return nil, fmt.Errorf("read history: line %d has %d fields", i+2, len(record))
		}
		tick, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("read history: line %d tick: %w", i+2, err)
		}
		unhappy, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("read history: line %d unhappy: %w", i+2, err)
		}
		similar, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("read history: line %d similar: %w", i+2, err)
		}
		h = append(h, engine.Record{Tick: tick, Stats: neighborhood.Stats{Unhappy: unhappy, Similar: similar}})
	}
	return h, nil
}
