package export

import (
	"bytes"
	"errors"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"github.com/talgya/schelling/internal/agents"
	"github.com/talgya/schelling/internal/engine"
	"github.com/talgya/schelling/internal/neighborhood"
	"github.com/talgya/schelling/internal/world"
)

func sampleGrid(t *testing.T) *neighborhood.Grid {
	t.Helper()
	g, err := neighborhood.New(3, neighborhood.WithSeed(1))
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []struct {
		label string
		x, y  int
	}{{"X", 0, 0}, {"O", 0, 2}, {"X", 1, 1}, {"O", 2, 0}} {
		a, err := agents.NewLikesSame(agents.Label(c.label), 0.3, agents.At(c.x, c.y))
		if err != nil {
			t.Fatal(err)
		}
		if err := g.Place(a); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleGrid(t)); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	want := "X,Empty,O\nEmpty,X,Empty\nO,Empty,Empty\n"
	if got := buf.String(); got != want {
		t.Errorf("WriteCSV() = %q, want %q", got, want)
	}
}

func TestCSV_RoundTripLayout(t *testing.T) {
	g := sampleGrid(t)
	path := filepath.Join(t.TempDir(), DefaultGridFile)
	if err := WriteCSVFile(path, g); err != nil {
		t.Fatalf("WriteCSVFile() error = %v", err)
	}
	l, err := ReadCSVFile(path)
	if err != nil {
		t.Fatalf("ReadCSVFile() error = %v", err)
	}

	want := LayoutOf(g)
	if l.Dimension != want.Dimension {
		t.Errorf("Dimension = %d, want %d", l.Dimension, want.Dimension)
	}
	if len(l.Cells) != len(want.Cells) {
		t.Fatalf("len(Cells) = %d, want %d", len(l.Cells), len(want.Cells))
	}
	for i := range want.Cells {
		if l.Cells[i] != want.Cells[i] {
			t.Errorf("Cells[%d] = %v, want %v", i, l.Cells[i], want.Cells[i])
		}
	}

	rebuilt, err := l.Build(0.5)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := rebuilt.Check(); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			if got, want := rebuilt.At(x, y).String(), g.At(x, y).String(); got != want {
				t.Errorf("lot %d,%d = %s, want %s", x, y, got, want)
			}
		}
	}
	// Preference is not part of the export.
	if p := rebuilt.At(0, 0).Preference; p != 0.5 {
		t.Errorf("rebuilt preference = %v, want the Build argument 0.5", p)
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "not square", input: "X,O\nO,X\nX,X\n"},
		{name: "ragged", input: "X,O\nO\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.input)); err == nil {
				t.Error("ReadCSV() error = nil, want error")
			}
		})
	}
}

func TestLayout_Labels(t *testing.T) {
	l, err := ReadCSV(strings.NewReader("X,Empty\n45,X\n"))
	if err != nil {
		t.Fatal(err)
	}
	got := l.Labels()
	if got["X"] != 2 || got["45"] != 1 || len(got) != 2 {
		t.Errorf("Labels() = %v", got)
	}
	if l.Cells[1].Coord != (world.Coord{X: 1, Y: 0}) {
		t.Errorf("Cells[1] at %v, want 1,0", l.Cells[1].Coord)
	}
}

var history = engine.History{
	{Tick: 0, Stats: neighborhood.Stats{Unhappy: 0.25, Similar: 0.5}},
	{Tick: 1, Stats: neighborhood.Stats{Unhappy: 0.1, Similar: 0.6667}},
	{Tick: 2, Stats: neighborhood.Stats{Unhappy: 0, Similar: 0.8123}},
}

func TestHistoryCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHistoryCSV(&buf, history); err != nil {
		t.Fatalf("WriteHistoryCSV() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "tick,fraction_unhappy,fraction_similar" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "0,0.2500,0.5000" {
		t.Errorf("line 1 = %q, want %q", lines[1], "0,0.2500,0.5000")
	}

	got, err := ReadHistoryCSV(strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatalf("ReadHistoryCSV() error = %v", err)
	}
	if len(got) != len(history) {
		t.Fatalf("len = %d, want %d", len(got), len(history))
	}
	for i := range history {
		if got[i] != history[i] {
			t.Errorf("record %d = %v, want %v", i, got[i], history[i])
		}
	}
}

func TestWriteHistoryChart(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHistoryChart(&buf, history, "seed 1"); err != nil {
		t.Fatalf("WriteHistoryChart() error = %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != ChartSize.Width || b.Dy() != ChartSize.Height {
		t.Errorf("chart size = %dx%d, want %dx%d", b.Dx(), b.Dy(), ChartSize.Width, ChartSize.Height)
	}
}

func TestWriteHistoryChart_Short(t *testing.T) {
	err := WriteHistoryChart(&bytes.Buffer{}, history[:1], "")
	if !errors.Is(err, ErrShortHistory) {
		t.Errorf("WriteHistoryChart() error = %v, want ErrShortHistory", err)
	}
}
