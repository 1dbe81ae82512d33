package export

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/talgya/schelling/internal/engine"
)

// ErrShortHistory is returned when a history has too few ticks to plot.
var ErrShortHistory = errors.New("history needs at least two ticks to plot")

// ChartSize is the rendered PNG size in pixels.
var ChartSize = struct{ Width, Height int }{Width: 900, Height: 400}

// WriteHistoryChart renders both per-tick fractions as a PNG line chart.
func WriteHistoryChart(w io.Writer, h engine.History, title string) error {
	if len(h) < 2 {
		return fmt.Errorf("%w: got %d", ErrShortHistory, len(h))
	}

	ticks := make([]float64, len(h))
	unhappy := make([]float64, len(h))
	similar := make([]float64, len(h))
	for i, rec := range h {
		ticks[i] = float64(rec.Tick)
		unhappy[i] = rec.Stats.Unhappy
		similar[i] = rec.Stats.Similar
	}

	graph := chart.Chart{
		Title:  title,
		Width:  ChartSize.Width,
		Height: ChartSize.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10},
		},
		XAxis: chart.XAxis{
			Name:  "tick",
			Style: chart.Style{FontSize: 10.0},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int(v.(float64)))
			},
		},
		YAxis: chart.YAxis{
			Name:  "fraction",
			Style: chart.Style{FontSize: 10.0},
			Range: &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Unhappy",
				XValues: ticks,
				YValues: unhappy,
				Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeWidth: 3.0},
			},
			chart.ContinuousSeries{
				Name:    "Similar",
				XValues: ticks,
				YValues: similar,
				Style:   chart.Style{StrokeColor: drawing.Color{R: 0, G: 116, B: 217, A: 255}, StrokeWidth: 3.0},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render history chart: %w", err)
	}
	return nil
}

// WriteHistoryChartFile renders the chart to path.
func WriteHistoryChartFile(path string, h engine.History, title string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteHistoryChart(f, h, title); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
