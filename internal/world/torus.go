package world

import "fmt"

// Torus is a square grid whose edges wrap around in both axes.
type Torus struct {
	Dimension int `json:"dimension"`
}

// NewTorus creates a torus with the given side length.
func NewTorus(dimension int) (Torus, error) {
	if dimension <= 0 {
		return Torus{}, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	return Torus{Dimension: dimension}, nil
}

// Wrap maps v into [0, Dimension). Within one dimension of the edge this is
// a single wraparound; larger offsets wrap as many times as needed.
func (t Torus) Wrap(v int) int {
	return ((v % t.Dimension) + t.Dimension) % t.Dimension
}

// WrapCoord wraps both axes of c independently.
func (t Torus) WrapCoord(c Coord) Coord {
	return Coord{X: t.Wrap(c.X), Y: t.Wrap(c.Y)}
}

// InBounds returns true if c lies inside [0, Dimension)².
func (t Torus) InBounds(c Coord) bool {
	return c.X >= 0 && c.X < t.Dimension && c.Y >= 0 && c.Y < t.Dimension
}

// CellCount returns the total number of cells on the torus.
func (t Torus) CellCount() int {
	return t.Dimension * t.Dimension
}

// Block returns the (2r+1)×(2r+1) block of wrapped coordinates centered on
// (x, y). Rows run over x, columns over y. On a torus smaller than the block
// the same cell can appear more than once.
func (t Torus) Block(x, y, radius int) [][]Coord {
	if radius < 0 {
		radius = 0
	}
	side := 2*radius + 1
	block := make([][]Coord, 0, side)
	for i := x - radius; i <= x+radius; i++ {
		row := make([]Coord, 0, side)
		wx := t.Wrap(i)
		for j := y - radius; j <= y+radius; j++ {
			row = append(row, Coord{X: wx, Y: t.Wrap(j)})
		}
		block = append(block, row)
	}
	return block
}

// Cells returns every coordinate of the torus in row-major order.
func (t Torus) Cells() []Coord {
	cells := make([]Coord, 0, t.CellCount())
	for x := 0; x < t.Dimension; x++ {
		for y := 0; y < t.Dimension; y++ {
			cells = append(cells, Coord{X: x, Y: y})
		}
	}
	return cells
}

func (t Torus) String() string {
	return fmt.Sprintf("Torus(dimension=%d, cells=%d)", t.Dimension, t.CellCount())
}
