// Package world provides the torus topology the neighborhood is laid out on.
// Coordinates are (x, y) with x selecting the row and y the column.
package world

import "fmt"

// Coord is a cell position on the torus.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Offset returns the coordinate shifted by (dx, dy) without wrapping.
func (c Coord) Offset(dx, dy int) Coord {
	return Coord{X: c.X + dx, Y: c.Y + dy}
}

func (c Coord) String() string {
	return fmt.Sprintf("%d,%d", c.X, c.Y)
}
