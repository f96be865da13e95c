package colony

import (
	"image"
	"math"

	"github.com/pkg/errors"
)

// Point is a position in image space, row first.
type Point struct {
	Row float64
	Col float64
}

func NewPoint(row, col float64) Point {
	return Point{
		Row: row,
		Col: col,
	}
}

// NewPointFrom converts an image.Point (X is the column, Y the row).
func NewPointFrom(point image.Point) Point {
	return Point{
		Row: float64(point.Y),
		Col: float64(point.X),
	}
}

// Coord returns the coordinate along axis. Axis must be valid.
func (p Point) Coord(axis Axis) float64 {
	if axis == AxisCol {
		return p.Col
	}
	return p.Row
}

// Axis selects one coordinate of a Point.
type Axis int

const (
	// AxisRow selects the row coordinate (axis 0)
	AxisRow Axis = 0
	// AxisCol selects the column coordinate (axis 1)
	AxisCol Axis = 1
)

// Validate returns ErrInvalidArgument for anything but AxisRow and AxisCol.
func (axis Axis) Validate() error {
	if axis != AxisRow && axis != AxisCol {
		return errors.Wrapf(ErrInvalidArgument, "axis must be 0 (row) or 1 (column), got %d", int(axis))
	}
	return nil
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Hypot(p1.Row-p2.Row, p1.Col-p2.Col)
}
