package colony

import "math"

// gridCell addresses one square cell of a SpatialIndex.
type gridCell struct {
	row int64
	col int64
}

// SpatialIndex answers fixed-radius neighbour queries over detection centers
// using a regular grid. The cell size must be at least the query radius.
type SpatialIndex struct {
	CellSize float64
	Grid     map[gridCell][]int // cell → point indices
	points   []Point
}

// NewSpatialIndex creates an empty index with the given cell size.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		CellSize: cellSize,
		Grid:     make(map[gridCell][]int),
	}
}

// Build replaces the content of the index with points.
func (si *SpatialIndex) Build(points []Point) {
	si.points = points
	si.Grid = make(map[gridCell][]int, len(points))
	for i, p := range points {
		cell := si.cellOf(p)
		si.Grid[cell] = append(si.Grid[cell], i)
	}
}

func (si *SpatialIndex) cellOf(p Point) gridCell {
	return gridCell{
		row: int64(math.Floor(p.Row / si.CellSize)),
		col: int64(math.Floor(p.Col / si.CellSize)),
	}
}

// RegionQuery returns the indices of all points within eps of points[idx],
// idx itself included. eps must not exceed the cell size.
func (si *SpatialIndex) RegionQuery(idx int, eps float64) []int {
	p := si.points[idx]
	base := si.cellOf(p)
	neighbors := []int{}
	// Search 3x3 neighbourhood of cells
	for dr := int64(-1); dr <= 1; dr++ {
		for dc := int64(-1); dc <= 1; dc++ {
			for _, candidateIdx := range si.Grid[gridCell{row: base.row + dr, col: base.col + dc}] {
				if euclideanDistance(p, si.points[candidateIdx]) <= eps {
					neighbors = append(neighbors, candidateIdx)
				}
			}
		}
	}
	return neighbors
}
