package colony

import "math"

// meanPoint returns the arithmetic mean of points. Points must not be empty.
func meanPoint(points []Point) Point {
	var sumRow, sumCol float64
	for _, p := range points {
		sumRow += p.Row
		sumCol += p.Col
	}
	n := float64(len(points))
	return Point{Row: sumRow / n, Col: sumCol / n}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func isFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
