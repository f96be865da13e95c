package colony

import (
	"time"
)

var fixtureCenters = []Point{
	{3, 3.99},
	{3, 3},
	{2, 3.1},
	{2.49, 3},
	{2.51, 3},
	{2.5, 2.99},
	{4, 3.9},
	{3, 10},
	{0, 4.4},
}

var fixtureDistances = []float64{0, 0.5, 1, 2, 3}

// fixtureTimepoints returns one detection per fixture center, the i-th one
// (1-based) at i seconds with area, diameter and perimeter all equal to i.
func fixtureTimepoints() []Timepoint {
	timepoints := make([]Timepoint, 0, len(fixtureCenters))
	for i, center := range fixtureCenters {
		n := float64(i + 1)
		timepoints = append(timepoints, Timepoint{
			Timestamp: time.Duration(i+1) * time.Second,
			Area:      n,
			Center:    center,
			Diameter:  n,
			Perimeter: n,
		})
	}
	return timepoints
}
