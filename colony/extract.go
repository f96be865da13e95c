package colony

import (
	"image"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/pkg/errors"
)

// Labels is a segmented image: every pixel holds the label of the region it
// belongs to, 0 being background. Rows are indexed first.
type Labels [][]int

// Dims returns the number of rows and columns, or an error for a ragged grid.
func (labels Labels) Dims() (rows, cols int, err error) {
	rows = len(labels)
	if rows == 0 {
		return 0, 0, nil
	}
	cols = len(labels[0])
	for r, row := range labels {
		if len(row) != cols {
			return 0, 0, errors.Wrapf(ErrInvalidArgument, "label row %d has %d columns, expected %d", r, len(row), cols)
		}
	}
	return rows, cols, nil
}

// Extractor turns a segmented frame into detections.
// img is optional and only feeds the color summary.
type Extractor interface {
	Extract(labels Labels, timestamp time.Duration, img image.Image) ([]Timepoint, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(labels Labels, timestamp time.Duration, img image.Image) ([]Timepoint, error)

// Extract calls f.
func (f ExtractorFunc) Extract(labels Labels, timestamp time.Duration, img image.Image) ([]Timepoint, error) {
	return f(labels, timestamp, img)
}

var _ Extractor = ExtractorFunc(FromLabels)

// regionStats accumulates the measurements of one labelled region.
type regionStats struct {
	area      int
	sumRow    float64
	sumCol    float64
	perimeter int
	sumR      float64
	sumG      float64
	sumB      float64
}

// FromLabels measures every non-zero label of a frame, ordered by label:
// area is the pixel count, center the mean pixel position, diameter that of a
// circle of the same area and perimeter the number of region pixels touching
// another label, the background or the frame edge. When img is not nil its
// bounds must match the label grid and the color summary is the mean RGB.
func FromLabels(labels Labels, timestamp time.Duration, img image.Image) ([]Timepoint, error) {
	rows, cols, err := labels.Dims()
	if err != nil {
		return nil, err
	}
	if img != nil {
		bounds := img.Bounds()
		if bounds.Dy() != rows || bounds.Dx() != cols {
			return nil, errors.Wrapf(ErrInvalidArgument, "image is %dx%d but labels are %dx%d", bounds.Dy(), bounds.Dx(), rows, cols)
		}
	}

	regions := make(map[int]*regionStats)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			label := labels[r][c]
			if label == 0 {
				continue
			}
			stats, ok := regions[label]
			if !ok {
				stats = &regionStats{}
				regions[label] = stats
			}
			stats.area++
			stats.sumRow += float64(r)
			stats.sumCol += float64(c)
			if labels.isBoundary(r, c, rows, cols) {
				stats.perimeter++
			}
			if img != nil {
				bounds := img.Bounds()
				red, green, blue, _ := img.At(bounds.Min.X+c, bounds.Min.Y+r).RGBA()
				stats.sumR += float64(red) / 257
				stats.sumG += float64(green) / 257
				stats.sumB += float64(blue) / 257
			}
		}
	}

	timepoints := make([]Timepoint, 0, len(regions))
	for _, label := range slices.Sorted(maps.Keys(regions)) {
		stats := regions[label]
		area := float64(stats.area)
		tp := Timepoint{
			Timestamp: timestamp,
			Area:      area,
			Center:    Point{Row: stats.sumRow / area, Col: stats.sumCol / area},
			Diameter:  math.Sqrt(4 * area / math.Pi),
			Perimeter: float64(stats.perimeter),
		}
		if img != nil {
			tp.Color = Color{R: stats.sumR / area, G: stats.sumG / area, B: stats.sumB / area}
		}
		timepoints = append(timepoints, tp)
	}
	return timepoints, nil
}

// isBoundary reports whether pixel (r, c) has a 4-neighbour outside its region.
func (labels Labels) isBoundary(r, c, rows, cols int) bool {
	label := labels[r][c]
	if r == 0 || c == 0 || r == rows-1 || c == cols-1 {
		return true
	}
	return labels[r-1][c] != label || labels[r+1][c] != label ||
		labels[r][c-1] != label || labels[r][c+1] != label
}
