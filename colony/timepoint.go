package colony

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Color is an average RGB value on the 0..255 scale.
type Color struct {
	R float64
	G float64
	B float64
}

// Timepoint is a single observation of a colony in one frame.
// It is a value type: copies never alias each other.
type Timepoint struct {
	// Time since the start of the experiment. Unique within a colony
	Timestamp time.Duration
	// Pixel count of the region, the primary growth signal
	Area      float64
	Center    Point
	Diameter  float64
	Perimeter float64
	// Carried through for export only
	Color Color
}

// NumFields is the number of values Fields returns for one timepoint.
const NumFields = 9

// Fields flattens the timepoint for bulk export: timestamp in seconds, area,
// center row, center column, diameter, perimeter and the three color channels.
func (tp Timepoint) Fields() []float64 {
	return []float64{
		tp.Timestamp.Seconds(),
		tp.Area,
		tp.Center.Row,
		tp.Center.Col,
		tp.Diameter,
		tp.Perimeter,
		tp.Color.R,
		tp.Color.G,
		tp.Color.B,
	}
}

// Validate returns ErrInvalidArgument when a measurement is NaN or infinite.
func (tp Timepoint) Validate() error {
	if !isFinite(tp.Fields()...) {
		return errors.Wrapf(ErrInvalidArgument, "timepoint at %s has a non-finite measurement", tp.Timestamp)
	}
	return nil
}

// Circularity returns the isoperimetric ratio 4π·area/perimeter².
// A perfect circle gives 1. A zero perimeter gives 0.
func (tp Timepoint) Circularity() float64 {
	if tp.Perimeter == 0 {
		return 0
	}
	return 4 * math.Pi * tp.Area / (tp.Perimeter * tp.Perimeter)
}
