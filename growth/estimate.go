package growth

import (
	"maps"
	"slices"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Series is a growth curve reduced to one measurement per timestamp.
// Timestamps are seconds since the start of the experiment, ascending.
type Series struct {
	Timestamps   []float64
	Measurements []float64
}

// NewSeries sorts growth curve data by timestamp and reduces every timestamp
// to the mean of its measurements. Timestamps without measurements are skipped.
func NewSeries(data map[time.Duration][]float64) Series {
	keys := slices.Sorted(maps.Keys(data))
	series := Series{
		Timestamps:   make([]float64, 0, len(keys)),
		Measurements: make([]float64, 0, len(keys)),
	}
	for _, key := range keys {
		values := data[key]
		if len(values) == 0 {
			continue
		}
		series.Timestamps = append(series.Timestamps, key.Seconds())
		series.Measurements = append(series.Measurements, stat.Mean(values, nil))
	}
	return series
}

// Len returns the number of points in the series.
func (s Series) Len() int {
	return len(s.Timestamps)
}

// meanInterval is the average spacing of the timestamps in seconds, 1 when undefined.
func (s Series) meanInterval() float64 {
	if len(s.Timestamps) < 2 {
		return 1
	}
	interval := (s.Timestamps[len(s.Timestamps)-1] - s.Timestamps[0]) / float64(len(s.Timestamps)-1)
	if interval <= 0 {
		return 1
	}
	return interval
}

// EstimateParameters returns heuristic starting values for curve fitting.
//
// Carrying capacity: the first measurement lying within one standard deviation
// of the differences around the final measurement.
//
// Lag time and growth rate: the first difference greater than the mean
// difference plus one standard deviation marks the inflection. Lag time is the
// timestamp immediately preceding the sample the jump starts from (the first
// timestamp when the very first difference jumps) and growth rate the largest
// difference seen up to and including it. Both are 0 when no difference
// crosses the threshold.
func EstimateParameters(timestamps, measurements []float64) (lagTime, growthRate, carryingCapacity float64, err error) {
	if len(timestamps) != len(measurements) {
		return 0, 0, 0, errors.Wrapf(ErrInvalidArgument,
			"timestamps (%d elements) and measurements (%d elements) must contain the same number of elements",
			len(timestamps), len(measurements))
	}
	if len(measurements) == 0 {
		return 0, 0, 0, nil
	}
	carryingCapacity = measurements[len(measurements)-1]
	if len(measurements) < 2 {
		return 0, 0, carryingCapacity, nil
	}

	diffs := differences(measurements)
	mean, std := stat.PopMeanStdDev(diffs, nil)

	// Carrying capacity
	low, high := carryingCapacity-std, carryingCapacity+std
	for _, measurement := range measurements {
		if measurement >= low && measurement <= high {
			carryingCapacity = measurement
			break
		}
	}

	// Lag time and growth rate
	inflection := mean + std
	for i, difference := range diffs {
		if difference > inflection {
			lagTime = timestamps[max(i-1, 0)]
			growthRate = floats.Max(diffs[:i+1])
			break
		}
	}
	return lagTime, growthRate, carryingCapacity, nil
}

func differences(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	diffs := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		diffs[i-1] = values[i] - values[i-1]
	}
	return diffs
}
