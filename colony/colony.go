package colony

import (
	"context"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/LdDl/colony-go/growth"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Colony is the tracked history of one physical colony: detections keyed by
// timestamp plus a lazily fitted growth curve over their areas.
// It is safe for concurrent use.
type Colony struct {
	// Stable identifier, sequential within one plate
	ID int
	// Globally unique identifier, e.g. for merging plates or runs
	UID uuid.UUID

	mu         sync.RWMutex
	timepoints map[time.Duration]Timepoint
	curve      *growth.Curve
}

// NewColony creates a colony holding the given timepoints.
// Zero timepoints give a valid, empty colony.
func NewColony(id int, timepoints ...Timepoint) (*Colony, error) {
	colony := &Colony{
		ID:         id,
		UID:        uuid.New(),
		timepoints: make(map[time.Duration]Timepoint, len(timepoints)),
	}
	colony.curve = growth.NewCurve(colony)
	for _, tp := range timepoints {
		if err := colony.AppendTimepoint(tp); err != nil {
			return nil, errors.Wrapf(err, "can't create colony %d", id)
		}
	}
	return colony, nil
}

// SetGrowthOptions replaces the growth curve with one built from options,
// dropping any cached parameters.
func (colony *Colony) SetGrowthOptions(options ...growth.CurveOption) {
	colony.mu.Lock()
	colony.curve = growth.NewCurve(colony, options...)
	colony.mu.Unlock()
}

// Len returns the number of timepoints.
func (colony *Colony) Len() int {
	colony.mu.RLock()
	defer colony.mu.RUnlock()
	return len(colony.timepoints)
}

// Timestamps returns the timestamps in ascending order.
func (colony *Colony) Timestamps() []time.Duration {
	colony.mu.RLock()
	defer colony.mu.RUnlock()
	return colony.sortedTimestamps()
}

func (colony *Colony) sortedTimestamps() []time.Duration {
	return slices.Sorted(maps.Keys(colony.timepoints))
}

// Timepoints returns a copy of all timepoints ordered by timestamp.
func (colony *Colony) Timepoints() []Timepoint {
	colony.mu.RLock()
	defer colony.mu.RUnlock()
	return colony.sortedTimepoints()
}

func (colony *Colony) sortedTimepoints() []Timepoint {
	timepoints := make([]Timepoint, 0, len(colony.timepoints))
	for _, ts := range colony.sortedTimestamps() {
		timepoints = append(timepoints, colony.timepoints[ts])
	}
	return timepoints
}

// All iterates over a snapshot of the timepoints in timestamp order.
func (colony *Colony) All() iter.Seq2[time.Duration, Timepoint] {
	timepoints := colony.Timepoints()
	return func(yield func(time.Duration, Timepoint) bool) {
		for _, tp := range timepoints {
			if !yield(tp.Timestamp, tp) {
				return
			}
		}
	}
}

// Fields flattens every timepoint (see Timepoint.Fields) in timestamp order.
func (colony *Colony) Fields() []float64 {
	timepoints := colony.Timepoints()
	fields := make([]float64, 0, len(timepoints)*NumFields)
	for _, tp := range timepoints {
		fields = append(fields, tp.Fields()...)
	}
	return fields
}

// GetTimepoint returns the timepoint recorded at exactly timestamp.
func (colony *Colony) GetTimepoint(timestamp time.Duration) (Timepoint, error) {
	colony.mu.RLock()
	defer colony.mu.RUnlock()
	tp, ok := colony.timepoints[timestamp]
	if !ok {
		return Timepoint{}, errors.Wrapf(ErrInvalidArgument, "colony %d has no timepoint at %s", colony.ID, timestamp)
	}
	return tp, nil
}

// AppendTimepoint inserts tp. It never overwrites: a timepoint already
// recorded at the same timestamp is an error.
func (colony *Colony) AppendTimepoint(tp Timepoint) error {
	if err := tp.Validate(); err != nil {
		return err
	}
	colony.mu.Lock()
	defer colony.mu.Unlock()
	if _, ok := colony.timepoints[tp.Timestamp]; ok {
		return errors.Wrapf(ErrInvalidArgument, "colony %d already has a timepoint at %s", colony.ID, tp.Timestamp)
	}
	colony.timepoints[tp.Timestamp] = tp
	return nil
}

// UpdateTimepoint replaces old with updated in one step. The colony is left
// untouched when old is not present or updated would collide with another timepoint.
func (colony *Colony) UpdateTimepoint(old, updated Timepoint) error {
	if err := updated.Validate(); err != nil {
		return err
	}
	colony.mu.Lock()
	defer colony.mu.Unlock()
	if _, ok := colony.timepoints[old.Timestamp]; !ok {
		return errors.Wrapf(ErrInvalidArgument, "colony %d has no timepoint at %s", colony.ID, old.Timestamp)
	}
	if _, ok := colony.timepoints[updated.Timestamp]; ok && updated.Timestamp != old.Timestamp {
		return errors.Wrapf(ErrInvalidArgument, "colony %d already has a timepoint at %s", colony.ID, updated.Timestamp)
	}
	delete(colony.timepoints, old.Timestamp)
	colony.timepoints[updated.Timestamp] = updated
	return nil
}

// RemoveTimepoint deletes the timepoint at timestamp and reports whether there was one.
func (colony *Colony) RemoveTimepoint(timestamp time.Duration) bool {
	colony.mu.Lock()
	defer colony.mu.Unlock()
	if _, ok := colony.timepoints[timestamp]; !ok {
		return false
	}
	delete(colony.timepoints, timestamp)
	return true
}

// TimepointFirst returns the earliest timepoint.
func (colony *Colony) TimepointFirst() (Timepoint, error) {
	colony.mu.RLock()
	defer colony.mu.RUnlock()
	if len(colony.timepoints) == 0 {
		return Timepoint{}, ErrEmptyColony
	}
	return colony.timepoints[slices.Min(slices.Collect(maps.Keys(colony.timepoints)))], nil
}

// TimepointLast returns the latest timepoint.
func (colony *Colony) TimepointLast() (Timepoint, error) {
	colony.mu.RLock()
	defer colony.mu.RUnlock()
	if len(colony.timepoints) == 0 {
		return Timepoint{}, ErrEmptyColony
	}
	return colony.timepoints[slices.Max(slices.Collect(maps.Keys(colony.timepoints)))], nil
}

// Center returns the mean center over all timepoints. It is recomputed on
// every call since timepoints can change.
func (colony *Colony) Center() (Point, error) {
	colony.mu.RLock()
	defer colony.mu.RUnlock()
	if len(colony.timepoints) == 0 {
		return Point{}, ErrEmptyColony
	}
	centers := make([]Point, 0, len(colony.timepoints))
	for _, tp := range colony.timepoints {
		centers = append(centers, tp.Center)
	}
	return meanPoint(centers), nil
}

// CircularityAt returns the circularity of the detection at timestamp.
func (colony *Colony) CircularityAt(timestamp time.Duration) (float64, error) {
	tp, err := colony.GetTimepoint(timestamp)
	if err != nil {
		return 0, err
	}
	return tp.Circularity(), nil
}

// GrowthCurveData maps every timestamp to the area measured at it.
// It makes a Colony a growth.DataProvider.
func (colony *Colony) GrowthCurveData() map[time.Duration][]float64 {
	colony.mu.RLock()
	defer colony.mu.RUnlock()
	data := make(map[time.Duration][]float64, len(colony.timepoints))
	for ts, tp := range colony.timepoints {
		data[ts] = []float64{tp.Area}
	}
	return data
}

// Curve returns the growth curve of the colony.
func (colony *Colony) Curve() *growth.Curve {
	colony.mu.RLock()
	defer colony.mu.RUnlock()
	return colony.curve
}

// FitGrowthCurve refits the growth curve, optionally from caller supplied
// starting parameters, and replaces the cached growth parameters.
func (colony *Colony) FitGrowthCurve(ctx context.Context, initial *growth.Params) growth.FitResult {
	return colony.Curve().Fit(ctx, initial)
}

// GrowthParameters returns lag time, growth rate, carrying capacity and
// doubling time, fitting the curve on first use.
func (colony *Colony) GrowthParameters() growth.Parameters {
	return colony.Curve().Parameters()
}

// LagTime returns the fitted lag time λ.
func (colony *Colony) LagTime() time.Duration {
	return colony.Curve().LagTime()
}

// GrowthRate returns the fitted maximum growth rate μmax in area per second.
func (colony *Colony) GrowthRate() float64 {
	return colony.Curve().GrowthRate()
}

// CarryingCapacity returns the fitted asymptotic area A.
func (colony *Colony) CarryingCapacity() float64 {
	return colony.Curve().CarryingCapacity()
}

// DoublingTime returns ln2/μmax, or 0 when the colony did not grow.
func (colony *Colony) DoublingTime() time.Duration {
	return colony.Curve().DoublingTime()
}
