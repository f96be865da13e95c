package colony

import (
	"cmp"
	"log/slog"
	"maps"
	"slices"
	"sync"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/arthurkushman/go-hungarian"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MatchingAlgorithm is for algorithm type for matching detections to colonies
type MatchingAlgorithm uint16

const (
	// MatchingAlgorithmHungarian uses the Hungarian algorithm (Kuhn-Munkres) for optimal assignment
	MatchingAlgorithmHungarian MatchingAlgorithm = iota
	// MatchingAlgorithmGreedy repeatedly takes the closest unmatched pair
	MatchingAlgorithmGreedy
)

// Tracker appends per-frame detections to persistent colonies across an
// experiment. Each colony's center is smoothed by a 2D Kalman filter and
// detections are assigned to the predicted centers.
type Tracker struct {
	// Detections further than this from a predicted center (most of time in pixels) start a new colony. Default 5.0
	maxDistance float64
	// Algorithm to use for matching
	algorithm MatchingAlgorithm
	// Time step of the Kalman filters, in frames. Default 1.0
	dt     float64
	logger *slog.Logger

	mu       sync.Mutex
	colonies map[int]*Colony
	filters  map[int]*kalman_filter.Kalman2D
	nextID   int
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the logger used to report new colonies.
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(tracker *Tracker) {
		if logger != nil {
			tracker.logger = logger
		}
	}
}

// WithTimeStep sets the Kalman filter time step between frames.
func WithTimeStep(dt float64) TrackerOption {
	return func(tracker *Tracker) {
		if dt > 0 {
			tracker.dt = dt
		}
	}
}

// NewTrackerDefault creates a Tracker with Hungarian matching and a 5 pixel radius.
func NewTrackerDefault() *Tracker {
	return NewTracker(5.0, MatchingAlgorithmHungarian)
}

// NewTracker creates a Tracker.
func NewTracker(maxDistance float64, algorithm MatchingAlgorithm, options ...TrackerOption) *Tracker {
	tracker := &Tracker{
		maxDistance: maxDistance,
		algorithm:   algorithm,
		dt:          1.0,
		logger:      slog.Default(),
		colonies:    make(map[int]*Colony),
		filters:     make(map[int]*kalman_filter.Kalman2D),
		nextID:      1,
	}
	for _, opt := range options {
		opt(tracker)
	}
	return tracker
}

// newFilter creates a Kalman filter resting at center. Colonies do not move,
// so there is no control input; the filter only absorbs plate jitter.
func (tracker *Tracker) newFilter(center Point) *kalman_filter.Kalman2D {
	ux := 0.0
	uy := 0.0
	stdDevA := 0.1
	stdDevMx := 0.5
	stdDevMy := 0.5
	return kalman_filter.NewKalman2D(tracker.dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(center.Row, center.Col))
}

// Seed registers existing colonies, e.g. the output of Cluster, so that later
// frames extend them. New colonies get ids after the largest seeded one.
func (tracker *Tracker) Seed(colonies ...*Colony) error {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	for _, colony := range colonies {
		if _, ok := tracker.colonies[colony.ID]; ok {
			return errors.Wrapf(ErrInvalidArgument, "colony %d is already tracked", colony.ID)
		}
		last, err := colony.TimepointLast()
		if err != nil {
			return errors.Wrapf(err, "can't seed colony %d", colony.ID)
		}
		tracker.colonies[colony.ID] = colony
		tracker.filters[colony.ID] = tracker.newFilter(last.Center)
		tracker.nextID = maxInt(tracker.nextID, colony.ID+1)
	}
	return nil
}

// Colonies returns the tracked colonies ordered by id.
func (tracker *Tracker) Colonies() []*Colony {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	ids := slices.Sorted(maps.Keys(tracker.colonies))
	colonies := make([]*Colony, len(ids))
	for i, id := range ids {
		colonies[i] = tracker.colonies[id]
	}
	return colonies
}

// filterState is the part of a Kalman filter that Predict moves.
// Predict never changes the velocity without a control input.
type filterState struct {
	row, col float64
	p        *mat.Dense
}

func saveFilter(filter *kalman_filter.Kalman2D) filterState {
	row, col := filter.GetState()
	return filterState{row: row, col: col, p: mat.DenseCopyOf(filter.P)}
}

func (state filterState) restore(filter *kalman_filter.Kalman2D) {
	kalman_filter.WithState2D(state.row, state.col)(filter)
	filter.P.Copy(state.p)
}

// MatchDetections assigns the detections of one frame to tracked colonies.
// Matched detections are appended to their colony; the rest start new colonies.
// The frame is applied as a whole: when it is rejected, e.g. because a matched
// colony already has a timepoint at the detection's timestamp, no colony and no
// filter is changed.
func (tracker *Tracker) MatchDetections(frame []Timepoint) error {
	for i := range frame {
		if err := frame[i].Validate(); err != nil {
			return errors.Wrapf(err, "detection %d", i)
		}
	}
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	ids := slices.Sorted(maps.Keys(tracker.colonies))
	saved := make([]filterState, len(ids))
	predicted := make([]Point, len(ids))
	for i, id := range ids {
		filter := tracker.filters[id]
		saved[i] = saveFilter(filter)
		filter.Predict()
		row, col := filter.GetState()
		predicted[i] = Point{Row: row, Col: col}
	}
	rollback := func() {
		for i, id := range ids {
			saved[i].restore(tracker.filters[id])
		}
	}

	distances := make([][]float64, len(ids))
	for i := range ids {
		row := make([]float64, len(frame))
		for j := range frame {
			row[j] = euclideanDistance(predicted[i], frame[j].Center)
		}
		distances[i] = row
	}

	matches := tracker.performMatching(distances)
	for _, match := range matches {
		id := ids[match[0]]
		detection := frame[match[1]]
		if _, err := tracker.colonies[id].GetTimepoint(detection.Timestamp); err == nil {
			rollback()
			return errors.Wrapf(ErrInvalidArgument, "can't extend colony %d: it already has a timepoint at %s", id, detection.Timestamp)
		}
	}

	matchedDetections := make(map[int]struct{}, len(frame))
	for k, match := range matches {
		id := ids[match[0]]
		detection := frame[match[1]]
		if err := tracker.colonies[id].AppendTimepoint(detection); err != nil {
			// Only a concurrent writer on the colony itself gets here
			for _, done := range matches[:k] {
				tracker.colonies[ids[done[0]]].RemoveTimepoint(frame[done[1]].Timestamp)
			}
			rollback()
			return errors.Wrapf(err, "can't extend colony %d", id)
		}
		matchedDetections[match[1]] = struct{}{}
	}
	// Update only fails on a singular innovation covariance, which the
	// measurement noise rules out for finite detections
	for _, match := range matches {
		id := ids[match[0]]
		detection := frame[match[1]]
		if err := tracker.filters[id].Update(detection.Center.Row, detection.Center.Col); err != nil {
			return errors.Wrapf(err, "can't update tracker of colony %d", id)
		}
	}

	for j, detection := range frame {
		if _, ok := matchedDetections[j]; ok {
			continue
		}
		id := tracker.nextID
		colony, err := NewColony(id, detection)
		if err != nil {
			return err
		}
		tracker.colonies[id] = colony
		tracker.filters[id] = tracker.newFilter(detection.Center)
		tracker.nextID++
		tracker.logger.Debug("new colony",
			slog.Int("id", id),
			slog.Duration("timestamp", detection.Timestamp),
			slog.Float64("row", detection.Center.Row),
			slog.Float64("col", detection.Center.Col),
		)
	}
	return nil
}

// performMatching returns (colony index, detection index) pairs no further
// apart than maxDistance.
func (tracker *Tracker) performMatching(distances [][]float64) [][2]int {
	if len(distances) == 0 || len(distances[0]) == 0 {
		return [][2]int{}
	}
	switch tracker.algorithm {
	case MatchingAlgorithmHungarian:
		return tracker.performHungarianMatching(distances)
	default:
		return tracker.performGreedyMatching(distances)
	}
}

func (tracker *Tracker) performHungarianMatching(distances [][]float64) [][2]int {
	numColonies := len(distances)
	numDetections := len(distances[0])
	// Pad to a square score matrix; padding and out-of-range pairs score 0
	paddedSize := maxInt(numColonies, numDetections)
	scores := make([][]float64, paddedSize)
	for i := range scores {
		scores[i] = make([]float64, paddedSize)
	}
	for i := 0; i < numColonies; i++ {
		for j := 0; j < numDetections; j++ {
			if distances[i][j] <= tracker.maxDistance {
				scores[i][j] = tracker.maxDistance - distances[i][j]
			}
		}
	}
	assignments := hungarian.SolveMax(scores)
	matches := make([][2]int, 0, minInt(numColonies, numDetections))
	for colonyIdx, row := range assignments {
		for detectionIdx := range row {
			if colonyIdx >= numColonies || detectionIdx >= numDetections {
				continue
			}
			if distances[colonyIdx][detectionIdx] <= tracker.maxDistance {
				matches = append(matches, [2]int{colonyIdx, detectionIdx})
			}
		}
	}
	// Map iteration order is random
	slices.SortFunc(matches, func(a, b [2]int) int {
		return a[0] - b[0]
	})
	return matches
}

// candidateMatch pairs a tracked colony with a detection of the current frame.
type candidateMatch struct {
	colony    int // index into the tracker's colony order
	detection int // index into the frame
	distance  float64
}

// compareCandidates orders by distance, breaking ties by colony then detection
// index so matching is deterministic.
func compareCandidates(a, b candidateMatch) int {
	if c := cmp.Compare(a.distance, b.distance); c != 0 {
		return c
	}
	if c := cmp.Compare(a.colony, b.colony); c != 0 {
		return c
	}
	return cmp.Compare(a.detection, b.detection)
}

// performGreedyMatching repeatedly takes the closest pair whose colony and
// detection are both still free. Every candidate is visited, so one sort does
// the job of a priority queue.
func (tracker *Tracker) performGreedyMatching(distances [][]float64) [][2]int {
	candidates := make([]candidateMatch, 0)
	for i := range distances {
		for j, distance := range distances[i] {
			if distance <= tracker.maxDistance {
				candidates = append(candidates, candidateMatch{colony: i, detection: j, distance: distance})
			}
		}
	}
	slices.SortFunc(candidates, compareCandidates)
	usedColonies := make(map[int]struct{})
	usedDetections := make(map[int]struct{})
	matches := make([][2]int, 0)
	for _, candidate := range candidates {
		if _, ok := usedColonies[candidate.colony]; ok {
			continue
		}
		if _, ok := usedDetections[candidate.detection]; ok {
			continue
		}
		usedColonies[candidate.colony] = struct{}{}
		usedDetections[candidate.detection] = struct{}{}
		matches = append(matches, [2]int{candidate.colony, candidate.detection})
	}
	return matches
}
