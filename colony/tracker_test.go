package colony

import (
	"bytes"
	"log/slog"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var trackerAlgorithms = []struct {
	name      string
	algorithm MatchingAlgorithm
}{
	{"hungarian", MatchingAlgorithmHungarian},
	{"greedy", MatchingAlgorithmGreedy},
}

// jitter returns a small deterministic offset in [-0.4, 0.4].
func jitter(frame, colony int) float64 {
	return 0.4 * math.Sin(float64(7*frame+3*colony))
}

func TestMatchDetectionsStatic(t *testing.T) {
	plate := []Point{{10, 10}, {10, 30}, {40, 20}}
	late := Point{60, 60}
	for _, tt := range trackerAlgorithms {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(5.0, tt.algorithm)
			for frame := 0; frame < 5; frame++ {
				ts := time.Duration(frame) * time.Hour
				detections := make([]Timepoint, 0, len(plate)+1)
				for i, center := range plate {
					detections = append(detections, Timepoint{
						Timestamp: ts,
						Area:      float64(10 * (frame + 1)),
						Center:    Point{Row: center.Row + jitter(frame, i), Col: center.Col - jitter(frame, i)},
					})
				}
				if frame >= 2 {
					detections = append(detections, Timepoint{Timestamp: ts, Area: 1, Center: late})
				}
				if frame%2 == 1 {
					// Detection order carries no meaning
					slices.Reverse(detections)
				}
				require.NoError(t, tracker.MatchDetections(detections))
			}

			colonies := tracker.Colonies()
			require.Len(t, colonies, 4)
			for i, colony := range colonies[:3] {
				assert.Equal(t, i+1, colony.ID)
				assert.Equal(t, 5, colony.Len())
				center, err := colony.Center()
				require.NoError(t, err)
				assert.InDelta(t, plate[i].Row, center.Row, 0.5)
				assert.InDelta(t, plate[i].Col, center.Col, 0.5)
			}
			assert.Equal(t, 4, colonies[3].ID)
			assert.Equal(t, []time.Duration{2 * time.Hour, 3 * time.Hour, 4 * time.Hour}, colonies[3].Timestamps())
		})
	}
}

func TestMatchDetectionsNearby(t *testing.T) {
	for _, tt := range trackerAlgorithms {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(2.0, tt.algorithm)
			require.NoError(t, tracker.MatchDetections([]Timepoint{
				{Timestamp: 0, Center: Point{10, 10}},
				{Timestamp: 0, Center: Point{10, 13}},
			}))
			// The first detection is in reach of both colonies
			require.NoError(t, tracker.MatchDetections([]Timepoint{
				{Timestamp: time.Minute, Center: Point{10, 11.4}},
				{Timestamp: time.Minute, Center: Point{10, 13.5}},
			}))
			colonies := tracker.Colonies()
			require.Len(t, colonies, 2)
			first, err := colonies[0].TimepointLast()
			require.NoError(t, err)
			assert.Equal(t, 11.4, first.Center.Col)
			second, err := colonies[1].TimepointLast()
			require.NoError(t, err)
			assert.Equal(t, 13.5, second.Center.Col)
		})
	}
}

func TestTrackerSeed(t *testing.T) {
	detections := []Timepoint{}
	for _, ts := range []time.Duration{time.Hour, 2 * time.Hour} {
		frame, err := FromLabels(fixtureLabels, ts, nil)
		require.NoError(t, err)
		detections = append(detections, frame...)
	}
	colonies, err := Cluster(detections, 1)
	require.NoError(t, err)

	tracker := NewTrackerDefault()
	require.NoError(t, tracker.Seed(colonies...))

	frame, err := FromLabels(fixtureLabels, 3*time.Hour, nil)
	require.NoError(t, err)
	frame = append(frame, Timepoint{Timestamp: 3 * time.Hour, Area: 1, Center: Point{100, 100}})
	require.NoError(t, tracker.MatchDetections(frame))

	tracked := tracker.Colonies()
	require.Len(t, tracked, 4)
	for i, colony := range tracked[:3] {
		assert.Same(t, colonies[i], colony)
		assert.Equal(t, []time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour}, colony.Timestamps())
	}
	assert.Equal(t, 4, tracked[3].ID)
}

func TestTrackerSeedInvalid(t *testing.T) {
	tracker := NewTrackerDefault()
	colony, err := NewColony(1, Timepoint{Center: Point{1, 1}})
	require.NoError(t, err)
	require.NoError(t, tracker.Seed(colony))

	duplicate, err := NewColony(1, Timepoint{Center: Point{50, 50}})
	require.NoError(t, err)
	assert.ErrorIs(t, tracker.Seed(duplicate), ErrInvalidArgument)

	empty, err := NewColony(2)
	require.NoError(t, err)
	assert.ErrorIs(t, tracker.Seed(empty), ErrEmptyColony)
	assert.Len(t, tracker.Colonies(), 1)
}

func TestMatchDetectionsSameFrameTwice(t *testing.T) {
	frame := []Timepoint{{Timestamp: time.Hour, Center: Point{5, 5}}}
	tracker := NewTrackerDefault()
	require.NoError(t, tracker.MatchDetections(frame))
	assert.ErrorIs(t, tracker.MatchDetections(frame), ErrInvalidArgument)
}

func TestMatchDetectionsRejectedFrameChangesNothing(t *testing.T) {
	first, err := NewColony(1, Timepoint{Timestamp: time.Hour, Center: Point{10, 10}})
	require.NoError(t, err)
	second, err := NewColony(2, Timepoint{Timestamp: 2 * time.Hour, Center: Point{50, 50}})
	require.NoError(t, err)
	tracker := NewTrackerDefault()
	require.NoError(t, tracker.Seed(first, second))
	covariances := []*mat.Dense{mat.DenseCopyOf(tracker.filters[1].P), mat.DenseCopyOf(tracker.filters[2].P)}

	// Colony 1 could take its detection, colony 2 already has this timestamp
	frame := []Timepoint{
		{Timestamp: 2 * time.Hour, Center: Point{10, 10}},
		{Timestamp: 2 * time.Hour, Center: Point{50, 50}},
	}
	err = tracker.MatchDetections(frame)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Equal(t, []time.Duration{time.Hour}, first.Timestamps())
	assert.Equal(t, []time.Duration{2 * time.Hour}, second.Timestamps())
	assert.Len(t, tracker.Colonies(), 2)
	for i, id := range []int{1, 2} {
		assert.True(t, mat.Equal(covariances[i], tracker.filters[id].P), "covariance of colony %d", id)
	}
	row, col := tracker.filters[1].GetState()
	assert.Equal(t, 10.0, row)
	assert.Equal(t, 10.0, col)

	// The same frame one step later goes through
	for i := range frame {
		frame[i].Timestamp = 3 * time.Hour
	}
	require.NoError(t, tracker.MatchDetections(frame))
	assert.Equal(t, []time.Duration{time.Hour, 3 * time.Hour}, first.Timestamps())
	assert.Equal(t, []time.Duration{2 * time.Hour, 3 * time.Hour}, second.Timestamps())
}

func TestMatchDetectionsInvalid(t *testing.T) {
	tracker := NewTrackerDefault()
	err := tracker.MatchDetections([]Timepoint{{Center: Point{math.NaN(), 1}}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, tracker.Colonies())

	require.NoError(t, tracker.MatchDetections(nil))
	assert.Empty(t, tracker.Colonies())
}

func TestGreedyMatchingOrder(t *testing.T) {
	tracker := NewTracker(5.0, MatchingAlgorithmGreedy)
	// Equal distances resolve by colony, then detection
	matches := tracker.performGreedyMatching([][]float64{
		{1, 1, 7},
		{1, 3, 0.5},
	})
	assert.Equal(t, [][2]int{{1, 2}, {0, 0}}, matches)
	assert.Empty(t, tracker.performGreedyMatching([][]float64{{6}}))
}

func TestTrackerLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tracker := NewTracker(5.0, MatchingAlgorithmGreedy, WithLogger(logger), WithTimeStep(0.5))
	require.NoError(t, tracker.MatchDetections([]Timepoint{{Timestamp: time.Second, Center: Point{1, 2}}}))
	require.NoError(t, tracker.MatchDetections([]Timepoint{{Timestamp: 2 * time.Second, Center: Point{1, 2}}}))

	output := buf.String()
	assert.Equal(t, 1, strings.Count(output, "new colony"))
	assert.Contains(t, output, "id=1")
}
