package colony

import (
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixtureLabels = Labels{
	{0, 0, 0, 0, 0, 0, 0, 1, 0},
	{2, 2, 0, 0, 1, 0, 0, 1, 0},
	{2, 2, 0, 1, 0, 1, 0, 0, 0},
	{0, 0, 0, 1, 1, 1, 1, 0, 0},
	{0, 1, 1, 0, 1, 1, 1, 1, 0},
	{0, 1, 1, 1, 1, 0, 1, 0, 0},
	{0, 0, 1, 0, 1, 1, 1, 0, 3},
	{0, 1, 0, 0, 0, 0, 0, 0, 0},
}

// labelImage paints every pixel with its own label value, shifted by origin.
func labelImage(labels Labels, origin image.Point, rgba bool) image.Image {
	rect := image.Rect(0, 0, len(labels[0]), len(labels)).Add(origin)
	if rgba {
		img := image.NewRGBA(rect)
		for r, row := range labels {
			for c, label := range row {
				v := uint8(label)
				img.SetRGBA(origin.X+c, origin.Y+r, color.RGBA{R: v, G: v, B: v, A: 255})
			}
		}
		return img
	}
	img := image.NewGray(rect)
	for r, row := range labels {
		for c, label := range row {
			img.SetGray(origin.X+c, origin.Y+r, color.Gray{Y: uint8(label)})
		}
	}
	return img
}

func TestFromLabels(t *testing.T) {
	ts := 90 * time.Minute
	timepoints, err := FromLabels(fixtureLabels, ts, nil)
	require.NoError(t, err)
	require.Len(t, timepoints, 3)

	expected := []struct {
		area      float64
		center    Point
		perimeter float64
	}{
		{25, Point{Row: 3.92, Col: 4.12}, 22},
		{4, Point{Row: 1.5, Col: 0.5}, 4},
		{1, Point{Row: 6, Col: 8}, 1},
	}
	for i, tt := range expected {
		tp := timepoints[i]
		assert.Equal(t, ts, tp.Timestamp)
		assert.Equal(t, tt.area, tp.Area, "label %d", i+1)
		assert.InDelta(t, tt.center.Row, tp.Center.Row, eps, "label %d", i+1)
		assert.InDelta(t, tt.center.Col, tp.Center.Col, eps, "label %d", i+1)
		assert.InDelta(t, math.Sqrt(4*tt.area/math.Pi), tp.Diameter, eps, "label %d", i+1)
		assert.Equal(t, tt.perimeter, tp.Perimeter, "label %d", i+1)
		assert.Equal(t, Color{}, tp.Color)
	}
}

func TestFromLabelsImage(t *testing.T) {
	tests := []struct {
		name   string
		origin image.Point
		rgba   bool
	}{
		{"gray", image.Point{}, false},
		{"rgba", image.Point{}, true},
		{"offset", image.Point{X: 10, Y: -3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := labelImage(fixtureLabels, tt.origin, tt.rgba)
			timepoints, err := FromLabels(fixtureLabels, 0, img)
			require.NoError(t, err)
			require.Len(t, timepoints, 3)
			for i, tp := range timepoints {
				v := float64(i + 1)
				assert.InDelta(t, v, tp.Color.R, eps)
				assert.InDelta(t, v, tp.Color.G, eps)
				assert.InDelta(t, v, tp.Color.B, eps)
			}
		})
	}
}

func TestFromLabelsImageShape(t *testing.T) {
	img := labelImage(fixtureLabels[:1], image.Point{}, false)
	_, err := FromLabels(fixtureLabels, 0, img)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFromLabelsRagged(t *testing.T) {
	labels := Labels{{1, 1}, {1}}
	_, _, err := labels.Dims()
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = FromLabels(labels, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFromLabelsEmpty(t *testing.T) {
	timepoints, err := FromLabels(nil, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, timepoints)

	timepoints, err = FromLabels(Labels{{0, 0}, {0, 0}}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, timepoints)
}

func TestExtractorPipeline(t *testing.T) {
	// Two frames of the same plate extracted and clustered into colonies
	var extractor Extractor = ExtractorFunc(FromLabels)
	detections := []Timepoint{}
	for _, ts := range []time.Duration{time.Hour, 2 * time.Hour} {
		frame, err := extractor.Extract(fixtureLabels, ts, nil)
		require.NoError(t, err)
		detections = append(detections, frame...)
	}
	colonies, err := Cluster(detections, 1)
	require.NoError(t, err)
	require.Len(t, colonies, 3)
	for _, colony := range colonies {
		assert.Equal(t, []time.Duration{time.Hour, 2 * time.Hour}, colony.Timestamps())
	}
}
