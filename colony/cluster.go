package colony

import (
	"cmp"
	"math"
	"slices"

	"github.com/pkg/errors"
)

// Linkage selects how Cluster links two detections.
type Linkage uint16

const (
	// LinkageEuclidean links detections whose centers are at most the distance
	// apart and takes connected components (single linkage)
	LinkageEuclidean Linkage = iota
	// LinkageAxes groups by row with GroupByAxis, then splits every row group by column
	LinkageAxes
)

func (l Linkage) String() string {
	switch l {
	case LinkageEuclidean:
		return "euclidean"
	case LinkageAxes:
		return "axes"
	default:
		return "unknown"
	}
}

// GroupByAxis performs single-linkage grouping along one axis of the
// detection centers. Detections are sorted by that coordinate and a new group
// starts whenever the gap to the previous detection exceeds distance, so groups
// chain: two members may be further apart than distance.
func GroupByAxis(detections []Timepoint, distance float64, axis Axis) ([][]Timepoint, error) {
	if err := axis.Validate(); err != nil {
		return nil, err
	}
	if err := validateDistance(distance); err != nil {
		return nil, err
	}
	indices := make([]int, len(detections))
	for i := range indices {
		indices[i] = i
	}
	indexGroups := groupIndicesByAxis(detections, indices, distance, axis)
	groups := make([][]Timepoint, len(indexGroups))
	for i, indexGroup := range indexGroups {
		groups[i] = pick(detections, indexGroup)
	}
	return groups, nil
}

// groupIndicesByAxis groups detections[indices] along axis. Axis must be valid.
func groupIndicesByAxis(detections []Timepoint, indices []int, distance float64, axis Axis) [][]int {
	if len(indices) == 0 {
		return [][]int{}
	}
	sorted := slices.Clone(indices)
	slices.SortStableFunc(sorted, func(a, b int) int {
		return cmp.Compare(detections[a].Center.Coord(axis), detections[b].Center.Coord(axis))
	})
	groups := [][]int{{sorted[0]}}
	for k := 1; k < len(sorted); k++ {
		gap := detections[sorted[k]].Center.Coord(axis) - detections[sorted[k-1]].Center.Coord(axis)
		if gap > distance {
			groups = append(groups, []int{sorted[k]})
			continue
		}
		last := len(groups) - 1
		groups[last] = append(groups[last], sorted[k])
	}
	return groups
}

// Cluster groups detections believed to belong to the same physical colony:
// two detections are linked when their centers are at most distance apart and
// groups are the transitive closure of that relation. Every group becomes a
// colony with a sequential id starting at 1, in order of each group's first
// detection in the input.
//
// A colony holds one timepoint per timestamp, so a group that links two
// detections of the same frame is an error. Use ClusterGroups to partition
// detections of a single frame.
func Cluster(detections []Timepoint, distance float64) ([]*Colony, error) {
	return ClusterWith(detections, distance, LinkageEuclidean)
}

// ClusterWith is Cluster with an explicit linkage rule.
func ClusterWith(detections []Timepoint, distance float64, linkage Linkage) ([]*Colony, error) {
	groups, err := ClusterGroups(detections, distance, linkage)
	if err != nil {
		return nil, err
	}
	colonies := make([]*Colony, 0, len(groups))
	for i, group := range groups {
		colony, err := NewColony(i+1, group...)
		if err != nil {
			return nil, errors.Wrapf(err, "can't build colony from cluster of %d detections", len(group))
		}
		colonies = append(colonies, colony)
	}
	return colonies, nil
}

// ClusterGroups partitions detections with the given linkage without building
// colonies, so detections sharing a timestamp may end up in one group. Groups
// keep input order and are ordered by their first detection in the input.
func ClusterGroups(detections []Timepoint, distance float64, linkage Linkage) ([][]Timepoint, error) {
	if len(detections) == 0 {
		return nil, errors.Wrap(ErrInvalidArgument, "can't cluster an empty set of detections")
	}
	if err := validateDistance(distance); err != nil {
		return nil, err
	}

	var indexGroups [][]int
	switch linkage {
	case LinkageEuclidean:
		indexGroups = connectedComponents(detections, distance)
	case LinkageAxes:
		indexGroups = axesComponents(detections, distance)
	default:
		return nil, errors.Wrapf(ErrInvalidArgument, "unknown linkage %d", linkage)
	}
	groups := make([][]Timepoint, len(indexGroups))
	for i, indexGroup := range indexGroups {
		groups[i] = pick(detections, indexGroup)
	}
	return groups, nil
}

// connectedComponents links every pair of centers within distance and returns
// the connected components, each sorted, ordered by their smallest index.
// Memory stays linear in the number of detections however many pairs link.
func connectedComponents(detections []Timepoint, distance float64) [][]int {
	centers := make([]Point, len(detections))
	for i, detection := range detections {
		centers[i] = detection.Center
	}
	cellSize := distance
	if cellSize == 0 {
		// Only coincident centers link; any positive cell size is correct
		cellSize = 1
	}
	index := NewSpatialIndex(cellSize)
	index.Build(centers)

	sets := newDisjointSet(len(centers))
	for i := range centers {
		for _, j := range index.RegionQuery(i, distance) {
			if j > i {
				sets.union(i, j)
			}
		}
	}

	// Roots are the smallest member, so a root is met before the rest of its set
	groups := [][]int{}
	position := make(map[int]int)
	for i := range centers {
		root := sets.find(i)
		k, ok := position[root]
		if !ok {
			k = len(groups)
			position[root] = k
			groups = append(groups, []int{})
		}
		groups[k] = append(groups[k], i)
	}
	return groups
}

// axesComponents groups by row first and then splits each row group by column.
func axesComponents(detections []Timepoint, distance float64) [][]int {
	all := make([]int, len(detections))
	for i := range all {
		all[i] = i
	}
	groups := [][]int{}
	for _, rowGroup := range groupIndicesByAxis(detections, all, distance, AxisRow) {
		for _, group := range groupIndicesByAxis(detections, rowGroup, distance, AxisCol) {
			slices.Sort(group)
			groups = append(groups, group)
		}
	}
	sortGroups(groups)
	return groups
}

func sortGroups(groups [][]int) {
	slices.SortFunc(groups, func(a, b []int) int {
		return cmp.Compare(a[0], b[0])
	})
}

func pick(detections []Timepoint, indices []int) []Timepoint {
	picked := make([]Timepoint, len(indices))
	for i, idx := range indices {
		picked[i] = detections[idx]
	}
	return picked
}

func validateDistance(distance float64) error {
	if math.IsNaN(distance) || distance < 0 {
		return errors.Wrapf(ErrInvalidArgument, "distance must be a non-negative number, got %v", distance)
	}
	return nil
}
