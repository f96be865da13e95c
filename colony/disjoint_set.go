package colony

// disjointSet is a union-find forest over detection indices.
type disjointSet []int

func newDisjointSet(n int) disjointSet {
	sets := make(disjointSet, n)
	for i := range sets {
		sets[i] = i
	}
	return sets
}

// find returns the root of i, halving the path on the way.
func (sets disjointSet) find(i int) int {
	for sets[i] != i {
		sets[i] = sets[sets[i]]
		i = sets[i]
	}
	return i
}

// union merges the sets of a and b. The smaller root wins, so every root is
// the smallest index of its set.
func (sets disjointSet) union(a, b int) {
	rootA, rootB := sets.find(a), sets.find(b)
	if rootA == rootB {
		return
	}
	if rootB < rootA {
		rootA, rootB = rootB, rootA
	}
	sets[rootB] = rootA
}
