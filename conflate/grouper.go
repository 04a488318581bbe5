package conflate

import "sort"

// unionFind implements a disjoint-set over dense integer ordinals with
// path compression and union-by-size. Indexing by ordinal rather than by
// pointer keeps the structure in two flat arrays.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	size := make([]int, n)
	for i := range parent {
		parent[i] = i
		size[i] = 1
	}
	return &unionFind{parent: parent, size: size}
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}

// groupFootprints partitions the surviving footprints into connected
// components of the significant-overlap graph. Transitive overlap is
// enough for membership: if A overlaps B and B overlaps C, all three land
// in one group even when A and C never touch.
//
// Significant edges are processed in sorted (A, B) id order regardless of
// how they were produced, so the union-find merge order -- and any
// order-sensitive tie-breaking downstream -- is reproducible across runs
// and across parallel edge computation. Groups come back ordered by their
// smallest member id, members sorted by id; singletons are included.
func groupFootprints(fps []*repairedFootprint, edges []OverlapEdge) [][]*repairedFootprint {
	byID := make(map[string]int, len(fps))
	for _, f := range fps {
		byID[f.fp.ID] = f.ordinal
	}

	significant := make([]OverlapEdge, 0, len(edges))
	for _, e := range edges {
		if e.Significant {
			significant = append(significant, e)
		}
	}
	sort.Slice(significant, func(i, j int) bool {
		if significant[i].A != significant[j].A {
			return significant[i].A < significant[j].A
		}
		return significant[i].B < significant[j].B
	})

	uf := newUnionFind(len(fps))
	for _, e := range significant {
		uf.union(byID[e.A], byID[e.B])
	}

	members := make(map[int][]*repairedFootprint)
	for _, f := range fps {
		root := uf.find(f.ordinal)
		members[root] = append(members[root], f)
	}

	groups := make([][]*repairedFootprint, 0, len(members))
	for _, group := range members {
		sort.Slice(group, func(i, j int) bool { return group[i].fp.ID < group[j].fp.ID })
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].fp.ID < groups[j][0].fp.ID })
	return groups
}
