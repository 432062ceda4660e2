package dag

// UnionFind is a disjoint-set structure with path compression and union by
// rank over task ids.
type UnionFind struct {
	parent map[uint32]uint32
	rank   map[uint32]int
}

// NewUnionFind creates an empty UnionFind.
func NewUnionFind() *UnionFind {
	return &UnionFind{
		parent: make(map[uint32]uint32),
		rank:   make(map[uint32]int),
	}
}

// Add inserts x as its own singleton set. Adding a known element is a no-op.
func (uf *UnionFind) Add(x uint32) {
	if _, ok := uf.parent[x]; ok {
		return
	}
	uf.parent[x] = x
	uf.rank[x] = 0
}

// Find returns the representative of the set containing x, adding x as a
// singleton first if it is unknown.
func (uf *UnionFind) Find(x uint32) uint32 {
	if _, ok := uf.parent[x]; !ok {
		uf.Add(x)
		return x
	}
	if uf.parent[x] != x {
		uf.parent[x] = uf.Find(uf.parent[x])
	}
	return uf.parent[x]
}

// Union merges the sets containing x and y.
func (uf *UnionFind) Union(x, y uint32) {
	rx := uf.Find(x)
	ry := uf.Find(y)
	if rx == ry {
		return
	}
	switch {
	case uf.rank[rx] < uf.rank[ry]:
		uf.parent[rx] = ry
	case uf.rank[rx] > uf.rank[ry]:
		uf.parent[ry] = rx
	default:
		uf.parent[ry] = rx
		uf.rank[rx]++
	}
}

// Connected reports whether x and y belong to the same set.
func (uf *UnionFind) Connected(x, y uint32) bool {
	return uf.Find(x) == uf.Find(y)
}

// Components groups every element by its set representative. Member order
// is unspecified.
func (uf *UnionFind) Components() map[uint32][]uint32 {
	groups := make(map[uint32][]uint32)
	for x := range uf.parent {
		root := uf.Find(x)
		groups[root] = append(groups[root], x)
	}
	return groups
}
