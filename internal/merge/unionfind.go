package merge

// unionFind clusters ids connected by candidate pairs.
type unionFind struct {
	parent map[int64]int64
}

func newUnionFind() *unionFind {
	return &unionFind{parent: map[int64]int64{}}
}

func (u *unionFind) find(x int64) int64 {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
	if u.parent[x] != x {
		u.parent[x] = u.find(u.parent[x])
	}
	return u.parent[x]
}

func (u *unionFind) union(x, y int64) {
	rootX, rootY := u.find(x), u.find(y)
	if rootX != rootY {
		u.parent[rootX] = rootY
	}
}

// components returns the disjoint sets seen so far, in no particular order.
func (u *unionFind) components() [][]int64 {
	groups := map[int64][]int64{}
	for x := range u.parent {
		root := u.find(x)
		groups[root] = append(groups[root], x)
	}
	out := make([][]int64, 0, len(groups))
	for _, members := range groups {
		out = append(out, members)
	}
	return out
}
