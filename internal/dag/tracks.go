package dag

import "sort"

// Track is a weakly connected component of the graph. Tasks in different
// tracks share no edges, so their schedules never interact except through
// admission control.
type Track struct {
	// ID numbers tracks from 0 in the order Tracks returns them.
	ID int

	// TaskIDs lists the track's tasks in topological order when the graph
	// is acyclic, otherwise in ascending id order.
	TaskIDs []uint32
}

// Tracks partitions the graph into independent tracks using union-find.
// Tracks are sorted by size (largest first), then by smallest member id.
func (g *Graph) Tracks() []Track {
	if len(g.tasks) == 0 {
		return nil
	}

	pos := make(map[uint32]int, len(g.tasks))
	if order, err := g.TopologicalSort(); err == nil {
		for i, id := range order {
			pos[id] = i
		}
	} else {
		for i, id := range g.Tasks() {
			pos[id] = i
		}
	}

	uf := NewUnionFind()
	for id := range g.tasks {
		uf.Add(id)
	}
	for id, deps := range g.reverse {
		for _, dep := range deps {
			uf.Union(id, dep)
		}
	}

	components := uf.Components()
	tracks := make([]Track, 0, len(components))
	for _, members := range components {
		sort.Slice(members, func(i, j int) bool {
			return pos[members[i]] < pos[members[j]]
		})
		tracks = append(tracks, Track{TaskIDs: members})
	}

	sort.Slice(tracks, func(i, j int) bool {
		if len(tracks[i].TaskIDs) != len(tracks[j].TaskIDs) {
			return len(tracks[i].TaskIDs) > len(tracks[j].TaskIDs)
		}
		return minID(tracks[i].TaskIDs) < minID(tracks[j].TaskIDs)
	})
	for i := range tracks {
		tracks[i].ID = i
	}
	return tracks
}

func minID(ids []uint32) uint32 {
	m := ids[0]
	for _, id := range ids[1:] {
		if id < m {
			m = id
		}
	}
	return m
}
