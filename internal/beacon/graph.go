package beacon

import (
	"fmt"
	"sort"
	"sync"
)

// Graph is an in-memory view of the beacon proximity graph. It is safe for
// concurrent readers; Reload swaps the whole view atomically.
type Graph struct {
	mu        sync.RWMutex
	beacons   map[string]Beacon
	neighbors map[string][]Edge // from beacon ID -> edges ascending by (rank, to)
}

// NewGraph builds a graph from beacon and edge snapshots. Edges referencing
// unknown beacons or with From == To are rejected.
func NewGraph(beacons []Beacon, edges []Edge) (*Graph, error) {
	g := &Graph{}
	if err := g.load(beacons, edges); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) load(beacons []Beacon, edges []Edge) error {
	bm := make(map[string]Beacon, len(beacons))
	for _, b := range beacons {
		if b.ID == "" {
			return fmt.Errorf("beacon with empty ID")
		}
		if _, dup := bm[b.ID]; dup {
			return fmt.Errorf("duplicate beacon %q", b.ID)
		}
		bm[b.ID] = b
	}

	nm := make(map[string][]Edge)
	seen := make(map[[2]string]bool, len(edges))
	for _, e := range edges {
		if e.From == e.To {
			return fmt.Errorf("self edge on beacon %q", e.From)
		}
		if _, ok := bm[e.From]; !ok {
			return fmt.Errorf("edge from unknown beacon %q", e.From)
		}
		if _, ok := bm[e.To]; !ok {
			return fmt.Errorf("edge to unknown beacon %q", e.To)
		}
		pair := [2]string{e.From, e.To}
		if seen[pair] {
			return fmt.Errorf("duplicate edge %q -> %q", e.From, e.To)
		}
		seen[pair] = true
		nm[e.From] = append(nm[e.From], e)
	}

	// Deterministic search order: rank ascending, beacon ID as tie-break.
	for from := range nm {
		es := nm[from]
		sort.Slice(es, func(i, j int) bool {
			if es[i].Rank != es[j].Rank {
				return es[i].Rank < es[j].Rank
			}
			return es[i].To < es[j].To
		})
	}

	g.mu.Lock()
	g.beacons = bm
	g.neighbors = nm
	g.mu.Unlock()
	return nil
}

// Reload replaces the graph contents. On error the previous view is kept.
func (g *Graph) Reload(beacons []Beacon, edges []Edge) error {
	fresh := &Graph{}
	if err := fresh.load(beacons, edges); err != nil {
		return err
	}
	g.mu.Lock()
	g.beacons = fresh.beacons
	g.neighbors = fresh.neighbors
	g.mu.Unlock()
	return nil
}

// Beacon returns the beacon with the given ID.
func (g *Graph) Beacon(id string) (Beacon, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.beacons[id]
	return b, ok
}

// Neighbors returns the outgoing edges of a beacon ascending by
// (rank, to-beacon ID). A beacon with no outgoing edges yields nil.
func (g *Graph) Neighbors(id string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	es := g.neighbors[id]
	if len(es) == 0 {
		return nil
	}
	out := make([]Edge, len(es))
	copy(out, es)
	return out
}

// Size returns the number of beacons in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.beacons)
}
