package graph

import "log"

// Repair drops every connection table entry that cannot be resolved
// against the current node set: source keys pointing at no node, targets
// pointing at no node, and the empty slots left behind. Running it on an
// already-clean graph changes nothing.
func (g *Graph) Repair() int {
	if g.Connections == nil {
		g.Connections = Connections{}
		return 0
	}

	r := NewResolver(g)
	removed := 0

	for ref, set := range g.Connections {
		if _, ok := r.Resolve(ref); !ok {
			delete(g.Connections, ref)
			removed++
			continue
		}
		if set == nil {
			delete(g.Connections, ref)
			removed++
			continue
		}

		slots := set.Main[:0]
		for _, targets := range set.Main {
			kept := targets[:0]
			for _, t := range targets {
				if _, ok := r.Resolve(t.Node); ok {
					kept = append(kept, t)
				} else {
					removed++
				}
			}
			if len(kept) > 0 {
				slots = append(slots, kept)
			}
		}
		set.Main = slots

		if len(set.Main) == 0 {
			delete(g.Connections, ref)
		}
	}

	if removed > 0 {
		log.Printf("[graph] repair removed %d dangling reference(s) from %q", removed, g.Name)
	}
	return removed
}
