package graph

// Edge is a resolved connection endpoint pair, reported by display name.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Slot  int    `json:"slot"`
	Index int    `json:"index"`
}

// Report describes the connection table as it actually resolves: the live
// edges, nodes no edge touches, and references that resolve to nothing.
type Report struct {
	Edges   []Edge   `json:"edges"`
	Orphans []string `json:"orphans,omitempty"`
	Broken  []string `json:"broken,omitempty"`
}

// Inspect resolves every connection entry against the node set. Single-node
// graphs report no orphans; a lone node needs no edges.
func (g *Graph) Inspect() Report {
	r := NewResolver(g)
	rep := Report{}
	touched := make(map[string]bool, len(g.Nodes))

	for ref, set := range g.Connections {
		src, ok := r.Resolve(ref)
		if !ok {
			rep.Broken = append(rep.Broken, ref)
			continue
		}
		if set == nil {
			continue
		}
		for slot, targets := range set.Main {
			for _, t := range targets {
				dst, ok := r.Resolve(t.Node)
				if !ok {
					rep.Broken = append(rep.Broken, t.Node)
					continue
				}
				rep.Edges = append(rep.Edges, Edge{From: src.Name, To: dst.Name, Slot: slot, Index: t.Index})
				touched[src.ID] = true
				touched[dst.ID] = true
			}
		}
	}

	if len(g.Nodes) > 1 {
		for i := range g.Nodes {
			if !touched[g.Nodes[i].ID] {
				rep.Orphans = append(rep.Orphans, g.Nodes[i].Name)
			}
		}
	}
	return rep
}
