// Package graph holds the compiled workflow representation: typed nodes and
// the positional connection table the external execution engine consumes.
package graph

// Node is one compiled unit of work.
type Node struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Position   [2]int                 `json:"position"`
	Parameters map[string]interface{} `json:"parameters"`
}

// Target is one edge endpoint: the referenced node plus the input slot it
// lands on. Node may be an id or a display name; resolve through Resolver.
type Target struct {
	Node  string `json:"node"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// Connections maps a source node reference (id or name) to its output
// slots; each slot holds an ordered list of targets.
type Connections map[string]*OutputSet

// OutputSet groups a node's outgoing edges by output slot.
type OutputSet struct {
	Main [][]Target `json:"main"`
}

// Graph is the compiled workflow.
type Graph struct {
	ID          string                 `json:"id,omitempty"`
	Name        string                 `json:"name"`
	Nodes       []Node                 `json:"nodes"`
	Connections Connections            `json:"connections"`
	Settings    map[string]interface{} `json:"settings,omitempty"`
}

// Resolver looks nodes up by either of their two unique keys. Connection
// tables are keyed inconsistently (compiler output uses ids, rebuilt tables
// use names), so every lookup in this package goes through here.
type Resolver struct {
	byID   map[string]*Node
	byName map[string]*Node
}

// NewResolver indexes the graph's current node set.
func NewResolver(g *Graph) *Resolver {
	r := &Resolver{
		byID:   make(map[string]*Node, len(g.Nodes)),
		byName: make(map[string]*Node, len(g.Nodes)),
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		r.byID[n.ID] = n
		r.byName[n.Name] = n
	}
	return r
}

// Resolve returns the node a reference points at, trying id first.
func (r *Resolver) Resolve(ref string) (*Node, bool) {
	if n, ok := r.byID[ref]; ok {
		return n, true
	}
	n, ok := r.byName[ref]
	return n, ok
}

// Resolve is the graph-level convenience over a fresh Resolver.
func (g *Graph) Resolve(ref string) (*Node, bool) {
	return NewResolver(g).Resolve(ref)
}
