package graph

import (
	"fmt"
	"log"

	"github.com/google/uuid"
)

// AddNode appends a new node and, when after names an existing node,
// splices it into that node's outgoing chain. With after empty the node is
// wired behind the current last node. Returns the created node's id.
func (g *Graph) AddNode(name, nodeType string, params map[string]interface{}, after string) (string, error) {
	if name == "" || nodeType == "" {
		return "", fmt.Errorf("add node: name and type are required")
	}
	if _, exists := g.Resolve(name); exists {
		return "", fmt.Errorf("add node: %q already exists", name)
	}

	x := positionStartX
	if n := len(g.Nodes); n > 0 {
		x = g.Nodes[n-1].Position[0] + positionStepX
	}
	node := Node{
		ID:         uuid.New().String(),
		Name:       name,
		Type:       nodeType,
		Position:   [2]int{x, positionY},
		Parameters: cloneParams(params),
	}

	var anchor *Node
	if after != "" {
		a, ok := g.Resolve(after)
		if !ok {
			return "", fmt.Errorf("add node: anchor %q not found", after)
		}
		anchor = a
	} else if len(g.Nodes) > 0 {
		anchor = &g.Nodes[len(g.Nodes)-1]
	}

	g.Nodes = append(g.Nodes, node)
	if anchor != nil {
		g.spliceAfter(anchor, node)
	}
	g.Repair()
	log.Printf("[graph] added node %q (%s) to %q", name, nodeType, g.Name)
	return node.ID, nil
}

// spliceAfter rewires anchor -> node, pushing anchor's previous first-slot
// targets onto the new node so the chain stays connected.
func (g *Graph) spliceAfter(anchor *Node, node Node) {
	if g.Connections == nil {
		g.Connections = Connections{}
	}
	var inherited []Target
	for _, ref := range []string{anchor.ID, anchor.Name} {
		set, ok := g.Connections[ref]
		if !ok || set == nil || len(set.Main) == 0 {
			continue
		}
		inherited = append(inherited, set.Main[0]...)
		delete(g.Connections, ref)
	}
	g.Connections[anchor.ID] = &OutputSet{
		Main: [][]Target{{{Node: node.ID, Type: "main", Index: 0}}},
	}
	if len(inherited) > 0 {
		g.Connections[node.ID] = &OutputSet{Main: [][]Target{inherited}}
	}
}

// ModifyNode renames a node and/or overwrites individual parameters. A
// rename is propagated through the connection table so name-keyed entries
// and targets keep resolving.
func (g *Graph) ModifyNode(ref, newName string, params map[string]interface{}) error {
	node, ok := g.Resolve(ref)
	if !ok {
		return fmt.Errorf("modify node: %q not found", ref)
	}

	if newName != "" && newName != node.Name {
		if other, exists := g.Resolve(newName); exists && other.ID != node.ID {
			return fmt.Errorf("modify node: name %q already taken", newName)
		}
		old := node.Name
		node.Name = newName
		g.renameRefs(old, newName)
		log.Printf("[graph] renamed node %q -> %q in %q", old, newName, g.Name)
	}

	if len(params) > 0 {
		if node.Parameters == nil {
			node.Parameters = map[string]interface{}{}
		}
		for k, v := range params {
			node.Parameters[k] = v
		}
	}
	g.Repair()
	return nil
}

func (g *Graph) renameRefs(old, updated string) {
	if set, ok := g.Connections[old]; ok {
		delete(g.Connections, old)
		g.Connections[updated] = set
	}
	for _, set := range g.Connections {
		if set == nil {
			continue
		}
		for _, targets := range set.Main {
			for i := range targets {
				if targets[i].Node == old {
					targets[i].Node = updated
				}
			}
		}
	}
}

// DeleteNode removes a node together with its outgoing entry and every
// inbound edge that referenced it.
func (g *Graph) DeleteNode(ref string) error {
	node, ok := g.Resolve(ref)
	if !ok {
		return fmt.Errorf("delete node: %q not found", ref)
	}
	id, name := node.ID, node.Name

	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			g.Nodes = append(g.Nodes[:i], g.Nodes[i+1:]...)
			break
		}
	}
	delete(g.Connections, id)
	delete(g.Connections, name)
	g.Repair()
	log.Printf("[graph] deleted node %q from %q", name, g.Name)
	return nil
}

// ConnectNodes adds an edge from source's first output slot to target's
// given input slot. Adding an edge that already exists is a no-op.
func (g *Graph) ConnectNodes(source, target string, index int) error {
	src, ok := g.Resolve(source)
	if !ok {
		return fmt.Errorf("connect: source %q not found", source)
	}
	dst, ok := g.Resolve(target)
	if !ok {
		return fmt.Errorf("connect: target %q not found", target)
	}
	if src.ID == dst.ID {
		return fmt.Errorf("connect: %q cannot connect to itself", src.Name)
	}

	if g.Connections == nil {
		g.Connections = Connections{}
	}
	r := NewResolver(g)
	set := g.entryFor(src, r)
	if len(set.Main) == 0 {
		set.Main = [][]Target{nil}
	}
	for _, t := range set.Main[0] {
		if n, ok := r.Resolve(t.Node); ok && n.ID == dst.ID && t.Index == index {
			return nil
		}
	}
	set.Main[0] = append(set.Main[0], Target{Node: dst.ID, Type: "main", Index: index})
	log.Printf("[graph] connected %q -> %q in %q", src.Name, dst.Name, g.Name)
	return nil
}

// entryFor finds the source's existing connection entry under either key,
// creating an id-keyed one when absent.
func (g *Graph) entryFor(src *Node, r *Resolver) *OutputSet {
	for _, ref := range []string{src.ID, src.Name} {
		if set, ok := g.Connections[ref]; ok && set != nil {
			return set
		}
	}
	set := &OutputSet{}
	g.Connections[src.ID] = set
	return set
}

// RebuildConnections discards the connection table and rewires the nodes
// as a chain in their slice order, keyed by name.
func (g *Graph) RebuildConnections() {
	g.Connections = make(Connections, len(g.Nodes))
	for i := 0; i < len(g.Nodes)-1; i++ {
		g.Connections[g.Nodes[i].Name] = &OutputSet{
			Main: [][]Target{{{Node: g.Nodes[i+1].Name, Type: "main", Index: 0}}},
		}
	}
	log.Printf("[graph] rebuilt connections for %q: %d edge(s)", g.Name, len(g.Connections))
}
