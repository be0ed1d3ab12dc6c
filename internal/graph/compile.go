package graph

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/showrun-ai/showrun/internal/steps"
)

const (
	positionStartX = 250
	positionStepX  = 220
	positionY      = 300
)

// NodeType names the executable unit for a service/operation pair. The
// engine dispatches on this string, so it must be stable across compiles.
func NodeType(service, operation string) string {
	return service + "/" + operation
}

// Compile turns an ordered step list into a linear graph: one node per
// step, nodes laid out left to right, each node's first output slot wired
// to the next node. Parameters are carried over untouched.
func Compile(list []steps.Step, name string) (*Graph, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("compile: no steps")
	}

	g := &Graph{
		Name:        name,
		Nodes:       make([]Node, 0, len(list)),
		Connections: make(Connections, len(list)),
		Settings:    map[string]interface{}{},
	}

	names := make(map[string]int, len(list))
	for i, s := range list {
		if !s.Valid() {
			return nil, fmt.Errorf("compile: step %d has no service/operation", i)
		}
		g.Nodes = append(g.Nodes, Node{
			ID:         uuid.New().String(),
			Name:       nodeName(s, names),
			Type:       NodeType(s.Service, s.Operation),
			Position:   [2]int{positionStartX + positionStepX*i, positionY},
			Parameters: cloneParams(s.Parameters),
		})
	}

	for i := 0; i < len(g.Nodes)-1; i++ {
		g.Connections[g.Nodes[i].ID] = &OutputSet{
			Main: [][]Target{{{Node: g.Nodes[i+1].ID, Type: "main", Index: 0}}},
		}
	}

	log.Printf("[graph] compiled %q: %d nodes, %d connections", name, len(g.Nodes), len(g.Connections))
	return g, nil
}

// nodeName derives a display name from the step and keeps it unique by
// suffixing repeats. Names key rebuilt connection tables, so collisions
// would silently merge edges.
func nodeName(s steps.Step, seen map[string]int) string {
	base := s.Action
	if base == "" {
		base = s.Service + " " + s.Operation
	}
	seen[base]++
	if seen[base] == 1 {
		return base
	}
	return fmt.Sprintf("%s %d", base, seen[base])
}

func cloneParams(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
