package tfjs

import (
	"maps"
	"slices"

	"github.com/gomlx/gomlx/pkg/support/sets"
)

// Node of a Graph. Attributes are in ONNX space: dtypes are ONNXDataType values.
type Node struct {
	Name    string
	OpType  string
	Inputs  []string
	Outputs []string
	Attrs   map[string]any

	// Value of Const nodes, cast to the node's dtype.
	Value *Tensor
}

// Graph is the reconstructed graph of a tfjs model, or of one of its functions.
type Graph struct {
	Name string

	// IsSubgraph is set for graphs built from a function of the model library.
	IsSubgraph bool

	Nodes   []*Node
	Inputs  []string
	Outputs []string

	// Shapes and DTypes of each known tensor, indexed by the tensor name.
	Shapes map[string]Shape
	DTypes map[string]ONNXDataType
}

// NodeByName returns the node with the given name, or nil if not found.
func (g *Graph) NodeByName(name string) *Node {
	for _, n := range g.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// OpTypes returns the sorted list of distinct op types used in the graph.
func (g *Graph) OpTypes() []string {
	opTypes := sets.Make[string]()
	for _, n := range g.Nodes {
		opTypes.Insert(n.OpType)
	}
	return slices.Sorted(maps.Keys(opTypes))
}

// RenameTensors renames tensors (the keys of mapping) to new names (the values) everywhere they appear:
// node inputs and outputs, graph inputs and outputs, and the shapes and dtypes tables.
//
// Only the names change, the topology of the graph is preserved.
func (g *Graph) RenameTensors(mapping map[string]string) {
	rename := func(names []string) {
		for ii, name := range names {
			if newName, found := mapping[name]; found {
				names[ii] = newName
			}
		}
	}
	for _, n := range g.Nodes {
		rename(n.Inputs)
		rename(n.Outputs)
	}
	rename(g.Inputs)
	rename(g.Outputs)
	for oldName, newName := range mapping {
		if oldName == newName {
			continue
		}
		if shape, found := g.Shapes[oldName]; found {
			delete(g.Shapes, oldName)
			g.Shapes[newName] = shape
		}
		if dtype, found := g.DTypes[oldName]; found {
			delete(g.DTypes, oldName)
			g.DTypes[newName] = dtype
		}
	}
}
