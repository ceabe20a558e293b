package tfjs

import (
	"bytes"
	"fmt"
)

// String implements fmt.Stringer, and pretty prints graph information.
func (g *Graph) String() string {
	var buf bytes.Buffer
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			buf.WriteString(fmt.Sprintf(format, args...))
		}
	}
	if g.IsSubgraph {
		w("Function %q:\n", g.Name)
	} else {
		w("Graph %q:\n", g.Name)
	}
	w("\t# nodes:\t%d\n", len(g.Nodes))
	w("\tOp types:\t%#v\n", g.OpTypes())
	tensorList := func(title string, names []string) {
		w("\t%s:\t[", title)
		for ii, name := range names {
			if ii > 0 {
				w(", ")
			}
			w("%s", name)
			if dtype, found := g.DTypes[name]; found {
				w(" %s", dtype)
			}
			if shape, found := g.Shapes[name]; found {
				w(" %s", shape)
			}
		}
		w("]\n")
	}
	tensorList("Inputs", g.Inputs)
	tensorList("Outputs", g.Outputs)
	return buf.String()
}
