package tfjs

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ResolveOutput returns the canonical "node_name:port" name of a tensor reference found in a tfjs model.
//
// References come in one of 3 interchangeable formats:
//
//   - "node": port 0 of node, if node is in ops. Otherwise, it's returned unchanged (e.g. a function argument).
//   - "node:port": already canonical, returned unchanged.
//   - "node:output_arg_name:index": the port is the position of the first output of the node named
//     output_arg_name (see OutputNamesAndDTypes), plus index.
//
// If funcName is given and node is not found, it is looked up as "funcName/node": tfjs sometimes prepends the
// function name to nodes but forgets to fix the references to them.
func ResolveOutput(ref string, ops map[string]OpInfo, funcName string, reg *OpRegistry) (string, error) {
	switch strings.Count(ref, ":") {
	case 0:
		if _, found := ops[ref]; found {
			return ref + ":0", nil
		}
		return ref, nil
	case 1:
		return ref, nil
	case 2:
		// Handled below.
	default:
		return "", errors.Wrapf(ErrReference, "invalid tensor reference %q", ref)
	}

	parts := strings.Split(ref, ":")
	node, argName, indexStr := parts[0], parts[1], parts[2]
	index, err := strconv.Atoi(indexStr)
	if err != nil || index < 0 {
		return "", errors.Wrapf(ErrReference, "invalid index in tensor reference %q", ref)
	}
	info, found := ops[node]
	if !found && funcName != "" {
		longName := funcName + "/" + node
		if info, found = ops[longName]; found {
			node = longName
		}
	}
	if !found {
		return "", errors.Wrapf(ErrReference, "tensor reference %q to unknown node %q", ref, node)
	}
	names, _, err := OutputNamesAndDTypes(reg, info.OpType, info.Attrs)
	if err != nil {
		return "", errors.WithMessagef(err, "while resolving tensor reference %q", ref)
	}
	pos := slices.Index(names, argName)
	if pos < 0 {
		return "", errors.Wrapf(ErrReference, "tensor reference %q: op %q of node %q has no output named %q (outputs: %q)",
			ref, info.OpType, node, argName, names)
	}
	return fmt.Sprintf("%s:%d", node, pos+index), nil
}
