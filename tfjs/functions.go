package tfjs

import (
	"slices"

	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/pkg/errors"
)

// FunctionDependencies returns the names of the functions fn references, in order of first appearance:
// any "func" attribute (or list of "func") of any of its nodes.
func FunctionDependencies(fn *FunctionDef) []string {
	var deps []string
	seen := sets.Make[string]()
	add := func(name string) {
		if !seen.Has(name) {
			seen.Insert(name)
			deps = append(deps, name)
		}
	}
	for _, node := range fn.NodeDef {
		// Sorted attribute names, so the result doesn't depend on map ordering.
		attrNames := make([]string, 0, len(node.Attr))
		for name := range node.Attr {
			attrNames = append(attrNames, name)
		}
		slices.Sort(attrNames)
		for _, name := range attrNames {
			switch v := node.Attr[name].Value.(type) {
			case FuncAttr:
				add(v.Name)
			case ListAttr:
				for _, item := range v.Items {
					if f, ok := item.(FuncAttr); ok {
						add(f.Name)
					}
				}
			}
		}
	}
	return deps
}

// SortFunctions orders the functions such that each one comes after all the functions it depends on.
//
// The sort is stable: at each step the first function (in the given order) whose dependencies are all placed is
// picked. It returns an error wrapping ErrCycle if there is a dependency cycle (including a function that
// depends on itself), or ErrUnknownFunction if a function references one that is not given.
func SortFunctions(funcs []*FunctionDef) ([]*FunctionDef, error) {
	byName := make(map[string]*FunctionDef, len(funcs))
	for _, fn := range funcs {
		name := fn.Name()
		if _, found := byName[name]; found {
			return nil, errors.Wrapf(ErrFormat, "function %q defined more than once", name)
		}
		byName[name] = fn
	}
	pending := make([][]string, len(funcs))
	for ii, fn := range funcs {
		deps := FunctionDependencies(fn)
		for _, dep := range deps {
			if _, found := byName[dep]; !found {
				return nil, errors.Wrapf(ErrUnknownFunction, "function %q references function %q", fn.Name(), dep)
			}
		}
		pending[ii] = deps
	}

	sorted := make([]*FunctionDef, 0, len(funcs))
	placed := sets.Make[string]()
	isReady := func(deps []string) bool {
		for _, dep := range deps {
			if !placed.Has(dep) {
				return false
			}
		}
		return true
	}
	for len(sorted) < len(funcs) {
		next := -1
		for ii, fn := range funcs {
			if !placed.Has(fn.Name()) && isReady(pending[ii]) {
				next = ii
				break
			}
		}
		if next < 0 {
			var remaining []string
			for _, fn := range funcs {
				if !placed.Has(fn.Name()) {
					remaining = append(remaining, fn.Name())
				}
			}
			return nil, errors.Wrapf(ErrCycle, "functions %q", remaining)
		}
		sorted = append(sorted, funcs[next])
		placed.Insert(funcs[next].Name())
	}
	return sorted, nil
}
