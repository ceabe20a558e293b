package tfjs

// Options configures how graphs are built from a tfjs model. The zero value is valid.
type Options struct {
	// InputNames of the main graph. If nil, every Placeholder, PlaceholderV2 and PlaceholderWithDefault node
	// output becomes an input.
	InputNames []string

	// OutputNames of the main graph. If nil, the model signature outputs are used, and if the model has no
	// signature, every output not consumed by another node becomes a graph output.
	OutputNames []string

	// IgnoreDefault lists PlaceholderWithDefault nodes that are converted to plain (required) placeholders,
	// dropping their default value.
	IgnoreDefault []string

	// UseDefault lists PlaceholderWithDefault nodes that are converted to Identity nodes of their default
	// value, and removed from the graph inputs.
	UseDefault []string

	// Registry of operator schemas. Defaults to DefaultOpRegistry().
	Registry *OpRegistry

	// Inferer of output shapes. Defaults to StaticInferer.
	Inferer ShapeInferer
}

// withDefaults returns a copy of the options with the defaults filled in.
func (opts *Options) withDefaults() *Options {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Registry == nil {
		o.Registry = DefaultOpRegistry()
	}
	if o.Inferer == nil {
		o.Inferer = StaticInferer{}
	}
	return &o
}
