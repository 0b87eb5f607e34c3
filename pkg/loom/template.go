package loom

import (
	"context"
	"slices"
)

// Template is a compiled template: an immutable node sequence plus the
// options it was compiled with. Compile once, render many times; each Render
// call builds its own scope and output buffer, so a single Template may be
// rendered concurrently.
type Template struct {
	nodes []Node
	opts  Options
	prog  *program
}

// Compile parses template source into a renderable Template. Import tags are
// resolved through the options' Loader during this call, depth-first and in
// document order; rendering afterwards performs no I/O. Compilation either
// succeeds completely or fails with the first error, there is no partial
// result.
func Compile(ctx context.Context, text string, opts Options) (*Template, error) {
	merged, err := opts.merge()
	if err != nil {
		return nil, err
	}
	nodes, err := parse(ctx, text, merged)
	if err != nil {
		return nil, err
	}
	return &Template{nodes: nodes, opts: merged, prog: lower(nodes)}, nil
}

// CompileFile loads the named template through the options' Loader and
// compiles it. It is the convenience entry point for top-level templates.
func CompileFile(ctx context.Context, name string, opts Options) (*Template, error) {
	merged, err := opts.merge()
	if err != nil {
		return nil, err
	}
	text, err := merged.Loader.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	nodes, err := parse(ctx, text, merged)
	if err != nil {
		return nil, err
	}
	return &Template{nodes: nodes, opts: merged, prog: lower(nodes)}, nil
}

// Render executes the template against the given locals and returns the
// final text. Rendering is synchronous and performs no I/O. A nil locals map
// renders with an empty scope. Failures inside embedded code surface as an
// EvaluationError; output is exactly the document-order concatenation of
// what the embedded control flow actually emitted.
func (t *Template) Render(locals map[string]any) (string, error) {
	if locals == nil {
		locals = map[string]any{}
	}
	return t.run(t.prog, locals)
}

// Nodes returns a copy of the template's compiled node sequence.
func (t *Template) Nodes() []Node {
	return slices.Clone(t.nodes)
}
