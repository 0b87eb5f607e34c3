package loom

import (
	"context"
	"strings"
)

// Parse compiles template source into a node sequence without building a
// renderable Template. Most callers want Compile; Parse exists for tooling
// that inspects template structure.
func Parse(ctx context.Context, text string, opts Options) ([]Node, error) {
	merged, err := opts.merge()
	if err != nil {
		return nil, err
	}
	return parse(ctx, text, merged)
}

// parse runs the scan loop over one template source, recursing through the
// loader for every import tag. Imports are resolved eagerly, in document
// order, so the returned sequence never contains an unresolved reference.
// opts must already be merged.
func parse(ctx context.Context, text string, opts Options) ([]Node, error) {
	sc := &scanner{src: text, delims: opts.Delims}
	d := opts.Delims

	var nodes []Node
	for {
		open := sc.nextOpen()
		if open < 0 {
			if rest := sc.rest(); rest != "" {
				nodes = append(nodes, Literal{Text: rest})
			}
			return nodes, nil
		}
		if open > sc.pos {
			nodes = append(nodes, Literal{Text: sc.src[sc.pos:open]})
			sc.pos = open
		}
		sc.skip(len(d.Open))

		body := sc.rest()
		switch {
		case strings.HasPrefix(body, d.Comment):
			sc.skip(len(d.Comment))
			// Comments close on the doubled marker, so an unmatched close
			// delimiter or a whole wrapped tag inside the body stays inert.
			if _, err := sc.tagBody(d.Comment + d.Close); err != nil {
				return nil, err
			}
		case strings.HasPrefix(body, d.Escape):
			sc.skip(len(d.Escape))
			expr, err := sc.tagBody(d.Close)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, Escaped{Expr: expr})
		case strings.HasPrefix(body, d.Unescape):
			sc.skip(len(d.Unescape))
			expr, err := sc.tagBody(d.Close)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, Raw{Expr: expr})
		case strings.HasPrefix(body, d.Import):
			sc.skip(len(d.Import))
			ref, err := sc.tagBody(d.Close)
			if err != nil {
				return nil, err
			}
			imp, err := resolveImport(ctx, ref, opts)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, imp)
		default:
			fragment, err := sc.tagBody(d.Close)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, Code{Fragment: fragment})
		}
	}
}

// resolveImport loads and parses the template referenced by an import tag
// body. The body is a template name, optionally followed by a pipe and an
// expression that will build the imported template's scope; without one the
// import shares the importer's scope.
func resolveImport(ctx context.Context, ref string, opts Options) (Import, error) {
	name, localsExpr, piped := strings.Cut(ref, "|")
	name = strings.TrimSpace(name)
	localsExpr = strings.TrimSpace(localsExpr)

	text, err := opts.Loader.Load(ctx, name)
	if err != nil {
		return Import{}, &TemplateNotFoundError{Name: name, Err: err}
	}
	children, err := parse(ctx, text, opts)
	if err != nil {
		return Import{}, err
	}
	return Import{
		Name:       name,
		LocalsExpr: localsExpr,
		Shared:     !piped || localsExpr == "",
		Nodes:      children,
	}, nil
}
