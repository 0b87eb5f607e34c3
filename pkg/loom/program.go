package loom

import (
	"fmt"
	"strconv"
	"strings"
)

// program is one template level lowered into executable Tengo source. Code
// fragments are spliced verbatim between the emit calls for the literal and
// expression nodes around them, so the whole level is one continuous script:
// a fragment that opens an if or a for governs every emit up to the fragment
// that closes it.
//
// Shared-scope imports are lowered inline, which is what makes their scope
// the importer's own. Isolated-scope imports become __import calls that
// suspend into Go, render the child program against a fresh scope and return
// its output for emission in document order.
type program struct {
	src      string
	children []*program
}

// Literal text is embedded into the script as a quoted Tengo string literal.
// strconv.Quote's escaping (backslash, double quote, control characters) is
// valid Tengo syntax and inverts exactly when the script runs, so literal
// text round-trips byte for byte.
func lower(nodes []Node) *program {
	p := &program{}
	var b strings.Builder
	lowerInto(&b, p, nodes)
	p.src = b.String()
	return p
}

func lowerInto(b *strings.Builder, p *program, nodes []Node) {
	for _, n := range nodes {
		switch n := n.(type) {
		case Literal:
			b.WriteString("__emit(")
			b.WriteString(strconv.Quote(n.Text))
			b.WriteString(")\n")
		case Escaped:
			fmt.Fprintf(b, "__emit(__escape((%s)))\n", n.Expr)
		case Raw:
			fmt.Fprintf(b, "__emit(__text((%s)))\n", n.Expr)
		case Code:
			b.WriteString(n.Fragment)
			b.WriteString("\n")
		case Import:
			if n.Shared {
				lowerInto(b, p, n.Nodes)
				continue
			}
			fmt.Fprintf(b, "__emit(__import(%d, (%s)))\n", len(p.children), n.LocalsExpr)
			p.children = append(p.children, lower(n.Nodes))
		}
	}
}
