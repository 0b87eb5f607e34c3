package loom

// Node is one unit of compiled template structure. The concrete types are
// Literal, Escaped, Raw, Code and Import; comments never produce a node.
// Node sequences are immutable once a compile has returned them.
type Node interface {
	node()
}

// Literal is a run of verbatim output text between tags.
type Literal struct {
	Text string
}

// Escaped is an expression whose value is passed through the Escaper before
// emission.
type Escaped struct {
	Expr string
}

// Raw is an expression whose value is emitted without escaping. Whether the
// value is safe for the output context is the template author's problem.
type Raw struct {
	Expr string
}

// Code is a statement fragment with no direct output. Fragments may open
// control structures that close in a later Code node, so a fragment can
// guard or repeat the nodes that follow it within the same template level.
type Code struct {
	Fragment string
}

// Import is another template's node sequence spliced in at this position.
// Children stay nested rather than flattened so the imported template keeps
// its own variable scope. When Shared is true the child renders against the
// importer's scope and mutations remain visible afterward; otherwise
// LocalsExpr is evaluated in the importer's scope and its value becomes the
// child's entire scope.
type Import struct {
	Name       string
	LocalsExpr string
	Shared     bool
	Nodes      []Node
}

func (Literal) node() {}
func (Escaped) node() {}
func (Raw) node()     {}
func (Code) node()    {}
func (Import) node()  {}
