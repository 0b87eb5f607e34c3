package loom

import (
	"context"
	"errors"
	"os"
	"testing"
)

// mapLoader resolves template names from an in-memory map. It stands in for
// the filesystem in parser and render tests.
type mapLoader map[string]string

func (l mapLoader) Load(_ context.Context, name string) (string, error) {
	src, ok := l[name]
	if !ok {
		return "", &LoadError{Name: name, Err: os.ErrNotExist}
	}
	return src, nil
}

func TestParse_LiteralOnly(t *testing.T) {
	nodes, err := Parse(context.Background(), "Hello World", Options{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected a single node, got %d", len(nodes))
	}
	lit, ok := nodes[0].(Literal)
	if !ok {
		t.Fatalf("node type = %T, want Literal", nodes[0])
	}
	if lit.Text != "Hello World" {
		t.Errorf("literal text = %q, want %q", lit.Text, "Hello World")
	}
}

func TestParse_TagKinds(t *testing.T) {
	src := `a<%= e %>b<%- r %>c<% code %>d`
	nodes, err := Parse(context.Background(), src, Options{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := []Node{
		Literal{Text: "a"},
		Escaped{Expr: " e "},
		Literal{Text: "b"},
		Raw{Expr: " r "},
		Literal{Text: "c"},
		Code{Fragment: " code "},
		Literal{Text: "d"},
	}
	if len(nodes) != len(want) {
		t.Fatalf("node count = %d, want %d", len(nodes), len(want))
	}
	for i := range want {
		if nodes[i] != want[i] {
			t.Errorf("node %d = %#v, want %#v", i, nodes[i], want[i])
		}
	}
}

func TestParse_CommentDropped(t *testing.T) {
	// The doubled close marker lets the body contain a bare close delimiter
	// and a complete wrapped tag without either taking effect.
	src := `a<%! ignore %> this <%= x %> too !%>b`
	nodes, err := Parse(context.Background(), src, Options{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("node count = %d, want 2 (comment must not produce a node)", len(nodes))
	}
	if nodes[0] != (Literal{Text: "a"}) || nodes[1] != (Literal{Text: "b"}) {
		t.Errorf("unexpected nodes around comment: %#v", nodes)
	}
}

func TestParse_ImportResolvedEagerly(t *testing.T) {
	loader := mapLoader{"header": "Top<%= title %>"}
	nodes, err := Parse(context.Background(), `<%+ header %>`, Options{Loader: loader})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("node count = %d, want 1", len(nodes))
	}
	imp, ok := nodes[0].(Import)
	if !ok {
		t.Fatalf("node type = %T, want Import", nodes[0])
	}
	if imp.Name != "header" {
		t.Errorf("import name = %q, want %q", imp.Name, "header")
	}
	if !imp.Shared {
		t.Error("import without a locals expression must share the importer's scope")
	}
	if len(imp.Nodes) != 2 {
		t.Errorf("imported child nodes = %d, want 2 (resolution must be eager)", len(imp.Nodes))
	}
}

func TestParse_ImportLocalsSplitOnFirstPipe(t *testing.T) {
	loader := mapLoader{"row": "<%= v %>"}
	nodes, err := Parse(context.Background(), `<%+ row | {v: a | b} %>`, Options{Loader: loader})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	imp := nodes[0].(Import)
	if imp.Shared {
		t.Error("import with a locals expression must not share scope")
	}
	if imp.LocalsExpr != "{v: a | b}" {
		t.Errorf("locals expression = %q, want %q (split on the first pipe only)", imp.LocalsExpr, "{v: a | b}")
	}
}

func TestParse_ImportEmptyLocalsSharesScope(t *testing.T) {
	loader := mapLoader{"row": "x"}
	nodes, err := Parse(context.Background(), `<%+ row | %>`, Options{Loader: loader})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if imp := nodes[0].(Import); !imp.Shared {
		t.Error("a pipe with an empty right side must fall back to scope sharing")
	}
}

func TestParse_ImportMissingTemplate(t *testing.T) {
	_, err := Parse(context.Background(), `<%+ nowhere %>`, Options{Loader: mapLoader{}})
	if err == nil {
		t.Fatal("expected an error for an unresolvable import, got nil")
	}
	var tnf *TemplateNotFoundError
	if !errors.As(err, &tnf) {
		t.Fatalf("error type = %T, want *TemplateNotFoundError", err)
	}
	if tnf.Name != "nowhere" {
		t.Errorf("missing template name = %q, want %q", tnf.Name, "nowhere")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("the loader's underlying cause must stay reachable through the error chain")
	}
}

func TestParse_UnterminatedTag(t *testing.T) {
	_, err := Parse(context.Background(), `<%= unterminated`, Options{})
	if err == nil {
		t.Fatal("expected an error for an unterminated tag, got nil")
	}
	var ute *UnterminatedTagError
	if !errors.As(err, &ute) {
		t.Fatalf("error type = %T, want *UnterminatedTagError", err)
	}
	if ute.CloseMarker != "%>" {
		t.Errorf("CloseMarker = %q, want %q", ute.CloseMarker, "%>")
	}
}

func TestParse_CustomDelims(t *testing.T) {
	opts := Options{Delims: Delims{Open: "{{", Close: "}}"}}
	nodes, err := Parse(context.Background(), `Hi {{= name }}`, opts)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("node count = %d, want 2", len(nodes))
	}
	if esc, ok := nodes[1].(Escaped); !ok || esc.Expr != " name " {
		t.Errorf("node 1 = %#v, want Escaped{Expr: \" name \"}", nodes[1])
	}
}

func TestParse_InvalidDelims(t *testing.T) {
	_, err := Parse(context.Background(), "x", Options{Delims: Delims{Open: "@@", Close: "@@"}})
	if err == nil {
		t.Fatal("expected an error for open == close, got nil")
	}
}

func TestParse_AmbiguousMarkers(t *testing.T) {
	opts := Options{Delims: Delims{Escape: "=", Unescape: "=="}}
	_, err := Parse(context.Background(), "x", opts)
	if err == nil {
		t.Fatal("expected an error for markers sharing a leading byte, got nil")
	}
}

func TestCompile_CacheUnsupported(t *testing.T) {
	_, err := Compile(context.Background(), "x", Options{Cache: map[string]*Template{}})
	if !errors.Is(err, ErrCacheUnsupported) {
		t.Fatalf("error = %v, want ErrCacheUnsupported", err)
	}
}
