package loom

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// compileString is a small helper for render tests that have no imports.
func compileString(tb testing.TB, src string, opts Options) *Template {
	tb.Helper()
	tmpl, err := Compile(context.Background(), src, opts)
	if err != nil {
		tb.Fatalf("Compile(%q) error = %v", src, err)
	}
	return tmpl
}

// render is compile-and-render in one step against a map loader.
func render(tb testing.TB, src string, loader mapLoader, locals map[string]any) string {
	tb.Helper()
	tmpl, err := Compile(context.Background(), src, Options{Loader: loader})
	if err != nil {
		tb.Fatalf("Compile(%q) error = %v", src, err)
	}
	out, err := tmpl.Render(locals)
	if err != nil {
		tb.Fatalf("Render(%q) error = %v", src, err)
	}
	return out
}

func TestRender_Identity(t *testing.T) {
	if got := render(t, "Hello World", nil, nil); got != "Hello World" {
		t.Errorf("render = %q, want the input unchanged", got)
	}
}

func TestRender_Idempotent(t *testing.T) {
	tmpl := compileString(t, `<p><%= name %></p>`, Options{})
	locals := map[string]any{"name": "x"}
	first, err := tmpl.Render(locals)
	if err != nil {
		t.Fatalf("first Render() error = %v", err)
	}
	second, err := tmpl.Render(locals)
	if err != nil {
		t.Fatalf("second Render() error = %v", err)
	}
	if first != second {
		t.Errorf("renders differ: %q vs %q", first, second)
	}
}

func TestRender_EscapedAndRaw(t *testing.T) {
	locals := map[string]any{"v": "<b>"}
	if got := render(t, `<%= v %>`, nil, locals); got != "&lt;b&gt;" {
		t.Errorf("escaped output = %q, want %q", got, "&lt;b&gt;")
	}
	if got := render(t, `<%- v %>`, nil, locals); got != "<b>" {
		t.Errorf("raw output = %q, want %q", got, "<b>")
	}
}

func TestRender_UndefinedValueIsEmpty(t *testing.T) {
	locals := map[string]any{"u": map[string]any{}}
	if got := render(t, `[<%= u.name %>]`, nil, locals); got != "[]" {
		t.Errorf("undefined value rendered %q, want %q", got, "[]")
	}
	if got := render(t, `[<%- u.name %>]`, nil, locals); got != "[]" {
		t.Errorf("undefined raw value rendered %q, want %q", got, "[]")
	}
}

func TestRender_CodeGuardsFollowingNodes(t *testing.T) {
	src := `<% if show { %>visible<% } %>`
	tmpl := compileString(t, src, Options{})

	out, err := tmpl.Render(map[string]any{"show": true})
	if err != nil {
		t.Fatalf("Render(show=true) error = %v", err)
	}
	if out != "visible" {
		t.Errorf("guarded render = %q, want %q", out, "visible")
	}

	out, err = tmpl.Render(map[string]any{"show": false})
	if err != nil {
		t.Fatalf("Render(show=false) error = %v", err)
	}
	if out != "" {
		t.Errorf("suppressed render = %q, want empty", out)
	}
}

func TestRender_CodeLoopRepeatsFollowingNodes(t *testing.T) {
	src := `<% for i := 0; i < n; i++ { %><%= i %>;<% } %>`
	tmpl := compileString(t, src, Options{})
	out, err := tmpl.Render(map[string]any{"n": 3})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "0;1;2;" {
		t.Errorf("loop render = %q, want %q", out, "0;1;2;")
	}
}

func TestRender_ImportSubstitution(t *testing.T) {
	loader := mapLoader{"world": "World"}
	if got := render(t, "Hello <%+ world %>", loader, nil); got != "Hello World" {
		t.Errorf("render = %q, want %q", got, "Hello World")
	}
}

func TestRender_SharedScopeImportSeesMutations(t *testing.T) {
	loader := mapLoader{"bump": "<% x = x + 1 %>"}
	got := render(t, `<% x := 1 %><%+ bump %><%= x %>`, loader, nil)
	if got != "2" {
		t.Errorf("render = %q, want %q (shared-scope mutations must be visible to the importer)", got, "2")
	}
}

func TestRender_IsolatedScopeImport(t *testing.T) {
	loader := mapLoader{"child": "<%- x %>"}
	got := render(t, `<%= x %><%+ child | {x: 2} %><%= x %>`, loader, map[string]any{"x": 1})
	if got != "121" {
		t.Errorf("render = %q, want %q (import locals must not leak into the importer)", got, "121")
	}
}

func TestRender_IsolatedScopeDoesNotLeak(t *testing.T) {
	// y exists only inside the child's scope; the importer referencing it
	// afterwards must fail, not silently observe the child's value.
	loader := mapLoader{"child": "<%- y %>"}
	tmpl, err := Compile(context.Background(), `<%+ child | {y: 1} %><%= y %>`, Options{Loader: loader})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, err = tmpl.Render(nil); err == nil {
		t.Fatal("expected a render error for a child-scoped variable used by the importer")
	}
}

func TestRender_ImportLocalsMustBeMap(t *testing.T) {
	loader := mapLoader{"child": "x"}
	tmpl, err := Compile(context.Background(), `<%+ child | 42 %>`, Options{Loader: loader})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, err = tmpl.Render(nil); err == nil {
		t.Fatal("expected a render error for non-map import locals")
	}
}

func TestRender_CommentContributesNothing(t *testing.T) {
	src := `a<%! <%= boom %> %> stray close !%>b`
	if got := render(t, src, nil, nil); got != "ab" {
		t.Errorf("render = %q, want %q", got, "ab")
	}
}

func TestRender_LiteralRoundTrip(t *testing.T) {
	src := "back\\slash \"quoted\" $interp\nnewline\ttab"
	if got := render(t, src, nil, nil); got != src {
		t.Errorf("literal round trip failed:\n got %q\nwant %q", got, src)
	}
}

func TestRender_EvaluationError(t *testing.T) {
	tmpl := compileString(t, `before<% f() %>after`, Options{})
	out, err := tmpl.Render(map[string]any{"f": 5})
	if err == nil {
		t.Fatal("expected an error for calling a non-callable value")
	}
	var ee *EvaluationError
	if !errors.As(err, &ee) {
		t.Fatalf("error type = %T, want *EvaluationError", err)
	}
	if out != ee.Output {
		t.Errorf("returned output %q does not match the error's recorded output %q", out, ee.Output)
	}
}

func TestRender_Globals(t *testing.T) {
	opts := Options{Globals: map[string]any{"site": "loom"}}
	tmpl := compileString(t, `<%= site %>/<%= page %>`, opts)
	out, err := tmpl.Render(map[string]any{"page": "index"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "loom/index" {
		t.Errorf("render = %q, want %q", out, "loom/index")
	}
}

func TestRender_Modules(t *testing.T) {
	opts := Options{Modules: []string{"text"}}
	tmpl := compileString(t, `<% text := import("text") %><%- text.to_upper(v) %>`, opts)
	out, err := tmpl.Render(map[string]any{"v": "hi"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "HI" {
		t.Errorf("render = %q, want %q", out, "HI")
	}
}

func TestRender_CustomEscaper(t *testing.T) {
	opts := Options{Escaper: func(v any) string {
		if v == nil {
			return ""
		}
		return strings.ToUpper(stringify(v))
	}}
	tmpl := compileString(t, `<%= v %>`, opts)
	out, err := tmpl.Render(map[string]any{"v": "quiet"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "QUIET" {
		t.Errorf("render = %q, want %q (custom escaper must replace the default)", out, "QUIET")
	}
}

func TestRender_ConcurrentSameTemplate(t *testing.T) {
	tmpl := compileString(t, `<% for i := 0; i < 50; i++ { %><%= v %><% } %>`, Options{})
	done := make(chan error, 8)
	for g := 0; g < 8; g++ {
		go func(g int) {
			out, err := tmpl.Render(map[string]any{"v": g})
			want := strings.Repeat(string(rune('0'+g)), 50)
			if err == nil && out != want {
				err = errors.New("cross-render output interleaving detected")
			}
			done <- err
		}(g)
	}
	for g := 0; g < 8; g++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent render failed: %v", err)
		}
	}
}

func TestTemplate_Nodes(t *testing.T) {
	tmpl := compileString(t, "Hello World", Options{})
	nodes := tmpl.Nodes()
	if len(nodes) != 1 {
		t.Fatalf("node count = %d, want 1", len(nodes))
	}
	if nodes[0] != (Literal{Text: "Hello World"}) {
		t.Errorf("node = %#v, want a single Literal", nodes[0])
	}
}

func BenchmarkRender_Static(b *testing.B) {
	tmpl := compileString(b, strings.Repeat("static text ", 100), Options{})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = tmpl.Render(nil)
	}
}

func BenchmarkRender_Loop(b *testing.B) {
	tmpl := compileString(b, `<% for i := 0; i < 100; i++ { %><%= i %> <% } %>`, Options{})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = tmpl.Render(nil)
	}
}
