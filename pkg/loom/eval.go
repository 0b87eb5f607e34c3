package loom

import (
	"fmt"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
)

// run executes one lowered program against a scope, returning the text it
// emitted. The scope variables plus the configured globals are installed as
// script variables, so embedded code reads and assigns them directly. Every
// call gets its own script instance and output buffer; a Template therefore
// has no per-render state and renders safely from concurrent callers.
func (t *Template) run(p *program, scope map[string]any) (string, error) {
	var out strings.Builder

	s := tengo.NewScript([]byte(p.src))
	if len(t.opts.Modules) > 0 {
		s.SetImports(stdlib.GetModuleMap(t.opts.Modules...))
	}

	emit := func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) != 1 {
			return nil, tengo.ErrWrongNumArguments
		}
		if str, ok := tengo.ToString(args[0]); ok {
			out.WriteString(str)
		}
		return tengo.UndefinedValue, nil
	}

	escape := func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) != 1 {
			return nil, tengo.ErrWrongNumArguments
		}
		return &tengo.String{Value: t.opts.Escaper(tengo.ToInterface(args[0]))}, nil
	}

	text := func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) != 1 {
			return nil, tengo.ErrWrongNumArguments
		}
		v := tengo.ToInterface(args[0])
		if v == nil {
			return &tengo.String{Value: ""}, nil
		}
		return &tengo.String{Value: stringify(v)}, nil
	}

	importFn := func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) != 2 {
			return nil, tengo.ErrWrongNumArguments
		}
		idx, _ := tengo.ToInt(args[0])
		if idx < 0 || idx >= len(p.children) {
			return nil, fmt.Errorf("import: no child template at index %d", idx)
		}
		var locals map[string]any
		switch v := tengo.ToInterface(args[1]).(type) {
		case nil:
			locals = map[string]any{}
		case map[string]any:
			locals = v
		default:
			return nil, fmt.Errorf("import: locals expression must evaluate to a map, got %T", v)
		}
		childOut, err := t.run(p.children[idx], locals)
		if err != nil {
			return nil, err
		}
		return &tengo.String{Value: childOut}, nil
	}

	builtins := map[string]tengo.CallableFunc{
		"__emit":   emit,
		"__escape": escape,
		"__text":   text,
		"__import": importFn,
	}
	for name, fn := range builtins {
		if err := s.Add(name, &tengo.UserFunction{Name: name, Value: fn}); err != nil {
			return "", &EvaluationError{Err: fmt.Errorf("installing %s: %w", name, err)}
		}
	}
	for name, v := range t.opts.Globals {
		if err := s.Add(name, v); err != nil {
			return "", &EvaluationError{Err: fmt.Errorf("installing global %q: %w", name, err)}
		}
	}
	for name, v := range scope {
		if err := s.Add(name, v); err != nil {
			return "", &EvaluationError{Err: fmt.Errorf("installing local %q: %w", name, err)}
		}
	}

	if _, err := s.Run(); err != nil {
		return out.String(), &EvaluationError{Output: out.String(), Err: err}
	}
	return out.String(), nil
}
