package loom

import (
	"errors"
	"fmt"
)

// ErrCacheUnsupported is returned when Options.Cache is set. The cache option
// is declared for forward compatibility but has no implementation; callers
// that need caching should use Manager.
var ErrCacheUnsupported = errors.New("loom: cache option is not implemented")

// UnterminatedTagError reports a tag whose close marker was never found. The
// compile that hit it is aborted; no partial template is produced.
type UnterminatedTagError struct {
	// CloseMarker is the marker the scanner was looking for. With custom
	// delimiters this is what makes a mismatched configuration diagnosable.
	CloseMarker string

	// Offset is the byte offset in the source at which the tag body began.
	Offset int
}

func (e *UnterminatedTagError) Error() string {
	return fmt.Sprintf("loom: unterminated tag at offset %d: expected close marker %q", e.Offset, e.CloseMarker)
}

// LoadError reports a Loader failure for a template name.
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loom: failed to load template %q: %v", e.Name, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// TemplateNotFoundError reports that an imported template could not be
// resolved. It wraps the loader's underlying error and aborts the compile.
type TemplateNotFoundError struct {
	Name string
	Err  error
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("loom: imported template %q not found: %v", e.Name, e.Err)
}

func (e *TemplateNotFoundError) Unwrap() error { return e.Err }

// EvaluationError reports a failure inside an embedded expression or code
// fragment during render. Rendering stops at the failing node; Output holds
// whatever had been emitted up to that point, for diagnostics.
type EvaluationError struct {
	Output string
	Err    error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("loom: template evaluation failed: %v", e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
