package loom

import (
	"fmt"
)

// Delims holds the set of tag markers recognized by the scanner. Open and
// Close bound every tag; the remaining fields are the kind markers that must
// appear immediately after Open to select the tag kind. A tag with no kind
// marker is a code tag.
type Delims struct {
	// Open starts a tag.
	Open string

	// Close ends a tag.
	Close string

	// Escape marks an escaped-output tag. The tag body is evaluated and
	// passed through the configured Escaper before emission.
	Escape string

	// Unescape marks a raw-output tag. The tag body is evaluated and emitted
	// without escaping.
	Unescape string

	// Import marks an import tag. The tag body is a template name,
	// optionally followed by a pipe and a locals expression.
	Import string

	// Comment marks a comment tag. Comment bodies run until the comment
	// marker doubled with Close, so a comment can safely contain a bare
	// Close marker or a whole neutralized tag.
	Comment string
}

// DefaultDelims returns the default tag markers: <% %> with "=" for escaped
// output, "-" for raw output, "+" for imports and "!" for comments.
func DefaultDelims() Delims {
	return Delims{
		Open:     "<%",
		Close:    "%>",
		Escape:   "=",
		Unescape: "-",
		Import:   "+",
		Comment:  "!",
	}
}

// Options configures a single compilation. The zero value is usable: every
// unset field is filled from defaults when the compile starts, and the merged
// result is immutable for the lifetime of the compiled Template.
type Options struct {
	// Delims are the tag markers. Unset fields fall back to DefaultDelims.
	Delims Delims

	// Loader resolves template names for imports and for CompileFile.
	// Defaults to a FileLoader rooted at the current directory.
	Loader Loader

	// Escaper converts evaluated values to output-safe text for escaped
	// tags. Defaults to EscapeHTML.
	Escaper Escaper

	// Globals are installed into the scope of every render of the compiled
	// Template, before the per-render locals.
	Globals map[string]any

	// Modules names the Tengo standard library modules that embedded code
	// may import, e.g. "text" or "times". Empty means no modules.
	Modules []string

	// Cache is reserved for a compiled-template cache keyed by template
	// name. Caching is not implemented; supplying a non-nil Cache fails the
	// compile with ErrCacheUnsupported. Use Manager for caller-side caching.
	Cache map[string]*Template
}

// merge fills unset fields from defaults, validates the delimiter set and
// returns the effective options for one compilation.
func (o Options) merge() (Options, error) {
	def := DefaultDelims()
	d := &o.Delims
	if d.Open == "" {
		d.Open = def.Open
	}
	if d.Close == "" {
		d.Close = def.Close
	}
	if d.Escape == "" {
		d.Escape = def.Escape
	}
	if d.Unescape == "" {
		d.Unescape = def.Unescape
	}
	if d.Import == "" {
		d.Import = def.Import
	}
	if d.Comment == "" {
		d.Comment = def.Comment
	}
	if err := d.validate(); err != nil {
		return Options{}, err
	}
	if o.Cache != nil {
		return Options{}, ErrCacheUnsupported
	}
	if o.Loader == nil {
		o.Loader = FileLoader{Dir: "."}
	}
	if o.Escaper == nil {
		o.Escaper = EscapeHTML
	}
	return o, nil
}

// validate rejects delimiter sets that the scanner cannot dispatch on.
func (d Delims) validate() error {
	if d.Open == d.Close {
		return fmt.Errorf("loom: open and close delimiters must differ, both are %q", d.Open)
	}
	markers := map[string]string{
		"escape":   d.Escape,
		"unescape": d.Unescape,
		"import":   d.Import,
		"comment":  d.Comment,
	}
	seen := make(map[byte]string, len(markers))
	for kind, m := range markers {
		if m == "" {
			return fmt.Errorf("loom: %s marker must not be empty", kind)
		}
		// Tag kinds are dispatched on the first character after the open
		// delimiter, so the markers must not share a leading byte.
		if prev, dup := seen[m[0]]; dup {
			return fmt.Errorf("loom: %s and %s markers are ambiguous, both start with %q", prev, kind, string(m[0]))
		}
		seen[m[0]] = kind
	}
	return nil
}
