package loom

import (
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Escaper converts an evaluated value into output-safe text for an escaped
// tag. A nil value must map to the empty string.
type Escaper func(v any) string

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

// EscapeHTML is the default Escaper. It maps exactly the five characters
// significant to HTML to their named entities and passes everything else
// through unchanged. Nil maps to the empty string, never to a literal
// "nil" or "undefined".
func EscapeHTML(v any) string {
	if v == nil {
		return ""
	}
	return htmlReplacer.Replace(stringify(v))
}

// PolicyEscaper adapts a bluemonday sanitization policy into an Escaper, for
// callers that want markup stripped or filtered rather than entity-escaped.
func PolicyEscaper(p *bluemonday.Policy) Escaper {
	return func(v any) string {
		if v == nil {
			return ""
		}
		return p.Sanitize(stringify(v))
	}
}

// stringify is the raw-output text conversion: strings pass through, all
// other values format as with fmt.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
