/*
Package loom compiles a small delimiter-tagged templating language into an
executable rendering procedure. Template source is plain text interleaved
with tags: escaped output (<%= expr %>), raw output (<%- expr %>), embedded
code (<% stmt %>), imports of other templates (<%+ name %> or
<%+ name | locals %>) and comments (<%! ... !%>). All delimiters are
configurable.

Compilation and rendering are two separate phases. Compile parses the source
once into an immutable node sequence, resolving imports eagerly through a
pluggable Loader; the resulting Template can then be rendered many times with
different locals without re-parsing. Embedded code and expressions run in an
embedded Tengo scope built from the locals of each render call, so code tags
can branch and loop over the literal and expression tags that follow them.

For repeated rendering of on-disk templates, Manager adds a name-keyed cache
on top of the compiler with explicit and filesystem-watch invalidation.

For a complete tag reference and usage examples, see the README.md file.
*/
package loom
