package loom

import (
	"strings"
)

// scanner walks raw template source, locating tags for the parser. It keeps
// a single cursor; literal runs are the stretches the cursor skips between
// delimiter matches.
type scanner struct {
	src    string
	delims Delims
	pos    int
}

// nextOpen returns the index of the next open delimiter at or after the
// cursor, or -1 if the rest of the source is literal text. The cursor is not
// moved.
func (s *scanner) nextOpen() int {
	i := strings.Index(s.src[s.pos:], s.delims.Open)
	if i < 0 {
		return -1
	}
	return s.pos + i
}

// tagBody returns the source between the cursor and the first occurrence of
// close, advancing the cursor past the close marker. If close never occurs
// the whole compile is unsalvageable and an UnterminatedTagError naming the
// expected marker is returned.
func (s *scanner) tagBody(closing string) (string, error) {
	i := strings.Index(s.src[s.pos:], closing)
	if i < 0 {
		return "", &UnterminatedTagError{CloseMarker: closing, Offset: s.pos}
	}
	body := s.src[s.pos : s.pos+i]
	s.pos += i + len(closing)
	return body, nil
}

// skip advances the cursor by n bytes.
func (s *scanner) skip(n int) {
	s.pos += n
}

// rest returns the unscanned remainder of the source.
func (s *scanner) rest() string {
	return s.src[s.pos:]
}
