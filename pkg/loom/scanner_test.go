package loom

import (
	"errors"
	"testing"
)

func TestScanner_NextOpen(t *testing.T) {
	sc := &scanner{src: "abc<%= x %>def", delims: DefaultDelims()}
	if got := sc.nextOpen(); got != 3 {
		t.Errorf("nextOpen() = %d, want 3", got)
	}

	sc.pos = 4
	if got := sc.nextOpen(); got != -1 {
		t.Errorf("nextOpen() after the only tag = %d, want -1", got)
	}
}

func TestScanner_TagBody(t *testing.T) {
	sc := &scanner{src: "x + 1 %>tail", delims: DefaultDelims()}
	body, err := sc.tagBody("%>")
	if err != nil {
		t.Fatalf("tagBody() error = %v", err)
	}
	if body != "x + 1 " {
		t.Errorf("tagBody() = %q, want %q", body, "x + 1 ")
	}
	if sc.rest() != "tail" {
		t.Errorf("cursor left before %q, want %q", sc.rest(), "tail")
	}
}

func TestScanner_TagBodyUnterminated(t *testing.T) {
	sc := &scanner{src: "never closed", delims: DefaultDelims()}
	_, err := sc.tagBody("%>")
	if err == nil {
		t.Fatal("expected an error for a missing close marker, got nil")
	}

	var ute *UnterminatedTagError
	if !errors.As(err, &ute) {
		t.Fatalf("error type = %T, want *UnterminatedTagError", err)
	}
	if ute.CloseMarker != "%>" {
		t.Errorf("CloseMarker = %q, want %q", ute.CloseMarker, "%>")
	}
}
