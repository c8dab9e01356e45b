package textnorm

import "testing"

func TestNormalizeFoldsCase(t *testing.T) {
	if got := Normalize("Hello There"); got != "hello there" {
		t.Fatalf("expected case-folded text, got %q", got)
	}
}

func TestNormalizeTrimsSurroundingSpace(t *testing.T) {
	if got := Normalize("  hi  "); got != "hi" {
		t.Fatalf("expected trimmed text, got %q", got)
	}
}

func TestNormalizeFoldsFullwidthForms(t *testing.T) {
	// "ＨＩ" is the fullwidth form of "HI"; a resident typing via a CJK
	// input method should still collide with a halfwidth "hi" for
	// duplicate suppression.
	if got := Normalize("ＨＩ"); got != "hi" {
		t.Fatalf("expected fullwidth form folded to %q, got %q", "hi", got)
	}
}

func TestNormalizeEquatesDifferingFormsOfSameUtterance(t *testing.T) {
	a := Normalize("Good Morning")
	b := Normalize("  good morning  ")
	if a != b {
		t.Fatalf("expected equivalent utterances to normalize the same, got %q vs %q", a, b)
	}
}
