// Package textnorm canonicalizes speech text for duplicate-suppression
// comparisons, so that visually identical utterances typed with a
// different input method or in a different case still compare equal.
package textnorm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

var foldCaser = cases.Fold()

// Normalize collapses width variants (fullwidth/halfwidth forms, common
// from CJK input methods, fold to their canonical narrow form),
// case-folds, and trims surrounding whitespace. Two utterances that
// Normalize to the same string are considered the same utterance for
// the duplicate-suppression window.
func Normalize(text string) string {
	return strings.TrimSpace(foldCaser.String(width.Fold.String(text)))
}
