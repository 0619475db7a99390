package course

import (
	"strings"

	"golang.org/x/text/cases"
)

// FoldTitle returns the case-folded form of a coursework title. Titles that
// differ only in casing fold to the same value.
func FoldTitle(title string) string {
	return cases.Fold().String(strings.Join(strings.Fields(title), " "))
}
