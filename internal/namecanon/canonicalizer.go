// Package namecanon generates search variants of catalog entity names so
// provider lookups tolerate diacritics, alias suffixes, and prefix noise.
package namecanon

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// parentheticalRe matches trailing disambiguation like "(Earth-616)" or
// "(Miles Morales)".
var parentheticalRe = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// foldDiacritics removes combining marks: "Doctor Très" -> "Doctor Tres".
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Variants returns search terms for a canonical name, most specific first.
// The canonical name itself is always the first element; duplicates are
// removed while preserving order.
func Variants(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	candidates := []string{name}

	if stripped := strings.TrimSpace(parentheticalRe.ReplaceAllString(name, "")); stripped != "" {
		candidates = append(candidates, stripped)
	}

	for _, c := range candidates[:len(candidates):len(candidates)] {
		if folded, _, err := transform.String(foldDiacritics, c); err == nil {
			candidates = append(candidates, folded)
		}
	}

	for _, c := range candidates[:len(candidates):len(candidates)] {
		if after, ok := strings.CutPrefix(c, "The "); ok {
			candidates = append(candidates, after)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		key := strings.ToLower(c)
		if _, dup := seen[key]; dup || c == "" {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
