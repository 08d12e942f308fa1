package security

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/oracle"
)

// criticalKeywords are matched case-insensitively after diacritics folding,
// so "Pénicilline", "PENICILLINE" and "penicillin" all trip the guard.
var criticalKeywords = []string{
	"penicilline",
	"penicillin",
	"amoxicilline",
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldTerm lowercases and strips combining marks. Transform errors are
// impossible for the remover chain, so the input is returned as a lowercase
// fallback if one ever occurs.
func foldTerm(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(folded)
}

func containsCriticalTerm(s string) bool {
	folded := foldTerm(s)
	for _, kw := range criticalKeywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

// scanContext reports whether any alert message or timeline summary carries
// a critical keyword.
func scanContext(cs *oracle.ContextSnapshot) bool {
	if cs == nil {
		return false
	}
	for _, a := range cs.Alerts {
		if containsCriticalTerm(a.Message) {
			return true
		}
	}
	for _, item := range cs.Timeline {
		if containsCriticalTerm(item.Summary) {
			return true
		}
	}
	return false
}
