package domain

import "strings"

// doiPrefixes are the URL/scheme prefixes stripped during DOI normalization.
var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"doi:",
}

// NormalizeDOI normalizes a DOI for use as a dedup key.
// The DOI is trimmed, lower-cased, and stripped of any doi.org URL or
// "doi:" prefix. Returns empty string if nothing remains.
func NormalizeDOI(doi string) string {
	doi = strings.ToLower(strings.TrimSpace(doi))
	for _, prefix := range doiPrefixes {
		if strings.HasPrefix(doi, prefix) {
			doi = doi[len(prefix):]
		}
	}
	return doi
}

// NormalizeTitleKey derives a dedup key from a title: lower-cased, with every
// rune outside [a-z0-9 ] removed and surrounding whitespace trimmed.
// Returns empty string for titles with no keyable content.
func NormalizeTitleKey(title string) string {
	var sb strings.Builder
	sb.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}

// DedupKey returns the canonical identity for a record: the normalized DOI
// if present, otherwise the normalized title key. An empty return value
// means the record is unkeyable and must be discarded during merge.
func DedupKey(doi, title string) string {
	if key := NormalizeDOI(doi); key != "" {
		return key
	}
	return NormalizeTitleKey(title)
}
