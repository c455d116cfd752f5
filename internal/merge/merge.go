// Package merge canonicalizes provider paper records into deduplicated
// records with provenance, and cleans up raw web search hits. All
// functions are pure and deterministic.
package merge

import (
	"sort"

	"github.com/researchgpt/evidence-service/internal/domain"
)

// Merge deduplicates and merges two provider result lists into canonical
// records. The primary list establishes the base records; secondary records
// sharing a dedup key are folded into them field by field. Records with no
// dedup key (no DOI and an empty title key) are discarded. The output is
// stably sorted by citation count descending, preserving insertion order
// on ties.
func Merge(primary, secondary []domain.PaperRecord) []domain.CanonicalRecord {
	merged := make([]domain.CanonicalRecord, 0, len(primary)+len(secondary))
	index := make(map[string]int, len(primary)+len(secondary))

	for _, record := range primary {
		key := record.Key()
		if key == "" {
			continue
		}
		// First occurrence wins within the primary list.
		if _, ok := index[key]; ok {
			continue
		}
		index[key] = len(merged)
		merged = append(merged, domain.CanonicalRecord{
			PaperRecord: record,
			Source:      domain.ProvenanceOpenAlex,
		})
	}

	for _, record := range secondary {
		key := record.Key()
		if key == "" {
			continue
		}
		pos, ok := index[key]
		if !ok {
			index[key] = len(merged)
			merged = append(merged, domain.CanonicalRecord{
				PaperRecord: record,
				Source:      domain.ProvenanceSemanticScholar,
			})
			continue
		}
		fold(&merged[pos], record)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CitationCount > merged[j].CitationCount
	})
	return merged
}

// fold merges a secondary record into an existing canonical record.
// Citation counts and the abstract are overwritten when the secondary
// carries them; url and pdf_url only fill gaps.
func fold(base *domain.CanonicalRecord, record domain.PaperRecord) {
	if record.CitationCount > 0 {
		base.CitationCount = record.CitationCount
	}
	if record.InfluentialCitationCount > 0 {
		base.InfluentialCitationCount = record.InfluentialCitationCount
	}
	if record.Abstract != "" {
		base.Abstract = record.Abstract
	}
	if base.URL == "" {
		base.URL = record.URL
	}
	if base.PDFURL == "" {
		base.PDFURL = record.PDFURL
	}
	base.Source = domain.ProvenanceBoth
}

// DedupHitsByURL removes duplicate web hits by exact URL match across all
// groups, first occurrence wins. The seen set is shared across groups in
// argument order, so a URL appearing in an earlier group suppresses it in
// every later group.
func DedupHitsByURL(groups ...[]domain.WebHit) [][]domain.WebHit {
	seen := make(map[string]struct{})
	out := make([][]domain.WebHit, len(groups))
	for i, group := range groups {
		kept := make([]domain.WebHit, 0, len(group))
		for _, hit := range group {
			if hit.URL == "" {
				continue
			}
			if _, ok := seen[hit.URL]; ok {
				continue
			}
			seen[hit.URL] = struct{}{}
			kept = append(kept, hit)
		}
		out[i] = kept
	}
	return out
}

// SourceLabels builds a title-key to provenance label map for a merged
// record list, used to re-attach provenance after curation loses it.
func SourceLabels(records []domain.CanonicalRecord) map[string]string {
	labels := make(map[string]string, len(records))
	for _, record := range records {
		key := domain.NormalizeTitleKey(record.Title)
		if key == "" {
			continue
		}
		labels[key] = record.Source.Label()
	}
	return labels
}

// ReattachSources fills each curated paper's Source from the label map by
// title key. Papers whose titles the collaborator rewrote beyond
// recognition get the generic fallback label.
func ReattachSources(papers []domain.CuratedPaper, labels map[string]string) {
	for i := range papers {
		key := domain.NormalizeTitleKey(papers[i].Title)
		if label, ok := labels[key]; ok {
			papers[i].Source = label
		} else {
			papers[i].Source = domain.Provenance("").Label()
		}
	}
}
