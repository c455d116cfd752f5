package scout

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/llm"
	"github.com/researchgpt/evidence-service/internal/merge"
)

// promptPaper is the trimmed paper shape shown to the ranking collaborator.
// Authors are capped to keep the prompt small; the full list survives in
// the merged records and is not needed for ranking.
type promptPaper struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors,omitempty"`
	Year          int      `json:"year,omitempty"`
	Venue         string   `json:"venue,omitempty"`
	DOI           string   `json:"doi,omitempty"`
	URL           string   `json:"url,omitempty"`
	PDFURL        string   `json:"pdf_url,omitempty"`
	CitationCount int      `json:"cited_by_count,omitempty"`
}

// promptHit is the cleaned web hit shape shown to the curation collaborators.
type promptHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Domain  string `json:"domain,omitempty"`
}

// curatePapers ranks and annotates the merged papers. When ranking fails
// or returns nothing, the top papers pass through with generic annotations
// rather than losing the category.
func (s *Scout) curatePapers(ctx context.Context, runID uuid.UUID, req DiscoveryRequest, records []domain.CanonicalRecord) []domain.CuratedPaper {
	if len(records) == 0 {
		return nil
	}

	s.emit(ctx, runID, sourceScout, domain.EventKindRanking,
		"Ranking and annotating papers by relevance...")

	capped := records
	if len(capped) > maxCurationPapers {
		capped = capped[:maxCurationPapers]
	}

	material := make([]promptPaper, 0, len(capped))
	for _, record := range capped {
		authors := record.Authors
		if len(authors) > maxPromptAuthors {
			authors = authors[:maxPromptAuthors]
		}
		material = append(material, promptPaper{
			Title:         record.Title,
			Authors:       authors,
			Year:          record.Year,
			Venue:         record.Venue,
			DOI:           record.DOI,
			URL:           record.URL,
			PDFURL:        record.PDFURL,
			CitationCount: record.CitationCount,
		})
	}

	var resp struct {
		Papers []domain.CuratedPaper `json:"papers"`
	}
	err := s.curate(ctx, rankingSystemPrompt, buildRankingPrompt(req, marshalIndent(material), len(material)), &resp)
	papers := resp.Papers
	if err != nil || len(papers) == 0 {
		if err != nil {
			s.logger.Warn().Err(err).Str("run_id", runID.String()).Msg("paper ranking failed, using fallback")
			s.emit(ctx, runID, sourceScout, domain.EventKindWarning,
				"Paper ranking unavailable; keeping top results unranked.")
		}
		papers = fallbackPapers(capped)
	}

	merge.ReattachSources(papers, merge.SourceLabels(records))

	s.emit(ctx, runID, sourceScout, domain.EventKindRanking,
		fmt.Sprintf("Selected %d papers", len(papers)))
	return papers
}

// fallbackPapers converts the top merged records into curated papers with
// generic annotations.
func fallbackPapers(records []domain.CanonicalRecord) []domain.CuratedPaper {
	n := len(records)
	if n > fallbackPaperCount {
		n = fallbackPaperCount
	}
	papers := make([]domain.CuratedPaper, 0, n)
	for _, record := range records[:n] {
		papers = append(papers, domain.CuratedPaper{
			Title:            record.Title,
			Authors:          record.Authors,
			Year:             record.Year,
			Venue:            record.Venue,
			DOI:              record.DOI,
			URL:              record.URL,
			PDFURL:           record.PDFURL,
			CitationCount:    record.CitationCount,
			WhyRelevant:      "Found via academic database search",
			CredibilityNotes: "unknown",
		})
	}
	return papers
}

// curateDatasets filters the dataset hits down to actual datasets. A
// failed curation yields an empty category, never raw hits.
func (s *Scout) curateDatasets(ctx context.Context, runID uuid.UUID, req DiscoveryRequest, hits []domain.WebHit) []domain.Dataset {
	if len(hits) == 0 {
		return nil
	}

	var resp struct {
		Datasets []domain.Dataset `json:"datasets"`
	}
	if err := s.curate(ctx, datasetSystemPrompt, buildDatasetPrompt(req, hitMaterial(hits, snippetMaxLen)), &resp); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID.String()).Msg("dataset curation failed")
		s.emit(ctx, runID, sourceScout, domain.EventKindWarning, "Dataset curation unavailable; skipping datasets.")
		return nil
	}

	s.emit(ctx, runID, sourceScout, domain.EventKindSearching,
		fmt.Sprintf("Identified %d datasets", len(resp.Datasets)))
	return resp.Datasets
}

// curateLearning selects learning resources relevant to the whole topic.
func (s *Scout) curateLearning(ctx context.Context, runID uuid.UUID, req DiscoveryRequest, hits []domain.WebHit) []domain.LearningResource {
	if len(hits) == 0 {
		return nil
	}

	var resp struct {
		Resources []domain.LearningResource `json:"resources"`
	}
	if err := s.curate(ctx, learningSystemPrompt, buildLearningPrompt(req, hitMaterial(hits, snippetMaxLen)), &resp); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID.String()).Msg("learning resource curation failed")
		s.emit(ctx, runID, sourceScout, domain.EventKindWarning, "Learning resource curation unavailable; skipping.")
		return nil
	}

	for i := range resp.Resources {
		resp.Resources[i].WhyUseful = merge.CleanSnippet(resp.Resources[i].WhyUseful, whyUsefulMaxLen)
	}

	s.emit(ctx, runID, sourceScout, domain.EventKindSearching,
		fmt.Sprintf("Selected %d learning resources", len(resp.Resources)))
	return resp.Resources
}

// curateTools selects actual software tools from the tool hits.
func (s *Scout) curateTools(ctx context.Context, runID uuid.UUID, req DiscoveryRequest, hits []domain.WebHit) []domain.Tool {
	if len(hits) == 0 {
		return nil
	}

	var resp struct {
		Tools []domain.Tool `json:"tools"`
	}
	if err := s.curate(ctx, toolsSystemPrompt, buildToolsPrompt(req, hitMaterial(hits, toolSnippetMaxLen)), &resp); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID.String()).Msg("tool curation failed")
		s.emit(ctx, runID, sourceScout, domain.EventKindWarning, "Tool curation unavailable; skipping tools.")
		return nil
	}

	for i := range resp.Tools {
		resp.Tools[i].WhyUseful = merge.CleanSnippet(resp.Tools[i].WhyUseful, whyUsefulMaxLen)
	}

	s.emit(ctx, runID, sourceScout, domain.EventKindSearching,
		fmt.Sprintf("Selected %d research tools", len(resp.Tools)))
	return resp.Tools
}

// curate runs one collaborator call and decodes its JSON response.
func (s *Scout) curate(ctx context.Context, systemPrompt, userPrompt string, out interface{}) error {
	raw, err := s.generator.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return err
	}
	return llm.DecodeInto(raw, out)
}

// hitMaterial serializes web hits for a curation prompt with cleaned,
// length-bounded snippets.
func hitMaterial(hits []domain.WebHit, maxSnippet int) []byte {
	material := make([]promptHit, 0, len(hits))
	for _, hit := range hits {
		material = append(material, promptHit{
			Title:   hit.Title,
			URL:     hit.URL,
			Snippet: merge.CleanSnippet(hit.Snippet, maxSnippet),
			Domain:  hit.Domain,
		})
	}
	return marshalIndent(material)
}
