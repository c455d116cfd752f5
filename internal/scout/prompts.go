package scout

import (
	"encoding/json"
	"fmt"
	"strings"
)

// System prompts for the collaborator steps.
const (
	keywordSystemPrompt = "You are a research librarian expert at crafting search queries. " +
		"Generate specific, targeted keywords for academic database searches."

	rankingSystemPrompt = "You are a research resource evaluator. Rank and annotate papers. " +
		"You MUST preserve all original URLs and DOIs exactly. Respond with JSON only."

	datasetSystemPrompt = "You are a dataset curator. Only select actual datasets from search results. " +
		"Be strict - articles and papers are NOT datasets."

	learningSystemPrompt = "You are a learning resources curator. Select only resources that are " +
		"directly relevant to the full research topic. Be strict about relevance - each resource " +
		"must be about the whole topic, not a tangentially related concept."

	toolsSystemPrompt = "You are a research tools curator. Select only actual software tools, " +
		"libraries, and platforms from search results that are specifically useful for the given " +
		"research project. Be strict - articles about tools are NOT tools. Only include results " +
		"where the URL leads to the actual tool/library."

	evidencePlanSystemPrompt = `You are an expert research methodology advisor. Generate a detailed evidence collection plan tailored to the selected research approach.

The plan must be specific to the approach type:
- Survey / Questionnaire -> survey design, sampling, distribution, response analysis
- Controlled Experiment -> variables, control/treatment groups, measurement, protocols
- Interview / Qualitative Study -> participant selection, interview guide, coding, thematic analysis
- Public Dataset Analysis -> dataset selection criteria, preprocessing, statistical methods
- Systematic Literature Review -> database search strategy, screening criteria, synthesis method
- Comparative Evaluation -> criteria definition, scoring rubric, comparison framework

Respond ONLY with valid JSON:
{
  "evidence_type": "primary|secondary",
  "collection_strategy": ["Step 1: ...", "Step 2: ...", "Step 3: ..."],
  "inclusion_exclusion": {
    "include": ["criteria 1", "criteria 2"],
    "exclude": ["criteria 1", "criteria 2"]
  },
  "analysis_overview": "Description of how data/evidence will be analyzed",
  "expected_outputs": ["output 1", "output 2"]
}
No markdown, no extra text.`
)

// buildKeywordPrompt builds the user prompt for keyword generation.
func buildKeywordPrompt(req DiscoveryRequest) string {
	keywords := "N/A"
	if len(req.Keywords) > 0 {
		keywords = strings.Join(req.Keywords, ", ")
	}

	feedbackSection := ""
	if req.Feedback != "" {
		feedbackSection = fmt.Sprintf("\n\nUser feedback on previous results:\n%q\nAdjust your keyword selection accordingly.\n", req.Feedback)
	}

	return fmt.Sprintf(`Generate 5-10 targeted search keywords/phrases for finding academic papers related to this research.

Topic: %q
Description: %s
Keywords: %s
Research approach: %s
%s
Respond ONLY with valid JSON:
{
  "keywords": ["keyword1", "keyword2", ...]
}
No markdown, no extra text.`, req.Topic, req.Description, keywords, req.ApproachLabel, feedbackSection)
}

// buildRankingPrompt builds the user prompt for paper curation.
func buildRankingPrompt(req DiscoveryRequest, papersJSON []byte, count int) string {
	return fmt.Sprintf(`You are ranking academic papers for relevance to this research project.

Topic: %q
Approach: %s
Description: %s

## Papers found (%d total):
%s

For each paper:
1. Add "why_relevant" - one sentence explaining relevance
2. Add "credibility_notes" - one of: "peer-reviewed", "preprint", "report", "unknown"
3. IMPORTANT: Preserve ALL original fields exactly (title, authors, year, venue, doi, url, pdf_url)

Remove clearly irrelevant papers. Keep the rest sorted by relevance.

Respond ONLY with valid JSON:
{
  "papers": [{ "title": "...", "authors": [...], "year": N, "venue": "...", "doi": "...", "url": "...", "pdf_url": "...", "why_relevant": "...", "credibility_notes": "..." }]
}
No markdown, no extra text.`, req.Topic, req.ApproachLabel, req.Description, count, papersJSON)
}

// buildDatasetPrompt builds the user prompt for dataset curation.
func buildDatasetPrompt(req DiscoveryRequest, hitsJSON []byte) string {
	return fmt.Sprintf(`You are a research data expert. From the following web search results, identify which ones are ACTUAL DATASETS or direct links to dataset repositories.

Topic: %q
Research approach: %s

Search results:
%s

Rules:
- ONLY include results that are actual datasets, data repositories, or direct links to downloadable data
- Exclude articles ABOUT data, blog posts, tutorials, or papers - those are NOT datasets
- Look for URLs from: kaggle.com, huggingface.co, zenodo.org, data.gov, github.com (with /datasets or data files), archive.ics.uci.edu, figshare.com, dataverse, etc.
- For each real dataset, provide: name, domain (topic area), url (from the search result), why_relevant (one sentence), and license if apparent
- If NONE of the results are actual datasets, return an empty array

Respond ONLY with valid JSON:
{
  "datasets": [{"name": "...", "domain": "...", "url": "https://...", "why_relevant": "one sentence", "license": "if known or null"}]
}
No markdown, no extra text.`, req.Topic, req.ApproachLabel, hitsJSON)
}

// buildLearningPrompt builds the user prompt for learning resource curation.
func buildLearningPrompt(req DiscoveryRequest, hitsJSON []byte) string {
	return fmt.Sprintf(`You are a research learning resources curator. From the following web search results, select the ones that are genuinely useful learning resources for this research topic.

Full research topic: %q
Description: %s
Research approach: %s

Search results:
%s

Rules:
- Select 8-12 resources that are DIRECTLY relevant to the FULL research topic %q
- A resource must be about the topic as a whole, not just matching a single word from the title
- KEEP: tutorials, online courses, YouTube videos/lectures, blog posts, Wikipedia articles, guides, educational content
- REMOVE: product pages, job listings, news unrelated to the topic, duplicate content, low-quality pages
- For each resource use the EXACT url from the search result (do not modify URLs)
- Extract the source domain from the URL (e.g. "youtube.com", "medium.com", "coursera.org", "wikipedia.org")
- Write a concise why_useful (max 1 sentence, under 150 characters)

Respond ONLY with valid JSON:
{
  "resources": [{"name": "...", "url": "https://...", "why_useful": "one short sentence", "source": "domain.com"}]
}
No markdown, no extra text.`, req.Topic, req.Description, req.ApproachLabel, hitsJSON, req.Topic)
}

// buildToolsPrompt builds the user prompt for tool curation.
func buildToolsPrompt(req DiscoveryRequest, hitsJSON []byte) string {
	return fmt.Sprintf(`You are a research tools expert. From the following web search results, select ONLY the ones that are actual software tools, libraries, platforms, frameworks, or APIs that a researcher would use for this specific project.

RESEARCH PROJECT:
- Title: %q
- Approach: %s
- Description: %s

Search results:
%s

Think about what tasks the researcher will ACTUALLY perform in this project (data collection, analysis, visualization, statistical testing, etc.), then select only tools that directly help with those tasks.

Rules:
- Select 5-10 tools that are REAL software, libraries, platforms, or APIs
- Each tool must be specifically useful for THIS research project, not just generically related
- KEEP: GitHub repos, official tool/library websites, platform landing pages, API documentation
- REMOVE: blog posts ABOUT tools, news articles, comparison articles, job listings, generic pages
- Use the EXACT url from the search result (do not modify URLs)
- NO generic tools (Python, R, Excel, Google Scholar, Word) - only specific, actionable tools
- Classify each tool type as: library, platform, api, instrument, framework, or dataset_tool
- Write why_useful explaining the SPECIFIC research task this tool helps with in THIS project

Respond ONLY with valid JSON:
{
  "tools": [{"name": "...", "type": "library|platform|api|instrument|framework|dataset_tool", "url": "https://...", "why_useful": "Helps with [specific task] in this project"}]
}
No markdown, no extra text.`, req.Topic, req.ApproachLabel, req.Description, hitsJSON)
}

// buildEvidencePlanPrompt builds the user prompt for evidence planning.
func buildEvidencePlanPrompt(req DiscoveryRequest, nPapers, nDatasets, nTools int) string {
	return fmt.Sprintf(`Generate an evidence collection plan for this research project.

Title: %q
Approach: %s

Available Resources:
- %d academic papers found
- %d datasets identified
- %d tools/software identified

Create a realistic, actionable plan that fits the constraints and leverages the available resources.`,
		req.Topic, req.ApproachLabel, nPapers, nDatasets, nTools)
}

// marshalIndent serializes prompt material; serialization of these
// in-memory structures cannot fail in practice.
func marshalIndent(v interface{}) []byte {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return []byte("[]")
	}
	return data
}
