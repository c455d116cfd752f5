package aggregate

import "strings"

// paperSearchQuery joins the top keywords into a single query string.
// Falls back to the topic when no keywords are available.
func paperSearchQuery(topic string, keywords []string, max int) string {
	if len(keywords) == 0 {
		return topic
	}
	if len(keywords) > max {
		keywords = keywords[:max]
	}
	return strings.Join(keywords, " ")
}

// datasetQueries builds the dataset discovery queries (2-3).
func datasetQueries(topic string, keywords []string) []string {
	queries := []string{
		topic + " dataset",
		topic + " open data benchmark",
	}
	if len(keywords) > 0 {
		queries = append(queries, keywords[0]+" dataset repository")
	}
	return queries
}

// learningQueries builds the learning-resource discovery queries (4),
// using the full topic title for relevance.
func learningQueries(topic string) []string {
	return []string{
		topic + " tutorial guide",
		topic + " online course",
		topic + " YouTube",
		topic + " introduction overview",
	}
}

// toolQueries builds the software tool discovery queries (3-4).
func toolQueries(topic, approach string, keywords []string) []string {
	queries := []string{
		topic + " software tools library",
		topic + " research tools platform",
		strings.TrimSpace(topic + " " + approach + " tools github"),
	}
	if len(keywords) >= 2 {
		queries = append(queries, keywords[0]+" "+keywords[1]+" library framework")
	}
	return queries
}
