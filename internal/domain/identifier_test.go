package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain DOI is lower-cased",
			input:    "10.1234/ABC.123",
			expected: "10.1234/abc.123",
		},
		{
			name:     "https doi.org prefix is stripped",
			input:    "https://doi.org/10.1234/abc",
			expected: "10.1234/abc",
		},
		{
			name:     "http doi.org prefix is stripped",
			input:    "http://doi.org/10.1234/abc",
			expected: "10.1234/abc",
		},
		{
			name:     "doi: prefix is stripped",
			input:    "doi:10.1234/abc",
			expected: "10.1234/abc",
		},
		{
			name:     "surrounding whitespace is trimmed",
			input:    "  10.1234/abc  ",
			expected: "10.1234/abc",
		},
		{
			name:     "mixed case URL prefix",
			input:    "HTTPS://DOI.ORG/10.1/X",
			expected: "10.1/x",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeDOI(tt.input))
		})
	}
}

func TestNormalizeTitleKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lower-cases and strips punctuation",
			input:    "CRISPR: Gene-Editing, Revisited!",
			expected: "crispr geneediting revisited",
		},
		{
			name:     "trims surrounding whitespace",
			input:    "  A Title  ",
			expected: "a title",
		},
		{
			name:     "digits are kept",
			input:    "GPT-4 and Beyond",
			expected: "gpt4 and beyond",
		},
		{
			name:     "only punctuation yields empty key",
			input:    "!!! ---",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTitleKey(tt.input))
		})
	}
}

func TestDedupKey(t *testing.T) {
	t.Run("same DOI in different forms yields one key", func(t *testing.T) {
		a := DedupKey("10.1/X", "Some Title")
		b := DedupKey("https://doi.org/10.1/x", "A Different Title")
		assert.Equal(t, a, b)
	})

	t.Run("empty DOI falls back to title key", func(t *testing.T) {
		a := DedupKey("", "Deep Learning: A Survey")
		b := DedupKey("", "deep learning a survey!!")
		assert.Equal(t, a, b)
		assert.Equal(t, "deep learning a survey", a)
	})

	t.Run("no DOI and empty title is unkeyable", func(t *testing.T) {
		assert.Empty(t, DedupKey("", "??!"))
	})
}

func TestRunStatus(t *testing.T) {
	assert.True(t, RunStatusCompleted.IsTerminal())
	assert.True(t, RunStatusFailed.IsTerminal())
	assert.False(t, RunStatusRunning.IsTerminal())
	assert.False(t, RunStatusAwaitingFeedback.IsTerminal())

	assert.True(t, RunStatusRunning.IsValid())
	assert.False(t, RunStatus("cancelled").IsValid())
}

func TestProvenanceLabel(t *testing.T) {
	assert.Equal(t, "OpenAlex", ProvenanceOpenAlex.Label())
	assert.Equal(t, "Semantic Scholar", ProvenanceSemanticScholar.Label())
	assert.Equal(t, "OpenAlex + Semantic Scholar", ProvenanceBoth.Label())
	assert.Equal(t, "Academic Database", Provenance("unknown").Label())
}
