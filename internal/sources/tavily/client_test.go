package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchgpt/evidence-service/internal/domain"
)

func TestClient_Search(t *testing.T) {
	t.Run("sends the api key in the request body", func(t *testing.T) {
		var gotRequest SearchRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/search", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
			_, _ = w.Write([]byte(`{
				"query": "public NLP datasets",
				"results": [
					{
						"title": "Hugging Face Datasets",
						"url": "https://www.huggingface.co/datasets",
						"content": "Browse thousands of datasets...",
						"score": 0.95
					},
					{
						"title": "Papers With Code Datasets",
						"url": "https://paperswithcode.com/datasets",
						"content": "Machine learning datasets...",
						"score": 0.9
					}
				]
			}`))
		}))
		defer server.Close()

		client := New(Config{BaseURL: server.URL, APIKey: "tvly-key"}, nil)

		hits, err := client.Search(context.Background(), "public NLP datasets", 5)
		require.NoError(t, err)

		assert.Equal(t, "tvly-key", gotRequest.APIKey)
		assert.Equal(t, "public NLP datasets", gotRequest.Query)
		assert.Equal(t, 5, gotRequest.MaxResults)

		require.Len(t, hits, 2)
		assert.Equal(t, "Hugging Face Datasets", hits[0].Title)
		assert.Equal(t, "huggingface.co", hits[0].Domain)
		assert.Equal(t, "paperswithcode.com", hits[1].Domain)
	})

	t.Run("requires an api key", func(t *testing.T) {
		client := New(Config{}, nil)
		_, err := client.Search(context.Background(), "anything", 5)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("defaults max results when non-positive", func(t *testing.T) {
		var gotRequest SearchRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
			_, _ = w.Write([]byte(`{"query": "q", "results": []}`))
		}))
		defer server.Close()

		client := New(Config{BaseURL: server.URL, APIKey: "tvly-key"}, nil)

		_, err := client.Search(context.Background(), "q", 0)
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxResults, gotRequest.MaxResults)
	})
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "example.org", hostOf("https://www.example.org/page"))
	assert.Equal(t, "example.org", hostOf("https://example.org"))
	assert.Equal(t, "", hostOf("not a url"))
	assert.Equal(t, "", hostOf(""))
}
