package unpaywall

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchgpt/evidence-service/internal/domain"
)

func TestClient_ResolvePDF(t *testing.T) {
	t.Run("prefers the best location pdf link", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/10.1038%2Fnature14539", r.URL.EscapedPath())
			assert.Equal(t, "team@example.org", r.URL.Query().Get("email"))
			_, _ = w.Write([]byte(`{
				"doi": "10.1038/nature14539",
				"is_oa": true,
				"best_oa_location": {
					"url": "https://example.org/landing",
					"url_for_pdf": "https://example.org/paper.pdf",
					"host_type": "repository"
				}
			}`))
		}))
		defer server.Close()

		client := New(Config{BaseURL: server.URL, Email: "team@example.org"}, nil)

		pdfURL, err := client.ResolvePDF(context.Background(), "10.1038/nature14539")
		require.NoError(t, err)
		assert.Equal(t, "https://example.org/paper.pdf", pdfURL)
	})

	t.Run("falls back to landing url then other locations", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{
				"doi": "10.1/x",
				"is_oa": true,
				"best_oa_location": {"url": "", "url_for_pdf": ""},
				"oa_locations": [
					{"url": "https://example.org/alt-landing", "url_for_pdf": ""},
					{"url_for_pdf": "https://example.org/alt.pdf"}
				]
			}`))
		}))
		defer server.Close()

		client := New(Config{BaseURL: server.URL, Email: "team@example.org"}, nil)

		pdfURL, err := client.ResolvePDF(context.Background(), "10.1/x")
		require.NoError(t, err)
		assert.Equal(t, "https://example.org/alt-landing", pdfURL)
	})

	t.Run("closed access returns empty url without error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"doi": "10.1/closed", "is_oa": false, "best_oa_location": null}`))
		}))
		defer server.Close()

		client := New(Config{BaseURL: server.URL, Email: "team@example.org"}, nil)

		pdfURL, err := client.ResolvePDF(context.Background(), "10.1/closed")
		require.NoError(t, err)
		assert.Empty(t, pdfURL)
	})

	t.Run("requires an email", func(t *testing.T) {
		client := New(Config{}, nil)
		_, err := client.ResolvePDF(context.Background(), "10.1/x")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestClient_IsEnabled(t *testing.T) {
	assert.False(t, New(Config{}, nil).IsEnabled())
	assert.True(t, New(Config{Email: "team@example.org"}, nil).IsEnabled())
}
