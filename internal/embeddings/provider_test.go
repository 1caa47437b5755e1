package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(config.EmbeddingsConfig{Provider: "cohere"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOpenAIProviderEmbedBatch(t *testing.T) {
	var gotAuth string
	var gotReq openAIEmbedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		// Reply out of order to verify index-based reassembly
		resp := openAIEmbedResponse{}
		resp.Data = append(resp.Data, struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{Index: 1, Embedding: []float32{0.3, 0.4}})
		resp.Data = append(resp.Data, struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{Index: 0, Embedding: []float32{0.1, 0.2}})
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p, err := NewProvider(config.EmbeddingsConfig{
		Provider:   "openai",
		BaseURL:    srv.URL,
		APIKey:     config.Secret("sk-test"),
		Model:      "text-embedding-3-small",
		Dimensions: 2,
		Timeout:    config.Duration(5 * time.Second),
	})
	require.NoError(t, err)
	defer p.Close()

	vectors, err := p.EmbedBatch(context.Background(), []string{"first", "second"}, PurposeAdd)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float32{0.3, 0.4}, vectors[1])

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "text-embedding-3-small", gotReq.Model)
	assert.Equal(t, []string{"first", "second"}, gotReq.Input)
	assert.Equal(t, 2, gotReq.Dimensions)
	assert.Equal(t, 2, p.Dimension())
}

func TestOpenAIProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := NewProvider(config.EmbeddingsConfig{
		Provider:   "openai",
		BaseURL:    srv.URL,
		Model:      "text-embedding-3-small",
		Dimensions: 2,
	})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "hello", PurposeSearch)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	_, err = p.Embed(context.Background(), "", PurposeSearch)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = p.EmbedBatch(context.Background(), nil, PurposeSearch)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestTEIProviderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)

		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)

		_ = json.NewEncoder(w).Encode([][]float32{{0.5, 0.6, 0.7}})
	}))
	defer srv.Close()

	p, err := NewProvider(config.EmbeddingsConfig{
		Provider:   "tei",
		BaseURL:    srv.URL,
		Model:      "BAAI/bge-small-en-v1.5",
		Dimensions: 3,
	})
	require.NoError(t, err)
	defer p.Close()

	vec, err := p.Embed(context.Background(), "hello world", PurposeSearch)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.6, 0.7}, vec)
	assert.Equal(t, 3, p.Dimension())
}

func TestTEIProviderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{{0.1}})
	}))
	defer srv.Close()

	p, err := NewProvider(config.EmbeddingsConfig{
		Provider:   "tei",
		BaseURL:    srv.URL,
		Dimensions: 1,
	})
	require.NoError(t, err)

	_, err = p.EmbedBatch(context.Background(), []string{"a", "b"}, PurposeAdd)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestProviderConfigValidation(t *testing.T) {
	_, err := NewProvider(config.EmbeddingsConfig{Provider: "openai", Model: "m", Dimensions: 2})
	assert.ErrorIs(t, err, ErrInvalidConfig) // missing base URL

	_, err = NewProvider(config.EmbeddingsConfig{Provider: "openai", BaseURL: "http://x", Dimensions: 2})
	assert.ErrorIs(t, err, ErrInvalidConfig) // missing model

	_, err = NewProvider(config.EmbeddingsConfig{Provider: "tei", BaseURL: "http://x"})
	assert.ErrorIs(t, err, ErrInvalidConfig) // missing dimensions
}
