package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/extraction"
	"github.com/fyrsmithlabs/recalld/internal/llm"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/reconcile"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

type stubStore struct {
	points map[string]vectorstore.Point
}

func newStubStore() *stubStore {
	return &stubStore{points: make(map[string]vectorstore.Point)}
}

func stubCos(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32((dot/(math.Sqrt(na)*math.Sqrt(nb)) + 1) / 2)
}

func stubMatch(payload, filters map[string]interface{}) bool {
	for k, v := range filters {
		if payload[k] != v {
			return false
		}
	}
	return true
}

func (s *stubStore) Insert(_ context.Context, points []vectorstore.Point) error {
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

func (s *stubStore) Search(_ context.Context, vector []float32, limit int, filters map[string]interface{}, threshold float32) ([]vectorstore.ScoredPoint, error) {
	var hits []vectorstore.ScoredPoint
	for _, p := range s.points {
		if !stubMatch(p.Payload, filters) {
			continue
		}
		score := stubCos(vector, p.Vector)
		if score < threshold {
			continue
		}
		hits = append(hits, vectorstore.ScoredPoint{Point: p, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *stubStore) Get(_ context.Context, id string) (*vectorstore.Point, error) {
	p, ok := s.points[id]
	if !ok {
		return nil, vectorstore.ErrNotFound
	}
	return &p, nil
}

func (s *stubStore) Update(_ context.Context, id string, vector []float32, payload map[string]interface{}) error {
	if _, ok := s.points[id]; !ok {
		return vectorstore.ErrNotFound
	}
	s.points[id] = vectorstore.Point{ID: id, Vector: vector, Payload: payload}
	return nil
}

func (s *stubStore) Delete(_ context.Context, id string) error {
	if _, ok := s.points[id]; !ok {
		return vectorstore.ErrNotFound
	}
	delete(s.points, id)
	return nil
}

func (s *stubStore) List(_ context.Context, filters map[string]interface{}, limit int) ([]vectorstore.Point, error) {
	var out []vectorstore.Point
	for _, p := range s.points {
		if stubMatch(p.Payload, filters) {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubStore) Info(_ context.Context) (*vectorstore.CollectionInfo, error) {
	return &vectorstore.CollectionInfo{Name: "test", PointCount: len(s.points), VectorSize: 2}, nil
}

func (s *stubStore) Reset(_ context.Context) error {
	s.points = make(map[string]vectorstore.Point)
	return nil
}

func (s *stubStore) Close() error { return nil }

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string, embeddings.Purpose) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (e stubEmbedder) EmbedBatch(ctx context.Context, texts []string, p embeddings.Purpose) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = e.Embed(ctx, texts[i], p)
	}
	return out, nil
}

func (stubEmbedder) Dimension() int { return 2 }
func (stubEmbedder) Close() error   { return nil }

type stubLLM struct {
	extract string
	decide  string
	err     error
}

func (f *stubLLM) Generate(_ context.Context, messages []llm.Message, _ llm.Format) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if strings.Contains(messages[0].Content, "intelligent memory manager") {
		return f.decide, nil
	}
	return f.extract, nil
}

func (f *stubLLM) Close() error { return nil }

func newTestServer(t *testing.T, store vectorstore.Store, provider llm.Provider) *Server {
	t.Helper()

	embedder := stubEmbedder{}
	extractor := extraction.NewExtractor(provider, nil)
	engine := reconcile.NewEngine(store, embedder, provider, config.MemoryConfig{
		SimilarityThreshold: 0.6,
		SearchLimit:         3,
	}, nil)
	svc := memory.NewService(store, embedder, extractor, engine, nil, nil)

	srv, err := NewServer(svc, zap.NewNop(), config.ServerConfig{Host: "localhost", Port: 8765})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func seedRecord(t *testing.T, store vectorstore.Store, data, user string) string {
	t.Helper()
	id, err := reconcile.CreateRecord(context.Background(), store, data, extraction.SubtypeFacts, []float32{1, 0},
		map[string]interface{}{"user_id": user})
	require.NoError(t, err)
	return id
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubLLM{})
	rec := doJSON(t, srv, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Collection)
	assert.Equal(t, "test", resp.Collection.Name)
}

func TestAddRaw(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, store, &stubLLM{})

	rec := doJSON(t, srv, http.MethodPost, "/add", `{
		"messages": [
			{"role": "user", "content": "I love hiking"},
			{"role": "system", "content": "ignored"}
		],
		"user_id": "u1",
		"infer": false
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Results []reconcile.Action `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, reconcile.EventAdd, resp.Results[0].Event)
	assert.Equal(t, "I love hiking", resp.Results[0].Memory)
}

func TestAddValidation(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubLLM{})

	rec := doJSON(t, srv, http.MethodPost, "/add", `{"messages": [], "user_id": "u1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/add", `{"messages": [{"role": "user", "content": "hi"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "user_id, agent_id, or run_id")
}

func TestAddInferDecisionFailureDegrades(t *testing.T) {
	// Extraction succeeds but the decision model is down: the endpoint
	// still answers 200 with no results.
	provider := &stubLLM{extract: `{"memories": ["Age: 24"]}`}
	provider.decide = ""
	srv := newTestServer(t, newStubStore(), &llmDecideError{inner: provider})

	rec := doJSON(t, srv, http.MethodPost, "/add", `{
		"messages": [{"role": "user", "content": "I'm 24"}],
		"user_id": "u1",
		"memory_type": "profile"
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Results []reconcile.Action `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Results)
}

// llmDecideError proxies extraction calls but fails decision calls.
type llmDecideError struct {
	inner *stubLLM
}

func (f *llmDecideError) Generate(ctx context.Context, messages []llm.Message, format llm.Format) (string, error) {
	if strings.Contains(messages[0].Content, "intelligent memory manager") {
		return "", errors.New("model unavailable")
	}
	return f.inner.Generate(ctx, messages, format)
}

func (f *llmDecideError) Close() error { return nil }

func TestAddInferReconciles(t *testing.T) {
	provider := &stubLLM{
		extract: `{"memories": ["Age: 24"]}`,
		decide:  `{"memory": [{"id": "0", "text": "Age: 24", "event": "ADD"}]}`,
	}
	store := newStubStore()
	srv := newTestServer(t, store, provider)

	rec := doJSON(t, srv, http.MethodPost, "/add", `{
		"messages": [{"role": "user", "content": "I'm 24"}],
		"user_id": "u1",
		"memory_type": "profile"
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Results []reconcile.Action `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Age: 24", resp.Results[0].Memory)
	assert.Equal(t, reconcile.EventAdd, resp.Results[0].Event)
}

func TestSearch(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, store, &stubLLM{})
	seedRecord(t, store, "Likes hiking", "u1")
	seedRecord(t, store, "Other user", "u2")

	rec := doJSON(t, srv, http.MethodPost, "/search", `{"query": "hobbies", "user_id": "u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp memory.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Likes hiking", resp.Items[0].Memory)
}

func TestSearchValidation(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubLLM{})

	rec := doJSON(t, srv, http.MethodPost, "/search", `{"user_id": "u1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/search", `{"query": "q"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAllAndTypeFilter(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, store, &stubLLM{})
	seedRecord(t, store, "a fact", "u1")

	rec := doJSON(t, srv, http.MethodGet, "/memories?user_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp memory.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 1)

	rec = doJSON(t, srv, http.MethodGet, "/memories?user_id=u1&type=profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Items)

	rec = doJSON(t, srv, http.MethodGet, "/memories", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/memories?user_id=u1&limit=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUpdateDelete(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, store, &stubLLM{})
	id := seedRecord(t, store, "Age: 24", "u1")

	rec := doJSON(t, srv, http.MethodGet, "/memories/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var item memory.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "Age: 24", item.Memory)

	rec = doJSON(t, srv, http.MethodPut, "/memories/"+id, `{"data": "Age: 25"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "Age: 25", item.Memory)
	assert.Equal(t, id, item.ID)

	rec = doJSON(t, srv, http.MethodDelete, "/memories/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/memories/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodPut, "/memories/"+id, `{"data": "x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/memories/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateValidation(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubLLM{})
	rec := doJSON(t, srv, http.MethodPut, "/memories/some-id", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAllScoped(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, store, &stubLLM{})
	seedRecord(t, store, "one", "u1")
	seedRecord(t, store, "two", "u1")
	seedRecord(t, store, "keep", "u2")

	rec := doJSON(t, srv, http.MethodDelete, "/memories?user_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp["deleted"])

	rec = doJSON(t, srv, http.MethodDelete, "/memories", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReset(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, store, &stubLLM{})
	seedRecord(t, store, "gone", "u1")

	rec := doJSON(t, srv, http.MethodPost, "/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/memories?user_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp memory.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Items)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubLLM{})
	rec := doJSON(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
