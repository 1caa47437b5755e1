package reconcile

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/extraction"
	"github.com/fyrsmithlabs/recalld/internal/llm"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

// fakeEmbedder returns preset vectors keyed by text, defaulting to a unit
// vector so unknown texts are still embeddable.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string, _ embeddings.Purpose) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, purpose embeddings.Purpose) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := f.Embed(ctx, t, purpose)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 2 }
func (f *fakeEmbedder) Close() error   { return nil }

// fakeDecider returns a scripted decision and captures the prompt.
type fakeDecider struct {
	response string
	err      error
	prompt   string
}

func (f *fakeDecider) Generate(_ context.Context, messages []llm.Message, _ llm.Format) (string, error) {
	if len(messages) > 0 {
		f.prompt = messages[len(messages)-1].Content
	}
	return f.response, f.err
}

func (f *fakeDecider) Close() error { return nil }

// memStore is a minimal in-memory Store with real cosine scoring.
type memStore struct {
	points map[string]vectorstore.Point
}

func newMemStore() *memStore {
	return &memStore{points: make(map[string]vectorstore.Point)}
}

func cosineSim(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return float32((cos + 1) / 2)
}

func matches(payload map[string]interface{}, filters map[string]interface{}) bool {
	for k, v := range filters {
		if payload[k] != v {
			return false
		}
	}
	return true
}

func (s *memStore) Insert(_ context.Context, points []vectorstore.Point) error {
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

func (s *memStore) Search(_ context.Context, vector []float32, limit int, filters map[string]interface{}, threshold float32) ([]vectorstore.ScoredPoint, error) {
	var hits []vectorstore.ScoredPoint
	for _, p := range s.points {
		if !matches(p.Payload, filters) {
			continue
		}
		score := cosineSim(vector, p.Vector)
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

func (s *memStore) Get(_ context.Context, id string) (*vectorstore.Point, error) {
	p, ok := s.points[id]
	if !ok {
		return nil, vectorstore.ErrNotFound
	}
	return &p, nil
}

func (s *memStore) Update(_ context.Context, id string, vector []float32, payload map[string]interface{}) error {
	if _, ok := s.points[id]; !ok {
		return vectorstore.ErrNotFound
	}
	s.points[id] = vectorstore.Point{ID: id, Vector: vector, Payload: payload}
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	if _, ok := s.points[id]; !ok {
		return vectorstore.ErrNotFound
	}
	delete(s.points, id)
	return nil
}

func (s *memStore) List(_ context.Context, filters map[string]interface{}, limit int) ([]vectorstore.Point, error) {
	var out []vectorstore.Point
	for _, p := range s.points {
		if matches(p.Payload, filters) {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) Info(_ context.Context) (*vectorstore.CollectionInfo, error) {
	return &vectorstore.CollectionInfo{Name: "test", PointCount: len(s.points), VectorSize: 2}, nil
}

func (s *memStore) Reset(_ context.Context) error {
	s.points = make(map[string]vectorstore.Point)
	return nil
}

func (s *memStore) Close() error { return nil }

var _ vectorstore.Store = (*memStore)(nil)

func testEngine(store vectorstore.Store, embedder embeddings.Provider, decider llm.Provider) *Engine {
	return NewEngine(store, embedder, decider, config.MemoryConfig{
		SimilarityThreshold: 0.6,
		SearchLimit:         3,
	}, nil)
}

func scopeMeta() map[string]interface{} {
	return map[string]interface{}{KeyUserID: "u1"}
}

func scopeFilters() map[string]interface{} {
	return map[string]interface{}{KeyUserID: "u1"}
}

func TestReconcileNoCandidates(t *testing.T) {
	decider := &fakeDecider{response: `{"memory": []}`}
	e := testEngine(newMemStore(), &fakeEmbedder{}, decider)

	actions, err := e.Reconcile(context.Background(), nil, extraction.SubtypeFacts, scopeMeta(), scopeFilters())
	require.NoError(t, err)
	assert.Nil(t, actions)
	assert.Empty(t, decider.prompt)
}

func TestReconcileAdd(t *testing.T) {
	store := newMemStore()
	decider := &fakeDecider{response: `{"memory": [
		{"id": "0", "text": "Age: 24", "event": "ADD"},
		{"id": "1", "text": "Location: Beijing", "event": "ADD"}
	]}`}
	e := testEngine(store, &fakeEmbedder{}, decider)

	actions, err := e.Reconcile(context.Background(), []string{"Age: 24", "Location: Beijing"}, extraction.SubtypeProfile, scopeMeta(), scopeFilters())
	require.NoError(t, err)
	require.Len(t, actions, 2)

	assert.Equal(t, EventAdd, actions[0].Event)
	assert.Equal(t, "Age: 24", actions[0].Memory)
	assert.Equal(t, extraction.SubtypeProfile, actions[0].Type)
	assert.NotEmpty(t, actions[0].ID)

	stored, err := store.Get(context.Background(), actions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Age: 24", stored.Payload[KeyData])
	assert.Equal(t, "u1", stored.Payload[KeyUserID])
	assert.Equal(t, string(extraction.SubtypeProfile), stored.Payload[KeyType])
	assert.Equal(t, HashData("Age: 24"), stored.Payload[KeyHash])
	assert.NotEmpty(t, stored.Payload[KeyCreatedAt])
}

func TestReconcileUpdatePreservesIdentity(t *testing.T) {
	store := newMemStore()
	_, err := CreateRecord(context.Background(), store, "Likes: Playing cricket", extraction.SubtypeProfile, []float32{1, 0}, scopeMeta())
	require.NoError(t, err)

	existing, err := store.List(context.Background(), nil, 0)
	require.NoError(t, err)
	origID := existing[0].ID
	origCreated := existing[0].Payload[KeyCreatedAt]

	decider := &fakeDecider{response: `{"memory": [
		{"id": "0", "text": "Likes: Playing cricket with friends", "event": "UPDATE", "old_memory": "Likes: Playing cricket"}
	]}`}
	e := testEngine(store, &fakeEmbedder{}, decider)

	actions, err := e.Reconcile(context.Background(), []string{"Likes: Playing cricket with friends"}, extraction.SubtypeProfile, scopeMeta(), scopeFilters())
	require.NoError(t, err)
	require.Len(t, actions, 1)

	assert.Equal(t, EventUpdate, actions[0].Event)
	assert.Equal(t, origID, actions[0].ID)
	assert.Equal(t, "Likes: Playing cricket", actions[0].PreviousMemory)

	stored, err := store.Get(context.Background(), origID)
	require.NoError(t, err)
	assert.Equal(t, "Likes: Playing cricket with friends", stored.Payload[KeyData])
	assert.Equal(t, origCreated, stored.Payload[KeyCreatedAt])
	assert.NotEmpty(t, stored.Payload[KeyUpdatedAt])
	assert.Equal(t, "u1", stored.Payload[KeyUserID])
}

func TestReconcileDelete(t *testing.T) {
	store := newMemStore()
	_, err := CreateRecord(context.Background(), store, "Likes: Cheese pizza", extraction.SubtypeProfile, []float32{1, 0}, scopeMeta())
	require.NoError(t, err)

	decider := &fakeDecider{response: `{"memory": [
		{"id": "0", "text": "Likes: Cheese pizza", "event": "DELETE"},
		{"id": "1", "text": "Dislikes: Cheese pizza", "event": "ADD"}
	]}`}
	e := testEngine(store, &fakeEmbedder{}, decider)

	actions, err := e.Reconcile(context.Background(), []string{"Dislikes: Cheese pizza"}, extraction.SubtypeProfile, scopeMeta(), scopeFilters())
	require.NoError(t, err)
	require.Len(t, actions, 2)

	assert.Equal(t, EventDelete, actions[0].Event)
	assert.Equal(t, "Likes: Cheese pizza", actions[0].PreviousMemory)
	assert.Equal(t, EventAdd, actions[1].Event)

	info, err := store.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, info.PointCount)
}

func TestReconcileNoneMakesNoChanges(t *testing.T) {
	store := newMemStore()
	_, err := CreateRecord(context.Background(), store, "Name: Xiaoming", extraction.SubtypeProfile, []float32{1, 0}, scopeMeta())
	require.NoError(t, err)

	decider := &fakeDecider{response: `{"memory": []}`}
	e := testEngine(store, &fakeEmbedder{}, decider)

	actions, err := e.Reconcile(context.Background(), []string{"Name: Xiaoming"}, extraction.SubtypeProfile, scopeMeta(), scopeFilters())
	require.NoError(t, err)
	assert.Empty(t, actions)

	info, _ := store.Info(context.Background())
	assert.Equal(t, 1, info.PointCount)
}

func TestReconcileDecisionFailuresDegrade(t *testing.T) {
	store := newMemStore()
	_, err := CreateRecord(context.Background(), store, "Name: Xiaoming", extraction.SubtypeProfile, []float32{1, 0}, scopeMeta())
	require.NoError(t, err)

	t.Run("llm error", func(t *testing.T) {
		e := testEngine(store, &fakeEmbedder{}, &fakeDecider{err: errors.New("model down")})
		actions, err := e.Reconcile(context.Background(), []string{"Name: Wan'er"}, extraction.SubtypeProfile, scopeMeta(), scopeFilters())
		require.NoError(t, err)
		assert.Empty(t, actions)
	})

	t.Run("malformed json", func(t *testing.T) {
		e := testEngine(store, &fakeEmbedder{}, &fakeDecider{response: "I think you should update memory 0"})
		actions, err := e.Reconcile(context.Background(), []string{"Name: Wan'er"}, extraction.SubtypeProfile, scopeMeta(), scopeFilters())
		require.NoError(t, err)
		assert.Empty(t, actions)
	})

	// Store untouched either way.
	info, _ := store.Info(context.Background())
	assert.Equal(t, 1, info.PointCount)
}

func TestReconcileFencedDecision(t *testing.T) {
	decider := &fakeDecider{response: "```json\n{\"memory\": [{\"id\": \"0\", \"text\": \"Age: 24\", \"event\": \"ADD\"}]}\n```"}
	e := testEngine(newMemStore(), &fakeEmbedder{}, decider)

	actions, err := e.Reconcile(context.Background(), []string{"Age: 24"}, extraction.SubtypeProfile, scopeMeta(), scopeFilters())
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, EventAdd, actions[0].Event)
}

func TestReconcileUnknownPositionalIDSkipped(t *testing.T) {
	store := newMemStore()
	decider := &fakeDecider{response: `{"memory": [
		{"id": "7", "text": "Name: Wan'er", "event": "UPDATE"},
		{"id": "8", "text": "ghost", "event": "DELETE"},
		{"id": "0", "text": "Age: 24", "event": "ADD"}
	]}`}
	e := testEngine(store, &fakeEmbedder{}, decider)

	actions, err := e.Reconcile(context.Background(), []string{"Age: 24"}, extraction.SubtypeProfile, scopeMeta(), scopeFilters())
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, EventAdd, actions[0].Event)
}

func TestReconcilePerActionErrorIsolation(t *testing.T) {
	store := newMemStore()
	id, err := CreateRecord(context.Background(), store, "Name: Xiaoming", extraction.SubtypeProfile, []float32{1, 0}, scopeMeta())
	require.NoError(t, err)

	// The record vanishes between search and apply.
	brokenStore := &vanishingStore{memStore: store, vanishID: id}

	decider := &fakeDecider{response: `{"memory": [
		{"id": "0", "text": "Name: Wan'er", "event": "UPDATE"},
		{"id": "1", "text": "Age: 24", "event": "ADD"}
	]}`}
	e := testEngine(brokenStore, &fakeEmbedder{}, decider)

	actions, err := e.Reconcile(context.Background(), []string{"Name: Wan'er", "Age: 24"}, extraction.SubtypeProfile, scopeMeta(), scopeFilters())
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)

	// The sibling ADD still landed.
	require.Len(t, actions, 1)
	assert.Equal(t, EventAdd, actions[0].Event)
	assert.Equal(t, "Age: 24", actions[0].Memory)
}

// vanishingStore hides one id from Get to simulate a concurrent delete.
type vanishingStore struct {
	*memStore
	vanishID string
}

func (s *vanishingStore) Get(ctx context.Context, id string) (*vectorstore.Point, error) {
	if id == s.vanishID {
		return nil, vectorstore.ErrNotFound
	}
	return s.memStore.Get(ctx, id)
}

func TestReconcileFiltersOtherSubtypes(t *testing.T) {
	store := newMemStore()
	// A facts record in the same scope must not appear as profile old memory.
	_, err := CreateRecord(context.Background(), store, "2025-06-03: Player argued with a friend", extraction.SubtypeFacts, []float32{1, 0}, scopeMeta())
	require.NoError(t, err)

	decider := &fakeDecider{response: `{"memory": [{"id": "0", "text": "Age: 24", "event": "ADD"}]}`}
	e := testEngine(store, &fakeEmbedder{}, decider)

	_, err = e.Reconcile(context.Background(), []string{"Age: 24"}, extraction.SubtypeProfile, scopeMeta(), scopeFilters())
	require.NoError(t, err)

	assert.Contains(t, decider.prompt, "Old Memory:\n[]")
	assert.NotContains(t, decider.prompt, "argued with a friend")
}

func TestReconcileSearchConfinedToPartition(t *testing.T) {
	store := newMemStore()
	// Three facts records sit closer to the candidate than the one profile
	// record. They must not crowd it out of the search results.
	for _, text := range []string{
		"2025-06-01: Player moved house",
		"2025-06-02: Player started a new job",
		"2025-06-03: Player adopted a cat",
	} {
		_, err := CreateRecord(context.Background(), store, text, extraction.SubtypeFacts, []float32{1, 0}, scopeMeta())
		require.NoError(t, err)
	}
	profileID, err := CreateRecord(context.Background(), store, "Location: London", extraction.SubtypeProfile, []float32{0.9, 0.1}, scopeMeta())
	require.NoError(t, err)

	decider := &fakeDecider{response: `{"memory": [{"id": "0", "text": "Location: Paris", "event": "UPDATE", "old_memory": "Location: London"}]}`}
	e := testEngine(store, &fakeEmbedder{}, decider)

	actions, err := e.Reconcile(context.Background(), []string{"Location: Paris"}, extraction.SubtypeProfile, scopeMeta(), scopeFilters())
	require.NoError(t, err)

	assert.Contains(t, decider.prompt, "Location: London")
	assert.NotContains(t, decider.prompt, "moved house")

	require.Len(t, actions, 1)
	assert.Equal(t, EventUpdate, actions[0].Event)
	assert.Equal(t, profileID, actions[0].ID)

	stored, err := store.Get(context.Background(), profileID)
	require.NoError(t, err)
	assert.Equal(t, "Location: Paris", stored.Payload[KeyData])
}

func TestReconcileScopeIsolation(t *testing.T) {
	store := newMemStore()
	_, err := CreateRecord(context.Background(), store, "Name: Xiaoming", extraction.SubtypeProfile, []float32{1, 0},
		map[string]interface{}{KeyUserID: "other"})
	require.NoError(t, err)

	decider := &fakeDecider{response: `{"memory": [{"id": "0", "text": "Name: Sarah", "event": "ADD"}]}`}
	e := testEngine(store, &fakeEmbedder{}, decider)

	_, err = e.Reconcile(context.Background(), []string{"Name: Sarah"}, extraction.SubtypeProfile, scopeMeta(), scopeFilters())
	require.NoError(t, err)

	// Other user's record never enters the prompt.
	assert.NotContains(t, decider.prompt, "Xiaoming")
}

func TestReconcileReusesCachedEmbeddings(t *testing.T) {
	embedder := &fakeEmbedder{}
	decider := &fakeDecider{response: `{"memory": [{"id": "0", "text": "Age: 24", "event": "ADD"}]}`}
	e := testEngine(newMemStore(), embedder, decider)

	_, err := e.Reconcile(context.Background(), []string{"Age: 24"}, extraction.SubtypeProfile, scopeMeta(), scopeFilters())
	require.NoError(t, err)

	// One call for the candidate; the ADD with identical text reuses it.
	assert.Equal(t, 1, embedder.calls)
}

func TestHashData(t *testing.T) {
	assert.Equal(t, HashData("same"), HashData("same"))
	assert.NotEqual(t, HashData("same"), HashData("different"))
	assert.Len(t, HashData("x"), 32)
}

func TestDecisionPromptContainsPartitionState(t *testing.T) {
	old := []oldMemory{{ID: "0", Text: "tone: gentle"}}
	prompt := buildDecisionPrompt(extraction.SubtypeStyle, old, []string{"mirror_words: tea"})

	assert.Contains(t, prompt, `"tone: gentle"`)
	assert.Contains(t, prompt, `"mirror_words: tea"`)
	assert.Contains(t, prompt, "avoid_words")
	assert.Contains(t, prompt, "ADD")
	assert.Contains(t, prompt, "UPDATE")
	assert.Contains(t, prompt, "DELETE")
	assert.Contains(t, prompt, "NONE")
}

func TestExampleBlocksPerSubtype(t *testing.T) {
	for _, tt := range []struct {
		subtype extraction.Subtype
		marker  string
	}{
		{extraction.SubtypeProfile, "Occupation: Software Engineer"},
		{extraction.SubtypeFacts, "argument with a friend"},
		{extraction.SubtypeCommitments, "timebox_min"},
		{extraction.SubtypeStyle, "mirror_words"},
		{extraction.SubtypeSummary, "argument with a friend"}, // falls back to facts
	} {
		t.Run(string(tt.subtype), func(t *testing.T) {
			assert.Contains(t, exampleFor(tt.subtype), tt.marker)
		})
	}
}
