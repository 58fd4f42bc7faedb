package qa

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avrahamavi/docuquery/config"
	"github.com/avrahamavi/docuquery/internal/embedding"
	"github.com/avrahamavi/docuquery/internal/store"
)

type stubEncoder struct {
	vector  []float32
	err     error
	calls   int
	lastTxt string
}

func (e *stubEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	e.lastTxt = text
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

func (e *stubEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for range texts {
		v, err := e.Encode(ctx, "")
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *stubEncoder) Dimensions() int { return len(e.vector) }

type stubSearcher struct {
	results       []store.SearchResult
	err           error
	calls         int
	lastNamespace string
	lastTopK      int
	lastVector    []float32
}

func (s *stubSearcher) SearchChunks(ctx context.Context, vector []float32, namespace string, topK int) ([]store.SearchResult, error) {
	s.calls++
	s.lastNamespace = namespace
	s.lastTopK = topK
	s.lastVector = append([]float32(nil), vector...)
	return s.results, s.err
}

type stubGenerator struct {
	answer     string
	err        error
	calls      int
	lastSystem string
	lastUser   string
}

func (g *stubGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	g.calls++
	g.lastSystem = systemPrompt
	g.lastUser = userPrompt
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

type mapCache struct {
	entries map[string][]byte
	gets    int
	sets    int
}

func newMapCache() *mapCache { return &mapCache{entries: map[string][]byte{}} }

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.gets++
	v, ok := c.entries[key]
	return v, ok
}

func (c *mapCache) Set(ctx context.Context, key string, value []byte) {
	c.sets++
	c.entries[key] = value
}

func newService(enc *stubEncoder, se *stubSearcher, gen *stubGenerator, c *mapCache) *Service {
	var svcCache *mapCache
	if c != nil {
		svcCache = c
	}
	logger := log.New(io.Discard, "", 0)
	if svcCache != nil {
		return New(enc, se, gen, svcCache, config.RetrievalConfig{TopK: 4, ContextBudget: 12000}, logger)
	}
	return New(enc, se, gen, nil, config.RetrievalConfig{TopK: 4, ContextBudget: 12000}, logger)
}

func djangoMatches() []store.SearchResult {
	return []store.SearchResult{
		{Chunk: store.DocumentChunk{Namespace: "django-docs", Heading: "QuerySet API", Path: "django/queryset.md", Content: "Use QuerySet.filter()"}, Similarity: 0.87},
		{Chunk: store.DocumentChunk{Namespace: "django-docs", Heading: "Lookups", Path: "django/lookups.md", Content: "Field lookups"}, Similarity: 0.61},
	}
}

func TestAnswerMissingInput(t *testing.T) {
	enc := &stubEncoder{vector: []float32{1, 0}}
	se := &stubSearcher{}
	gen := &stubGenerator{answer: "a"}
	svc := newService(enc, se, gen, nil)

	for _, tc := range []struct{ question, tool string }{
		{"", "django"},
		{"how do I filter", ""},
		{"   ", "django"},
		{"", ""},
	} {
		_, err := svc.Answer(context.Background(), tc.question, tc.tool)
		require.ErrorIs(t, err, ErrBadRequest)
	}
	assert.Zero(t, enc.calls, "no embedding for invalid input")
	assert.Zero(t, se.calls, "no search for invalid input")
	assert.Zero(t, gen.calls, "no generation for invalid input")
}

func TestAnswerHappyPath(t *testing.T) {
	enc := &stubEncoder{vector: []float32{0.1, 0.2, 0.3}}
	se := &stubSearcher{results: djangoMatches()}
	gen := &stubGenerator{answer: "Call `.filter()` on a QuerySet."}
	svc := newService(enc, se, gen, nil)

	resp, err := svc.Answer(context.Background(), "how do I filter a queryset", "django")
	require.NoError(t, err)

	assert.Equal(t, "Call `.filter()` on a QuerySet.", resp.Answer)
	assert.Equal(t, []string{"django/queryset.md", "django/lookups.md"}, resp.Sources)
	assert.Equal(t, "django-docs", se.lastNamespace)
	assert.Equal(t, 4, se.lastTopK)
	assert.Equal(t, enc.vector, se.lastVector)
	assert.Equal(t, "how do I filter a queryset", enc.lastTxt)
	assert.Contains(t, gen.lastSystem, "Django documentation assistant")
	assert.Contains(t, gen.lastUser, "Use QuerySet.filter()")
}

func TestAnswerTopRankedMatchSurvivesPipeline(t *testing.T) {
	matches := djangoMatches()
	require.Greater(t, matches[0].Similarity, 0.5)

	enc := &stubEncoder{vector: []float32{0.5, 0.5}}
	se := &stubSearcher{results: matches}
	gen := &stubGenerator{answer: "answer"}
	svc := newService(enc, se, gen, nil)

	resp, err := svc.Answer(context.Background(), "how do I filter a queryset", "django")
	require.NoError(t, err)
	assert.Equal(t, "django/queryset.md", resp.Sources[0], "top-ranked chunk cited first")
}

func TestAnswerEmptyNamespaceFallback(t *testing.T) {
	enc := &stubEncoder{vector: []float32{1}}
	se := &stubSearcher{}
	gen := &stubGenerator{answer: "unused"}
	svc := newService(enc, se, gen, nil)

	resp, err := svc.Answer(context.Background(), "anything", "unknownTool")
	require.NoError(t, err)
	assert.Contains(t, resp.Answer, "unknownTool")
	assert.Nil(t, resp.Sources)
	assert.Zero(t, gen.calls, "no generation without retrieved context")
	assert.Equal(t, "unknownTool-docs", se.lastNamespace)
}

func TestAnswerEmbeddingFailureFallback(t *testing.T) {
	enc := &stubEncoder{err: embedding.ErrModelUnavailable}
	se := &stubSearcher{}
	gen := &stubGenerator{}
	svc := newService(enc, se, gen, nil)

	resp, err := svc.Answer(context.Background(), "question", "pytest")
	require.NoError(t, err, "embedding failure never surfaces")
	assert.Contains(t, resp.Answer, "pytest")
	assert.Nil(t, resp.Sources)
	assert.Zero(t, se.calls)
	assert.Zero(t, gen.calls)
}

func TestAnswerSearchFailureFallback(t *testing.T) {
	enc := &stubEncoder{vector: []float32{1}}
	se := &stubSearcher{err: errors.New("connection refused")}
	gen := &stubGenerator{}
	svc := newService(enc, se, gen, nil)

	resp, err := svc.Answer(context.Background(), "question", "docker")
	require.NoError(t, err, "search failure never surfaces")
	assert.Contains(t, resp.Answer, "docker")
	assert.Nil(t, resp.Sources)
	assert.Zero(t, gen.calls)
}

func TestAnswerGenerationFailureFallback(t *testing.T) {
	enc := &stubEncoder{vector: []float32{1}}
	se := &stubSearcher{results: djangoMatches()}
	gen := &stubGenerator{err: errors.New("network timeout")}
	svc := newService(enc, se, gen, nil)

	resp, err := svc.Answer(context.Background(), "question", "django")
	require.NoError(t, err, "generation failure never surfaces")
	assert.Contains(t, resp.Answer, "django")
	assert.Nil(t, resp.Sources)
}

func TestAnswerCachesGenuineAnswers(t *testing.T) {
	enc := &stubEncoder{vector: []float32{1}}
	se := &stubSearcher{results: djangoMatches()}
	gen := &stubGenerator{answer: "cached answer"}
	c := newMapCache()
	svc := newService(enc, se, gen, c)

	_, err := svc.Answer(context.Background(), "how do I filter", "django")
	require.NoError(t, err)
	require.Equal(t, 1, c.sets)

	resp, err := svc.Answer(context.Background(), "how do I filter", "django")
	require.NoError(t, err)
	assert.Equal(t, "cached answer", resp.Answer)
	assert.Equal(t, 1, enc.calls, "cache hit skips embedding")
	assert.Equal(t, 1, gen.calls, "cache hit skips generation")
}

func TestAnswerDoesNotCacheFallbacks(t *testing.T) {
	enc := &stubEncoder{vector: []float32{1}}
	se := &stubSearcher{}
	gen := &stubGenerator{}
	c := newMapCache()
	svc := newService(enc, se, gen, c)

	_, err := svc.Answer(context.Background(), "question", "ghosttool")
	require.NoError(t, err)
	assert.Zero(t, c.sets)
}

func TestAnswerFallbackSerializesWithoutSources(t *testing.T) {
	resp := Response{Answer: "fallback"}
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sources")
}
