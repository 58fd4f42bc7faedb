package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avrahamavi/docuquery/internal/store"
)

type stubBatchEncoder struct {
	dims     int
	err      error
	calls    int
	lastTxts []string
}

func (e *stubBatchEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *stubBatchEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	e.lastTxts = append([]string(nil), texts...)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, e.dims)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

func (e *stubBatchEncoder) Dimensions() int { return e.dims }

type stubInserter struct {
	insertErr  error
	statsErr   error
	stats      []store.NamespaceCount
	lastChunks []store.DocumentChunk
}

func (s *stubInserter) InsertChunks(ctx context.Context, chunks []store.DocumentChunk) (int, error) {
	s.lastChunks = chunks
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	return len(chunks), nil
}

func (s *stubInserter) NamespaceStats(ctx context.Context) ([]store.NamespaceCount, error) {
	return s.stats, s.statsErr
}

func newAdminEcho(t *testing.T, h *IngestHandler, secret []byte) *echo.Echo {
	t.Helper()
	h.Logger = log.New(io.Discard, "", 0)
	e := echo.New()
	admin := e.Group("/api/admin")
	admin.Use(authMiddleware(secret))
	h.Register(admin)
	return e
}

func adminRequest(t *testing.T, method, path, payload string, token string) *http.Request {
	t.Helper()
	var req *http.Request
	if payload == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(payload))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

const ingestPayload = `{
  "documents": [
    {"heading": "QuerySet API", "path": "django/queryset.md", "url": "https://docs/qs", "content": "Use QuerySet.filter()", "chunk_id": 0, "total_chunks": 2, "level": 2},
    {"heading": "Lookups", "path": "django/lookups.md", "url": "https://docs/lk", "content": "Field lookups", "chunk_id": 1, "total_chunks": 2}
  ],
  "namespace": "django-docs",
  "doc_type": "django"
}`

func TestIngestSuccess(t *testing.T) {
	secret := []byte("secret")
	enc := &stubBatchEncoder{dims: 4}
	ins := &stubInserter{}
	e := newAdminEcho(t, &IngestHandler{Encoder: enc, Store: ins}, secret)

	token, err := SignJWT("admin", secret, time.Hour)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, adminRequest(t, http.MethodPost, "/api/admin/documents", ingestPayload, token))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Count)
	assert.Contains(t, resp.Message, "django-docs")

	require.Len(t, ins.lastChunks, 2)
	assert.Equal(t, "django-docs", ins.lastChunks[0].Namespace)
	assert.Equal(t, "django", ins.lastChunks[0].DocType)
	assert.Equal(t, 2, ins.lastChunks[0].Level)
	assert.Equal(t, 1, ins.lastChunks[1].Level, "level defaults to 1")
	require.Equal(t, 1, enc.calls)
	assert.Equal(t, "QuerySet API\n\nUse QuerySet.filter()", enc.lastTxts[0], "heading and content embedded together")
}

func TestIngestRequiresAuth(t *testing.T) {
	secret := []byte("secret")
	e := newAdminEcho(t, &IngestHandler{Encoder: &stubBatchEncoder{dims: 4}, Store: &stubInserter{}}, secret)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, adminRequest(t, http.MethodPost, "/api/admin/documents", ingestPayload, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, adminRequest(t, http.MethodPost, "/api/admin/documents", ingestPayload, "not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngestValidation(t *testing.T) {
	secret := []byte("secret")
	enc := &stubBatchEncoder{dims: 4}
	e := newAdminEcho(t, &IngestHandler{Encoder: enc, Store: &stubInserter{}}, secret)
	token, err := SignJWT("admin", secret, time.Hour)
	require.NoError(t, err)

	for _, payload := range []string{
		`{"documents": [], "namespace": "x-docs", "doc_type": "x"}`,
		`{"documents": [{"content": "c"}], "namespace": "", "doc_type": "x"}`,
		`{"documents": [{"content": "c"}], "namespace": "x-docs", "doc_type": ""}`,
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, adminRequest(t, http.MethodPost, "/api/admin/documents", payload, token))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	assert.Zero(t, enc.calls, "no embedding for invalid input")
}

func TestIngestStorageFailurePropagates(t *testing.T) {
	secret := []byte("secret")
	ins := &stubInserter{insertErr: errors.New("pq: connection refused")}
	e := newAdminEcho(t, &IngestHandler{Encoder: &stubBatchEncoder{dims: 4}, Store: ins}, secret)
	token, err := SignJWT("admin", secret, time.Hour)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, adminRequest(t, http.MethodPost, "/api/admin/documents", ingestPayload, token))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "connection refused")
}

func TestIngestEmbeddingFailurePropagates(t *testing.T) {
	secret := []byte("secret")
	enc := &stubBatchEncoder{dims: 4, err: errors.New("embedding model unavailable")}
	e := newAdminEcho(t, &IngestHandler{Encoder: enc, Store: &stubInserter{}}, secret)
	token, err := SignJWT("admin", secret, time.Hour)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, adminRequest(t, http.MethodPost, "/api/admin/documents", ingestPayload, token))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNamespaceStats(t *testing.T) {
	secret := []byte("secret")
	ins := &stubInserter{stats: []store.NamespaceCount{
		{Namespace: "django-docs", Count: 120},
		{Namespace: "git-docs", Count: 14},
	}}
	e := newAdminEcho(t, &IngestHandler{Encoder: &stubBatchEncoder{dims: 4}, Store: ins}, secret)
	token, err := SignJWT("admin", secret, time.Hour)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, adminRequest(t, http.MethodGet, "/api/admin/namespaces", "", token))

	require.Equal(t, http.StatusOK, rec.Code)
	var out []namespaceEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "django-docs", out[0].Namespace)
	assert.Equal(t, 120, out[0].Count)
}
