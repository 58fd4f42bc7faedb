package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/avrahamavi/docuquery/internal/embedding"
	"github.com/avrahamavi/docuquery/internal/store"
	"github.com/avrahamavi/docuquery/internal/telemetry"
)

// inserter is the write-path slice of the vector store.
type inserter interface {
	InsertChunks(ctx context.Context, chunks []store.DocumentChunk) (int, error)
	NamespaceStats(ctx context.Context) ([]store.NamespaceCount, error)
}

// IngestHandler exposes the admin ingestion API. Unlike the chat path,
// failures here propagate: silent data loss is unacceptable.
type IngestHandler struct {
	Encoder embedding.Encoder
	Store   inserter
	Logger  *log.Logger
}

func (h *IngestHandler) Register(g *echo.Group) {
	if h.Logger == nil {
		h.Logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	g.POST("/documents", h.storeDocuments)
	g.GET("/namespaces", h.namespaces)
}

type ingestDocument struct {
	Heading     string `json:"heading"`
	Path        string `json:"path"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	ChunkID     int    `json:"chunk_id"`
	TotalChunks int    `json:"total_chunks"`
	Level       int    `json:"level"`
}

type ingestRequest struct {
	Documents []ingestDocument `json:"documents"`
	Namespace string           `json:"namespace"`
	DocType   string           `json:"doc_type"`
}

type ingestResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

func (h *IngestHandler) storeDocuments(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Documents) == 0 || strings.TrimSpace(req.Namespace) == "" || strings.TrimSpace(req.DocType) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing documents, namespace, or doc_type")
	}

	ctx := c.Request().Context()
	texts := make([]string, 0, len(req.Documents))
	for _, doc := range req.Documents {
		texts = append(texts, doc.Heading+"\n\n"+doc.Content)
	}
	vecs, err := h.Encoder.EncodeBatch(ctx, texts)
	if err != nil {
		h.Logger.Printf("embedding %d documents failed: %v", len(req.Documents), err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	chunks := make([]store.DocumentChunk, 0, len(req.Documents))
	for i, doc := range req.Documents {
		level := doc.Level
		if level == 0 {
			level = 1
		}
		chunks = append(chunks, store.DocumentChunk{
			Namespace:   req.Namespace,
			DocType:     req.DocType,
			Heading:     doc.Heading,
			Path:        doc.Path,
			URL:         doc.URL,
			Content:     doc.Content,
			ChunkID:     doc.ChunkID,
			TotalChunks: doc.TotalChunks,
			Level:       level,
			Embedding:   vecs[i],
		})
	}

	count, err := h.Store.InsertChunks(ctx, chunks)
	if err != nil {
		h.Logger.Printf("storing documents in namespace %q failed: %v", req.Namespace, err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	telemetry.DocumentsIngested.Add(float64(count))
	return c.JSON(http.StatusOK, ingestResponse{
		Success: true,
		Message: fmt.Sprintf("Successfully stored %d documents in namespace '%s'", count, req.Namespace),
		Count:   count,
	})
}

type namespaceEntry struct {
	Namespace string `json:"namespace"`
	Count     int    `json:"count"`
}

func (h *IngestHandler) namespaces(c echo.Context) error {
	stats, err := h.Store.NamespaceStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]namespaceEntry, 0, len(stats))
	for _, s := range stats {
		out = append(out, namespaceEntry{Namespace: s.Namespace, Count: s.Count})
	}
	return c.JSON(http.StatusOK, out)
}
