package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/avrahamavi/docuquery/config"
)

// ErrModelUnavailable marks an unreachable or misbehaving embedding backend.
// Callers must not substitute zero vectors for it.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Encoder turns text into fixed-length vectors.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// HTTPEncoder calls an OpenAI-compatible /embeddings endpoint. The remote
// model loads lazily on its side; the first probe is guarded so concurrent
// first-callers trigger a single load.
type HTTPEncoder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
	logger     *log.Logger

	mu    sync.Mutex
	ready bool
}

// NewHTTPEncoder builds an encoder from config. No network traffic happens
// until Warm or the first Encode call.
func NewHTTPEncoder(cfg config.EmbeddingConfig, logger *log.Logger) *HTTPEncoder {
	if logger == nil {
		logger = log.New(log.Writer(), "[EMBED] ", log.LstdFlags)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEncoder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Dimensions returns the fixed vector length for this deployment.
func (e *HTTPEncoder) Dimensions() int { return e.dimensions }

// Warm probes the backend so the remote model is loaded before the first
// real request. Failures are logged, not fatal: the request path retries
// through the same guard.
func (e *HTTPEncoder) Warm(ctx context.Context) {
	if err := e.ensure(ctx); err != nil {
		e.logger.Printf("warm-up failed (will retry on first request): %v", err)
	}
}

// ensure performs the one-time readiness probe. A failed probe leaves the
// encoder unready so the next caller retries instead of inheriting a stale
// failure.
func (e *HTTPEncoder) ensure(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}
	vecs, err := e.embed(ctx, []string{"ping"})
	if err != nil {
		return err
	}
	if len(vecs) != 1 {
		return fmt.Errorf("%w: probe returned %d vectors", ErrModelUnavailable, len(vecs))
	}
	if len(vecs[0]) != e.dimensions {
		return fmt.Errorf("%w: backend returned dimension %d, want %d", ErrModelUnavailable, len(vecs[0]), e.dimensions)
	}
	e.ready = true
	e.logger.Printf("embedding backend ready (model=%s dims=%d)", e.model, e.dimensions)
	return nil
}

// Encode embeds a single text.
func (e *HTTPEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeBatch embeds texts in order. Every returned vector has exactly
// Dimensions entries.
func (e *HTTPEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.ensure(ctx); err != nil {
		return nil, err
	}
	vecs, err := e.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrModelUnavailable, len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) != e.dimensions {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrModelUnavailable, i, len(v), e.dimensions)
		}
	}
	return vecs, nil
}

func (e *HTTPEncoder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	requestBody := map[string]interface{}{
		"model": e.model,
		"input": texts,
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: API returned status %d", ErrModelUnavailable, resp.StatusCode)
	}

	var embResp struct {
		Data []struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	vecs := make([][]float32, len(embResp.Data))
	for _, d := range embResp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("%w: out-of-range embedding index %d", ErrModelUnavailable, d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}
