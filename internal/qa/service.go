package qa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/avrahamavi/docuquery/config"
	"github.com/avrahamavi/docuquery/internal/cache"
	"github.com/avrahamavi/docuquery/internal/embedding"
	"github.com/avrahamavi/docuquery/internal/store"
	"github.com/avrahamavi/docuquery/internal/telemetry"
	"github.com/avrahamavi/docuquery/provider"
)

// ErrBadRequest marks malformed question-answering input. It is the only
// pipeline error that surfaces to the caller; everything else degrades to a
// templated fallback answer.
var ErrBadRequest = errors.New("bad request")

// Searcher is the slice of the vector store the pipeline reads from.
type Searcher interface {
	SearchChunks(ctx context.Context, vector []float32, namespace string, topK int) ([]store.SearchResult, error)
}

// Response is the boundary answer shape. Sources is omitted on fallback
// answers so callers cannot distinguish them at the transport level.
type Response struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`
}

// Service coordinates encoder, vector store and generator into a single
// question-answering cycle.
type Service struct {
	encoder   embedding.Encoder
	store     Searcher
	generator provider.Provider
	cache     cache.AnswerCache
	topK      int
	budget    int
	logger    *log.Logger
}

// New builds the orchestrator. cache may be nil.
func New(encoder embedding.Encoder, st Searcher, generator provider.Provider, answerCache cache.AnswerCache, cfg config.RetrievalConfig, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.Writer(), "[QA] ", log.LstdFlags)
	}
	cfg = cfg.Normalize()
	return &Service{
		encoder:   encoder,
		store:     st,
		generator: generator,
		cache:     answerCache,
		topK:      cfg.TopK,
		budget:    cfg.ContextBudget,
		logger:    logger,
	}
}

// Answer runs the retrieval pipeline for one question. It returns
// ErrBadRequest for missing input; every downstream failure is absorbed into
// a fallback Response.
func (s *Service) Answer(ctx context.Context, question, toolName string) (Response, error) {
	question = strings.TrimSpace(question)
	toolName = strings.TrimSpace(toolName)
	if question == "" || toolName == "" {
		return Response{}, fmt.Errorf("%w: missing question or tool_name", ErrBadRequest)
	}

	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, cache.Key(toolName, question)); ok {
			var resp Response
			if err := json.Unmarshal(raw, &resp); err == nil {
				telemetry.QuestionsTotal.WithLabelValues(telemetry.OutcomeCached).Inc()
				return resp, nil
			}
		}
	}

	// Namespace derivation is exact-match: no case or whitespace
	// normalization of tool_name.
	namespace := toolName + "-docs"

	embedStart := time.Now()
	vector, err := s.encoder.Encode(ctx, question)
	telemetry.ObserveStage(telemetry.StageEmbed, embedStart)
	if err != nil {
		s.logger.Printf("embedding question failed: %v", err)
		telemetry.QuestionsTotal.WithLabelValues(telemetry.OutcomeFallbackEmbed).Inc()
		return Response{Answer: noDocsFallback(toolName)}, nil
	}

	searchStart := time.Now()
	matches, err := s.store.SearchChunks(ctx, vector, namespace, s.topK)
	telemetry.ObserveStage(telemetry.StageSearch, searchStart)
	if err != nil {
		// Search failures degrade to an empty result; only the write path
		// surfaces storage errors.
		s.logger.Printf("vector search failed for namespace %q: %v", namespace, err)
		telemetry.QuestionsTotal.WithLabelValues(telemetry.OutcomeFallbackSearch).Inc()
		return Response{Answer: noDocsFallback(toolName)}, nil
	}
	if len(matches) == 0 {
		telemetry.QuestionsTotal.WithLabelValues(telemetry.OutcomeFallbackEmpty).Inc()
		return Response{Answer: noDocsFallback(toolName)}, nil
	}

	docContext := AssembleContext(matches, s.budget)

	genStart := time.Now()
	answer, err := s.generator.Generate(ctx, systemPrompt(toolName), userPrompt(question, docContext))
	telemetry.ObserveStage(telemetry.StageGenerate, genStart)
	if err != nil {
		s.logger.Printf("answer generation failed: %v", err)
		telemetry.QuestionsTotal.WithLabelValues(telemetry.OutcomeFallbackGenerate).Inc()
		return Response{Answer: generationFallback(toolName)}, nil
	}

	sources := make([]string, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, m.Chunk.Path)
	}
	resp := Response{Answer: answer, Sources: sources}

	if s.cache != nil {
		if raw, err := json.Marshal(resp); err == nil {
			s.cache.Set(ctx, cache.Key(toolName, question), raw)
		}
	}
	telemetry.QuestionsTotal.WithLabelValues(telemetry.OutcomeAnswered).Inc()
	return resp, nil
}
