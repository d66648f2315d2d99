// Package v1 implements the REST API: note CRUD, semantic search, and tag
// suggestion.
package v1

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mindvault/mindvault/ai"
	"github.com/mindvault/mindvault/ai/index"
	"github.com/mindvault/mindvault/ai/tags"
	"github.com/mindvault/mindvault/internal/profile"
	"github.com/mindvault/mindvault/plugin/markdown"
	"github.com/mindvault/mindvault/store"
	"github.com/mindvault/mindvault/suggest"
	suggestmetrics "github.com/mindvault/mindvault/suggest/metrics"
)

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store

	// Shared infra
	Markdown markdown.Service
	Exporter *suggestmetrics.Exporter
	// Streams holds the suggestion stream tuning (quiet periods, floors,
	// caps); the REST handlers share its floors and caps with orchestrator
	// hosts.
	Streams suggest.Config

	// AI services; nil when the instance runs without an embedding key.
	// Endpoints that need them respond 503 instead of failing at startup.
	Similarity suggest.SimilarityService
	Tagger     tags.Suggester
	Indexer    *index.Indexer
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store) *APIV1Service {
	markdownService := markdown.NewService()
	service := &APIV1Service{
		Profile:  profile,
		Store:    store,
		Markdown: markdownService,
		Exporter: suggestmetrics.NewExporter(suggestmetrics.DefaultConfig()),
		Streams:  suggest.ConfigFromProfile(profile),
	}

	// Vector search works on PostgreSQL (pgvector) and SQLite
	// (application-layer cosine).
	if !profile.IsAIEnabled() || (profile.Driver != "postgres" && profile.Driver != "sqlite") {
		slog.Info("AI features disabled", "driver", profile.Driver)
		return service
	}

	aiConfig := ai.NewConfigFromProfile(profile)
	if err := aiConfig.Validate(); err != nil {
		slog.Warn("invalid AI configuration, AI features disabled", "error", err)
		return service
	}

	embeddingService, err := ai.NewEmbeddingService(&aiConfig.Embedding)
	if err != nil {
		slog.Warn("failed to initialize embedding service, AI features disabled", "error", err)
		return service
	}
	service.Similarity = suggest.NewSimilarityService(store, embeddingService, markdownService, aiConfig.Embedding.Model)
	service.Indexer = index.New(store, embeddingService, markdownService, aiConfig.Embedding.Model, 2)
	slog.Info("embedding service initialized",
		"provider", aiConfig.Embedding.Provider,
		"model", aiConfig.Embedding.Model,
		"dimensions", aiConfig.Embedding.Dimensions)

	llmService, err := ai.NewLLMService(&aiConfig.LLM)
	if err != nil {
		slog.Warn("failed to initialize LLM service, tag suggestions disabled", "error", err)
	} else {
		service.Tagger = tags.NewSuggester(llmService)
		slog.Info("LLM service initialized",
			"provider", aiConfig.LLM.Provider,
			"model", aiConfig.LLM.Model)
	}

	return service
}

// Register registers the REST routes with the given echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/notes", s.CreateNote)
	g.GET("/notes/:ownerId", s.ListNotes)
	g.PATCH("/notes/:uid", s.UpdateNote)
	g.DELETE("/notes/:uid", s.DeleteNote)

	g.POST("/search", s.SearchNotes)
	g.POST("/suggest-tags", s.SuggestTags)
	g.POST("/reindex", s.Reindex)
}

// Start launches background workers.
func (s *APIV1Service) Start(ctx context.Context) {
	if s.Indexer != nil {
		s.Indexer.Start()
		// Pick up notes created while AI was unconfigured.
		go func() {
			if n, err := s.Indexer.Reindex(ctx); err != nil {
				slog.Warn("startup reindex failed", "error", err)
			} else if n > 0 {
				slog.Info("startup reindex enqueued notes", "count", n)
			}
		}()
	}
}

// Stop drains background workers.
func (s *APIV1Service) Stop() {
	if s.Indexer != nil {
		s.Indexer.Stop()
	}
}

// AIReady reports whether semantic search is available.
func (s *APIV1Service) AIReady() bool {
	return s.Similarity != nil
}

// MetricsRegistry exposes the Prometheus registry for the /metrics handler.
func (s *APIV1Service) MetricsRegistry() *prometheus.Registry {
	return s.Exporter.Registry()
}
