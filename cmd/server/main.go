package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/config"
	"github.com/connexus-ai/ragbox-backend/internal/eventbus"
	"github.com/connexus-ai/ragbox-backend/internal/gcpclient"
	"github.com/connexus-ai/ragbox-backend/internal/generator"
	"github.com/connexus-ai/ragbox-backend/internal/handler"
	"github.com/connexus-ai/ragbox-backend/internal/lexical"
	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/query"
	"github.com/connexus-ai/ragbox-backend/internal/repository"
	"github.com/connexus-ai/ragbox-backend/internal/rerank"
	"github.com/connexus-ai/ragbox-backend/internal/router"
	"github.com/connexus-ai/ragbox-backend/internal/vector"
)

const Version = "0.1.0"

// buildGenerator selects the C5 synthesizer backend named by cfg.Generator.
func buildGenerator(ctx context.Context, cfg *config.Config) (generator.Synthesizer, error) {
	switch cfg.Generator {
	case "stub":
		return generator.StubSynthesizer{}, nil
	case "hf":
		return generator.NewHFSynthesizer(envOrDefault("HF_ENDPOINT", ""), cfg.HFToken, nil), nil
	case "api":
		return generator.NewAPISynthesizer(envOrDefault("GENERATOR_API_ENDPOINT", ""), envOrDefault("GENERATOR_API_KEY", ""), envOrDefault("GENERATOR_API_MODEL", ""), nil), nil
	case "vertex":
		adapter, err := gcpclient.NewGenAIAdapter(ctx, cfg.GCPProject, envOrDefault("GCP_LOCATION", "us-central1"), envOrDefault("VERTEX_GENERATIVE_MODEL", "gemini-1.5-flash"))
		if err != nil {
			return nil, fmt.Errorf("buildGenerator: vertex: %w", err)
		}
		return generator.NewVertexSynthesizer(adapter), nil
	default:
		return nil, fmt.Errorf("buildGenerator: unknown GENERATOR %q", cfg.Generator)
	}
}

func buildReranker(cfg *config.Config) rerank.Predictor {
	if strings.HasPrefix(cfg.RerankerModel, "http") {
		return rerank.NewRemotePredictor(cfg.RerankerModel, nil)
	}
	return rerank.HeuristicPredictor{}
}

// splitHostPort splits a "host:port" string, falling back to defaultPort
// when no port is present.
func splitHostPort(addr string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)

	lexicalAdapter, err := lexical.New(cfg.OpenSearchURL, metrics)
	if err != nil {
		return fmt.Errorf("run: lexical adapter: %w", err)
	}

	qdrantHost, qdrantPort := splitHostPort(cfg.QdrantURL, 6334)
	vectorAdapter, err := vector.New(ctx, qdrantHost, qdrantPort, cfg.EmbedDim, metrics)
	if err != nil {
		return fmt.Errorf("run: vector adapter: %w", err)
	}

	embedder, err := gcpclient.NewEmbeddingAdapter(ctx, cfg.GCPProject, envOrDefault("GCP_LOCATION", "us-central1"), cfg.EmbedModel)
	if err != nil {
		return fmt.Errorf("run: embedding adapter: %w", err)
	}

	rerankSvc := rerank.NewService(buildReranker(cfg), metrics, cfg.RerankWorkers)

	synth, err := buildGenerator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	generatorSvc := generator.NewService(synth, metrics, cfg.CoverageThreshold, cfg.EvidenceK)

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL(), 10)
	if err != nil {
		return fmt.Errorf("run: postgres pool: %w", err)
	}
	defer pool.Close()
	feedbackStore := repository.NewFeedbackStore(pool)

	var redisClient *redis.Client
	var queryCache query.ResultCache
	var embCache query.EmbeddingCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("run: parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		ttl := time.Duration(cfg.QueryCacheTTLSec) * time.Second
		queryCache = cache.NewQueryCache(redisClient, ttl)
		embCache = cache.NewEmbeddingCache(redisClient, ttl)
	}

	var bus query.EventBus
	if cfg.GCPProject != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCPProject)
		if err != nil {
			return fmt.Errorf("run: pubsub client: %w", err)
		}
		defer pubsubClient.Close()
		bus = eventbus.New(pubsubClient)
	}

	orchestrator := query.New(
		lexicalAdapter, vectorAdapter, embedder, rerankSvc, generatorSvc,
		feedbackStore, bus, queryCache, embCache, metrics,
		query.Config{
			DefaultTopK:     cfg.DefaultTopK,
			MaxTopK:         cfg.MaxTopK,
			RRFK:            cfg.RRFK,
			AskCandidatePool: 100,
		},
	)

	askRateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		MaxRequests: cfg.RateLimitMax,
		Window:      time.Duration(cfg.RateLimitWindowSec) * time.Second,
	})
	defer askRateLimiter.Stop()

	var redisPinger handler.Pinger
	if redisClient != nil {
		redisPinger = redisPingerFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	r := router.New(&router.Dependencies{
		Orchestrator: orchestrator,
		HealthDeps: handler.HealthDeps{
			DB:      pool,
			Redis:   redisPinger,
			Lexical: lexicalAdapter,
			Dense:   vectorAdapter,
			Service: "ragbox-query-core",
			Version: Version,
		},
		FrontendURL:    envOrDefault("FRONTEND_URL", ""),
		DefaultTopK:    cfg.DefaultTopK,
		Metrics:        metrics,
		MetricsReg:     reg,
		AskRateLimiter: askRateLimiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.GatewayPort),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("ragbox query-time core starting", "version", Version, "port", cfg.GatewayPort, "generator", cfg.Generator)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal, shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// redisPingerFunc adapts a plain function to handler.Pinger.
type redisPingerFunc func(ctx context.Context) error

func (f redisPingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
