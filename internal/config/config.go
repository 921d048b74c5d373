package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns.
type Config struct {
	GatewayPort int
	Environment string

	OpenSearchURL string
	QdrantURL     string

	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string

	// Blob store config, recognized but unused by the query-time core
	// (documents/<doc_id>.json is written by ingestion, never read here).
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string

	// Event-bus broker name, recognized for parity with spec's config
	// surface; the core itself publishes via Pub/Sub (see GCPProject
	// below), not Kafka directly.
	KafkaBroker string

	EmbedModel    string
	EmbedDim      int
	RerankerModel string

	// Generator selects the C5 synthesizer backend: "stub", "hf", "api", or
	// "vertex".
	Generator string
	HFToken   string

	DefaultTopK int
	MaxTopK     int
	RRFK        int
	RerankTopK  int
	FinalTopK   int

	OTelExporterOTLPEndpoint string
	OTelServiceName          string

	// Ambient additions beyond the core retrieval config, recognized for
	// config-surface parity: they wire the Redis-backed caches and
	// rate-limit state, plus the Postgres feedback store and Pub/Sub event
	// bus.
	RedisURL           string
	GCPProject         string
	CoverageThreshold  float64
	EvidenceK          int
	RerankWorkers      int
	RateLimitMax       int
	RateLimitWindowSec int
	QueryCacheTTLSec   int
}

// Load reads configuration from environment variables. Optional variables
// use sensible defaults; OpenSearch/Qdrant/Postgres endpoints are required
// since the core cannot serve any route without them.
func Load() (*Config, error) {
	openSearchURL := envStr("OPENSEARCH_URL", "")
	if openSearchURL == "" {
		return nil, fmt.Errorf("config.Load: OPENSEARCH_URL is required")
	}
	qdrantURL := envStr("QDRANT_URL", "")
	if qdrantURL == "" {
		return nil, fmt.Errorf("config.Load: QDRANT_URL is required")
	}
	postgresHost := envStr("POSTGRES_HOST", "")
	if postgresHost == "" {
		return nil, fmt.Errorf("config.Load: POSTGRES_HOST is required")
	}

	cfg := &Config{
		GatewayPort: envInt("GATEWAY_PORT", 8080),
		Environment: envStr("ENV", "development"),

		OpenSearchURL: openSearchURL,
		QdrantURL:     qdrantURL,

		PostgresHost:     postgresHost,
		PostgresPort:     envInt("POSTGRES_PORT", 5432),
		PostgresDB:       envStr("POSTGRES_DB", "ragbox"),
		PostgresUser:     envStr("POSTGRES_USER", "ragbox"),
		PostgresPassword: envStr("POSTGRES_PASSWORD", ""),

		MinioEndpoint:  envStr("MINIO_ENDPOINT", ""),
		MinioAccessKey: envStr("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: envStr("MINIO_SECRET_KEY", ""),
		MinioBucket:    envStr("MINIO_BUCKET", ""),

		KafkaBroker: envStr("KAFKA_BROKER", ""),

		EmbedModel:    envStr("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:      envInt("EMBED_DIM", 768),
		RerankerModel: envStr("RERANKER_MODEL", "heuristic"),

		Generator: envStr("GENERATOR", "stub"),
		HFToken:   envStr("HF_TOKEN", ""),

		DefaultTopK: envInt("DEFAULT_TOP_K", 8),
		MaxTopK:     envInt("MAX_TOP_K", 100),
		RRFK:        envInt("RRF_K", 60),
		RerankTopK:  envInt("RERANK_TOP_K", 50),
		FinalTopK:   envInt("FINAL_TOP_K", 8),

		OTelExporterOTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelServiceName:          envStr("OTEL_SERVICE_NAME", "ragbox-query-core"),

		RedisURL:           envStr("REDIS_URL", ""),
		GCPProject:         envStr("GOOGLE_CLOUD_PROJECT", ""),
		CoverageThreshold:  envFloat("COVERAGE_THRESHOLD", 0.3),
		EvidenceK:          envInt("EVIDENCE_K", 5),
		RerankWorkers:      envInt("RERANK_WORKERS", 4),
		RateLimitMax:       envInt("ASK_RATE_LIMIT_MAX", 10),
		RateLimitWindowSec: envInt("ASK_RATE_LIMIT_WINDOW_SECONDS", 60),
		QueryCacheTTLSec:   envInt("QUERY_CACHE_TTL_SECONDS", 60),
	}

	switch cfg.Generator {
	case "stub", "hf", "api", "vertex":
	default:
		return nil, fmt.Errorf("config.Load: GENERATOR must be one of stub, hf, api, vertex; got %q", cfg.Generator)
	}
	if cfg.Generator == "hf" && cfg.HFToken == "" {
		return nil, fmt.Errorf("config.Load: HF_TOKEN is required when GENERATOR=hf")
	}
	if cfg.Generator == "vertex" && cfg.GCPProject == "" {
		return nil, fmt.Errorf("config.Load: GOOGLE_CLOUD_PROJECT is required when GENERATOR=vertex")
	}

	return cfg, nil
}

// DatabaseURL builds the Postgres connection string pgxpool expects from
// the discrete POSTGRES_* keys.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
