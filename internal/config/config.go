package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every environment-driven setting in spec.md §6.5: database
// and vector-store locations, per-role LLM endpoint pools, similarity
// weights and threshold, type-specific fuzzy thresholds, and the worker
// tuning knobs of §5.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8090"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"ARGUS_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"ARGUS_DB_MAX_CONNS" default:"8"`

	VectorStoreEndpoint  string `envconfig:"VECTOR_STORE_ENDPOINT" default:"http://127.0.0.1:8844/embed"`
	EmbeddingModelName   string `envconfig:"EMBEDDING_MODEL_NAME" default:"bge-large-en-v1.5"`
	VectorDimensions     int    `envconfig:"VECTOR_DIMENSIONS" default:"4096"`
	VectorRequestTimeout int    `envconfig:"VECTOR_REQUEST_TIMEOUT_SECONDS" default:"45"`
	VectorHNSWEfSearch   int    `envconfig:"VECTOR_HNSW_EF_SEARCH" default:"80"`
	VectorTopK           int    `envconfig:"VECTOR_TOP_K" default:"50"`

	DecisionLLMEndpoints string `envconfig:"DECISION_LLM_ENDPOINTS" default:""`
	AnalysisLLMEndpoints string `envconfig:"ANALYSIS_LLM_ENDPOINTS" default:""`
	DecisionLLMModel     string `envconfig:"DECISION_LLM_MODEL" default:"qwen2.5:32b"`
	AnalysisLLMModel     string `envconfig:"ANALYSIS_LLM_MODEL" default:"qwen2.5:32b"`
	LLMRequestTimeout    int    `envconfig:"LLM_REQUEST_TIMEOUT_SECONDS" default:"120"`
	LLMMaxRetries        int    `envconfig:"LLM_MAX_RETRIES" default:"3"`
	LLMReasoningMode     bool   `envconfig:"LLM_REASONING_MODE" default:"false"`

	// Topics is the operator-configured topic list the Decision Worker
	// checks an article's relevance against (§4.H).
	Topics string `envconfig:"TOPICS" default:"politics,conflict,disaster,technology,economy"`

	// Similarity Engine (§4.F) weights and threshold. The three weights
	// feed similarity.Engine. SimilarityThreshold is range-checked by
	// Validate but not read elsewhere (clustering uses its own
	// AssignmentThreshold constant); WeightsVersion is loaded but not read.
	SimilarityThreshold float64 `envconfig:"SIMILARITY_THRESHOLD" default:"0.70"`
	WeightVector        float64 `envconfig:"WEIGHT_VECTOR" default:"0.60"`
	WeightEntity        float64 `envconfig:"WEIGHT_ENTITY" default:"0.30"`
	WeightTemporal      float64 `envconfig:"WEIGHT_TEMPORAL" default:"0.10"`
	WeightsVersion      int     `envconfig:"WEIGHTS_VERSION" default:"1"`

	// Type-specific fuzzy thresholds (§4.C).
	FuzzyPersonJaroWinkler float64 `envconfig:"FUZZY_PERSON_JW" default:"0.90"`
	FuzzyPersonLevenshtein int     `envconfig:"FUZZY_PERSON_LEV" default:"2"`
	FuzzyOrgJaroWinkler    float64 `envconfig:"FUZZY_ORG_JW" default:"0.85"`
	FuzzyOrgLevenshtein    int     `envconfig:"FUZZY_ORG_LEV" default:"3"`
	FuzzyLocationJaroWinkler float64 `envconfig:"FUZZY_LOCATION_JW" default:"0.85"`
	FuzzyLocationLevenshtein int     `envconfig:"FUZZY_LOCATION_LEV" default:"3"`
	FuzzyProductJaroWinkler  float64 `envconfig:"FUZZY_PRODUCT_JW" default:"0.80"`
	FuzzyProductLevenshtein  int     `envconfig:"FUZZY_PRODUCT_LEV" default:"3"`

	// Alias Repository (§4.D) cache tuning.
	AliasCacheTTLMinutes int `envconfig:"ALIAS_CACHE_TTL_MINUTES" default:"10"`
	AliasCacheMaxEntries int `envconfig:"ALIAS_CACHE_MAX_ENTRIES" default:"10000"`

	// Queue / worker tuning (§5).
	QueueLeaseMinutes           int `envconfig:"QUEUE_LEASE_MINUTES" default:"10"`
	AnalysisIdleThresholdSeconds  int `envconfig:"ANALYSIS_IDLE_THRESHOLD_SECONDS" default:"60"`
	AnalysisFallbackMinutes       int `envconfig:"ANALYSIS_FALLBACK_MINUTES" default:"5"`
	QueueMaxAttempts              int `envconfig:"QUEUE_MAX_ATTEMPTS" default:"5"`
	DecisionArticleMaxAgeHours    int `envconfig:"DECISION_ARTICLE_MAX_AGE_HOURS" default:"168"`

	// Clustering Engine (§4.G) tuning. The merge thresholds and importance
	// weights feed clustering.Engine. ClusterAssignThreshold and
	// ClusterPrimaryEntityCap are not read (the engine uses its
	// AssignmentThreshold and primaryEntityCap constants), and neither is
	// ClusterAllowSecondaryMembership: assignment records one cluster per
	// article.
	ClusterAssignThreshold           float64 `envconfig:"CLUSTER_ASSIGN_THRESHOLD" default:"0.70"`
	ClusterMergeEntityJaccard        float64 `envconfig:"CLUSTER_MERGE_ENTITY_JACCARD" default:"0.60"`
	ClusterMergeSummaryCosine        float64 `envconfig:"CLUSTER_MERGE_SUMMARY_COSINE" default:"0.70"`
	ClusterImportanceWeightCount     float64 `envconfig:"CLUSTER_IMPORTANCE_W1" default:"0.5"`
	ClusterImportanceWeightQuality   float64 `envconfig:"CLUSTER_IMPORTANCE_W2" default:"0.3"`
	ClusterImportanceWeightRecency   float64 `envconfig:"CLUSTER_IMPORTANCE_W3" default:"0.2"`
	ClusterPrimaryEntityCap          int     `envconfig:"CLUSTER_PRIMARY_ENTITY_CAP" default:"16"`
	ClusterAllowSecondaryMembership  bool    `envconfig:"CLUSTER_ALLOW_SECONDARY_MEMBERSHIP" default:"false"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("ARGUS_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("ARGUS_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("ARGUS_DB_MIN_CONNS (%d) cannot exceed ARGUS_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.VectorDimensions < 1 {
		return fmt.Errorf("VECTOR_DIMENSIONS must be >= 1")
	}
	if w := c.WeightVector + c.WeightEntity + c.WeightTemporal; w < 0.99 || w > 1.01 {
		return fmt.Errorf("WEIGHT_VECTOR + WEIGHT_ENTITY + WEIGHT_TEMPORAL must sum to 1.0, got %.4f", w)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in (0,1]")
	}
	if c.QueueLeaseMinutes < 1 {
		return fmt.Errorf("QUEUE_LEASE_MINUTES must be >= 1")
	}
	if c.QueueMaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be >= 1")
	}
	if c.LLMMaxRetries < 1 {
		return fmt.Errorf("LLM_MAX_RETRIES must be >= 1")
	}
	return nil
}

// DecisionLLMEndpointList and AnalysisLLMEndpointList split the
// comma-separated per-role endpoint pools of §6.5.
func (c *Config) DecisionLLMEndpointList() []string {
	return splitCSV(c.DecisionLLMEndpoints)
}

func (c *Config) AnalysisLLMEndpointList() []string {
	return splitCSV(c.AnalysisLLMEndpoints)
}

// TopicList splits the configured topic set the Decision Worker checks
// articles against (§4.H).
func (c *Config) TopicList() []string {
	return splitCSV(c.Topics)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
