package config

import "testing"

func validConfig() Config {
	return Config{
		DatabaseURL:          "postgres://localhost/argus",
		DBMinConns:           1,
		DBMaxConns:           8,
		VectorDimensions:     4096,
		WeightVector:         0.60,
		WeightEntity:         0.30,
		WeightTemporal:       0.10,
		SimilarityThreshold:  0.70,
		QueueLeaseMinutes:    10,
		QueueMaxAttempts:     5,
		LLMMaxRetries:        3,
	}
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected a valid config, got error: %v", err)
	}
}

func TestValidate_RequiresDatabaseURL(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.DatabaseURL = "  "
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a blank DATABASE_URL")
	}
}

func TestValidate_RejectsMinConnsExceedingMaxConns(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.DBMinConns = 10
	cfg.DBMaxConns = 2
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when min conns exceeds max conns")
	}
}

func TestValidate_RejectsWeightsNotSummingToOne(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.WeightVector = 0.5
	cfg.WeightEntity = 0.5
	cfg.WeightTemporal = 0.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when similarity weights don't sum to 1.0")
	}
}

func TestValidate_AllowsWeightsWithinRoundingTolerance(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.WeightVector = 0.601
	cfg.WeightEntity = 0.30
	cfg.WeightTemporal = 0.10
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected rounding tolerance to accept a near-1.0 sum, got: %v", err)
	}
}

func TestValidate_RejectsSimilarityThresholdOutOfRange(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.SimilarityThreshold = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a zero similarity threshold")
	}

	cfg.SimilarityThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a similarity threshold above 1")
	}
}

func TestValidate_RejectsZeroMaxRetries(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.LLMMaxRetries = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for LLM_MAX_RETRIES < 1")
	}
}

func TestSplitCSV_TrimsDedupesAndDropsBlanks(t *testing.T) {
	t.Parallel()

	got := splitCSV("politics, conflict ,,politics, disaster")
	want := []string{"politics", "conflict", "disaster"}
	if len(got) != len(want) {
		t.Fatalf("unexpected result: %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected result: %+v", got)
		}
	}
}

func TestSplitCSV_EmptyStringYieldsEmptySlice(t *testing.T) {
	t.Parallel()

	got := splitCSV("")
	if len(got) != 0 {
		t.Fatalf("expected an empty slice, got %+v", got)
	}
}

func TestTopicList_UsesConfiguredTopics(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Topics = "technology,economy"
	got := cfg.TopicList()
	if len(got) != 2 || got[0] != "technology" || got[1] != "economy" {
		t.Fatalf("unexpected topics: %+v", got)
	}
}

func TestDecisionLLMEndpointList_SplitsConfiguredEndpoints(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.DecisionLLMEndpoints = "http://a:8000/v1,http://b:8000/v1"
	got := cfg.DecisionLLMEndpointList()
	if len(got) != 2 {
		t.Fatalf("unexpected endpoints: %+v", got)
	}
}
