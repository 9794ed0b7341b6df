package db

import (
	"encoding/json"
	"time"
)

// Article maps articles (spec §3). Lifecycle: NEW -> {QUEUED_TOPIC,
// QUEUED_SAFETY, REJECTED} -> ANALYZED.
type Article struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement"`
	URL          string     `gorm:"column:url;type:text;not null"`
	URLHash      []byte     `gorm:"column:url_hash;type:bytea;not null;unique"`
	PubDate      *time.Time `gorm:"column:pub_date;type:timestamptz"`
	EventDate    *string    `gorm:"column:event_date;type:text"`
	Title        string     `gorm:"column:title;type:text;not null"`
	Body         string     `gorm:"column:body;type:text;not null"`
	Analysis     *string    `gorm:"column:analysis;type:text"`
	Summary      *string    `gorm:"column:summary;type:text"`
	TinySummary  *string    `gorm:"column:tiny_summary;type:text"`
	TinyTitle    *string    `gorm:"column:tiny_title;type:text"`
	QualityScores json.RawMessage `gorm:"column:quality_scores;type:jsonb"`
	Quality      *float64   `gorm:"column:quality;type:double precision"`
	Status       string     `gorm:"column:status;type:text;not null;default:NEW"`
	ClusterID    *int64     `gorm:"column:cluster_id;type:bigint"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "articles" }

// Article status values (spec §3, §7).
const (
	ArticleStatusNew          = "NEW"
	ArticleStatusQueuedTopic  = "QUEUED_TOPIC"
	ArticleStatusQueuedSafety = "QUEUED_SAFETY"
	ArticleStatusRejected     = "REJECTED"
	ArticleStatusAnalyzed     = "ANALYZED"
)

// Rejection/failure reasons recorded on the article (spec §7).
const (
	RejectReasonPromotional  = "REJECTED(promotional)"
	RejectReasonNonRelevant  = "REJECTED(non-relevant)"
	RejectReasonAge          = "REJECTED(age)"
	FailureAccessError       = "ACCESS_ERROR"
)

// QueueItem maps queue_items (spec §3). Claimable iff claim_token IS NULL
// OR claim_expires_at < now.
type QueueItem struct {
	ID              int64      `gorm:"column:id;primaryKey;autoIncrement"`
	QueueKind       string     `gorm:"column:queue_kind;type:text;not null"`
	ArticleID       int64      `gorm:"column:article_id;type:bigint;not null"`
	EnqueuedAt      time.Time  `gorm:"column:enqueued_at;type:timestamptz;not null;default:now()"`
	ClaimToken      *string    `gorm:"column:claim_token;type:uuid"`
	ClaimExpiresAt  *time.Time `gorm:"column:claim_expires_at;type:timestamptz"`
	Attempts        int        `gorm:"column:attempts;type:integer;not null;default:0"`
	Status          string     `gorm:"column:status;type:text;not null;default:PENDING"`
}

func (QueueItem) TableName() string { return "queue_items" }

// Queue kinds (spec §3).
const (
	QueueKindRSS    = "RSS"
	QueueKindTopic  = "TOPIC"
	QueueKindSafety = "SAFETY"
)

// Queue item status values (spec §5/§7).
const (
	QueueItemStatusPending     = "PENDING"
	QueueItemStatusDeadLettered = "DEAD_LETTERED"
	QueueItemStatusDone        = "DONE"
)

// Entity maps entities (spec §3). (type, normalized_form) is unique.
type Entity struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CanonicalName  string    `gorm:"column:canonical_name;type:text;not null"`
	NormalizedForm string    `gorm:"column:normalized_form;type:text;not null"`
	Type           string    `gorm:"column:type;type:text;not null"`
	FirstSeen      time.Time `gorm:"column:first_seen;type:timestamptz;not null;default:now()"`
	ParentID       *int64    `gorm:"column:parent_id;type:bigint"`
}

func (Entity) TableName() string { return "entities" }

// Entity types (spec §3).
const (
	EntityTypePerson       = "PERSON"
	EntityTypeOrganization = "ORGANIZATION"
	EntityTypeLocation     = "LOCATION"
	EntityTypeEvent        = "EVENT"
	EntityTypeProduct      = "PRODUCT"
)

// ArticleEntity maps article_entities (spec §3), many-to-many.
type ArticleEntity struct {
	ArticleID  int64  `gorm:"column:article_id;type:bigint;primaryKey"`
	EntityID   int64  `gorm:"column:entity_id;type:bigint;primaryKey"`
	Importance string `gorm:"column:importance;type:text;not null"`
}

func (ArticleEntity) TableName() string { return "article_entities" }

// Importance levels (spec §3, §4.F).
const (
	ImportancePrimary   = "PRIMARY"
	ImportanceSecondary = "SECONDARY"
	ImportanceMentioned = "MENTIONED"
)

// Alias maps entity_aliases (spec §3/§6.1).
// (normalize(canonical), normalize(alias), type) is unique.
type Alias struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	CanonicalName string     `gorm:"column:canonical;type:text;not null"`
	AliasName     string     `gorm:"column:alias;type:text;not null"`
	EntityType    string     `gorm:"column:type;type:text;not null"`
	Source        string     `gorm:"column:source;type:text;not null"`
	Confidence    float64    `gorm:"column:confidence;type:double precision;not null"`
	Status        string     `gorm:"column:status;type:text;not null;default:PENDING"`
	PatternID     *string    `gorm:"column:pattern_id;type:text"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	ApprovedAt    *time.Time `gorm:"column:approved_at;type:timestamptz"`
	ApprovedBy    *string    `gorm:"column:approved_by;type:text"`
}

func (Alias) TableName() string { return "entity_aliases" }

// Alias sources (spec §3).
const (
	AliasSourceStatic  = "STATIC"
	AliasSourcePattern = "PATTERN"
	AliasSourceLLM     = "LLM"
	AliasSourceUser    = "USER"
	AliasSourceFix     = "FIX"
)

// Alias statuses (spec §3).
const (
	AliasStatusPending  = "PENDING"
	AliasStatusApproved = "APPROVED"
	AliasStatusRejected = "REJECTED"
)

// NegativeMatch maps entity_negative_matches (spec §3). Names are stored
// in alphabetical order to deduplicate.
type NegativeMatch struct {
	NameA     string    `gorm:"column:name_a;type:text;primaryKey"`
	NameB     string    `gorm:"column:name_b;type:text;primaryKey"`
	Type      string    `gorm:"column:type;type:text;primaryKey"`
	Reason    string    `gorm:"column:reason;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (NegativeMatch) TableName() string { return "entity_negative_matches" }

// PatternStat maps alias_pattern_stats (spec §3).
type PatternStat struct {
	PatternID string `gorm:"column:pattern_id;type:text;primaryKey"`
	Approved  int    `gorm:"column:approved;type:integer;not null;default:0"`
	Rejected  int    `gorm:"column:rejected;type:integer;not null;default:0"`
	Enabled   bool   `gorm:"column:enabled;type:boolean;not null;default:true"`
}

func (PatternStat) TableName() string { return "alias_pattern_stats" }

// ArticleEmbedding stores B's vector payload in the Persistent Store's
// own Postgres instance via the pgvector extension — see DESIGN.md for
// why Argus's Vector Store Adapter (§4.B/§6.2) is implemented against
// this table rather than a separate service.
type ArticleEmbedding struct {
	ArticleID  int64     `gorm:"column:article_id;type:bigint;primaryKey"`
	Embedding  string    `gorm:"column:embedding;type:vector(4096);not null"`
	EntityIDs  string    `gorm:"column:entity_ids;type:jsonb;not null;default:'[]'"`
	PubDate    *time.Time `gorm:"column:pub_date;type:timestamptz"`
	EventDate  *string   `gorm:"column:event_date;type:text"`
	ModelName  string    `gorm:"column:model_name;type:text;not null"`
	EmbeddedAt time.Time `gorm:"column:embedded_at;type:timestamptz;not null;default:now()"`
}

func (ArticleEmbedding) TableName() string { return "article_embeddings" }

// Cluster maps article_clusters (spec §3/§6.1).
type Cluster struct {
	ID                 int64      `gorm:"column:id;primaryKey;autoIncrement"`
	CreationDate       time.Time  `gorm:"column:creation_date;type:timestamptz;not null;default:now()"`
	LastUpdated        time.Time  `gorm:"column:last_updated;type:timestamptz;not null;default:now()"`
	PrimaryEntityIDs   json.RawMessage `gorm:"column:primary_entity_ids;type:jsonb;not null;default:'[]'"`
	Summary            *string    `gorm:"column:summary;type:text"`
	SummaryVersion     int        `gorm:"column:summary_version;type:integer;not null;default:0"`
	ArticleCount       int        `gorm:"column:article_count;type:integer;not null;default:0"`
	ImportanceScore    float64    `gorm:"column:importance_score;type:double precision;not null;default:0"`
	TimelineEvents     json.RawMessage `gorm:"column:timeline_events;type:jsonb"`
	HasTimeline        bool       `gorm:"column:has_timeline;type:boolean;not null;default:false"`
	NeedsSummaryUpdate bool       `gorm:"column:needs_summary_update;type:boolean;not null;default:true"`
	Status             string     `gorm:"column:status;type:text;not null;default:active"`
}

func (Cluster) TableName() string { return "article_clusters" }

// Cluster statuses (spec §3).
const (
	ClusterStatusActive = "active"
	ClusterStatusMerged = "merged"
)

// ClusterMapping maps article_cluster_mappings (spec §3/§6.1).
type ClusterMapping struct {
	ArticleID       int64     `gorm:"column:article_id;type:bigint;primaryKey"`
	ClusterID       int64     `gorm:"column:cluster_id;type:bigint;primaryKey"`
	AddedDate       time.Time `gorm:"column:added_date;type:timestamptz;not null;default:now()"`
	SimilarityScore float64   `gorm:"column:similarity_score;type:double precision;not null"`
}

func (ClusterMapping) TableName() string { return "article_cluster_mappings" }

// ClusterMergeHistory maps cluster_merge_history (spec §3/§6.1).
type ClusterMergeHistory struct {
	OriginalClusterID   int64     `gorm:"column:original_cluster_id;type:bigint;primaryKey"`
	MergedIntoClusterID int64     `gorm:"column:merged_into_cluster_id;type:bigint;not null"`
	MergeDate           time.Time `gorm:"column:merge_date;type:timestamptz;not null;default:now()"`
	MergeReason         string    `gorm:"column:merge_reason;type:text;not null"`
}

func (ClusterMergeHistory) TableName() string { return "cluster_merge_history" }

// UserClusterPreference maps user_cluster_preferences (spec §6.1). Out of
// SPEC_FULL's worker/engine scope (no delivery component consumes it) but
// the schema is part of the contracted Persistent Store, so the table is
// migrated for downstream collaborators even though Argus itself never
// writes to it.
type UserClusterPreference struct {
	UserID            string    `gorm:"column:user_id;type:text;primaryKey"`
	ClusterID         int64     `gorm:"column:cluster_id;type:bigint;primaryKey"`
	Silenced          bool      `gorm:"column:silenced;type:boolean;not null;default:false"`
	Followed          bool      `gorm:"column:followed;type:boolean;not null;default:false"`
	LastSeenVersion   int       `gorm:"column:last_seen_version;type:integer;not null;default:0"`
	LastInteraction   time.Time `gorm:"column:last_interaction;type:timestamptz;not null;default:now()"`
}

func (UserClusterPreference) TableName() string { return "user_cluster_preferences" }

func autoMigrateModels() []any {
	return []any{
		&Article{},
		&QueueItem{},
		&Entity{},
		&ArticleEntity{},
		&Alias{},
		&NegativeMatch{},
		&PatternStat{},
		&ArticleEmbedding{},
		&Cluster{},
		&ClusterMapping{},
		&ClusterMergeHistory{},
		&UserClusterPreference{},
	}
}
