package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"horse.fit/argus/internal/db"
	"horse.fit/argus/internal/errkind"
	"horse.fit/argus/internal/globaltime"
	"horse.fit/argus/internal/schema"
)

// ExtractedEntity mirrors schema.ExtractedEntity after normalization and
// upsert: it carries the stable entity_id the rest of the pipeline uses.
type ExtractedEntity struct {
	EntityID   int64
	Name       string
	Type       string
	Importance string
	Roles      []string
}

// ExtractionResult is the Entity Extractor's output (§4.E).
type ExtractionResult struct {
	Entities  []ExtractedEntity
	EventDate *string
}

// JSONGenerator is the subset of the LLM Client (§4.J) the Extractor
// needs: a schema-constrained JSON request.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, prompt string, schemaID schema.ID) (json.RawMessage, error)
}

// Extractor wraps an LLM in the §6.3 EntityExtraction JSON schema, yields
// typed importance-ranked entities, and upserts them against Entity on
// (type, normalized_form). Grounded on process_entity_extraction/
// parse_entity_json/store_entities in original_source/src/entity/repository.rs.
type Extractor struct {
	pool       *db.Pool
	llm        JSONGenerator
	normalizer *Normalizer
}

func NewExtractor(pool *db.Pool, llm JSONGenerator, normalizer *Normalizer) *Extractor {
	return &Extractor{pool: pool, llm: llm, normalizer: normalizer}
}

// Extract runs the LLM request, validates the response against the
// EntityExtraction schema, drops entities failing the §4.D validity gate,
// normalizes the survivors (§4.C), and upserts + links them to articleID
// in a single transaction.
func (x *Extractor) Extract(ctx context.Context, articleID int64, prompt string) (ExtractionResult, error) {
	raw, err := x.llm.GenerateJSON(ctx, prompt, schema.EntityExtraction)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("entity extraction request for article %d: %w", articleID, err)
	}

	payload, err := schema.ValidateEntityExtraction(raw)
	if err != nil {
		// Classified VALIDATION, which the Analysis Worker degrades to an
		// empty result (spec §7); the raw payload is not logged.
		return ExtractionResult{}, errkind.Wrap(errkind.Validation, fmt.Errorf("entity extraction validation for article %d: %w", articleID, err))
	}

	tx, err := x.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("begin entity extraction tx for article %d: %w", articleID, err)
	}

	now := globaltime.UTC()
	result := ExtractionResult{EventDate: payload.EventDate}

	for _, e := range payload.Entities {
		if !isValidEntityName(e.Name) {
			continue
		}
		normalized := x.normalizer.Normalize(e.Name, e.EntityType)

		entityID, err := x.pool.UpsertEntity(ctx, tx, e.Name, normalized, e.EntityType, now)
		if err != nil {
			_ = tx.Rollback(ctx)
			return ExtractionResult{}, fmt.Errorf("upsert entity %q: %w", e.Name, err)
		}
		if err := x.pool.LinkArticleEntity(ctx, tx, articleID, entityID, e.Importance); err != nil {
			_ = tx.Rollback(ctx)
			return ExtractionResult{}, fmt.Errorf("link entity %q to article %d: %w", e.Name, articleID, err)
		}

		result.Entities = append(result.Entities, ExtractedEntity{
			EntityID:   entityID,
			Name:       e.Name,
			Type:       e.EntityType,
			Importance: e.Importance,
			Roles:      e.Roles,
		})
	}

	if payload.EventDate != nil {
		if err := x.pool.UpdateArticleEventDate(ctx, tx, articleID, *payload.EventDate); err != nil {
			_ = tx.Rollback(ctx)
			return ExtractionResult{}, fmt.Errorf("record event date for article %d: %w", articleID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ExtractionResult{}, fmt.Errorf("commit entity extraction for article %d: %w", articleID, err)
	}
	return result, nil
}

// isValidEntityName implements the validity gate referenced by §4.E
// ("entities with names failing the validity gate of §4.D are dropped"):
// a name must be non-empty once trimmed and not exceed the candidate
// length bound §4.D uses elsewhere (100 chars).
func isValidEntityName(name string) bool {
	trimmed := strings.TrimSpace(name)
	return trimmed != "" && len(trimmed) <= 100
}
