// Package schema validates LLM structured output against the JSON Schemas
// of the Entity Extractor's generate_json request shapes (§6.3). Mirrors
// the compiled-singleton, strict-decode pattern of
// janitrai-scoop/news-pipeline/schema/validator.go.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ID names one of the three LLM request shapes generate_json accepts.
type ID string

const (
	EntityExtraction ID = "EntityExtraction"
	ThreatLocation   ID = "ThreatLocation"
	Generic          ID = "Generic"
)

//go:embed schemas/entity_extraction.schema.json
var entityExtractionSchemaJSON string

//go:embed schemas/threat_location.schema.json
var threatLocationSchemaJSON string

//go:embed schemas/generic.schema.json
var genericSchemaJSON string

// ExtractedEntity is one element of EntityExtraction.entities before
// normalization (§4.C) and alias resolution (§4.D) run.
type ExtractedEntity struct {
	Name       string   `json:"name"`
	EntityType string   `json:"entity_type"`
	Importance string   `json:"importance"`
	Roles      []string `json:"roles,omitempty"`
}

// EntityExtractionPayload is the decoded, aliased, and defaulted shape of
// an EntityExtraction response (§6.3).
type EntityExtractionPayload struct {
	Entities  []ExtractedEntity `json:"entities"`
	EventDate *string           `json:"event_date,omitempty"`
}

// ImpactedRegion is one element of ThreatLocation.impacted_regions.
type ImpactedRegion struct {
	Continent string  `json:"continent"`
	Country   *string `json:"country,omitempty"`
	City      *string `json:"city,omitempty"`
}

// ThreatLocationPayload is the decoded shape of a ThreatLocation response.
type ThreatLocationPayload struct {
	ImpactedRegions []ImpactedRegion `json:"impacted_regions"`
}

var (
	compileOnce       sync.Once
	compiledSchemas   map[ID]*jsonschema.Schema
	compiledSchemaErr error
)

func loadSchemas() (map[ID]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		sources := map[ID]struct {
			resource string
			raw      string
		}{
			EntityExtraction: {"entity_extraction.schema.json", entityExtractionSchemaJSON},
			ThreatLocation:   {"threat_location.schema.json", threatLocationSchemaJSON},
			Generic:          {"generic.schema.json", genericSchemaJSON},
		}

		schemas := make(map[ID]*jsonschema.Schema, len(sources))
		for id, src := range sources {
			if err := compiler.AddResource(src.resource, strings.NewReader(src.raw)); err != nil {
				compiledSchemaErr = fmt.Errorf("add schema resource %s: %w", src.resource, err)
				return
			}
			s, err := compiler.Compile(src.resource)
			if err != nil {
				compiledSchemaErr = fmt.Errorf("compile schema %s: %w", src.resource, err)
				return
			}
			schemas[id] = s
		}
		compiledSchemas = schemas
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchemas == nil {
		return nil, fmt.Errorf("schemas not initialized")
	}
	return compiledSchemas, nil
}

// ValidateRaw runs a raw LLM response through the named schema's JSON
// Schema, rejecting malformed or trailing-content payloads before any
// semantic decoding happens.
func ValidateRaw(id ID, payload json.RawMessage) (any, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload JSON: %w", id, err)
	}

	schemas, err := loadSchemas()
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	s, ok := schemas[id]
	if !ok {
		return nil, fmt.Errorf("unknown schema id %q", id)
	}

	if err := s.Validate(value); err != nil {
		return nil, fmt.Errorf("%s schema validation failed: %w", id, err)
	}
	return value, nil
}

// ValidateEntityExtraction validates and decodes an EntityExtraction
// response, aliasing the LLM's occasional "type" field to "entity_type"
// (spec §6.3 note) and dropping entities that fail the validity gate: an
// empty name, or an entity_type outside the five recognized values. A
// missing importance defaults to MENTIONED rather than failing the whole
// payload, matching parse_entity_json's permissive field handling in
// original_source/src/entity/repository.rs.
func ValidateEntityExtraction(payload json.RawMessage) (EntityExtractionPayload, error) {
	value, err := ValidateRaw(EntityExtraction, payload)
	if err != nil {
		return EntityExtractionPayload{}, err
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return EntityExtractionPayload{}, fmt.Errorf("entity extraction payload is not a JSON object")
	}

	rawEntities, _ := obj["entities"].([]any)
	out := EntityExtractionPayload{Entities: make([]ExtractedEntity, 0, len(rawEntities))}

	for _, re := range rawEntities {
		m, ok := re.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		entityType, _ := m["entity_type"].(string)
		if entityType == "" {
			entityType, _ = m["type"].(string)
		}
		if !isRecognizedEntityType(entityType) {
			continue
		}

		importance, _ := m["importance"].(string)
		if !isRecognizedImportance(importance) {
			importance = "MENTIONED"
		}

		var roles []string
		if rawRoles, ok := m["roles"].([]any); ok {
			for _, r := range rawRoles {
				if s, ok := r.(string); ok && strings.TrimSpace(s) != "" {
					roles = append(roles, s)
				}
			}
		}

		out.Entities = append(out.Entities, ExtractedEntity{
			Name:       name,
			EntityType: entityType,
			Importance: importance,
			Roles:      roles,
		})
	}

	if eventDate, ok := obj["event_date"].(string); ok {
		trimmed := strings.TrimSpace(eventDate)
		if trimmed != "" {
			out.EventDate = &trimmed
		}
	}

	return out, nil
}

// ValidateThreatLocation validates and decodes a ThreatLocation response.
func ValidateThreatLocation(payload json.RawMessage) (ThreatLocationPayload, error) {
	value, err := ValidateRaw(ThreatLocation, payload)
	if err != nil {
		return ThreatLocationPayload{}, err
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return ThreatLocationPayload{}, fmt.Errorf("normalize threat location payload: %w", err)
	}

	var out ThreatLocationPayload
	if err := json.Unmarshal(normalized, &out); err != nil {
		return ThreatLocationPayload{}, fmt.Errorf("unmarshal threat location payload: %w", err)
	}
	return out, nil
}

// ValidateGeneric validates a Generic response is well-formed JSON and
// returns it untouched (§6.3: Generic is opaque JSON).
func ValidateGeneric(payload json.RawMessage) (json.RawMessage, error) {
	if _, err := ValidateRaw(Generic, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func isRecognizedEntityType(t string) bool {
	switch t {
	case "PERSON", "ORGANIZATION", "LOCATION", "EVENT", "PRODUCT":
		return true
	default:
		return false
	}
}

func isRecognizedImportance(i string) bool {
	switch i {
	case "PRIMARY", "SECONDARY", "MENTIONED":
		return true
	default:
		return false
	}
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}
	return value, nil
}
