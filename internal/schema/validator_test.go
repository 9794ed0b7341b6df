package schema

import (
	"encoding/json"
	"testing"
)

func TestValidateEntityExtraction_ValidPayload(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"entities": [
			{"name": "Jane Doe", "entity_type": "PERSON", "importance": "PRIMARY", "roles": ["spokesperson"]},
			{"name": "Acme Corp", "entity_type": "ORGANIZATION"}
		],
		"event_date": "2025-03-14"
	}`)

	out, err := ValidateEntityExtraction(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(out.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(out.Entities))
	}
	if out.Entities[0].Importance != "PRIMARY" {
		t.Fatalf("unexpected importance: %q", out.Entities[0].Importance)
	}
	if out.Entities[1].Importance != "MENTIONED" {
		t.Fatalf("expected missing importance to default to MENTIONED, got %q", out.Entities[1].Importance)
	}
	if out.EventDate == nil || *out.EventDate != "2025-03-14" {
		t.Fatalf("unexpected event date: %+v", out.EventDate)
	}
}

func TestValidateEntityExtraction_TypeFieldAlias(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"entities": [{"name": "Jane Doe", "type": "PERSON"}]}`)

	out, err := ValidateEntityExtraction(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(out.Entities) != 1 || out.Entities[0].EntityType != "PERSON" {
		t.Fatalf("expected type aliased to entity_type, got %+v", out.Entities)
	}
}

func TestValidateEntityExtraction_DropsEmptyNameAndUnrecognizedType(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"entities": [
		{"name": "", "entity_type": "PERSON"},
		{"name": "   ", "entity_type": "PERSON"},
		{"name": "Mystery", "entity_type": "ALIEN"},
		{"name": "Jane Doe", "entity_type": "PERSON"}
	]}`)

	out, err := ValidateEntityExtraction(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(out.Entities) != 1 || out.Entities[0].Name != "Jane Doe" {
		t.Fatalf("expected only the valid entity to survive, got %+v", out.Entities)
	}
}

func TestValidateEntityExtraction_EmptyEventDateOmitted(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"entities": [], "event_date": "   "}`)

	out, err := ValidateEntityExtraction(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if out.EventDate != nil {
		t.Fatalf("expected blank event_date to be omitted, got %+v", out.EventDate)
	}
}

func TestValidateEntityExtraction_RejectsMalformedEventDate(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"entities": [], "event_date": "not-a-date"}`)

	if _, err := ValidateEntityExtraction(raw); err == nil {
		t.Fatal("expected schema validation to reject a malformed event_date")
	}
}

func TestValidateEntityExtraction_RejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := ValidateEntityExtraction(json.RawMessage(`{not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestValidateEntityExtraction_RejectsTrailingContent(t *testing.T) {
	t.Parallel()

	if _, err := ValidateEntityExtraction(json.RawMessage(`{"entities": []}garbage`)); err == nil {
		t.Fatal("expected error for trailing content after JSON payload")
	}
}

func TestValidateEntityExtraction_RejectsEmptyPayload(t *testing.T) {
	t.Parallel()

	if _, err := ValidateEntityExtraction(json.RawMessage(``)); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestValidateThreatLocation_ValidPayload(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"impacted_regions": [{"continent": "Europe", "country": "France"}]}`)

	out, err := ValidateThreatLocation(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(out.ImpactedRegions) != 1 || out.ImpactedRegions[0].Continent != "Europe" {
		t.Fatalf("unexpected payload: %+v", out)
	}
	if out.ImpactedRegions[0].Country == nil || *out.ImpactedRegions[0].Country != "France" {
		t.Fatalf("unexpected country: %+v", out.ImpactedRegions[0].Country)
	}
}

func TestValidateThreatLocation_RequiresImpactedRegions(t *testing.T) {
	t.Parallel()

	if _, err := ValidateThreatLocation(json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for missing impacted_regions")
	}
}

func TestValidateThreatLocation_RequiresContinent(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"impacted_regions": [{"country": "France"}]}`)
	if _, err := ValidateThreatLocation(raw); err == nil {
		t.Fatal("expected error for region missing continent")
	}
}

func TestValidateGeneric_AcceptsAnyObject(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"anything": [1, 2, 3], "nested": {"ok": true}}`)

	out, err := ValidateGeneric(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	var roundTrip map[string]any
	if err := json.Unmarshal(out, &roundTrip); err != nil {
		t.Fatalf("expected payload to round-trip as JSON, got error: %v", err)
	}
}

func TestValidateGeneric_RejectsNonObject(t *testing.T) {
	t.Parallel()

	if _, err := ValidateGeneric(json.RawMessage(`[1, 2, 3]`)); err == nil {
		t.Fatal("expected error for a non-object top-level payload")
	}
}

func TestValidateRaw_UnknownSchemaID(t *testing.T) {
	t.Parallel()

	if _, err := ValidateRaw(ID("Bogus"), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for an unknown schema id")
	}
}
