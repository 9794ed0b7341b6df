package entity

import (
	"strings"
	"testing"
)

func TestIsValidEntityName(t *testing.T) {
	t.Parallel()

	if !isValidEntityName("Jane Doe") {
		t.Error("expected a normal name to be valid")
	}
	if isValidEntityName("   ") {
		t.Error("expected a blank name to be invalid")
	}
	if isValidEntityName(strings.Repeat("a", 101)) {
		t.Error("expected a name over 100 chars to be invalid")
	}
	if !isValidEntityName(strings.Repeat("a", 100)) {
		t.Error("expected a name at exactly 100 chars to be valid")
	}
}
