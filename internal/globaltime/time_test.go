package globaltime

import (
	"testing"
	"time"
)

func TestSetMockTime_OverridesNow(t *testing.T) {
	defer ResetTime()

	fixed := time.Date(2025, 1, 15, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))
	SetMockTime(fixed)

	if !Now().Equal(fixed) {
		t.Fatalf("expected Now() to return the mocked time, got %v", Now())
	}
	if !UTC().Equal(fixed.UTC()) {
		t.Fatalf("expected UTC() to convert the mocked time, got %v", UTC())
	}
}

func TestResetTime_RestoresRealClock(t *testing.T) {
	SetMockTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	ResetTime()

	if time.Since(Now()) > time.Minute {
		t.Fatal("expected Now() to track the real clock after ResetTime")
	}
}
