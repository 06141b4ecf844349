package postgres

import (
	"strings"
	"testing"
)

func TestLoadSchemaSteps(t *testing.T) {
	steps, err := loadSchemaSteps()
	if err != nil {
		t.Fatalf("loadSchemaSteps failed: %v", err)
	}
	if len(steps) < 2 {
		t.Fatalf("expected at least 2 schema steps, got %d", len(steps))
	}
	if steps[0].version != 1 || steps[0].name != "001_create_identities.sql" {
		t.Errorf("unexpected first step %d %s", steps[0].version, steps[0].name)
	}
	if !strings.Contains(steps[0].sql, "CREATE TABLE IF NOT EXISTS identities") {
		t.Error("first step does not create the identities table")
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].version <= steps[i-1].version {
			t.Errorf("steps out of order: %d after %d", steps[i].version, steps[i-1].version)
		}
	}
}
