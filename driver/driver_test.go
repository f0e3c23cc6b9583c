package driver_test

import (
	"testing"

	"github.com/xraph/strata/driver"
)

func TestFamily_String(t *testing.T) {
	if got := driver.FamilyDocument.String(); got != "document" {
		t.Errorf("FamilyDocument = %q, want document", got)
	}
	if got := driver.FamilyRelational.String(); got != "relational" {
		t.Errorf("FamilyRelational = %q, want relational", got)
	}

	var doc driver.Document = map[string]any{"id": "a1"}
	if doc["id"] != "a1" {
		t.Errorf("Document field = %v", doc["id"])
	}
}
