package repository

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMapping(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestCrosswalkLookups(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir, "account_crosswalk.json", `{
  "Sales:Consulting": "4010",
  "Office Supplies": "6200"
}`)
	writeMapping(t, dir, "field_mapping.json", `{
  "Customer": {
    "Fax": {"target": "fax"},
    "Notes": {"target": "comment", "transform": "trim"}
  }
}`)

	repo, err := NewCrosswalkRepository(dir)
	if err != nil {
		t.Fatalf("NewCrosswalkRepository() error = %v", err)
	}

	code, ok := repo.AccountCode("Sales:Consulting")
	if !ok || code != "4010" {
		t.Errorf("AccountCode(Sales:Consulting) = %q, %v", code, ok)
	}
	if _, ok := repo.AccountCode("No Such Account"); ok {
		t.Error("AccountCode() matched an unmapped account")
	}

	rules := repo.FieldRules("Customer")
	if len(rules) != 2 {
		t.Fatalf("FieldRules(Customer) returned %d rules, want 2", len(rules))
	}
	if rules["Notes"].Target != "comment" || rules["Notes"].Transform != "trim" {
		t.Errorf("Notes rule = %+v", rules["Notes"])
	}
	if repo.FieldRules("Vendor") != nil {
		t.Error("FieldRules() for unmapped type should be nil")
	}

	// Callers get a copy; editing it must not poison later lookups.
	rules["Fax"] = FieldRule{Target: "poisoned"}
	if got := repo.FieldRules("Customer")["Fax"].Target; got != "fax" {
		t.Errorf("returned rules are not a copy: Fax target = %q", got)
	}
}

func TestCrosswalkMissingFiles(t *testing.T) {
	repo, err := NewCrosswalkRepository(t.TempDir())
	if err != nil {
		t.Fatalf("NewCrosswalkRepository() error = %v", err)
	}
	if _, ok := repo.AccountCode("anything"); ok {
		t.Error("empty crosswalk resolved an account")
	}
	if repo.FieldRules("Customer") != nil {
		t.Error("empty crosswalk returned field rules")
	}
}

func TestCrosswalkReload(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir, "account_crosswalk.json", `{"Sales": "4000"}`)

	repo, err := NewCrosswalkRepository(dir)
	if err != nil {
		t.Fatalf("NewCrosswalkRepository() error = %v", err)
	}

	writeMapping(t, dir, "account_crosswalk.json", `{"Sales": "4100"}`)
	if code, _ := repo.AccountCode("Sales"); code != "4000" {
		t.Errorf("lookup before reload = %q, want 4000", code)
	}

	if err := repo.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if code, _ := repo.AccountCode("Sales"); code != "4100" {
		t.Errorf("lookup after reload = %q, want 4100", code)
	}
}

func TestCrosswalkMalformedFileKeepsOldMappings(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir, "account_crosswalk.json", `{"Sales": "4000"}`)

	repo, err := NewCrosswalkRepository(dir)
	if err != nil {
		t.Fatalf("NewCrosswalkRepository() error = %v", err)
	}

	writeMapping(t, dir, "account_crosswalk.json", `{"Sales": `)
	if err := repo.Reload(); err == nil {
		t.Fatal("Reload() expected error for malformed file")
	}
	if code, _ := repo.AccountCode("Sales"); code != "4000" {
		t.Errorf("malformed reload clobbered mappings: %q", code)
	}
}

func TestCrosswalkMalformedFileAtStartup(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir, "field_mapping.json", `not json`)

	if _, err := NewCrosswalkRepository(dir); err == nil {
		t.Error("NewCrosswalkRepository() expected error for malformed file")
	}
}
