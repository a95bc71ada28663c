package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FieldRule maps one source field onto a remote model field, with an optional
// named transform applied on the way over.
type FieldRule struct {
	Target    string `json:"target"`
	Transform string `json:"transform,omitempty"`
}

// CrosswalkRepository serves the two operator-maintained mapping files:
// account_crosswalk.json (ledger account name -> remote account code) and
// field_mapping.json (entity type -> field -> rule). Both can be reloaded at
// runtime without a restart.
type CrosswalkRepository interface {
	AccountCode(accountFullName string) (string, bool)
	FieldRules(entityType string) map[string]FieldRule
	Reload() error
}

type crosswalkRepository struct {
	dataDir string

	mu       sync.RWMutex
	accounts map[string]string
	fields   map[string]map[string]FieldRule
}

func NewCrosswalkRepository(dataDir string) (CrosswalkRepository, error) {
	r := &crosswalkRepository{
		dataDir:  dataDir,
		accounts: make(map[string]string),
		fields:   make(map[string]map[string]FieldRule),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *crosswalkRepository) AccountCode(accountFullName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	code, ok := r.accounts[accountFullName]
	return code, ok
}

func (r *crosswalkRepository) FieldRules(entityType string) map[string]FieldRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules, ok := r.fields[entityType]
	if !ok {
		return nil
	}
	out := make(map[string]FieldRule, len(rules))
	for field, rule := range rules {
		out[field] = rule
	}
	return out
}

// Reload re-reads both mapping files atomically with respect to lookups. A
// missing file is treated as an empty mapping; a malformed file keeps the
// previous mappings in place and reports the error.
func (r *crosswalkRepository) Reload() error {
	accounts := make(map[string]string)
	if err := r.loadJSON("account_crosswalk.json", &accounts); err != nil {
		return err
	}

	fields := make(map[string]map[string]FieldRule)
	if err := r.loadJSON("field_mapping.json", &fields); err != nil {
		return err
	}

	r.mu.Lock()
	r.accounts = accounts
	r.fields = fields
	r.mu.Unlock()
	return nil
}

func (r *crosswalkRepository) loadJSON(name string, out interface{}) error {
	path := filepath.Join(r.dataDir, name)

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}
