package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"qbsync-server/internal/domain"
	"qbsync-server/internal/odoo"
	"qbsync-server/internal/repository"
)

// fakeERP is a minimal in-memory stand-in for the cloud side: it answers
// login, search_read, create and write for res.partner and counts the
// mutating calls.
type fakeERP struct {
	partners []map[string]interface{}
	nextID   int
	creates  int
	writes   int
}

func newFakeERP() *fakeERP {
	return &fakeERP{nextID: 1}
}

func (f *fakeERP) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params struct {
				Service string        `json:"service"`
				Method  string        `json:"method"`
				Args    []interface{} `json:"args"`
			} `json:"params"`
			ID int64 `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode rpc request: %v", err)
		}

		var result interface{}
		if req.Params.Service == "common" {
			result = 7
		} else {
			model, _ := req.Params.Args[3].(string)
			method, _ := req.Params.Args[4].(string)
			callArgs, _ := req.Params.Args[5].([]interface{})
			kwargs, _ := req.Params.Args[6].(map[string]interface{})
			if model != "res.partner" {
				result = []interface{}{}
			} else {
				switch method {
				case "search_read":
					result = f.searchRead(callArgs, kwargs)
				case "create":
					values, _ := callArgs[0].(map[string]interface{})
					result = f.create(values)
				case "write":
					f.write(callArgs)
					result = true
				}
			}
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}
}

// searchRead matches on the first filter clause only and projects the
// requested fields, answering false for unset ones the way the real server
// does.
func (f *fakeERP) searchRead(callArgs []interface{}, kwargs map[string]interface{}) []map[string]interface{} {
	filter, _ := callArgs[0].([]interface{})
	fields, _ := kwargs["fields"].([]interface{})

	out := []map[string]interface{}{}
	for _, p := range f.partners {
		if len(filter) > 0 {
			clause, _ := filter[0].([]interface{})
			field, _ := clause[0].(string)
			value, _ := clause[2].(string)
			stored, _ := p[field].(string)
			if field == "name" {
				if !strings.EqualFold(stored, value) {
					continue
				}
			} else if stored != value {
				continue
			}
		}
		projected := make(map[string]interface{}, len(fields))
		for _, rawField := range fields {
			name, _ := rawField.(string)
			if v, ok := p[name]; ok {
				projected[name] = v
			} else {
				projected[name] = false
			}
		}
		out = append(out, projected)
	}
	return out
}

func (f *fakeERP) create(values map[string]interface{}) int {
	f.creates++
	p := make(map[string]interface{}, len(values)+1)
	for k, v := range values {
		p[k] = v
	}
	p["id"] = f.nextID
	f.nextID++
	f.partners = append(f.partners, p)
	return f.nextID - 1
}

func (f *fakeERP) write(callArgs []interface{}) {
	f.writes++
	ids, _ := callArgs[0].([]interface{})
	values, _ := callArgs[1].(map[string]interface{})
	for _, p := range f.partners {
		id, _ := p["id"].(int)
		for _, rawID := range ids {
			if wantID, ok := rawID.(float64); ok && int(wantID) == id {
				for k, v := range values {
					p[k] = v
				}
			}
		}
	}
}

func newTestUpsert(t *testing.T, erp *fakeERP) (*UpsertService, func()) {
	return newTestUpsertWithMapping(t, erp, "")
}

func newTestUpsertWithMapping(t *testing.T, erp *fakeERP, fieldMapping string) (*UpsertService, func()) {
	t.Helper()
	dir := t.TempDir()
	if fieldMapping != "" {
		if err := os.WriteFile(filepath.Join(dir, "field_mapping.json"), []byte(fieldMapping), 0o644); err != nil {
			t.Fatalf("failed to write field mapping: %v", err)
		}
	}
	srv := httptest.NewServer(erp.handler(t))
	crosswalk, err := repository.NewCrosswalkRepository(dir)
	if err != nil {
		t.Fatalf("failed to build crosswalk repository: %v", err)
	}
	client := odoo.NewClient(srv.URL, "erp", "bot", "key")
	return NewUpsertService(client, crosswalk), srv.Close
}

func testPartner() *domain.CanonicalPartner {
	return &domain.CanonicalPartner{
		ExternalKey: "8000-77",
		Name:        "Acme Corp",
		Email:       "billing@acme.test",
		Phone:       "555-0100",
		IsActive:    true,
	}
}

func TestEnsurePartnerCreatesOnce(t *testing.T) {
	erp := newFakeERP()
	upsert, done := newTestUpsert(t, erp)
	defer done()

	id, err := upsert.EnsurePartner(testPartner())
	if err != nil {
		t.Fatalf("EnsurePartner() error = %v", err)
	}
	if id == 0 {
		t.Fatal("EnsurePartner() returned zero id")
	}
	if erp.creates != 1 {
		t.Errorf("creates = %d, want 1", erp.creates)
	}

	// The second pass finds the record by external key and sees no delta.
	id2, err := upsert.EnsurePartner(testPartner())
	if err != nil {
		t.Fatalf("EnsurePartner() second call error = %v", err)
	}
	if id2 != id {
		t.Errorf("second call id = %d, want %d", id2, id)
	}
	if erp.creates != 1 {
		t.Errorf("creates after second call = %d, want 1", erp.creates)
	}
	if erp.writes != 0 {
		t.Errorf("writes for unchanged partner = %d, want 0", erp.writes)
	}
}

func TestEnsurePartnerWritesDelta(t *testing.T) {
	erp := newFakeERP()
	upsert, done := newTestUpsert(t, erp)
	defer done()

	if _, err := upsert.EnsurePartner(testPartner()); err != nil {
		t.Fatalf("EnsurePartner() error = %v", err)
	}

	changed := testPartner()
	changed.Phone = "555-0199"
	if _, err := upsert.EnsurePartner(changed); err != nil {
		t.Fatalf("EnsurePartner(changed) error = %v", err)
	}

	if erp.creates != 1 {
		t.Errorf("creates = %d, want 1", erp.creates)
	}
	if erp.writes != 1 {
		t.Errorf("writes = %d, want 1", erp.writes)
	}
	if got := erp.partners[0]["phone"]; got != "555-0199" {
		t.Errorf("phone after delta write = %v", got)
	}
}

func TestEnsurePartnerMatchesFlippedName(t *testing.T) {
	erp := newFakeERP()
	// Cloud-side record created manually, no external key yet.
	erp.create(map[string]interface{}{"name": "John Doe", "email": "", "phone": ""})

	upsert, done := newTestUpsert(t, erp)
	defer done()

	p := &domain.CanonicalPartner{
		ExternalKey: "8000-5",
		Name:        "Doe, John",
		IsActive:    true,
	}
	id, err := upsert.EnsurePartner(p)
	if err != nil {
		t.Fatalf("EnsurePartner() error = %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want the existing record", id)
	}
	if erp.creates != 1 {
		t.Errorf("creates = %d, want 1 (no duplicate)", erp.creates)
	}
	if got := erp.partners[0]["ref"]; got != "8000-5" {
		t.Errorf("external key not stamped on matched record: %v", got)
	}
}

func TestEnsurePartnerValidation(t *testing.T) {
	erp := newFakeERP()
	upsert, done := newTestUpsert(t, erp)
	defer done()

	tests := []struct {
		name    string
		partner *domain.CanonicalPartner
	}{
		{name: "missing external key", partner: &domain.CanonicalPartner{Name: "X"}},
		{name: "missing name", partner: &domain.CanonicalPartner{ExternalKey: "8000-1"}},
		{name: "bad email", partner: &domain.CanonicalPartner{ExternalKey: "8000-1", Name: "X", Email: "not-an-email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := upsert.EnsurePartner(tt.partner); err == nil {
				t.Error("EnsurePartner() expected validation error")
			}
		})
	}
	if erp.creates != 0 {
		t.Errorf("creates = %d, want 0 for invalid partners", erp.creates)
	}
}

func TestPushRecordsAppliesFieldMapping(t *testing.T) {
	erp := newFakeERP()
	upsert, done := newTestUpsertWithMapping(t, erp, `{
  "Customer": {
    "Fax": {"target": "fax"},
    "Notes": {"target": "comment", "transform": "trim"}
  }
}`)
	defer done()

	customer := record("9000-1", "1", map[string]string{
		"Name":  "Acme Corp",
		"Fax":   "555-0177",
		"Notes": "  net 30 preferred  ",
	})
	if pushed := upsert.PushRecords(domain.EntityCustomer, []*domain.Record{customer}); pushed != 1 {
		t.Fatalf("pushed = %d, want 1", pushed)
	}

	if got := erp.partners[0]["fax"]; got != "555-0177" {
		t.Errorf("mapped fax = %v", got)
	}
	if got := erp.partners[0]["comment"]; got != "net 30 preferred" {
		t.Errorf("mapped comment = %v, want the trimmed note", got)
	}
}

func TestPushRecordsSkipsJobs(t *testing.T) {
	erp := newFakeERP()
	upsert, done := newTestUpsert(t, erp)
	defer done()

	customer := record("9000-1", "1", map[string]string{"Name": "Acme Corp", "Sublevel": "0"})
	job := record("9000-2", "1", map[string]string{
		"Name":               "Acme Corp:Roof Job",
		"Sublevel":           "1",
		"ParentRef.FullName": "Acme Corp",
	})

	pushed := upsert.PushRecords(domain.EntityCustomer, []*domain.Record{customer, job})
	if pushed != 2 {
		t.Fatalf("pushed = %d, want 2 (job skip is not a failure)", pushed)
	}
	if erp.creates != 1 {
		t.Errorf("creates = %d, want 1 (only the real customer)", erp.creates)
	}
}
