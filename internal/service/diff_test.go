package service

import (
	"testing"

	"qbsync-server/internal/domain"
	"qbsync-server/internal/registry"
)

func itemSpec(t *testing.T) registry.Spec {
	t.Helper()
	spec, ok := registry.Default().Lookup(domain.EntityItemInventory)
	if !ok {
		t.Fatal("ItemInventory spec not registered")
	}
	return spec
}

func record(id, editSeq string, fields map[string]string) *domain.Record {
	rec := domain.NewRecord()
	rec.ID = id
	rec.EditSequence = editSeq
	for k, v := range fields {
		rec.Fields[k] = v
	}
	return rec
}

func TestDiff(t *testing.T) {
	spec := itemSpec(t)

	tests := []struct {
		name     string
		cached   map[string]string
		observed map[string]string
		want     map[string]string
	}{
		{
			name:     "identical records",
			cached:   map[string]string{"Name": "Widget", "SalesPrice": "19.99"},
			observed: map[string]string{"Name": "Widget", "SalesPrice": "19.99"},
			want:     map[string]string{},
		},
		{
			name:     "changed field pushes cached value",
			cached:   map[string]string{"Name": "Widget", "SalesPrice": "24.99"},
			observed: map[string]string{"Name": "Widget", "SalesPrice": "19.99"},
			want:     map[string]string{"SalesPrice": "24.99"},
		},
		{
			name:     "empty cached value is never pushed",
			cached:   map[string]string{"Name": "Widget"},
			observed: map[string]string{"Name": "Widget", "SalesPrice": "19.99", "SalesDesc": "A widget"},
			want:     map[string]string{},
		},
		{
			name:     "reference compared by full name",
			cached:   map[string]string{"IncomeAccountRef.FullName": "Sales:Hardware"},
			observed: map[string]string{"IncomeAccountRef.FullName": "Sales"},
			want:     map[string]string{"IncomeAccountRef.FullName": "Sales:Hardware"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cached := record("8000-1", "1", tt.cached)
			observed := record("8000-1", "2", tt.observed)

			changes := Diff(spec, cached, observed)
			if len(changes) != len(tt.want) {
				t.Fatalf("Diff() = %v, want %v", changes, tt.want)
			}
			for field, value := range tt.want {
				if changes[field] != value {
					t.Errorf("Diff()[%s] = %q, want %q", field, changes[field], value)
				}
			}
		})
	}
}

func TestMutationFor(t *testing.T) {
	spec := itemSpec(t)

	t.Run("difference yields mutation", func(t *testing.T) {
		cached := record("", "", map[string]string{"SalesPrice": "24.99"})
		observed := record("8000-1", "1700000001", map[string]string{"SalesPrice": "19.99"})

		mut, ok := MutationFor(spec, cached, observed)
		if !ok {
			t.Fatal("MutationFor() = false, want mutation")
		}
		if mut.ID != "8000-1" {
			t.Errorf("ID = %s", mut.ID)
		}
		if mut.EditSequence != "1700000001" {
			t.Errorf("EditSequence = %s", mut.EditSequence)
		}
		if mut.Changes["SalesPrice"] != "24.99" {
			t.Errorf("Changes = %v", mut.Changes)
		}
	})

	t.Run("missing edit sequence skips mutation", func(t *testing.T) {
		cached := record("", "", map[string]string{"SalesPrice": "24.99"})
		observed := record("8000-1", "", map[string]string{"SalesPrice": "19.99"})

		if _, ok := MutationFor(spec, cached, observed); ok {
			t.Error("MutationFor() produced mutation without EditSequence")
		}
	})

	t.Run("no difference yields no mutation", func(t *testing.T) {
		cached := record("", "", map[string]string{"SalesPrice": "19.99"})
		observed := record("8000-1", "1700000001", map[string]string{"SalesPrice": "19.99"})

		if _, ok := MutationFor(spec, cached, observed); ok {
			t.Error("MutationFor() produced mutation for identical records")
		}
	})

	t.Run("immutable type yields no mutation", func(t *testing.T) {
		invoice, ok := registry.Default().Lookup(domain.EntityInvoice)
		if !ok {
			t.Fatal("Invoice spec not registered")
		}
		cached := record("", "", map[string]string{"Memo": "changed"})
		observed := record("TXN-1", "1", map[string]string{"Memo": "original"})

		if _, ok := MutationFor(invoice, cached, observed); ok {
			t.Error("MutationFor() produced mutation for immutable type")
		}
	})
}

func TestDetectConflicts(t *testing.T) {
	spec := itemSpec(t)

	cached := record("8000-1", "1", map[string]string{
		"SalesPrice": "24.99",
		"SalesDesc":  "",
		"Name":       "Widget",
	})
	observed := record("8000-1", "2", map[string]string{
		"SalesPrice": "19.99",
		"SalesDesc":  "New description",
		"Name":       "Widget",
	})

	conflicts := DetectConflicts(spec, cached, observed)
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1: %v", len(conflicts), conflicts)
	}
	if conflicts[0].Field != "SalesPrice" {
		t.Errorf("conflict field = %s", conflicts[0].Field)
	}
	if conflicts[0].Cached != "24.99" || conflicts[0].Observed != "19.99" {
		t.Errorf("conflict values = %+v", conflicts[0])
	}
}
