package domain

import "time"

// Snapshot is the last known desktop-side truth for one entity type: an
// identifier-keyed record set. Absence of a previously known identifier after
// a completed full refresh means the record was deleted on the desktop side.
type Snapshot struct {
	EntityType EntityType         `json:"entity_type"`
	Records    map[string]*Record `json:"records"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func NewSnapshot(entityType EntityType) *Snapshot {
	return &Snapshot{
		EntityType: entityType,
		Records:    make(map[string]*Record),
	}
}

// FindByName locates a record by its secondary key, used to match a freshly
// created record back to a cached placeholder that has no identifier yet.
func (s *Snapshot) FindByName(name string) *Record {
	if name == "" {
		return nil
	}
	for _, rec := range s.Records {
		if rec.Name() == name {
			return rec
		}
	}
	return nil
}

// Placeholders returns cached records that have not yet been assigned a
// desktop-side identifier. They are stored under a "name:" prefixed key.
func (s *Snapshot) Placeholders() []*Record {
	var out []*Record
	for _, rec := range s.Records {
		if rec.IsPlaceholder() {
			out = append(out, rec)
		}
	}
	return out
}

// Key returns the map key for a record: its identifier, or a name-derived
// key for placeholders awaiting one.
func RecordKey(rec *Record) string {
	if rec.ID != "" {
		return rec.ID
	}
	return "name:" + rec.Name()
}
