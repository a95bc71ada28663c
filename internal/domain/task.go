package domain

// TaskParams carries the optional filters seeded onto a query task.
type TaskParams struct {
	FromModifiedDate string `json:"from_modified_date,omitempty"`
	ToModifiedDate   string `json:"to_modified_date,omitempty"`
	IncludeLineItems bool   `json:"include_line_items,omitempty"`
	NameFilter       string `json:"name_filter,omitempty"`
}

// Mutation is one queued modify request for a record that already has a
// desktop-side identifier. EditSequence is the concurrency token required by
// the desktop protocol; a mutation is never built without it.
type Mutation struct {
	ID           string    `json:"id"`
	EditSequence string    `json:"edit_sequence"`
	Changes      ChangeSet `json:"changes"`
}

// Task is one entity-fetch unit in a session's queue. It advances its cursor
// on each paginated response and completes when no cursor remains and the
// final page has been processed. Full-refresh accumulation lives on the task
// itself so it persists and recovers together with the session.
type Task struct {
	EntityType  EntityType `json:"entity_type"`
	RequestID   int        `json:"request_id"`
	IteratorID  string     `json:"iterator_id,omitempty"`
	Params      TaskParams `json:"params"`
	FullRefresh bool       `json:"full_refresh"`

	PendingAdds []*Record  `json:"pending_adds,omitempty"`
	PendingMods []Mutation `json:"pending_mods,omitempty"`

	Accumulated map[string]*Record `json:"accumulated,omitempty"`
	PagesSeen   int                `json:"pages_seen"`
	Done        bool               `json:"done"`
	LastError   string             `json:"last_error,omitempty"`
}

// HasPendingMutations reports whether local changes are still queued for
// push. While any remain, the next outbound request is a mutation batch, not
// a query, so local edits flow upstream before remote state is polled.
func (t *Task) HasPendingMutations() bool {
	return len(t.PendingAdds) > 0 || len(t.PendingMods) > 0
}

// Accumulate stores one page worth of records keyed by identifier.
func (t *Task) Accumulate(records []*Record) {
	if t.Accumulated == nil {
		t.Accumulated = make(map[string]*Record)
	}
	for _, rec := range records {
		if rec.ID != "" {
			t.Accumulated[rec.ID] = rec
		}
	}
	t.PagesSeen++
}

// ResetAccumulation clears paging state after a refresh commits or a task is
// abandoned, so a retried task starts from a clean first page.
func (t *Task) ResetAccumulation() {
	t.Accumulated = nil
	t.IteratorID = ""
	t.PagesSeen = 0
}
