package domain

import "time"

// Session is the per-connector-run state: an opaque ticket, an ordered task
// queue, and a pointer to the task currently being worked. Exactly one task
// is active at a time; tasks are processed strictly in queue order.
type Session struct {
	Ticket       string    `json:"ticket"`
	Tasks        []*Task   `json:"tasks"`
	Current      int       `json:"current"`
	CompanyFile  string    `json:"company_file,omitempty"`
	QBXMLVersion string    `json:"qbxml_version,omitempty"`
	LastError    string    `json:"last_error"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// ActiveTask returns the task currently being worked, or nil when the queue
// is exhausted.
func (s *Session) ActiveTask() *Task {
	if s.Current < 0 || s.Current >= len(s.Tasks) {
		return nil
	}
	return s.Tasks[s.Current]
}

// Advance abandons or completes the current task and moves to the next one.
func (s *Session) Advance() {
	if t := s.ActiveTask(); t != nil {
		t.Done = true
		t.ResetAccumulation()
	}
	s.Current++
}

// Expired reports whether the session has been idle longer than ttl.
func (s *Session) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivity) > ttl
}

// Progress is the overall sync percentage, capped at 99 until the queue
// truly completes.
func (s *Session) Progress() int {
	total := len(s.Tasks)
	if total == 0 {
		return 100
	}
	if s.Current >= total {
		return 100
	}
	pct := s.Current * 100 / total
	if pct > 99 {
		pct = 99
	}
	return pct
}
