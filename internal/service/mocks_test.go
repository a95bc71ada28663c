package service

import (
	"fmt"
	"time"

	"qbsync-server/internal/domain"
)

type mockSessionRepo struct {
	sessions map[string]*domain.Session
	puts     int
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (m *mockSessionRepo) Get(ticket string) (*domain.Session, error) {
	session, ok := m.sessions[ticket]
	if !ok {
		return nil, fmt.Errorf("session %s not found", ticket)
	}
	return session, nil
}

func (m *mockSessionRepo) Put(session *domain.Session) error {
	m.sessions[session.Ticket] = session
	m.puts++
	return nil
}

func (m *mockSessionRepo) Delete(ticket string) error {
	if _, ok := m.sessions[ticket]; !ok {
		return fmt.Errorf("session %s not found", ticket)
	}
	delete(m.sessions, ticket)
	return nil
}

func (m *mockSessionRepo) List() ([]*domain.Session, error) {
	out := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

type mockSnapshotRepo struct {
	snapshots map[domain.EntityType]*domain.Snapshot
	commits   int
}

func newMockSnapshotRepo() *mockSnapshotRepo {
	return &mockSnapshotRepo{snapshots: make(map[domain.EntityType]*domain.Snapshot)}
}

func (m *mockSnapshotRepo) Get(entityType domain.EntityType) (*domain.Snapshot, error) {
	stored, ok := m.snapshots[entityType]
	if !ok {
		return nil, fmt.Errorf("snapshot for %s not found", entityType)
	}
	// Hand out a copy so in-memory edits do not masquerade as commits.
	copied := domain.NewSnapshot(entityType)
	copied.UpdatedAt = stored.UpdatedAt
	for key, rec := range stored.Records {
		copied.Records[key] = rec.Clone()
	}
	return copied, nil
}

func (m *mockSnapshotRepo) Commit(snapshot *domain.Snapshot) error {
	snapshot.UpdatedAt = time.Now()
	m.snapshots[snapshot.EntityType] = snapshot
	m.commits++
	return nil
}

func (m *mockSnapshotRepo) seed(entityType domain.EntityType, records ...*domain.Record) {
	snapshot := domain.NewSnapshot(entityType)
	for _, rec := range records {
		snapshot.Records[domain.RecordKey(rec)] = rec
	}
	m.snapshots[entityType] = snapshot
}
