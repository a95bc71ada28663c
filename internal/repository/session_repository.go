package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"qbsync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// SessionRepository stores one document per connector session, keyed by
// ticket. Sessions survive process restarts so a reconnecting connector can
// be told its ticket is stale instead of silently resuming.
type SessionRepository interface {
	Get(ticket string) (*domain.Session, error)
	Put(session *domain.Session) error
	Delete(ticket string) error
	List() ([]*domain.Session, error)
}

type sessionRepository struct {
	client *kivik.Client
	dbName string
}

func NewSessionRepository(client *kivik.Client, dbName string) SessionRepository {
	return &sessionRepository{
		client: client,
		dbName: dbName,
	}
}

func sessionDocID(ticket string) string {
	return fmt.Sprintf("session:%s", ticket)
}

func (r *sessionRepository) Get(ticket string) (*domain.Session, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(context.Background(), sessionDocID(ticket))

	var session domain.Session
	if err := row.ScanDoc(&session); err != nil {
		return nil, fmt.Errorf("failed to find session %s: %w", ticket, err)
	}
	return &session, nil
}

func (r *sessionRepository) Put(session *domain.Session) error {
	db := r.client.DB(r.dbName)
	docID := sessionDocID(session.Ticket)

	doc, err := toDoc(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", session.Ticket, err)
	}
	doc["type"] = "session"

	// Carry the revision forward when the document already exists.
	var existing map[string]interface{}
	if scanErr := db.Get(context.Background(), docID).ScanDoc(&existing); scanErr == nil {
		if rev, ok := existing["_rev"]; ok {
			doc["_rev"] = rev
		}
	}

	if _, err := db.Put(context.Background(), docID, doc); err != nil {
		return fmt.Errorf("failed to store session %s: %w", session.Ticket, err)
	}
	return nil
}

func (r *sessionRepository) Delete(ticket string) error {
	db := r.client.DB(r.dbName)
	docID := sessionDocID(ticket)

	var existing map[string]interface{}
	row := db.Get(context.Background(), docID)
	if err := row.ScanDoc(&existing); err != nil {
		return fmt.Errorf("failed to find session %s: %w", ticket, err)
	}

	rev, _ := existing["_rev"].(string)
	if _, err := db.Delete(context.Background(), docID, rev); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", ticket, err)
	}
	return nil
}

func (r *sessionRepository) List() ([]*domain.Session, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"type": "session",
		},
	}

	rows := db.Find(context.Background(), query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		var session domain.Session
		if err := rows.ScanDoc(&session); err != nil {
			continue
		}
		sessions = append(sessions, &session)
	}
	return sessions, nil
}

func toDoc(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
