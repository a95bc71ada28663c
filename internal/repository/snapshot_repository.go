package repository

import (
	"context"
	"fmt"
	"sync"

	"qbsync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// SnapshotRepository persists the last known full record set per entity type.
// Commit replaces the whole snapshot in one write; partial pages never touch
// the store.
type SnapshotRepository interface {
	Get(entityType domain.EntityType) (*domain.Snapshot, error)
	Commit(snapshot *domain.Snapshot) error
}

type snapshotRepository struct {
	client *kivik.Client
	dbName string

	mu    sync.Mutex
	locks map[domain.EntityType]*sync.Mutex
}

func NewSnapshotRepository(client *kivik.Client, dbName string) SnapshotRepository {
	return &snapshotRepository{
		client: client,
		dbName: dbName,
		locks:  make(map[domain.EntityType]*sync.Mutex),
	}
}

func snapshotDocID(entityType domain.EntityType) string {
	return fmt.Sprintf("snapshot:%s", entityType)
}

// lockFor serializes commits per entity type. Two sessions finishing a refresh
// of the same type must not interleave their read-modify-write cycles.
func (r *snapshotRepository) lockFor(entityType domain.EntityType) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[entityType]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[entityType] = lock
	}
	return lock
}

func (r *snapshotRepository) Get(entityType domain.EntityType) (*domain.Snapshot, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(context.Background(), snapshotDocID(entityType))

	var snapshot domain.Snapshot
	if err := row.ScanDoc(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to find snapshot for %s: %w", entityType, err)
	}
	return &snapshot, nil
}

func (r *snapshotRepository) Commit(snapshot *domain.Snapshot) error {
	lock := r.lockFor(snapshot.EntityType)
	lock.Lock()
	defer lock.Unlock()

	db := r.client.DB(r.dbName)
	docID := snapshotDocID(snapshot.EntityType)

	doc, err := toDoc(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for %s: %w", snapshot.EntityType, err)
	}
	doc["type"] = "snapshot"

	var existing map[string]interface{}
	if scanErr := db.Get(context.Background(), docID).ScanDoc(&existing); scanErr == nil {
		if rev, ok := existing["_rev"]; ok {
			doc["_rev"] = rev
		}
	}

	if _, err := db.Put(context.Background(), docID, doc); err != nil {
		return fmt.Errorf("failed to commit snapshot for %s: %w", snapshot.EntityType, err)
	}
	return nil
}
