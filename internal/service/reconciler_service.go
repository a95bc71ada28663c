package service

import (
	"fmt"
	"time"

	"qbsync-server/internal/domain"
	"qbsync-server/internal/qbxml"
	"qbsync-server/internal/registry"
	"qbsync-server/internal/repository"

	"github.com/rs/zerolog/log"
)

// ReconcilerService folds one response page at a time into durable state: the
// desktop-truth snapshot, the task's mutation queue, and the cloud-side
// records. The desktop copy always wins the cache; local differences are
// queued as mutations back to the desktop instead of overwriting the cache.
type ReconcilerService struct {
	registry  *registry.Registry
	snapshots repository.SnapshotRepository
	upsert    *UpsertService
}

func NewReconcilerService(reg *registry.Registry, snapshots repository.SnapshotRepository, upsert *UpsertService) *ReconcilerService {
	return &ReconcilerService{
		registry:  reg,
		snapshots: snapshots,
		upsert:    upsert,
	}
}

// ProcessPage parses and applies one response payload for the session's
// active task. The returned page tells the orchestrator whether more pages
// remain; any error means the task failed and should be abandoned.
func (s *ReconcilerService) ProcessPage(task *domain.Task, payload string) (*qbxml.Page, error) {
	spec, ok := s.registry.Lookup(task.EntityType)
	if !ok {
		return nil, fmt.Errorf("no spec registered for entity type %s", task.EntityType)
	}

	page, err := qbxml.Parse(spec, payload)
	if err != nil {
		return nil, err
	}

	snapshot := s.loadSnapshot(task.EntityType)

	if !page.IsQuery {
		return page, s.applyMutationResults(spec, task, snapshot, page)
	}

	if page.Status != 0 {
		return page, fmt.Errorf("%s query returned status %d: %s", task.EntityType, page.Status, page.StatusMessage)
	}

	if s.upsert != nil {
		pushed := s.upsert.PushRecords(task.EntityType, page.Records)
		if pushed < len(page.Records) {
			log.Warn().
				Str("entity_type", string(task.EntityType)).
				Int("pushed", pushed).
				Int("total", len(page.Records)).
				Msg("page landed partially cloud-side")
		}
	}

	s.queueMutations(spec, task, snapshot, page.Records)

	if page.HasMore() {
		task.IteratorID = page.IteratorID
	} else {
		task.IteratorID = ""
	}

	if task.FullRefresh {
		task.Accumulate(page.Records)
		if !page.HasMore() {
			if err := s.commitRefresh(task, snapshot); err != nil {
				return nil, err
			}
		}
		return page, nil
	}

	// Incremental types merge page by page.
	for _, rec := range page.Records {
		snapshot.Records[domain.RecordKey(rec)] = rec
	}
	snapshot.UpdatedAt = time.Now()
	if err := s.snapshots.Commit(snapshot); err != nil {
		return nil, fmt.Errorf("failed to commit %s snapshot: %w", task.EntityType, err)
	}
	return page, nil
}

func (s *ReconcilerService) loadSnapshot(entityType domain.EntityType) *domain.Snapshot {
	snapshot, err := s.snapshots.Get(entityType)
	if err != nil {
		return domain.NewSnapshot(entityType)
	}
	if snapshot.Records == nil {
		snapshot.Records = make(map[string]*domain.Record)
	}
	return snapshot
}

// queueMutations diffs each observed record against the cache and queues the
// resulting modifies on the task, so they are pushed before the next query.
func (s *ReconcilerService) queueMutations(spec registry.Spec, task *domain.Task, snapshot *domain.Snapshot, records []*domain.Record) {
	if !spec.SupportsMutation() {
		return
	}
	for _, rec := range records {
		cached, ok := snapshot.Records[rec.ID]
		if !ok {
			continue
		}
		for _, conflict := range DetectConflicts(spec, cached, rec) {
			log.Warn().
				Str("entity_type", string(task.EntityType)).
				Str("id", rec.ID).
				Str("field", conflict.Field).
				Str("cached", conflict.Cached).
				Str("observed", conflict.Observed).
				Msg("field changed on both sides")
		}
		if mut, ok := MutationFor(spec, cached, rec); ok {
			task.PendingMods = append(task.PendingMods, mut)
		}
	}
}

// applyMutationResults folds acknowledgements for a pushed mutation batch
// back into the snapshot. The desktop's returned copy replaces the cached one
// wholesale; in particular a fresh EditSequence and, for adds, the newly
// assigned identifier.
func (s *ReconcilerService) applyMutationResults(spec registry.Spec, task *domain.Task, snapshot *domain.Snapshot, page *qbxml.Page) error {
	for _, rec := range page.AddResults {
		if placeholder := snapshot.FindByName(rec.Name()); placeholder != nil && placeholder.IsPlaceholder() {
			delete(snapshot.Records, domain.RecordKey(placeholder))
		}
		snapshot.Records[domain.RecordKey(rec)] = rec
		absorbAck(task, rec)
	}
	for _, rec := range page.ModResults {
		snapshot.Records[domain.RecordKey(rec)] = rec
		absorbAck(task, rec)
	}
	for _, failure := range page.ModFailures {
		log.Error().
			Str("entity_type", string(task.EntityType)).
			Str("failure", failure).
			Msg("desktop rejected mutation")
		task.LastError = failure
	}

	// The whole batch was answered; failed entries are not retried blind.
	task.PendingAdds = nil
	task.PendingMods = nil

	snapshot.UpdatedAt = time.Now()
	if err := s.snapshots.Commit(snapshot); err != nil {
		return fmt.Errorf("failed to commit %s snapshot: %w", task.EntityType, err)
	}
	return nil
}

// commitRefresh replaces the snapshot with the fully accumulated record set.
// Identifiers present before but absent now were deleted on the desktop;
// placeholders still unmatched by name survive the refresh and are queued for
// creation.
func (s *ReconcilerService) commitRefresh(task *domain.Task, old *domain.Snapshot) error {
	fresh := domain.NewSnapshot(task.EntityType)
	for id, rec := range task.Accumulated {
		fresh.Records[id] = rec
	}

	for key, rec := range old.Records {
		if rec.IsPlaceholder() {
			if match := findByName(task.Accumulated, rec.Name()); match != nil {
				continue
			}
			fresh.Records[key] = rec
			task.PendingAdds = append(task.PendingAdds, rec)
			continue
		}
		if _, stillThere := task.Accumulated[rec.ID]; !stillThere {
			log.Info().
				Str("entity_type", string(task.EntityType)).
				Str("id", rec.ID).
				Str("name", rec.Name()).
				Msg("record deleted on desktop")
			if s.upsert != nil {
				if err := s.upsert.Deactivate(task.EntityType, rec); err != nil {
					log.Error().Err(err).Str("id", rec.ID).Msg("failed to deactivate deleted record cloud-side")
				}
			}
		}
	}

	fresh.UpdatedAt = time.Now()
	if err := s.snapshots.Commit(fresh); err != nil {
		return fmt.Errorf("failed to commit %s snapshot: %w", task.EntityType, err)
	}
	return nil
}

// absorbAck folds an acknowledged record into a refresh still in flight. The
// accumulator holds the page copies observed before the mutation batch went
// out; without the acknowledged copy, the final commit would restore the
// stale value and EditSequence.
func absorbAck(task *domain.Task, rec *domain.Record) {
	if task.Accumulated == nil || rec.ID == "" {
		return
	}
	task.Accumulated[rec.ID] = rec
}

func findByName(records map[string]*domain.Record, name string) *domain.Record {
	if name == "" {
		return nil
	}
	for _, rec := range records {
		if rec.Name() == name {
			return rec
		}
	}
	return nil
}
