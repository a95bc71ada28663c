package service

import (
	"qbsync-server/internal/domain"
	"qbsync-server/internal/registry"
)

// Diff computes the change-set that would bring the observed desktop record in
// line with the cached record. The cached side holds the values the cloud side
// last wrote, so on any disagreement the cached value is what gets pushed.
// Fields the cache holds no value for are never pushed; an empty cached value
// means "no opinion", not "clear this field".
func Diff(spec registry.Spec, cached, observed *domain.Record) domain.ChangeSet {
	changes := make(domain.ChangeSet)
	for _, field := range spec.DiffFields() {
		cachedVal := cached.Fields[field]
		if cachedVal == "" {
			continue
		}
		if observed.Fields[field] != cachedVal {
			changes[field] = cachedVal
		}
	}
	return changes
}

// MutationFor turns a non-empty diff into a queued mutation. A record observed
// without an EditSequence cannot be safely modified, so the mutation is
// skipped; the next poll will see the token and retry the diff.
func MutationFor(spec registry.Spec, cached, observed *domain.Record) (domain.Mutation, bool) {
	if !spec.SupportsMutation() {
		return domain.Mutation{}, false
	}
	changes := Diff(spec, cached, observed)
	if len(changes) == 0 {
		return domain.Mutation{}, false
	}
	if observed.ID == "" || observed.EditSequence == "" {
		return domain.Mutation{}, false
	}
	return domain.Mutation{
		ID:           observed.ID,
		EditSequence: observed.EditSequence,
		Changes:      changes,
	}, true
}

// DetectConflicts reports fields holding different non-empty values on both
// sides. Conflicts are never auto-resolved; they are surfaced so an operator
// can see what the push is about to overwrite.
func DetectConflicts(spec registry.Spec, cached, observed *domain.Record) []domain.Conflict {
	var conflicts []domain.Conflict
	for _, field := range spec.DiffFields() {
		cachedVal := cached.Fields[field]
		observedVal := observed.Fields[field]
		if cachedVal == "" || observedVal == "" {
			continue
		}
		if cachedVal != observedVal {
			conflicts = append(conflicts, domain.Conflict{
				Field:    field,
				Cached:   cachedVal,
				Observed: observedVal,
			})
		}
	}
	return conflicts
}
