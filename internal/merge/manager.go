// Package merge reconciles near-duplicate officer identities: folding one
// officer into another with an immutable audit trail, reversing a merge,
// and proposing merge candidates from embedding similarity.
package merge

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/copwatch-uk/copwatch/internal/database"
)

var (
	// ErrSelfMerge rejects merging an officer into itself.
	ErrSelfMerge = errors.New("cannot merge an officer into itself")
	// ErrAlreadyMerged rejects merges involving an officer that is already
	// merged away.
	ErrAlreadyMerged = errors.New("officer is already merged")
	// ErrApprovalRequired means the confidence is below the automatic-merge
	// threshold and an operator must approve the merge.
	ErrApprovalRequired = errors.New("merge confidence requires operator approval")
	// ErrAlreadyUnmerged rejects reversing a merge twice.
	ErrAlreadyUnmerged = errors.New("merge record is already reversed")
)

// Store is the persistence surface the manager needs.
type Store interface {
	database.OfficerWriter
	database.MergeWriter
}

// Candidate is a proposed merge pair found by the similarity scan.
type Candidate struct {
	PrimaryID   int64   `json:"primary_id"`
	CandidateID int64   `json:"candidate_id"`
	Similarity  float64 `json:"similarity"`
}

// Manager performs merges and reversals over the officer store.
type Manager struct {
	store           Store
	autoThreshold   float64
	reviewThreshold float64
}

// NewManager creates a merge manager. Non-positive thresholds fall back to
// the package defaults.
func NewManager(store Store, autoThreshold, reviewThreshold float64) *Manager {
	if autoThreshold <= 0 {
		autoThreshold = database.DefaultAutoMergeThreshold
	}
	if reviewThreshold <= 0 {
		reviewThreshold = database.DefaultMergeReviewThreshold
	}
	return &Manager{store: store, autoThreshold: autoThreshold, reviewThreshold: reviewThreshold}
}

// Merge folds the candidate officer into the primary. The candidate's
// appearances are never deleted; they stay attributed to the candidate and
// are included in the primary's aggregates via the merge link. Automatic
// merges are only permitted above the auto threshold; everything below needs
// operator approval (auto=false with a named actor).
func (m *Manager) Merge(ctx context.Context, primaryID, candidateID int64, confidence float64, auto bool, actor string) (*database.OfficerMerge, error) {
	if primaryID == candidateID {
		return nil, ErrSelfMerge
	}
	if auto && confidence <= m.autoThreshold {
		return nil, fmt.Errorf("%w: confidence %.3f below %.3f", ErrApprovalRequired, confidence, m.autoThreshold)
	}

	primary, err := m.store.Get(ctx, primaryID)
	if err != nil {
		return nil, fmt.Errorf("loading primary officer %d: %w", primaryID, err)
	}
	candidate, err := m.store.Get(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("loading candidate officer %d: %w", candidateID, err)
	}
	if primary.IsMerged() {
		return nil, fmt.Errorf("primary officer %d: %w", primaryID, ErrAlreadyMerged)
	}
	if candidate.IsMerged() {
		return nil, fmt.Errorf("candidate officer %d: %w", candidateID, ErrAlreadyMerged)
	}

	record := &database.OfficerMerge{
		PrimaryID:  primaryID,
		MergedID:   candidateID,
		Confidence: confidence,
		Automatic:  auto,
		Actor:      actor,
	}
	if err := m.store.CreateMerge(ctx, record); err != nil {
		return nil, fmt.Errorf("writing merge audit record: %w", err)
	}
	if err := m.store.SetMergeState(ctx, candidateID, primaryID, confidence); err != nil {
		return nil, fmt.Errorf("marking officer %d merged: %w", candidateID, err)
	}

	log.WithFields(log.Fields{
		"primary_id":   primaryID,
		"candidate_id": candidateID,
		"confidence":   confidence,
		"automatic":    auto,
		"actor":        actor,
	}).Info("Merged officer identities")

	return record, nil
}

// Unmerge reverses a merge: the audit row gets its reversal flags set (its
// original confidence and timestamp are preserved) and the merged officer is
// restored to an independent identity.
func (m *Manager) Unmerge(ctx context.Context, mergeID int64, actor string) error {
	record, err := m.store.GetMerge(ctx, mergeID)
	if err != nil {
		return fmt.Errorf("loading merge record %d: %w", mergeID, err)
	}
	if record.Unmerged {
		return fmt.Errorf("merge %d: %w", mergeID, ErrAlreadyUnmerged)
	}

	if err := m.store.MarkUnmerged(ctx, mergeID, actor); err != nil {
		return fmt.Errorf("marking merge %d reversed: %w", mergeID, err)
	}
	if err := m.store.ClearMergeState(ctx, record.MergedID); err != nil {
		return fmt.Errorf("restoring officer %d: %w", record.MergedID, err)
	}

	log.WithFields(log.Fields{
		"merge_id":   mergeID,
		"officer_id": record.MergedID,
		"actor":      actor,
	}).Info("Reversed officer merge")

	return nil
}

// FindCandidates proposes merge pairs by pairwise cosine similarity over
// active officer embeddings. The lower-numbered officer of each pair becomes
// the primary. Officers without embeddings cannot be proposed.
func (m *Manager) FindCandidates(ctx context.Context) ([]Candidate, error) {
	embeddings, err := m.store.ListEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing officer embeddings: %w", err)
	}

	var candidates []Candidate
	for i := range embeddings {
		for j := i + 1; j < len(embeddings); j++ {
			similarity := database.CosineSimilarity(embeddings[i].Embedding, embeddings[j].Embedding)
			if similarity < m.reviewThreshold {
				continue
			}
			candidates = append(candidates, Candidate{
				PrimaryID:   embeddings[i].OfficerID,
				CandidateID: embeddings[j].OfficerID,
				Similarity:  similarity,
			})
		}
	}
	return candidates, nil
}

// AutoThreshold returns the similarity above which merges may run unattended.
func (m *Manager) AutoThreshold() float64 {
	return m.autoThreshold
}
