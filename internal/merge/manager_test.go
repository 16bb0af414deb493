package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/copwatch-uk/copwatch/internal/database"
	"github.com/copwatch-uk/copwatch/internal/database/mock"
)

type testStore struct {
	*mock.OfficerStore
	*mock.MergeStore
}

func newTestStore() *testStore {
	return &testStore{
		OfficerStore: mock.NewOfficerStore(),
		MergeStore:   mock.NewMergeStore(),
	}
}

func embed512(v float32) []float32 {
	e := make([]float32, 512)
	e[0] = v
	e[1] = 1
	return e
}

func addOfficer(t *testing.T, store *testStore, badge string, embedding []float32) *database.Officer {
	t.Helper()
	officer := &database.Officer{BadgeNumber: badge, Embedding: embedding}
	if err := store.Save(context.Background(), officer); err != nil {
		t.Fatalf("could not save officer: %v", err)
	}
	return officer
}

func TestMergeFoldsCandidateIntoPrimary(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	manager := NewManager(store, 0, 0)

	primary := addOfficer(t, store, "PS1234", embed512(1))
	candidate := addOfficer(t, store, "PS1235", embed512(1.01))

	record, err := manager.Merge(ctx, primary.ID, candidate.ID, 0.97, false, "analyst")
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if record.ID == 0 {
		t.Error("expected audit record to get an ID")
	}
	if record.PrimaryID != primary.ID || record.MergedID != candidate.ID {
		t.Errorf("audit record links %d->%d, expected %d->%d",
			record.MergedID, record.PrimaryID, candidate.ID, primary.ID)
	}

	merged, err := store.Get(ctx, candidate.ID)
	if err != nil {
		t.Fatalf("could not reload candidate: %v", err)
	}
	if !merged.IsMerged() {
		t.Fatal("candidate should be marked merged")
	}
	if *merged.MergedIntoID != primary.ID {
		t.Errorf("candidate merged into %d, expected %d", *merged.MergedIntoID, primary.ID)
	}
	if *merged.MergeConfidence != 0.97 {
		t.Errorf("merge confidence %f, expected 0.97", *merged.MergeConfidence)
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("could not list active officers: %v", err)
	}
	if len(active) != 1 || active[0].ID != primary.ID {
		t.Errorf("expected only the primary to stay active, got %d officers", len(active))
	}
}

func TestMergeRejectsSelfMerge(t *testing.T) {
	store := newTestStore()
	manager := NewManager(store, 0, 0)
	officer := addOfficer(t, store, "PS1234", nil)

	_, err := manager.Merge(context.Background(), officer.ID, officer.ID, 0.99, false, "analyst")
	if !errors.Is(err, ErrSelfMerge) {
		t.Errorf("expected ErrSelfMerge, got %v", err)
	}
}

func TestMergeRejectsAlreadyMergedOfficers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	manager := NewManager(store, 0, 0)

	primary := addOfficer(t, store, "PS1234", nil)
	candidate := addOfficer(t, store, "PS1235", nil)
	third := addOfficer(t, store, "PS1236", nil)

	if _, err := manager.Merge(ctx, primary.ID, candidate.ID, 0.97, false, "analyst"); err != nil {
		t.Fatalf("initial merge failed: %v", err)
	}

	// Candidate is merged away; it can be neither primary nor candidate again.
	if _, err := manager.Merge(ctx, third.ID, candidate.ID, 0.97, false, "analyst"); !errors.Is(err, ErrAlreadyMerged) {
		t.Errorf("re-merging merged candidate: expected ErrAlreadyMerged, got %v", err)
	}
	if _, err := manager.Merge(ctx, candidate.ID, third.ID, 0.97, false, "analyst"); !errors.Is(err, ErrAlreadyMerged) {
		t.Errorf("merged officer as primary: expected ErrAlreadyMerged, got %v", err)
	}
}

func TestAutomaticMergeRequiresHighConfidence(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	manager := NewManager(store, 0, 0)

	primary := addOfficer(t, store, "PS1234", nil)
	candidate := addOfficer(t, store, "PS1235", nil)

	_, err := manager.Merge(ctx, primary.ID, candidate.ID, 0.90, true, "pipeline")
	if !errors.Is(err, ErrApprovalRequired) {
		t.Fatalf("expected ErrApprovalRequired, got %v", err)
	}

	// An operator can still approve the same pair at the same confidence.
	if _, err := manager.Merge(ctx, primary.ID, candidate.ID, 0.90, false, "analyst"); err != nil {
		t.Errorf("manual merge at 0.90 should succeed: %v", err)
	}
}

func TestAutomaticMergeAboveThreshold(t *testing.T) {
	store := newTestStore()
	manager := NewManager(store, 0, 0)

	primary := addOfficer(t, store, "PS1234", nil)
	candidate := addOfficer(t, store, "PS1235", nil)

	record, err := manager.Merge(context.Background(), primary.ID, candidate.ID, 0.96, true, "pipeline")
	if err != nil {
		t.Fatalf("automatic merge at 0.96 should succeed: %v", err)
	}
	if !record.Automatic {
		t.Error("audit record should be flagged automatic")
	}
}

func TestUnmergeRestoresIndependentOfficer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	manager := NewManager(store, 0, 0)

	primary := addOfficer(t, store, "PS1234", nil)
	candidate := addOfficer(t, store, "PS1235", nil)

	record, err := manager.Merge(ctx, primary.ID, candidate.ID, 0.97, false, "analyst")
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	mergedAt := record.CreatedAt

	if err := manager.Unmerge(ctx, record.ID, "supervisor"); err != nil {
		t.Fatalf("unmerge failed: %v", err)
	}

	restored, err := store.Get(ctx, candidate.ID)
	if err != nil {
		t.Fatalf("could not reload officer: %v", err)
	}
	if restored.IsMerged() {
		t.Error("officer should be independent again")
	}
	if restored.MergedIntoID != nil || restored.MergeConfidence != nil || restored.MergedAt != nil {
		t.Error("merge state fields should all be cleared")
	}

	// The audit row keeps the original merge data and records the reversal.
	audit, err := store.GetMerge(ctx, record.ID)
	if err != nil {
		t.Fatalf("could not reload merge record: %v", err)
	}
	if !audit.Unmerged {
		t.Error("audit record should be flagged unmerged")
	}
	if audit.UnmergedBy != "supervisor" {
		t.Errorf("unmerged by %q, expected supervisor", audit.UnmergedBy)
	}
	if audit.UnmergedAt == nil {
		t.Error("audit record should carry the reversal timestamp")
	}
	if audit.Confidence != 0.97 {
		t.Errorf("original confidence %f was modified", audit.Confidence)
	}
	if !audit.CreatedAt.Equal(mergedAt) {
		t.Error("original merge timestamp was modified")
	}
}

func TestUnmergeTwiceFails(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	manager := NewManager(store, 0, 0)

	primary := addOfficer(t, store, "PS1234", nil)
	candidate := addOfficer(t, store, "PS1235", nil)
	record, err := manager.Merge(ctx, primary.ID, candidate.ID, 0.97, false, "analyst")
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	if err := manager.Unmerge(ctx, record.ID, "supervisor"); err != nil {
		t.Fatalf("first unmerge failed: %v", err)
	}
	if err := manager.Unmerge(ctx, record.ID, "supervisor"); !errors.Is(err, ErrAlreadyUnmerged) {
		t.Errorf("expected ErrAlreadyUnmerged, got %v", err)
	}
}

func TestUnmergeUnknownMerge(t *testing.T) {
	store := newTestStore()
	manager := NewManager(store, 0, 0)

	err := manager.Unmerge(context.Background(), 42, "supervisor")
	if !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMergeAggregatesAppearances(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	manager := NewManager(store, 0, 0)

	primary := addOfficer(t, store, "PS1234", nil)
	candidate := addOfficer(t, store, "PS1235", nil)

	sight := func(officer *database.Officer, mediaID int64) {
		app := &database.OfficerAppearance{MediaItemID: mediaID}
		if err := store.SaveSighting(ctx, officer, app); err != nil {
			t.Fatalf("could not record sighting: %v", err)
		}
	}
	sight(primary, 1)
	sight(primary, 2)
	sight(candidate, 3)

	if _, err := manager.Merge(ctx, primary.ID, candidate.ID, 0.97, false, "analyst"); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	total, err := store.CountByOfficer(ctx, primary.ID, true)
	if err != nil {
		t.Fatalf("could not count appearances: %v", err)
	}
	if total != 3 {
		t.Errorf("primary aggregates %d appearances, expected 3", total)
	}

	// The candidate's appearances stay attributed to the candidate.
	own, err := store.CountByOfficer(ctx, primary.ID, false)
	if err != nil {
		t.Fatalf("could not count own appearances: %v", err)
	}
	if own != 2 {
		t.Errorf("primary owns %d appearances, expected 2", own)
	}

	apps, err := store.ListByOfficer(ctx, primary.ID, true)
	if err != nil {
		t.Fatalf("could not list appearances: %v", err)
	}
	for _, app := range apps {
		if app.MediaItemID == 3 && app.OfficerID != candidate.ID {
			t.Errorf("merged appearance re-attributed to officer %d", app.OfficerID)
		}
	}
}

func TestFindCandidatesProposesSimilarPairs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	manager := NewManager(store, 0, 0)

	// a and b point in nearly the same direction, c is orthogonal.
	a := addOfficer(t, store, "PS1234", []float32{1, 0.02, 0})
	b := addOfficer(t, store, "PS1235", []float32{1, 0, 0})
	addOfficer(t, store, "GMP100", []float32{0, 0, 1})
	addOfficer(t, store, "MP200", nil)

	candidates, err := manager.FindCandidates(ctx)
	if err != nil {
		t.Fatalf("candidate scan failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate pair, got %d", len(candidates))
	}
	pair := candidates[0]
	if pair.PrimaryID != a.ID || pair.CandidateID != b.ID {
		t.Errorf("proposed %d/%d, expected %d/%d", pair.PrimaryID, pair.CandidateID, a.ID, b.ID)
	}
	if pair.Similarity < database.DefaultMergeReviewThreshold {
		t.Errorf("similarity %f below review threshold", pair.Similarity)
	}
}

func TestFindCandidatesIgnoresMergedOfficers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	manager := NewManager(store, 0, 0)

	a := addOfficer(t, store, "PS1234", []float32{1, 0, 0})
	b := addOfficer(t, store, "PS1235", []float32{1, 0.01, 0})

	if _, err := manager.Merge(ctx, a.ID, b.ID, 0.99, false, "analyst"); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	candidates, err := manager.FindCandidates(ctx)
	if err != nil {
		t.Fatalf("candidate scan failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected no candidates after merge, got %d", len(candidates))
	}
}

func TestMergeAuditWriteFailureLeavesOfficersUntouched(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	store.MergeStore.CreateError = errors.New("disk full")
	manager := NewManager(store, 0, 0)

	primary := addOfficer(t, store, "PS1234", nil)
	candidate := addOfficer(t, store, "PS1235", nil)

	if _, err := manager.Merge(ctx, primary.ID, candidate.ID, 0.97, false, "analyst"); err == nil {
		t.Fatal("expected merge to fail")
	}

	reloaded, err := store.Get(ctx, candidate.ID)
	if err != nil {
		t.Fatalf("could not reload candidate: %v", err)
	}
	if reloaded.IsMerged() {
		t.Error("candidate must stay independent when the audit write fails")
	}
}
