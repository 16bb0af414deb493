package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/copwatch-uk/copwatch/internal/database"
)

// MergeStore is an in-memory implementation of database.MergeWriter.
type MergeStore struct {
	mu     sync.RWMutex
	merges map[int64]*database.OfficerMerge
	nextID int64

	// Error injection
	CreateError error
	GetError    error
}

// NewMergeStore creates an empty in-memory merge store.
func NewMergeStore() *MergeStore {
	return &MergeStore{merges: make(map[int64]*database.OfficerMerge), nextID: 1}
}

// GetMerge retrieves a merge audit record by ID.
func (s *MergeStore) GetMerge(ctx context.Context, id int64) (*database.OfficerMerge, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	merge, ok := s.merges[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *merge
	return &cp, nil
}

// ListMerges returns all merge records involving an officer, newest first.
func (s *MergeStore) ListMerges(ctx context.Context, officerID int64) ([]database.OfficerMerge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []database.OfficerMerge
	for _, merge := range s.merges {
		if merge.PrimaryID == officerID || merge.MergedID == officerID {
			result = append(result, *merge)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

// CreateMerge appends a merge audit record and fills in its ID.
func (s *MergeStore) CreateMerge(ctx context.Context, merge *database.OfficerMerge) error {
	if s.CreateError != nil {
		return s.CreateError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	merge.ID = s.nextID
	s.nextID++
	if merge.CreatedAt.IsZero() {
		merge.CreatedAt = time.Now()
	}
	cp := *merge
	s.merges[merge.ID] = &cp
	return nil
}

// MarkUnmerged flips the reversal flags on a merge record.
func (s *MergeStore) MarkUnmerged(ctx context.Context, id int64, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	merge, ok := s.merges[id]
	if !ok {
		return database.ErrNotFound
	}
	now := time.Now()
	merge.Unmerged = true
	merge.UnmergedAt = &now
	merge.UnmergedBy = actor
	return nil
}
