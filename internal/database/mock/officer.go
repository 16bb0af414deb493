package mock

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/copwatch-uk/copwatch/internal/database"
)

// OfficerStore is an in-memory implementation of database.OfficerWriter and
// database.SightingWriter.
type OfficerStore struct {
	mu          sync.RWMutex
	officers    map[int64]*database.Officer
	appearances map[int64]*database.OfficerAppearance
	nextID      int64
	nextAppID   int64

	// Error injection
	GetError      error
	ListError     error
	SaveError     error
	SightingError error
}

// NewOfficerStore creates an empty in-memory officer store.
func NewOfficerStore() *OfficerStore {
	return &OfficerStore{
		officers:    make(map[int64]*database.Officer),
		appearances: make(map[int64]*database.OfficerAppearance),
		nextID:      1,
		nextAppID:   1,
	}
}

// Get retrieves an officer by ID.
func (s *OfficerStore) Get(ctx context.Context, id int64) (*database.Officer, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	officer, ok := s.officers[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *officer
	return &cp, nil
}

// ListActive returns all officers that have not been merged away, in ID order.
func (s *OfficerStore) ListActive(ctx context.Context) ([]database.Officer, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []database.Officer
	for _, officer := range s.officers {
		if officer.IsMerged() {
			continue
		}
		active = append(active, *officer)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

// ListEmbeddings returns embeddings of active officers in creation order.
func (s *OfficerStore) ListEmbeddings(ctx context.Context) ([]database.OfficerEmbedding, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	active, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var embeddings []database.OfficerEmbedding
	for _, officer := range active {
		if !officer.HasEmbedding() {
			continue
		}
		embeddings = append(embeddings, database.OfficerEmbedding{
			OfficerID: officer.ID,
			Embedding: officer.Embedding,
		})
	}
	return embeddings, nil
}

// Count returns the number of active officers.
func (s *OfficerStore) Count(ctx context.Context) (int, error) {
	active, err := s.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

// Save inserts or updates an officer.
func (s *OfficerStore) Save(ctx context.Context, officer *database.Officer) error {
	if s.SaveError != nil {
		return s.SaveError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked(officer)
	return nil
}

func (s *OfficerStore) saveLocked(officer *database.Officer) {
	now := time.Now()
	if officer.ID == 0 {
		officer.ID = s.nextID
		s.nextID++
		officer.CreatedAt = now
	}
	officer.UpdatedAt = now
	cp := *officer
	s.officers[officer.ID] = &cp
}

// SetMergeState marks an officer as merged into another.
func (s *OfficerStore) SetMergeState(ctx context.Context, officerID, primaryID int64, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	officer, ok := s.officers[officerID]
	if !ok {
		return database.ErrNotFound
	}
	now := time.Now()
	officer.MergedIntoID = &primaryID
	officer.MergeConfidence = &confidence
	officer.MergedAt = &now
	return nil
}

// ClearMergeState restores an officer to an independent identity.
func (s *OfficerStore) ClearMergeState(ctx context.Context, officerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	officer, ok := s.officers[officerID]
	if !ok {
		return database.ErrNotFound
	}
	officer.MergedIntoID = nil
	officer.MergeConfidence = nil
	officer.MergedAt = nil
	return nil
}

// SaveSighting persists the officer and the appearance as a unit.
func (s *OfficerStore) SaveSighting(ctx context.Context, officer *database.Officer, appearance *database.OfficerAppearance) error {
	if s.SightingError != nil {
		return s.SightingError
	}
	if officer == nil || appearance == nil {
		return errors.New("sighting requires both officer and appearance")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveLocked(officer)
	appearance.OfficerID = officer.ID
	if appearance.ID == 0 {
		appearance.ID = s.nextAppID
		s.nextAppID++
		appearance.CreatedAt = time.Now()
	}
	cp := *appearance
	s.appearances[appearance.ID] = &cp
	return nil
}

// ListByOfficer returns appearances of an officer, optionally including
// appearances of officers merged into it.
func (s *OfficerStore) ListByOfficer(ctx context.Context, officerID int64, includeMerged bool) ([]database.OfficerAppearance, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := map[int64]bool{officerID: true}
	if includeMerged {
		for _, officer := range s.officers {
			if officer.MergedIntoID != nil && *officer.MergedIntoID == officerID {
				ids[officer.ID] = true
			}
		}
	}

	var result []database.OfficerAppearance
	for _, app := range s.appearances {
		if ids[app.OfficerID] {
			result = append(result, *app)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// CountByOfficer counts appearances, optionally across merged-in officers.
func (s *OfficerStore) CountByOfficer(ctx context.Context, officerID int64, includeMerged bool) (int, error) {
	apps, err := s.ListByOfficer(ctx, officerID, includeMerged)
	if err != nil {
		return 0, err
	}
	return len(apps), nil
}

// ListByMedia returns all appearances detected in one media item.
func (s *OfficerStore) ListByMedia(ctx context.Context, mediaItemID int64) ([]database.OfficerAppearance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []database.OfficerAppearance
	for _, app := range s.appearances {
		if app.MediaItemID == mediaItemID {
			result = append(result, *app)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
