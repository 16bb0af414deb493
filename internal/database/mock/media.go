// Package mock provides in-memory implementations of the database interfaces
// for testing, with optional error injection.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/copwatch-uk/copwatch/internal/database"
)

// MediaStore is an in-memory implementation of database.MediaWriter.
type MediaStore struct {
	mu     sync.RWMutex
	items  map[int64]*database.MediaItem
	nextID int64

	// Error injection
	GetError  error
	FindError error
	ListError error
	SaveError error
}

// NewMediaStore creates an empty in-memory media store.
func NewMediaStore() *MediaStore {
	return &MediaStore{items: make(map[int64]*database.MediaItem), nextID: 1}
}

// Get retrieves a media item by ID.
func (s *MediaStore) Get(ctx context.Context, id int64) (*database.MediaItem, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

// GetByUID retrieves a media item by its public UID.
func (s *MediaStore) GetByUID(ctx context.Context, uid string) (*database.MediaItem, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.UID == uid {
			cp := *item
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

// FindByContentHash returns the first non-duplicate item with the given hash.
func (s *MediaStore) FindByContentHash(ctx context.Context, contentHash string) (*database.MediaItem, error) {
	if s.FindError != nil {
		return nil, s.FindError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *database.MediaItem
	for _, item := range s.items {
		if item.IsDuplicate || item.ContentHash != contentHash {
			continue
		}
		if best == nil || item.ID < best.ID {
			best = item
		}
	}
	if best == nil {
		return nil, database.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

// ListPerceptualCandidates returns non-duplicate image hashes ordered by ID.
func (s *MediaStore) ListPerceptualCandidates(ctx context.Context, afterID int64, limit int) ([]database.PerceptualCandidate, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []database.PerceptualCandidate
	for _, item := range s.items {
		if item.IsDuplicate || item.MediaType != database.MediaTypeImage || item.ID <= afterID {
			continue
		}
		candidates = append(candidates, database.PerceptualCandidate{
			MediaItemID:    item.ID,
			PerceptualHash: item.PerceptualHash,
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].MediaItemID < candidates[j].MediaItemID })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Count returns the total number of media items stored.
func (s *MediaStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

// Save inserts a new media item and fills in its ID.
func (s *MediaStore) Save(ctx context.Context, item *database.MediaItem) error {
	if s.SaveError != nil {
		return s.SaveError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		item.ID = s.nextID
		s.nextID++
	}
	if item.UploadedAt.IsZero() {
		item.UploadedAt = time.Now()
	}
	cp := *item
	s.items[item.ID] = &cp
	return nil
}
