package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get methods when no row matches.
var ErrNotFound = errors.New("record not found")

// MediaReader provides read-only access to stored media items.
type MediaReader interface {
	// Get retrieves a media item by ID.
	Get(ctx context.Context, id int64) (*MediaItem, error)
	// GetByUID retrieves a media item by its public UID.
	GetByUID(ctx context.Context, uid string) (*MediaItem, error)
	// FindByContentHash returns the first non-duplicate item with the given
	// content hash, or nil if none exists.
	FindByContentHash(ctx context.Context, contentHash string) (*MediaItem, error)
	// ListPerceptualCandidates returns a batch of perceptual hashes from
	// non-duplicate image items, ordered by ID for stable pagination.
	ListPerceptualCandidates(ctx context.Context, afterID int64, limit int) ([]PerceptualCandidate, error)
	// Count returns the total number of media items stored.
	Count(ctx context.Context) (int, error)
}

// MediaWriter provides write access to media items.
type MediaWriter interface {
	MediaReader

	// Save inserts a new media item and fills in its ID.
	Save(ctx context.Context, item *MediaItem) error
}

// OfficerReader provides read-only access to officer identities.
type OfficerReader interface {
	// Get retrieves an officer by ID.
	Get(ctx context.Context, id int64) (*Officer, error)
	// ListActive returns all officers that have not been merged away.
	ListActive(ctx context.Context) ([]Officer, error)
	// ListEmbeddings returns embeddings of all active officers that have one,
	// in creation order. Used by the matchers.
	ListEmbeddings(ctx context.Context) ([]OfficerEmbedding, error)
	// Count returns the number of active officers.
	Count(ctx context.Context) (int, error)
}

// OfficerWriter provides write access to officer identities.
type OfficerWriter interface {
	OfficerReader

	// Save inserts a new officer (ID filled in) or updates an existing one.
	Save(ctx context.Context, officer *Officer) error
	// SetMergeState marks an officer as merged into another.
	SetMergeState(ctx context.Context, officerID, primaryID int64, confidence float64) error
	// ClearMergeState restores an officer to an independent identity.
	ClearMergeState(ctx context.Context, officerID int64) error
}

// AppearanceReader provides read access to officer sightings.
type AppearanceReader interface {
	// ListByOfficer returns appearances of an officer. When includeMerged is
	// true, appearances of officers merged into it are included as well; they
	// stay attributed to their original officer IDs.
	ListByOfficer(ctx context.Context, officerID int64, includeMerged bool) ([]OfficerAppearance, error)
	// CountByOfficer counts appearances, optionally across merged-in officers.
	CountByOfficer(ctx context.Context, officerID int64, includeMerged bool) (int, error)
	// ListByMedia returns all appearances detected in one media item.
	ListByMedia(ctx context.Context, mediaItemID int64) ([]OfficerAppearance, error)
}

// SightingWriter commits an officer and its new appearance as a unit.
// A sighting must never exist without its owning officer, nor an officer be
// left behind after a partially processed sighting.
type SightingWriter interface {
	AppearanceReader

	// SaveSighting persists the officer (insert or update) and the appearance
	// atomically. The appearance's OfficerID is filled in from the officer.
	SaveSighting(ctx context.Context, officer *Officer, appearance *OfficerAppearance) error
}

// MergeReader provides read access to the merge audit trail.
type MergeReader interface {
	// GetMerge retrieves a merge audit record by ID.
	GetMerge(ctx context.Context, id int64) (*OfficerMerge, error)
	// ListMerges returns all merge records involving an officer, newest first.
	ListMerges(ctx context.Context, officerID int64) ([]OfficerMerge, error)
}

// MergeWriter provides write access to the merge audit trail.
type MergeWriter interface {
	MergeReader

	// CreateMerge appends an immutable merge audit record and fills in its ID.
	CreateMerge(ctx context.Context, merge *OfficerMerge) error
	// MarkUnmerged flips the reversal flags on a merge record. The original
	// confidence and timestamp are never modified.
	MarkUnmerged(ctx context.Context, id int64, actor string) error
}
