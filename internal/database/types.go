package database

import (
	"encoding/json"
	"time"
)

// MediaType distinguishes still images from video footage.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// DuplicateType describes how a media item was identified as a duplicate.
type DuplicateType string

const (
	// DuplicateExact means byte-identical content (same SHA-256).
	DuplicateExact DuplicateType = "exact"
	// DuplicateSimilar means perceptually similar content (pHash within threshold).
	DuplicateSimilar DuplicateType = "similar"
)

// MediaItem represents one uploaded file (image or video) with its fingerprints.
// Duplicates keep their own hashes stored so future exact-match lookups still
// work, but they are excluded from the candidate pool used for similarity scans.
type MediaItem struct {
	ID             int64
	UID            string // public identifier (UUID)
	FileName       string
	MediaType      MediaType
	ContentHash    string // SHA-256 hex digest of the file bytes
	PerceptualHash string // 64-bit pHash hex digest, empty for undecodable content
	FileSize       int64
	Source         string // where the footage came from (upload, import, URL)
	IsDuplicate    bool
	DuplicateOfID  *int64
	DuplicateType  DuplicateType
	UploadedAt     time.Time
}

// Officer is a long-lived identity built up from repeated sightings.
// Automatically detected fields can be superseded by manual overrides;
// consumers must go through the Effective* accessors rather than reading
// the raw columns.
type Officer struct {
	ID             int64
	BadgeNumber    string
	ShoulderNumber string
	Force          string
	Rank           string
	Name           string

	// Manual overrides set by an operator. They always win over detected values.
	BadgeOverride string
	ForceOverride string
	RankOverride  string
	NameOverride  string

	// Face embedding owned exclusively by this officer. Replaced wholesale on
	// re-embedding, never averaged with the old vector.
	Embedding      []float32
	EmbeddingModel string
	EmbeddingDim   int

	// Merge state. A merged officer stays in the table for audit and possible
	// reversal; it is simply no longer part of the active pool.
	MergedIntoID    *int64
	MergeConfidence *float64
	MergedAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsMerged reports whether this officer has been folded into another identity.
func (o *Officer) IsMerged() bool {
	return o.MergedIntoID != nil
}

// HasEmbedding reports whether the officer carries a usable face embedding.
func (o *Officer) HasEmbedding() bool {
	return len(o.Embedding) > 0
}

// EffectiveBadge returns the badge number with manual overrides applied.
func (o *Officer) EffectiveBadge() string {
	if o.BadgeOverride != "" {
		return o.BadgeOverride
	}
	return o.BadgeNumber
}

// EffectiveForce returns the force name with manual overrides applied.
func (o *Officer) EffectiveForce() string {
	if o.ForceOverride != "" {
		return o.ForceOverride
	}
	return o.Force
}

// EffectiveRank returns the rank with manual overrides applied.
func (o *Officer) EffectiveRank() string {
	if o.RankOverride != "" {
		return o.RankOverride
	}
	return o.Rank
}

// EffectiveName returns the name with manual overrides applied.
func (o *Officer) EffectiveName() string {
	if o.NameOverride != "" {
		return o.NameOverride
	}
	return o.Name
}

// OfficerAppearance is one sighting of one officer in one media item.
// It is owned by exactly one officer and one media item and is never shared.
type OfficerAppearance struct {
	ID          int64
	OfficerID   int64
	MediaItemID int64

	// Position within the media item. FrameNumber is 0 for still images.
	FrameNumber int
	FrameTime   float64 // seconds from start, 0 for still images

	// Raw detector outputs for this sighting.
	BBox     []float64 // [x1, y1, x2, y2] in pixel coordinates
	DetScore float64   // face detector confidence

	OCRBadge     string
	OCRBadgeConf float64
	OCRName      string
	OCRNameConf  float64

	// Composite confidence and the reconciliation breakdown that produced it.
	Confidence float64
	Breakdown  json.RawMessage

	CreatedAt time.Time
}

// OfficerMerge is an append-only audit record of one merge decision.
// The row itself is immutable once written; a reversal only flips the
// Unmerged fields, it never touches the original confidence or timestamp.
type OfficerMerge struct {
	ID         int64
	PrimaryID  int64
	MergedID   int64
	Confidence float64
	Automatic  bool
	Actor      string
	CreatedAt  time.Time

	Unmerged   bool
	UnmergedAt *time.Time
	UnmergedBy string
}

// OfficerEmbedding is the slim projection used by the matchers: just enough
// to run a nearest-neighbour scan without loading full officer rows.
type OfficerEmbedding struct {
	OfficerID int64
	Embedding []float32
}

// PerceptualCandidate is the slim projection used by the duplicate scanner.
type PerceptualCandidate struct {
	MediaItemID    int64
	PerceptualHash string
}
