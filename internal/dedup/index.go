// Package dedup implements the duplicate-detection gate for uploaded media:
// an exact pass over content hashes followed by a bounded perceptual-hash
// similarity scan for images.
package dedup

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/copwatch-uk/copwatch/internal/database"
	"github.com/copwatch-uk/copwatch/internal/fingerprint"
)

// Result is the outcome of a duplicate check for one upload.
type Result struct {
	IsDuplicate bool                   `json:"is_duplicate"`
	Type        database.DuplicateType `json:"duplicate_type,omitempty"`
	OriginalID  int64                  `json:"original_id,omitempty"`
	Distance    int                    `json:"distance,omitempty"` // bit distance, similar matches only
}

// Options configures a similarity index.
type Options struct {
	// Threshold is the maximum Hamming distance (bits) for a similar match.
	Threshold int
	// BatchSize is how many candidates to load from the store per batch.
	BatchSize int
	// ScanCap is the hard limit on candidates examined per check. Once it is
	// reached the scan stops and no match is reported; duplicate detection is
	// best-effort past this point.
	ScanCap int
}

// Index answers "have we seen this content before?" against the stored
// fingerprints of prior non-duplicate media items.
type Index struct {
	media     database.MediaReader
	threshold int
	batchSize int
	scanCap   int
}

// NewIndex creates a similarity index over the given media store.
// Zero option fields fall back to the package defaults.
func NewIndex(media database.MediaReader, opts Options) *Index {
	if opts.Threshold <= 0 {
		opts.Threshold = database.DefaultPerceptualThreshold
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = database.DefaultScanBatchSize
	}
	if opts.ScanCap <= 0 {
		opts.ScanCap = database.DefaultScanCap
	}
	return &Index{
		media:     media,
		threshold: opts.Threshold,
		batchSize: opts.BatchSize,
		scanCap:   opts.ScanCap,
	}
}

// FindDuplicate checks an upload's fingerprints against prior records.
// An exact content-hash match has the highest priority and short-circuits
// the similarity scan. The similarity pass only applies to images with a
// perceptual hash; the first candidate within the threshold wins.
func (ix *Index) FindDuplicate(ctx context.Context, fp *fingerprint.Fingerprint, mediaType database.MediaType) (*Result, error) {
	if fp == nil || fp.ContentHash == "" {
		return &Result{}, nil
	}

	// Exact pass: byte-identical content.
	original, err := ix.media.FindByContentHash(ctx, fp.ContentHash)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("exact duplicate lookup: %w", err)
	}
	if original != nil {
		return &Result{
			IsDuplicate: true,
			Type:        database.DuplicateExact,
			OriginalID:  original.ID,
		}, nil
	}

	// Similarity pass: images only, and only when a perceptual hash exists.
	if mediaType != database.MediaTypeImage || fp.PerceptualHash == "" {
		return &Result{}, nil
	}

	return ix.scanSimilar(ctx, fp.PerceptualHash)
}

// scanSimilar streams candidate perceptual hashes in bounded batches and
// returns the first one within the bit-distance threshold.
func (ix *Index) scanSimilar(ctx context.Context, phash string) (*Result, error) {
	var afterID int64
	scanned := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates, err := ix.media.ListPerceptualCandidates(ctx, afterID, ix.batchSize)
		if err != nil {
			return nil, fmt.Errorf("listing perceptual candidates: %w", err)
		}
		if len(candidates) == 0 {
			return &Result{}, nil
		}

		for _, c := range candidates {
			afterID = c.MediaItemID
			if c.PerceptualHash == "" {
				continue
			}

			distance, err := fingerprint.HammingDistanceHex(phash, c.PerceptualHash)
			if err != nil {
				// Cannot compare is not "definitely different"; skip the
				// candidate rather than inventing a distance.
				log.WithFields(log.Fields{
					"media_id": c.MediaItemID,
					"error":    err,
				}).Debug("Skipping incomparable perceptual hash")
				continue
			}

			if distance <= ix.threshold {
				return &Result{
					IsDuplicate: true,
					Type:        database.DuplicateSimilar,
					OriginalID:  c.MediaItemID,
					Distance:    distance,
				}, nil
			}

			scanned++
			if scanned >= ix.scanCap {
				log.WithFields(log.Fields{
					"scanned": scanned,
					"cap":     ix.scanCap,
				}).Warn("Similarity scan cap reached; duplicate detection is best-effort past this point")
				return &Result{}, nil
			}
		}
	}
}
