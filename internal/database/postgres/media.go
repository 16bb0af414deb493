package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/copwatch-uk/copwatch/internal/database"
)

// MediaRepository provides PostgreSQL-backed media item storage.
type MediaRepository struct {
	pool *Pool
}

// NewMediaRepository creates a new PostgreSQL media repository.
func NewMediaRepository(pool *Pool) *MediaRepository {
	return &MediaRepository{pool: pool}
}

const mediaColumns = `id, uid, file_name, media_type, content_hash, perceptual_hash,
	file_size, source, is_duplicate, duplicate_of_id, duplicate_type, uploaded_at`

// Get retrieves a media item by ID.
func (r *MediaRepository) Get(ctx context.Context, id int64) (*database.MediaItem, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+mediaColumns+" FROM media_items WHERE id = $1", id)
	return scanMediaItem(row)
}

// GetByUID retrieves a media item by its public UID.
func (r *MediaRepository) GetByUID(ctx context.Context, uid string) (*database.MediaItem, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+mediaColumns+" FROM media_items WHERE uid = $1", uid)
	return scanMediaItem(row)
}

// FindByContentHash returns the first non-duplicate item with the given
// content hash, or nil if none exists.
func (r *MediaRepository) FindByContentHash(ctx context.Context, contentHash string) (*database.MediaItem, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+mediaColumns+`
		FROM media_items
		WHERE content_hash = $1 AND NOT is_duplicate
		ORDER BY id
		LIMIT 1
	`, contentHash)

	item, err := scanMediaItem(row)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	return item, err
}

// ListPerceptualCandidates returns a batch of perceptual hashes from
// non-duplicate image items, ordered by ID for stable pagination.
func (r *MediaRepository) ListPerceptualCandidates(
	ctx context.Context, afterID int64, limit int,
) ([]database.PerceptualCandidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, perceptual_hash
		FROM media_items
		WHERE id > $1 AND NOT is_duplicate AND media_type = $2 AND perceptual_hash != ''
		ORDER BY id
		LIMIT $3
	`, afterID, database.MediaTypeImage, limit)
	if err != nil {
		return nil, fmt.Errorf("query perceptual candidates: %w", err)
	}
	defer rows.Close()

	var candidates []database.PerceptualCandidate
	for rows.Next() {
		var c database.PerceptualCandidate
		if err := rows.Scan(&c.MediaItemID, &c.PerceptualHash); err != nil {
			return nil, fmt.Errorf("scan perceptual candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate perceptual candidates: %w", err)
	}
	return candidates, nil
}

// Count returns the total number of media items stored.
func (r *MediaRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM media_items").Scan(&count); err != nil {
		return 0, fmt.Errorf("count media items: %w", err)
	}
	return count, nil
}

// Save inserts a new media item and fills in its ID.
func (r *MediaRepository) Save(ctx context.Context, item *database.MediaItem) error {
	var duplicateOf sql.NullInt64
	if item.DuplicateOfID != nil {
		duplicateOf = sql.NullInt64{Int64: *item.DuplicateOfID, Valid: true}
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO media_items (uid, file_name, media_type, content_hash, perceptual_hash,
		                         file_size, source, is_duplicate, duplicate_of_id, duplicate_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, uploaded_at
	`,
		item.UID,
		item.FileName,
		item.MediaType,
		item.ContentHash,
		item.PerceptualHash,
		item.FileSize,
		item.Source,
		item.IsDuplicate,
		duplicateOf,
		item.DuplicateType,
	).Scan(&item.ID, &item.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert media item: %w", err)
	}
	return nil
}

func scanMediaItem(row *sql.Row) (*database.MediaItem, error) {
	var item database.MediaItem
	var duplicateOf sql.NullInt64
	var duplicateType sql.NullString

	err := row.Scan(
		&item.ID,
		&item.UID,
		&item.FileName,
		&item.MediaType,
		&item.ContentHash,
		&item.PerceptualHash,
		&item.FileSize,
		&item.Source,
		&item.IsDuplicate,
		&duplicateOf,
		&duplicateType,
		&item.UploadedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan media item: %w", err)
	}

	// CHAR(64) comes back space-padded on some drivers.
	item.ContentHash = trimSpaceRight(item.ContentHash)
	if duplicateOf.Valid {
		item.DuplicateOfID = &duplicateOf.Int64
	}
	if duplicateType.Valid {
		item.DuplicateType = database.DuplicateType(duplicateType.String)
	}
	return &item, nil
}

func trimSpaceRight(s string) string {
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

// Verify interface compliance.
var _ database.MediaWriter = (*MediaRepository)(nil)
