package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/copwatch-uk/copwatch/internal/database"
)

// MergeRepository provides PostgreSQL-backed merge audit storage.
type MergeRepository struct {
	pool *Pool
}

// NewMergeRepository creates a new PostgreSQL merge repository.
func NewMergeRepository(pool *Pool) *MergeRepository {
	return &MergeRepository{pool: pool}
}

const mergeColumns = `id, primary_id, merged_id, confidence, automatic, actor,
	created_at, unmerged, unmerged_at, unmerged_by`

// GetMerge retrieves a merge audit record by ID.
func (r *MergeRepository) GetMerge(ctx context.Context, id int64) (*database.OfficerMerge, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+mergeColumns+" FROM officer_merges WHERE id = $1", id)
	return scanMerge(row)
}

// ListMerges returns all merge records involving an officer, newest first.
func (r *MergeRepository) ListMerges(ctx context.Context, officerID int64) ([]database.OfficerMerge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+mergeColumns+`
		FROM officer_merges
		WHERE primary_id = $1 OR merged_id = $1
		ORDER BY id DESC
	`, officerID)
	if err != nil {
		return nil, fmt.Errorf("query merges: %w", err)
	}
	defer rows.Close()

	var merges []database.OfficerMerge
	for rows.Next() {
		merge, err := scanMerge(rows)
		if err != nil {
			return nil, err
		}
		merges = append(merges, *merge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merges: %w", err)
	}
	return merges, nil
}

// CreateMerge appends a merge audit record and fills in its ID.
func (r *MergeRepository) CreateMerge(ctx context.Context, merge *database.OfficerMerge) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO officer_merges (primary_id, merged_id, confidence, automatic, actor)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`,
		merge.PrimaryID,
		merge.MergedID,
		merge.Confidence,
		merge.Automatic,
		merge.Actor,
	).Scan(&merge.ID, &merge.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert merge record: %w", err)
	}
	return nil
}

// MarkUnmerged flips the reversal flags on a merge record. The original
// confidence and timestamp columns are never written.
func (r *MergeRepository) MarkUnmerged(ctx context.Context, id int64, actor string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE officer_merges SET unmerged = TRUE, unmerged_at = NOW(), unmerged_by = $1
		WHERE id = $2
	`, actor, id)
	if err != nil {
		return fmt.Errorf("mark unmerged: %w", err)
	}
	return requireRowAffected(result)
}

func scanMerge(scanner interface{ Scan(...any) error }) (*database.OfficerMerge, error) {
	var merge database.OfficerMerge
	var unmergedAt sql.NullTime
	var unmergedBy sql.NullString

	err := scanner.Scan(
		&merge.ID,
		&merge.PrimaryID,
		&merge.MergedID,
		&merge.Confidence,
		&merge.Automatic,
		&merge.Actor,
		&merge.CreatedAt,
		&merge.Unmerged,
		&unmergedAt,
		&unmergedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan merge record: %w", err)
	}

	if unmergedAt.Valid {
		t := unmergedAt.Time
		merge.UnmergedAt = &t
	}
	if unmergedBy.Valid {
		merge.UnmergedBy = unmergedBy.String
	}
	return &merge, nil
}

// Verify interface compliance.
var _ database.MergeWriter = (*MergeRepository)(nil)
