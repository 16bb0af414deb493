package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/copwatch-uk/copwatch/internal/database"
	"github.com/copwatch-uk/copwatch/internal/facematch"
)

// OfficerRepository provides PostgreSQL-backed officer and appearance storage.
type OfficerRepository struct {
	pool *Pool
}

// NewOfficerRepository creates a new PostgreSQL officer repository.
func NewOfficerRepository(pool *Pool) *OfficerRepository {
	return &OfficerRepository{pool: pool}
}

const officerColumns = `id, badge_number, shoulder_number, force, rank, name,
	badge_override, force_override, rank_override, name_override,
	embedding, embedding_model, embedding_dim,
	merged_into_id, merge_confidence, merged_at, created_at, updated_at`

// Get retrieves an officer by ID.
func (r *OfficerRepository) Get(ctx context.Context, id int64) (*database.Officer, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+officerColumns+" FROM officers WHERE id = $1", id)
	officer, err := scanOfficer(row)
	if err != nil {
		return nil, err
	}
	return officer, nil
}

// ListActive returns all officers that have not been merged away, in ID order.
func (r *OfficerRepository) ListActive(ctx context.Context) ([]database.Officer, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+officerColumns+" FROM officers WHERE merged_into_id IS NULL ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query active officers: %w", err)
	}
	defer rows.Close()

	var officers []database.Officer
	for rows.Next() {
		officer, err := scanOfficer(rows)
		if err != nil {
			return nil, err
		}
		officers = append(officers, *officer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate officers: %w", err)
	}
	return officers, nil
}

// ListEmbeddings returns embeddings of active officers in creation order.
func (r *OfficerRepository) ListEmbeddings(ctx context.Context) ([]database.OfficerEmbedding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, embedding
		FROM officers
		WHERE merged_into_id IS NULL AND embedding IS NOT NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query officer embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []database.OfficerEmbedding
	for rows.Next() {
		var e database.OfficerEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&e.OfficerID, &vec); err != nil {
			return nil, fmt.Errorf("scan officer embedding: %w", err)
		}
		e.Embedding = vec.Slice()
		embeddings = append(embeddings, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate officer embeddings: %w", err)
	}
	return embeddings, nil
}

// Count returns the number of active officers.
func (r *OfficerRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM officers WHERE merged_into_id IS NULL").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count officers: %w", err)
	}
	return count, nil
}

// SearchByName returns active officers whose name matches after normalization
// (lowercase, no diacritics, dashes as spaces). Both detected and overridden
// names are searched.
func (r *OfficerRepository) SearchByName(ctx context.Context, name string) ([]database.Officer, error) {
	normalized := facematch.NormalizeName(name)

	rows, err := r.pool.Query(ctx, `
		SELECT `+officerColumns+`
		FROM officers
		WHERE merged_into_id IS NULL
		AND (LOWER(REPLACE(unaccent(name), '-', ' ')) = $1
		     OR LOWER(REPLACE(unaccent(name_override), '-', ' ')) = $1)
		ORDER BY id
	`, normalized)
	if err != nil {
		return nil, fmt.Errorf("query officers by name: %w", err)
	}
	defer rows.Close()

	var officers []database.Officer
	for rows.Next() {
		officer, err := scanOfficer(rows)
		if err != nil {
			return nil, err
		}
		officers = append(officers, *officer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate officers: %w", err)
	}
	return officers, nil
}

// Save inserts a new officer (ID filled in) or updates an existing one.
func (r *OfficerRepository) Save(ctx context.Context, officer *database.Officer) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveOfficerTx(ctx, tx, officer); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit officer: %w", err)
	}
	return nil
}

func saveOfficerTx(ctx context.Context, tx *sql.Tx, officer *database.Officer) error {
	var embedding any
	if officer.HasEmbedding() {
		embedding = pgvector.NewVector(officer.Embedding)
	}

	if officer.ID == 0 {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO officers (badge_number, shoulder_number, force, rank, name,
			                      badge_override, force_override, rank_override, name_override,
			                      embedding, embedding_model, embedding_dim)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, created_at, updated_at
		`,
			officer.BadgeNumber,
			officer.ShoulderNumber,
			officer.Force,
			officer.Rank,
			officer.Name,
			officer.BadgeOverride,
			officer.ForceOverride,
			officer.RankOverride,
			officer.NameOverride,
			embedding,
			officer.EmbeddingModel,
			officer.EmbeddingDim,
		).Scan(&officer.ID, &officer.CreatedAt, &officer.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert officer: %w", err)
		}
		return nil
	}

	err := tx.QueryRowContext(ctx, `
		UPDATE officers SET
			badge_number = $1, shoulder_number = $2, force = $3, rank = $4, name = $5,
			badge_override = $6, force_override = $7, rank_override = $8, name_override = $9,
			embedding = $10, embedding_model = $11, embedding_dim = $12,
			updated_at = NOW()
		WHERE id = $13
		RETURNING updated_at
	`,
		officer.BadgeNumber,
		officer.ShoulderNumber,
		officer.Force,
		officer.Rank,
		officer.Name,
		officer.BadgeOverride,
		officer.ForceOverride,
		officer.RankOverride,
		officer.NameOverride,
		embedding,
		officer.EmbeddingModel,
		officer.EmbeddingDim,
		officer.ID,
	).Scan(&officer.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return database.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update officer %d: %w", officer.ID, err)
	}
	return nil
}

// SetMergeState marks an officer as merged into another.
func (r *OfficerRepository) SetMergeState(ctx context.Context, officerID, primaryID int64, confidence float64) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE officers SET
			merged_into_id = $1, merge_confidence = $2, merged_at = NOW(), updated_at = NOW()
		WHERE id = $3
	`, primaryID, confidence, officerID)
	if err != nil {
		return fmt.Errorf("set merge state: %w", err)
	}
	return requireRowAffected(result)
}

// ClearMergeState restores an officer to an independent identity.
func (r *OfficerRepository) ClearMergeState(ctx context.Context, officerID int64) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE officers SET
			merged_into_id = NULL, merge_confidence = NULL, merged_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, officerID)
	if err != nil {
		return fmt.Errorf("clear merge state: %w", err)
	}
	return requireRowAffected(result)
}

// SaveSighting persists the officer and the appearance in one transaction.
func (r *OfficerRepository) SaveSighting(
	ctx context.Context, officer *database.Officer, appearance *database.OfficerAppearance,
) error {
	if officer == nil || appearance == nil {
		return errors.New("sighting requires both officer and appearance")
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveOfficerTx(ctx, tx, officer); err != nil {
		return err
	}

	appearance.OfficerID = officer.ID
	err = tx.QueryRowContext(ctx, `
		INSERT INTO officer_appearances (officer_id, media_item_id, frame_number, frame_time,
		                                 bbox, det_score, ocr_badge, ocr_badge_conf,
		                                 ocr_name, ocr_name_conf, confidence, breakdown)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`,
		appearance.OfficerID,
		appearance.MediaItemID,
		appearance.FrameNumber,
		appearance.FrameTime,
		pq.Array(appearance.BBox),
		appearance.DetScore,
		appearance.OCRBadge,
		appearance.OCRBadgeConf,
		appearance.OCRName,
		appearance.OCRNameConf,
		appearance.Confidence,
		nullableJSON(appearance.Breakdown),
	).Scan(&appearance.ID, &appearance.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appearance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sighting: %w", err)
	}
	return nil
}

// ListByOfficer returns appearances of an officer, optionally including
// appearances of officers merged into it.
func (r *OfficerRepository) ListByOfficer(
	ctx context.Context, officerID int64, includeMerged bool,
) ([]database.OfficerAppearance, error) {
	query := `
		SELECT ` + appearanceColumns + `
		FROM officer_appearances
		WHERE officer_id = $1
		ORDER BY id
	`
	if includeMerged {
		query = `
			SELECT ` + appearanceColumns + `
			FROM officer_appearances
			WHERE officer_id = $1
			   OR officer_id IN (SELECT id FROM officers WHERE merged_into_id = $1)
			ORDER BY id
		`
	}

	rows, err := r.pool.Query(ctx, query, officerID)
	if err != nil {
		return nil, fmt.Errorf("query appearances: %w", err)
	}
	defer rows.Close()

	return scanAppearances(rows)
}

// CountByOfficer counts appearances, optionally across merged-in officers.
func (r *OfficerRepository) CountByOfficer(ctx context.Context, officerID int64, includeMerged bool) (int, error) {
	query := "SELECT COUNT(*) FROM officer_appearances WHERE officer_id = $1"
	if includeMerged {
		query = `
			SELECT COUNT(*) FROM officer_appearances
			WHERE officer_id = $1
			   OR officer_id IN (SELECT id FROM officers WHERE merged_into_id = $1)
		`
	}

	var count int
	if err := r.pool.QueryRow(ctx, query, officerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count appearances: %w", err)
	}
	return count, nil
}

// ListByMedia returns all appearances detected in one media item.
func (r *OfficerRepository) ListByMedia(ctx context.Context, mediaItemID int64) ([]database.OfficerAppearance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appearanceColumns+`
		FROM officer_appearances
		WHERE media_item_id = $1
		ORDER BY id
	`, mediaItemID)
	if err != nil {
		return nil, fmt.Errorf("query appearances by media: %w", err)
	}
	defer rows.Close()

	return scanAppearances(rows)
}

const appearanceColumns = `id, officer_id, media_item_id, frame_number, frame_time,
	bbox, det_score, ocr_badge, ocr_badge_conf, ocr_name, ocr_name_conf,
	confidence, breakdown, created_at`

func scanAppearances(rows *sql.Rows) ([]database.OfficerAppearance, error) {
	var apps []database.OfficerAppearance
	for rows.Next() {
		var app database.OfficerAppearance
		var bbox pq.Float64Array
		var breakdown []byte

		err := rows.Scan(
			&app.ID,
			&app.OfficerID,
			&app.MediaItemID,
			&app.FrameNumber,
			&app.FrameTime,
			&bbox,
			&app.DetScore,
			&app.OCRBadge,
			&app.OCRBadgeConf,
			&app.OCRName,
			&app.OCRNameConf,
			&app.Confidence,
			&breakdown,
			&app.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan appearance: %w", err)
		}

		app.BBox = []float64(bbox)
		app.Breakdown = breakdown
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appearances: %w", err)
	}
	return apps, nil
}

func scanOfficer(scanner interface{ Scan(...any) error }) (*database.Officer, error) {
	var officer database.Officer
	var embedding sql.NullString
	var mergedInto sql.NullInt64
	var mergeConfidence sql.NullFloat64
	var mergedAt sql.NullTime

	err := scanner.Scan(
		&officer.ID,
		&officer.BadgeNumber,
		&officer.ShoulderNumber,
		&officer.Force,
		&officer.Rank,
		&officer.Name,
		&officer.BadgeOverride,
		&officer.ForceOverride,
		&officer.RankOverride,
		&officer.NameOverride,
		&embedding,
		&officer.EmbeddingModel,
		&officer.EmbeddingDim,
		&mergedInto,
		&mergeConfidence,
		&mergedAt,
		&officer.CreatedAt,
		&officer.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan officer: %w", err)
	}

	if embedding.Valid {
		var vec pgvector.Vector
		if err := vec.Parse(embedding.String); err != nil {
			return nil, fmt.Errorf("parse officer embedding: %w", err)
		}
		officer.Embedding = vec.Slice()
	}
	if mergedInto.Valid {
		officer.MergedIntoID = &mergedInto.Int64
	}
	if mergeConfidence.Valid {
		officer.MergeConfidence = &mergeConfidence.Float64
	}
	if mergedAt.Valid {
		t := mergedAt.Time
		officer.MergedAt = &t
	}
	return &officer, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// Verify interface compliance.
var _ database.OfficerWriter = (*OfficerRepository)(nil)
var _ database.SightingWriter = (*OfficerRepository)(nil)
