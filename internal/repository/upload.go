package repository

import (
	"context"
	"fmt"

	"fauxto-booth-backend/internal/models"
	"fauxto-booth-backend/internal/snap"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UploadRepository handles database operations for the upload ledger
type UploadRepository struct {
	db *pgxpool.Pool
}

// NewUploadRepository creates a new upload repository
func NewUploadRepository(db *pgxpool.Pool) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create appends an upload to the ledger
func (r *UploadRepository) Create(ctx context.Context, u *models.Upload) error {
	query := `
		INSERT INTO uploads (id, booth_slug, identity, file_path, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, u.ID, u.BoothSlug, u.Identity, u.FilePath, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}
	return nil
}

// GetByID retrieves an upload by ID
func (r *UploadRepository) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	query := `
		SELECT id, booth_slug, identity, file_path, created_at
		FROM uploads
		WHERE id = $1
	`
	var u models.Upload
	err := r.db.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.BoothSlug, &u.Identity, &u.FilePath, &u.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return &u, nil
}

// ListByBooth retrieves all uploads for a booth, oldest first
func (r *UploadRepository) ListByBooth(ctx context.Context, slug string) ([]*models.Upload, error) {
	query := `
		SELECT id, booth_slug, identity, file_path, created_at
		FROM uploads
		WHERE booth_slug = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*models.Upload
	for rows.Next() {
		var u models.Upload
		if err := rows.Scan(&u.ID, &u.BoothSlug, &u.Identity, &u.FilePath, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating uploads: %w", err)
	}
	return uploads, nil
}

// Delete removes one upload; its memberships cascade
func (r *UploadRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// HasIdentityUpload checks whether an identity already uploaded to a booth
func (r *UploadRepository) HasIdentityUpload(ctx context.Context, slug, identity string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM uploads WHERE booth_slug = $1 AND identity = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, slug, identity).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check identity upload: %w", err)
	}
	return exists, nil
}

// AwaitingCount returns distinct uploaders minus distinct identities that
// already appear in some fauxto of the booth.
func (r *UploadRepository) AwaitingCount(ctx context.Context, slug string) (int, error) {
	query := `
		SELECT
			(SELECT COUNT(DISTINCT identity) FROM uploads WHERE booth_slug = $1)
			-
			(SELECT COUNT(DISTINCT fm.identity)
			 FROM fauxto_members fm
			 JOIN fauxtos f ON f.id = fm.fauxto_id
			 WHERE f.booth_slug = $1)
	`
	var awaiting int
	if err := r.db.QueryRow(ctx, query, slug).Scan(&awaiting); err != nil {
		return 0, fmt.Errorf("failed to count awaiting uploaders: %w", err)
	}
	return awaiting, nil
}

// MemberCandidates returns every upload of the booth annotated with its own
// usage count and its identity's fauxto appearances. Computed fresh at
// selection time; the fairness ordering itself lives in the snap package.
func (r *UploadRepository) MemberCandidates(ctx context.Context, slug string) ([]snap.Candidate, error) {
	query := `
		SELECT
			u.id,
			u.identity,
			u.file_path,
			u.created_at,
			COUNT(fm.id) AS usage_count,
			(SELECT COUNT(*)
			 FROM fauxto_members fm2
			 JOIN fauxtos f2 ON f2.id = fm2.fauxto_id
			 WHERE fm2.identity = u.identity AND f2.booth_slug = u.booth_slug
			) AS identity_usage
		FROM uploads u
		LEFT JOIN fauxto_members fm ON fm.upload_id = u.id
		WHERE u.booth_slug = $1
		GROUP BY u.id
		ORDER BY usage_count ASC, u.created_at ASC
	`
	rows, err := r.db.Query(ctx, query, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to query member candidates: %w", err)
	}
	defer rows.Close()

	var candidates []snap.Candidate
	for rows.Next() {
		var c snap.Candidate
		if err := rows.Scan(&c.UploadID, &c.Identity, &c.FilePath, &c.CreatedAt,
			&c.UsageCount, &c.IdentityUsage); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}
	return candidates, nil
}
