package repository

import (
	"context"
	"fmt"

	"fauxto-booth-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BoothRepository handles database operations for booths
type BoothRepository struct {
	db *pgxpool.Pool
}

// NewBoothRepository creates a new booth repository
func NewBoothRepository(db *pgxpool.Pool) *BoothRepository {
	return &BoothRepository{db: db}
}

const boothColumns = `slug, display_name, description, ideal_member_size, single_upload,
	backdrop_path, backdrop_status, display_status, uploaded_count, fauxto_count,
	inflight_count, created_at`

func scanBooth(row pgx.Row) (*models.Booth, error) {
	var b models.Booth
	err := row.Scan(
		&b.Slug, &b.DisplayName, &b.Description, &b.IdealMemberSize, &b.SingleUpload,
		&b.BackdropPath, &b.BackdropStatus, &b.DisplayStatus, &b.UploadedCount,
		&b.FauxtoCount, &b.InflightCount, &b.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan booth: %w", err)
	}
	return &b, nil
}

// Create creates a new booth
func (r *BoothRepository) Create(ctx context.Context, b *models.Booth) error {
	query := `
		INSERT INTO booths (slug, display_name, description, ideal_member_size,
			single_upload, backdrop_status, display_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		b.Slug, b.DisplayName, b.Description, b.IdealMemberSize,
		b.SingleUpload, b.BackdropStatus, b.DisplayStatus, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booth: %w", err)
	}
	return nil
}

// GetBySlug retrieves a booth by slug
func (r *BoothRepository) GetBySlug(ctx context.Context, slug string) (*models.Booth, error) {
	query := `SELECT ` + boothColumns + ` FROM booths WHERE slug = $1`
	return scanBooth(r.db.QueryRow(ctx, query, slug))
}

// ListAll retrieves every booth, newest first
func (r *BoothRepository) ListAll(ctx context.Context) ([]*models.Booth, error) {
	query := `SELECT ` + boothColumns + ` FROM booths ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list booths: %w", err)
	}
	defer rows.Close()

	var booths []*models.Booth
	for rows.Next() {
		b, err := scanBooth(rows)
		if err != nil {
			return nil, err
		}
		booths = append(booths, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating booths: %w", err)
	}
	return booths, nil
}

// Delete deletes a booth; uploads, fauxtos and memberships cascade
func (r *BoothRepository) Delete(ctx context.Context, slug string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM booths WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("failed to delete booth: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDisplayStatus updates the human-readable status line
func (r *BoothRepository) SetDisplayStatus(ctx context.Context, slug, status string) error {
	_, err := r.db.Exec(ctx, `UPDATE booths SET display_status = $1 WHERE slug = $2`, status, slug)
	if err != nil {
		return fmt.Errorf("failed to set display status: %w", err)
	}
	return nil
}

// SetBackdropGenerating flips the backdrop status to generating
func (r *BoothRepository) SetBackdropGenerating(ctx context.Context, slug string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE booths SET backdrop_status = $1 WHERE slug = $2`,
		models.BackdropGenerating, slug)
	if err != nil {
		return fmt.Errorf("failed to mark backdrop generating: %w", err)
	}
	return nil
}

// SetBackdropReady stores the generated backdrop path and marks it ready
func (r *BoothRepository) SetBackdropReady(ctx context.Context, slug, path string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE booths SET backdrop_path = $1, backdrop_status = $2 WHERE slug = $3`,
		path, models.BackdropReady, slug)
	if err != nil {
		return fmt.Errorf("failed to set backdrop: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetIdealMemberSize updates the desired group size
func (r *BoothRepository) SetIdealMemberSize(ctx context.Context, slug string, size int) error {
	result, err := r.db.Exec(ctx,
		`UPDATE booths SET ideal_member_size = $1 WHERE slug = $2`, size, slug)
	if err != nil {
		return fmt.Errorf("failed to set ideal member size: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementUploadedCount bumps the booth's upload counter
func (r *BoothRepository) IncrementUploadedCount(ctx context.Context, slug string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE booths SET uploaded_count = uploaded_count + 1 WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("failed to increment uploaded count: %w", err)
	}
	return nil
}

// AddInflight adjusts the in-flight composite counter and returns the new
// value. The counter never goes below zero.
func (r *BoothRepository) AddInflight(ctx context.Context, slug string, delta int) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`UPDATE booths SET inflight_count = GREATEST(inflight_count + $1, 0)
		 WHERE slug = $2 RETURNING inflight_count`,
		delta, slug).Scan(&count)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to adjust inflight count: %w", err)
	}
	return count, nil
}

// IncrementFauxtoCount bumps the booth's fauxto counter
func (r *BoothRepository) IncrementFauxtoCount(ctx context.Context, slug string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE booths SET fauxto_count = fauxto_count + 1 WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("failed to increment fauxto count: %w", err)
	}
	return nil
}

// SetFauxtoCount overwrites the fauxto counter, used after deletions
func (r *BoothRepository) SetFauxtoCount(ctx context.Context, slug string, count int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE booths SET fauxto_count = $1 WHERE slug = $2`, count, slug)
	if err != nil {
		return fmt.Errorf("failed to set fauxto count: %w", err)
	}
	return nil
}
