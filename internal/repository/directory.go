package repository

import (
	"context"
	"fmt"

	"fauxto-booth-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DirectoryRepository handles database operations for the booth registry
type DirectoryRepository struct {
	db *pgxpool.Pool
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *pgxpool.Pool) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// Insert records a new directory entry
func (r *DirectoryRepository) Insert(ctx context.Context, e *models.DirectoryEntry) error {
	query := `
		INSERT INTO directory (slug, display_name, created_at)
		VALUES ($1, $2, $3)
	`
	_, err := r.db.Exec(ctx, query, e.Slug, e.DisplayName, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert directory entry: %w", err)
	}
	return nil
}

// ListSlugsWithBase returns every slug equal to base or shaped base-N,
// including soft-deleted entries so a retired suffix is never reissued.
func (r *DirectoryRepository) ListSlugsWithBase(ctx context.Context, base string) ([]string, error) {
	query := `
		SELECT slug FROM directory
		WHERE slug = $1 OR slug LIKE $1 || '-%'
	`
	rows, err := r.db.Query(ctx, query, base)
	if err != nil {
		return nil, fmt.Errorf("failed to list slugs: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan slug: %w", err)
		}
		slugs = append(slugs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slugs: %w", err)
	}
	return slugs, nil
}

// Latest returns the newest directory entries, most recent first
func (r *DirectoryRepository) Latest(ctx context.Context, limit int) ([]*models.DirectoryEntry, error) {
	query := `
		SELECT slug, display_name, created_at
		FROM directory
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest booths: %w", err)
	}
	defer rows.Close()

	var entries []*models.DirectoryEntry
	for rows.Next() {
		var e models.DirectoryEntry
		if err := rows.Scan(&e.Slug, &e.DisplayName, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan directory entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating directory entries: %w", err)
	}
	return entries, nil
}

// Delete retires a directory entry. The row is kept so its slug suffix
// stays burned for future collision resolution.
func (r *DirectoryRepository) Delete(ctx context.Context, slug string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE directory SET deleted_at = now() WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("failed to delete directory entry: %w", err)
	}
	return nil
}
