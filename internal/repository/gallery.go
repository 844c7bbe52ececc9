package repository

import (
	"context"
	"fmt"

	"fauxto-booth-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// GalleryRepository handles the denormalized per-identity views
type GalleryRepository struct {
	db *pgxpool.Pool
}

// NewGalleryRepository creates a new gallery repository
func NewGalleryRepository(db *pgxpool.Pool) *GalleryRepository {
	return &GalleryRepository{db: db}
}

// UpsertFauxto records a fauxto in an identity's gallery. Re-adding an
// already-present fauxto overwrites in place, never duplicates.
func (r *GalleryRepository) UpsertFauxto(ctx context.Context, g *models.GalleryFauxto) error {
	query := `
		INSERT INTO gallery_fauxtos (identity, fauxto_id, booth_slug, booth_display_name, file_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity, fauxto_id) DO UPDATE
		SET file_path = EXCLUDED.file_path,
		    booth_display_name = EXCLUDED.booth_display_name
	`
	_, err := r.db.Exec(ctx, query,
		g.Identity, g.FauxtoID, g.BoothSlug, g.BoothDisplayName, g.FilePath, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert gallery fauxto: %w", err)
	}
	return nil
}

// UpsertBooth records that an identity contributed to a booth
func (r *GalleryRepository) UpsertBooth(ctx context.Context, identity, boothSlug string) error {
	query := `
		INSERT INTO gallery_booths (identity, booth_slug)
		VALUES ($1, $2)
		ON CONFLICT (identity, booth_slug) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, identity, boothSlug); err != nil {
		return fmt.Errorf("failed to upsert gallery booth: %w", err)
	}
	return nil
}

// RemoveFauxto retracts a deleted fauxto from every gallery it appears in
func (r *GalleryRepository) RemoveFauxto(ctx context.Context, fauxtoID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM gallery_fauxtos WHERE fauxto_id = $1`, fauxtoID)
	if err != nil {
		return fmt.Errorf("failed to remove gallery fauxto: %w", err)
	}
	return nil
}

// RemoveBooth retracts a deleted booth from every identity's booth list
func (r *GalleryRepository) RemoveBooth(ctx context.Context, boothSlug string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM gallery_booths WHERE booth_slug = $1`, boothSlug)
	if err != nil {
		return fmt.Errorf("failed to remove gallery booth: %w", err)
	}
	return nil
}

// ListFauxtos returns an identity's fauxtos, most recent first
func (r *GalleryRepository) ListFauxtos(ctx context.Context, identity string) ([]*models.GalleryFauxto, error) {
	query := `
		SELECT identity, fauxto_id, booth_slug, booth_display_name, file_path, created_at
		FROM gallery_fauxtos
		WHERE identity = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list gallery fauxtos: %w", err)
	}
	defer rows.Close()

	var fauxtos []*models.GalleryFauxto
	for rows.Next() {
		var g models.GalleryFauxto
		if err := rows.Scan(&g.Identity, &g.FauxtoID, &g.BoothSlug,
			&g.BoothDisplayName, &g.FilePath, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan gallery fauxto: %w", err)
		}
		fauxtos = append(fauxtos, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gallery fauxtos: %w", err)
	}
	return fauxtos, nil
}

// ListBooths returns the booths an identity has contributed to
func (r *GalleryRepository) ListBooths(ctx context.Context, identity string) ([]string, error) {
	query := `
		SELECT booth_slug FROM gallery_booths
		WHERE identity = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list gallery booths: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan gallery booth: %w", err)
		}
		slugs = append(slugs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gallery booths: %w", err)
	}
	return slugs, nil
}

// SetPushToken stores an identity's APNs device token
func (r *GalleryRepository) SetPushToken(ctx context.Context, identity, deviceToken string) error {
	query := `
		INSERT INTO push_tokens (identity, device_token, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (identity) DO UPDATE
		SET device_token = EXCLUDED.device_token, updated_at = now()
	`
	if _, err := r.db.Exec(ctx, query, identity, deviceToken); err != nil {
		return fmt.Errorf("failed to set push token: %w", err)
	}
	return nil
}

// PushTokens returns the device tokens registered for the given identities
func (r *GalleryRepository) PushTokens(ctx context.Context, identities []string) (map[string]string, error) {
	if len(identities) == 0 {
		return map[string]string{}, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT identity, device_token FROM push_tokens WHERE identity = ANY($1)`,
		identities)
	if err != nil {
		return nil, fmt.Errorf("failed to list push tokens: %w", err)
	}
	defer rows.Close()

	tokens := make(map[string]string)
	for rows.Next() {
		var identity, token string
		if err := rows.Scan(&identity, &token); err != nil {
			return nil, fmt.Errorf("failed to scan push token: %w", err)
		}
		tokens[identity] = token
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating push tokens: %w", err)
	}
	return tokens, nil
}
