package repository

import (
	"context"
	"fmt"
	"time"

	"fauxto-booth-backend/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FauxtoRepository handles database operations for the composite ledger
type FauxtoRepository struct {
	db *pgxpool.Pool
}

// NewFauxtoRepository creates a new fauxto repository
func NewFauxtoRepository(db *pgxpool.Pool) *FauxtoRepository {
	return &FauxtoRepository{db: db}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Create reserves a new fauxto row; file_path stays null until the job completes
func (r *FauxtoRepository) Create(ctx context.Context, f *models.Fauxto) error {
	query := `
		INSERT INTO fauxtos (id, booth_slug, file_path, job_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, f.ID, f.BoothSlug, f.FilePath, f.JobID, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create fauxto: %w", err)
	}
	return nil
}

// GetByID retrieves a fauxto by ID
func (r *FauxtoRepository) GetByID(ctx context.Context, id string) (*models.Fauxto, error) {
	query := `
		SELECT id, booth_slug, file_path, job_id, created_at
		FROM fauxtos
		WHERE id = $1
	`
	var f models.Fauxto
	err := r.db.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.BoothSlug, &f.FilePath, &f.JobID, &f.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get fauxto: %w", err)
	}
	return &f, nil
}

// GetByJobID finds the fauxto reserved by a job instance, complete or not
func (r *FauxtoRepository) GetByJobID(ctx context.Context, jobID string) (*models.Fauxto, error) {
	query := `
		SELECT id, booth_slug, file_path, job_id, created_at
		FROM fauxtos
		WHERE job_id = $1
	`
	var f models.Fauxto
	err := r.db.QueryRow(ctx, query, jobID).Scan(
		&f.ID, &f.BoothSlug, &f.FilePath, &f.JobID, &f.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get fauxto by job: %w", err)
	}
	return &f, nil
}

// AddMember records one upload/identity membership for a fauxto. The unique
// constraints reject a duplicate upload or identity within one fauxto.
func (r *FauxtoRepository) AddMember(ctx context.Context, m *models.FauxtoMember) error {
	query := `
		INSERT INTO fauxto_members (fauxto_id, upload_id, identity, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, m.FauxtoID, m.UploadID, m.Identity, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add fauxto member: %w", err)
	}
	return nil
}

// MembersByFauxto retrieves the membership rows in reservation order
func (r *FauxtoRepository) MembersByFauxto(ctx context.Context, fauxtoID string) ([]*models.FauxtoMember, error) {
	query := `
		SELECT id, fauxto_id, upload_id, identity, created_at
		FROM fauxto_members
		WHERE fauxto_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query, fauxtoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fauxto members: %w", err)
	}
	defer rows.Close()

	var members []*models.FauxtoMember
	for rows.Next() {
		var m models.FauxtoMember
		if err := rows.Scan(&m.ID, &m.FauxtoID, &m.UploadID, &m.Identity, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fauxto member: %w", err)
		}
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fauxto members: %w", err)
	}
	return members, nil
}

// MemberFilePaths returns the members' upload image paths in reservation order
func (r *FauxtoRepository) MemberFilePaths(ctx context.Context, fauxtoID string) ([]string, error) {
	query := `
		SELECT u.file_path
		FROM fauxto_members fm
		JOIN uploads u ON u.id = fm.upload_id
		WHERE fm.fauxto_id = $1
		ORDER BY fm.id ASC
	`
	rows, err := r.db.Query(ctx, query, fauxtoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list member file paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan member file path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member file paths: %w", err)
	}
	return paths, nil
}

// SetFilePathIfEmpty fills in the generated image path. Returns false when
// the path was already set or the fauxto no longer exists, which makes a
// duplicate completion callback a no-op.
func (r *FauxtoRepository) SetFilePathIfEmpty(ctx context.Context, id, path string) (bool, error) {
	result, err := r.db.Exec(ctx,
		`UPDATE fauxtos SET file_path = $1 WHERE id = $2 AND file_path IS NULL`,
		path, id)
	if err != nil {
		return false, fmt.Errorf("failed to set fauxto file path: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// LastCreatedAt returns the creation time of the booth's newest fauxto, or
// nil when none has ever been reserved.
func (r *FauxtoRepository) LastCreatedAt(ctx context.Context, slug string) (*time.Time, error) {
	query := `
		SELECT created_at FROM fauxtos
		WHERE booth_slug = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var t time.Time
	err := r.db.QueryRow(ctx, query, slug).Scan(&t)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last fauxto time: %w", err)
	}
	return &t, nil
}

// ListRecent returns the booth's newest completed fauxtos, most recent first
func (r *FauxtoRepository) ListRecent(ctx context.Context, slug string, limit int) ([]*models.Fauxto, error) {
	query := `
		SELECT id, booth_slug, file_path, job_id, created_at
		FROM fauxtos
		WHERE booth_slug = $1 AND file_path IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, slug, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent fauxtos: %w", err)
	}
	defer rows.Close()
	return scanFauxtos(rows)
}

// ListByBooth returns every fauxto of a booth, newest first
func (r *FauxtoRepository) ListByBooth(ctx context.Context, slug string) ([]*models.Fauxto, error) {
	query := `
		SELECT id, booth_slug, file_path, job_id, created_at
		FROM fauxtos
		WHERE booth_slug = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to list fauxtos: %w", err)
	}
	defer rows.Close()
	return scanFauxtos(rows)
}

// List returns fauxtos across booths for the administrative surface
func (r *FauxtoRepository) List(ctx context.Context, filter FauxtoFilter) ([]*models.Fauxto, error) {
	builder := psql.
		Select("id", "booth_slug", "file_path", "job_id", "created_at").
		From("fauxtos").
		OrderBy("created_at DESC")

	if filter.BoothSlug != "" {
		builder = builder.Where(sq.Eq{"booth_slug": filter.BoothSlug})
	}
	if filter.OnlyCompleted {
		builder = builder.Where(sq.NotEq{"file_path": nil})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build fauxto list query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fauxtos: %w", err)
	}
	defer rows.Close()
	return scanFauxtos(rows)
}

func scanFauxtos(rows pgx.Rows) ([]*models.Fauxto, error) {
	var fauxtos []*models.Fauxto
	for rows.Next() {
		var f models.Fauxto
		if err := rows.Scan(&f.ID, &f.BoothSlug, &f.FilePath, &f.JobID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fauxto: %w", err)
		}
		fauxtos = append(fauxtos, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fauxtos: %w", err)
	}
	return fauxtos, nil
}

// CountCompleted counts fauxtos with a generated image
func (r *FauxtoRepository) CountCompleted(ctx context.Context, slug string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM fauxtos WHERE booth_slug = $1 AND file_path IS NOT NULL`,
		slug).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count fauxtos: %w", err)
	}
	return count, nil
}

// Delete removes a fauxto; memberships cascade
func (r *FauxtoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM fauxtos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete fauxto: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FauxtoIDsByUpload lists the fauxtos an upload contributed to
func (r *FauxtoRepository) FauxtoIDsByUpload(ctx context.Context, uploadID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT fauxto_id FROM fauxto_members WHERE upload_id = $1`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fauxtos by upload: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan fauxto id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fauxto ids: %w", err)
	}
	return ids, nil
}
