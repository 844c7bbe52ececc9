package repository

import (
	"context"
	"fmt"

	"fauxto-booth-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobRepository handles database operations for durable job records
type JobRepository struct {
	db *pgxpool.Pool
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *pgxpool.Pool) *JobRepository {
	return &JobRepository{db: db}
}

// Create persists a freshly dispatched job
func (r *JobRepository) Create(ctx context.Context, j *models.Job) error {
	query := `
		INSERT INTO jobs (id, kind, booth_slug, fauxto_id, step, checkpoint, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	_, err := r.db.Exec(ctx, query,
		j.ID, j.Kind, j.BoothSlug, j.FauxtoID, j.Step, j.Checkpoint, j.Status, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `
		SELECT id, kind, booth_slug, fauxto_id, step, checkpoint, status, attempts, last_error, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`
	var j models.Job
	err := r.db.QueryRow(ctx, query, id).Scan(
		&j.ID, &j.Kind, &j.BoothSlug, &j.FauxtoID, &j.Step, &j.Checkpoint,
		&j.Status, &j.Attempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &j, nil
}

// SetStep advances the step checkpoint, carrying the finished step's output
func (r *JobRepository) SetStep(ctx context.Context, id, step, checkpoint string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE jobs SET step = $1, checkpoint = $2, attempts = 0, updated_at = now() WHERE id = $3`,
		step, checkpoint, id)
	if err != nil {
		return fmt.Errorf("failed to set job step: %w", err)
	}
	return nil
}

// SetFauxtoID pins the reserved fauxto to the job instance. Once set the
// reserve step is never executed again for this job.
func (r *JobRepository) SetFauxtoID(ctx context.Context, id, fauxtoID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE jobs SET fauxto_id = $1, updated_at = now() WHERE id = $2`,
		fauxtoID, id)
	if err != nil {
		return fmt.Errorf("failed to set job fauxto id: %w", err)
	}
	return nil
}

// RecordAttempt persists a failed attempt of the current step
func (r *JobRepository) RecordAttempt(ctx context.Context, id string, attempts int, lastError string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE jobs SET attempts = $1, last_error = $2, updated_at = now() WHERE id = $3`,
		attempts, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to record job attempt: %w", err)
	}
	return nil
}

// MarkDone finishes a job
func (r *JobRepository) MarkDone(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2`,
		models.JobStatusDone, id)
	if err != nil {
		return fmt.Errorf("failed to mark job done: %w", err)
	}
	return nil
}

// MarkFailed terminally fails a job
func (r *JobRepository) MarkFailed(ctx context.Context, id, lastError string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE jobs SET status = $1, last_error = $2, updated_at = now() WHERE id = $3`,
		models.JobStatusFailed, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// ListUnfinished returns jobs that were still running, oldest first.
// Used for crash recovery at startup.
func (r *JobRepository) ListUnfinished(ctx context.Context) ([]*models.Job, error) {
	query := `
		SELECT id, kind, booth_slug, fauxto_id, step, checkpoint, status, attempts, last_error, created_at, updated_at
		FROM jobs
		WHERE status = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, models.JobStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.Kind, &j.BoothSlug, &j.FauxtoID, &j.Step, &j.Checkpoint,
			&j.Status, &j.Attempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}
