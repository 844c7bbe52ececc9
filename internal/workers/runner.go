package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fauxto-booth-backend/internal/config"
	"fauxto-booth-backend/internal/models"
	"fauxto-booth-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Step names shared between dispatch, execution and recovery
const (
	stepReserve  = "reserve"
	stepGenerate = "generate"
	stepStore    = "store"
	stepApply    = "apply"
)

// BoothOps is the step surface the runner drives. Generate and store
// steps return their output, which becomes the checkpoint for the next
// step; apply steps commit idempotently.
type BoothOps interface {
	GenerateBackdrop(ctx context.Context, slug string) (string, error)
	StoreBackdrop(ctx context.Context, slug, sourceURL string) (string, error)
	ApplyBackdrop(ctx context.Context, slug, path string) error

	ReserveFauxto(ctx context.Context, slug, jobID string) (string, error)
	GenerateFauxto(ctx context.Context, slug, fauxtoID string) (string, error)
	StoreFauxto(ctx context.Context, slug, fauxtoID, sourceURL string) (string, error)
	ApplyFauxto(ctx context.Context, slug, fauxtoID, path string) error

	BackdropJobFailed(ctx context.Context, slug string)
	FauxtoJobFailed(ctx context.Context, slug, jobID string, fauxtoID *string)
}

// Runner executes multi-step image jobs from a bounded in-memory queue,
// persisting progress after every step so a restart resumes instead of
// restarting. One job never runs on two workers at once.
type Runner struct {
	jobRepo repository.JobRepositoryInterface
	ops     BoothOps
	cfg     config.JobsConfig

	queue chan *models.Job
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewRunner creates a job runner
func NewRunner(jobRepo repository.JobRepositoryInterface, ops BoothOps, cfg config.JobsConfig) *Runner {
	return &Runner{
		jobRepo: jobRepo,
		ops:     ops,
		cfg:     cfg,
		queue:   make(chan *models.Job, cfg.QueueSize),
		stop:    make(chan struct{}),
	}
}

// Start launches the worker pool
func (r *Runner) Start() {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	log.Info().Int("workers", r.cfg.Workers).Msg("Job runner started")
}

// Stop drains the workers. Jobs still queued stay persisted and are
// picked up by Recover on the next start.
func (r *Runner) Stop() {
	close(r.stop)
	r.wg.Wait()
	log.Info().Msg("Job runner stopped")
}

// DispatchBackdrop persists and enqueues a backdrop job
func (r *Runner) DispatchBackdrop(ctx context.Context, boothSlug string) (string, error) {
	job := &models.Job{
		ID:        uuid.New().String(),
		Kind:      models.JobKindBackdrop,
		BoothSlug: boothSlug,
		Step:      stepGenerate,
		Status:    models.JobStatusRunning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	return job.ID, r.dispatch(ctx, job)
}

// DispatchFauxto persists and enqueues a composite job
func (r *Runner) DispatchFauxto(ctx context.Context, boothSlug string) (string, error) {
	job := &models.Job{
		ID:        uuid.New().String(),
		Kind:      models.JobKindFauxto,
		BoothSlug: boothSlug,
		Step:      stepReserve,
		Status:    models.JobStatusRunning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	return job.ID, r.dispatch(ctx, job)
}

func (r *Runner) dispatch(ctx context.Context, job *models.Job) error {
	if err := r.jobRepo.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to persist job: %w", err)
	}
	select {
	case r.queue <- job:
		return nil
	default:
		// Queue full. The job row survives; Recover replays it.
		return fmt.Errorf("job queue is full")
	}
}

// Recover replays unfinished jobs after a restart. Jobs past the abandon
// horizon are failed instead of replayed.
func (r *Runner) Recover(ctx context.Context) error {
	jobs, err := r.jobRepo.ListUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("failed to list unfinished jobs: %w", err)
	}

	for _, job := range jobs {
		if time.Since(job.CreatedAt) > r.cfg.AbandonAfter() {
			log.Warn().Str("job_id", job.ID).Str("kind", job.Kind).
				Msg("Abandoning stale job")
			r.fail(ctx, job, fmt.Errorf("abandoned after %s", r.cfg.AbandonAfter()))
			continue
		}

		log.Info().Str("job_id", job.ID).Str("kind", job.Kind).Str("step", job.Step).
			Msg("Recovering job")
		select {
		case r.queue <- job:
		default:
			log.Warn().Str("job_id", job.ID).Msg("Queue full during recovery, job left pending")
		}
	}
	return nil
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case job := <-r.queue:
			r.run(context.Background(), job)
		}
	}
}

// run drives a job from its checkpointed step to completion
func (r *Runner) run(ctx context.Context, job *models.Job) {
	var err error
	switch job.Kind {
	case models.JobKindBackdrop:
		err = r.runBackdrop(ctx, job)
	case models.JobKindFauxto:
		err = r.runFauxto(ctx, job)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}

	if err != nil {
		r.fail(ctx, job, err)
		return
	}
	if err := r.jobRepo.MarkDone(ctx, job.ID); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job done")
	}
	log.Info().Str("job_id", job.ID).Str("kind", job.Kind).Msg("Job completed")
}

func (r *Runner) runBackdrop(ctx context.Context, job *models.Job) error {
	if job.Step == stepGenerate {
		url, err := r.runStep(ctx, job, func() (string, error) {
			return r.ops.GenerateBackdrop(ctx, job.BoothSlug)
		})
		if err != nil {
			return err
		}
		if err := r.advance(ctx, job, stepStore, url); err != nil {
			return err
		}
	}

	if job.Step == stepStore {
		path, err := r.runStep(ctx, job, func() (string, error) {
			return r.ops.StoreBackdrop(ctx, job.BoothSlug, job.Checkpoint)
		})
		if err != nil {
			return err
		}
		if err := r.advance(ctx, job, stepApply, path); err != nil {
			return err
		}
	}

	_, err := r.runStep(ctx, job, func() (string, error) {
		return "", r.ops.ApplyBackdrop(ctx, job.BoothSlug, job.Checkpoint)
	})
	return err
}

func (r *Runner) runFauxto(ctx context.Context, job *models.Job) error {
	if job.Step == stepReserve {
		// Reservation must not repeat. A recovered job that already
		// holds a fauxto id skips straight past it.
		if job.FauxtoID == nil {
			fauxtoID, err := r.runStep(ctx, job, func() (string, error) {
				return r.ops.ReserveFauxto(ctx, job.BoothSlug, job.ID)
			})
			if err != nil {
				return err
			}
			if err := r.jobRepo.SetFauxtoID(ctx, job.ID, fauxtoID); err != nil {
				return fmt.Errorf("failed to record reserved fauxto: %w", err)
			}
			job.FauxtoID = &fauxtoID
		}
		if err := r.advance(ctx, job, stepGenerate, ""); err != nil {
			return err
		}
	}

	if job.FauxtoID == nil {
		return fmt.Errorf("job %s passed reserve without a fauxto id", job.ID)
	}
	fauxtoID := *job.FauxtoID

	if job.Step == stepGenerate {
		url, err := r.runStep(ctx, job, func() (string, error) {
			return r.ops.GenerateFauxto(ctx, job.BoothSlug, fauxtoID)
		})
		if err != nil {
			return err
		}
		if err := r.advance(ctx, job, stepStore, url); err != nil {
			return err
		}
	}

	if job.Step == stepStore {
		path, err := r.runStep(ctx, job, func() (string, error) {
			return r.ops.StoreFauxto(ctx, job.BoothSlug, fauxtoID, job.Checkpoint)
		})
		if err != nil {
			return err
		}
		if err := r.advance(ctx, job, stepApply, path); err != nil {
			return err
		}
	}

	_, err := r.runStep(ctx, job, func() (string, error) {
		return "", r.ops.ApplyFauxto(ctx, job.BoothSlug, fauxtoID, job.Checkpoint)
	})
	return err
}

// advance persists the step transition and its checkpoint before the
// next step may run.
func (r *Runner) advance(ctx context.Context, job *models.Job, step, checkpoint string) error {
	if err := r.jobRepo.SetStep(ctx, job.ID, step, checkpoint); err != nil {
		return fmt.Errorf("failed to checkpoint job: %w", err)
	}
	job.Step = step
	job.Checkpoint = checkpoint
	job.Attempts = 0
	return nil
}

// runStep retries one step with linear backoff until it succeeds or the
// attempt budget is spent.
func (r *Runner) runStep(ctx context.Context, job *models.Job, fn func() (string, error)) (string, error) {
	var lastErr error
	for attempt := job.Attempts + 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err

		log.Warn().Err(err).Str("job_id", job.ID).Str("step", job.Step).
			Int("attempt", attempt).Msg("Job step failed")
		if err := r.jobRepo.RecordAttempt(ctx, job.ID, attempt, err.Error()); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record attempt")
		}
		job.Attempts = attempt

		if attempt < r.cfg.MaxAttempts {
			select {
			case <-r.stop:
				return "", fmt.Errorf("runner stopping: %w", lastErr)
			case <-time.After(time.Duration(attempt) * r.cfg.RetryBackoff()):
			}
		}
	}
	return "", fmt.Errorf("step %s exhausted %d attempts: %w", job.Step, r.cfg.MaxAttempts, lastErr)
}

// fail marks the job failed and lets the booth release what the job held
func (r *Runner) fail(ctx context.Context, job *models.Job, cause error) {
	log.Error().Err(cause).Str("job_id", job.ID).Str("kind", job.Kind).
		Str("step", job.Step).Msg("Job failed")
	if err := r.jobRepo.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job failed")
	}

	switch job.Kind {
	case models.JobKindBackdrop:
		r.ops.BackdropJobFailed(ctx, job.BoothSlug)
	case models.JobKindFauxto:
		r.ops.FauxtoJobFailed(ctx, job.BoothSlug, job.ID, job.FauxtoID)
	}
}
