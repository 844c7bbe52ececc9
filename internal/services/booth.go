package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fauxto-booth-backend/internal/config"
	"fauxto-booth-backend/internal/generator"
	"fauxto-booth-backend/internal/models"
	"fauxto-booth-backend/internal/repository"
	"fauxto-booth-backend/internal/snap"
	"fauxto-booth-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const recentFauxtoLimit = 20

// JobDispatcher hands durable jobs to the runner. Dispatch is
// fire-and-forget from the actor's perspective; the runner calls back in
// per step.
type JobDispatcher interface {
	DispatchBackdrop(ctx context.Context, boothSlug string) (string, error)
	DispatchFauxto(ctx context.Context, boothSlug string) (string, error)
}

// AlreadyJoinedError is the structured conflict returned when a booth with
// the single-upload policy sees a second upload from the same identity. It
// carries the share link the caller can act on.
type AlreadyJoinedError struct {
	ShareURL string
}

func (e *AlreadyJoinedError) Error() string {
	return "identity has already joined this booth"
}

// BoothSnapshot is the full externally-visible state of one booth
type BoothSnapshot struct {
	*models.Booth
	LatestFauxtos []*models.Fauxto `json:"latest_fauxtos"`
}

// BoothService is the booth actor: it owns the upload and composite
// ledgers and is the only writer to them. All mutations of one booth are
// serialized through a per-slug lock; cross-booth operations never share
// state.
type BoothService struct {
	boothRepo   repository.BoothRepositoryInterface
	uploadRepo  repository.UploadRepositoryInterface
	fauxtoRepo  repository.FauxtoRepositoryInterface
	galleryRepo repository.GalleryRepositoryInterface
	store       storage.ImageStore
	generator   generator.Generator
	hub         *WSHub
	push        *PushNotifier
	dispatcher  JobDispatcher

	cfg           config.BoothConfig
	publicBaseURL string
	httpClient    *http.Client

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	timers map[string]*time.Timer
}

// NewBoothService creates a new booth service. The job dispatcher is wired
// afterwards via SetDispatcher because the runner needs the service for its
// step callbacks.
func NewBoothService(
	boothRepo repository.BoothRepositoryInterface,
	uploadRepo repository.UploadRepositoryInterface,
	fauxtoRepo repository.FauxtoRepositoryInterface,
	galleryRepo repository.GalleryRepositoryInterface,
	store storage.ImageStore,
	gen generator.Generator,
	hub *WSHub,
	push *PushNotifier,
	cfg config.BoothConfig,
	publicBaseURL string,
) *BoothService {
	return &BoothService{
		boothRepo:     boothRepo,
		uploadRepo:    uploadRepo,
		fauxtoRepo:    fauxtoRepo,
		galleryRepo:   galleryRepo,
		store:         store,
		generator:     gen,
		hub:           hub,
		push:          push,
		cfg:           cfg,
		publicBaseURL: publicBaseURL,
		httpClient:    &http.Client{Timeout: 2 * time.Minute},
		locks:         make(map[string]*sync.Mutex),
		timers:        make(map[string]*time.Timer),
	}
}

// SetDispatcher wires the durable job runner
func (s *BoothService) SetDispatcher(d JobDispatcher) {
	s.dispatcher = d
}

// lock serializes all mutations of one booth
func (s *BoothService) lock(slug string) func() {
	s.mu.Lock()
	l, ok := s.locks[slug]
	if !ok {
		l = &sync.Mutex{}
		s.locks[slug] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// ShareURL returns the guest-facing link for a booth
func (s *BoothService) ShareURL(slug string) string {
	return fmt.Sprintf("%s/b/%s", s.publicBaseURL, slug)
}

// Setup creates the booth row and kicks off the initial backdrop job
func (s *BoothService) Setup(ctx context.Context, slug string, req CreateBoothRequest) (*models.Booth, error) {
	if req.IdealMemberSize == 0 {
		req.IdealMemberSize = s.cfg.DefaultMemberSize
	}
	booth := &models.Booth{
		Slug:            slug,
		DisplayName:     req.DisplayName,
		Description:     req.Description,
		IdealMemberSize: snap.ClampMemberSize(req.IdealMemberSize),
		SingleUpload:    req.SingleUpload,
		BackdropStatus:  models.BackdropGenerating,
		DisplayStatus:   snap.StatusIdle,
		CreatedAt:       time.Now(),
	}
	if err := s.boothRepo.Create(ctx, booth); err != nil {
		return nil, err
	}

	if _, err := s.dispatcher.DispatchBackdrop(ctx, slug); err != nil {
		return nil, fmt.Errorf("failed to dispatch backdrop job: %w", err)
	}
	return booth, nil
}

// Get returns the booth with its bounded recent-fauxtos list
func (s *BoothService) Get(ctx context.Context, slug string) (*BoothSnapshot, error) {
	booth, err := s.boothRepo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	latest, err := s.fauxtoRepo.ListRecent(ctx, slug, recentFauxtoLimit)
	if err != nil {
		return nil, err
	}
	return &BoothSnapshot{Booth: booth, LatestFauxtos: latest}, nil
}

// ListAll returns every booth for the administrative surface
func (s *BoothService) ListAll(ctx context.Context) ([]*models.Booth, error) {
	return s.boothRepo.ListAll(ctx)
}

// ListUploads returns a booth's upload ledger
func (s *BoothService) ListUploads(ctx context.Context, slug string) ([]*models.Upload, error) {
	if _, err := s.boothRepo.GetBySlug(ctx, slug); err != nil {
		return nil, err
	}
	return s.uploadRepo.ListByBooth(ctx, slug)
}

// ListFauxtos returns fauxtos across booths for the administrative surface
func (s *BoothService) ListFauxtos(ctx context.Context, filter repository.FauxtoFilter) ([]*models.Fauxto, error) {
	return s.fauxtoRepo.List(ctx, filter)
}

// RecordUpload appends a selfie to the booth's ledger and re-evaluates the
// snap decision. Under the single-upload policy a repeat submission is
// rejected with a structured conflict carrying the share link.
func (s *BoothService) RecordUpload(ctx context.Context, slug, identity, filename, contentType string, body []byte) (*models.Upload, error) {
	unlock := s.lock(slug)
	defer unlock()

	booth, err := s.boothRepo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if booth.SingleUpload {
		joined, err := s.uploadRepo.HasIdentityUpload(ctx, slug, identity)
		if err != nil {
			return nil, err
		}
		if joined {
			return nil, &AlreadyJoinedError{ShareURL: s.ShareURL(slug)}
		}
	}

	path := fmt.Sprintf("%s/uploads/%s/%s", slug, identity, filename)
	if err := s.store.Put(ctx, path, contentType, bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	upload := &models.Upload{
		ID:        uuid.New().String(),
		BoothSlug: slug,
		Identity:  identity,
		FilePath:  path,
		CreatedAt: time.Now(),
	}
	if err := s.uploadRepo.Create(ctx, upload); err != nil {
		return nil, err
	}
	if err := s.boothRepo.IncrementUploadedCount(ctx, slug); err != nil {
		log.Error().Err(err).Str("booth", slug).Msg("Failed to bump upload counter")
	}
	if err := s.galleryRepo.UpsertBooth(ctx, identity, slug); err != nil {
		log.Error().Err(err).Str("booth", slug).Str("identity", identity).
			Msg("Failed to record gallery booth membership")
	}

	log.Info().Str("booth", slug).Str("identity", identity).Str("upload_id", upload.ID).
		Msg("Upload recorded")

	s.evaluateLocked(ctx, slug, false, false)
	s.broadcastState(ctx, slug)
	return upload, nil
}

// Reshoot forces a snap with whatever contributors are available
func (s *BoothService) Reshoot(ctx context.Context, slug string) error {
	unlock := s.lock(slug)
	defer unlock()

	if _, err := s.boothRepo.GetBySlug(ctx, slug); err != nil {
		return err
	}
	s.evaluateLocked(ctx, slug, true, true)
	s.broadcastState(ctx, slug)
	return nil
}

// RefreshBackdrop regenerates the booth's backdrop
func (s *BoothService) RefreshBackdrop(ctx context.Context, slug string) error {
	unlock := s.lock(slug)
	defer unlock()

	if _, err := s.boothRepo.GetBySlug(ctx, slug); err != nil {
		return err
	}
	if err := s.boothRepo.SetBackdropGenerating(ctx, slug); err != nil {
		return err
	}
	if _, err := s.dispatcher.DispatchBackdrop(ctx, slug); err != nil {
		return fmt.Errorf("failed to dispatch backdrop job: %w", err)
	}
	s.broadcastState(ctx, slug)
	return nil
}

// SetIdealMemberSize clamps and stores the desired group size, then
// re-evaluates the snap decision.
func (s *BoothService) SetIdealMemberSize(ctx context.Context, slug string, size int) error {
	unlock := s.lock(slug)
	defer unlock()

	if err := s.boothRepo.SetIdealMemberSize(ctx, slug, snap.ClampMemberSize(size)); err != nil {
		return err
	}
	s.evaluateLocked(ctx, slug, false, false)
	s.broadcastState(ctx, slug)
	return nil
}

// EvaluateSnap re-runs the snap decision, used by the debounced retry
func (s *BoothService) EvaluateSnap(ctx context.Context, slug string, reshoot, forced bool) {
	unlock := s.lock(slug)
	defer unlock()
	s.evaluateLocked(ctx, slug, reshoot, forced)
	s.broadcastState(ctx, slug)
}

// evaluateLocked runs the snap-decision state machine. Callers hold the
// booth lock.
func (s *BoothService) evaluateLocked(ctx context.Context, slug string, reshoot, forced bool) {
	booth, err := s.boothRepo.GetBySlug(ctx, slug)
	if err != nil {
		// The booth may have been deleted while a retry was pending.
		log.Warn().Err(err).Str("booth", slug).Msg("Snap evaluation skipped")
		return
	}

	awaiting, err := s.uploadRepo.AwaitingCount(ctx, slug)
	if err != nil {
		log.Error().Err(err).Str("booth", slug).Msg("Failed to count awaiting uploaders")
		return
	}
	lastAt, err := s.fauxtoRepo.LastCreatedAt(ctx, slug)
	if err != nil {
		log.Error().Err(err).Str("booth", slug).Msg("Failed to read last fauxto time")
		return
	}

	decision := snap.Evaluate(snap.DecisionInput{
		Awaiting:        awaiting,
		IdealMemberSize: booth.IdealMemberSize,
		Reshoot:         reshoot,
		Forced:          forced,
		LastFauxtoAt:    lastAt,
		Now:             time.Now(),
		QuietPeriod:     s.cfg.QuietPeriod(),
		RetryPending:    s.retryPending(slug),
	})

	log.Debug().Str("booth", slug).Int("awaiting", awaiting).
		Bool("fire", decision.Fire).Bool("retry", decision.ScheduleRetry).
		Msg("Snap decision evaluated")

	// A composite may not start until the backdrop is ready; keep waiting
	// and let the debounced retry pick it up.
	if decision.Fire && booth.BackdropStatus != models.BackdropReady {
		s.setStatus(ctx, slug, snap.StatusWaiting)
		s.scheduleRetry(slug)
		return
	}

	if decision.Status != "" {
		s.setStatus(ctx, slug, decision.Status)
	}
	if decision.ScheduleRetry {
		s.scheduleRetry(slug)
	}
	if !decision.Fire {
		return
	}

	if _, err := s.boothRepo.AddInflight(ctx, slug, 1); err != nil {
		log.Error().Err(err).Str("booth", slug).Msg("Failed to bump inflight counter")
		return
	}
	if _, err := s.dispatcher.DispatchFauxto(ctx, slug); err != nil {
		log.Error().Err(err).Str("booth", slug).Msg("Failed to dispatch fauxto job")
		if _, derr := s.boothRepo.AddInflight(ctx, slug, -1); derr != nil {
			log.Error().Err(derr).Str("booth", slug).Msg("Failed to roll back inflight counter")
		}
		s.setStatus(ctx, slug, snap.StatusIdle)
	}
}

func (s *BoothService) setStatus(ctx context.Context, slug, status string) {
	if err := s.boothRepo.SetDisplayStatus(ctx, slug, status); err != nil {
		log.Error().Err(err).Str("booth", slug).Msg("Failed to update display status")
	}
}

// retryPending reports whether a debounced retry is already scheduled
func (s *BoothService) retryPending(slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[slug]
	return ok
}

// scheduleRetry arms at most one debounced retry per booth. Losing the
// timer is safe: the next upload or reshoot re-evaluates from scratch.
// The retry is a plain re-evaluation, so it stays a no-op when every
// awaiting uploader disappeared during the quiet period.
func (s *BoothService) scheduleRetry(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[slug]; ok {
		return
	}

	log.Debug().Str("booth", slug).Dur("delay", s.cfg.RetryDelay()).Msg("Scheduling snap retry")
	s.timers[slug] = time.AfterFunc(s.cfg.RetryDelay(), func() {
		s.clearTimer(slug)
		s.EvaluateSnap(context.Background(), slug, false, false)
	})
}

func (s *BoothService) clearTimer(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, slug)
}

func (s *BoothService) cancelTimer(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[slug]; ok {
		t.Stop()
		delete(s.timers, slug)
	}
}

// broadcastState pushes the booth snapshot to every live viewer
func (s *BoothService) broadcastState(ctx context.Context, slug string) {
	snapshot, err := s.Get(ctx, slug)
	if err != nil {
		log.Debug().Err(err).Str("booth", slug).Msg("Skipping state broadcast")
		return
	}
	s.hub.BroadcastBooth(slug, WSMessage{Type: "boothState", Data: snapshot})
}
