package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"fauxto-booth-backend/internal/models"
	"fauxto-booth-backend/internal/repository"
	"fauxto-booth-backend/internal/snap"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Step bodies for the durable job runner. Each step is small, retryable
// and either side-effect free or idempotent: generate returns a source
// URL, store copies it into the image store under a deterministic-enough
// path, apply commits the result exactly once.

// GenerateBackdrop asks the generator for a backdrop matching the booth's
// description and returns the source URL.
func (s *BoothService) GenerateBackdrop(ctx context.Context, slug string) (string, error) {
	booth, err := s.boothRepo.GetBySlug(ctx, slug)
	if err != nil {
		return "", err
	}
	return s.generator.GenerateBackdrop(ctx, booth.Description)
}

// StoreBackdrop copies the generated backdrop into the image store and
// returns its path.
func (s *BoothService) StoreBackdrop(ctx context.Context, slug, sourceURL string) (string, error) {
	path := fmt.Sprintf("%s/backgrounds/%s.jpg", slug, uuid.New().String())
	if err := s.fetchInto(ctx, sourceURL, path); err != nil {
		return "", err
	}
	return path, nil
}

// ApplyBackdrop marks the backdrop ready and re-evaluates the snap
// decision, since uploads may have queued up while it was generating.
func (s *BoothService) ApplyBackdrop(ctx context.Context, slug, path string) error {
	unlock := s.lock(slug)
	defer unlock()

	if err := s.boothRepo.SetBackdropReady(ctx, slug, path); err != nil {
		return err
	}
	log.Info().Str("booth", slug).Str("path", path).Msg("Backdrop ready")

	s.evaluateLocked(ctx, slug, false, false)
	s.broadcastState(ctx, slug)
	return nil
}

// ReserveFauxto picks the members for a composite and writes the fauxto
// row plus its member list. The runner guarantees this runs at most once
// per job; the fauxto row keeps the job id so recovery can find it.
func (s *BoothService) ReserveFauxto(ctx context.Context, slug, jobID string) (string, error) {
	unlock := s.lock(slug)
	defer unlock()

	booth, err := s.boothRepo.GetBySlug(ctx, slug)
	if err != nil {
		return "", err
	}

	// A failed earlier attempt may have left a partial reservation behind.
	// Its membership rows would count those members as captured, so discard
	// it before selecting.
	if stale, err := s.fauxtoRepo.GetByJobID(ctx, jobID); err == nil {
		if err := s.fauxtoRepo.Delete(ctx, stale.ID); err != nil {
			return "", fmt.Errorf("failed to discard partial reservation: %w", err)
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}

	candidates, err := s.uploadRepo.MemberCandidates(ctx, slug)
	if err != nil {
		return "", fmt.Errorf("failed to load member candidates: %w", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	members := snap.SelectMembers(candidates, booth.IdealMemberSize, rng)
	if len(members) == 0 {
		return "", fmt.Errorf("no members available for booth %s", slug)
	}

	fauxto := &models.Fauxto{
		ID:        uuid.New().String(),
		BoothSlug: slug,
		JobID:     &jobID,
		CreatedAt: time.Now(),
	}
	if err := s.fauxtoRepo.Create(ctx, fauxto); err != nil {
		return "", err
	}
	for _, m := range members {
		member := &models.FauxtoMember{
			FauxtoID:  fauxto.ID,
			UploadID:  m.UploadID,
			Identity:  m.Identity,
			CreatedAt: time.Now(),
		}
		if err := s.fauxtoRepo.AddMember(ctx, member); err != nil {
			return "", fmt.Errorf("failed to add fauxto member: %w", err)
		}
	}

	log.Info().Str("booth", slug).Str("fauxto_id", fauxto.ID).
		Int("members", len(members)).Msg("Fauxto reserved")
	return fauxto.ID, nil
}

// GenerateFauxto composites the reserved members over the booth backdrop
// and returns the source URL.
func (s *BoothService) GenerateFauxto(ctx context.Context, slug, fauxtoID string) (string, error) {
	booth, err := s.boothRepo.GetBySlug(ctx, slug)
	if err != nil {
		return "", err
	}
	if booth.BackdropPath == nil {
		return "", fmt.Errorf("booth %s has no backdrop", slug)
	}

	backdropURL, err := s.store.SignedURL(ctx, *booth.BackdropPath)
	if err != nil {
		return "", fmt.Errorf("failed to sign backdrop url: %w", err)
	}

	paths, err := s.fauxtoRepo.MemberFilePaths(ctx, fauxtoID)
	if err != nil {
		return "", fmt.Errorf("failed to load member files: %w", err)
	}
	memberURLs := make([]string, 0, len(paths))
	for _, p := range paths {
		u, err := s.store.SignedURL(ctx, p)
		if err != nil {
			return "", fmt.Errorf("failed to sign member url: %w", err)
		}
		memberURLs = append(memberURLs, u)
	}

	return s.generator.GenerateComposite(ctx, backdropURL, memberURLs, booth.Description)
}

// StoreFauxto copies the generated composite into the image store
func (s *BoothService) StoreFauxto(ctx context.Context, slug, fauxtoID, sourceURL string) (string, error) {
	path := fmt.Sprintf("%s/fauxtos/%s.jpg", slug, fauxtoID)
	if err := s.fetchInto(ctx, sourceURL, path); err != nil {
		return "", err
	}
	return path, nil
}

// ApplyFauxto commits the composite. The guarded update makes replays
// harmless; fan-out to galleries, sockets and push happens only on the
// attempt that actually set the path.
func (s *BoothService) ApplyFauxto(ctx context.Context, slug, fauxtoID, path string) error {
	unlock := s.lock(slug)
	defer unlock()

	applied, err := s.fauxtoRepo.SetFilePathIfEmpty(ctx, fauxtoID, path)
	if err != nil {
		return err
	}
	if !applied {
		// Either a replay after a crash between apply and done, or the
		// fauxto was deleted mid-job. Both finish the job cleanly.
		log.Debug().Str("booth", slug).Str("fauxto_id", fauxtoID).
			Msg("Fauxto apply skipped")
		return nil
	}

	booth, err := s.boothRepo.GetBySlug(ctx, slug)
	if err != nil {
		// Booth deleted mid-job; nothing left to update.
		log.Warn().Err(err).Str("booth", slug).Msg("Fauxto applied to deleted booth")
		return nil
	}

	if err := s.boothRepo.IncrementFauxtoCount(ctx, slug); err != nil {
		log.Error().Err(err).Str("booth", slug).Msg("Failed to bump fauxto counter")
	}

	members, err := s.fauxtoRepo.MembersByFauxto(ctx, fauxtoID)
	if err != nil {
		log.Error().Err(err).Str("fauxto_id", fauxtoID).Msg("Failed to load members for fan-out")
		members = nil
	}

	identities := make([]string, 0, len(members))
	for _, m := range members {
		identities = append(identities, m.Identity)
		entry := &models.GalleryFauxto{
			Identity:         m.Identity,
			FauxtoID:         fauxtoID,
			BoothSlug:        slug,
			BoothDisplayName: booth.DisplayName,
			FilePath:         path,
			CreatedAt:        time.Now(),
		}
		if err := s.galleryRepo.UpsertFauxto(ctx, entry); err != nil {
			log.Error().Err(err).Str("identity", m.Identity).Str("fauxto_id", fauxtoID).
				Msg("Failed to add gallery fauxto")
		}
	}

	ready := WSMessage{Type: "fauxtoReady", FauxtoID: fauxtoID, FilePath: path}
	for _, identity := range identities {
		s.hub.SendToIdentity(slug, identity, ready)
	}

	if s.push != nil && len(identities) > 0 {
		tokens, err := s.galleryRepo.PushTokens(ctx, identities)
		if err != nil {
			log.Error().Err(err).Str("fauxto_id", fauxtoID).Msg("Failed to load push tokens")
		}
		for _, token := range tokens {
			s.push.NotifyFauxtoReady(token, booth.DisplayName, fauxtoID)
		}
	}

	remaining, err := s.boothRepo.AddInflight(ctx, slug, -1)
	if err != nil {
		log.Error().Err(err).Str("booth", slug).Msg("Failed to drop inflight counter")
	} else if remaining == 0 {
		s.setStatus(ctx, slug, snap.StatusIdle)
	}

	log.Info().Str("booth", slug).Str("fauxto_id", fauxtoID).Str("path", path).
		Msg("Fauxto ready")

	s.broadcastState(ctx, slug)
	return nil
}

// BackdropJobFailed restores the booth after the backdrop job gave up. An
// earlier backdrop, if any, stays usable.
func (s *BoothService) BackdropJobFailed(ctx context.Context, slug string) {
	unlock := s.lock(slug)
	defer unlock()

	booth, err := s.boothRepo.GetBySlug(ctx, slug)
	if err != nil {
		return
	}
	if booth.BackdropPath != nil {
		if err := s.boothRepo.SetBackdropReady(ctx, slug, *booth.BackdropPath); err != nil {
			log.Error().Err(err).Str("booth", slug).Msg("Failed to restore backdrop status")
		}
	}
	log.Warn().Str("booth", slug).Msg("Backdrop job failed")
	s.broadcastState(ctx, slug)
}

// FauxtoJobFailed releases a failed composite: the reserved imageless
// fauxto is discarded so its members become selectable again. A reserve
// that died mid-insert never reached the job row, so the reservation is
// also looked up by job id.
func (s *BoothService) FauxtoJobFailed(ctx context.Context, slug, jobID string, fauxtoID *string) {
	unlock := s.lock(slug)
	defer unlock()

	var fauxto *models.Fauxto
	var err error
	if fauxtoID != nil {
		fauxto, err = s.fauxtoRepo.GetByID(ctx, *fauxtoID)
	} else {
		fauxto, err = s.fauxtoRepo.GetByJobID(ctx, jobID)
	}
	if err == nil && fauxto.FilePath == nil {
		if err := s.fauxtoRepo.Delete(ctx, fauxto.ID); err != nil {
			log.Error().Err(err).Str("fauxto_id", fauxto.ID).
				Msg("Failed to discard reserved fauxto")
		}
	}

	remaining, err := s.boothRepo.AddInflight(ctx, slug, -1)
	if err != nil {
		log.Error().Err(err).Str("booth", slug).Msg("Failed to drop inflight counter")
		return
	}
	if remaining == 0 {
		s.setStatus(ctx, slug, snap.StatusIdle)
	}
	log.Warn().Str("booth", slug).Msg("Fauxto job failed")
	s.broadcastState(ctx, slug)
}

// DeleteFauxto removes a composite, its image and its gallery entries,
// then recounts the booth's completed fauxtos.
func (s *BoothService) DeleteFauxto(ctx context.Context, fauxtoID string) error {
	fauxto, err := s.fauxtoRepo.GetByID(ctx, fauxtoID)
	if err != nil {
		return err
	}

	unlock := s.lock(fauxto.BoothSlug)
	defer unlock()

	if fauxto.FilePath != nil {
		if err := s.store.Delete(ctx, *fauxto.FilePath); err != nil {
			log.Error().Err(err).Str("fauxto_id", fauxtoID).Msg("Failed to delete fauxto image")
		}
	}
	if err := s.galleryRepo.RemoveFauxto(ctx, fauxtoID); err != nil {
		log.Error().Err(err).Str("fauxto_id", fauxtoID).Msg("Failed to retract gallery fauxto")
	}
	if err := s.fauxtoRepo.Delete(ctx, fauxtoID); err != nil {
		return err
	}

	count, err := s.fauxtoRepo.CountCompleted(ctx, fauxto.BoothSlug)
	if err == nil {
		if err := s.boothRepo.SetFauxtoCount(ctx, fauxto.BoothSlug, count); err != nil {
			log.Error().Err(err).Str("booth", fauxto.BoothSlug).Msg("Failed to reset fauxto counter")
		}
	}

	log.Info().Str("booth", fauxto.BoothSlug).Str("fauxto_id", fauxtoID).Msg("Fauxto deleted")
	s.broadcastState(ctx, fauxto.BoothSlug)
	return nil
}

// DeleteUpload removes a selfie and every composite it appears in
func (s *BoothService) DeleteUpload(ctx context.Context, uploadID string) error {
	upload, err := s.uploadRepo.GetByID(ctx, uploadID)
	if err != nil {
		return err
	}

	fauxtoIDs, err := s.fauxtoRepo.FauxtoIDsByUpload(ctx, uploadID)
	if err != nil {
		return fmt.Errorf("failed to find dependent fauxtos: %w", err)
	}
	for _, id := range fauxtoIDs {
		if err := s.DeleteFauxto(ctx, id); err != nil {
			log.Error().Err(err).Str("fauxto_id", id).Msg("Failed to delete dependent fauxto")
		}
	}

	unlock := s.lock(upload.BoothSlug)
	defer unlock()

	if err := s.store.Delete(ctx, upload.FilePath); err != nil {
		log.Error().Err(err).Str("upload_id", uploadID).Msg("Failed to delete upload image")
	}
	if err := s.uploadRepo.Delete(ctx, uploadID); err != nil {
		return err
	}

	log.Info().Str("booth", upload.BoothSlug).Str("upload_id", uploadID).Msg("Upload deleted")
	s.broadcastState(ctx, upload.BoothSlug)
	return nil
}

// DeleteBooth tears down the booth: its pending retry, gallery entries
// and every stored image under its prefix.
func (s *BoothService) DeleteBooth(ctx context.Context, slug string) error {
	s.cancelTimer(slug)

	unlock := s.lock(slug)
	defer unlock()

	if _, err := s.boothRepo.GetBySlug(ctx, slug); err != nil {
		return err
	}

	fauxtos, err := s.fauxtoRepo.ListByBooth(ctx, slug)
	if err != nil {
		return fmt.Errorf("failed to list booth fauxtos: %w", err)
	}
	for _, f := range fauxtos {
		if err := s.galleryRepo.RemoveFauxto(ctx, f.ID); err != nil {
			log.Error().Err(err).Str("fauxto_id", f.ID).Msg("Failed to retract gallery fauxto")
		}
	}
	if err := s.galleryRepo.RemoveBooth(ctx, slug); err != nil {
		log.Error().Err(err).Str("booth", slug).Msg("Failed to retract gallery booth")
	}

	if err := s.store.DeletePrefix(ctx, slug+"/"); err != nil {
		log.Error().Err(err).Str("booth", slug).Msg("Failed to delete booth images")
	}

	// Uploads, fauxtos and members go with the booth row via cascade.
	return s.boothRepo.Delete(ctx, slug)
}

// fetchInto streams a generated image from its source URL into the store
func (s *BoothService) fetchInto(ctx context.Context, sourceURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build fetch request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch generated image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("image fetch returned status %d: %s", resp.StatusCode, string(body))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return s.store.Put(ctx, path, contentType, resp.Body)
}
