package services

import (
	"context"
	"fmt"

	"fauxto-booth-backend/internal/models"
	"fauxto-booth-backend/internal/repository"
)

// GalleryService maintains the denormalized per-identity views: the
// fauxtos an identity appears in and the booths it has contributed to.
// Updates are pushed in by the booth actor.
type GalleryService struct {
	galleryRepo repository.GalleryRepositoryInterface
}

// NewGalleryService creates a new gallery service
func NewGalleryService(galleryRepo repository.GalleryRepositoryInterface) *GalleryService {
	return &GalleryService{galleryRepo: galleryRepo}
}

// AddFauxto records a fauxto in an identity's gallery. Re-adding an
// already-present fauxto id is a no-op union.
func (s *GalleryService) AddFauxto(ctx context.Context, g *models.GalleryFauxto) error {
	if err := s.galleryRepo.UpsertFauxto(ctx, g); err != nil {
		return fmt.Errorf("failed to add gallery fauxto: %w", err)
	}
	return nil
}

// AddBooth records that an identity has contributed to a booth
func (s *GalleryService) AddBooth(ctx context.Context, identity, boothSlug string) error {
	if err := s.galleryRepo.UpsertBooth(ctx, identity, boothSlug); err != nil {
		return fmt.Errorf("failed to add gallery booth: %w", err)
	}
	return nil
}

// RetractFauxto removes a deleted fauxto from every gallery
func (s *GalleryService) RetractFauxto(ctx context.Context, fauxtoID string) error {
	if err := s.galleryRepo.RemoveFauxto(ctx, fauxtoID); err != nil {
		return fmt.Errorf("failed to retract fauxto: %w", err)
	}
	return nil
}

// RetractBooth removes a deleted booth from every gallery
func (s *GalleryService) RetractBooth(ctx context.Context, boothSlug string) error {
	if err := s.galleryRepo.RemoveBooth(ctx, boothSlug); err != nil {
		return fmt.Errorf("failed to retract booth: %w", err)
	}
	return nil
}

// ListFauxtos returns the fauxtos an identity appears in, newest first
func (s *GalleryService) ListFauxtos(ctx context.Context, identity string) ([]*models.GalleryFauxto, error) {
	return s.galleryRepo.ListFauxtos(ctx, identity)
}

// ListBooths returns the booths an identity has contributed to
func (s *GalleryService) ListBooths(ctx context.Context, identity string) ([]string, error) {
	return s.galleryRepo.ListBooths(ctx, identity)
}

// RegisterPushToken stores an identity's device token for ready notifications
func (s *GalleryService) RegisterPushToken(ctx context.Context, identity, deviceToken string) error {
	if deviceToken == "" {
		return fmt.Errorf("device token is required")
	}
	if err := s.galleryRepo.SetPushToken(ctx, identity, deviceToken); err != nil {
		return fmt.Errorf("failed to register push token: %w", err)
	}
	return nil
}
