package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fauxto-booth-backend/internal/models"
	"fauxto-booth-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

const latestBoothLimit = 10

// DirectoryService is the registry of all booths: it issues unique slugs,
// keeps the recency listing, and orchestrates creation and teardown.
type DirectoryService struct {
	directoryRepo repository.DirectoryRepositoryInterface
	boothService  *BoothService
}

// NewDirectoryService creates a new directory service
func NewDirectoryService(
	directoryRepo repository.DirectoryRepositoryInterface,
	boothService *BoothService,
) *DirectoryService {
	return &DirectoryService{
		directoryRepo: directoryRepo,
		boothService:  boothService,
	}
}

// CreateBoothRequest carries the booth creation parameters
type CreateBoothRequest struct {
	DisplayName     string `json:"display_name"`
	Description     string `json:"description"`
	IdealMemberSize int    `json:"ideal_member_size"`
	SingleUpload    bool   `json:"single_upload"`
}

// CreateBooth issues a slug, sets up the booth actor and registers the entry
func (s *DirectoryService) CreateBooth(ctx context.Context, req CreateBoothRequest) (*models.Booth, error) {
	if strings.TrimSpace(req.DisplayName) == "" {
		return nil, fmt.Errorf("display name is required")
	}

	slug, err := s.uniqueSlug(ctx, req.DisplayName)
	if err != nil {
		return nil, err
	}

	booth, err := s.boothService.Setup(ctx, slug, req)
	if err != nil {
		return nil, fmt.Errorf("failed to set up booth: %w", err)
	}

	entry := &models.DirectoryEntry{
		Slug:        slug,
		DisplayName: req.DisplayName,
		CreatedAt:   time.Now(),
	}
	if err := s.directoryRepo.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to register booth: %w", err)
	}

	log.Info().Str("booth", slug).Str("display_name", req.DisplayName).Msg("Booth created")
	return booth, nil
}

// Latest returns the most recently created booths, capped at 10
func (s *DirectoryService) Latest(ctx context.Context) ([]*models.DirectoryEntry, error) {
	return s.directoryRepo.Latest(ctx, latestBoothLimit)
}

// DeleteBooth tears the booth down and only then retires the directory entry
func (s *DirectoryService) DeleteBooth(ctx context.Context, slug string) error {
	if err := s.boothService.DeleteBooth(ctx, slug); err != nil {
		return err
	}
	if err := s.directoryRepo.Delete(ctx, slug); err != nil {
		return fmt.Errorf("failed to remove directory entry: %w", err)
	}
	log.Info().Str("booth", slug).Msg("Booth deleted")
	return nil
}

func (s *DirectoryService) uniqueSlug(ctx context.Context, displayName string) (string, error) {
	base := Slugify(displayName)
	existing, err := s.directoryRepo.ListSlugsWithBase(ctx, base)
	if err != nil {
		return "", fmt.Errorf("failed to check slug collisions: %w", err)
	}
	return NextSlug(base, existing), nil
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a display name into a URL-safe slug; an empty result
// falls back to "booth".
func Slugify(displayName string) string {
	slug := strings.ToLower(strings.TrimSpace(displayName))
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "booth"
	}
	return slug
}

// NextSlug resolves a slug collision by appending the smallest suffix
// greater than any base-N already issued, starting at 2.
func NextSlug(base string, existing []string) string {
	if len(existing) == 0 {
		return base
	}

	taken := make(map[string]struct{}, len(existing))
	for _, slug := range existing {
		taken[slug] = struct{}{}
	}
	if _, ok := taken[base]; !ok {
		return base
	}

	maxSuffix := 1
	for slug := range taken {
		rest, ok := strings.CutPrefix(slug, base+"-")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n > maxSuffix {
			maxSuffix = n
		}
	}
	return fmt.Sprintf("%s-%d", base, maxSuffix+1)
}
