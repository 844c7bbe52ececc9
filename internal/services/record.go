package services

import (
	"context"
	"fmt"
	"time"

	"fauxto-booth-backend/internal/repository"
)

// FauxtoRecord is the externally-visible result for one fauxto, used for
// direct lookup and sharing.
type FauxtoRecord struct {
	ID               string    `json:"id"`
	FilePath         *string   `json:"file_path,omitempty"`
	BoothSlug        string    `json:"booth_slug"`
	BoothDisplayName string    `json:"booth_display_name"`
	Members          []string  `json:"members"`
	CreatedAt        time.Time `json:"created_at"`
}

// RecordService resolves fauxto records from the composite ledger. The
// booth actor is the sole writer; this is the read side.
type RecordService struct {
	fauxtoRepo repository.FauxtoRepositoryInterface
	boothRepo  repository.BoothRepositoryInterface
}

// NewRecordService creates a new fauxto record service
func NewRecordService(
	fauxtoRepo repository.FauxtoRepositoryInterface,
	boothRepo repository.BoothRepositoryInterface,
) *RecordService {
	return &RecordService{fauxtoRepo: fauxtoRepo, boothRepo: boothRepo}
}

// Get returns the record for one fauxto
func (s *RecordService) Get(ctx context.Context, fauxtoID string) (*FauxtoRecord, error) {
	fauxto, err := s.fauxtoRepo.GetByID(ctx, fauxtoID)
	if err != nil {
		return nil, err
	}

	members, err := s.fauxtoRepo.MembersByFauxto(ctx, fauxtoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fauxto members: %w", err)
	}

	record := &FauxtoRecord{
		ID:        fauxto.ID,
		FilePath:  fauxto.FilePath,
		BoothSlug: fauxto.BoothSlug,
		Members:   make([]string, 0, len(members)),
		CreatedAt: fauxto.CreatedAt,
	}
	for _, m := range members {
		record.Members = append(record.Members, m.Identity)
	}

	if booth, err := s.boothRepo.GetBySlug(ctx, fauxto.BoothSlug); err == nil {
		record.BoothDisplayName = booth.DisplayName
	}
	return record, nil
}
