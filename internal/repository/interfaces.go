package repository

import (
	"context"
	"time"

	"fauxto-booth-backend/internal/models"
	"fauxto-booth-backend/internal/snap"
)

// BoothRepositoryInterface defines the methods for booth data operations
type BoothRepositoryInterface interface {
	Create(ctx context.Context, b *models.Booth) error
	GetBySlug(ctx context.Context, slug string) (*models.Booth, error)
	ListAll(ctx context.Context) ([]*models.Booth, error)
	Delete(ctx context.Context, slug string) error
	SetDisplayStatus(ctx context.Context, slug, status string) error
	SetBackdropGenerating(ctx context.Context, slug string) error
	SetBackdropReady(ctx context.Context, slug, path string) error
	SetIdealMemberSize(ctx context.Context, slug string, size int) error
	IncrementUploadedCount(ctx context.Context, slug string) error
	AddInflight(ctx context.Context, slug string, delta int) (int, error)
	IncrementFauxtoCount(ctx context.Context, slug string) error
	SetFauxtoCount(ctx context.Context, slug string, count int) error
}

// UploadRepositoryInterface defines the methods for upload ledger operations
type UploadRepositoryInterface interface {
	Create(ctx context.Context, u *models.Upload) error
	GetByID(ctx context.Context, id string) (*models.Upload, error)
	ListByBooth(ctx context.Context, slug string) ([]*models.Upload, error)
	Delete(ctx context.Context, id string) error
	HasIdentityUpload(ctx context.Context, slug, identity string) (bool, error)
	AwaitingCount(ctx context.Context, slug string) (int, error)
	MemberCandidates(ctx context.Context, slug string) ([]snap.Candidate, error)
}

// FauxtoRepositoryInterface defines the methods for the composite ledger
type FauxtoRepositoryInterface interface {
	Create(ctx context.Context, f *models.Fauxto) error
	GetByID(ctx context.Context, id string) (*models.Fauxto, error)
	GetByJobID(ctx context.Context, jobID string) (*models.Fauxto, error)
	AddMember(ctx context.Context, m *models.FauxtoMember) error
	MembersByFauxto(ctx context.Context, fauxtoID string) ([]*models.FauxtoMember, error)
	MemberFilePaths(ctx context.Context, fauxtoID string) ([]string, error)
	SetFilePathIfEmpty(ctx context.Context, id, path string) (bool, error)
	LastCreatedAt(ctx context.Context, slug string) (*time.Time, error)
	ListRecent(ctx context.Context, slug string, limit int) ([]*models.Fauxto, error)
	ListByBooth(ctx context.Context, slug string) ([]*models.Fauxto, error)
	List(ctx context.Context, filter FauxtoFilter) ([]*models.Fauxto, error)
	CountCompleted(ctx context.Context, slug string) (int, error)
	Delete(ctx context.Context, id string) error
	FauxtoIDsByUpload(ctx context.Context, uploadID string) ([]string, error)
}

// FauxtoFilter narrows the admin fauxto listing
type FauxtoFilter struct {
	BoothSlug     string
	OnlyCompleted bool
	Limit         int
	Offset        int
}

// DirectoryRepositoryInterface defines the methods for the booth registry
type DirectoryRepositoryInterface interface {
	Insert(ctx context.Context, e *models.DirectoryEntry) error
	ListSlugsWithBase(ctx context.Context, base string) ([]string, error)
	Latest(ctx context.Context, limit int) ([]*models.DirectoryEntry, error)
	Delete(ctx context.Context, slug string) error
}

// GalleryRepositoryInterface defines the methods for per-identity views
type GalleryRepositoryInterface interface {
	UpsertFauxto(ctx context.Context, g *models.GalleryFauxto) error
	UpsertBooth(ctx context.Context, identity, boothSlug string) error
	RemoveFauxto(ctx context.Context, fauxtoID string) error
	RemoveBooth(ctx context.Context, boothSlug string) error
	ListFauxtos(ctx context.Context, identity string) ([]*models.GalleryFauxto, error)
	ListBooths(ctx context.Context, identity string) ([]string, error)
	SetPushToken(ctx context.Context, identity, deviceToken string) error
	PushTokens(ctx context.Context, identities []string) (map[string]string, error)
}

// JobRepositoryInterface defines the methods for durable job records
type JobRepositoryInterface interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	SetStep(ctx context.Context, id, step, checkpoint string) error
	SetFauxtoID(ctx context.Context, id, fauxtoID string) error
	RecordAttempt(ctx context.Context, id string, attempts int, lastError string) error
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, lastError string) error
	ListUnfinished(ctx context.Context) ([]*models.Job, error)
}
