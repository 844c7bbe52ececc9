package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"fauxto-booth-backend/internal/models"
	"fauxto-booth-backend/internal/repository"
	"fauxto-booth-backend/internal/snap"

	"github.com/google/uuid"
)

// memState is shared in-memory backing for the repository fakes so the
// cross-table queries behave like the real schema.
type memState struct {
	mu            sync.Mutex
	booths        map[string]*models.Booth
	uploads       map[string]*models.Upload
	fauxtos       map[string]*models.Fauxto
	members       []*models.FauxtoMember
	galleryItems  []*models.GalleryFauxto
	galleryBooths map[string]map[string]bool
	pushTokens    map[string]string
	directory     []*models.DirectoryEntry
	deletedSlugs  map[string]bool
}

func newMemState() *memState {
	return &memState{
		booths:        make(map[string]*models.Booth),
		uploads:       make(map[string]*models.Upload),
		fauxtos:       make(map[string]*models.Fauxto),
		galleryBooths: make(map[string]map[string]bool),
		pushTokens:    make(map[string]string),
		deletedSlugs:  make(map[string]bool),
	}
}

type fakeBoothRepo struct{ s *memState }

func (r *fakeBoothRepo) Create(ctx context.Context, b *models.Booth) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *b
	r.s.booths[b.Slug] = &cp
	return nil
}

func (r *fakeBoothRepo) GetBySlug(ctx context.Context, slug string) (*models.Booth, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.booths[slug]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBoothRepo) ListAll(ctx context.Context) ([]*models.Booth, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Booth, 0, len(r.s.booths))
	for _, b := range r.s.booths {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeBoothRepo) Delete(ctx context.Context, slug string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.booths[slug]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.booths, slug)
	for id, u := range r.s.uploads {
		if u.BoothSlug == slug {
			delete(r.s.uploads, id)
		}
	}
	for id, f := range r.s.fauxtos {
		if f.BoothSlug == slug {
			delete(r.s.fauxtos, id)
			r.s.dropMembersLocked(id)
		}
	}
	return nil
}

func (r *fakeBoothRepo) SetDisplayStatus(ctx context.Context, slug, status string) error {
	return r.update(slug, func(b *models.Booth) { b.DisplayStatus = status })
}

func (r *fakeBoothRepo) SetBackdropGenerating(ctx context.Context, slug string) error {
	return r.update(slug, func(b *models.Booth) { b.BackdropStatus = models.BackdropGenerating })
}

func (r *fakeBoothRepo) SetBackdropReady(ctx context.Context, slug, path string) error {
	return r.update(slug, func(b *models.Booth) {
		b.BackdropPath = &path
		b.BackdropStatus = models.BackdropReady
	})
}

func (r *fakeBoothRepo) SetIdealMemberSize(ctx context.Context, slug string, size int) error {
	return r.update(slug, func(b *models.Booth) { b.IdealMemberSize = size })
}

func (r *fakeBoothRepo) IncrementUploadedCount(ctx context.Context, slug string) error {
	return r.update(slug, func(b *models.Booth) { b.UploadedCount++ })
}

func (r *fakeBoothRepo) AddInflight(ctx context.Context, slug string, delta int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.booths[slug]
	if !ok {
		return 0, repository.ErrNotFound
	}
	b.InflightCount += delta
	if b.InflightCount < 0 {
		b.InflightCount = 0
	}
	return b.InflightCount, nil
}

func (r *fakeBoothRepo) IncrementFauxtoCount(ctx context.Context, slug string) error {
	return r.update(slug, func(b *models.Booth) { b.FauxtoCount++ })
}

func (r *fakeBoothRepo) SetFauxtoCount(ctx context.Context, slug string, count int) error {
	return r.update(slug, func(b *models.Booth) { b.FauxtoCount = count })
}

func (r *fakeBoothRepo) update(slug string, fn func(*models.Booth)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.booths[slug]
	if !ok {
		return repository.ErrNotFound
	}
	fn(b)
	return nil
}

type fakeUploadRepo struct{ s *memState }

func (r *fakeUploadRepo) Create(ctx context.Context, u *models.Upload) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *u
	r.s.uploads[u.ID] = &cp
	return nil
}

func (r *fakeUploadRepo) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.uploads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUploadRepo) ListByBooth(ctx context.Context, slug string) ([]*models.Upload, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Upload
	for _, u := range r.s.uploads {
		if u.BoothSlug == slug {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeUploadRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.uploads[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.uploads, id)
	return nil
}

func (r *fakeUploadRepo) HasIdentityUpload(ctx context.Context, slug, identity string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.uploads {
		if u.BoothSlug == slug && u.Identity == identity {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeUploadRepo) AwaitingCount(ctx context.Context, slug string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	uploaders := map[string]bool{}
	for _, u := range r.s.uploads {
		if u.BoothSlug == slug {
			uploaders[u.Identity] = true
		}
	}
	captured := map[string]bool{}
	for _, m := range r.s.members {
		f, ok := r.s.fauxtos[m.FauxtoID]
		if ok && f.BoothSlug == slug {
			captured[m.Identity] = true
		}
	}
	awaiting := 0
	for id := range uploaders {
		if !captured[id] {
			awaiting++
		}
	}
	return awaiting, nil
}

func (r *fakeUploadRepo) MemberCandidates(ctx context.Context, slug string) ([]snap.Candidate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	identityUsage := map[string]map[string]bool{}
	uploadUsage := map[string]int{}
	for _, m := range r.s.members {
		f, ok := r.s.fauxtos[m.FauxtoID]
		if !ok || f.BoothSlug != slug {
			continue
		}
		uploadUsage[m.UploadID]++
		if identityUsage[m.Identity] == nil {
			identityUsage[m.Identity] = map[string]bool{}
		}
		identityUsage[m.Identity][m.FauxtoID] = true
	}

	var out []snap.Candidate
	for _, u := range r.s.uploads {
		if u.BoothSlug != slug {
			continue
		}
		out = append(out, snap.Candidate{
			UploadID:      u.ID,
			Identity:      u.Identity,
			FilePath:      u.FilePath,
			CreatedAt:     u.CreatedAt,
			UsageCount:    uploadUsage[u.ID],
			IdentityUsage: len(identityUsage[u.Identity]),
		})
	}
	return out, nil
}

type fakeFauxtoRepo struct{ s *memState }

func (r *fakeFauxtoRepo) Create(ctx context.Context, f *models.Fauxto) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *f
	r.s.fauxtos[f.ID] = &cp
	return nil
}

func (r *fakeFauxtoRepo) GetByID(ctx context.Context, id string) (*models.Fauxto, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.fauxtos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *fakeFauxtoRepo) GetByJobID(ctx context.Context, jobID string) (*models.Fauxto, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range r.s.fauxtos {
		if f.JobID != nil && *f.JobID == jobID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeFauxtoRepo) AddMember(ctx context.Context, m *models.FauxtoMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *m
	r.s.members = append(r.s.members, &cp)
	return nil
}

func (r *fakeFauxtoRepo) MembersByFauxto(ctx context.Context, fauxtoID string) ([]*models.FauxtoMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.FauxtoMember
	for _, m := range r.s.members {
		if m.FauxtoID == fauxtoID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeFauxtoRepo) MemberFilePaths(ctx context.Context, fauxtoID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []string
	for _, m := range r.s.members {
		if m.FauxtoID == fauxtoID {
			if u, ok := r.s.uploads[m.UploadID]; ok {
				out = append(out, u.FilePath)
			}
		}
	}
	return out, nil
}

func (r *fakeFauxtoRepo) SetFilePathIfEmpty(ctx context.Context, id, path string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.fauxtos[id]
	if !ok || f.FilePath != nil {
		return false, nil
	}
	f.FilePath = &path
	return true, nil
}

func (r *fakeFauxtoRepo) LastCreatedAt(ctx context.Context, slug string) (*time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var last *time.Time
	for _, f := range r.s.fauxtos {
		if f.BoothSlug != slug {
			continue
		}
		t := f.CreatedAt
		if last == nil || t.After(*last) {
			last = &t
		}
	}
	return last, nil
}

func (r *fakeFauxtoRepo) ListRecent(ctx context.Context, slug string, limit int) ([]*models.Fauxto, error) {
	all, _ := r.ListByBooth(ctx, slug)
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeFauxtoRepo) ListByBooth(ctx context.Context, slug string) ([]*models.Fauxto, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Fauxto
	for _, f := range r.s.fauxtos {
		if f.BoothSlug == slug {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeFauxtoRepo) List(ctx context.Context, filter repository.FauxtoFilter) ([]*models.Fauxto, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Fauxto
	for _, f := range r.s.fauxtos {
		if filter.BoothSlug != "" && f.BoothSlug != filter.BoothSlug {
			continue
		}
		if filter.OnlyCompleted && f.FilePath == nil {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeFauxtoRepo) CountCompleted(ctx context.Context, slug string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, f := range r.s.fauxtos {
		if f.BoothSlug == slug && f.FilePath != nil {
			n++
		}
	}
	return n, nil
}

func (r *fakeFauxtoRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.fauxtos[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.fauxtos, id)
	r.s.dropMembersLocked(id)
	return nil
}

func (r *fakeFauxtoRepo) FauxtoIDsByUpload(ctx context.Context, uploadID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []string
	for _, m := range r.s.members {
		if m.UploadID == uploadID {
			out = append(out, m.FauxtoID)
		}
	}
	return out, nil
}

func (s *memState) dropMembersLocked(fauxtoID string) {
	kept := s.members[:0]
	for _, m := range s.members {
		if m.FauxtoID != fauxtoID {
			kept = append(kept, m)
		}
	}
	s.members = kept
}

type fakeGalleryRepo struct{ s *memState }

func (r *fakeGalleryRepo) UpsertFauxto(ctx context.Context, g *models.GalleryFauxto) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.s.galleryItems {
		if item.Identity == g.Identity && item.FauxtoID == g.FauxtoID {
			return nil
		}
	}
	cp := *g
	r.s.galleryItems = append(r.s.galleryItems, &cp)
	return nil
}

func (r *fakeGalleryRepo) UpsertBooth(ctx context.Context, identity, boothSlug string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.galleryBooths[identity] == nil {
		r.s.galleryBooths[identity] = map[string]bool{}
	}
	r.s.galleryBooths[identity][boothSlug] = true
	return nil
}

func (r *fakeGalleryRepo) RemoveFauxto(ctx context.Context, fauxtoID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.galleryItems[:0]
	for _, item := range r.s.galleryItems {
		if item.FauxtoID != fauxtoID {
			kept = append(kept, item)
		}
	}
	r.s.galleryItems = kept
	return nil
}

func (r *fakeGalleryRepo) RemoveBooth(ctx context.Context, boothSlug string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, booths := range r.s.galleryBooths {
		delete(booths, boothSlug)
	}
	return nil
}

func (r *fakeGalleryRepo) ListFauxtos(ctx context.Context, identity string) ([]*models.GalleryFauxto, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.GalleryFauxto
	for _, item := range r.s.galleryItems {
		if item.Identity == identity {
			cp := *item
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeGalleryRepo) ListBooths(ctx context.Context, identity string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []string
	for slug := range r.s.galleryBooths[identity] {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeGalleryRepo) SetPushToken(ctx context.Context, identity, deviceToken string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.pushTokens[identity] = deviceToken
	return nil
}

func (r *fakeGalleryRepo) PushTokens(ctx context.Context, identities []string) (map[string]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[string]string{}
	for _, id := range identities {
		if token, ok := r.s.pushTokens[id]; ok {
			out[id] = token
		}
	}
	return out, nil
}

type fakeDirectoryRepo struct{ s *memState }

func (r *fakeDirectoryRepo) Insert(ctx context.Context, e *models.DirectoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *e
	r.s.directory = append(r.s.directory, &cp)
	return nil
}

func (r *fakeDirectoryRepo) ListSlugsWithBase(ctx context.Context, base string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []string
	for _, e := range r.s.directory {
		if e.Slug == base || len(e.Slug) > len(base) && e.Slug[:len(base)+1] == base+"-" {
			out = append(out, e.Slug)
		}
	}
	return out, nil
}

func (r *fakeDirectoryRepo) Latest(ctx context.Context, limit int) ([]*models.DirectoryEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.DirectoryEntry
	for _, e := range r.s.directory {
		if r.s.deletedSlugs[e.Slug] {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeDirectoryRepo) Delete(ctx context.Context, slug string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.deletedSlugs[slug] = true
	return nil
}

// fakeDispatcher records job dispatches without running anything
type fakeDispatcher struct {
	mu        sync.Mutex
	backdrops []string
	fauxtos   []string
}

func (d *fakeDispatcher) DispatchBackdrop(ctx context.Context, boothSlug string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backdrops = append(d.backdrops, boothSlug)
	return uuid.New().String(), nil
}

func (d *fakeDispatcher) DispatchFauxto(ctx context.Context, boothSlug string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fauxtos = append(d.fauxtos, boothSlug)
	return uuid.New().String(), nil
}

func (d *fakeDispatcher) fauxtoCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fauxtos)
}

// fakeGenerator returns fixed source URLs
type fakeGenerator struct{}

func (g *fakeGenerator) GenerateBackdrop(ctx context.Context, style string) (string, error) {
	return "http://generator.test/backdrop.jpg", nil
}

func (g *fakeGenerator) GenerateComposite(ctx context.Context, backdropURL string, memberURLs []string, style string) (string, error) {
	return "http://generator.test/composite.jpg", nil
}
