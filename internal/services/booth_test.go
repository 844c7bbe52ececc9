package services

import (
	"context"
	"errors"
	"testing"

	"fauxto-booth-backend/internal/config"
	"fauxto-booth-backend/internal/models"
	"fauxto-booth-backend/internal/snap"
	"fauxto-booth-backend/internal/storage"
)

type boothFixture struct {
	svc        *BoothService
	state      *memState
	store      *storage.MemoryStore
	dispatcher *fakeDispatcher
}

func newBoothFixture(t *testing.T) *boothFixture {
	t.Helper()
	state := newMemState()
	store := storage.NewMemoryStore()
	dispatcher := &fakeDispatcher{}

	svc := NewBoothService(
		&fakeBoothRepo{s: state},
		&fakeUploadRepo{s: state},
		&fakeFauxtoRepo{s: state},
		&fakeGalleryRepo{s: state},
		store,
		&fakeGenerator{},
		NewWSHub(),
		nil,
		config.BoothConfig{QuietPeriodSeconds: 30, RetryDelaySeconds: 1, DefaultMemberSize: 2},
		"http://booth.test",
	)
	svc.SetDispatcher(dispatcher)
	return &boothFixture{svc: svc, state: state, store: store, dispatcher: dispatcher}
}

func (f *boothFixture) setup(t *testing.T, slug string, size int, singleUpload bool) {
	t.Helper()
	_, err := f.svc.Setup(context.Background(), slug, CreateBoothRequest{
		DisplayName:     "Test Booth",
		Description:     "a beach at sunset",
		IdealMemberSize: size,
		SingleUpload:    singleUpload,
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
}

func (f *boothFixture) readyBackdrop(t *testing.T, slug string) {
	t.Helper()
	if err := f.svc.ApplyBackdrop(context.Background(), slug, slug+"/backgrounds/b.jpg"); err != nil {
		t.Fatalf("apply backdrop failed: %v", err)
	}
}

func (f *boothFixture) upload(t *testing.T, slug, identity string) {
	t.Helper()
	_, err := f.svc.RecordUpload(context.Background(), slug, identity,
		identity+".jpg", "image/jpeg", []byte("selfie"))
	if err != nil {
		t.Fatalf("upload for %s failed: %v", identity, err)
	}
}

func TestSetupDispatchesBackdropJob(t *testing.T) {
	f := newBoothFixture(t)
	f.setup(t, "party", 3, false)

	if len(f.dispatcher.backdrops) != 1 {
		t.Fatalf("expected 1 backdrop dispatch, got %d", len(f.dispatcher.backdrops))
	}
	booth := f.state.booths["party"]
	if booth.BackdropStatus != "generating" {
		t.Fatalf("expected generating backdrop, got %q", booth.BackdropStatus)
	}
	if booth.DisplayStatus != snap.StatusIdle {
		t.Fatalf("expected idle status, got %q", booth.DisplayStatus)
	}
}

func TestFirstUploadUnderThresholdReportsMissing(t *testing.T) {
	f := newBoothFixture(t)
	f.setup(t, "party", 3, false)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")

	booth := f.state.booths["party"]
	if booth.DisplayStatus != snap.StatusMissing(2) {
		t.Fatalf("expected missing-2 status, got %q", booth.DisplayStatus)
	}
	if f.dispatcher.fauxtoCount() != 0 {
		t.Fatalf("expected no fauxto dispatch, got %d", f.dispatcher.fauxtoCount())
	}
}

func TestSnapFiresAtThreshold(t *testing.T) {
	f := newBoothFixture(t)
	f.setup(t, "party", 2, false)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")
	f.upload(t, "party", "bob")

	if f.dispatcher.fauxtoCount() != 1 {
		t.Fatalf("expected 1 fauxto dispatch, got %d", f.dispatcher.fauxtoCount())
	}
	booth := f.state.booths["party"]
	if booth.InflightCount != 1 {
		t.Fatalf("expected inflight 1, got %d", booth.InflightCount)
	}
	if booth.DisplayStatus != snap.StatusSnapping {
		t.Fatalf("expected snapping status, got %q", booth.DisplayStatus)
	}
}

func TestSnapWaitsForBackdrop(t *testing.T) {
	f := newBoothFixture(t)
	f.setup(t, "party", 2, false)
	f.upload(t, "party", "alice")
	f.upload(t, "party", "bob")

	if f.dispatcher.fauxtoCount() != 0 {
		t.Fatalf("must not dispatch a fauxto before the backdrop is ready, got %d",
			f.dispatcher.fauxtoCount())
	}
	booth := f.state.booths["party"]
	if booth.DisplayStatus != snap.StatusWaiting {
		t.Fatalf("expected waiting status, got %q", booth.DisplayStatus)
	}
	f.svc.cancelTimer("party")
}

func TestDuplicateUploadRejectedUnderSingleUploadPolicy(t *testing.T) {
	f := newBoothFixture(t)
	f.setup(t, "party", 3, true)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")

	_, err := f.svc.RecordUpload(context.Background(), "party", "alice",
		"again.jpg", "image/jpeg", []byte("selfie"))
	var joined *AlreadyJoinedError
	if !errors.As(err, &joined) {
		t.Fatalf("expected AlreadyJoinedError, got %v", err)
	}
	if joined.ShareURL != "http://booth.test/b/party" {
		t.Fatalf("unexpected share url %q", joined.ShareURL)
	}
}

func TestDuplicateUploadAllowedByDefault(t *testing.T) {
	f := newBoothFixture(t)
	f.setup(t, "party", 3, false)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")
	f.upload(t, "party", "alice")

	if len(f.state.uploads) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(f.state.uploads))
	}
}

func TestReserveAndApplyFauxto(t *testing.T) {
	f := newBoothFixture(t)
	ctx := context.Background()
	f.setup(t, "party", 2, false)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")
	f.upload(t, "party", "bob")

	fauxtoID, err := f.svc.ReserveFauxto(ctx, "party", "job-1")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	members, _ := (&fakeFauxtoRepo{s: f.state}).MembersByFauxto(ctx, fauxtoID)
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	if err := f.svc.ApplyFauxto(ctx, "party", fauxtoID, "party/fauxtos/f.jpg"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	booth := f.state.booths["party"]
	if booth.FauxtoCount != 1 {
		t.Fatalf("expected fauxto count 1, got %d", booth.FauxtoCount)
	}
	if booth.InflightCount != 0 {
		t.Fatalf("expected inflight 0, got %d", booth.InflightCount)
	}
	if booth.DisplayStatus != snap.StatusIdle {
		t.Fatalf("expected idle status, got %q", booth.DisplayStatus)
	}
	if len(f.state.galleryItems) != 2 {
		t.Fatalf("expected 2 gallery entries, got %d", len(f.state.galleryItems))
	}
}

func TestApplyFauxtoIsIdempotent(t *testing.T) {
	f := newBoothFixture(t)
	ctx := context.Background()
	f.setup(t, "party", 2, false)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")
	f.upload(t, "party", "bob")

	fauxtoID, err := f.svc.ReserveFauxto(ctx, "party", "job-1")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := f.svc.ApplyFauxto(ctx, "party", fauxtoID, "party/fauxtos/f.jpg"); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	if err := f.svc.ApplyFauxto(ctx, "party", fauxtoID, "party/fauxtos/other.jpg"); err != nil {
		t.Fatalf("replayed apply failed: %v", err)
	}

	booth := f.state.booths["party"]
	if booth.FauxtoCount != 1 {
		t.Fatalf("replay must not double count, got %d", booth.FauxtoCount)
	}
	fauxto := f.state.fauxtos[fauxtoID]
	if *fauxto.FilePath != "party/fauxtos/f.jpg" {
		t.Fatalf("replay must not overwrite the file path, got %q", *fauxto.FilePath)
	}
	if len(f.state.galleryItems) != 2 {
		t.Fatalf("replay must not duplicate gallery entries, got %d", len(f.state.galleryItems))
	}
}

func TestFauxtoJobFailedDiscardsReservation(t *testing.T) {
	f := newBoothFixture(t)
	ctx := context.Background()
	f.setup(t, "party", 2, false)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")
	f.upload(t, "party", "bob")

	fauxtoID, err := f.svc.ReserveFauxto(ctx, "party", "job-1")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	f.svc.FauxtoJobFailed(ctx, "party", "job-1", &fauxtoID)

	if _, ok := f.state.fauxtos[fauxtoID]; ok {
		t.Fatal("reserved fauxto must be discarded on terminal failure")
	}
	booth := f.state.booths["party"]
	if booth.InflightCount != 0 {
		t.Fatalf("expected inflight 0, got %d", booth.InflightCount)
	}

	// The discarded members are selectable again.
	awaiting, _ := (&fakeUploadRepo{s: f.state}).AwaitingCount(ctx, "party")
	if awaiting != 2 {
		t.Fatalf("expected 2 awaiting after discard, got %d", awaiting)
	}
}

func TestAwaitingExcludesCapturedIdentities(t *testing.T) {
	f := newBoothFixture(t)
	ctx := context.Background()
	f.setup(t, "party", 2, false)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")
	f.upload(t, "party", "bob")

	fauxtoID, err := f.svc.ReserveFauxto(ctx, "party", "job-1")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := f.svc.ApplyFauxto(ctx, "party", fauxtoID, "party/fauxtos/f.jpg"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	awaiting, _ := (&fakeUploadRepo{s: f.state}).AwaitingCount(ctx, "party")
	if awaiting != 0 {
		t.Fatalf("expected 0 awaiting after capture, got %d", awaiting)
	}

	f.upload(t, "party", "carol")
	awaiting, _ = (&fakeUploadRepo{s: f.state}).AwaitingCount(ctx, "party")
	if awaiting != 1 {
		t.Fatalf("expected 1 awaiting after new identity, got %d", awaiting)
	}
	f.svc.cancelTimer("party")
}

func TestDeleteUploadCascadesToFauxtos(t *testing.T) {
	f := newBoothFixture(t)
	ctx := context.Background()
	f.setup(t, "party", 2, false)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")
	f.upload(t, "party", "bob")

	fauxtoID, err := f.svc.ReserveFauxto(ctx, "party", "job-1")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := f.svc.ApplyFauxto(ctx, "party", fauxtoID, "party/fauxtos/f.jpg"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	var aliceUpload string
	for id, u := range f.state.uploads {
		if u.Identity == "alice" {
			aliceUpload = id
		}
	}
	if err := f.svc.DeleteUpload(ctx, aliceUpload); err != nil {
		t.Fatalf("delete upload failed: %v", err)
	}

	if _, ok := f.state.fauxtos[fauxtoID]; ok {
		t.Fatal("fauxto containing the deleted upload must be removed")
	}
	if _, ok := f.state.uploads[aliceUpload]; ok {
		t.Fatal("upload row must be removed")
	}
	if len(f.state.galleryItems) != 0 {
		t.Fatalf("gallery entries must be retracted, got %d", len(f.state.galleryItems))
	}
	booth := f.state.booths["party"]
	if booth.FauxtoCount != 0 {
		t.Fatalf("expected fauxto count recounted to 0, got %d", booth.FauxtoCount)
	}
}

func TestDeleteBoothTearsDownEverything(t *testing.T) {
	f := newBoothFixture(t)
	ctx := context.Background()
	f.setup(t, "party", 2, false)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")
	f.upload(t, "party", "bob")

	fauxtoID, err := f.svc.ReserveFauxto(ctx, "party", "job-1")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := f.svc.ApplyFauxto(ctx, "party", fauxtoID, "party/fauxtos/f.jpg"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if err := f.svc.DeleteBooth(ctx, "party"); err != nil {
		t.Fatalf("delete booth failed: %v", err)
	}

	if len(f.state.booths) != 0 {
		t.Fatal("booth row must be removed")
	}
	if len(f.state.uploads) != 0 || len(f.state.fauxtos) != 0 {
		t.Fatal("uploads and fauxtos must cascade with the booth")
	}
	if len(f.state.galleryItems) != 0 {
		t.Fatalf("gallery entries must be retracted, got %d", len(f.state.galleryItems))
	}
	if f.store.Len() != 0 {
		t.Fatalf("stored images must be deleted, %d left", f.store.Len())
	}
}

func TestGroupSizeChangeTriggersEvaluation(t *testing.T) {
	f := newBoothFixture(t)
	ctx := context.Background()
	f.setup(t, "party", 5, false)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")
	f.upload(t, "party", "bob")

	if f.dispatcher.fauxtoCount() != 0 {
		t.Fatalf("expected no dispatch at size 5, got %d", f.dispatcher.fauxtoCount())
	}

	if err := f.svc.SetIdealMemberSize(ctx, "party", 2); err != nil {
		t.Fatalf("set size failed: %v", err)
	}
	if f.dispatcher.fauxtoCount() != 1 {
		t.Fatalf("expected dispatch after lowering size, got %d", f.dispatcher.fauxtoCount())
	}
}

func TestReshootFiresWithFewMembers(t *testing.T) {
	f := newBoothFixture(t)
	ctx := context.Background()
	f.setup(t, "party", 4, false)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")

	if f.dispatcher.fauxtoCount() != 0 {
		t.Fatalf("expected no dispatch under threshold, got %d", f.dispatcher.fauxtoCount())
	}
	if err := f.svc.Reshoot(ctx, "party"); err != nil {
		t.Fatalf("reshoot failed: %v", err)
	}
	if f.dispatcher.fauxtoCount() != 1 {
		t.Fatalf("expected forced dispatch, got %d", f.dispatcher.fauxtoCount())
	}
}

// flakyFauxtoRepo fails a configured number of AddMember calls to leave a
// partial reservation behind.
type flakyFauxtoRepo struct {
	*fakeFauxtoRepo
	failAddMember int
}

func (r *flakyFauxtoRepo) AddMember(ctx context.Context, m *models.FauxtoMember) error {
	if r.failAddMember > 0 {
		r.failAddMember--
		return errors.New("insert failed")
	}
	return r.fakeFauxtoRepo.AddMember(ctx, m)
}

func newFlakyBoothFixture(t *testing.T, failAddMember int) (*boothFixture, *flakyFauxtoRepo) {
	t.Helper()
	state := newMemState()
	store := storage.NewMemoryStore()
	dispatcher := &fakeDispatcher{}
	flaky := &flakyFauxtoRepo{
		fakeFauxtoRepo: &fakeFauxtoRepo{s: state},
		failAddMember:  failAddMember,
	}

	svc := NewBoothService(
		&fakeBoothRepo{s: state},
		&fakeUploadRepo{s: state},
		flaky,
		&fakeGalleryRepo{s: state},
		store,
		&fakeGenerator{},
		NewWSHub(),
		nil,
		config.BoothConfig{QuietPeriodSeconds: 30, RetryDelaySeconds: 1, DefaultMemberSize: 2},
		"http://booth.test",
	)
	svc.SetDispatcher(dispatcher)
	return &boothFixture{svc: svc, state: state, store: store, dispatcher: dispatcher}, flaky
}

func TestReserveRetryAfterPartialFailureKeepsOneFauxto(t *testing.T) {
	f, flaky := newFlakyBoothFixture(t, 1)
	ctx := context.Background()
	f.setup(t, "party", 2, false)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")
	f.upload(t, "party", "bob")

	if _, err := f.svc.ReserveFauxto(ctx, "party", "job-1"); err == nil {
		t.Fatal("expected first reserve attempt to fail")
	}
	if len(f.state.fauxtos) != 1 {
		t.Fatalf("expected 1 partial row after failed attempt, got %d", len(f.state.fauxtos))
	}

	fauxtoID, err := f.svc.ReserveFauxto(ctx, "party", "job-1")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if len(f.state.fauxtos) != 1 {
		t.Fatalf("retry must replace the partial row, got %d fauxto rows", len(f.state.fauxtos))
	}
	members, _ := flaky.MembersByFauxto(ctx, fauxtoID)
	if len(members) != 2 {
		t.Fatalf("expected 2 members after retry, got %d", len(members))
	}
}

func TestFauxtoJobFailedCleansUnrecordedReservation(t *testing.T) {
	f, _ := newFlakyBoothFixture(t, 100)
	ctx := context.Background()
	f.setup(t, "party", 2, false)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")
	f.upload(t, "party", "bob")

	if _, err := f.svc.ReserveFauxto(ctx, "party", "job-1"); err == nil {
		t.Fatal("expected reserve to fail")
	}
	if len(f.state.fauxtos) != 1 {
		t.Fatalf("expected 1 partial row, got %d", len(f.state.fauxtos))
	}

	// Reserve never finished, so the job row carries no fauxto id.
	f.svc.FauxtoJobFailed(ctx, "party", "job-1", nil)

	if len(f.state.fauxtos) != 0 {
		t.Fatalf("partial reservation must be discarded, got %d rows", len(f.state.fauxtos))
	}
	awaiting, _ := (&fakeUploadRepo{s: f.state}).AwaitingCount(ctx, "party")
	if awaiting != 2 {
		t.Fatalf("expected 2 awaiting after cleanup, got %d", awaiting)
	}
	if f.state.booths["party"].InflightCount != 0 {
		t.Fatalf("expected inflight 0, got %d", f.state.booths["party"].InflightCount)
	}
}

func TestRetryAfterUploadRemovalDoesNotFire(t *testing.T) {
	f := newBoothFixture(t)
	ctx := context.Background()
	f.setup(t, "party", 2, false)
	f.readyBackdrop(t, "party")
	f.upload(t, "party", "alice")
	f.upload(t, "party", "bob")

	fauxtoID, err := f.svc.ReserveFauxto(ctx, "party", "job-1")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := f.svc.ApplyFauxto(ctx, "party", fauxtoID, "party/fauxtos/f.jpg"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	// A new uploader arrives within the quiet period, then withdraws
	// before the debounced retry runs.
	f.upload(t, "party", "carol")
	f.svc.cancelTimer("party")

	var carolUpload string
	for id, u := range f.state.uploads {
		if u.Identity == "carol" {
			carolUpload = id
		}
	}
	if err := f.svc.DeleteUpload(ctx, carolUpload); err != nil {
		t.Fatalf("delete upload failed: %v", err)
	}

	before := f.dispatcher.fauxtoCount()
	f.svc.EvaluateSnap(ctx, "party", false, false)
	if f.dispatcher.fauxtoCount() != before {
		t.Fatal("retry with no awaiting uploaders must not dispatch a composite")
	}
}

func TestRefreshBackdropKeepsOldOnFailure(t *testing.T) {
	f := newBoothFixture(t)
	ctx := context.Background()
	f.setup(t, "party", 2, false)
	f.readyBackdrop(t, "party")

	if err := f.svc.RefreshBackdrop(ctx, "party"); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if f.state.booths["party"].BackdropStatus != "generating" {
		t.Fatalf("expected generating, got %q", f.state.booths["party"].BackdropStatus)
	}

	f.svc.BackdropJobFailed(ctx, "party")

	booth := f.state.booths["party"]
	if booth.BackdropStatus != "ready" {
		t.Fatalf("expected old backdrop restored, got %q", booth.BackdropStatus)
	}
	if booth.BackdropPath == nil {
		t.Fatal("old backdrop path must survive the failed refresh")
	}
}
