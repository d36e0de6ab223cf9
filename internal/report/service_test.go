package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SneHope/TVH-NotiZAR/internal/adapter/sqlite"
	"github.com/SneHope/TVH-NotiZAR/internal/domain"
	"github.com/SneHope/TVH-NotiZAR/internal/feed"
	"github.com/SneHope/TVH-NotiZAR/internal/observability"
)

var t0 = time.Date(2025, 7, 14, 6, 30, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	store   *sqlite.Store
	reports *feed.Hub[domain.Report]
	updates *feed.Hub[domain.AdminUpdate]
	clock   *clockwork.FakeClock
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "reports.sqlite"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:   store,
		reports: feed.NewHub[domain.Report](),
		updates: feed.NewHub[domain.AdminUpdate](),
		clock:   clockwork.NewFakeClockAt(t0),
	}
	opts = append([]Option{WithClock(f.clock)}, opts...)
	f.svc = NewService(store, f.reports, f.updates, discardLogger(), observability.NewMetricsForTesting(), opts...)
	return f
}

func validInput() domain.ReportInput {
	return domain.ReportInput{
		ReporterName:  "Ayanda",
		ReporterEmail: "ayanda@example.com",
		ReportType:    "incident",
		Description:   "Streetlights out on Church Street",
		Location:      "Pretoria CBD",
	}
}

func TestSubmit_PersistsAndPublishes(t *testing.T) {
	f := newFixture(t)
	got := make(chan domain.Report, 1)
	sub, err := f.svc.SubscribeToInserts(func(r domain.Report) { got <- r })
	require.NoError(t, err)
	defer sub.Cancel()

	in := validInput()
	in.Description = "  " + in.Description + "  "
	r, err := f.svc.Submit(context.Background(), in)
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, domain.StatusSubmitted, r.Status)
	assert.True(t, r.CreatedAt.Equal(t0))
	assert.Equal(t, "Streetlights out on Church Street", r.Description)

	select {
	case pushed := <-got:
		assert.Equal(t, r.ID, pushed.ID)
	case <-time.After(time.Second):
		t.Fatal("no insert event")
	}

	stored, err := f.svc.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, stored)
}

func TestSubmit_ValidationCreatesNothing(t *testing.T) {
	f := newFixture(t)
	events := make(chan domain.Report, 1)
	_, err := f.svc.SubscribeToInserts(func(r domain.Report) { events <- r })
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), domain.ReportInput{
		ReportType:  "incident",
		Description: "   ",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.ElementsMatch(t, []string{"description", "location"}, ve.Fields)

	all, err := f.svc.List(context.Background(), domain.ReportFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	select {
	case <-events:
		t.Fatal("rejected submission must not be announced")
	case <-time.After(30 * time.Millisecond):
	}
}

type failingFeed[T any] struct{}

func (failingFeed[T]) Publish(context.Context, T) error {
	return errors.New("broker down")
}

func (failingFeed[T]) Subscribe(func(T)) (domain.Subscription, error) {
	return nil, errors.New("broker down")
}

func TestSubmit_PublishFailureStillSucceeds(t *testing.T) {
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "r.sqlite"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := NewService(store, failingFeed[domain.Report]{}, failingFeed[domain.AdminUpdate]{}, discardLogger(), observability.NewMetricsForTesting())

	r, err := svc.Submit(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.GetByID(context.Background(), r.ID)
	assert.NoError(t, err)

	_, err = svc.SubscribeToInserts(func(domain.Report) {})
	assert.Error(t, err)
}

type stubGeocoder struct{}

func (stubGeocoder) ForwardGeocode(context.Context, string) (domain.GeocodingResult, error) {
	return domain.GeocodingResult{Lat: -25.75, Lon: 28.19, PlaceName: "Pretoria Central"}, nil
}

func (stubGeocoder) ReverseGeocode(context.Context, float64, float64) (domain.GeocodingResult, error) {
	return domain.GeocodingResult{}, errors.New("unused")
}

func TestSubmit_EnrichesLocation(t *testing.T) {
	f := newFixture(t, WithGeocoder(stubGeocoder{}))

	r, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, "Pretoria CBD", r.Location)
	assert.Equal(t, "Pretoria Central", r.PlaceName)
	assert.Equal(t, "forward", r.GeoSource)
	require.NotNil(t, r.Geo)
}

func TestUpdateStatus_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateStatus(ctx, r.ID, domain.StatusInvestigating))
	got, err := f.svc.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvestigating, got.Status)
	assert.Nil(t, got.ResolvedAt)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.svc.UpdateStatus(ctx, r.ID, "Resolved"))
	got, err = f.svc.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(t0.Add(time.Hour)))
}

func TestUpdateStatus_DoubleResolveIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateStatus(ctx, r.ID, domain.StatusResolved))
	f.clock.Advance(time.Minute)
	require.NoError(t, f.svc.UpdateStatus(ctx, r.ID, domain.StatusResolved))

	got, err := f.svc.GetByID(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(t0), "second resolve must not restamp")
}

func TestUpdateStatus_ConcurrentResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, validInput())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.svc.UpdateStatus(ctx, r.ID, domain.StatusResolved)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	got, err := f.svc.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)
}

func TestUpdateStatus_SameStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, f.svc.UpdateStatus(ctx, r.ID, domain.StatusInvestigating))

	require.NoError(t, f.svc.UpdateStatus(ctx, r.ID, domain.StatusInvestigating))

	got, err := f.svc.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvestigating, got.Status)
	assert.Nil(t, got.ResolvedAt)
}

func TestUpdateStatus_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, f.svc.UpdateStatus(ctx, r.ID, domain.StatusResolved))

	err = f.svc.UpdateStatus(ctx, r.ID, domain.StatusSubmitted)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := f.svc.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, got.Status, "refused transition must not write")

	assert.ErrorIs(t, f.svc.UpdateStatus(ctx, r.ID, "closed"), domain.ErrValidation)
	assert.ErrorIs(t, f.svc.UpdateStatus(ctx, "missing", domain.StatusResolved), domain.ErrNotFound)
}

func TestList_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, validInput())
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	in := validInput()
	in.ReportType = "Complaint"
	in.Location = "Soweto"
	second, err := f.svc.Submit(ctx, in)
	require.NoError(t, err)

	all, err := f.svc.List(ctx, domain.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)

	byType, err := f.svc.List(ctx, domain.ReportFilter{ReportType: " complaint "})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, second.ID, byType[0].ID)

	byStatus, err := f.svc.List(ctx, domain.ReportFilter{Status: "SUBMITTED"})
	require.NoError(t, err)
	assert.Len(t, byStatus, 2)

	_, err = f.svc.List(ctx, domain.ReportFilter{Status: "archived"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.List(ctx, domain.ReportFilter{Limit: -1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, f.svc.UpdateStatus(ctx, first.ID, domain.StatusResolved))
	active, err := f.svc.List(ctx, domain.ReportFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
}

func TestSubmit_ImageURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := validInput()
	in.ImageURL = "https://cdn.example.com/incident-images/1721.jpg"
	r, err := f.svc.Submit(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, in.ImageURL, r.ImageURL)

	in.ImageURL = "not a url"
	_, err = f.svc.Submit(ctx, in)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"image_url"}, ve.Fields)
}

func TestAnnouncements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.PublishAnnouncement(ctx, domain.AnnouncementInput{
		Title:   " System Maintenance ",
		Content: "NotiZAR is offline from 02:00 to 04:00.",
	})
	require.NoError(t, err)
	assert.Equal(t, "System Maintenance", first.Title)
	assert.Equal(t, "Admin", first.Author)
	assert.True(t, first.CreatedAt.Equal(t0))

	f.clock.Advance(time.Hour)
	second, err := f.svc.PublishAnnouncement(ctx, domain.AnnouncementInput{
		Title:   "Community Meeting",
		Content: "Monthly safety meeting at the Hatfield Community Centre.",
		Author:  "Ward 56",
	})
	require.NoError(t, err)

	list, err := f.svc.ListAnnouncements(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	_, err = f.svc.PublishAnnouncement(ctx, domain.AnnouncementInput{Title: "  "})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"title", "content"}, ve.Fields)

	_, err = f.svc.ListAnnouncements(ctx, -1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAdminUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, validInput())
	require.NoError(t, err)

	pushed := make(chan domain.AdminUpdate, 1)
	sub, err := f.svc.SubscribeToAdminUpdates(func(u domain.AdminUpdate) { pushed <- u })
	require.NoError(t, err)
	defer sub.Cancel()

	u, err := f.svc.AddAdminUpdate(ctx, domain.AdminUpdateInput{
		ReportID: r.ID,
		AdminID:  "admin-7",
		Message:  "Crew dispatched",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityNormal, u.Priority)
	assert.False(t, u.IsRead)
	assert.True(t, u.CreatedAt.Equal(t0))

	select {
	case got := <-pushed:
		assert.Equal(t, u.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("no admin update event")
	}

	require.NoError(t, f.svc.MarkUpdateRead(ctx, u.ID))
	require.NoError(t, f.svc.MarkUpdateRead(ctx, u.ID))
	list, err := f.svc.ListAdminUpdates(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsRead)

	assert.ErrorIs(t, f.svc.MarkUpdateRead(ctx, "nope"), domain.ErrNotFound)
}

func TestAddAdminUpdate_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, validInput())
	require.NoError(t, err)

	_, err = f.svc.AddAdminUpdate(ctx, domain.AdminUpdateInput{ReportID: r.ID, AdminID: "a"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.AddAdminUpdate(ctx, domain.AdminUpdateInput{ReportID: r.ID, AdminID: "a", Message: "m", Priority: "whenever"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.AddAdminUpdate(ctx, domain.AdminUpdateInput{ReportID: "missing", AdminID: "a", Message: "m"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExport_RedactsAnonymous(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := validInput()
	in.IsAnonymous = true
	_, err := f.svc.Submit(ctx, in)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Submit(ctx, validInput())
	require.NoError(t, err)

	snap, err := f.svc.Export(ctx, t0.Add(-time.Hour), t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, snap.Reports, 2)
	assert.Equal(t, 2, snap.Summary.TotalReports)
	assert.Equal(t, "Ayanda", snap.Reports[0].ReporterName)
	assert.Empty(t, snap.Reports[1].ReporterName)
	assert.Empty(t, snap.Reports[1].ReporterEmail)

	_, err = f.svc.Export(ctx, t0, t0.Add(-time.Hour))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// slowStore blocks InsertReport until the context ends.
type slowStore struct {
	Store
}

func (slowStore) InsertReport(ctx context.Context, _ domain.Report) (domain.Report, error) {
	<-ctx.Done()
	return domain.Report{}, ctx.Err()
}

func TestSubmit_StoreTimeout(t *testing.T) {
	svc := NewService(slowStore{}, feed.NewHub[domain.Report](), feed.NewHub[domain.AdminUpdate](),
		discardLogger(), observability.NewMetricsForTesting(), WithStoreTimeout(20*time.Millisecond))

	_, err := svc.Submit(context.Background(), validInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestValidateStruct_UsesJSONNames(t *testing.T) {
	err := validateStruct(domain.AdminUpdateInput{})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "report_id,admin_id,message", strings.Join(ve.Fields, ","))
}
