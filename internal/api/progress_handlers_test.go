package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-aggregator/internal/storage/memory"
	"github.com/JakeFAU/progress-aggregator/internal/store"
)

// TestProgressHandlerListTrackers filters by status and reports percent complete.
func TestProgressHandlerListTrackers(t *testing.T) {
	t.Parallel()

	repo := memory.NewProgressStore()
	ctx := context.Background()
	now := time.Now().UTC()
	running, done := uuid.New(), uuid.New()
	require.NoError(t, repo.UpsertTrackerStart(ctx, store.TrackerRun{ID: running, Total: 200, StartedAt: now}))
	require.NoError(t, repo.UpdateTrackerPosition(ctx, running, 50, "", store.TrackerRunning, now))
	require.NoError(t, repo.UpsertTrackerStart(ctx, store.TrackerRun{ID: done, Total: 10, StartedAt: now}))
	require.NoError(t, repo.CompleteTracker(ctx, done, now))
	handler := NewProgressHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/trackers?status=Running&limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ListTrackers(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Trackers []trackerDTO `json:"trackers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Trackers, 1)
	require.Equal(t, running.String(), body.Trackers[0].ID)
	require.InDelta(t, 25.0, body.Trackers[0].Percent, 1e-9)
}

// TestProgressHandlerListTrackersInvalidStatus rejects unknown statuses.
func TestProgressHandlerListTrackersInvalidStatus(t *testing.T) {
	t.Parallel()

	handler := NewProgressHandler(&mockProgressRepo{}, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/trackers?status=exploded", nil)
	rec := httptest.NewRecorder()
	handler.ListTrackers(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestProgressHandlerGetTrackerNotFound maps store.ErrNotFound to 404.
func TestProgressHandlerGetTrackerNotFound(t *testing.T) {
	t.Parallel()

	repo := &mockProgressRepo{err: store.ErrNotFound}
	handler := NewProgressHandler(repo, zap.NewNop())

	trackerID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/trackers/"+trackerID.String(), nil)
	req = withTrackerIDParam(req, trackerID.String())
	rec := httptest.NewRecorder()

	handler.GetTracker(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// TestProgressHandlerGetTrackerErrors covers malformed IDs and repository failures.
func TestProgressHandlerGetTrackerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		repo store.ProgressRepository
		id   string
		want int
	}{
		{name: "malformed id", repo: &mockProgressRepo{}, id: "not-a-uuid", want: http.StatusBadRequest},
		{name: "repo failure", repo: &mockProgressRepo{err: errors.New("boom")}, id: uuid.NewString(), want: http.StatusInternalServerError},
		{name: "no repo", repo: nil, id: uuid.NewString(), want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			handler := NewProgressHandler(tt.repo, nil)
			req := httptest.NewRequest(http.MethodGet, "/v1/trackers/"+tt.id, nil)
			req = withTrackerIDParam(req, tt.id)
			rec := httptest.NewRecorder()
			handler.GetTracker(rec, req)
			require.Equal(t, tt.want, rec.Code)
		})
	}
}

// TestProgressHandlerListContributorsInvalidLimit rejects non-positive limits.
func TestProgressHandlerListContributorsInvalidLimit(t *testing.T) {
	t.Parallel()

	handler := NewProgressHandler(&mockProgressRepo{}, zap.NewNop())
	trackerID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/trackers/"+trackerID.String()+"/contributors?limit=-1", nil)
	req = withTrackerIDParam(req, trackerID.String())
	rec := httptest.NewRecorder()

	handler.ListContributors(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestProgressHandlerListContributors returns contributor rows.
func TestProgressHandlerListContributors(t *testing.T) {
	t.Parallel()

	trackerID := uuid.New()
	repo := &mockProgressRepo{contributors: []store.ContributorRun{
		{TrackerID: trackerID, ContributorID: "worker-0", Status: store.ContributorFinished, Updates: 4},
	}}
	handler := NewProgressHandler(repo, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/trackers/"+trackerID.String()+"/contributors", nil)
	req = withTrackerIDParam(req, trackerID.String())
	rec := httptest.NewRecorder()

	handler.ListContributors(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"contributor_id":"worker-0"`)
	require.Contains(t, rec.Body.String(), `"updates":4`)
}

type mockProgressRepo struct {
	trackers     []store.TrackerRun
	contributors []store.ContributorRun
	err          error
}

func (m *mockProgressRepo) UpsertTrackerStart(context.Context, store.TrackerRun) error {
	return m.err
}

func (m *mockProgressRepo) UpdateTrackerPosition(
	context.Context,
	uuid.UUID,
	int,
	string,
	store.TrackerStatus,
	time.Time,
) error {
	return m.err
}

func (m *mockProgressRepo) RenameTracker(context.Context, uuid.UUID, string, time.Time) error {
	return m.err
}

func (m *mockProgressRepo) CompleteTracker(context.Context, uuid.UUID, time.Time) error {
	return m.err
}

func (m *mockProgressRepo) UpsertContributor(
	context.Context,
	uuid.UUID,
	string,
	store.ContributorStatus,
	int64,
	time.Time,
) error {
	return m.err
}

func (m *mockProgressRepo) GetTracker(context.Context, uuid.UUID) (store.TrackerRun, error) {
	if len(m.trackers) > 0 {
		return m.trackers[0], nil
	}
	if m.err == nil {
		return store.TrackerRun{}, store.ErrNotFound
	}
	return store.TrackerRun{}, m.err
}

func (m *mockProgressRepo) ListTrackers(context.Context, *store.TrackerStatus, int, int) ([]store.TrackerRun, error) {
	return m.trackers, m.err
}

func (m *mockProgressRepo) ListContributors(context.Context, uuid.UUID, int, int) ([]store.ContributorRun, error) {
	return m.contributors, m.err
}

func withTrackerIDParam(r *http.Request, trackerID string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("tracker_id", trackerID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, ctx))
}
