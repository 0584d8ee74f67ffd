package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-aggregator/internal/store"
)

const (
	defaultTrackerLimit     = 50
	maxTrackerLimit         = 500
	defaultContributorLimit = 100
	maxContributorLimit     = 1000
	progressTimeout         = 3 * time.Second
)

// ProgressHandler exposes read-only tracker progress endpoints.
type ProgressHandler struct {
	repo    store.ProgressRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewProgressHandler wires the repository and logger.
func NewProgressHandler(repo store.ProgressRepository, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		repo:    repo,
		timeout: progressTimeout,
		logger:  logger,
	}
}

// ListTrackers handles GET /v1/trackers?status=&limit=&offset=. It returns a
// JSON object {"trackers": [...]} on success, 400 for invalid filters, 503 when
// the repo is unavailable, or 500 if the repository call fails.
func (h *ProgressHandler) ListTrackers(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "progress repository unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultTrackerLimit, maxTrackerLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *store.TrackerStatus
	if statusParam := strings.TrimSpace(r.URL.Query().Get("status")); statusParam != "" {
		statusVal, parseErr := store.ParseTrackerStatus(strings.ToLower(statusParam))
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &statusVal
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	runs, err := h.repo.ListTrackers(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list trackers failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list trackers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trackers": toTrackerDTOs(runs),
	})
}

// GetTracker handles GET /v1/trackers/{tracker_id}. It returns {"tracker": {...}}
// on success, 400 for malformed IDs, 404 when the repository reports
// store.ErrNotFound, 503 if the repo is not initialized, or 500 otherwise.
func (h *ProgressHandler) GetTracker(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "progress repository unavailable")
		return
	}
	trackerID, err := parseTrackerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetTracker(ctx, trackerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tracker not found")
			return
		}
		h.logger.Error("get tracker failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load tracker")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracker": toTrackerDTO(run)})
}

// ListContributors handles GET /v1/trackers/{tracker_id}/contributors?limit=&offset=.
func (h *ProgressHandler) ListContributors(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "progress repository unavailable")
		return
	}
	trackerID, err := parseTrackerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultContributorLimit, maxContributorLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rows, err := h.repo.ListContributors(ctx, trackerID, limit, offset)
	if err != nil {
		h.logger.Error("list contributors failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list contributors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contributors": toContributorDTOs(rows),
	})
}

func parseTrackerID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "tracker_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("tracker_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid tracker_id")
	}
	return id, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func toTrackerDTOs(in []store.TrackerRun) []trackerDTO {
	out := make([]trackerDTO, 0, len(in))
	for _, run := range in {
		out = append(out, toTrackerDTO(run))
	}
	return out
}

func toTrackerDTO(run store.TrackerRun) trackerDTO {
	dto := trackerDTO{
		ID:         run.ID.String(),
		Name:       run.Name,
		Total:      run.Total,
		Position:   run.Position,
		Message:    run.Message,
		Status:     string(run.Status),
		StartedAt:  run.StartedAt,
		UpdatedAt:  run.UpdatedAt,
		FinishedAt: run.FinishedAt,
	}
	if run.Total > 0 {
		dto.Percent = 100 * float64(run.Position) / float64(run.Total)
	}
	return dto
}

func toContributorDTOs(in []store.ContributorRun) []contributorDTO {
	out := make([]contributorDTO, 0, len(in))
	for _, c := range in {
		out = append(out, contributorDTO{
			ContributorID: c.ContributorID,
			Status:        string(c.Status),
			Updates:       c.Updates,
			StartedAt:     c.StartedAt,
			UpdatedAt:     c.UpdatedAt,
		})
	}
	return out
}

type trackerDTO struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	Total      int        `json:"total"`
	Position   int        `json:"position"`
	Percent    float64    `json:"percent"`
	Message    string     `json:"message,omitempty"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type contributorDTO struct {
	ContributorID string    `json:"contributor_id"`
	Status        string    `json:"status"`
	Updates       int64     `json:"updates"`
	StartedAt     time.Time `json:"started_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
