// Package memory provides in-process persistence for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/progress-aggregator/internal/store"
)

var _ store.ProgressRepository = (*ProgressStore)(nil)

// ProgressStore keeps tracker and contributor rows in maps.
type ProgressStore struct {
	mu           sync.RWMutex
	trackers     map[uuid.UUID]store.TrackerRun
	contributors map[uuid.UUID]map[string]store.ContributorRun
}

// NewProgressStore constructs an empty ProgressStore.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		trackers:     make(map[uuid.UUID]store.TrackerRun),
		contributors: make(map[uuid.UUID]map[string]store.ContributorRun),
	}
}

// UpsertTrackerStart inserts the tracker or restarts it at position zero.
func (s *ProgressStore) UpsertTrackerStart(_ context.Context, run store.TrackerRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.trackers[run.ID]; ok && run.Name == "" {
		run.Name = existing.Name
	}
	run.Position = 0
	run.Status = store.TrackerRunning
	run.FinishedAt = nil
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.StartedAt
	}
	s.trackers[run.ID] = run
	return nil
}

// UpdateTrackerPosition records the latest position. Positions never move
// backward and a finished tracker keeps its status.
func (s *ProgressStore) UpdateTrackerPosition(
	_ context.Context,
	trackerID uuid.UUID,
	position int,
	message string,
	status store.TrackerStatus,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.trackers[trackerID]
	if !ok {
		return store.ErrNotFound
	}
	if position > run.Position {
		run.Position = position
	}
	if message != "" {
		run.Message = message
	}
	if run.Status != store.TrackerFinished && status != "" {
		run.Status = status
	}
	run.UpdatedAt = at
	s.trackers[trackerID] = run
	return nil
}

// RenameTracker updates the display name.
func (s *ProgressStore) RenameTracker(_ context.Context, trackerID uuid.UUID, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.trackers[trackerID]
	if !ok {
		return store.ErrNotFound
	}
	run.Name = name
	run.UpdatedAt = at
	s.trackers[trackerID] = run
	return nil
}

// CompleteTracker marks the tracker finished.
func (s *ProgressStore) CompleteTracker(_ context.Context, trackerID uuid.UUID, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.trackers[trackerID]
	if !ok {
		return store.ErrNotFound
	}
	run.Status = store.TrackerFinished
	run.FinishedAt = &finishedAt
	run.UpdatedAt = finishedAt
	s.trackers[trackerID] = run
	return nil
}

// UpsertContributor creates or updates one contributor row.
func (s *ProgressStore) UpsertContributor(
	_ context.Context,
	trackerID uuid.UUID,
	contributorID string,
	status store.ContributorStatus,
	deltaUpdates int64,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.contributors[trackerID]
	if rows == nil {
		rows = make(map[string]store.ContributorRun)
		s.contributors[trackerID] = rows
	}
	row, ok := rows[contributorID]
	if !ok {
		row = store.ContributorRun{
			TrackerID:     trackerID,
			ContributorID: contributorID,
			Status:        store.ContributorRunning,
			StartedAt:     at,
		}
	}
	if row.Status != store.ContributorFinished {
		row.Status = status
	}
	row.Updates += deltaUpdates
	row.UpdatedAt = at
	rows[contributorID] = row
	return nil
}

// GetTracker loads one tracker.
func (s *ProgressStore) GetTracker(_ context.Context, trackerID uuid.UUID) (store.TrackerRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.trackers[trackerID]
	if !ok {
		return store.TrackerRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListTrackers returns trackers newest first.
func (s *ProgressStore) ListTrackers(
	_ context.Context,
	status *store.TrackerStatus,
	limit,
	offset int,
) ([]store.TrackerRun, error) {
	s.mu.RLock()
	runs := make([]store.TrackerRun, 0, len(s.trackers))
	for _, run := range s.trackers {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID.String() < runs[j].ID.String()
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return page(runs, limit, offset), nil
}

// ListContributors returns the contributors of one tracker in start order.
func (s *ProgressStore) ListContributors(
	_ context.Context,
	trackerID uuid.UUID,
	limit,
	offset int,
) ([]store.ContributorRun, error) {
	s.mu.RLock()
	rows := make([]store.ContributorRun, 0, len(s.contributors[trackerID]))
	for _, row := range s.contributors[trackerID] {
		rows = append(rows, row)
	}
	s.mu.RUnlock()
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StartedAt.Equal(rows[j].StartedAt) {
			return rows[i].ContributorID < rows[j].ContributorID
		}
		return rows[i].StartedAt.Before(rows[j].StartedAt)
	})
	return page(rows, limit, offset), nil
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
