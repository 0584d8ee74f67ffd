// Package store declares interfaces for persisting aggregate tracker progress.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("progress record not found")

// TrackerStatus mirrors the tracker_runs status column.
type TrackerStatus string

// Tracker run statuses persisted in tracker_runs.status.
const (
	TrackerRunning   TrackerStatus = "running"
	TrackerSuspended TrackerStatus = "suspended"
	TrackerFinished  TrackerStatus = "finished"
)

// ParseTrackerStatus validates a status string.
func ParseTrackerStatus(s string) (TrackerStatus, error) {
	switch status := TrackerStatus(s); status {
	case TrackerRunning, TrackerSuspended, TrackerFinished:
		return status, nil
	default:
		return "", errors.New("status must be running, suspended or finished")
	}
}

// ContributorStatus mirrors the tracker_contributors status column.
type ContributorStatus string

// Contributor statuses persisted in tracker_contributors.status.
const (
	ContributorRunning  ContributorStatus = "running"
	ContributorFinished ContributorStatus = "finished"
)

// TrackerRun models one tracker in the tracker_runs table.
type TrackerRun struct {
	// ID is the tracker ID stamped on every event.
	ID uuid.UUID
	// Name is the most recent display name.
	Name string
	// Total is the fixed quota.
	Total int
	// Position is the last persisted aggregate position.
	Position int
	// Message is the last non-empty status message.
	Message string
	// Status is running/suspended/finished.
	Status TrackerStatus
	// StartedAt captures when the tracker was started.
	StartedAt time.Time
	// UpdatedAt is the timestamp of the latest persisted event.
	UpdatedAt time.Time
	// FinishedAt is nil until the tracker finishes.
	FinishedAt *time.Time
}

// ContributorRun models one contributor row of a tracker.
type ContributorRun struct {
	TrackerID     uuid.UUID
	ContributorID string
	Status        ContributorStatus
	Updates       int64
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// ProgressRepository persists tracker and contributor activity.
type ProgressRepository interface {
	// UpsertTrackerStart inserts the tracker or resets it to running at position 0.
	UpsertTrackerStart(ctx context.Context, run TrackerRun) error
	// UpdateTrackerPosition records the latest position, message and status.
	UpdateTrackerPosition(
		ctx context.Context,
		trackerID uuid.UUID,
		position int,
		message string,
		status TrackerStatus,
		at time.Time,
	) error
	// RenameTracker updates the display name.
	RenameTracker(ctx context.Context, trackerID uuid.UUID, name string, at time.Time) error
	// CompleteTracker marks the tracker finished.
	CompleteTracker(ctx context.Context, trackerID uuid.UUID, finishedAt time.Time) error
	// UpsertContributor applies a status and an update-count delta to one contributor.
	UpsertContributor(
		ctx context.Context,
		trackerID uuid.UUID,
		contributorID string,
		status ContributorStatus,
		deltaUpdates int64,
		at time.Time,
	) error

	// GetTracker loads a single tracker or returns ErrNotFound.
	GetTracker(ctx context.Context, trackerID uuid.UUID) (TrackerRun, error)
	// ListTrackers returns trackers filtered by optional status plus limit/offset.
	ListTrackers(ctx context.Context, status *TrackerStatus, limit, offset int) ([]TrackerRun, error)
	// ListContributors returns the contributors of one tracker.
	ListContributors(ctx context.Context, trackerID uuid.UUID, limit, offset int) ([]ContributorRun, error)
}
