package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-aggregator/internal/progress"
	"github.com/JakeFAU/progress-aggregator/internal/store"
)

// StoreSink persists tracker activity via a store.ProgressRepository. Runs of
// progress events collapse into one position write and contributor updates
// collapse into one upsert per contributor per batch.
type StoreSink struct {
	repo   store.ProgressRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.ProgressRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

type pendingPosition struct {
	position int
	message  string
	at       time.Time
}

type contributorDelta struct {
	status  store.ContributorStatus
	updates int64
	at      time.Time
}

// Consume forwards the batch to the repository. Tracker events keep their
// relative order; records the repository does not know yet are skipped. It
// respects ctx deadlines and returns any other repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	positions := make(map[uuid.UUID]*pendingPosition)
	contributors := make(map[contributorKey]*contributorDelta)

	for _, evt := range batch {
		trackerID := evt.TrackerUUID()
		if evt.Stage.IsContributor() {
			recordContributor(contributors, evt)
			continue
		}
		if evt.Stage == progress.StageTrackerProgress {
			pending := positions[trackerID]
			if pending == nil {
				pending = &pendingPosition{}
				positions[trackerID] = pending
			}
			pending.position = evt.Position
			if evt.Message != "" {
				pending.message = evt.Message
			}
			pending.at = evt.TS
			continue
		}
		if err := s.flushPosition(ctx, positions, trackerID); err != nil {
			return err
		}
		if err := s.handleTrackerEvent(ctx, trackerID, evt); err != nil {
			return err
		}
	}

	for trackerID := range positions {
		if err := s.flushPosition(ctx, positions, trackerID); err != nil {
			return err
		}
	}
	for key, delta := range contributors {
		if err := s.repo.UpsertContributor(
			ctx,
			uuid.UUID(key.tracker),
			key.id,
			delta.status,
			delta.updates,
			delta.at,
		); err != nil {
			return fmt.Errorf("upsert contributor: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) handleTrackerEvent(ctx context.Context, trackerID uuid.UUID, evt progress.Event) error {
	var err error
	switch evt.Stage {
	case progress.StageTrackerStart:
		err = s.repo.UpsertTrackerStart(ctx, store.TrackerRun{
			ID:        trackerID,
			Name:      evt.Name,
			Total:     evt.Total,
			StartedAt: evt.TS,
		})
		if err != nil {
			return fmt.Errorf("upsert tracker start: %w", err)
		}
		return nil
	case progress.StageTrackerSuspend:
		err = s.repo.UpdateTrackerPosition(ctx, trackerID, evt.Position, evt.Message, store.TrackerSuspended, evt.TS)
	case progress.StageTrackerRename:
		err = s.repo.RenameTracker(ctx, trackerID, evt.Name, evt.TS)
	case progress.StageTrackerFinish:
		err = s.repo.CompleteTracker(ctx, trackerID, evt.TS)
	default:
		return nil
	}
	return s.checkTrackerWrite(err, trackerID, evt.Stage)
}

func (s *StoreSink) flushPosition(ctx context.Context, positions map[uuid.UUID]*pendingPosition, trackerID uuid.UUID) error {
	pending, ok := positions[trackerID]
	if !ok {
		return nil
	}
	delete(positions, trackerID)
	err := s.repo.UpdateTrackerPosition(
		ctx,
		trackerID,
		pending.position,
		pending.message,
		store.TrackerRunning,
		pending.at,
	)
	return s.checkTrackerWrite(err, trackerID, progress.StageTrackerProgress)
}

func (s *StoreSink) checkTrackerWrite(err error, trackerID uuid.UUID, stage progress.Stage) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Debug("skipping event for unknown tracker",
			zap.Stringer("tracker_id", trackerID),
			zap.String("stage", string(stage)),
		)
		return nil
	}
	return fmt.Errorf("persist %s: %w", stage, err)
}

func recordContributor(contributors map[contributorKey]*contributorDelta, evt progress.Event) {
	key := contributorKey{tracker: evt.TrackerID, id: evt.ContributorID}
	delta := contributors[key]
	if delta == nil {
		delta = &contributorDelta{status: store.ContributorRunning}
		contributors[key] = delta
	}
	switch evt.Stage {
	case progress.StageContributorProgress:
		delta.updates++
	case progress.StageContributorFinish:
		delta.status = store.ContributorFinished
	}
	if evt.TS.After(delta.at) {
		delta.at = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
