package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-aggregator/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures tracker and contributor collectors follow events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	trackerID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	evt := func(stage progress.Stage, offset time.Duration) progress.Event {
		return progress.Event{TrackerID: trackerID, TS: now.Add(offset), Stage: stage, Name: "index", Total: 10000}
	}

	batch := []progress.Event{
		evt(progress.StageTrackerStart, 0),
		{TrackerID: trackerID, TS: now, Stage: progress.StageContributorStart, ContributorID: "a"},
		{TrackerID: trackerID, TS: now, Stage: progress.StageContributorProgress, ContributorID: "a"},
		{TrackerID: trackerID, TS: now, Stage: progress.StageContributorProgress, ContributorID: "b"},
	}
	progressEvt := evt(progress.StageTrackerProgress, time.Second)
	progressEvt.Position = 2500
	batch = append(batch, progressEvt)

	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.trackersStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.trackersRunning))
	require.InDelta(t, 0.25, testutil.ToFloat64(sink.trackerRatio.WithLabelValues("index")), 1e-9)
	require.Equal(t, 2.0, testutil.ToFloat64(sink.contributorsStarted))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.contributorsActive))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.contributorUpdates))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{TrackerID: trackerID, TS: now, Stage: progress.StageContributorFinish, ContributorID: "a"},
		{TrackerID: trackerID, TS: now, Stage: progress.StageContributorFinish, ContributorID: "b"},
		evt(progress.StageTrackerSuspend, 2*time.Second),
		evt(progress.StageTrackerFinish, 15*time.Second),
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.trackersFinished))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.trackersRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.trackerSuspends))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.contributorsActive))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.contributorsFinished))
	require.Equal(t, 1, testutil.CollectAndCount(sink.trackerRuntime, "aggregator_tracker_runtime_seconds"))
	require.Equal(t, 0, testutil.CollectAndCount(sink.trackerRatio, "aggregator_tracker_progress_ratio"))
}

// TestPrometheusSinkRenameMovesRatio keeps a single ratio series per tracker.
func TestPrometheusSinkRenameMovesRatio(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	id := uuid.New()
	trackerID := progress.UUIDToBytes(id)
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{TrackerID: trackerID, TS: now, Stage: progress.StageTrackerStart, Total: 100},
		{TrackerID: trackerID, TS: now, Stage: progress.StageTrackerProgress, Total: 100, Position: 40},
		{TrackerID: trackerID, TS: now, Stage: progress.StageTrackerRename, Name: "renamed", Total: 100, Position: 40},
	}))

	require.Equal(t, 1, testutil.CollectAndCount(sink.trackerRatio, "aggregator_tracker_progress_ratio"))
	require.InDelta(t, 0.4, testutil.ToFloat64(sink.trackerRatio.WithLabelValues("renamed")), 1e-9)
}

// TestPrometheusSinkDuplicateRegistration surfaces registry conflicts.
func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
