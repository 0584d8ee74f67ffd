package simulate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	idgen "github.com/JakeFAU/progress-aggregator/internal/id/uuid"
	"github.com/JakeFAU/progress-aggregator/internal/progress"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) count(stage progress.Stage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evt := range r.events {
		if evt.Stage == stage {
			n++
		}
	}
	return n
}

func (r *recordingEmitter) first() progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[0]
}

func newRunner(t *testing.T, cfg Config, emitter progress.Emitter) *Runner {
	t.Helper()
	runner, err := NewRunner(cfg, idgen.New(), emitter, nil, nil)
	require.NoError(t, err)
	return runner
}

// TestRunCompletesTracker drives every contributor to the full quota.
func TestRunCompletesTracker(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	runner := newRunner(t, Config{Name: "batch", Contributors: 3, Steps: 4, TotalQuota: 900}, emitter)
	id, err := runner.NewTrackerID()
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), id, Options{})
	require.NoError(t, err)
	require.Equal(t, id, result.TrackerID)
	require.True(t, result.Snapshot.Finished)
	require.Equal(t, 900, result.Snapshot.Position)
	require.Equal(t, "batch", result.Snapshot.Name)
	require.Empty(t, result.Snapshot.Contributors)

	require.Equal(t, progress.StageTrackerRename, emitter.first().Stage)
	require.Equal(t, 1, emitter.count(progress.StageTrackerStart))
	require.Equal(t, 3, emitter.count(progress.StageContributorFinish))
	require.Equal(t, 1, emitter.count(progress.StageTrackerFinish))
}

// TestRunAppliesOptions overrides the defaults for one run.
func TestRunAppliesOptions(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	runner := newRunner(t, Config{Name: "default", Contributors: 1, Steps: 1, TotalQuota: 100}, emitter)
	result, err := runner.Run(context.Background(), uuid.New(), Options{Name: "custom", Contributors: 2, Steps: 3})
	require.NoError(t, err)
	require.Equal(t, "custom", result.Snapshot.Name)
	require.Equal(t, 2, emitter.count(progress.StageContributorStart))
	require.Equal(t, 100, result.Snapshot.Position)
}

// TestRunStaggeredContributors lets late contributors join a running tracker.
func TestRunStaggeredContributors(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	runner := newRunner(t, Config{
		Contributors: 2,
		Steps:        10,
		StepDelay:    5 * time.Millisecond,
		Stagger:      time.Millisecond,
		TotalQuota:   1000,
	}, emitter)
	result, err := runner.Run(context.Background(), uuid.New(), Options{})
	require.NoError(t, err)
	require.True(t, result.Snapshot.Finished)
	require.Equal(t, 1000, result.Snapshot.Position)
	require.Equal(t, 2, emitter.count(progress.StageContributorFinish))
}

// TestRunCanceled finishes the tracker early and reports the context error.
func TestRunCanceled(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	runner := newRunner(t, Config{Contributors: 2, Steps: 100, StepDelay: time.Hour, TotalQuota: 100}, emitter)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := runner.Run(ctx, uuid.New(), Options{})
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, result.Snapshot.Finished)
	require.Less(t, result.Snapshot.Position, 100)
	require.Equal(t, 1, emitter.count(progress.StageTrackerSuspend))
}

// TestNewRunnerValidates rejects unusable configuration.
func TestNewRunnerValidates(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(Config{Contributors: 1}, nil, nil, nil, nil)
	require.Error(t, err)
	_, err = NewRunner(Config{}, idgen.New(), nil, nil, nil)
	require.Error(t, err)
}

type failingIDs struct{}

func (failingIDs) TrackerID() (uuid.UUID, error)       { return uuid.Nil, errors.New("entropy exhausted") }
func (failingIDs) ContributorID(string) (string, error) { return "", errors.New("entropy exhausted") }

// TestRunContributorIDFailure surfaces ID generation errors.
func TestRunContributorIDFailure(t *testing.T) {
	t.Parallel()

	runner, err := NewRunner(Config{Contributors: 1}, failingIDs{}, nil, nil, nil)
	require.NoError(t, err)
	_, err = runner.NewTrackerID()
	require.Error(t, err)
	_, err = runner.Run(context.Background(), uuid.New(), Options{})
	require.ErrorContains(t, err, "generate contributor id")
}

// TestRunRecordsSpans emits one run span and one span per contributor. It
// installs the global tracer provider, so it must not run in parallel.
func TestRunRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	runner := newRunner(t, Config{Name: "traced", Contributors: 2, Steps: 2, TotalQuota: 100}, &recordingEmitter{})
	id, err := runner.NewTrackerID()
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), id, Options{})
	require.NoError(t, err)

	names := map[string]int{}
	var runSpan sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		names[span.Name()]++
		if span.Name() == "simulate.run" {
			runSpan = span
		}
	}
	require.Equal(t, 1, names["simulate.run"])
	require.Equal(t, 2, names["simulate.contributor"])
	require.NotNil(t, runSpan)
	for _, kv := range runSpan.Attributes() {
		if kv.Key == "tracker_id" {
			require.Equal(t, id.String(), kv.Value.AsString())
		}
	}
}
