package simulate

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestLauncherRunsInBackground returns an ID immediately and completes later.
func TestLauncherRunsInBackground(t *testing.T) {
	t.Parallel()

	runner := newRunner(t, Config{Contributors: 2, Steps: 3, TotalQuota: 50}, &recordingEmitter{})
	launcher := NewLauncher(runner, nil)

	id, err := launcher.Launch(context.Background(), Options{Name: "bg"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if result, ok := launcher.Wait(ctx, id); ok {
		require.Equal(t, 50, result.Snapshot.Position)
	}
	require.NoError(t, launcher.Close(ctx))
}

// TestLauncherCloseCancelsRuns stops long simulations and rejects new ones.
func TestLauncherCloseCancelsRuns(t *testing.T) {
	t.Parallel()

	runner := newRunner(t, Config{Contributors: 1, Steps: 10, StepDelay: time.Hour, TotalQuota: 10}, &recordingEmitter{})
	launcher := NewLauncher(runner, nil)
	_, err := launcher.Launch(context.Background(), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, launcher.Close(ctx))

	_, err = launcher.Launch(context.Background(), Options{})
	require.Error(t, err)
}
