package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-aggregator/internal/aggregate"
	"github.com/JakeFAU/progress-aggregator/internal/config"
	"github.com/JakeFAU/progress-aggregator/internal/simulate"
)

type fakeApp struct {
	runCalled bool
	closed    bool
	opts      simulate.Options
	result    simulate.Result
	err       error
}

func (f *fakeApp) Run(context.Context) error {
	f.runCalled = true
	return f.err
}

func (f *fakeApp) Simulate(_ context.Context, opts simulate.Options) (simulate.Result, error) {
	f.opts = opts
	return f.result, f.err
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

// withFakeApp swaps the application factory for the duration of a test.
// Tests using it must not run in parallel.
func withFakeApp(t *testing.T, app *fakeApp) *config.Config {
	t.Helper()
	var seen config.Config
	orig := newApp
	newApp = func(_ context.Context, cfg *config.Config) (App, error) {
		seen = *cfg
		return app, nil
	}
	t.Cleanup(func() { newApp = orig })
	return &seen
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// TestSimulateCommandPrintsSnapshot forwards flags and prints the result.
func TestSimulateCommandPrintsSnapshot(t *testing.T) {
	app := &fakeApp{result: simulate.Result{
		TrackerID: uuid.MustParse("0190c6f4-1111-7000-8000-000000000001"),
		Snapshot:  aggregate.Snapshot{Name: "reindex", Total: 10000, Position: 10000, Finished: true},
		Elapsed:   1500 * time.Millisecond,
	}}
	withFakeApp(t, app)

	out, err := execute(t, "simulate", "--name", "reindex", "--contributors", "3", "--steps", "5")
	require.NoError(t, err)
	require.Equal(t, simulate.Options{Name: "reindex", Contributors: 3, Steps: 5}, app.opts)
	require.True(t, app.closed)
	require.Contains(t, out, "tracker 0190c6f4-1111-7000-8000-000000000001 (reindex)")
	require.Contains(t, out, "position 10000/10000 (100.0%) finished=true elapsed=1.5s")
}

// TestSimulateCommandReturnsError still closes the app on failure.
func TestSimulateCommandReturnsError(t *testing.T) {
	app := &fakeApp{err: errors.New("boom")}
	withFakeApp(t, app)

	_, err := execute(t, "simulate")
	require.ErrorContains(t, err, "run simulation: boom")
	require.True(t, app.closed)
}

// TestServeCommandRunsApp delegates to App.Run.
func TestServeCommandRunsApp(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)

	_, err := execute(t, "serve")
	require.NoError(t, err)
	require.True(t, app.runCalled)
}

// TestConfigFlagLoadsFile reads the file named by --config.
func TestConfigFlagLoadsFile(t *testing.T) {
	seen := withFakeApp(t, &fakeApp{})
	path := filepath.Join(t.TempDir(), "aggregator.yaml")
	yaml := "server:\n  port: 9191\nsimulate:\n  contributors: 7\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	_, err := execute(t, "--config", path, "serve")
	require.NoError(t, err)
	require.Equal(t, 9191, seen.Server.Port)
	require.Equal(t, 7, seen.Simulate.Contributors)
}

// TestMissingConfigFileFails surfaces config errors before building the app.
func TestMissingConfigFileFails(t *testing.T) {
	withFakeApp(t, &fakeApp{})
	_, err := execute(t, "--config", "/does/not/exist.yaml", "serve")
	require.ErrorContains(t, err, "load config")
}
