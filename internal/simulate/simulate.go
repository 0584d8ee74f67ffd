// Package simulate drives aggregate trackers with synthetic contributors. It
// backs the simulate command and the simulations endpoint, and exercises the
// full path from contributors through the event hub to every sink.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/progress-aggregator/internal/aggregate"
	"github.com/JakeFAU/progress-aggregator/internal/metrics"
	"github.com/JakeFAU/progress-aggregator/internal/progress"
)

var tracer = otel.Tracer("github.com/JakeFAU/progress-aggregator/internal/simulate")

// IDGenerator supplies tracker and contributor identifiers.
type IDGenerator interface {
	TrackerID() (uuid.UUID, error)
	ContributorID(prefix string) (string, error)
}

// Config holds the defaults applied to every simulation.
type Config struct {
	Name         string
	Contributors int
	Steps        int
	StepDelay    time.Duration
	Stagger      time.Duration
	TotalQuota   int
	InitialDelay time.Duration
}

// Options overrides Config for a single run. Zero values keep the defaults.
type Options struct {
	Name         string
	Contributors int
	Steps        int
}

// Result summarizes a finished simulation.
type Result struct {
	TrackerID uuid.UUID
	Snapshot  aggregate.Snapshot
	Elapsed   time.Duration
}

// Runner runs simulations against trackers wired to an Emitter.
type Runner struct {
	cfg     Config
	ids     IDGenerator
	emitter progress.Emitter
	clock   progress.Clock
	logger  *zap.Logger
}

// NewRunner builds a Runner. A nil logger is replaced with a no-op logger and
// a nil clock uses the wall clock.
func NewRunner(
	cfg Config,
	ids IDGenerator,
	emitter progress.Emitter,
	clock progress.Clock,
	logger *zap.Logger,
) (*Runner, error) {
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	if cfg.Contributors <= 0 {
		return nil, errors.New("contributors must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Runner{cfg: cfg, ids: ids, emitter: emitter, clock: clock, logger: logger}, nil
}

// NewTrackerID reserves an ID for a later Run.
func (r *Runner) NewTrackerID() (uuid.UUID, error) {
	id, err := r.ids.TrackerID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate tracker id: %w", err)
	}
	return id, nil
}

func (r *Runner) resolve(opts Options) Config {
	cfg := r.cfg
	if opts.Name != "" {
		cfg.Name = opts.Name
	}
	if opts.Contributors > 0 {
		cfg.Contributors = opts.Contributors
	}
	if opts.Steps > 0 {
		cfg.Steps = opts.Steps
	}
	return cfg
}

// Run drives one tracker to completion. Contributor i joins after i*Stagger;
// contributors with no join delay are registered before the tracker starts.
// When ctx is canceled the tracker is suspended and finished early and the
// context error is returned alongside the partial result.
func (r *Runner) Run(ctx context.Context, id uuid.UUID, opts Options) (Result, error) {
	cfg := r.resolve(opts)
	ctx, span := tracer.Start(ctx, "simulate.run", trace.WithAttributes(
		attribute.String("tracker_id", id.String()),
		attribute.String("name", cfg.Name),
		attribute.Int("contributors", cfg.Contributors),
		attribute.Int("steps", cfg.Steps),
	))
	defer span.End()
	start := time.Now()
	metrics.SimulationStarted()

	display := progress.NewDisplay(id, r.emitter, r.clock)
	tracker := aggregate.NewTracker(
		aggregate.WithTotalQuota(cfg.TotalQuota),
		aggregate.WithDisplay(display),
		aggregate.WithObserver(display),
		aggregate.WithLogger(r.logger.With(zap.Stringer("tracker_id", id))),
	)
	tracker.SetDisplayName(cfg.Name)
	if cfg.InitialDelay > 0 {
		tracker.SetInitialDelay(cfg.InitialDelay)
	}

	contributors := make([]*aggregate.Contributor, cfg.Contributors)
	for i := range contributors {
		cid, err := r.ids.ContributorID(fmt.Sprintf("worker-%d", i))
		if err != nil {
			metrics.SimulationFinished("error", time.Since(start))
			span.SetStatus(codes.Error, "contributor id")
			return Result{TrackerID: id}, fmt.Errorf("generate contributor id: %w", err)
		}
		contributors[i] = aggregate.NewContributor(cid)
		if joinDelay(cfg, i) == 0 {
			tracker.AddContributor(contributors[i])
		}
	}
	tracker.StartWithEstimate(estimate(cfg))
	r.logger.Info("simulation started",
		zap.Stringer("tracker_id", id),
		zap.String("name", cfg.Name),
		zap.Int("contributors", cfg.Contributors),
		zap.Int("steps", cfg.Steps),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range contributors {
		g.Go(func() error {
			return r.work(gctx, tracker, c, cfg, i)
		})
	}
	err := g.Wait()
	if err != nil {
		tracker.Suspend("simulation canceled")
		tracker.Finish()
	}

	result := Result{TrackerID: id, Snapshot: tracker.Snapshot(), Elapsed: time.Since(start)}
	outcome := "success"
	span.SetAttributes(attribute.Int("position", result.Snapshot.Position))
	if err != nil {
		outcome = "canceled"
		span.RecordError(err)
		span.SetStatus(codes.Error, "simulation canceled")
		r.logger.Warn("simulation canceled", zap.Stringer("tracker_id", id), zap.Error(err))
	} else {
		r.logger.Info("simulation finished",
			zap.Stringer("tracker_id", id),
			zap.Int("position", result.Snapshot.Position),
			zap.Duration("elapsed", result.Elapsed),
		)
	}
	metrics.SimulationFinished(outcome, result.Elapsed)
	return result, err
}

func (r *Runner) work(
	ctx context.Context,
	tracker *aggregate.Tracker,
	c *aggregate.Contributor,
	cfg Config,
	index int,
) error {
	ctx, span := tracer.Start(ctx, "simulate.contributor",
		trace.WithAttributes(attribute.String("contributor_id", c.TrackingID())))
	defer span.End()
	if delay := joinDelay(cfg, index); delay > 0 {
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		if tracker.Finished() {
			r.logger.Debug("tracker finished before contributor joined", zap.String("contributor_id", c.TrackingID()))
			return nil
		}
		tracker.AddContributor(c)
	}
	c.Start(cfg.Steps)
	for step := 1; step <= cfg.Steps; step++ {
		if err := sleep(ctx, cfg.StepDelay); err != nil {
			return err
		}
		if step == cfg.Steps/2 {
			c.ProgressWithMessage(fmt.Sprintf("%s halfway", c.TrackingID()), step)
			continue
		}
		c.Progress(step)
	}
	c.Finish()
	return nil
}

func joinDelay(cfg Config, index int) time.Duration {
	return time.Duration(index) * cfg.Stagger
}

func estimate(cfg Config) time.Duration {
	if cfg.StepDelay <= 0 {
		return aggregate.UnknownEstimate
	}
	return joinDelay(cfg, cfg.Contributors-1) + time.Duration(cfg.Steps)*cfg.StepDelay
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("simulation interrupted: %w", err)
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("simulation interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
