package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/progress-aggregator/internal/progress"
)

// LogSink emits one structured log line per tracker event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields. Contributor
// events are logged at debug level since they are far more frequent.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("tracker_id", evt.TrackerUUID()),
			zap.String("stage", string(evt.Stage)),
			zap.String("name", evt.Name),
			zap.Int("position", evt.Position),
			zap.Int("total", evt.Total),
		}
		if evt.ContributorID != "" {
			fields = append(fields, zap.String("contributor_id", evt.ContributorID))
		}
		if evt.Message != "" {
			fields = append(fields, zap.String("message", evt.Message))
		}
		switch evt.Stage {
		case progress.StageTrackerStart, progress.StageTrackerDelay:
			fields = append(fields, zap.Duration("estimate", evt.Estimate))
		}
		if evt.Stage.IsContributor() {
			s.logger.Debug("tracker event", fields...)
			continue
		}
		s.logger.Info("tracker event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
