package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/progress-aggregator/internal/progress"
)

// PrometheusSink exports tracker and contributor activity via Prometheus.
type PrometheusSink struct {
	trackersStarted  prometheus.Counter
	trackersFinished prometheus.Counter
	trackersRunning  prometheus.Gauge
	trackerSuspends  prometheus.Counter
	trackerRuntime   prometheus.Histogram
	trackerRatio     *prometheus.GaugeVec

	contributorsStarted  prometheus.Counter
	contributorsFinished prometheus.Counter
	contributorsActive   prometheus.Gauge
	contributorUpdates   prometheus.Counter

	mu           sync.Mutex
	running      map[[16]byte]trackerState
	contributors map[contributorKey]struct{}
}

type trackerState struct {
	startedAt time.Time
	label     string
	ratio     float64
}

type contributorKey struct {
	tracker [16]byte
	id      string
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		trackersStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_trackers_started_total",
			Help: "Total trackers that have started.",
		}),
		trackersFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_trackers_finished_total",
			Help: "Total trackers that have finished.",
		}),
		trackersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_trackers_running",
			Help: "Current number of started, unfinished trackers.",
		}),
		trackerSuspends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_tracker_suspends_total",
			Help: "Total suspend notifications across all trackers.",
		}),
		trackerRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggregator_tracker_runtime_seconds",
			Help:    "Wall time from tracker start to finish.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}),
		trackerRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aggregator_tracker_progress_ratio",
			Help: "Position divided by total for each running tracker.",
		}, []string{"tracker"}),
		contributorsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_contributors_started_total",
			Help: "Total contributors seen across all trackers.",
		}),
		contributorsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_contributors_finished_total",
			Help: "Total contributors that have finished.",
		}),
		contributorsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_contributors_active",
			Help: "Current number of seen, unfinished contributors.",
		}),
		contributorUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_contributor_updates_total",
			Help: "Total contributor progress notifications.",
		}),
		running:      make(map[[16]byte]trackerState),
		contributors: make(map[contributorKey]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.trackersStarted,
		s.trackersFinished,
		s.trackersRunning,
		s.trackerSuspends,
		s.trackerRuntime,
		s.trackerRatio,
		s.contributorsStarted,
		s.contributorsFinished,
		s.contributorsActive,
		s.contributorUpdates,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if evt.Stage.IsContributor() {
			s.handleContributorEvent(evt)
			continue
		}
		s.handleTrackerEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) handleTrackerEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageTrackerStart:
		s.trackersStarted.Inc()
		prev, ok := s.running[evt.TrackerID]
		if !ok {
			s.trackersRunning.Inc()
		} else if prev.label != trackerLabel(evt) {
			s.trackerRatio.DeleteLabelValues(prev.label)
		}
		s.running[evt.TrackerID] = trackerState{startedAt: evt.TS, label: trackerLabel(evt)}
		s.trackerRatio.WithLabelValues(trackerLabel(evt)).Set(0)
	case progress.StageTrackerProgress:
		if state, ok := s.running[evt.TrackerID]; ok {
			state.ratio = evt.Ratio()
			s.running[evt.TrackerID] = state
			s.trackerRatio.WithLabelValues(state.label).Set(state.ratio)
		}
	case progress.StageTrackerSuspend:
		s.trackerSuspends.Inc()
	case progress.StageTrackerRename:
		if state, ok := s.running[evt.TrackerID]; ok && state.label != trackerLabel(evt) {
			s.trackerRatio.DeleteLabelValues(state.label)
			state.label = trackerLabel(evt)
			s.running[evt.TrackerID] = state
			s.trackerRatio.WithLabelValues(state.label).Set(state.ratio)
		}
	case progress.StageTrackerFinish:
		s.trackersFinished.Inc()
		state, ok := s.running[evt.TrackerID]
		if !ok {
			return
		}
		delete(s.running, evt.TrackerID)
		s.trackersRunning.Dec()
		s.trackerRatio.DeleteLabelValues(state.label)
		if runtime := evt.TS.Sub(state.startedAt); runtime > 0 {
			s.trackerRuntime.Observe(runtime.Seconds())
		}
	}
}

func (s *PrometheusSink) handleContributorEvent(evt progress.Event) {
	key := contributorKey{tracker: evt.TrackerID, id: evt.ContributorID}
	if evt.Stage == progress.StageContributorFinish {
		if _, ok := s.contributors[key]; ok {
			delete(s.contributors, key)
			s.contributorsActive.Dec()
		}
		s.contributorsFinished.Inc()
		return
	}
	if _, ok := s.contributors[key]; !ok {
		s.contributors[key] = struct{}{}
		s.contributorsStarted.Inc()
		s.contributorsActive.Inc()
	}
	if evt.Stage == progress.StageContributorProgress {
		s.contributorUpdates.Inc()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// trackerLabel prefers the display name and falls back to the tracker ID.
func trackerLabel(evt progress.Event) string {
	if evt.Name != "" {
		return evt.Name
	}
	return evt.TrackerUUID().String()
}
