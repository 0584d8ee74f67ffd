package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestEventValidate covers the per-stage validation rules.
func TestEventValidate(t *testing.T) {
	t.Parallel()

	id := UUIDToBytes(uuid.New())
	now := time.Now()
	tests := []struct {
		name    string
		evt     Event
		wantErr string
	}{
		{name: "missing tracker", evt: Event{TS: now, Stage: StageTrackerStart}, wantErr: "tracker id is required"},
		{name: "missing timestamp", evt: Event{TrackerID: id, Stage: StageTrackerStart}, wantErr: "timestamp is required"},
		{name: "unknown stage", evt: Event{TrackerID: id, TS: now, Stage: "NOPE"}, wantErr: "unknown stage"},
		{
			name:    "position past total",
			evt:     Event{TrackerID: id, TS: now, Stage: StageTrackerProgress, Position: 11, Total: 10},
			wantErr: "outside",
		},
		{
			name:    "negative delay",
			evt:     Event{TrackerID: id, TS: now, Stage: StageTrackerDelay, Estimate: -time.Second},
			wantErr: "delay must be >= 0",
		},
		{
			name:    "contributor without id",
			evt:     Event{TrackerID: id, TS: now, Stage: StageContributorFinish},
			wantErr: "requires contributor id",
		},
		{name: "start with unknown estimate", evt: Event{TrackerID: id, TS: now, Stage: StageTrackerStart, Estimate: -1}},
		{name: "progress", evt: Event{TrackerID: id, TS: now, Stage: StageTrackerProgress, Position: 10, Total: 10}},
		{name: "contributor", evt: Event{TrackerID: id, TS: now, Stage: StageContributorStart, ContributorID: "c"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.evt.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

// TestUUIDRoundTrip ensures the binary form converts back to the same UUID.
func TestUUIDRoundTrip(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	evt := Event{TrackerID: UUIDToBytes(id)}
	require.Equal(t, id, evt.TrackerUUID())
}
