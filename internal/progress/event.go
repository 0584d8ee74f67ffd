package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the kind of activity recorded by an Event.
type Stage string

// Tracker-level stages mirror the display calls; contributor stages mirror
// observer notifications.
const (
	StageTrackerStart        Stage = "TRACKER_START"
	StageTrackerProgress     Stage = "TRACKER_PROGRESS"
	StageTrackerFinish       Stage = "TRACKER_FINISH"
	StageTrackerSuspend      Stage = "TRACKER_SUSPEND"
	StageTrackerDelay        Stage = "TRACKER_DELAY"
	StageTrackerRename       Stage = "TRACKER_RENAME"
	StageContributorStart    Stage = "CONTRIBUTOR_START"
	StageContributorProgress Stage = "CONTRIBUTOR_PROGRESS"
	StageContributorFinish   Stage = "CONTRIBUTOR_FINISH"
)

// IsContributor reports whether the stage describes a single contributor.
func (s Stage) IsContributor() bool {
	switch s {
	case StageContributorStart, StageContributorProgress, StageContributorFinish:
		return true
	default:
		return false
	}
}

// Event captures one change to an aggregate tracker.
type Event struct {
	// TrackerID identifies the tracker using the 16-byte UUID form.
	TrackerID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which display call or observer notification occurred.
	Stage Stage
	// ContributorID is set for contributor stages only.
	ContributorID string
	// Name is the tracker display name at the time of the event.
	Name string
	// Message is the optional status text for progress and suspend events.
	Message string
	// Position is the aggregate position for progress events.
	Position int
	// Total is the tracker's fixed quota.
	Total int
	// Estimate is the duration estimate on start or the delay on TRACKER_DELAY.
	// Negative means unknown.
	Estimate time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TrackerID == [16]byte{} {
		return errors.New("tracker id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageTrackerStart, StageTrackerFinish, StageTrackerSuspend, StageTrackerRename:
	case StageTrackerProgress:
		if e.Position < 0 || (e.Total > 0 && e.Position > e.Total) {
			return fmt.Errorf("position %d outside [0, %d]", e.Position, e.Total)
		}
	case StageTrackerDelay:
		if e.Estimate < 0 {
			return errors.New("delay must be >= 0")
		}
	case StageContributorStart, StageContributorProgress, StageContributorFinish:
		if e.ContributorID == "" {
			return fmt.Errorf("%s requires contributor id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}

// Ratio returns Position/Total, or 0 when the total is unknown.
func (e Event) Ratio() float64 {
	if e.Total <= 0 {
		return 0
	}
	return float64(e.Position) / float64(e.Total)
}

// TrackerUUID converts the binary tracker ID to uuid.UUID for repositories.
func (e Event) TrackerUUID() uuid.UUID {
	return uuid.UUID(e.TrackerID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
