package aggregate

import (
	"math/bits"
	"sync/atomic"
)

// Contributor reports progress on its own local scale into the Tracker it is
// registered with. A Contributor is meant to be driven by one goroutine.
//
// All calls on a Contributor that has not been registered are silent no-ops.
type Contributor struct {
	id     string
	parent atomic.Pointer[Tracker]

	// Guarded by the parent tracker's mutex once registered.
	localTotal    int
	localPosition int
	lastEmitted   int
	quota         int
	done          bool
}

// NewContributor creates a detached contributor identified by id.
func NewContributor(id string) *Contributor {
	return &Contributor{id: id}
}

// TrackingID returns the identifier given at construction.
func (c *Contributor) TrackingID() string {
	return c.id
}

// Start declares the number of local steps. Zero means the contributor has no
// sub-steps and completes in one jump when it finishes.
func (c *Contributor) Start(localTotal int) {
	t := c.parent.Load()
	if t == nil {
		return
	}
	t.processStart(c, localTotal)
}

// Progress advances the local position to unit.
func (c *Contributor) Progress(unit int) {
	t := c.parent.Load()
	if t == nil {
		return
	}
	t.processStep(c, "", unit, true)
}

// ProgressMessage forwards a status message without advancing.
func (c *Contributor) ProgressMessage(message string) {
	t := c.parent.Load()
	if t == nil {
		return
	}
	t.processStep(c, message, 0, false)
}

// ProgressWithMessage advances the local position to unit and forwards
// message. The unit must lie between the current local position and the
// declared local total; anything else is logged and ignored.
func (c *Contributor) ProgressWithMessage(message string, unit int) {
	t := c.parent.Load()
	if t == nil {
		return
	}
	t.processStep(c, message, unit, true)
}

// Finish completes any unreported local progress and removes the contributor
// from its tracker. The tracker finishes when no active contributors remain.
func (c *Contributor) Finish() {
	t := c.parent.Load()
	if t == nil {
		return
	}
	t.processFinish(c)
}

// remainingWeight returns 1 - localPosition/localTotal as a fraction. A
// contributor without a declared local total counts as not started.
func (c *Contributor) remainingWeight() (num, den int64) {
	if c.localTotal == 0 {
		return 1, 1
	}
	return int64(c.localTotal - c.localPosition), int64(c.localTotal)
}

// emit converts local progress made since the last charged unit into whole
// parent units and charges them against the quota. The rate is recomputed on
// every call because a re-partition may have shrunk the quota, and the whole
// remaining local span must still map onto what is left of it.
func (c *Contributor) emit() int {
	span := int64(c.localTotal - c.lastEmitted)
	delta := int64(c.localPosition - c.lastEmitted)
	quota := int64(c.quota)
	if quota <= 0 || span <= 0 || delta <= 0 {
		return 0
	}
	count := mulDiv(delta, quota, span)
	if count == 0 {
		return 0
	}
	c.lastEmitted += int(mulDiv(count, span, quota))
	c.quota -= int(count)
	return int(count)
}

// mulDiv returns floor(a*b/c) for non-negative a, b and positive c, keeping
// the 128-bit intermediate product. The quotient must fit in an int64, which
// holds for every caller because a <= c or b <= c.
func mulDiv(a, b, c int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, _ := bits.Div64(hi, lo, uint64(c))
	return int64(q)
}
