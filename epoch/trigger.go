package epoch

import (
	"math"
	"sync/atomic"
)

const (
	// drainEmptyEpoch marks a drain slot with no pending action.
	drainEmptyEpoch int64 = math.MaxInt64
	// drainClaimingEpoch marks a drain slot mid-transition; only the
	// goroutine that won the CAS into this state may touch action.
	drainClaimingEpoch int64 = math.MaxInt64 - 1
)

// trigger is one drain-list slot: a (trigger epoch, action) pair that fires
// once no protected entry can still observe an epoch at or before the
// trigger epoch. All state transitions go through compare-and-swap on
// epoch, which is why action is only ever touched by whichever goroutine
// just won a CAS into drainClaimingEpoch.
type trigger struct {
	epoch  int64
	action func()
}

// Epoch returns the trigger's current epoch, which may be drainEmptyEpoch or
// drainClaimingEpoch.
func (t *trigger) Epoch() int64 {
	return atomic.LoadInt64(&t.epoch)
}

// Free reports whether the slot is available for a new action.
func (t *trigger) Free() bool {
	return t.Epoch() == drainEmptyEpoch
}

// store claims an empty slot for a brand new action, publishing triggerEpoch
// with release semantics once the action is written.
func (t *trigger) store(triggerEpoch int64, action func()) bool {
	if !atomic.CompareAndSwapInt64(&t.epoch, drainEmptyEpoch, drainClaimingEpoch) {
		return false
	}
	t.action = action
	atomic.StoreInt64(&t.epoch, triggerEpoch)
	return true
}

// claim detaches the action from a slot currently holding oldEpoch and
// resets the slot to empty, returning the detached action. Used when a slot
// has become ripe for firing.
func (t *trigger) claim(oldEpoch int64) (func(), bool) {
	if !atomic.CompareAndSwapInt64(&t.epoch, oldEpoch, drainClaimingEpoch) {
		return nil, false
	}
	action := t.action
	t.action = nil
	atomic.StoreInt64(&t.epoch, drainEmptyEpoch)
	return action, true
}
