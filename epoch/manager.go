package epoch

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/epochkv/epochkv/internal/assert"
)

// drainListLen is the fixed number of in-flight deferred actions the
// manager can track at once.
const drainListLen = 16

// maxDrainWraps bounds how many full, unsuccessful passes over the drain
// list enqueue makes before it logs a starvation diagnostic. It keeps
// spinning afterward; there is no hard failure mode for a full drain list.
const maxDrainWraps = 500

// Manager is one instance of the epoch protection and deferred-reclamation
// primitive. A process may run more than one, e.g. one per key-value shard.
// The zero value is not usable; construct one with New.
type Manager struct {
	table *entryTable

	triggers   [drainListLen]trigger
	drainCount int64

	current  int64
	safe     int64
	disposed int32

	nextThread uint32

	logger zerolog.Logger
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger sets the logger used for the manager's two diagnostic log
// lines: drain-list starvation and table exhaustion. The default is a
// disabled logger, so the wait-free hot path never touches an unconfigured
// sink.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// New constructs a Manager with the given entry-table size, which must be a
// power of two no larger than 32768.
func New(tableSize int, opts ...Option) (*Manager, error) {
	if tableSize <= 0 || tableSize&(tableSize-1) != 0 {
		return nil, fmt.Errorf("epoch: table size must be a positive power of two, got %d", tableSize)
	}
	if tableSize > 32768 {
		return nil, fmt.Errorf("epoch: table size %d exceeds maximum of 32768", tableSize)
	}

	m := &Manager{
		table:   newEntryTable(uint32(tableSize)),
		current: 1,
		logger:  zerolog.Nop(),
	}
	for i := range m.triggers {
		m.triggers[i].epoch = drainEmptyEpoch
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Dispose marks the manager unusable. Acquire, ProtectAndDrain and
// BumpCurrentEpochWithAction called afterward return ErrAlreadyDisposed
// (ProtectAndDrain with a benign zero epoch, to keep shutdown code simple).
// Release, IsProtected, BumpCurrentEpoch, MarkAndCheckIsComplete and the
// epoch accessors do not check for disposal and keep working as before.
// Dispose does not wait for outstanding handles to Release; that is the
// caller's job.
func (m *Manager) Dispose() {
	atomic.StoreInt32(&m.disposed, 1)
}

func (m *Manager) isDisposed() bool {
	return atomic.LoadInt32(&m.disposed) != 0
}

// Acquire reserves an entry-table slot for the calling goroutine and
// returns a Handle to it. The returned Handle must eventually be passed to
// Release.
func (m *Manager) Acquire() (Handle, error) {
	if m.isDisposed() {
		return Handle{}, ErrAlreadyDisposed
	}

	// Thread ids are minted from a monotonic counter rather than read from
	// the OS: Go exposes no portable, library-reachable thread identity,
	// and the counter already guarantees the non-zero invariant the
	// sentinel-based freeness check depends on.
	threadID := atomic.AddUint32(&m.nextThread, 1)
	assert.That("minted thread id is never zero", func() bool { return threadID != 0 })

	slot, err := m.table.reserve(threadID)
	if err != nil {
		m.logger.Error().
			Uint32("thread_id", threadID).
			Int("table_size", int(m.table.size)).
			Msg("epoch: table exhausted")
		return Handle{}, err
	}
	return Handle{slot: slot}, nil
}

// Release frees the slot held by h. h must not be used again afterward
// except to Acquire a fresh one. It returns ErrNotProtected if h was never
// returned by Acquire, matching the error MarkAndCheckIsComplete returns
// for the same misuse.
func (m *Manager) Release(h Handle) error {
	if !h.Initialized() {
		return ErrNotProtected
	}
	m.table.free(h.slot)
	return nil
}

// IsProtected reports whether h is initialized and currently inside a
// protected region.
func (m *Manager) IsProtected(h Handle) bool {
	if !h.Initialized() {
		return false
	}
	return atomic.LoadInt64(&m.table.entries[h.slot].localEpoch) != 0
}

// ProtectAndDrain publishes the current epoch into h's entry and, if any
// deferred action might now be safe to run, drains the trigger list. It is
// the hot path: with nothing pending to drain it performs a fixed number of
// atomic operations and allocates nothing.
func (m *Manager) ProtectAndDrain(h Handle) (int64, error) {
	if m.isDisposed() {
		return 0, ErrAlreadyDisposed
	}
	if !h.Initialized() {
		return 0, ErrNotProtected
	}

	epoch := atomic.LoadInt64(&m.current)
	atomic.StoreInt64(&m.table.entries[h.slot].localEpoch, epoch)

	if atomic.LoadInt64(&m.drainCount) > 0 {
		m.drain(epoch)
	}

	return epoch, nil
}

// BumpCurrentEpoch atomically advances the global epoch by one and returns
// the new value, opportunistically draining any actions that are now safe.
func (m *Manager) BumpCurrentEpoch() int64 {
	next := atomic.AddInt64(&m.current, 1)
	if atomic.LoadInt64(&m.drainCount) > 0 {
		m.drain(next)
	}
	return next
}

// BumpCurrentEpochWithAction advances the global epoch and enqueues action
// to fire once no entry can still observe the pre-bump epoch. It concludes
// with a ProtectAndDrain on h, matching the design's requirement that the
// bumping caller itself re-publish before returning.
func (m *Manager) BumpCurrentEpochWithAction(h Handle, action func()) (int64, error) {
	if m.isDisposed() {
		return 0, ErrAlreadyDisposed
	}
	if !h.Initialized() {
		return 0, ErrNotProtected
	}

	next := atomic.AddInt64(&m.current, 1)
	prior := next - 1
	m.enqueue(prior, action)

	if _, err := m.ProtectAndDrain(h); err != nil {
		return next, err
	}
	return next, nil
}

// enqueue lodges action into the first available drain slot at trigger
// epoch triggerEpoch, firing (and recycling) any slot it passes over along
// the way that has already become safe. It does not recompute the safe
// epoch itself: while every slot is occupied and none is at or below the
// last published safe epoch, it keeps spinning until another goroutine's
// drain frees a slot.
func (m *Manager) enqueue(triggerEpoch int64, action func()) {
	wraps := 0
	for {
		lodged := false
		for i := range m.triggers {
			t := &m.triggers[i]
			epoch := t.Epoch()

			if epoch == drainEmptyEpoch {
				if t.store(triggerEpoch, action) {
					atomic.AddInt64(&m.drainCount, 1)
					lodged = true
					break
				}
				continue
			}

			safe := atomic.LoadInt64(&m.safe)
			if epoch != drainClaimingEpoch && epoch <= safe {
				if ripe, ok := t.claim(epoch); ok {
					remaining := atomic.AddInt64(&m.drainCount, -1)
					assert.That("drain count does not go negative", func() bool { return remaining >= 0 })
					ripe()
				}
			}
		}

		if lodged {
			return
		}

		wraps++
		if wraps == maxDrainWraps {
			wraps = 0
			m.logger.Warn().
				Int("drain_list_len", drainListLen).
				Msg("epoch: slowdown, unable to lodge trigger in drain list")
		}
	}
}

// drain recomputes the safe-to-reclaim epoch against referenceEpoch and
// fires every trigger whose epoch is now at or below it.
func (m *Manager) drain(referenceEpoch int64) {
	m.computeSafeToReclaim(referenceEpoch)
	safe := atomic.LoadInt64(&m.safe)

	for i := range m.triggers {
		if atomic.LoadInt64(&m.drainCount) == 0 {
			return
		}

		t := &m.triggers[i]
		epoch := t.Epoch()
		if epoch == drainEmptyEpoch || epoch == drainClaimingEpoch || epoch > safe {
			continue
		}

		if action, ok := t.claim(epoch); ok {
			atomic.AddInt64(&m.drainCount, -1)
			action()
		}
	}
}

// computeSafeToReclaim scans every entry and stores the largest epoch e
// such that no entry has a local epoch in [1, e]. referenceEpoch bounds the
// result from above, letting a caller factor in its own about-to-publish
// epoch before any entry reflects it.
func (m *Manager) computeSafeToReclaim(referenceEpoch int64) int64 {
	oldest := referenceEpoch
	for i := uint32(1); i <= m.table.size; i++ {
		local := atomic.LoadInt64(&m.table.entries[i].localEpoch)
		if local != 0 && local < oldest {
			oldest = local
		}
	}

	safe := oldest - 1
	atomic.StoreInt64(&m.safe, safe)
	return safe
}

// MarkAndCheckIsComplete stamps h's marker at markerIndex with version, then
// reports whether every currently protected entry has already stamped that
// same marker with the same version. Callers iterate this across the steps
// of a multi-phase barrier, advancing version on each step. h must be
// initialized.
func (m *Manager) MarkAndCheckIsComplete(h Handle, markerIndex int, version int32) (bool, error) {
	if !h.Initialized() {
		return false, ErrNotProtected
	}
	if markerIndex < 0 || markerIndex >= MarkerCount {
		return false, fmt.Errorf("epoch: marker index %d out of range [0, %d)", markerIndex, MarkerCount)
	}

	atomic.StoreInt32(&m.table.entries[h.slot].markers[markerIndex], version)

	for i := uint32(1); i <= m.table.size; i++ {
		e := &m.table.entries[i]
		if atomic.LoadInt64(&e.localEpoch) == 0 {
			continue
		}
		if atomic.LoadInt32(&e.markers[markerIndex]) != version {
			return false, nil
		}
	}
	return true, nil
}

// CurrentEpoch returns the manager's current global epoch.
func (m *Manager) CurrentEpoch() int64 {
	return atomic.LoadInt64(&m.current)
}

// SafeToReclaimEpoch returns the largest epoch known safe for reclamation.
// The value is advisory: it is only ever refreshed as a side effect of
// ProtectAndDrain or BumpCurrentEpoch, so a stale read delays but never
// endangers reclamation.
func (m *Manager) SafeToReclaimEpoch() int64 {
	return atomic.LoadInt64(&m.safe)
}
