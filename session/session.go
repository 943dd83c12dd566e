// Package session models how a key-value store client would sit on top of
// the epoch core: acquire a handle on open, protect around every operation,
// and drive epoch-gated garbage collection for values a Put or Delete has
// superseded. The map itself is a toy sync.Map, not the real key-value
// store's index — that remains out of scope.
package session

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/epochkv/epochkv/checkpoint"
	"github.com/epochkv/epochkv/epoch"
)

// Session is one client's view onto a Manager-backed store.
type Session struct {
	mgr    *epoch.Manager
	handle epoch.Handle
	logger zerolog.Logger

	store sync.Map // string -> any

	mu      sync.Mutex
	garbage []garbageEntry
}

type garbageEntry struct {
	epoch int64
	value any
}

// Open acquires a handle on mgr and returns a ready Session. Close releases
// the handle.
func Open(mgr *epoch.Manager, logger zerolog.Logger) (*Session, error) {
	h, err := mgr.Acquire()
	if err != nil {
		return nil, fmt.Errorf("session: open: %w", err)
	}
	return &Session{mgr: mgr, handle: h, logger: logger}, nil
}

// Close releases the session's epoch handle. It does not collect any
// remaining garbage; call CollectGarbage first if that matters.
func (s *Session) Close() {
	if err := s.mgr.Release(s.handle); err != nil {
		s.logger.Error().Err(err).Msg("session: release handle")
	}
}

// Get returns the value stored at key, protecting the read for the duration
// of the lookup.
func (s *Session) Get(key string) (any, bool, error) {
	if _, err := s.mgr.ProtectAndDrain(s.handle); err != nil {
		return nil, false, fmt.Errorf("session: get %q: %w", key, err)
	}
	v, ok := s.store.Load(key)
	return v, ok, nil
}

// Put stores value at key. Any value it replaces is tagged with the epoch
// at which it was superseded and queued for later reclamation.
func (s *Session) Put(key string, value any) error {
	epoch, err := s.mgr.ProtectAndDrain(s.handle)
	if err != nil {
		return fmt.Errorf("session: put %q: %w", key, err)
	}
	if old, loaded := s.store.Swap(key, value); loaded {
		s.queueGarbage(epoch, old)
	}
	return nil
}

// Delete removes key, if present, tagging its prior value for reclamation
// the same way Put does.
func (s *Session) Delete(key string) error {
	epoch, err := s.mgr.ProtectAndDrain(s.handle)
	if err != nil {
		return fmt.Errorf("session: delete %q: %w", key, err)
	}
	if old, loaded := s.store.LoadAndDelete(key); loaded {
		s.queueGarbage(epoch, old)
	}
	return nil
}

func (s *Session) queueGarbage(epoch int64, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.garbage = append(s.garbage, garbageEntry{epoch: epoch, value: value})
}

// CollectGarbage registers a deferred action that discards every value
// superseded since the last collection, once no session can still observe
// it. It returns the number of values queued for collection, not the number
// already reclaimed (that happens asynchronously, from the caller's point
// of view, once the epoch advances past them).
func (s *Session) CollectGarbage() (int, error) {
	s.mu.Lock()
	pending := s.garbage
	s.garbage = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return 0, nil
	}

	if _, err := s.mgr.BumpCurrentEpochWithAction(s.handle, func() {
		s.logger.Debug().Int("count", len(pending)).Msg("session: garbage collected")
	}); err != nil {
		// Put the batch back so a later call can retry.
		s.mu.Lock()
		s.garbage = append(pending, s.garbage...)
		s.mu.Unlock()
		return 0, fmt.Errorf("session: collect garbage: %w", err)
	}

	return len(pending), nil
}

// CatchUpCheckpoint reports the session's progress on coord's current
// checkpoint phase, protecting the session's handle in the process. Real
// consumers would call this from their normal operation loop rather than
// spinning a dedicated goroutine.
func (s *Session) CatchUpCheckpoint(coord *checkpoint.Coordinator) (bool, error) {
	if _, err := s.mgr.ProtectAndDrain(s.handle); err != nil {
		return false, fmt.Errorf("session: catch up checkpoint: %w", err)
	}
	_, version := coord.TargetPhase()
	complete, err := s.mgr.MarkAndCheckIsComplete(s.handle, checkpoint.Marker, version)
	if err != nil {
		return false, fmt.Errorf("session: catch up checkpoint: %w", err)
	}
	return complete, nil
}
