// Package checkpoint drives a multi-phase checkpoint protocol on top of an
// epoch.Manager's marker facility. It coordinates when every active session
// has observed a phase boundary before advancing, and hands accumulated
// dirty pages to a Device once it is safe to flush them.
package checkpoint

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/epochkv/epochkv/epoch"
)

// Coordinator drives one checkpoint's worth of phase transitions.
// Coordinator itself holds an epoch.Handle and counts as one of the
// sessions that must catch up on every phase, alongside whatever other
// sessions call Session.CatchUpCheckpoint.
type Coordinator struct {
	mgr    *epoch.Manager
	handle epoch.Handle
	dev    Device
	logger zerolog.Logger

	targetPhase int32 // atomic Phase
	version     int32 // atomic, monotonic across the lifetime of the coordinator

	mu     sync.Mutex
	staged map[uint64][]byte
}

// NewCoordinator acquires a handle on mgr and returns a Coordinator ready to
// drive checkpoints against it. Close releases the handle.
func NewCoordinator(mgr *epoch.Manager, dev Device, logger zerolog.Logger) (*Coordinator, error) {
	h, err := mgr.Acquire()
	if err != nil {
		return nil, fmt.Errorf("checkpoint: acquire coordinator handle: %w", err)
	}
	return &Coordinator{
		mgr:    mgr,
		handle: h,
		dev:    dev,
		logger: logger,
		staged: make(map[uint64][]byte),
	}, nil
}

// Close releases the coordinator's epoch handle. It does not touch the
// underlying Device.
func (c *Coordinator) Close() {
	if err := c.mgr.Release(c.handle); err != nil {
		c.logger.Error().Err(err).Msg("checkpoint: release handle")
	}
}

// StagePage records data to be written to pageID the next time a checkpoint
// reaches WaitFlush. Safe to call from any goroutine, at any time.
func (c *Coordinator) StagePage(pageID uint64, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged[pageID] = buf
}

// TargetPhase returns the phase the coordinator currently wants every
// session to have observed, and the version sessions must stamp their
// marker with to be counted as caught up. Sessions call this from
// Session.CatchUpCheckpoint.
func (c *Coordinator) TargetPhase() (Phase, int32) {
	return Phase(atomic.LoadInt32(&c.targetPhase)), atomic.LoadInt32(&c.version)
}

// RunPhase advances the coordinator to target and blocks until every
// currently protected session (including the coordinator's own handle) has
// stamped the matching marker version, or ctx is done.
func (c *Coordinator) RunPhase(ctx context.Context, target Phase) error {
	version := atomic.AddInt32(&c.version, 1)
	atomic.StoreInt32(&c.targetPhase, int32(target))

	c.logger.Debug().Str("phase", target.String()).Int32("version", version).Msg("checkpoint: entering phase")

	for {
		if _, err := c.mgr.ProtectAndDrain(c.handle); err != nil {
			return fmt.Errorf("checkpoint: protect during phase %s: %w", target, err)
		}

		complete, err := c.mgr.MarkAndCheckIsComplete(c.handle, Marker, version)
		if err != nil {
			return fmt.Errorf("checkpoint: mark phase %s: %w", target, err)
		}
		if complete {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			runtime.Gosched()
		}
	}

	if target == PhaseWaitFlush {
		if err := c.flush(); err != nil {
			return err
		}
	}

	c.logger.Debug().Str("phase", target.String()).Msg("checkpoint: phase complete")
	return nil
}

func (c *Coordinator) flush() error {
	c.mu.Lock()
	staged := c.staged
	c.staged = make(map[uint64][]byte)
	c.mu.Unlock()

	for pageID, data := range staged {
		if err := c.dev.WritePage(pageID, data); err != nil {
			return fmt.Errorf("checkpoint: write page %d: %w", pageID, err)
		}
	}
	return c.dev.Sync()
}

// Checkpoint drives the full phase sequence to completion and returns the
// epoch at which the checkpoint became durable: the epoch produced by the
// BumpCurrentEpochWithAction call backing the PersistenceCallback phase.
func (c *Coordinator) Checkpoint(ctx context.Context) (int64, error) {
	for _, phase := range phaseSequence[:len(phaseSequence)-1] {
		if err := c.RunPhase(ctx, phase); err != nil {
			return 0, err
		}
	}

	newEpoch, err := c.mgr.BumpCurrentEpochWithAction(c.handle, func() {
		c.logger.Info().Msg("checkpoint: persistence callback fired")
	})
	if err != nil {
		return 0, fmt.Errorf("checkpoint: persistence callback: %w", err)
	}

	if err := c.RunPhase(ctx, PhaseRest); err != nil {
		return 0, err
	}

	return newEpoch, nil
}
