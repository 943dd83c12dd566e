package checkpoint

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/epochkv/epochkv/epoch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// CP1: a single session completes a full checkpoint cycle.
func TestCheckpointSingleSession(t *testing.T) {
	mgr, err := epoch.New(16)
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Dispose()

	dev := NewMemoryDevice()
	coord, err := NewCoordinator(mgr, dev, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer coord.Close()

	before := mgr.CurrentEpoch()
	coord.StagePage(1, []byte("hello"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	newEpoch, err := coord.Checkpoint(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if newEpoch < before {
		t.Fatalf("checkpoint epoch %d < starting epoch %d", newEpoch, before)
	}
	if dev.Pending() != 0 {
		t.Fatalf("device has %d pending pages after checkpoint", dev.Pending())
	}
	if data, ok := dev.Page(1); !ok || string(data) != "hello" {
		t.Fatalf("page 1 = %q, %v; want %q, true", data, ok, "hello")
	}
}

// A background session cooperating the way Session.CatchUpCheckpoint does
// (protect, then stamp the coordinator's target version) must not stall the
// coordinator, and must observe every phase the coordinator announces.
func TestCheckpointWithCooperatingSession(t *testing.T) {
	mgr, err := epoch.New(16)
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Dispose()

	dev := NewMemoryDevice()
	coord, err := NewCoordinator(mgr, dev, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer coord.Close()

	h, err := mgr.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Release(h)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			mgr.ProtectAndDrain(h)
			_, version := coord.TargetPhase()
			mgr.MarkAndCheckIsComplete(h, Marker, version)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := coord.Checkpoint(ctx); err != nil {
		close(stop)
		wg.Wait()
		t.Fatal(err)
	}

	close(stop)
	wg.Wait()
}

// CP2: a session that never advances its marker blocks RunPhase until the
// context deadline.
func TestRunPhaseRespectsContextDeadline(t *testing.T) {
	mgr, err := epoch.New(16)
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Dispose()

	dev := NewMemoryDevice()
	coord, err := NewCoordinator(mgr, dev, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer coord.Close()

	// A stalled session: protected, but never stamps its marker.
	stalled, err := mgr.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Release(stalled)
	if _, err := mgr.ProtectAndDrain(stalled); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = coord.RunPhase(ctx, PhasePrepIndexCheckpoint)
	if err != context.DeadlineExceeded {
		t.Fatalf("RunPhase with a stalled session = %v; want context.DeadlineExceeded", err)
	}
}
