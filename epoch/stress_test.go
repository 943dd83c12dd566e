package epoch

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/epochkv/epochkv/internal/pcg"
)

// S6-style stress test: many goroutines hammering ProtectAndDrain and
// occasionally registering deferred actions. Every registered action must
// fire exactly once, current_epoch must only grow, and once every goroutine
// is done, safe_to_reclaim_epoch must sit exactly one behind current_epoch.
func TestStressManyGoroutines(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in -short mode")
	}

	const (
		goroutines     = 64
		iterationsPerG = 2000
		tableSize      = 128
	)

	mgr, err := New(tableSize)
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Dispose()

	var (
		fired      int64
		registered int64
		lastEpoch  int64
		wg         sync.WaitGroup
	)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()

			rng := pcg.New(seed, seed^0x9e3779b97f4a7c15)

			h, err := mgr.Acquire()
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer mgr.Release(h)

			for i := 0; i < iterationsPerG; i++ {
				epoch, err := mgr.ProtectAndDrain(h)
				if err != nil {
					t.Errorf("ProtectAndDrain: %v", err)
					return
				}
				for {
					prev := atomic.LoadInt64(&lastEpoch)
					if epoch <= prev || atomic.CompareAndSwapInt64(&lastEpoch, prev, epoch) {
						break
					}
				}

				if rng.Intn(20) == 0 {
					atomic.AddInt64(&registered, 1)
					if _, err := mgr.BumpCurrentEpochWithAction(h, func() {
						atomic.AddInt64(&fired, 1)
					}); err != nil {
						t.Errorf("BumpCurrentEpochWithAction: %v", err)
						return
					}
				}
			}
		}(uint64(g) + 1)
	}

	wg.Wait()

	if fired != registered {
		t.Fatalf("fired = %d actions; want exactly %d (one per registration)", fired, registered)
	}
	if mgr.drainCount != 0 {
		t.Fatalf("drainCount = %d after quiescence; want 0", mgr.drainCount)
	}

	// Quiesce: nobody holds a handle anymore, so recomputing the safe epoch
	// against the current epoch should settle safe_to_reclaim_epoch =
	// current - 1.
	mgr.computeSafeToReclaim(mgr.CurrentEpoch())
	if got, want := mgr.SafeToReclaimEpoch(), mgr.CurrentEpoch()-1; got != want {
		t.Fatalf("SafeToReclaimEpoch() = %d; want %d", got, want)
	}
}
