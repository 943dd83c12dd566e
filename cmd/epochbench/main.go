// Command epochbench stresses an epoch.Manager with a configurable number
// of goroutines and reports the achieved ProtectAndDrain throughput, along
// with how many deferred actions fired during the run. It mirrors the shape
// of a standalone key-value store benchmark tool, minus the store.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/epochkv/epochkv/epoch"
)

func main() {
	var (
		tableSize  = flag.Int("table-size", 128, "entry table size, must be a power of two <= 32768")
		goroutines = flag.Int("goroutines", 8, "number of concurrent goroutines")
		duration   = flag.Duration("duration", 2*time.Second, "how long to run")
		bumpEvery  = flag.Int("bump-every", 1000, "register a deferred action after this many ProtectAndDrain calls per goroutine")
		verbose    = flag.Bool("verbose", false, "log at debug level instead of info")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	mgr, err := epoch.New(*tableSize, epoch.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("epochbench: construct manager")
	}
	defer mgr.Dispose()

	var (
		ops   int64
		fired int64
		wg    sync.WaitGroup
		stop  = make(chan struct{})
	)

	logger.Info().
		Int("table_size", *tableSize).
		Int("goroutines", *goroutines).
		Dur("duration", *duration).
		Msg("epochbench: starting")

	start := time.Now()
	for g := 0; g < *goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			h, err := mgr.Acquire()
			if err != nil {
				logger.Error().Err(err).Msg("epochbench: acquire failed")
				return
			}
			defer mgr.Release(h)

			local := 0
			for {
				select {
				case <-stop:
					return
				default:
				}

				if _, err := mgr.ProtectAndDrain(h); err != nil {
					logger.Error().Err(err).Msg("epochbench: protect failed")
					return
				}
				atomic.AddInt64(&ops, 1)
				local++

				if *bumpEvery > 0 && local%*bumpEvery == 0 {
					if _, err := mgr.BumpCurrentEpochWithAction(h, func() {
						atomic.AddInt64(&fired, 1)
					}); err != nil {
						logger.Error().Err(err).Msg("epochbench: bump failed")
						return
					}
				}
			}
		}()
	}

	time.Sleep(*duration)
	close(stop)
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Printf("ops=%d fired=%d elapsed=%s ops/sec=%.0f current_epoch=%d safe_to_reclaim_epoch=%d\n",
		ops, fired, elapsed, float64(ops)/elapsed.Seconds(), mgr.CurrentEpoch(), mgr.SafeToReclaimEpoch())
}
