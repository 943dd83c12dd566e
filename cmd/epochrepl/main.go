// Command epochrepl is an interactive driver over a session.Session, useful
// for poking at the epoch core and checkpoint coordinator by hand.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/epochkv/epochkv/checkpoint"
	"github.com/epochkv/epochkv/epoch"
	"github.com/epochkv/epochkv/session"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	mgr, err := epoch.New(64, epoch.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("epochrepl: construct manager")
	}
	defer mgr.Dispose()

	dev := checkpoint.NewMemoryDevice()
	coord, err := checkpoint.NewCoordinator(mgr, dev, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("epochrepl: construct coordinator")
	}
	defer coord.Close()

	s, err := session.Open(mgr, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("epochrepl: open session")
	}
	defer s.Close()

	fmt.Println("epochrepl: commands are put <k> <v>, get <k>, del <k>, gc, checkpoint, quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "put":
			if len(fields) != 3 {
				fmt.Println("usage: put <key> <value>")
				continue
			}
			if err := s.Put(fields[1], fields[2]); err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println("ok")

		case "get":
			if len(fields) != 2 {
				fmt.Println("usage: get <key>")
				continue
			}
			v, ok, err := s.Get(fields[1])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			if !ok {
				fmt.Println("(not found)")
				continue
			}
			fmt.Println(v)

		case "del":
			if len(fields) != 2 {
				fmt.Println("usage: del <key>")
				continue
			}
			if err := s.Delete(fields[1]); err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println("ok")

		case "gc":
			n, err := s.CollectGarbage()
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("queued %d value(s) for reclamation\n", n)

		case "checkpoint":
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			newEpoch, err := coord.Checkpoint(ctx)
			cancel()
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("checkpoint durable at epoch %d\n", newEpoch)

		case "quit", "exit":
			return

		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}
