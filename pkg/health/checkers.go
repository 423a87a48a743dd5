package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails once the process holds more than limit
// goroutines. Every order carries a handler goroutine plus broker callbacks,
// so a runaway count here usually means a leaked consumer or a stuck
// publish.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines, limit %d", n, limit)
		}
		return nil
	}
}

// GCMaxPauseCheck fails if any recorded GC pause exceeded limit. Long pauses
// show up as timeout spikes on the order endpoints before anything else does.
func GCMaxPauseCheck(limit time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		for _, pause := range stats.Pause {
			if pause > limit {
				return errors.Errorf("GC pause %s, limit %s", pause, limit)
			}
		}
		return nil
	}
}
