package engine

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/semaphore"
)

// Dispatcher bounds how many crawls run at once and pauses dispatch while
// system memory sits above a threshold. A permit is held for the full
// crawl, including any time spent waiting for memory headroom, so the
// concurrency bound never slips.
type Dispatcher struct {
	sem           *semaphore.Weighted
	memThreshold  float64
	checkInterval time.Duration

	// memPercent reports used system memory as a percentage.
	// Swappable in tests.
	memPercent func() (float64, error)
}

// NewDispatcher returns a dispatcher allowing maxConcurrent crawls in
// flight. When memThresholdPercent is positive, new crawls wait until
// used memory drops below it, polling every checkInterval.
func NewDispatcher(maxConcurrent int, memThresholdPercent float64, checkInterval time.Duration) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if checkInterval <= 0 {
		checkInterval = time.Second
	}
	return &Dispatcher{
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		memThreshold:  memThresholdPercent,
		checkInterval: checkInterval,
		memPercent:    systemMemoryPercent,
	}
}

// Acquire blocks until memory is below the threshold and a permit is
// free, honoring ctx cancellation throughout.
func (d *Dispatcher) Acquire(ctx context.Context) error {
	for d.memThreshold > 0 {
		pct, err := d.memPercent()
		if err != nil || pct < d.memThreshold {
			// Probe failures never block dispatch.
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.checkInterval):
		}
	}
	return d.sem.Acquire(ctx, 1)
}

// Release returns a permit taken by Acquire.
func (d *Dispatcher) Release() {
	d.sem.Release(1)
}

func systemMemoryPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}
