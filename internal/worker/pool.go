package worker

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/scanforge/vulnscan-engine/internal/claimer"
)

// Pool runs a fixed number of worker goroutines, each driving scans claimed
// from the Job Claimer through a Driver. Scans offered on Submit take the
// in-process fast path; when that channel is empty or full, each worker
// falls back to its own ticker-driven poll of the claimer.
type Pool struct {
	driver  *Driver
	claimer *claimer.Claimer

	size         int
	pollInterval time.Duration

	offer chan struct{} // wakes an idle worker to poll immediately
	wg    sync.WaitGroup
}

// NewPool builds a pool of size concurrent workers, polling the claimer no
// faster than pollInterval whenever the queue was empty on the last check.
func NewPool(driver *Driver, c *claimer.Claimer, size int, pollInterval time.Duration) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		driver:       driver,
		claimer:      c,
		size:         size,
		pollInterval: pollInterval,
		offer:        make(chan struct{}, size),
	}
}

// Offer wakes one idle worker to poll the claimer immediately, used by the
// submission path's in-process fast path instead of waiting for the next
// ticker tick. It is a hint, not a guarantee: up to size signals are
// buffered, and once that buffer is full further signals are dropped.
func (p *Pool) Offer() {
	select {
	case p.offer <- struct{}{}:
	default:
	}
}

// Run starts the pool's worker goroutines and blocks until ctx is canceled,
// at which point it stops claiming new work and waits for in-flight scans to
// finish before returning.
func (p *Pool) Run(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		id := i
		p.wg.Add(1)
		go p.runWorker(ctx, id)
	}
	p.wg.Wait()
}

// runWorker loops poll, claim, drive; tracks consecutive failures unrelated
// to a specific scan with exponential backoff capped at 60 seconds, and
// exits after 5 consecutive failures so a supervisor can restart the
// process.
func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	workerID := workerName(id)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.offer:
		}

		if ctx.Err() != nil {
			return
		}

		claimed, err := p.claimer.ClaimNext(ctx, workerID)
		if err != nil {
			consecutiveFailures++
			log.Printf("worker %s: claim failed (%d consecutive): %v", workerID, consecutiveFailures, err)
			if consecutiveFailures >= 5 {
				log.Printf("worker %s: exiting after %d consecutive failures", workerID, consecutiveFailures)
				return
			}
			sleepBackoff(ctx, consecutiveFailures)
			continue
		}

		if claimed == nil {
			continue // queue empty or lost the claim race; wait for next tick
		}

		consecutiveFailures = 0
		// Once a scan is claimed it must run to completion even if the pool's
		// shutdown context is canceled mid-flight: canceling the scanner
		// subprocess and the terminal-state DB write out from under an
		// in-flight scan would leave it stuck in a non-terminal status
		// forever. The only deadline inside Run is the scanner call's
		// TrivyTimeout; Driver.ScanTimeout is not applied by Run.
		if err := p.driver.Run(context.Background(), claimed); err != nil {
			log.Printf("worker %s: scan %s finished with error: %v", workerID, claimed.ID, err)
		}
	}
}

// sleepBackoff sleeps min(2^n, 60) seconds, honoring context cancellation.
func sleepBackoff(ctx context.Context, n int) {
	d := time.Duration(1<<uint(n)) * time.Second
	maxBackoff := 60 * time.Second
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func workerName(id int) string {
	return "worker-" + strconv.Itoa(id)
}
