package council

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Mux fans the emissions of several workers into one channel. Per-worker
// emission order is preserved; events from different workers interleave in
// arrival order. The guard timeout is a hard ceiling on the whole fan-in:
// when it fires, outstanding workers are canceled and still terminate, so
// the output channel always closes.
type Mux struct {
	GuardTimeout time.Duration
	MaxParallel  int64

	guardFired atomic.Bool
}

// Run launches the workers and returns the fan-in channel. The channel
// closes after every worker has emitted its terminal event. MaxParallel
// caps how many workers stream concurrently.
func (m *Mux) Run(ctx context.Context, workers []*Worker) <-chan muxEvent {
	out := make(chan muxEvent, 64)

	runCtx, cancel := context.WithCancel(ctx)

	var guard *time.Timer
	if m.GuardTimeout > 0 {
		guard = time.AfterFunc(m.GuardTimeout, func() {
			m.guardFired.Store(true)
			cancel()
		})
	}

	limit := m.MaxParallel
	if limit < 1 {
		limit = int64(len(workers))
	}
	sem := semaphore.NewWeighted(limit)

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := sem.Acquire(runCtx, 1); err != nil {
				// Canceled before this worker ever started.
				out <- muxEvent{AgentID: w.ID, Kind: kindDone, Outcome: &Outcome{
					AgentID: w.ID,
					State:   StateTimedOut,
					Err:     err,
				}}
				return
			}
			defer sem.Release(1)
			w.Run(runCtx, func(ev muxEvent) { out <- ev })
		}(w)
	}

	go func() {
		wg.Wait()
		if guard != nil {
			guard.Stop()
		}
		cancel()
		close(out)
	}()

	return out
}

// GuardFired reports whether the guard timeout truncated the run. Valid
// once the fan-in channel has closed.
func (m *Mux) GuardFired() bool {
	return m.guardFired.Load()
}
