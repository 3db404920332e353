package reservation

import (
	"context"
	"log"
	"time"
)

// Notifier receives the number of newly open holding slots.
type Notifier interface {
	Dispatch(openSlots int)
}

// Watcher polls the availability aggregate and notifies when reservation
// capacity reappears after being exhausted. Only the zero-to-positive
// transition notifies; capacity staying open is not news.
type Watcher struct {
	engine   *Engine
	interval time.Duration
	notifier Notifier

	last   int
	seeded bool
}

// NewWatcher creates a watcher polling on the given interval.
func NewWatcher(engine *Engine, interval time.Duration, notifier Notifier) *Watcher {
	return &Watcher{engine: engine, interval: interval, notifier: notifier}
}

// Run polls until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.Poll(ctx)

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("availability watcher shutting down")
			return
		case <-timer.C:
			w.Poll(ctx)
			timer.Reset(w.interval)
		}
	}
}

// Poll fetches availability once and dispatches on a reopen transition. A
// fetch failure keeps the previous observation.
func (w *Watcher) Poll(ctx context.Context) {
	av, err := w.engine.Availability(ctx)
	if err != nil {
		log.Printf("availability poll failed: %v", err)
		return
	}

	open := av.AvailableForHolding
	if w.seeded && w.last == 0 && open > 0 {
		log.Printf("holding capacity reopened: %d slots", open)
		w.notifier.Dispatch(open)
	}
	w.last = open
	w.seeded = true
}
