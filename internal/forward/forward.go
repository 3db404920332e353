package forward

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"parking-bridge-backend/config"
)

// SensorUpdater is the slice of the data store client the forwarder needs.
type SensorUpdater interface {
	UpdateSensorRange(ctx context.Context, sensorID int, inches int) error
}

// Update is one accepted reading queued for delivery.
type Update struct {
	SensorID int
	Inches   int
}

// Forwarder decides per sensor whether a reading warrants a network write
// and delivers accepted readings through a small worker pool. Writes are
// fire-and-forget: failures are logged, never retried, never surfaced to
// ingestion.
type Forwarder struct {
	minChange   float64
	minInterval time.Duration
	updater     SensorUpdater
	size        int
	jobs        chan Update

	mu         sync.Mutex
	lastValue  map[int]int
	lastSentAt map[int]time.Time

	now func() time.Time
}

// New creates a forwarder; call Start before feeding it readings.
func New(cfg config.ForwarderConfig, updater SensorUpdater) *Forwarder {
	return &Forwarder{
		minChange:   cfg.MinChangeInches,
		minInterval: cfg.MinInterval,
		updater:     updater,
		size:        cfg.PoolSize,
		jobs:        make(chan Update, 64),
		lastValue:   make(map[int]int),
		lastSentAt:  make(map[int]time.Time),
		now:         time.Now,
	}
}

// Start launches the sender workers.
func (f *Forwarder) Start(ctx context.Context) {
	for i := 0; i < f.size; i++ {
		go f.worker(ctx, i)
	}
}

// Forward applies the change filter and queues the reading if it passes.
// The zero sensor ID never passes. The baseline is recorded before the
// write is queued so a near-simultaneous duplicate does not re-trigger a
// send while one is in flight.
func (f *Forwarder) Forward(sensorID int, inches int) {
	if sensorID == 0 {
		return
	}

	f.mu.Lock()
	now := f.now()

	if prev, seen := f.lastValue[sensorID]; seen {
		if math.Abs(float64(inches-prev)) < f.minChange {
			f.mu.Unlock()
			return
		}
	}
	if now.Sub(f.lastSentAt[sensorID]) < f.minInterval {
		f.mu.Unlock()
		return
	}

	f.lastValue[sensorID] = inches
	f.lastSentAt[sensorID] = now
	f.mu.Unlock()

	select {
	case f.jobs <- Update{SensorID: sensorID, Inches: inches}:
	default:
		// Ingestion never blocks on a slow backend; the next accepted
		// reading carries the fresher value anyway.
		log.Printf("forwarder queue full, dropping update for sensor %d", sensorID)
	}
}

// Jobs exposes the delivery queue for testing.
func (f *Forwarder) Jobs() chan Update {
	return f.jobs
}

func (f *Forwarder) worker(ctx context.Context, id int) {
	for {
		select {
		case u := <-f.jobs:
			if err := f.updater.UpdateSensorRange(ctx, u.SensorID, u.Inches); err != nil {
				log.Printf("sensor update failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
