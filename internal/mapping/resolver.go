package mapping

import (
	"context"
	"log"
	"sync"
	"time"

	"parking-bridge-backend/config"
	"parking-bridge-backend/internal/backend"
)

// DeviceMapping records which sensor IDs a physical device controls. The
// map is keyed by the device's IP address.
type DeviceMapping struct {
	ArduinoID int    `json:"arduinoId"`
	Location  string `json:"location"`
	Sensor1ID int    `json:"sensor1Id"`
	Sensor2ID int    `json:"sensor2Id"`
}

// DeviceLister is the slice of the data store client the resolver needs.
type DeviceLister interface {
	Devices(ctx context.Context) ([]backend.ArduinoDevice, error)
	DeviceSensors(ctx context.Context, arduinoID int) ([]backend.Sensor, error)
}

// Resolver builds and owns the in-memory IP-to-sensors mapping. The mapping
// is ephemeral: empty at startup, rebuilt on a timer and on demand, and
// republished atomically under a RWMutex so readings routed mid-refresh see
// either the old or the new snapshot, never a partial one.
type Resolver struct {
	store   DeviceLister
	cfg     config.MappingConfig
	timeout time.Duration

	refreshMu sync.Mutex

	mu    sync.RWMutex
	byIP  map[string]DeviceMapping
	order []string
}

// NewResolver creates a resolver with an empty mapping.
func NewResolver(store DeviceLister, cfg config.MappingConfig, timeout time.Duration) *Resolver {
	return &Resolver{
		store:   store,
		cfg:     cfg,
		timeout: timeout,
		byIP:    make(map[string]DeviceMapping),
	}
}

// Refresh rebuilds the mapping from the data store and publishes the result.
// Per-device sensor fetches run concurrently and are joined before
// publication; a failed device is omitted without failing the refresh. A
// failed or timed-out device listing publishes an empty mapping. Concurrent
// refreshes are serialized.
func (r *Resolver) Refresh(ctx context.Context) map[string]DeviceMapping {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	byIP := make(map[string]DeviceMapping)
	var order []string

	devices, err := r.store.Devices(ctx)
	if err != nil {
		log.Printf("mapping refresh: device listing failed: %v", err)
		r.publish(byIP, order)
		return r.Snapshot()
	}

	if len(devices) > 1 {
		// The serial protocol carries no device identity, so readings can
		// only be routed to the first device in listing order.
		log.Printf("mapping refresh: %d devices registered; serial readings route to device %d only", len(devices), devices[0].ArduinoID)
	}

	resolved := make([]*DeviceMapping, len(devices))
	var wg sync.WaitGroup
	for i, dev := range devices {
		wg.Add(1)
		go func(i int, dev backend.ArduinoDevice) {
			defer wg.Done()
			sensors, err := r.store.DeviceSensors(ctx, dev.ArduinoID)
			if err != nil {
				log.Printf("mapping refresh: sensors for device %d unavailable: %v", dev.ArduinoID, err)
				return
			}
			s1, s2 := pickUltrasonic(sensors)
			resolved[i] = &DeviceMapping{
				ArduinoID: dev.ArduinoID,
				Location:  dev.Location,
				Sensor1ID: s1,
				Sensor2ID: s2,
			}
		}(i, dev)
	}
	wg.Wait()

	for i, m := range resolved {
		if m == nil {
			continue
		}
		ip := devices[i].IPAddress
		byIP[ip] = *m
		order = append(order, ip)
	}

	r.publish(byIP, order)
	log.Printf("mapping refresh: %d of %d devices mapped", len(byIP), len(devices))
	return r.Snapshot()
}

// Run performs the startup refresh and keeps the mapping current on the
// configured interval. When auto-detection is disabled the resolver stays
// empty and routing degrades to the static legacy sensor IDs.
func (r *Resolver) Run(ctx context.Context) {
	if !r.cfg.AutoDetect {
		log.Println("sensor auto-detection disabled; using static sensor IDs")
		return
	}

	r.Refresh(ctx)

	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

// Snapshot returns a copy of the current mapping.
func (r *Resolver) Snapshot() map[string]DeviceMapping {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]DeviceMapping, len(r.byIP))
	for ip, m := range r.byIP {
		out[ip] = m
	}
	return out
}

// Primary returns the routing device: the first mapped device in listing
// order. The second return is false while the mapping is empty.
func (r *Resolver) Primary() (DeviceMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.order) == 0 {
		return DeviceMapping{}, false
	}
	return r.byIP[r.order[0]], true
}

func (r *Resolver) publish(byIP map[string]DeviceMapping, order []string) {
	r.mu.Lock()
	r.byIP = byIP
	r.order = order
	r.mu.Unlock()
}

// pickUltrasonic selects the device's two logical channels: the first
// ultrasonic sensor and the first distinct ultrasonic sensor after it.
// Sensors of other types have no channel.
func pickUltrasonic(sensors []backend.Sensor) (s1, s2 int) {
	for _, s := range sensors {
		if s.SensorType != backend.SensorTypeUltrasonic {
			continue
		}
		if s1 == 0 {
			s1 = s.SensorID
			continue
		}
		if s.SensorID != s1 {
			s2 = s.SensorID
			break
		}
	}
	return s1, s2
}
