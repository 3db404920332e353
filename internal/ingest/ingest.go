package ingest

import (
	"log"
	"sync"
	"time"

	"parking-bridge-backend/config"
	"parking-bridge-backend/internal/mapping"
	"parking-bridge-backend/internal/parse"
)

// Forwarder receives routed readings. The zero sensor ID is never forwarded;
// the rate limiter guards that invariant as well, but routing already drops
// unresolvable targets.
type Forwarder interface {
	Forward(sensorID int, inches int)
}

// MappingSource yields the routing device. The serial protocol carries no
// device identity, so the bridge operates against a single device: the first
// one in listing order.
type MappingSource interface {
	Primary() (mapping.DeviceMapping, bool)
}

// LatestReadings is the last raw reading seen per logical channel, kept for
// the local diagnostics endpoint. Nil means no reading yet.
type LatestReadings struct {
	Sensor1In *int `json:"sensor1In"`
	Sensor2In *int `json:"sensor2In"`
}

// Processor routes classified serial lines to sensor IDs. Unlabeled numeric
// readings alternate between the device's two ultrasonic channels; labeled
// lines route deterministically. All mutable state is mutex-guarded because
// the serial reader and the diagnostics endpoint run on different
// goroutines.
type Processor struct {
	cfg      config.MappingConfig
	seqReset time.Duration
	mappings MappingSource
	fwd      Forwarder

	mu          sync.Mutex
	expectNext  int
	lastPlainAt time.Time
	latest      LatestReadings

	now func() time.Time
}

// NewProcessor creates a processor with the alternation cursor at channel 1.
func NewProcessor(mapCfg config.MappingConfig, ingestCfg config.IngestConfig, mappings MappingSource, fwd Forwarder) *Processor {
	return &Processor{
		cfg:        mapCfg,
		seqReset:   ingestCfg.SequenceReset,
		mappings:   mappings,
		fwd:        fwd,
		expectNext: 1,
		now:        time.Now,
	}
}

// ProcessLine classifies and routes one serial line. All failures are local:
// malformed payloads are logged and dropped, and processing continues with
// the next line.
func (p *Processor) ProcessLine(raw string) {
	line, err := parse.ParseLine(raw)
	if err != nil {
		log.Printf("serial parse error: %v", err)
		return
	}

	switch line.Kind {
	case parse.KindNumber:
		p.routeNumber(line.Override, line.Value)

	case parse.KindChannel:
		channel := line.Channel
		if line.Override != 0 {
			channel = line.Override
		}
		p.routeChannel(channel, line.Value)

	case parse.KindDual:
		p.routeChannel(1, line.Value1)
		p.routeChannel(2, line.Value2)

	case parse.KindJSON:
		for _, v := range line.Values {
			p.routeNumber(line.Override, v)
		}
	}
}

// Latest returns the last raw readings per channel.
func (p *Processor) Latest() LatestReadings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// routeChannel handles a reading that names its channel explicitly. No
// alternation state is touched.
func (p *Processor) routeChannel(channel, value int) {
	p.mu.Lock()
	target := p.channelTarget(channel)
	p.recordLatest(channel, value)
	p.mu.Unlock()

	if target != 0 {
		p.fwd.Forward(target, value)
	}
}

// routeNumber handles an unlabeled reading: an explicit S1:/S2: override
// pins the channel, otherwise the alternation protocol picks it.
func (p *Processor) routeNumber(override, value int) {
	p.mu.Lock()

	var channel, target int
	if override != 0 {
		channel = override
		target = p.channelTarget(override)
	} else {
		now := p.now()
		if now.Sub(p.lastPlainAt) > p.seqReset {
			p.expectNext = 1
		}

		channel = p.expectNext
		target = p.alternationTarget(channel)

		if p.expectNext == 1 && p.hasSecondSensor() {
			p.expectNext = 2
		} else {
			p.expectNext = 1
		}
		p.lastPlainAt = now
	}

	p.recordLatest(channel, value)
	p.mu.Unlock()

	if target != 0 {
		p.fwd.Forward(target, value)
	}
}

// channelTarget resolves an explicitly named channel to a sensor ID, with no
// cross-channel fallback.
func (p *Processor) channelTarget(channel int) int {
	if dev, ok := p.mappings.Primary(); ok {
		if channel == 1 {
			return dev.Sensor1ID
		}
		return dev.Sensor2ID
	}
	if channel == 1 {
		return p.cfg.SensorID1
	}
	return p.cfg.SensorID2
}

// alternationTarget resolves the alternation channel to a sensor ID. A
// missing second sensor falls back to the first, so single-sensor devices
// still report.
func (p *Processor) alternationTarget(channel int) int {
	if dev, ok := p.mappings.Primary(); ok {
		if channel == 2 && dev.Sensor2ID != 0 {
			return dev.Sensor2ID
		}
		return dev.Sensor1ID
	}
	if channel == 1 || p.cfg.SensorID2 == 0 {
		return p.cfg.SensorID1
	}
	return p.cfg.SensorID2
}

func (p *Processor) hasSecondSensor() bool {
	if dev, ok := p.mappings.Primary(); ok {
		return dev.Sensor2ID != 0
	}
	return p.cfg.SensorID2 != 0
}

func (p *Processor) recordLatest(channel, value int) {
	v := value
	if channel == 1 {
		p.latest.Sensor1In = &v
	} else {
		p.latest.Sensor2In = &v
	}
}
