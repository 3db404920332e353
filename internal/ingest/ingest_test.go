package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"parking-bridge-backend/config"
	"parking-bridge-backend/internal/mapping"
)

type sentReading struct {
	SensorID int
	Inches   int
}

// recordingForwarder captures everything routed downstream.
type recordingForwarder struct {
	sent []sentReading
}

func (r *recordingForwarder) Forward(sensorID int, inches int) {
	r.sent = append(r.sent, sentReading{SensorID: sensorID, Inches: inches})
}

// fakeMappings is a MappingSource with a fixed primary device.
type fakeMappings struct {
	dev *mapping.DeviceMapping
}

func (f *fakeMappings) Primary() (mapping.DeviceMapping, bool) {
	if f.dev == nil {
		return mapping.DeviceMapping{}, false
	}
	return *f.dev, true
}

func newTestProcessor(dev *mapping.DeviceMapping, legacy1, legacy2 int) (*Processor, *recordingForwarder, *time.Time) {
	fwd := &recordingForwarder{}
	p := NewProcessor(
		config.MappingConfig{SensorID1: legacy1, SensorID2: legacy2},
		config.IngestConfig{SequenceReset: 2 * time.Second},
		&fakeMappings{dev: dev},
		fwd,
	)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }
	return p, fwd, &clock
}

func twoSensorDevice() *mapping.DeviceMapping {
	return &mapping.DeviceMapping{ArduinoID: 1, Location: "Lot A", Sensor1ID: 7, Sensor2ID: 6}
}

func TestProcessor_AlternationRoutesBothChannels(t *testing.T) {
	p, fwd, _ := newTestProcessor(twoSensorDevice(), 0, 0)

	p.ProcessLine("25")
	p.ProcessLine("30")

	assert.Equal(t, []sentReading{{7, 25}, {6, 30}}, fwd.sent)
}

func TestProcessor_AlternationResetsAfterGap(t *testing.T) {
	p, fwd, clock := newTestProcessor(twoSensorDevice(), 0, 0)

	p.ProcessLine("25")
	*clock = clock.Add(3 * time.Second)
	p.ProcessLine("30")

	// The second reading starts a new sequence on channel 1.
	assert.Equal(t, []sentReading{{7, 25}, {7, 30}}, fwd.sent)
}

func TestProcessor_SingleSensorDeviceNeverAlternates(t *testing.T) {
	dev := &mapping.DeviceMapping{ArduinoID: 1, Sensor1ID: 7}
	p, fwd, _ := newTestProcessor(dev, 0, 0)

	p.ProcessLine("25")
	p.ProcessLine("30")
	p.ProcessLine("35")

	assert.Equal(t, []sentReading{{7, 25}, {7, 30}, {7, 35}}, fwd.sent)
}

func TestProcessor_OverrideBypassesAlternation(t *testing.T) {
	p, fwd, _ := newTestProcessor(twoSensorDevice(), 0, 0)

	// Push the cursor to channel 2, then force channel 1 by prefix.
	p.ProcessLine("25")
	p.ProcessLine("S1: 40")
	p.ProcessLine("30")

	// The override line does not consume the alternation turn.
	assert.Equal(t, []sentReading{{7, 25}, {7, 40}, {6, 30}}, fwd.sent)
}

func TestProcessor_ExplicitChannelLines(t *testing.T) {
	p, fwd, _ := newTestProcessor(twoSensorDevice(), 0, 0)

	p.ProcessLine("DISTANCE2: 14.6")
	p.ProcessLine("DISTANCE1: 9")

	assert.Equal(t, []sentReading{{6, 15}, {7, 9}}, fwd.sent)
}

func TestProcessor_DualLineForwardsBothIndependently(t *testing.T) {
	p, fwd, _ := newTestProcessor(twoSensorDevice(), 0, 0)

	// Skew the alternation cursor first; the dual line must ignore it.
	p.ProcessLine("25")
	fwd.sent = nil

	p.ProcessLine("DISTANCES: S1=12 IN, S2=34 IN")

	assert.Equal(t, []sentReading{{7, 12}, {6, 34}}, fwd.sent)
}

func TestProcessor_DualLineSkipsMissingSecondSensor(t *testing.T) {
	dev := &mapping.DeviceMapping{ArduinoID: 1, Sensor1ID: 7}
	p, fwd, _ := newTestProcessor(dev, 0, 0)

	p.ProcessLine("DISTANCES: S1=12, S2=34")

	assert.Equal(t, []sentReading{{7, 12}}, fwd.sent)
}

func TestProcessor_JSONValuesAlternate(t *testing.T) {
	p, fwd, _ := newTestProcessor(twoSensorDevice(), 0, 0)

	p.ProcessLine(`{"a": 11, "b": 22}`)

	assert.Equal(t, []sentReading{{7, 11}, {6, 22}}, fwd.sent)
}

func TestProcessor_NoiseAndGarbageAreIgnored(t *testing.T) {
	p, fwd, _ := newTestProcessor(twoSensorDevice(), 0, 0)

	p.ProcessLine("Arduino Ready")
	p.ProcessLine("Error: timeout")
	p.ProcessLine("{not json")
	p.ProcessLine("something else entirely")

	assert.Empty(t, fwd.sent)
}

func TestProcessor_LegacyFallbackWithoutMapping(t *testing.T) {
	p, fwd, _ := newTestProcessor(nil, 101, 102)

	p.ProcessLine("25")
	p.ProcessLine("30")

	assert.Equal(t, []sentReading{{101, 25}, {102, 30}}, fwd.sent)
}

func TestProcessor_LegacyFallbackWithoutSecondID(t *testing.T) {
	p, fwd, _ := newTestProcessor(nil, 101, 0)

	p.ProcessLine("25")
	p.ProcessLine("30")

	assert.Equal(t, []sentReading{{101, 25}, {101, 30}}, fwd.sent)
}

func TestProcessor_NoMappingNoLegacyDropsReading(t *testing.T) {
	p, fwd, _ := newTestProcessor(nil, 0, 0)

	p.ProcessLine("25")

	assert.Empty(t, fwd.sent)
}

func TestProcessor_LatestReadingsTrackChannels(t *testing.T) {
	p, _, _ := newTestProcessor(twoSensorDevice(), 0, 0)

	latest := p.Latest()
	assert.Nil(t, latest.Sensor1In)
	assert.Nil(t, latest.Sensor2In)

	p.ProcessLine("25")
	p.ProcessLine("30")

	latest = p.Latest()
	if assert.NotNil(t, latest.Sensor1In) {
		assert.Equal(t, 25, *latest.Sensor1In)
	}
	if assert.NotNil(t, latest.Sensor2In) {
		assert.Equal(t, 30, *latest.Sensor2In)
	}
}
