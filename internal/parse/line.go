package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	noiseRe    = regexp.MustCompile(`(?i)^(arduino ready|waiting for|received command|error:)`)
	overrideRe = regexp.MustCompile(`^S([12]):(.+)$`)
	numberRe   = regexp.MustCompile(`^\d+(\.\d+)?$`)
	distanceRe = regexp.MustCompile(`^DISTANCE([12]):\s*([-\d.]+)`)
	dualRe     = regexp.MustCompile(`^DISTANCES:\s*S1=([-\d.]+).*S2=([-\d.]+)`)
)

// Kind classifies a serial line into one of the wire formats the Arduino
// sketches have emitted over time.
type Kind int

const (
	// KindNoise is a status line ("Arduino Ready", "Error: timeout", ...).
	KindNoise Kind = iota
	// KindNumber is a bare distance value, routed by alternation.
	KindNumber
	// KindChannel is a DISTANCE1:/DISTANCE2: line, routed by its channel.
	KindChannel
	// KindDual is a DISTANCES: S1=..., S2=... line carrying both channels.
	KindDual
	// KindJSON is a JSON payload; each numeric value routes like KindNumber.
	KindJSON
	// KindUnknown is anything else, silently ignored.
	KindUnknown
)

// Line is one classified serial message.
type Line struct {
	Kind Kind

	// Override is 1 or 2 when the line carried an S1:/S2: channel prefix,
	// 0 otherwise. The prefix pins every reading in the line to that channel.
	Override int

	// Value is the rounded reading for KindNumber and KindChannel.
	Value int
	// Channel is the captured channel digit for KindChannel.
	Channel int

	// Value1 and Value2 are the per-channel readings for KindDual.
	Value1 int
	Value2 int

	// Values are the readings of a KindJSON payload in document order.
	Values []int
}

// ParseLine classifies one newline-delimited serial message. The shapes are
// checked in a fixed precedence: noise, channel override prefix, bare
// number, single-channel distance, dual-channel distance, JSON, unknown.
// Only a malformed JSON-looking payload returns an error.
func ParseLine(raw string) (Line, error) {
	s := strings.TrimSpace(raw)

	if noiseRe.MatchString(s) {
		return Line{Kind: KindNoise}, nil
	}

	var override int
	if m := overrideRe.FindStringSubmatch(s); m != nil {
		override = int(m[1][0] - '0')
		s = strings.TrimSpace(m[2])
	}

	if numberRe.MatchString(s) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Line{Kind: KindUnknown}, nil
		}
		return Line{Kind: KindNumber, Override: override, Value: roundInches(v)}, nil
	}

	if m := distanceRe.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return Line{Kind: KindUnknown}, nil
		}
		return Line{
			Kind:     KindChannel,
			Override: override,
			Channel:  int(m[1][0] - '0'),
			Value:    roundInches(v),
		}, nil
	}

	if m := dualRe.FindStringSubmatch(s); m != nil {
		v1, err1 := strconv.ParseFloat(m[1], 64)
		v2, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			return Line{Kind: KindUnknown}, nil
		}
		return Line{
			Kind:     KindDual,
			Override: override,
			Value1:   roundInches(v1),
			Value2:   roundInches(v2),
		}, nil
	}

	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		values, err := jsonNumbers(s)
		if err != nil {
			return Line{Kind: KindUnknown}, fmt.Errorf("malformed JSON payload: %w", err)
		}
		return Line{Kind: KindJSON, Override: override, Values: values}, nil
	}

	return Line{Kind: KindUnknown, Override: override}, nil
}

// jsonNumbers extracts every finite number from a JSON document, in document
// order, so the alternation protocol sees them in the order the device wrote
// them. Nested objects and arrays are flattened.
func jsonNumbers(s string) ([]int, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var values []int
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if num, ok := tok.(json.Number); ok {
			v, err := num.Float64()
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			values = append(values, roundInches(v))
		}
	}
	return values, nil
}

// roundInches rounds a raw distance to whole inches, the resolution the data
// store records.
func roundInches(v float64) int {
	return int(math.Round(v))
}
