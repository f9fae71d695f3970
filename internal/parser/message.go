// Package parser converts controller JSON messages into telemetry records
// and telemetry records into InfluxDB line protocol.
//
// Controller wire format (vehicle -> bridge), one websocket text message:
//
//	[uptime, utc, freememory8, rssi, gasRaw, bremsRaw, gas, brems, front, back]
//
// or a batch of such arrays. front/back are
//
//	[voltage, temperature, [inputTgt, speed, current, error], [inputTgt, speed, current, error]]
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Shape selects how the top-level array of a message is interpreted.
type Shape int

const (
	// ShapeAuto treats the message as a batch when its first element is an array.
	ShapeAuto Shape = iota
	// ShapeFlat treats the whole message as a single record.
	ShapeFlat
	// ShapeBatch treats every element of the message as a record.
	ShapeBatch
)

// ParseShape maps a config value to a Shape. The empty string selects ShapeAuto.
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ShapeAuto, nil
	case "flat":
		return ShapeFlat, nil
	case "batch":
		return ShapeBatch, nil
	}
	return ShapeAuto, fmt.Errorf("unknown message shape %q", s)
}

func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeBatch:
		return "batch"
	}
	return "auto"
}

// SplitMessage parses one inbound message and returns its records as raw
// JSON values. Invalid JSON and non-array payloads yield a *ParseError.
func SplitMessage(msg []byte, shape Shape) ([]json.RawMessage, error) {
	msg = bytes.TrimSpace(msg)
	if !json.Valid(msg) {
		var v any
		err := json.Unmarshal(msg, &v)
		if err == nil {
			err = errors.New("invalid json")
		}
		return nil, &ParseError{Err: fmt.Errorf("could not parse json: %w", err)}
	}
	if msg[0] != '[' {
		return nil, &ParseError{Err: ErrNotArray}
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(msg, &elems); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("could not parse json: %w", err)}
	}

	switch shape {
	case ShapeFlat:
		return []json.RawMessage{json.RawMessage(msg)}, nil
	case ShapeBatch:
		return elems, nil
	}
	if len(elems) > 0 && !isArray(elems[0]) {
		return []json.RawMessage{json.RawMessage(msg)}, nil
	}
	return elems, nil
}

func isArray(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '['
}

func isNull(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

// splitArray returns the elements of a JSON array value.
func splitArray(v json.RawMessage) ([]json.RawMessage, bool) {
	if !isArray(v) {
		return nil, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(v, &elems); err != nil {
		return nil, false
	}
	return elems, true
}

// elementAt returns the i-th element, or nil when the array is too short.
func elementAt(elems []json.RawMessage, i int) json.RawMessage {
	if i < 0 || i >= len(elems) {
		return nil
	}
	return elems[i]
}
