package parser

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"BobbyCloud/internal/model"
)

type slotKind int

const (
	kindInt slotKind = iota
	kindFloat
	kindController
	kindMotor
)

// slot describes one position of a positional array.
type slot struct {
	Index    int
	Name     string
	Kind     slotKind
	Required bool
}

// Record slot indices.
const (
	slotUptime = iota
	slotUTC
	slotFreeMemory8
	slotRSSI
	slotGasRaw
	slotBrakeRaw
	slotGasProcessed
	slotBrakeProcessed
	slotFront
	slotBack
)

// recordLayout is the wire contract of a controller record. Required slots
// come first so that the first missing one decides the reported field.
var recordLayout = []slot{
	{slotUptime, "uptime", kindInt, true},
	{slotUTC, "utc", kindInt, true},
	{slotFreeMemory8, "freememory8", kindInt, true},
	{slotRSSI, "rssi", kindInt, false},
	{slotGasRaw, "gas_raw", kindInt, false},
	{slotBrakeRaw, "brems_raw", kindInt, false},
	{slotGasProcessed, "gas_processed", kindFloat, false},
	{slotBrakeProcessed, "brems_processed", kindFloat, false},
	{slotFront, "front", kindController, false},
	{slotBack, "back", kindController, false},
}

// Controller slot indices.
const (
	ctrlVoltage = iota
	ctrlTemperature
	ctrlLeft
	ctrlRight
)

var controllerLayout = []slot{
	{ctrlVoltage, "voltage", kindFloat, true},
	{ctrlTemperature, "temperature", kindFloat, true},
	{ctrlLeft, "left", kindMotor, true},
	{ctrlRight, "right", kindMotor, true},
}

// Motor slot indices.
const (
	motorTargetInput = iota
	motorSpeed
	motorCurrent
	motorErrorCode
)

var motorLayout = []slot{
	{motorTargetInput, "inputTgt", kindInt, true},
	{motorSpeed, "speed", kindFloat, true},
	{motorCurrent, "current", kindFloat, true},
	{motorErrorCode, "error", kindInt, true},
}

// RecordDecoder turns one positional JSON array into a TelemetryRecord.
//
// In strict mode any malformed slot fails the record. Otherwise only a
// malformed required slot fails it; malformed optional slots are dropped
// and reported alongside the record.
type RecordDecoder struct {
	Strict bool
}

// NewRecordDecoder creates a decoder.
func NewRecordDecoder(strict bool) *RecordDecoder { return &RecordDecoder{Strict: strict} }

// Decode decodes the record at position index of its batch.
// The returned slice lists optional slots that were dropped (lenient mode only).
func (d *RecordDecoder) Decode(raw json.RawMessage, index int) (model.TelemetryRecord, []*RecordError, error) {
	elems, ok := splitArray(raw)
	if !ok {
		return model.TelemetryRecord{}, nil, &RecordError{Index: index, Reason: reasonNotArray}
	}

	var rec model.TelemetryRecord
	var dropped []*RecordError
	for _, s := range recordLayout {
		v := elementAt(elems, s.Index)
		if isNull(v) {
			if s.Required {
				return model.TelemetryRecord{}, nil, &RecordError{Index: index, Field: s.Name, Reason: reasonMissing}
			}
			continue
		}
		if ferr := assignRecordSlot(&rec, s, v); ferr != nil {
			if d.Strict || s.Required {
				return model.TelemetryRecord{}, nil, ferr.at(index)
			}
			dropped = append(dropped, ferr.at(index))
		}
	}
	return rec, dropped, nil
}

func assignRecordSlot(rec *model.TelemetryRecord, s slot, v json.RawMessage) *fieldError {
	switch s.Kind {
	case kindInt:
		n, ok := decodeInt(v)
		if !ok {
			return &fieldError{field: s.Name, reason: reasonNotNumber}
		}
		switch s.Index {
		case slotUptime:
			rec.UptimeMs = n
		case slotUTC:
			rec.UtcMs = n
		case slotFreeMemory8:
			rec.FreeMemory8 = n
		case slotRSSI:
			rec.RSSI = &n
		case slotGasRaw:
			rec.GasRaw = &n
		case slotBrakeRaw:
			rec.BrakeRaw = &n
		}
	case kindFloat:
		f, ok := decodeFloat(v)
		if !ok {
			return &fieldError{field: s.Name, reason: reasonNotNumber}
		}
		switch s.Index {
		case slotGasProcessed:
			rec.GasProcessed = &f
		case slotBrakeProcessed:
			rec.BrakeProcessed = &f
		}
	case kindController:
		c, ferr := decodeController(v)
		if ferr != nil {
			return ferr.within(s.Name)
		}
		switch s.Index {
		case slotFront:
			rec.Front = &c
		case slotBack:
			rec.Back = &c
		}
	}
	return nil
}

func decodeController(v json.RawMessage) (model.ControllerReading, *fieldError) {
	var c model.ControllerReading
	elems, ok := splitArray(v)
	if !ok {
		return c, &fieldError{reason: reasonNotArray}
	}
	if len(elems) != len(controllerLayout) {
		return c, &fieldError{reason: reasonLength(len(elems), len(controllerLayout))}
	}
	for _, s := range controllerLayout {
		e := elems[s.Index]
		if isNull(e) {
			return c, &fieldError{field: s.Name, reason: reasonMissing}
		}
		switch s.Kind {
		case kindFloat:
			f, ok := decodeFloat(e)
			if !ok {
				return c, &fieldError{field: s.Name, reason: reasonNotNumber}
			}
			if s.Index == ctrlVoltage {
				c.Voltage = f
			} else {
				c.Temperature = f
			}
		case kindMotor:
			m, ferr := decodeMotor(e)
			if ferr != nil {
				return c, ferr.within(s.Name)
			}
			if s.Index == ctrlLeft {
				c.Left = m
			} else {
				c.Right = m
			}
		}
	}
	return c, nil
}

func decodeMotor(v json.RawMessage) (model.MotorReading, *fieldError) {
	var m model.MotorReading
	elems, ok := splitArray(v)
	if !ok {
		return m, &fieldError{reason: reasonNotArray}
	}
	if len(elems) != len(motorLayout) {
		return m, &fieldError{reason: reasonLength(len(elems), len(motorLayout))}
	}
	for _, s := range motorLayout {
		e := elems[s.Index]
		if isNull(e) {
			return m, &fieldError{field: s.Name, reason: reasonMissing}
		}
		var ok bool
		switch s.Index {
		case motorTargetInput:
			m.TargetInput, ok = decodeInt(e)
		case motorSpeed:
			m.Speed, ok = decodeFloat(e)
		case motorCurrent:
			m.Current, ok = decodeFloat(e)
		case motorErrorCode:
			m.ErrorCode, ok = decodeInt(e)
		}
		if !ok {
			return m, &fieldError{field: s.Name, reason: reasonNotNumber}
		}
	}
	return m, nil
}

// isNumber reports whether v is a JSON number literal.
func isNumber(v []byte) bool {
	return len(v) > 0 && (v[0] == '-' || (v[0] >= '0' && v[0] <= '9'))
}

// decodeInt reads an integer slot. Numbers with a fraction or exponent are
// truncated toward zero.
func decodeInt(v json.RawMessage) (int64, bool) {
	v = bytes.TrimSpace(v)
	if !isNumber(v) {
		return 0, false
	}
	if n, err := strconv.ParseInt(string(v), 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(string(v), 64)
	if err != nil || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func decodeFloat(v json.RawMessage) (float64, bool) {
	v = bytes.TrimSpace(v)
	if !isNumber(v) {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
