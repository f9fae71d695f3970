package parser

import (
	"encoding/json"

	"BobbyCloud/internal/model"
)

// MarshalRecord encodes rec in the positional controller wire format.
// Absent optional values are written as null.
func MarshalRecord(rec model.TelemetryRecord) ([]byte, error) {
	return json.Marshal(positional(rec))
}

// MarshalBatch encodes records as a batch message.
func MarshalBatch(recs []model.TelemetryRecord) ([]byte, error) {
	batch := make([][]any, 0, len(recs))
	for _, r := range recs {
		batch = append(batch, positional(r))
	}
	return json.Marshal(batch)
}

func positional(rec model.TelemetryRecord) []any {
	out := make([]any, len(recordLayout))
	out[slotUptime] = rec.UptimeMs
	out[slotUTC] = rec.UtcMs
	out[slotFreeMemory8] = rec.FreeMemory8
	out[slotRSSI] = optional(rec.RSSI)
	out[slotGasRaw] = optional(rec.GasRaw)
	out[slotBrakeRaw] = optional(rec.BrakeRaw)
	out[slotGasProcessed] = optional(rec.GasProcessed)
	out[slotBrakeProcessed] = optional(rec.BrakeProcessed)
	out[slotFront] = controllerArray(rec.Front)
	out[slotBack] = controllerArray(rec.Back)
	return out
}

func optional[T int64 | float64](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func controllerArray(c *model.ControllerReading) any {
	if c == nil {
		return nil
	}
	return []any{c.Voltage, c.Temperature, motorArray(c.Left), motorArray(c.Right)}
}

func motorArray(m model.MotorReading) []any {
	return []any{m.TargetInput, m.Speed, m.Current, m.ErrorCode}
}
