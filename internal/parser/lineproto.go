package parser

import (
	"strconv"
	"strings"

	"BobbyCloud/internal/model"
)

// LineProtocolEncoder renders telemetry records as InfluxDB line protocol.
//
// Tag and field order is fixed per measurement; downstream dashboards
// match lines positionally.
type LineProtocolEncoder struct{}

// NewLineProtocolEncoder creates a new line protocol encoder.
func NewLineProtocolEncoder() *LineProtocolEncoder { return &LineProtocolEncoder{} }

// Encode renders rec as newline-terminated lines tagged with host=clientID.
// Every line carries the record's UTC timestamp in milliseconds.
func (e *LineProtocolEncoder) Encode(rec model.TelemetryRecord, clientID string) string {
	var sb strings.Builder
	e.AppendRecord(&sb, rec, clientID)
	return sb.String()
}

// AppendRecord writes the lines for rec to sb.
func (e *LineProtocolEncoder) AppendRecord(sb *strings.Builder, rec model.TelemetryRecord, clientID string) {
	host := escapeTag(clientID)
	w := lineWriter{sb: sb, ts: strconv.FormatInt(rec.UtcMs, 10)}

	w.begin("system", "host", host)
	w.intField("uptime", rec.UptimeMs)
	w.intField("freememory8", rec.FreeMemory8)
	if rec.RSSI != nil {
		w.intField("rssi", *rec.RSSI)
	}
	w.end()

	if rec.GasRaw != nil || rec.BrakeRaw != nil {
		w.begin("inputs", "host", host, "type", "potis", "kind", "raw")
		if rec.GasRaw != nil {
			w.intField("gas", *rec.GasRaw)
		}
		if rec.BrakeRaw != nil {
			w.intField("brems", *rec.BrakeRaw)
		}
		w.end()
	}

	if rec.GasProcessed != nil || rec.BrakeProcessed != nil {
		w.begin("inputs", "host", host, "type", "potis", "kind", "processed")
		if rec.GasProcessed != nil {
			w.floatField("gas", *rec.GasProcessed)
		}
		if rec.BrakeProcessed != nil {
			w.floatField("brems", *rec.BrakeProcessed)
		}
		w.end()
	}

	if rec.Front != nil {
		w.controller(host, "front", rec.Front)
	}
	if rec.Back != nil {
		w.controller(host, "back", rec.Back)
	}
}

// lineWriter emits one line at a time: begin, fields, end.
type lineWriter struct {
	sb     *strings.Builder
	ts     string
	fields int
}

// begin starts a line with its measurement and tag pairs (key, value, ...).
func (w *lineWriter) begin(measurement string, tags ...string) {
	w.sb.WriteString(measurement)
	for i := 0; i+1 < len(tags); i += 2 {
		w.sb.WriteByte(',')
		w.sb.WriteString(tags[i])
		w.sb.WriteByte('=')
		w.sb.WriteString(tags[i+1])
	}
	w.fields = 0
}

func (w *lineWriter) field(key, value string) {
	if w.fields == 0 {
		w.sb.WriteByte(' ')
	} else {
		w.sb.WriteByte(',')
	}
	w.sb.WriteString(key)
	w.sb.WriteByte('=')
	w.sb.WriteString(value)
	w.fields++
}

func (w *lineWriter) intField(key string, v int64) { w.field(key, strconv.FormatInt(v, 10)) }

func (w *lineWriter) floatField(key string, v float64) { w.field(key, formatFloat(v)) }

func (w *lineWriter) end() {
	w.sb.WriteByte(' ')
	w.sb.WriteString(w.ts)
	w.sb.WriteByte('\n')
}

func (w *lineWriter) controller(host, board string, c *model.ControllerReading) {
	w.begin("measure", "host", host, "board", board)
	w.floatField("voltage", c.Voltage)
	w.floatField("temperature", c.Temperature)
	w.end()

	w.motor(host, board, "left", c.Left)
	w.motor(host, board, "right", c.Right)
}

func (w *lineWriter) motor(host, board, side string, m model.MotorReading) {
	w.begin("command", "host", host, "board", board, "side", side)
	w.intField("inputTgt", m.TargetInput)
	w.end()

	w.begin("measure", "host", host, "board", board, "side", side)
	w.floatField("speed", m.Speed)
	w.floatField("current", m.Current)
	w.intField("error", m.ErrorCode)
	w.end()
}

// formatFloat uses the shortest representation that round-trips.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var tagEscaper = strings.NewReplacer(",", `\,`, " ", `\ `, "=", `\=`)

func escapeTag(s string) string { return tagEscaper.Replace(s) }
