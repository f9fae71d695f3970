package model

// TelemetryRecord is one positional record sent by a vehicle controller.
// Optional values are nil when the slot was null or absent.
type TelemetryRecord struct {
	UptimeMs    int64
	UtcMs       int64
	FreeMemory8 int64
	RSSI        *int64

	GasRaw   *int64
	BrakeRaw *int64

	GasProcessed   *float64
	BrakeProcessed *float64

	Front *ControllerReading
	Back  *ControllerReading
}

// ControllerReading is the state of one motor controller board.
type ControllerReading struct {
	Voltage     float64
	Temperature float64
	Left        MotorReading
	Right       MotorReading
}

// MotorReading is the state of one motor attached to a board.
type MotorReading struct {
	TargetInput int64
	Speed       float64
	Current     float64
	ErrorCode   int64
}
