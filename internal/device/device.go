// Package device defines a line-oriented link to a vehicle controller,
// such as an ESP32 attached over USB serial, and readers on top of it.
package device

import "time"

// Device reads and writes newline-terminated lines.
type Device interface {
	// ReadLine reads a single line terminated by '\n', without the terminator.
	// If timeout > 0, it must return ErrReadTimeout after timeout even if no data is available.
	ReadLine(timeout time.Duration) (string, error)

	// WriteLine writes s followed by '\n' to the device.
	WriteLine(s string) error

	// Close closes the device and releases underlying resources.
	Close() error
}
