package device

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	serial "go.bug.st/serial"
)

// ErrReadTimeout is returned by ReadLine when no line arrived in time.
var ErrReadTimeout = errors.New("read timeout")

// maxLineSize bounds one controller message; batches of records are long.
const maxLineSize = 1 << 20

type lineResult struct {
	line string
	err  error
}

// StreamDevice implements Device over any byte stream. A single reader
// goroutine splits the stream into lines so that a timed out ReadLine
// never loses data.
type StreamDevice struct {
	rwc   io.ReadWriteCloser
	lines chan lineResult

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewStreamDevice wraps rwc and starts reading lines from it.
func NewStreamDevice(rwc io.ReadWriteCloser) *StreamDevice {
	d := &StreamDevice{rwc: rwc, lines: make(chan lineResult, 16)}
	go d.readLoop()
	return d
}

// NewSerialDevice opens a serial port (e.g. /dev/ttyUSB0) at baud, 8N1.
func NewSerialDevice(dev string, baud int) (*StreamDevice, error) {
	p, err := serial.Open(dev, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial %s: %w", dev, err)
	}
	return NewStreamDevice(p), nil
}

func (d *StreamDevice) readLoop() {
	defer close(d.lines)
	sc := bufio.NewScanner(d.rwc)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		d.lines <- lineResult{line: strings.TrimRight(sc.Text(), "\r")}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	d.lines <- lineResult{err: err}
}

// ReadLine returns the next line. After the stream ends every call returns
// the terminating error (io.EOF for a clean end).
func (d *StreamDevice) ReadLine(timeout time.Duration) (string, error) {
	if timeout <= 0 {
		res, ok := <-d.lines
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	}
	select {
	case res, ok := <-d.lines:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	case <-time.After(timeout):
		return "", ErrReadTimeout
	}
}

// WriteLine writes a single line followed by '\n'.
func (d *StreamDevice) WriteLine(line string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_, err := d.rwc.Write(append([]byte(line), '\n'))
	return err
}

// Close closes the underlying stream; pending reads return an error.
func (d *StreamDevice) Close() error {
	d.closeOnce.Do(func() { d.closeErr = d.rwc.Close() })
	return d.closeErr
}
