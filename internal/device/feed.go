package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"BobbyCloud/internal/util"
)

// pollInterval bounds how long ReadMessages blocks before checking ctx.
const pollInterval = 250 * time.Millisecond

// ReadMessages reads newline-delimited JSON messages from dev and sends
// each one to out. Empty lines and non-JSON lines (controller boot output)
// are skipped. It returns nil when the device reaches EOF and ctx.Err()
// when ctx is cancelled.
func ReadMessages(ctx context.Context, dev Device, out chan<- []byte) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := dev.ReadLine(pollInterval)
		if errors.Is(err, ErrReadTimeout) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		msg := bytes.TrimSpace([]byte(line))
		if len(msg) == 0 {
			continue
		}
		if !json.Valid(msg) {
			util.Debug("[device] skipping non-json line: %q", truncate(line, 80))
			continue
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
