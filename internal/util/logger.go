// Package util provides helper functions for logging events
package util

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Log levels in increasing severity.
const (
	LevelDebug int32 = iota
	LevelInfo
	LevelWarn
	LevelError
)

var minLevel atomic.Int32

func init() { minLevel.Store(LevelInfo) }

// ParseLevel maps a config value (debug, info, warn, error) to a level.
func ParseLevel(s string) (int32, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// SetupLogger configures the standard logger for the bridge.
// Timestamps are written by the helpers below, so log flags are cleared.
func SetupLogger(level string) error {
	log.SetOutput(os.Stderr)
	log.SetFlags(0)
	lvl, err := ParseLevel(level)
	minLevel.Store(lvl)
	return err
}

// SetLevel changes the minimum level printed.
func SetLevel(lvl int32) { minLevel.Store(lvl) }

func logf(lvl int32, tag, msg string, args ...any) {
	if lvl < minLevel.Load() {
		return
	}
	log.Printf("[%s] %s | %s", tag, time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}

// Debug prints verbose per-message details.
func Debug(msg string, args ...any) { logf(LevelDebug, "DEBUG", msg, args...) }

// Info prints general system information messages with timestamp.
func Info(msg string, args ...any) { logf(LevelInfo, "INFO", msg, args...) }

// Warn prints recoverable problems (dropped messages, failed writes).
func Warn(msg string, args ...any) { logf(LevelWarn, "WARN", msg, args...) }

// Error prints error messages with timestamp.
func Error(msg string, args ...any) { logf(LevelError, "ERROR", msg, args...) }
