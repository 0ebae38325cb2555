// Package trace defines the log levels and the log lines shared by the
// searchers.
package trace

import (
	"context"
	"fmt"
	"log/slog"
)

// LevelTrace sits above Info so that epoch progress is kept by handlers that
// drop Info-level chatter.
const LevelTrace slog.Level = slog.LevelInfo + 1

// Trace logs msg at LevelTrace on the default logger.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// Or returns l, or the default logger if l is nil.
func Or(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}

	return l
}

// Epoch logs an improvement of the best reward in the form
// "Epoch <n>: new best reward: <r> (<1/r>)".
func Epoch(l *slog.Logger, epoch int, reward float64) {
	inv := 0.0
	if reward != 0 {
		inv = 1 / reward
	}

	Or(l).Log(context.Background(), LevelTrace,
		EpochLine(epoch, reward, inv),
		"epoch", epoch, "reward", reward)
}

// EpochLine formats the epoch message.
func EpochLine(epoch int, reward, inverse float64) string {
	return fmt.Sprintf("Epoch %d: new best reward: %g (%g)", epoch, reward, inverse)
}
