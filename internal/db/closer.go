package db

import (
	"io"

	"go.uber.org/zap"
)

// CloseResult distinguishes a clean close from giving up.
type CloseResult struct {
	Closed   bool
	Attempts int
	LastErr  error
}

// CloseWithRetry calls c.Close up to attempts times, stopping at the first
// success. Failures are logged at warn level and never returned as errors.
func CloseWithRetry(c io.Closer, attempts int, logger *zap.Logger) CloseResult {
	attempts = max(attempts, 1)

	var lastErr error
	for i := 1; i <= attempts; i++ {
		err := c.Close()
		if err == nil {
			return CloseResult{Closed: true, Attempts: i}
		}
		lastErr = err
		logger.Warn("failed to close recipient store, retrying",
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
	}

	logger.Warn("giving up closing recipient store; proceeding anyway",
		zap.Int("attempts", attempts), zap.Error(lastErr))
	return CloseResult{Attempts: attempts, LastErr: lastErr}
}
