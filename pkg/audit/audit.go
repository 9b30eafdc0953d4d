package audit

import (
	"log/slog"
	"time"
)

// Record writes one structured audit line for an engine operation. Callers
// pass the relevant account identity explicitly; nothing is inferred from
// argument shapes.
func Record(logger *slog.Logger, operation, accountID string, start time.Time, err error) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("account_id", accountID),
		slog.String("duration", time.Since(start).String()),
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		logger.Error("operation failed", attrs...)
		return
	}

	logger.Info("operation completed", attrs...)
}
