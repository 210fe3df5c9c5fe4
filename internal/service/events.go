package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/MarketForge/internal/port/messagequeue"
)

// publish sends a lifecycle event if a queue is configured. Events are
// notifications only; a failed publish never fails the operation.
func publish(ctx context.Context, q messagequeue.Queue, subject string, payload any) {
	if q == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal event payload", "subject", subject, "error", err)
		return
	}
	if err := q.Publish(ctx, subject, data); err != nil {
		slog.WarnContext(ctx, "failed to publish event", "subject", subject, "error", err)
	}
}
