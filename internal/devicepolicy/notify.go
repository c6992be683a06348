package devicepolicy

import (
	"context"
	"log/slog"
)

// Notifier receives operational notifications for events that warrant
// on-call attention: a breaker trip, a canary rollback, or an emergency
// mass-unlock. A nil Notifier (or the default noopNotifier) silently drops them.
type Notifier interface {
	PostMessage(ctx context.Context, text string) error
}

type noopNotifier struct{}

func (noopNotifier) PostMessage(context.Context, string) error { return nil }

// notify is a best-effort fire-and-forget helper: notification failures are
// logged but never allowed to affect the outcome of the operation that
// triggered them.
func notify(ctx context.Context, n Notifier, logger *slog.Logger, text string) {
	if n == nil {
		return
	}
	if err := n.PostMessage(ctx, text); err != nil && logger != nil {
		logger.Warn("failed to post operational notification", "error", err)
	}
}
