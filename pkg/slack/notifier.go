package slack

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier posts operational notifications to a single Slack channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Slack Notifier. If botToken or channel is empty, the
// notifier is disabled and PostMessage becomes a no-op.
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// IsEnabled returns true if the notifier has a valid Slack client and channel.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// PostMessage sends a plain-text message to the configured channel. It is a
// no-op, logged at debug level, when the notifier is disabled.
func (n *Notifier) PostMessage(ctx context.Context, text string) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping message", "text", text)
		return nil
	}

	_, ts, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting message to slack: %w", err)
	}

	n.logger.Info("posted message to slack", "channel", n.channel, "ts", ts)
	return nil
}
