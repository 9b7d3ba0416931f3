// Copyright (c) 2026 NerdHQ. All rights reserved.

package mailer

import (
	"context"
	"log/slog"
)

// LogMailer writes messages to the structured log instead of delivering
// them. Used when no SMTP host is configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer constructs a [LogMailer].
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the message and succeeds unconditionally.
func (m *LogMailer) Send(ctx context.Context, message Message) error {
	m.logger.InfoContext(ctx, "email_logged_instead_of_sent",
		slog.String("from", message.From),
		slog.String("to", message.To),
		slog.String("subject", message.Subject),
		slog.String("body", message.Body),
	)
	return nil
}
