// Copyright (c) 2026 NerdHQ. All rights reserved.

/*
Package mailer is the Notification Port: outbound email delivery.

From the core's perspective delivery is fire-and-forget. Implementations own
their retry/backoff policy; callers log failures and move on, so a broken
mail relay can never fail a registration.
*/
package mailer

import "context"

// Message is a plain-text outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, message Message) error
}
