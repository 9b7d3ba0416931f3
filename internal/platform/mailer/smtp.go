// Copyright (c) 2026 NerdHQ. All rights reserved.

package mailer

import (
	"context"
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"
)

// SMTPMailer delivers messages through a single SMTP relay. In development
// the relay is typically a local mailcatcher on port 1025.
type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
}

// NewSMTPMailer constructs an [SMTPMailer]. Username and password may be
// empty for unauthenticated relays.
func NewSMTPMailer(host, port, username, password string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, username: username, password: password}
}

// Send delivers message synchronously. The context deadline is not enforced
// by net/smtp itself, so callers should run Send from a goroutine when they
// must not block.
func (m *SMTPMailer) Send(ctx context.Context, message Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fromAddress, err := mail.ParseAddress(message.From)
	if err != nil {
		return fmt.Errorf("mailer: invalid from address: %w", err)
	}
	toAddress, err := mail.ParseAddress(message.To)
	if err != nil {
		return fmt.Errorf("mailer: invalid to address: %w", err)
	}

	var payload strings.Builder
	payload.WriteString("From: " + message.From + "\r\n")
	payload.WriteString("To: " + message.To + "\r\n")
	payload.WriteString("Subject: " + message.Subject + "\r\n")
	payload.WriteString("MIME-Version: 1.0\r\n")
	payload.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	payload.WriteString("\r\n")
	payload.WriteString(message.Body)

	var authentication smtp.Auth
	if m.username != "" {
		authentication = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	address := m.host + ":" + m.port
	if err := smtp.SendMail(address, authentication, fromAddress.Address, []string{toAddress.Address}, []byte(payload.String())); err != nil {
		return fmt.Errorf("mailer: smtp delivery failed: %w", err)
	}

	return nil
}
