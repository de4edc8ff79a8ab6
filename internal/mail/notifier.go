// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package mail delivers account notifications over SMTP.
package mail

import (
	"context"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"

	"github.com/keygate/keygate/internal/account"
)

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier implements account.Notifier over SMTP.
type SMTPNotifier struct {
	client *gomail.Client
	from   string
}

// NewSMTPNotifier creates an SMTPNotifier. The connection is
// established per send, not here.
func NewSMTPNotifier(cfg Config) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("from address is required")
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").
			With("host", cfg.Host).
			Wrap(err)
	}

	return &SMTPNotifier{client: client, from: cfg.From}, nil
}

// Send delivers one message. The html body is optional; when empty the
// message goes out as plain text only.
func (n *SMTPNotifier) Send(ctx context.Context, to, subject, text, html string) error {
	msg := gomail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return oops.Code("NOTIFY_DELIVERY_FAILED").
			With("operation", "set from address").
			Wrap(err)
	}
	if err := msg.To(to); err != nil {
		return oops.Code("NOTIFY_DELIVERY_FAILED").
			With("operation", "set to address").
			Wrap(err)
	}

	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, text)
	if html != "" {
		msg.AddAlternativeString(gomail.TypeTextHTML, html)
	}

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return oops.Code("NOTIFY_DELIVERY_FAILED").
			With("operation", "smtp send").
			With("to", to).
			Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ account.Notifier = (*SMTPNotifier)(nil)
