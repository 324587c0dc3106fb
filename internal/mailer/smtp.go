// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

package mailer

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// SMTPOptions configures the SMTP mailer.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends digests through an SMTP relay.
type SMTPMailer struct {
	client *mail.Client
	from   string
}

// NewSMTPMailer creates an SMTP mailer. Credentials are optional; without
// them the client connects unauthenticated (local relay setups).
func NewSMTPMailer(opts SMTPOptions) (*SMTPMailer, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}

	clientOpts := []mail.Option{
		mail.WithPort(opts.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if opts.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(opts.Username),
			mail.WithPassword(opts.Password),
		)
	}

	client, err := mail.NewClient(opts.Host, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}

	return &SMTPMailer{client: client, from: opts.From}, nil
}

// SendDigest renders the digest and hands it to the SMTP transport.
func (m *SMTPMailer) SendDigest(ctx context.Context, d Digest) error {
	subject, html, plain, err := Render(d)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("setting from address: %w", err)
	}
	if err := msg.To(d.RecipientEmail); err != nil {
		return fmt.Errorf("setting recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, plain)
	msg.AddAlternativeString(mail.TypeTextHTML, html)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending digest to %s: %w", d.RecipientEmail, err)
	}
	return nil
}
