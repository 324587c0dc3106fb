// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

// Package mailer renders and sends digest emails. The digest batch only
// depends on the Mailer interface; the SMTP implementation lives in smtp.go
// and tests use the Recorder double.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"sync"
	texttemplate "text/template"
	"time"

	"github.com/bitlabs-dev/objevents/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Item is one event as rendered in a digest email.
type Item struct {
	TypeTitle string
	Text      string
	Object    model.ObjectRef
	Produced  model.ObjectRef
	CreatedAt time.Time
	TimeSince string
}

// Digest is one email for one user: the user's unsent events grouped by
// event type title. TypeOrder preserves first-seen order of the titles so
// rendering is stable.
type Digest struct {
	RecipientName  string
	RecipientEmail string
	Interval       model.Interval
	EventTypes     map[string][]Item
	TypeOrder      []string
}

// Total returns the number of events across all groups.
func (d Digest) Total() int {
	n := 0
	for _, items := range d.EventTypes {
		n += len(items)
	}
	return n
}

// Mailer hands a rendered digest to the outbound email transport.
type Mailer interface {
	SendDigest(ctx context.Context, d Digest) error
}

// templates bundles the parsed subject, HTML body and plain body templates.
type templates struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	plain   *texttemplate.Template
}

var (
	tmplOnce sync.Once
	tmpl     templates
	tmplErr  error
)

func loadTemplates() (templates, error) {
	tmplOnce.Do(func() {
		var t templates
		t.subject, tmplErr = texttemplate.ParseFS(templateFS, "templates/subject.tmpl")
		if tmplErr != nil {
			return
		}
		t.html, tmplErr = htmltemplate.ParseFS(templateFS, "templates/body_html.tmpl")
		if tmplErr != nil {
			return
		}
		t.plain, tmplErr = texttemplate.ParseFS(templateFS, "templates/body_plain.tmpl")
		if tmplErr != nil {
			return
		}
		tmpl = t
	})
	return tmpl, tmplErr
}

// Render produces the subject line, HTML body and plain-text body for a
// digest from the embedded templates.
func Render(d Digest) (subject, html, plain string, err error) {
	t, err := loadTemplates()
	if err != nil {
		return "", "", "", fmt.Errorf("loading digest templates: %w", err)
	}

	var buf bytes.Buffer
	if err := t.subject.Execute(&buf, d); err != nil {
		return "", "", "", fmt.Errorf("rendering subject: %w", err)
	}
	subject = buf.String()

	buf.Reset()
	if err := t.html.Execute(&buf, d); err != nil {
		return "", "", "", fmt.Errorf("rendering html body: %w", err)
	}
	html = buf.String()

	buf.Reset()
	if err := t.plain.Execute(&buf, d); err != nil {
		return "", "", "", fmt.Errorf("rendering plain body: %w", err)
	}
	plain = buf.String()

	return subject, html, plain, nil
}
