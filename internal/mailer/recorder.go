// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

package mailer

import (
	"context"
	"sync"
)

// Recorder is a Mailer that captures digests instead of sending them. Used
// in tests and as the transport when no SMTP relay is configured, so a
// development instance can run the digest batch without losing the run.
type Recorder struct {
	mu   sync.Mutex
	sent []Digest

	// Err, when set, is returned by every SendDigest call.
	Err error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// SendDigest records the digest.
func (r *Recorder) SendDigest(_ context.Context, d Digest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, d)
	return nil
}

// Sent returns a copy of the recorded digests.
func (r *Recorder) Sent() []Digest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Digest, len(r.sent))
	copy(out, r.sent)
	return out
}
