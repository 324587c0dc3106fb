// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerAddr() != "localhost:8080" {
		t.Errorf("ServerAddr() = %q", cfg.ServerAddr())
	}
	if !cfg.IsDevelopment() {
		t.Error("default env should be development")
	}
	if cfg.FeedPerPage != 30 {
		t.Errorf("FeedPerPage = %d, want 30", cfg.FeedPerPage)
	}
	if cfg.UseRedisCache() {
		t.Error("redis should be off by default")
	}
	if cfg.SMTPEnabled() {
		t.Error("SMTP should be off by default")
	}
	if cfg.DigestCronDaily == "" {
		t.Error("daily digest cron should have a default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OBJEVENTS_SERVER_PORT", "9999")
	t.Setenv("OBJEVENTS_ENV", "production")
	t.Setenv("OBJEVENTS_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("OBJEVENTS_SMTP_HOST", "smtp.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != 9999 {
		t.Errorf("ServerPort = %d, want 9999", cfg.ServerPort)
	}
	if cfg.IsDevelopment() {
		t.Error("production env should not be development")
	}
	if !cfg.UseRedisCache() {
		t.Error("UseRedisCache() should be true with a redis url")
	}
	if !cfg.SMTPEnabled() {
		t.Error("SMTPEnabled() should be true with a host")
	}
}

func TestLoadRejectsBadPerPage(t *testing.T) {
	t.Setenv("OBJEVENTS_FEED_PER_PAGE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-positive per-page")
	}
}

func TestValidateServer(t *testing.T) {
	cfg := Config{SessionSecret: "short"}
	err := cfg.ValidateServer()
	if err == nil {
		t.Fatal("expected error for short session secret")
	}
	if !strings.Contains(err.Error(), "OBJEVENTS_SESSION_SECRET") {
		t.Errorf("error %q should name the variable", err)
	}

	cfg.SessionSecret = strings.Repeat("s", MinSessionSecretLength)
	if err := cfg.ValidateServer(); err != nil {
		t.Errorf("ValidateServer: %v", err)
	}
}
