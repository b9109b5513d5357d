//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
http:
  public_origin: https://shop.example.jp/
session:
  secret: 0123456789abcdef0123
auth:
  jwt_secret: jwt
database:
  url: postgres://u:p@localhost/db
redis:
  url: localhost:6379
payment:
  poll_interval: 3s
  card:
    base_url: https://vault.test
    webhook_secret: hook
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal), false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTP.PublicOrigin != "https://shop.example.jp" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.HTTP.PublicOrigin)
	}
	if cfg.Payment.PollInterval != 3*time.Second {
		t.Errorf("expected configured poll interval, got %v", cfg.Payment.PollInterval)
	}
	if cfg.Payment.PollDeadline != 10*time.Minute || cfg.Session.TTL != 30*time.Minute {
		t.Errorf("unexpected defaults: deadline=%v ttl=%v", cfg.Payment.PollDeadline, cfg.Session.TTL)
	}
	if cfg.Payment.InitiationTimeout != 20*time.Second || cfg.Payment.CommitDelay != 2*time.Second {
		t.Errorf("unexpected defaults: init=%v delay=%v", cfg.Payment.InitiationTimeout, cfg.Payment.CommitDelay)
	}
	if cfg.HTTP.ReturnPath != "/api/v1/payments/return" || cfg.Session.CookieName != "reg_sess" {
		t.Errorf("unexpected defaults: %+v %+v", cfg.HTTP, cfg.Session)
	}
}

func TestParse_Validation(t *testing.T) {
	cases := map[string]string{
		"session.secret":              strings.Replace(minimal, "0123456789abcdef0123", "short", 1),
		"database.url":                strings.Replace(minimal, "postgres://u:p@localhost/db", `""`, 1),
		"payment.card.webhook_secret": strings.Replace(minimal, "webhook_secret: hook", "webhook_secret: \"\"", 1),
	}
	for field, doc := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := Parse([]byte(doc), false)
			if err == nil || !strings.Contains(err.Error(), field) {
				t.Fatalf("expected error mentioning %s, got %v", field, err)
			}
		})
	}

	t.Run("dev mode skips the external services", func(t *testing.T) {
		doc := "http:\n  public_origin: http://localhost:8080\nsession:\n  secret: 0123456789abcdef0123\ndatabase:\n  url: postgres://localhost/dev\n"
		cfg, err := Parse([]byte(doc), true)
		if err != nil {
			t.Fatalf("expected dev config to parse, got %v", err)
		}
		if !cfg.Runtime.Dev {
			t.Error("expected dev flag to be carried")
		}
	})
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path, false); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false); err == nil {
		t.Error("expected an error for a missing file")
	}
}
