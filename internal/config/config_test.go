package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GB_ENV", "development")
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.Auth.Mechanism != "jwt" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Auth.TTL != 7*24*time.Hour || cfg.Auth.ResetTTL != 30*time.Minute {
		t.Fatalf("unexpected auth durations: %+v", cfg.Auth)
	}
	if cfg.Auth.MaxAdmins != 5 || cfg.Payment.Currency != "INR" {
		t.Fatalf("unexpected limits: %+v", cfg)
	}
	if string(cfg.JWTSecret()) == "" {
		t.Fatal("expected development secret fallback")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GB_ENV", "development")
	t.Setenv("GB_AUTH_MECHANISM", "session")
	t.Setenv("GB_PAYMENT_GATEWAY_TIMEOUT", "3s")
	t.Setenv("GB_APP_BASE_URL", "https://globalbangla.org/")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.Mechanism != "session" {
		t.Fatalf("mechanism not overridden: %q", cfg.Auth.Mechanism)
	}
	if cfg.Payment.GatewayTimeout != 3*time.Second {
		t.Fatalf("timeout not overridden: %v", cfg.Payment.GatewayTimeout)
	}
	if cfg.AppBaseURL != "https://globalbangla.org" {
		t.Fatalf("base url not trimmed: %q", cfg.AppBaseURL)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := "GB_AUTH_ADMIN_INVITE_CODE=letmein\n"
	if err := os.WriteFile(filepath.Join(dir, "config", ".env.test"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GB_ENV", "test")
	t.Cleanup(func() { _ = os.Unsetenv("GB_AUTH_ADMIN_INVITE_CODE") })

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.AdminInviteCode != "letmein" {
		t.Fatalf("dotenv value not loaded: %q", cfg.Auth.AdminInviteCode)
	}
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("GB_ENV", "development")
	t.Setenv("GB_HTTP_TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[0] != "10.0.0.0/8" || cfg.TrustedProxies[1] != "127.0.0.1" {
		t.Fatalf("unexpected proxies: %q", cfg.TrustedProxies)
	}
}

func TestLoadRejectsMalformedTrustedProxy(t *testing.T) {
	t.Setenv("GB_ENV", "development")
	t.Setenv("GB_HTTP_TRUSTED_PROXIES", "10.0.0.0/8,proxy.internal")

	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "trusted_proxies") {
		t.Fatalf("expected trusted_proxies error, got %v", err)
	}
}

func TestValidateProductionRequiresSecrets(t *testing.T) {
	t.Setenv("GB_ENV", "production")
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "auth.secret") || !strings.Contains(err.Error(), "payment.key_secret") {
		t.Fatalf("unexpected error: %v", err)
	}
}
