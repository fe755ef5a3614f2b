package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("port = %q, want 8080", cfg.Port)
	}
	if cfg.InvoicePrefix != "INV" || cfg.PurchasePrefix != "PUR" {
		t.Fatalf("prefixes = %q/%q, want INV/PUR", cfg.InvoicePrefix, cfg.PurchasePrefix)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("token ttl = %d, want 480", cfg.AccessTokenTTLMinutes)
	}
	if cfg.ReportCacheTTLSeconds != 30 {
		t.Fatalf("report cache ttl = %d, want 30", cfg.ReportCacheTTLSeconds)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("address = %q, want :8080", cfg.Address())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("INVOICE_PREFIX", "BILL")
	t.Setenv("AUTH_SECRET", "  s3cret  ")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Fatalf("port = %q, want 9090", cfg.Port)
	}
	if cfg.InvoicePrefix != "BILL" {
		t.Fatalf("invoice prefix = %q, want BILL", cfg.InvoicePrefix)
	}
	if cfg.AuthSecret != "s3cret" {
		t.Fatalf("auth secret = %q, want trimmed s3cret", cfg.AuthSecret)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("token ttl = %d, want fallback 480", cfg.AccessTokenTTLMinutes)
	}
}
