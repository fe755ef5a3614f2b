package invoice

import (
	"regexp"
	"testing"
	"time"
)

func TestNextFormat(t *testing.T) {
	g := NewGenerator("inv")
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	got := g.Next(at)

	want := regexp.MustCompile(`^INV-202603140926-[A-Z0-9]{4}$`)
	if !want.MatchString(got) {
		t.Fatalf("invoice number %q does not match %s", got, want)
	}
}

func TestNextDefaultsPrefix(t *testing.T) {
	g := NewGenerator("  ")
	if g.Prefix() != "INV" {
		t.Fatalf("prefix = %q, want INV", g.Prefix())
	}
}

func TestNextVariesSuffix(t *testing.T) {
	g := NewGenerator("PUR")
	at := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		seen[g.Next(at)] = true
	}
	// 50 draws from 36^4 possibilities colliding down to one value would mean
	// the suffix is not random at all.
	if len(seen) < 2 {
		t.Fatalf("expected varying suffixes, got %d distinct of 50", len(seen))
	}
}
