package enrichment

import (
	"strings"
	"testing"
)

func TestTruncateContent(t *testing.T) {
	short, dropped := truncateContent("Viktor waits.", 6000)
	if short != "Viktor waits." || dropped != 0 {
		t.Fatalf("expected content untouched, got %q (%d)", short, dropped)
	}

	long := strings.Repeat("é", 6010)
	cut, dropped := truncateContent(long, 0)
	if dropped != 10 {
		t.Fatalf("expected 10 dropped characters, got %d", dropped)
	}
	if !strings.HasSuffix(cut, "[... truncated 10 characters ...]") {
		t.Fatalf("expected truncation marker, got suffix %q", cut[len(cut)-40:])
	}
	if !strings.HasPrefix(cut, strings.Repeat("é", 6000)+"\n") {
		t.Fatal("expected the first 6000 characters to be kept")
	}
}

func TestNormalizeRelationshipType(t *testing.T) {
	cases := map[string]string{
		"Ally Of":     "ally_of",
		" member-of ": "member_of",
		"located_in":  "located_in",
		"   ":         "",
	}
	for in, want := range cases {
		if got := normalizeRelationshipType(in); got != want {
			t.Fatalf("normalizeRelationshipType(%q) = %q, want %q", in, got, want)
		}
	}
}
