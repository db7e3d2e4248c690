package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
)

func TestWriteJSONKeepsProseUnescaped(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := writeJSON(cmd, map[string]string{"snippet": "Fox & Hound <Inn>"}); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	want := "{\n  \"snippet\": \"Fox & Hound <Inn>\"\n}\n"
	if out.String() != want {
		t.Fatalf("writeJSON = %q, want %q", out.String(), want)
	}
}
