package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON prints an API response for --json. Campaign prose is left
// unescaped so snippets like "Fox & Hound <Inn>" read as written.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
