// Package detector scans free text for references to known campaign entities.
//
// Detect is a pure function over its inputs: it never touches storage and is
// safe to call from multiple goroutines. Offsets in the returned detections
// are rune offsets into the original content, half-open [Start, End).
//
// Explicit wiki link markup ([[Target]] or [[Target|Label]]) is resolved
// first and masked out; the remaining text is scanned with token windows for
// exact, near-exact, and misspelled mentions of entity names and aliases.
package detector
