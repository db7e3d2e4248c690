package detector

import "strings"

const ellipsis = "…"

// snippet returns up to radius runes of context either side of [start, end)
// with whitespace collapsed. An ellipsis marks each edge that was cut.
func snippet(text []rune, start, end, radius int) string {
	from := max(start-radius, 0)
	to := min(end+radius, len(text))
	body := strings.Join(strings.Fields(string(text[from:to])), " ")
	if from > 0 {
		body = ellipsis + body
	}
	if to < len(text) {
		body += ellipsis
	}
	return body
}
