package detector

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// minFuzzyNameLength is the shortest normalized name eligible for non-exact
// matching.
const minFuzzyNameLength = 4

var wikiLinkPattern = regexp.MustCompile(`\[\[([^\[\]|]+)(?:\|([^\[\]]*))?\]\]`)

// Detector scans content with a fixed set of thresholds.
type Detector struct {
	opts Options
}

// New constructs a Detector. Zero or out-of-range options fall back to
// DefaultOptions.
func New(opts Options) *Detector {
	return &Detector{opts: opts.withDefaults()}
}

// Options returns the effective thresholds.
func (d *Detector) Options() Options {
	return d.opts
}

// Detect is shorthand for New(opts).Detect.
func Detect(content string, known []KnownEntity, excludeIDs []int64, opts Options) []Detection {
	return New(opts).Detect(content, known, excludeIDs)
}

// Detect returns detections ordered by ascending Start, ties broken by type
// priority. Entities listed in excludeIDs are skipped during fuzzy scanning
// but still resolve explicit wiki links.
func (d *Detector) Detect(content string, known []KnownEntity, excludeIDs []int64) []Detection {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	text := []rune(content)
	index := buildNameIndex(known, excludeIDs)

	candidates, masked := d.scanWikiLinks(content, text, index)
	tokens := tokenize(masked)
	for _, name := range index.names {
		if name.excluded {
			continue
		}
		candidates = append(candidates, d.scanName(text, tokens, name)...)
	}

	claimed := claimSpans(candidates)
	for i := range claimed {
		claimed[i].Snippet = snippet(text, claimed[i].Start, claimed[i].End, d.opts.SnippetRadius)
	}
	return claimed
}

type indexedName struct {
	entityID int64
	norm     string
	tokens   []string
	length   int
	excluded bool
}

type nameIndex struct {
	names []indexedName
	exact map[string]int64
}

func buildNameIndex(known []KnownEntity, excludeIDs []int64) nameIndex {
	excluded := make(map[int64]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}
	index := nameIndex{exact: make(map[string]int64)}
	type nameKey struct {
		id   int64
		norm string
	}
	seen := make(map[nameKey]struct{})
	for _, entity := range known {
		_, skip := excluded[entity.ID]
		labels := append([]string{entity.Name}, entity.Aliases...)
		for _, label := range labels {
			tokens := normalizedTokens(label)
			if len(tokens) == 0 {
				continue
			}
			normalized := strings.Join(tokens, " ")
			if _, ok := index.exact[normalized]; !ok {
				index.exact[normalized] = entity.ID
			}
			key := nameKey{id: entity.ID, norm: normalized}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			index.names = append(index.names, indexedName{
				entityID: entity.ID,
				norm:     normalized,
				tokens:   tokens,
				length:   utf8.RuneCountInString(normalized),
				excluded: skip,
			})
		}
	}
	return index
}

// scanWikiLinks emits a detection per link and returns a copy of the text
// with every link replaced by spaces.
func (d *Detector) scanWikiLinks(content string, text []rune, index nameIndex) ([]Detection, []rune) {
	masked := make([]rune, len(text))
	copy(masked, text)

	matches := wikiLinkPattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return nil, masked
	}
	var out []Detection
	runePos, bytePos := 0, 0
	toRune := func(offset int) int {
		runePos += utf8.RuneCountInString(content[bytePos:offset])
		bytePos = offset
		return runePos
	}
	for _, m := range matches {
		start := toRune(m[0])
		end := toRune(m[1])
		for i := start; i < end; i++ {
			masked[i] = ' '
		}
		target := strings.TrimSpace(content[m[2]:m[3]])
		if target == "" {
			continue
		}
		detection := Detection{
			Type:        TypeWikiLinkUnresolved,
			MatchedText: target,
			Start:       start,
			End:         end,
		}
		if id, ok := index.exact[Normalize(target)]; ok {
			entityID := id
			detection.Type = TypeWikiLinkResolved
			detection.EntityID = &entityID
			detection.Similarity = 1
		}
		out = append(out, detection)
	}
	return out, masked
}

// scanName compares every token window of the name's length, and one token
// shorter for multi-word names, against the name.
func (d *Detector) scanName(text []rune, tokens []token, name indexedName) []Detection {
	k := len(name.tokens)
	widths := []int{k}
	if k >= 2 {
		widths = append(widths, k-1)
	}
	var out []Detection
	for _, width := range widths {
		for i := 0; i+width <= len(tokens); i++ {
			window := tokens[i : i+width]
			if crossesSentence(window) {
				continue
			}
			candidate := joinTokens(window)
			detectionType, similarity, ok := d.classify(candidate, window, name, width == k)
			if !ok {
				continue
			}
			start, end := window[0].start, window[width-1].end
			entityID := name.entityID
			out = append(out, Detection{
				Type:        detectionType,
				MatchedText: string(text[start:end]),
				EntityID:    &entityID,
				Similarity:  similarity,
				Start:       start,
				End:         end,
			})
		}
	}
	return out
}

func (d *Detector) classify(candidate string, window []token, name indexedName, fullWidth bool) (Type, float64, bool) {
	if candidate == name.norm {
		return TypeUntaggedMention, 1, true
	}
	if name.length < minFuzzyNameLength {
		return "", 0, false
	}

	overlap := jaccard(window, name.tokens)
	candidateLength := utf8.RuneCountInString(candidate)
	longest := max(candidateLength, name.length)
	shortest := min(candidateLength, name.length)
	// Edit similarity can never exceed shortest/longest.
	if float64(shortest)/float64(longest) < d.opts.SimilarityFloor && overlap < d.opts.SimilarityFloor {
		return "", 0, false
	}

	edits := levenshtein.ComputeDistance(candidate, name.norm)
	similarity := max(1-float64(edits)/float64(longest), overlap)

	switch {
	case fullWidth && edits >= 1 && edits <= d.opts.MisspellingMaxEdits && name.length >= d.opts.MisspellingMinLength:
		return TypeMisspelling, similarity, true
	case similarity >= d.opts.AliasCeiling:
		return TypeUntaggedMention, similarity, true
	case similarity >= d.opts.SimilarityFloor:
		return TypePotentialAlias, similarity, true
	default:
		return "", 0, false
	}
}

// crossesSentence reports whether a sentence break falls inside window.
func crossesSentence(window []token) bool {
	for _, tok := range window[:len(window)-1] {
		if tok.endsSentence {
			return true
		}
	}
	return false
}

func joinTokens(window []token) string {
	parts := make([]string, len(window))
	for i, tok := range window {
		parts[i] = tok.norm
	}
	return strings.Join(parts, " ")
}

func jaccard(window []token, nameTokens []string) float64 {
	left := make(map[string]struct{}, len(window))
	for _, tok := range window {
		left[tok.norm] = struct{}{}
	}
	right := make(map[string]struct{}, len(nameTokens))
	for _, tok := range nameTokens {
		right[tok] = struct{}{}
	}
	intersection := 0
	for tok := range left {
		if _, ok := right[tok]; ok {
			intersection++
		}
	}
	union := len(left) + len(right) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// claimSpans keeps the best candidate for every region of text. Candidates
// are visited by type priority, then similarity, then span length, then
// position; anything overlapping an already claimed span is dropped.
func claimSpans(candidates []Detection) []Detection {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if pa, pb := a.Type.Priority(), b.Type.Priority(); pa != pb {
			return pa > pb
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
			return la > lb
		}
		return a.Start < b.Start
	})

	var claimed []Detection
	for _, candidate := range candidates {
		if overlapsAny(claimed, candidate) {
			continue
		}
		claimed = append(claimed, candidate)
	}

	sort.SliceStable(claimed, func(i, j int) bool {
		if claimed[i].Start != claimed[j].Start {
			return claimed[i].Start < claimed[j].Start
		}
		return claimed[i].Type.Priority() > claimed[j].Type.Priority()
	})
	return claimed
}

func overlapsAny(claimed []Detection, candidate Detection) bool {
	for _, existing := range claimed {
		if candidate.Start < existing.End && existing.Start < candidate.End {
			return true
		}
	}
	return false
}
