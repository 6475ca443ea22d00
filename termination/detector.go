// Package termination decides when a caller has asked to end the call.
// A Detector matches recognized speech against a configured set of
// termination phrases and reports the canonical phrase that matched.
package termination

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// DefaultPhrases returns the built-in termination phrase set.
func DefaultPhrases() []string {
	return []string{"goodbye", "end call", "that's all", "thank you", "bye"}
}

// Detector matches utterance text against a fixed set of termination
// phrases. Single-word phrases are checked in one combined word-boundary
// pass; multi-word phrases fall back to per-phrase flexible patterns that
// tolerate intervening words. Compiled patterns are cached on the Detector
// because Detect runs on every user utterance.
type Detector struct {
	phrases []string
	// Combined word-boundary pattern covering all single-word phrases,
	// nil when the set has none.
	singleWord *regexp.Regexp
	// Canonical phrase keyed by its lowercase form, for mapping a
	// single-word match back to the configured casing.
	canonical map[string]string

	mu       sync.RWMutex
	flexible map[string]*regexp.Regexp
}

// NewDetector creates a Detector for the given phrases. A nil or empty
// phrase list falls back to DefaultPhrases. Duplicate phrases (by value)
// are collapsed.
func NewDetector(phrases []string) *Detector {
	if len(phrases) == 0 {
		phrases = DefaultPhrases()
	}

	seen := make(map[string]struct{}, len(phrases))
	unique := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	// Deterministic match preference regardless of input order.
	sort.Strings(unique)

	d := &Detector{
		phrases:   unique,
		canonical: make(map[string]string, len(unique)),
		flexible:  make(map[string]*regexp.Regexp),
	}

	var singles []string
	for _, p := range unique {
		d.canonical[strings.ToLower(p)] = p
		if !strings.ContainsAny(p, " \t") {
			singles = append(singles, regexp.QuoteMeta(p))
		}
	}
	if len(singles) > 0 {
		d.singleWord = regexp.MustCompile(`(?i)\b(?:` + strings.Join(singles, "|") + `)\b`)
	}

	return d
}

// Phrases returns the configured phrase set.
func (d *Detector) Phrases() []string {
	out := make([]string, len(d.phrases))
	copy(out, d.phrases)
	return out
}

// Detect reports whether text contains a termination request. The returned
// phrase is the canonical form from the configured set, not the casing found
// in the input. Empty or whitespace-only text never matches.
func (d *Detector) Detect(text string) (string, bool) {
	if strings.TrimSpace(text) == "" || len(d.phrases) == 0 {
		return "", false
	}

	// Fast path: all single-word phrases in one pass.
	if d.singleWord != nil {
		if m := d.singleWord.FindString(text); m != "" {
			if phrase, ok := d.canonical[strings.ToLower(m)]; ok {
				return phrase, true
			}
		}
	}

	// Multi-word phrases allow intervening words but preserve word order.
	for _, phrase := range d.phrases {
		if !strings.ContainsAny(phrase, " \t") {
			continue
		}
		if d.flexiblePattern(phrase).MatchString(text) {
			return phrase, true
		}
	}

	return "", false
}

// flexiblePattern returns the cached flexible matcher for a multi-word
// phrase, compiling it on first use.
func (d *Detector) flexiblePattern(phrase string) *regexp.Regexp {
	d.mu.RLock()
	re, ok := d.flexible[phrase]
	d.mu.RUnlock()
	if ok {
		return re
	}

	words := strings.Fields(phrase)
	escaped := make([]string, len(words))
	for i, w := range words {
		escaped[i] = regexp.QuoteMeta(w)
	}
	// Word order is preserved; anything may appear between the words.
	re = regexp.MustCompile(`(?i)\b` + strings.Join(escaped, `\b.*\b`) + `\b`)

	d.mu.Lock()
	d.flexible[phrase] = re
	d.mu.Unlock()
	return re
}
