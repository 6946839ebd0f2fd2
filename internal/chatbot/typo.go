package chatbot

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultFuzzyCutoff is the minimum similarity ratio for a fuzzy replacement.
const DefaultFuzzyCutoff = 0.85

// DefaultCorrections maps common misspellings to their fix.
var DefaultCorrections = map[string]string{
	"dengu":          "dengue",
	"dengu fever":    "dengue fever",
	"dengu fevr":     "dengue fever",
	"dengu symptoms": "dengue symptoms",
	"mosqito":        "mosquito",
	"mosquto":        "mosquito",
	"mosquitoes":     "mosquito",
	"platelets":      "platelet",
	"plaetlet":       "platelet",
	"ns_1":           "ns1",
	"ns-1":           "ns1",
}

// DefaultKeywords is the vocabulary fuzzy matching snaps tokens onto.
var DefaultKeywords = []string{
	"dengue", "dengue fever", "symptoms", "mosquito", "aedes", "platelet",
	"rash", "ns1", "serology", "bleeding", "fever", "vomiting",
	"abdominal pain", "hospital",
}

type correction struct {
	wrong string
	fix   string
}

// apply replaces every occurrence of the misspelling in s. An occurrence
// that already reads as the fix is left alone when the fix extends the
// misspelling, so "dengu" -> "dengue" does not touch "dengue".
func (c correction) apply(s string) string {
	extends := len(c.fix) > len(c.wrong) && strings.HasPrefix(c.fix, c.wrong)
	var b strings.Builder
	for {
		i := strings.Index(s, c.wrong)
		if i < 0 {
			if b.Len() == 0 {
				return s
			}
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(c.fix)
		if extends && strings.HasPrefix(s[i:], c.fix) {
			s = s[i+len(c.fix):]
		} else {
			s = s[i+len(c.wrong):]
		}
	}
}

// Corrector produces a best-effort spelling-corrected copy of a query.
// It holds only immutable tables and is safe for concurrent use.
type Corrector struct {
	corrections []correction
	keywords    []string
	keywordSet  map[string]struct{}
	cutoff      float64
}

// NewCorrector builds a Corrector. Corrections are substring replacements
// applied longest misspelling first, so phrase fixes win over their
// prefixes and suffixed forms such as "plaetlets" are still caught.
// A cutoff outside (0, 1] falls back to DefaultFuzzyCutoff.
func NewCorrector(corrections map[string]string, keywords []string, cutoff float64) *Corrector {
	if cutoff <= 0 || cutoff > 1 {
		cutoff = DefaultFuzzyCutoff
	}

	wrongs := make([]string, 0, len(corrections))
	for w := range corrections {
		if w != "" {
			wrongs = append(wrongs, w)
		}
	}
	sort.Slice(wrongs, func(i, j int) bool {
		if len(wrongs[i]) != len(wrongs[j]) {
			return len(wrongs[i]) > len(wrongs[j])
		}
		return wrongs[i] < wrongs[j]
	})

	c := &Corrector{
		corrections: make([]correction, 0, len(wrongs)),
		keywords:    make([]string, 0, len(keywords)),
		keywordSet:  make(map[string]struct{}, len(keywords)),
		cutoff:      cutoff,
	}
	for _, w := range wrongs {
		c.corrections = append(c.corrections, correction{
			wrong: strings.ToLower(w),
			fix:   corrections[w],
		})
	}
	for _, k := range keywords {
		k = strings.ToLower(k)
		if _, dup := c.keywordSet[k]; dup {
			continue
		}
		c.keywordSet[k] = struct{}{}
		c.keywords = append(c.keywords, k)
	}
	return c
}

// Correct lowercases text, applies the correction table, then replaces each
// token longer than two characters that is not itself a keyword with its
// closest keyword when the similarity ratio reaches the cutoff. Tokens are
// rejoined with single spaces.
func (c *Corrector) Correct(text string) string {
	out := strings.ToLower(text)
	for _, corr := range c.corrections {
		out = corr.apply(out)
	}

	tokens := strings.Fields(out)
	for i, tok := range tokens {
		if _, ok := c.keywordSet[tok]; ok || utf8.RuneCountInString(tok) <= 2 {
			continue
		}
		if match, ok := c.closest(tok); ok {
			tokens[i] = match
		}
	}
	return strings.Join(tokens, " ")
}

// closest returns the keyword most similar to word. Ties go to the
// lexicographically greater keyword.
func (c *Corrector) closest(word string) (string, bool) {
	target := runes(word)
	var (
		best      string
		bestScore float64
		found     bool
	)
	for _, k := range c.keywords {
		m := difflib.NewMatcher(runes(k), target)
		if m.RealQuickRatio() < c.cutoff || m.QuickRatio() < c.cutoff {
			continue
		}
		score := m.Ratio()
		if score < c.cutoff {
			continue
		}
		if !found || score > bestScore || (score == bestScore && k > best) {
			best, bestScore, found = k, score, true
		}
	}
	return best, found
}

// runes splits s into single-character strings for difflib.
func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
