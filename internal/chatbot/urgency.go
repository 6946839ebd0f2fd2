package chatbot

import "strings"

// DefaultWarningSigns are the dengue warning-sign phrases that short-circuit
// retrieval. Matching is a case-insensitive substring test in this order.
var DefaultWarningSigns = []string{
	"severe abdominal pain",
	"persistent vomiting",
	"vomit blood",
	"vomiting blood",
	"difficulty breathing",
	"faint",
	"cold/clammy",
	"black stool",
	"lethargy",
	"difficulty waking",
}

// DetectWarningSigns returns every phrase found in text, in phrase order.
// Phrases are expected in lower case.
func DetectWarningSigns(text string, phrases []string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var matches []string
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, p) {
			matches = append(matches, p)
		}
	}
	return matches
}
