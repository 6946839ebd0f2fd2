package chatbot

import (
	"strings"

	"github.com/fyrsmithlabs/denguex/internal/knowledge"
)

// Fixed replies.
const (
	ReplyUrgent       = "This message contains warning signs. Seek immediate medical care or go to the nearest emergency department."
	ReplyNoResults    = "Please ask dengue-related questions only. I can help with symptoms, prevention, testing and treatment guidance."
	ReplyNotConfident = "I don't have a confident dengue-related answer for that. Please rephrase or ask a different dengue question."

	// UrgentSource is cited on every urgent reply.
	UrgentSource = "Emergency guidance - WHO"

	sourcePrefix = "\n\nSource: "
)

// Outcome names the terminal state that produced a reply.
type Outcome string

const (
	OutcomeUrgent       Outcome = "urgent"
	OutcomeNoResults    Outcome = "no_results"
	OutcomeOutOfScope   Outcome = "out_of_scope"
	OutcomeNotConfident Outcome = "not_confident"
	OutcomeAccepted     Outcome = "accepted"
)

// QueryResult is the reply to one question.
type QueryResult struct {
	Reply string `json:"reply"`

	// KBID is the answering entry. Empty for urgent replies and declines.
	KBID string `json:"kb_id,omitempty"`

	Sources []string `json:"sources"`

	Urgency knowledge.Urgency `json:"urgency"`

	// Confidence is 1.0 for urgent replies, 0 when nothing was retrieved, the
	// best similarity for declines, and for accepted answers the chosen
	// entry's score sum divided by the number of retrieved hits. Hits whose
	// kb_id is missing from the catalog are discarded first and not counted.
	Confidence float64 `json:"confidence"`

	MatchedWarningSigns []string `json:"matched_warning_signs"`

	// Intent is a keyword guess of whether the text is about dengue at all.
	Intent Intent `json:"intent"`

	Outcome Outcome `json:"-"`
}

func urgentResult(matches []string) QueryResult {
	return QueryResult{
		Reply:               ReplyUrgent,
		Sources:             []string{UrgentSource},
		Urgency:             knowledge.UrgencyUrgent,
		Confidence:          1.0,
		MatchedWarningSigns: matches,
		Outcome:             OutcomeUrgent,
	}
}

func noResultsResult() QueryResult {
	return QueryResult{
		Reply:               ReplyNoResults,
		Sources:             []string{},
		Urgency:             knowledge.UrgencyNonUrgent,
		Confidence:          0,
		MatchedWarningSigns: []string{},
		Outcome:             OutcomeNoResults,
	}
}

func notConfidentResult(best float64) QueryResult {
	return QueryResult{
		Reply:               ReplyNotConfident,
		Sources:             []string{},
		Urgency:             knowledge.UrgencyNonUrgent,
		Confidence:          best,
		MatchedWarningSigns: []string{},
		Outcome:             OutcomeNotConfident,
	}
}

// outOfScopeResult returns the entry's own answer verbatim. No source suffix
// is added; these entries redirect rather than inform.
func outOfScopeResult(e knowledge.Entry, score float64) QueryResult {
	return QueryResult{
		Reply:               e.CanonicalAnswer,
		KBID:                e.ID,
		Sources:             nonNil(e.Sources),
		Urgency:             e.EffectiveUrgency(),
		Confidence:          score,
		MatchedWarningSigns: []string{},
		Outcome:             OutcomeOutOfScope,
	}
}

func acceptedResult(e knowledge.Entry, confidence float64) QueryResult {
	reply := e.CanonicalAnswer
	if len(e.Sources) > 0 {
		reply += sourcePrefix + strings.Join(e.Sources, ", ")
	}
	return QueryResult{
		Reply:               reply,
		KBID:                e.ID,
		Sources:             nonNil(e.Sources),
		Urgency:             e.EffectiveUrgency(),
		Confidence:          confidence,
		MatchedWarningSigns: []string{},
		Outcome:             OutcomeAccepted,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
