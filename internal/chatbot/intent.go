package chatbot

import "strings"

// Intent is a coarse topic label for a question.
type Intent string

const (
	IntentDengue    Intent = "dengue"
	IntentNotDengue Intent = "not-dengue"
)

// DengueKeywords mark text as dengue-related when any appears as a substring.
var DengueKeywords = []string{
	"dengue", "mosquito", "aedes", "fever", "platelet", "rash",
	"ns1", "serology", "dengue fever", "dengue virus",
}

// PredictIntent labels text by keyword presence. It is reported alongside the
// answer and does not influence retrieval.
func PredictIntent(text string) Intent {
	lower := strings.ToLower(text)
	for _, k := range DengueKeywords {
		if strings.Contains(lower, k) {
			return IntentDengue
		}
	}
	return IntentNotDengue
}
