package chatbot_test

import (
	"testing"

	"github.com/fyrsmithlabs/denguex/internal/chatbot"
	"github.com/stretchr/testify/assert"
)

func TestCorrector_Correct(t *testing.T) {
	c := chatbot.NewCorrector(chatbot.DefaultCorrections, chatbot.DefaultKeywords, 0)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"phrase correction", "dengu fevr", "dengue fever"},
		{"single word correction", "Dengu", "dengue"},
		{"plural folded", "MOSQUITOES everywhere", "mosquito everywhere"},
		{"fuzzy keyword", "what are the symptons", "what are the symptoms"},
		{"fuzzy fever", "high fevr", "high fever"},
		{"correct word untouched", "dengue fever", "dengue fever"},
		{"keywords untouched", "rash and bleeding", "rash and bleeding"},
		{"short tokens untouched", "ns is ok", "ns is ok"},
		{"whitespace collapsed", "  dengue   rash ", "dengue rash"},
		{"ns1 spelling", "ns-1 test", "ns1 test"},
		{"ns1 underscore", "ns_1 test", "ns1 test"},
		{"suffixed misspelling", "plaetlets low", "platelet low"},
		{"suffixed mosquito", "mosqitoes bite", "mosquito bite"},
		{"mosquito plural typo", "mosqitos bite", "mosquito bite"},
		{"phrase and fuzzy", "Dengu fevr symptons", "dengue fever symptoms"},
		{"fuzzy hospital", "hospitl near me", "hospital near me"},
		{"already correct", "dengue", "dengue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Correct(tt.in))
		})
	}
}

func TestCorrector_LeavesCorrectSpellingAlone(t *testing.T) {
	c := chatbot.NewCorrector(map[string]string{"dengu": "dengue"}, nil, 0)

	assert.Equal(t, "dengue and dengue", c.Correct("dengue and dengu"))
	assert.Equal(t, "dengues", c.Correct("dengus"), "substring inside a longer word")
	assert.Equal(t, "dengue-dengue", c.Correct("dengu-dengue"))
}

func TestCorrector_ShorterFixStillApplies(t *testing.T) {
	c := chatbot.NewCorrector(map[string]string{"mosquitoes": "mosquito"}, nil, 0)

	assert.Equal(t, "mosquito mosquito", c.Correct("mosquitoes mosquito"))
}

func TestCorrector_LongestCorrectionFirst(t *testing.T) {
	c := chatbot.NewCorrector(map[string]string{
		"dengu":       "dengue",
		"dengu fever": "dengue hemorrhagic fever",
	}, nil, 0)

	assert.Equal(t, "dengue hemorrhagic fever", c.Correct("dengu fever"))
}

func TestCorrector_Cutoff(t *testing.T) {
	strict := chatbot.NewCorrector(nil, []string{"symptoms"}, 0.95)
	lenient := chatbot.NewCorrector(nil, []string{"symptoms"}, 0.8)

	assert.Equal(t, "symptons", strict.Correct("symptons"))
	assert.Equal(t, "symptoms", lenient.Correct("symptons"))
}

func TestCorrector_IsPure(t *testing.T) {
	c := chatbot.NewCorrector(chatbot.DefaultCorrections, chatbot.DefaultKeywords, 0)

	assert.Equal(t, c.Correct("mosqito bite"), c.Correct("mosqito bite"))
	assert.Equal(t, "mosquito bite", c.Correct("mosqito bite"))
}

func TestDetectWarningSigns(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"none", "how does dengue spread", nil},
		{"empty", "", nil},
		{"case insensitive", "I am VOMITING BLOOD", []string{"vomiting blood"}},
		{"phrase order", "feeling faint, black stool and lethargy", []string{"faint", "black stool", "lethargy"}},
		{"substring", "fainting spells", []string{"faint"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chatbot.DetectWarningSigns(tt.text, chatbot.DefaultWarningSigns))
		})
	}
}

func TestPredictIntent(t *testing.T) {
	assert.Equal(t, chatbot.IntentDengue, chatbot.PredictIntent("Is DENGUE dangerous?"))
	assert.Equal(t, chatbot.IntentDengue, chatbot.PredictIntent("my platelet count is low"))
	assert.Equal(t, chatbot.IntentNotDengue, chatbot.PredictIntent("what is the capital of France"))
	assert.Equal(t, chatbot.IntentNotDengue, chatbot.PredictIntent(""))
}
