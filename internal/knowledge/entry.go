// Package knowledge defines the dengue knowledge base: entries, the catalog that
// indexes them by ID, and loaders for the JSONL and spreadsheet authoring formats.
package knowledge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Sentinel errors for knowledge base operations.
var (
	// ErrInvalidEntry indicates an entry failed validation.
	ErrInvalidEntry = errors.New("invalid knowledge base entry")

	// ErrDuplicateID indicates two entries share the same ID.
	ErrDuplicateID = errors.New("duplicate knowledge base entry id")

	// ErrUnsupportedFormat indicates a KB file with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported knowledge base format")
)

// TagOutOfScope marks entries that explain a question is outside the bot's scope.
// Such entries are still returned when nothing else clears the threshold.
const TagOutOfScope = "out_of_scope"

// Urgency classifies an answer as medically time-critical or routine.
type Urgency string

const (
	// UrgencyUrgent marks answers that should send the user to care now.
	UrgencyUrgent Urgency = "urgent"
	// UrgencyNonUrgent marks routine informational answers.
	UrgencyNonUrgent Urgency = "non-urgent"
)

// Entry is one fact/answer unit of the knowledge base.
type Entry struct {
	// ID is assigned at authoring time and never changes.
	ID string `json:"id" validate:"required"`

	// Title is a short human label. Used as the only variant when
	// QuestionVariants is empty.
	Title string `json:"title"`

	// CanonicalAnswer is returned verbatim when this entry is selected.
	CanonicalAnswer string `json:"canonical_answer" validate:"required"`

	// QuestionVariants are paraphrases of the question; each one is embedded
	// as its own vector.
	QuestionVariants []string `json:"question_variants,omitempty" validate:"dive,required"`

	Tags    []string `json:"tags,omitempty" validate:"dive,required"`
	Sources []string `json:"sources,omitempty"`

	Urgency Urgency `json:"urgency,omitempty" validate:"omitempty,oneof=urgent non-urgent"`
}

// Variants returns the texts to embed for this entry.
func (e Entry) Variants() []string {
	if len(e.QuestionVariants) > 0 {
		return e.QuestionVariants
	}
	return []string{e.Title}
}

// HasTag reports whether the entry carries the given tag.
func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// EffectiveUrgency returns the entry urgency, defaulting to non-urgent.
func (e Entry) EffectiveUrgency() Urgency {
	if e.Urgency == "" {
		return UrgencyNonUrgent
	}
	return e.Urgency
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the entry against the authoring rules.
func (e Entry) Validate() error {
	if err := validate.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: entry %q: %s", ErrInvalidEntry, e.ID, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: entry %q: %v", ErrInvalidEntry, e.ID, err)
	}
	if len(e.QuestionVariants) == 0 && strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: entry %q: needs a title or at least one question variant", ErrInvalidEntry, e.ID)
	}
	return nil
}

// entryJSON mirrors Entry with a raw ID so both string and numeric IDs decode,
// and accepts the kb_id spelling used by older KB files.
type entryJSON struct {
	ID               json.RawMessage `json:"id"`
	KBID             json.RawMessage `json:"kb_id"`
	Title            string          `json:"title"`
	CanonicalAnswer  string          `json:"canonical_answer"`
	Answer           string          `json:"answer"`
	QuestionVariants []string        `json:"question_variants"`
	Tags             []string        `json:"tags"`
	Sources          []string        `json:"sources"`
	Urgency          Urgency         `json:"urgency"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	idRaw := raw.KBID
	if len(bytes.TrimSpace(idRaw)) == 0 || string(bytes.TrimSpace(idRaw)) == "null" {
		idRaw = raw.ID
	}
	id, err := decodeID(idRaw)
	if err != nil {
		return err
	}

	answer := raw.CanonicalAnswer
	if answer == "" {
		answer = raw.Answer
	}

	*e = Entry{
		ID:               id,
		Title:            raw.Title,
		CanonicalAnswer:  answer,
		QuestionVariants: raw.QuestionVariants,
		Tags:             raw.Tags,
		Sources:          raw.Sources,
		Urgency:          raw.Urgency,
	}
	return nil
}

// decodeID accepts a JSON string or number.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decoding id: %w", err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or number: %w", err)
	}
	return n.String(), nil
}
