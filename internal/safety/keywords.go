package safety

import "strings"

// DefaultEmergencyKeywords is the compiled-in classification vocabulary.
// It can be replaced wholesale via config; classification logic never
// changes when the vocabulary does.
var DefaultEmergencyKeywords = []string{
	"emergency",
	"help",
	"911",
	"danger",
	"trapped",
	"bleeding",
	"sos",
	"fire",
	"hurt",
	"injured",
	"attack",
	"unconscious",
	"overdose",
	"drowning",
	"chest pain",
	"can't breathe",
}

// Classification is the classifier verdict for one input text.
type Classification struct {
	Emergency bool
	// Matches lists the vocabulary entries found in the input, lowercased,
	// in vocabulary order.
	Matches []string
}

// Classifier tags text that references a safety emergency. It is a pure
// case-insensitive substring matcher over an immutable vocabulary and is
// safe for concurrent use.
type Classifier struct {
	vocab []string
}

// NewClassifier builds a classifier over the given vocabulary. Entries are
// lowercased and blank entries dropped. A nil or empty vocabulary falls back
// to DefaultEmergencyKeywords.
func NewClassifier(vocab []string) *Classifier {
	if len(vocab) == 0 {
		vocab = DefaultEmergencyKeywords
	}
	out := make([]string, 0, len(vocab))
	for _, kw := range vocab {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		out = append(out, kw)
	}
	return &Classifier{vocab: out}
}

// Classify reports whether text references a safety emergency.
func (c *Classifier) Classify(text string) Classification {
	lower := strings.ToLower(text)
	var matches []string
	for _, kw := range c.vocab {
		if strings.Contains(lower, kw) {
			matches = append(matches, kw)
		}
	}
	return Classification{Emergency: len(matches) > 0, Matches: matches}
}

// Vocabulary returns a copy of the active vocabulary.
func (c *Classifier) Vocabulary() []string {
	out := make([]string, len(c.vocab))
	copy(out, c.vocab)
	return out
}
