// Package gloss converts typed text into a sequence of signs: whole-word
// signs where the vocabulary has one, fingerspelling otherwise.
package gloss

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Kind tells how a sign is produced.
type Kind string

const (
	KindWord   Kind = "word"
	KindLetter Kind = "letter"
	KindDigit  Kind = "digit"
)

// Gesture is one sign in the output sequence.
type Gesture struct {
	Kind  Kind   `json:"kind"`
	Label string `json:"label"`
}

// DefaultVocabulary lists the phrases that have a dedicated sign.
var DefaultVocabulary = []string{
	"hello", "thank you", "please", "sorry", "yes", "no",
	"good morning", "good night", "how are you", "what is your name",
	"my name is", "help", "water", "food", "family", "friend",
	"love", "i", "you", "we", "what", "where", "when", "why",
	"home", "school", "work", "doctor", "good", "bad",
}

// Translator maps text to gestures. It is safe for concurrent use.
type Translator struct {
	phrases  map[string]struct{}
	maxWords int
}

// New builds a translator over the default vocabulary plus extra phrases.
func New(extra ...string) *Translator {
	t := &Translator{
		phrases: make(map[string]struct{}),
	}
	for _, p := range append(append([]string(nil), DefaultVocabulary...), extra...) {
		words := t.words(p)
		if len(words) == 0 {
			continue
		}
		t.phrases[strings.Join(words, " ")] = struct{}{}
		if len(words) > t.maxWords {
			t.maxWords = len(words)
		}
	}
	return t
}

// Vocabulary returns the known phrases, sorted.
func (t *Translator) Vocabulary() []string {
	out := make([]string, 0, len(t.phrases))
	for p := range t.phrases {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Translate converts text into gestures. Phrases are matched greedily,
// longest first. Punctuation produces nothing.
func (t *Translator) Translate(text string) []Gesture {
	words := t.words(text)
	var out []Gesture

	for i := 0; i < len(words); {
		matched := 0
		for n := min(t.maxWords, len(words)-i); n > 0; n-- {
			if _, ok := t.phrases[strings.Join(words[i:i+n], " ")]; ok {
				matched = n
				break
			}
		}
		if matched > 0 {
			out = append(out, Gesture{Kind: KindWord, Label: strings.ToUpper(strings.Join(words[i:i+matched], " "))})
			i += matched
			continue
		}
		out = append(out, spell(words[i])...)
		i++
	}
	return out
}

// String renders a gesture sequence the way the CLI prints it.
func String(gestures []Gesture) string {
	parts := make([]string, len(gestures))
	for i, g := range gestures {
		switch g.Kind {
		case KindWord:
			parts[i] = "[" + g.Label + "]"
		default:
			parts[i] = g.Label
		}
	}
	return strings.Join(parts, " ")
}

func spell(word string) []Gesture {
	var out []Gesture
	for _, r := range word {
		switch {
		case r >= '0' && r <= '9':
			out = append(out, Gesture{Kind: KindDigit, Label: string(r)})
		case r >= 'a' && r <= 'z':
			out = append(out, Gesture{Kind: KindLetter, Label: string(unicode.ToUpper(r))})
		}
	}
	return out
}

// words lowercases, strips diacritics and splits on anything that is not a
// letter or digit.
func (t *Translator) words(text string) []string {
	stripped, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		text,
	)
	if err != nil {
		stripped = text
	}
	// a Caser is stateful, so each call gets its own
	lowered := cases.Lower(language.Und).String(stripped)

	return strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
