// Package tokenizer turns raw document text into normalised terms.
// It splits on Unicode non-alphanumeric boundaries, optionally lower-cases,
// drops purely numeric and short tokens, and can apply stop-word removal and
// English Snowball stemming when configured. Both are off by default so that
// TF/IDF values stay literal and auditable.
package tokenizer

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball/english"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
)

// Config is the normalisation policy.
type Config struct {
	MinTermLength   int
	Lowercase       bool
	StripDigitsOnly bool
	Stem            bool
	StopWords       []string
}

// DefaultConfig lower-cases, drops digit-only tokens and keeps everything
// else.
func DefaultConfig() Config {
	return Config{
		MinTermLength:   1,
		Lowercase:       true,
		StripDigitsOnly: true,
	}
}

// FromConfig converts the YAML tokenizer section.
func FromConfig(c config.TokenizerConfig) Config {
	return Config{
		MinTermLength:   c.MinTermLength,
		Lowercase:       c.Lowercase,
		StripDigitsOnly: c.StripDigitsOnly,
		Stem:            c.Stem,
		StopWords:       c.StopWords,
	}
}

// Tokenizer is immutable after construction and safe for concurrent use.
type Tokenizer struct {
	cfg       Config
	stopWords map[string]struct{}
}

// New validates cfg and builds a Tokenizer.
func New(cfg Config) (*Tokenizer, error) {
	if cfg.MinTermLength < 0 {
		return nil, apperrors.Validation("min term length must be >= 0, got %d", cfg.MinTermLength)
	}
	t := &Tokenizer{cfg: cfg}
	if len(cfg.StopWords) > 0 {
		t.stopWords = make(map[string]struct{}, len(cfg.StopWords))
		for _, w := range cfg.StopWords {
			if cfg.Lowercase {
				w = strings.ToLower(w)
			}
			t.stopWords[w] = struct{}{}
		}
	}
	return t, nil
}

// Config returns the policy the tokenizer was built with.
func (t *Tokenizer) Config() Config {
	return t.cfg
}

// Terms returns a lazy sequence of normalised terms in text. Each range over
// the returned sequence rescans text from the start; no cursor is shared
// between iterations.
func (t *Tokenizer) Terms(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start := -1
		for i, r := range text {
			// A combining mark continues the current word, so decomposed
			// text like "cafe\u0301" stays one term.
			if isWordRune(r) || (start >= 0 && unicode.Is(unicode.Mn, r)) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if term, ok := t.normalize(text[start:i]); ok && !yield(term) {
					return
				}
				start = -1
			}
		}
		if start >= 0 {
			if term, ok := t.normalize(text[start:]); ok {
				yield(term)
			}
		}
	}
}

// Counts tokenizes text into a term -> occurrence count mapping and returns
// the total number of occurrences.
func (t *Tokenizer) Counts(text string) (map[string]int, int) {
	counts := make(map[string]int)
	total := 0
	for term := range t.Terms(text) {
		counts[term]++
		total++
	}
	return counts, total
}

func (t *Tokenizer) normalize(word string) (string, bool) {
	if t.cfg.StripDigitsOnly && isNumeric(word) {
		return "", false
	}
	if t.cfg.Lowercase {
		word = strings.ToLower(word)
	}
	if _, isStop := t.stopWords[word]; isStop {
		return "", false
	}
	if t.cfg.Stem {
		word = english.Stem(word, false)
	}
	if word == "" || utf8.RuneCountInString(word) < t.cfg.MinTermLength {
		return "", false
	}
	return word, true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func isNumeric(word string) bool {
	for _, r := range word {
		if !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}
