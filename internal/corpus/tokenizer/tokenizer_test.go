package tokenizer

import (
	"errors"
	"slices"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, cfg Config) *Tokenizer {
	t.Helper()
	tok, err := New(cfg)
	require.NoError(t, err)
	return tok
}

func TestTermsDefaultPolicy(t *testing.T) {
	tok := mustNew(t, DefaultConfig())

	cases := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"only separators", "  ,.;!? -- \n\t", nil},
		{"sentence", "The cat sat on the mat.", []string{"the", "cat", "sat", "on", "the", "mat"}},
		{"punctuation split", "small wild,cat!", []string{"small", "wild", "cat"}},
		{"digits dropped", "route 66 and b52", []string{"route", "and", "b52"}},
		{"unicode letters", "Café naïve ÜBER", []string{"café", "naïve", "über"}},
		{"apostrophe splits", "don't", []string{"don", "t"}},
		{"combining mark stays in word", "cafe\u0301 au lait", []string{"cafe\u0301", "au", "lait"}},
		{"leading combining mark dropped", "\u0301 x", []string{"x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := slices.Collect(tok.Terms(tc.text))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTermsIsRestartable(t *testing.T) {
	tok := mustNew(t, DefaultConfig())
	seq := tok.Terms("alpha beta gamma")

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)

	// Early termination must not affect later iterations.
	for term := range seq {
		assert.Equal(t, "alpha", term)
		break
	}
	assert.Equal(t, first, slices.Collect(seq))
}

func TestPolicyOptions(t *testing.T) {
	t.Run("keep case", func(t *testing.T) {
		tok := mustNew(t, Config{MinTermLength: 1})
		assert.Equal(t, []string{"Big", "Cat", "2024"}, slices.Collect(tok.Terms("Big Cat 2024")))
	})
	t.Run("min length in runes", func(t *testing.T) {
		tok := mustNew(t, Config{MinTermLength: 3, Lowercase: true})
		assert.Equal(t, []string{"cat", "été"}, slices.Collect(tok.Terms("a an cat été")))
	})
	t.Run("stop words", func(t *testing.T) {
		tok := mustNew(t, Config{Lowercase: true, StopWords: []string{"The", "a"}})
		assert.Equal(t, []string{"big", "dog"}, slices.Collect(tok.Terms("The big a dog")))
	})
	t.Run("stemming", func(t *testing.T) {
		tok := mustNew(t, Config{Lowercase: true, Stem: true})
		assert.Equal(t, []string{"long", "pen", "cat"}, slices.Collect(tok.Terms("Long pens cats")))
	})
}

func TestCounts(t *testing.T) {
	tok := mustNew(t, DefaultConfig())
	counts, total := tok.Counts("the cat sat on the mat")

	assert.Equal(t, 6, total)
	assert.Equal(t, map[string]int{"the": 2, "cat": 1, "sat": 1, "on": 1, "mat": 1}, counts)

	sum := 0
	for _, c := range counts {
		sum += c
	}
	assert.Equal(t, total, sum)
}

func TestNewRejectsNegativeLength(t *testing.T) {
	_, err := New(Config{MinTermLength: -2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}
