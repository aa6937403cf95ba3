package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Term frequency measures how often a word appears in a single document,
        while inverse document frequency discounts words that appear in many
        documents of the corpus. Multiplying the two highlights terms that are
        characteristic of one document. The corpus registry keeps a document
        frequency for every distinct term and bumps a version on each change.`,
	"long": strings.Repeat(`Every upload is tokenized into lower-cased terms, stored durably
        and registered in the corpus so that scores reflect the whole collection.
        Deleting a document withdraws its terms again, which shifts the inverse
        document frequency of everything that shared them. Cached score vectors
        are keyed by corpus version so stale values are never served. `, 20),
}

func newTokenizer(b *testing.B, cfg tokenizer.Config) *tokenizer.Tokenizer {
	b.Helper()
	tok, err := tokenizer.New(cfg)
	if err != nil {
		b.Fatal(err)
	}
	return tok
}

func BenchmarkCounts(b *testing.B) {
	tok := newTokenizer(b, tokenizer.DefaultConfig())
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				counts, total := tok.Counts(text)
				_, _ = counts, total
			}
		})
	}
}

func BenchmarkCountsParallel(b *testing.B) {
	tok := newTokenizer(b, tokenizer.DefaultConfig())
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			counts, _ := tok.Counts(text)
			_ = counts
		}
	})
}

// BenchmarkCountsStemmed shows the cost of the optional Snowball stemmer and
// stop-word filter over the default policy.
func BenchmarkCountsStemmed(b *testing.B) {
	cfg := tokenizer.DefaultConfig()
	cfg.Stem = true
	cfg.StopWords = []string{"the", "a", "of", "and", "is", "in", "that", "so"}
	tok := newTokenizer(b, cfg)
	text := sampleTexts["long"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		counts, _ := tok.Counts(text)
		_ = counts
	}
}

func BenchmarkCountsVaryingSize(b *testing.B) {
	tok := newTokenizer(b, tokenizer.DefaultConfig())
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "corpus document term frequency weight "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				counts, _ := tok.Counts(text)
				_ = counts
			}
		})
	}
}
