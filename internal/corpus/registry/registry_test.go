package registry

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertBounded(t *testing.T, s Snapshot) {
	t.Helper()
	for term, df := range s.DF {
		assert.GreaterOrEqual(t, df, 1, "term %q", term)
		assert.LessOrEqual(t, df, s.Documents, "term %q", term)
	}
}

func TestRegisterCountsDistinctTerms(t *testing.T) {
	r := New()

	v := r.Register(slices.Values([]string{"the", "cat", "the", "mat"}))
	assert.Equal(t, uint64(1), v)

	s := r.Snapshot()
	assert.Equal(t, 1, s.Documents)
	assert.Equal(t, map[string]int{"the": 1, "cat": 1, "mat": 1}, s.DF)
	assertBounded(t, s)

	r.Register(slices.Values([]string{"the", "dog"}))
	s = r.Snapshot("the", "cat", "missing")
	assert.Equal(t, 2, s.Documents)
	assert.Equal(t, map[string]int{"the": 2, "cat": 1}, s.DF)
	assert.Equal(t, 0, s.DocFreq("missing"))
	assert.Equal(t, uint64(2), s.Version)
}

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	r := New()
	r.Register(slices.Values([]string{"alpha", "beta"}))
	r.Register(slices.Values([]string{"beta", "gamma"}))
	before := r.Snapshot()

	terms := []string{"beta", "delta", "epsilon"}
	r.Register(slices.Values(terms))
	_, err := r.Unregister(slices.Values(terms))
	require.NoError(t, err)

	after := r.Snapshot()
	assert.Equal(t, before.DF, after.DF)
	assert.Equal(t, before.Documents, after.Documents)
	assert.Greater(t, after.Version, before.Version)
}

func TestUnregisterRemovesZeroEntries(t *testing.T) {
	r := New()
	r.Register(slices.Values([]string{"the", "cat"}))
	r.Register(slices.Values([]string{"the", "dog"}))

	_, err := r.Unregister(slices.Values([]string{"the", "cat"}))
	require.NoError(t, err)

	s := r.Snapshot()
	_, present := s.DF["cat"]
	assert.False(t, present)
	assert.Equal(t, map[string]int{"the": 1, "dog": 1}, s.DF)
	assert.Equal(t, 1, s.Documents)
}

func TestUnregisterInvariantViolationLeavesStateIntact(t *testing.T) {
	t.Run("empty registry", func(t *testing.T) {
		r := New()
		_, err := r.Unregister(slices.Values([]string{"ghost"}))
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrInvariantViolation))
		assert.Equal(t, uint64(0), r.Version())
	})

	t.Run("unknown term", func(t *testing.T) {
		r := New()
		r.Register(slices.Values([]string{"cat", "mat"}))
		before := r.Snapshot()

		_, err := r.Unregister(slices.Values([]string{"cat", "ghost"}))
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrInvariantViolation))

		after := r.Snapshot()
		assert.Equal(t, before, after)
	})
}

func TestVersionStrictlyIncreases(t *testing.T) {
	r := New()
	seen := map[uint64]bool{0: true}
	last := r.Version()

	for i := range 20 {
		var v uint64
		if i%3 == 2 {
			var err error
			v, err = r.Unregister(slices.Values([]string{"x", "y"}))
			require.NoError(t, err)
		} else {
			v = r.Register(slices.Values([]string{"x", "y"}))
		}
		assert.Greater(t, v, last)
		assert.False(t, seen[v], "version %d reused", v)
		seen[v] = true
		last = v
	}

	// A failed mutation does not consume a version.
	_, err := New().Unregister(slices.Values([]string{"x"}))
	require.Error(t, err)
	assert.Equal(t, last, r.Version())
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New()
	r.Register(slices.Values([]string{"cat"}))
	s := r.Snapshot()
	s.DF["cat"] = 99

	assert.Equal(t, 1, r.Snapshot().DocFreq("cat"))
}

func TestSnapshotForMatchesSnapshot(t *testing.T) {
	r := New()
	r.Register(slices.Values([]string{"a", "b", "c"}))
	r.Register(slices.Values([]string{"b", "c"}))

	want := r.Snapshot("a", "c")
	got := r.SnapshotFor(maps.Keys(map[string]int{"a": 1, "c": 3}))
	assert.Equal(t, want, got)
}

func TestConcurrentReadersNeverSeePartialUpdates(t *testing.T) {
	r := New()
	terms := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := r.Snapshot()
				// Every document carries all four terms, so each DF equals N.
				for _, term := range terms {
					if s.Documents == 0 {
						assert.Zero(t, s.DocFreq(term))
					} else {
						assert.Equal(t, s.Documents, s.DocFreq(term))
					}
				}
			}
		}()
	}

	for range 200 {
		r.Register(slices.Values(terms))
	}
	for range 200 {
		_, err := r.Unregister(slices.Values(terms))
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	docs, vocab, version := r.Stats()
	assert.Zero(t, docs)
	assert.Zero(t, vocab)
	assert.Equal(t, uint64(400), version)
}
