package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/wugbot/internal/store"
)

func phrase(transcription, translation string, crumb ...int) *store.Phrase {
	return &store.Phrase{
		Breadcrumb:    store.Breadcrumb(crumb),
		Transcription: transcription,
		Translation:   translation,
	}
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx := NewIndex(DefaultConfig())
	require.NoError(t, idx.AddPhrase(phrase("ke-pi wa", "", 1, 0)))
	require.NoError(t, idx.AddPhrase(phrase("wa wa", "", 1, 1)))
	require.NoError(t, idx.AddPhrase(phrase("mo", "a dog barks at the dog", 2, 0)))
	return idx
}

func crumbs(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Breadcrumb.String()
	}
	return out
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"ke", "pi", "wa", "o’o"}, Tokenize("Ke-pi wa, o’o"))
	assert.Empty(t, Tokenize(" -- "))
}

func TestMath(t *testing.T) {
	assert.Zero(t, CalculateIDF(10, 0))
	assert.Greater(t, CalculateIDF(10, 1), CalculateIDF(10, 5))
	assert.Zero(t, NormalizedTermFrequency(0, 3, 2, 0.75))
	assert.InDelta(t, 1.0, NormalizedTermFrequency(1, 2, 2, 0.75), 1e-9)
	assert.Zero(t, Saturate(0, 1.2))
	assert.InDelta(t, 1.0, Saturate(1, 1.2), 1e-9)
}

func TestSearchRanksByFrequency(t *testing.T) {
	idx := newTestIndex(t)
	assert.Equal(t, 3, idx.Len())

	results := idx.Search("wa", 0)
	assert.Equal(t, []string{"1_1", "1_0"}, crumbs(results))
	assert.Greater(t, results[0].Score, results[1].Score)

	assert.Equal(t, []string{"2_0"}, crumbs(idx.Search("DOG dog", 0)))
	assert.Equal(t, []string{"1_1"}, crumbs(idx.Search("wa", 1)))
	assert.Empty(t, idx.Search("zzz", 0))
	assert.Empty(t, idx.Search("", 0))
}

func TestRemove(t *testing.T) {
	idx := newTestIndex(t)

	assert.True(t, idx.Remove(store.Breadcrumb{1, 1}))
	assert.False(t, idx.Remove(store.Breadcrumb{1, 1}))
	assert.Equal(t, []string{"1_0"}, crumbs(idx.Search("wa", 0)))

	idx.RemoveText(2)
	assert.Empty(t, idx.Search("dog", 0))
	assert.Equal(t, 1, idx.Len())
}

func TestAddPhraseReplaces(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.AddPhrase(phrase("mo", "", 1, 1)))

	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, []string{"1_0"}, crumbs(idx.Search("wa", 0)))
	assert.ElementsMatch(t, []string{"1_1", "2_0"}, crumbs(idx.Search("mo", 0)))
}

func TestAddText(t *testing.T) {
	idx := newTestIndex(t)
	text := &store.Text{ID: 1, Phrases: []*store.Phrase{phrase("pi", "", 1, 0)}}
	require.NoError(t, idx.AddText(text))

	assert.Equal(t, 2, idx.Len())
	assert.Empty(t, idx.Search("wa", 0))
	assert.Equal(t, []string{"1_0"}, crumbs(idx.Search("pi", 0)))
}

func TestAddRequiresBreadcrumb(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	assert.ErrorIs(t, idx.AddPhrase(&store.Phrase{Transcription: "wa"}), ErrNoBreadcrumb)
	assert.ErrorIs(t, idx.AddText(&store.Text{ID: 3, Phrases: []*store.Phrase{{Transcription: "wa"}}}), ErrNoBreadcrumb)
	assert.Zero(t, idx.Len())
}
