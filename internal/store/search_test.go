package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crumbsOf(t *testing.T, records []Record) []string {
	t.Helper()
	out := make([]string, len(records))
	for i, rec := range records {
		n, ok := rec.(Nested)
		require.True(t, ok, "expected nested record, got %T", rec)
		out[i] = n.Crumb().String()
	}
	return out
}

func TestCompileCriteria(t *testing.T) {
	all, err := CompileCriteria("  ")
	require.NoError(t, err)
	ok, err := all.Match(&Word{Token: "wa"})
	require.NoError(t, err)
	assert.True(t, ok)

	dog, err := CompileCriteria(`gloss == "dog" && form != ""`)
	require.NoError(t, err)
	assert.Equal(t, `gloss == "dog" && form != ""`, dog.String())
	ok, err = dog.Match(&Morpheme{Form: "pi", Gloss: "dog"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = dog.Match(&Morpheme{Form: "ke", Gloss: "DEF"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = CompileCriteria(`gloss ==`)
	assert.Error(t, err)
}

func TestSearchNestedLevels(t *testing.T) {
	runTestsForAllStores(t, "SearchNested", func(t *testing.T, db *DB) {
		text := storeText(t, db)
		id := text.ID

		morphemes, err := db.Search(ModelMorpheme, `gloss == "dog"`)
		require.NoError(t, err)
		assert.Equal(t, []string{Breadcrumb{int(id), 0, 0, 1}.String()}, crumbsOf(t, morphemes))

		words, err := db.Search(ModelWord, `token == "wa"`)
		require.NoError(t, err)
		assert.Equal(t, []string{
			Breadcrumb{int(id), 0, 1}.String(),
			Breadcrumb{int(id), 1, 0}.String(),
			Breadcrumb{int(id), 1, 1}.String(),
		}, crumbsOf(t, words))

		phrases, err := db.Search(ModelPhrase, "")
		require.NoError(t, err)
		assert.Len(t, phrases, 2)
	})
}

func TestSearchTopLevel(t *testing.T) {
	runTestsForAllStores(t, "SearchTopLevel", func(t *testing.T, db *DB) {
		text := storeText(t, db)
		_, err := db.Store(&Lexicon{Name: "Kepi", Lexemes: []*Lexeme{
			{Form: "ke", Gloss: "DEF"},
			{Form: "pi", Gloss: "dog"},
		}})
		require.NoError(t, err)

		texts, err := db.Search(ModelText, `"narrative" in tags`)
		require.NoError(t, err)
		require.Len(t, texts, 1)
		assert.Equal(t, text.ID, texts[0].(*Text).ID)

		texts, err = db.Search(ModelText, `abbreviation == "CAT"`)
		require.NoError(t, err)
		assert.Empty(t, texts)

		lexemes, err := db.Search(ModelLexeme, `gloss == "DEF"`)
		require.NoError(t, err)
		require.Len(t, lexemes, 1)
		assert.Equal(t, "ke", lexemes[0].(*Lexeme).Form)

		_, err = db.Search("Gloss", "")
		assert.ErrorIs(t, err, ErrUnknownModel)
		_, err = db.Search(ModelWord, `token ==`)
		assert.Error(t, err)
	})
}

func TestSearchTier(t *testing.T) {
	runTestsForAllStores(t, "SearchTier", func(t *testing.T, db *DB) {
		storeText(t, db)

		phrases, err := db.SearchTier("^wa", TierTranscription, "")
		require.NoError(t, err)
		require.Len(t, phrases, 1)
		assert.Equal(t, "wa wa", phrases[0].Transcription)

		phrases, err = db.SearchTier("run", TierTranslation, "")
		require.NoError(t, err)
		assert.Len(t, phrases, 2)

		phrases, err = db.SearchTier("^kɛ", TierTranscription, "ipa")
		require.NoError(t, err)
		require.Len(t, phrases, 1)
		assert.Equal(t, "ke-pi wa", phrases[0].Transcription)

		// The second phrase has no ipa transcription and is skipped.
		phrases, err = db.SearchTier(".*", TierTranscription, "ipa")
		require.NoError(t, err)
		assert.Len(t, phrases, 1)

		// Every transcription in the orthography is searched.
		extra := sampleText()
		extra.Phrases[0].Transcriptions = append(extra.Phrases[0].Transcriptions,
			Orthographic{Orthography: "ipa", Text: "mɔ wa"})
		_, err = db.Store(extra)
		require.NoError(t, err)
		phrases, err = db.SearchTier("^mɔ", TierTranscription, "ipa")
		require.NoError(t, err)
		require.Len(t, phrases, 1)
		assert.Equal(t, Breadcrumb{int(extra.ID), 0}, phrases[0].Breadcrumb)

		_, err = db.SearchTier("wa", "gloss", "")
		assert.ErrorIs(t, err, ErrUnknownTier)
		_, err = db.SearchTier("(", TierTranscription, "")
		assert.Error(t, err)
	})
}

func TestPhraseTier(t *testing.T) {
	p := sampleText().Phrases[0]
	assert.Equal(t, "ke-pi wa", p.Tier(TierTranscription, ""))
	assert.Equal(t, "kɛpi wa", p.Tier(TierTranscription, "ipa"))
	assert.Equal(t, "", p.Tier(TierTranscription, "latin"))
	assert.Equal(t, "the dog runs", p.Tier(TierTranslation, "ipa"))
	assert.Equal(t, "", p.Tier("notes", ""))

	p.Transcriptions = append(p.Transcriptions, Orthographic{Orthography: "ipa", Text: "kɛpi"})
	assert.Equal(t, "kɛpi wa", p.Tier(TierTranscription, "ipa"))
	assert.Equal(t, []string{"kɛpi wa", "kɛpi"}, p.Tiers(TierTranscription, "ipa"))
	assert.Equal(t, []string{"ke-pi wa"}, p.Tiers(TierTranscription, ""))
	assert.Nil(t, p.Tiers(TierTranscription, "latin"))
}
