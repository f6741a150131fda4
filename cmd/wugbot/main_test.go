package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/wugbot/internal/store"
)

const fixture = `{
  "texts": [{
    "model": "Text",
    "titles": {"en": "The Dog"},
    "tags": ["narrative"],
    "phrases": [{
      "transcription": "kepis wa",
      "translation": "the dogs bark",
      "words": [
        {"token": "kepis"},
        {"token": "wa", "gloss": "bark"}
      ]
    }, {
      "transcription": "mo wa",
      "translation": "it barks"
    }]
  }],
  "lexicons": [{
    "model": "Lexicon",
    "name": "Kepi",
    "lexemes": [
      {"form": "ke-", "gloss": "DEF", "category": "det"},
      {"form": "pi", "gloss": "dog", "category": "n"},
      {"form": "-s", "gloss": "PL", "category": "suffix"}
    ]
  }]
}`

// workspace writes a config pointing into a temp dir and returns its path.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("WUGBOT_DB", "")
	t.Setenv("WUGBOT_BACKEND", "")
	t.Setenv("WUGBOT_MEDIA_DIR", "")
	t.Setenv("WUGBOT_INDEX_DIR", "")
	t.Setenv("WUGBOT_LOG_LEVEL", "")

	cfg := fmt.Sprintf(`database:
  backend: sqlite
  dsn: %s
media:
  dir: %s
index:
  dir: %s
logging:
  level: error
`, filepath.Join(dir, "wugbot.db"), filepath.Join(dir, "media"), filepath.Join(dir, "index"))
	path := filepath.Join(dir, "wugbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

// wugbot runs one command line against the workspace config.
func wugbot(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(append([]string{"--config", cfg}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func mustRun(t *testing.T, cfg string, args ...string) string {
	t.Helper()
	out, err := wugbot(t, cfg, args...)
	require.NoError(t, err, "wugbot %v", args)
	return out
}

func seeded(t *testing.T) string {
	t.Helper()
	cfg := workspace(t)
	file := filepath.Join(filepath.Dir(cfg), "fixture.json")
	require.NoError(t, os.WriteFile(file, []byte(fixture), 0644))
	assert.Equal(t, "imported 2 records\n", mustRun(t, cfg, "import", file))
	return cfg
}

func TestInitWritesConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WUGBOT_DB", filepath.Join(dir, "w.db"))
	cfg := filepath.Join(dir, "conf", "wugbot.yaml")

	out := mustRun(t, cfg, "init")
	assert.Contains(t, out, "schema v1")
	assert.FileExists(t, cfg)
	assert.FileExists(t, filepath.Join(dir, "w.db"))
}

func TestImportGetExport(t *testing.T) {
	cfg := seeded(t)

	var texts []map[string]any
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "get", "texts", "1")), &texts))
	require.Len(t, texts, 1)
	assert.Equal(t, "Text", texts[0]["model"])
	assert.Equal(t, float64(1), texts[0]["id"])

	assert.Equal(t, "[]\n", mustRun(t, cfg, "get", "media"))

	_, err := wugbot(t, cfg, "get", "texts", "9")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = wugbot(t, cfg, "get", "notes")
	assert.ErrorIs(t, err, store.ErrUnknownTable)

	var exp store.Export
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "export")), &exp))
	assert.Len(t, exp[store.TableTexts], 1)
	assert.Len(t, exp[store.TableLexicons], 1)
	assert.Empty(t, exp[store.TableCorpora])
}

func TestUpdate(t *testing.T) {
	cfg := seeded(t)

	out := mustRun(t, cfg, "update", "texts", "genre", "folktale")
	assert.Contains(t, out, `"genre": "folktale"`)

	out = mustRun(t, cfg, "update", "--push", "texts", "tags", "elicited", "1")
	assert.Contains(t, out, `"elicited"`)
	assert.Contains(t, out, `"narrative"`)

	_, err := wugbot(t, cfg, "update", "texts", "id", "5", "1")
	assert.ErrorIs(t, err, store.ErrImmutableField)
}

func TestBreadcrumbs(t *testing.T) {
	cfg := seeded(t)

	out := mustRun(t, cfg, "crumb", "1_0_1")
	assert.Contains(t, out, `"token": "wa"`)
	assert.Contains(t, out, `"breadcrumb": "1_0_1"`)

	out = mustRun(t, cfg, "crumb", "1_1", "--set", "translation", "--value", "it barks loudly")
	assert.Contains(t, out, `"translation": "it barks loudly"`)

	assert.Equal(t, "removed 1 items\n", mustRun(t, cfg, "rm-crumb", "1_0"))
	out = mustRun(t, cfg, "crumb", "1_0")
	assert.Contains(t, out, `"transcription": "mo wa"`)

	_, err := wugbot(t, cfg, "crumb", "1_5")
	assert.ErrorIs(t, err, store.ErrOutOfRange)
	_, err = wugbot(t, cfg, "crumb", "x")
	assert.ErrorIs(t, err, store.ErrInvalidBreadcrumb)
}

func TestSearchGrepRank(t *testing.T) {
	cfg := seeded(t)

	out := mustRun(t, cfg, "search", "Word", `gloss == "bark"`)
	assert.Contains(t, out, `"breadcrumb": "1_0_1"`)
	assert.NotContains(t, out, "kepis")

	assert.Equal(t, "[]\n", mustRun(t, cfg, "search", "Text", `"elicited" in tags`))
	_, err := wugbot(t, cfg, "search", "Gloss")
	assert.ErrorIs(t, err, store.ErrUnknownModel)

	assert.Equal(t, "1_0\tkepis wa\n", mustRun(t, cfg, "grep", "^kep"))
	assert.Equal(t, "1_1\tit barks\n", mustRun(t, cfg, "grep", "--tier", "translation", "^it"))

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "rank", "dogs")), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "1_0", results[0]["breadcrumb"])
	assert.Equal(t, "kepis wa", results[0]["transcription"])
	assert.Greater(t, results[0]["score"], float64(0))
}

func TestGloss(t *testing.T) {
	cfg := seeded(t)

	assert.Equal(t, "kepis\tDEF-dog-PL\nmo\t?\n", mustRun(t, cfg, "gloss", "1", "kepis", "mo"))

	assert.Equal(t, "glossed 1 of 2 words\n", mustRun(t, cfg, "gloss", "1", "--text", "1"))
	out := mustRun(t, cfg, "crumb", "1_0_0")
	assert.Contains(t, out, `"gloss": "DEF-dog-PL"`)

	_, err := wugbot(t, cfg, "gloss", "7", "kepis")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSimilar(t *testing.T) {
	cfg := seeded(t)

	out := mustRun(t, cfg, "similar", "1", "pi", "-k", "1")
	assert.Equal(t, "pi\tdog\tn\n", out)
	assert.FileExists(t, filepath.Join(filepath.Dir(cfg), "index", "lexicon-1.bin"))

	// The saved index is reused, and --rebuild starts over.
	assert.Equal(t, out, mustRun(t, cfg, "similar", "1", "pi", "-k", "1"))
	assert.Equal(t, out, mustRun(t, cfg, "similar", "1", "pi", "-k", "1", "--rebuild"))
	assert.FileExists(t, filepath.Join(filepath.Dir(cfg), "index", "lexicon-1.sum"))
}

func TestSimilarAfterLexiconEdit(t *testing.T) {
	cfg := seeded(t)
	assert.Equal(t, "pi\tdog\tn\n", mustRun(t, cfg, "similar", "1", "pi", "-k", "1"))

	// Moving pi to the front shifts every lexeme position.
	mustRun(t, cfg, "update", "lexicons", "lexemes",
		`[{"form": "pi", "gloss": "dog", "category": "n"}, {"form": "ke-", "gloss": "DEF", "category": "det"}]`, "1")
	assert.Equal(t, "pi\tdog\tn\n", mustRun(t, cfg, "similar", "1", "pi", "-k", "1"))

	mustRun(t, cfg, "update", "--push", "lexicons", "lexemes", `{"form": "mo", "gloss": "3SG", "category": "pro"}`, "1")
	assert.Equal(t, "mo\t3SG\tpro\n", mustRun(t, cfg, "similar", "1", "mo", "-k", "1"))
}

func TestMedia(t *testing.T) {
	cfg := workspace(t)
	dir := filepath.Dir(cfg)
	wav := filepath.Join(dir, "session.wav")
	require.NoError(t, os.WriteFile(wav, append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...), 0644))
	pdf := filepath.Join(dir, "notes.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0644))

	out := mustRun(t, cfg, "media", "add", wav)
	assert.Contains(t, out, "session.wav")
	out = mustRun(t, cfg, "media", "add", "--document", pdf)
	assert.Contains(t, out, "application/pdf")

	var files []map[string]any
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "get", "media")), &files))
	require.Len(t, files, 1)
	assert.Equal(t, "session.wav", files[0]["name"])

	assert.Contains(t, mustRun(t, cfg, "media", "verify"), "ok\t1\tsession.wav")

	entries, err := os.ReadDir(filepath.Join(dir, "media"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = wugbot(t, cfg, "media", "add", filepath.Join(dir, "missing.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReset(t *testing.T) {
	cfg := seeded(t)

	_, err := wugbot(t, cfg, "reset")
	assert.ErrorContains(t, err, "--force")
	assert.Contains(t, mustRun(t, cfg, "get", "texts"), "The Dog")

	assert.Equal(t, "database reset\n", mustRun(t, cfg, "reset", "--force"))
	assert.Equal(t, "[]\n", mustRun(t, cfg, "get", "texts"))
}

func TestMemoryBackend(t *testing.T) {
	cfg := workspace(t)
	t.Setenv("WUGBOT_BACKEND", "memory")

	out := mustRun(t, cfg, "init")
	assert.Contains(t, out, "initialized memory")
	assert.Equal(t, "[]\n", mustRun(t, cfg, "get", "texts"))
}
