// Package lexicon matches word forms against lexicon entries.
// A single Aho-Corasick automaton over every lexeme form serves as both
// the dictionary (exact lookup) and the scanner used to segment tokens
// into glossed morphemes.
package lexicon

import (
	"sort"
	"strings"
	"unicode"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/kittclouds/wugbot/internal/store"
)

// Unknown is the gloss given to a segment no lexeme covers.
const Unknown = "?"

// Normalize lowercases a form and strips morpheme boundary markers and
// surrounding space, so "-KE=" and "ke" compare equal.
func Normalize(form string) string {
	var out strings.Builder
	out.Grow(len(form))
	for _, ch := range strings.TrimSpace(form) {
		switch ch {
		case '-', '=', '.':
			continue
		case '’':
			// Curly apostrophe -> straight
			out.WriteRune('\'')
			continue
		}
		out.WriteRune(unicode.ToLower(ch))
	}
	return out.String()
}

// Entry is one lexeme of a compiled lexicon.
type Entry struct {
	Lexicon int64
	Index   int
	Lexeme  *store.Lexeme
}

// Matcher is a compiled set of lexicons.
type Matcher struct {
	// The AC automaton built from all normalized forms
	ac ahocorasick.AhoCorasick

	// Pattern index -> entries (homophones share a pattern)
	patternToEntries [][]Entry

	// Normalized form -> pattern index
	patternIndex map[string]int

	// All patterns in order (for AC builder)
	patterns []string
}

// Compile builds a matcher over every lexeme of the given lexicons.
// Lexemes with an empty form are skipped.
func Compile(lexicons ...*store.Lexicon) *Matcher {
	m := &Matcher{patternIndex: make(map[string]int)}

	for _, lex := range lexicons {
		for i, l := range lex.Lexemes {
			key := Normalize(l.Form)
			if key == "" {
				continue
			}
			entry := Entry{Lexicon: lex.ID, Index: i, Lexeme: l}
			if idx, exists := m.patternIndex[key]; exists {
				m.patternToEntries[idx] = append(m.patternToEntries[idx], entry)
				continue
			}
			m.patternIndex[key] = len(m.patterns)
			m.patterns = append(m.patterns, key)
			m.patternToEntries = append(m.patternToEntries, []Entry{entry})
		}
	}

	if len(m.patterns) > 0 {
		builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
			AsciiCaseInsensitive: true,
			MatchOnlyWholeWords:  false,
			MatchKind:            ahocorasick.LeftMostLongestMatch,
		})
		m.ac = builder.Build(m.patterns)
	}
	return m
}

// Len returns the number of distinct forms.
func (m *Matcher) Len() int { return len(m.patterns) }

// Lookup returns the entries whose form equals form after normalization.
func (m *Matcher) Lookup(form string) []Entry {
	idx, ok := m.patternIndex[Normalize(form)]
	if !ok {
		return nil
	}
	return m.patternToEntries[idx]
}

// Match is a lexeme form found in a scanned string. Offsets are byte
// offsets into the normalized string.
type Match struct {
	Start   int
	End     int
	Form    string
	Entries []Entry
}

// Scan finds leftmost-longest, non-overlapping lexeme forms in text.
func (m *Matcher) Scan(text string) []Match {
	if len(m.patterns) == 0 {
		return nil
	}
	normalized := Normalize(text)
	found := m.ac.FindAll(normalized)
	sort.Slice(found, func(i, j int) bool { return found[i].Start() < found[j].Start() })

	out := make([]Match, 0, len(found))
	end := 0
	for _, f := range found {
		if f.Start() < end {
			continue
		}
		end = f.End()
		out = append(out, Match{
			Start:   f.Start(),
			End:     f.End(),
			Form:    normalized[f.Start():f.End()],
			Entries: m.patternToEntries[f.Pattern()],
		})
	}
	return out
}

// Segment proposes a morpheme analysis of token: every matched lexeme
// becomes a glossed morpheme, and the stretches between matches become
// morphemes glossed Unknown. The first entry wins for homophones.
func (m *Matcher) Segment(token string) []*store.Morpheme {
	normalized := Normalize(token)
	if normalized == "" {
		return []*store.Morpheme{}
	}

	var out []*store.Morpheme
	pos := 0
	for _, match := range m.Scan(token) {
		if match.Start > pos {
			out = append(out, &store.Morpheme{Form: normalized[pos:match.Start], Gloss: Unknown})
		}
		best := match.Entries[0]
		out = append(out, &store.Morpheme{
			Form:    match.Form,
			Gloss:   best.Lexeme.Gloss,
			Lexicon: best.Lexicon,
		})
		pos = match.End
	}
	if pos < len(normalized) {
		out = append(out, &store.Morpheme{Form: normalized[pos:], Gloss: Unknown})
	}
	return out
}

// Gloss fills in a word's morphemes and gloss when they are empty.
// It reports how many morphemes were matched to a lexeme.
func (m *Matcher) Gloss(word *store.Word) int {
	if len(word.Morphemes) == 0 {
		word.Morphemes = m.Segment(word.Token)
	}
	matched := 0
	glosses := make([]string, 0, len(word.Morphemes))
	for _, morpheme := range word.Morphemes {
		if morpheme.Gloss == "" {
			if entries := m.Lookup(morpheme.Form); len(entries) > 0 {
				morpheme.Gloss = entries[0].Lexeme.Gloss
				morpheme.Lexicon = entries[0].Lexicon
			} else {
				morpheme.Gloss = Unknown
			}
		}
		if morpheme.Gloss != Unknown {
			matched++
		}
		glosses = append(glosses, morpheme.Gloss)
	}
	if word.Gloss == "" && len(glosses) > 0 {
		word.Gloss = strings.Join(glosses, "-")
	}
	return matched
}
