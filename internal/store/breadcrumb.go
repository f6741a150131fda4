package store

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Level is the depth a breadcrumb addresses.
type Level int

const (
	LevelText Level = iota + 1
	LevelPhrase
	LevelWord
	LevelMorpheme
)

func (l Level) String() string {
	switch l {
	case LevelText:
		return "text"
	case LevelPhrase:
		return "phrase"
	case LevelWord:
		return "word"
	case LevelMorpheme:
		return "morpheme"
	}
	return "level(" + strconv.Itoa(int(l)) + ")"
}

// Model returns the record model found at this level.
func (l Level) Model() string {
	switch l {
	case LevelText:
		return ModelText
	case LevelPhrase:
		return ModelPhrase
	case LevelWord:
		return ModelWord
	case LevelMorpheme:
		return ModelMorpheme
	}
	return ""
}

// LevelOf returns the breadcrumb level for a nested model, or 0.
func LevelOf(model string) Level {
	for l := LevelText; l <= LevelMorpheme; l++ {
		if l.Model() == model {
			return l
		}
	}
	return 0
}

// Breadcrumb is a positional address: a text ID followed by up to three
// 0-based indexes (phrase, word, morpheme). "3_0_2" is the third word of
// the first phrase of text 3.
type Breadcrumb []int

const crumbSep = "_"

// NewBreadcrumb builds and validates a breadcrumb.
func NewBreadcrumb(text int64, indexes ...int) (Breadcrumb, error) {
	b := make(Breadcrumb, 0, 1+len(indexes))
	b = append(b, int(text))
	b = append(b, indexes...)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// ParseBreadcrumb parses the "text_phrase_word_morpheme" string form.
func ParseBreadcrumb(s string) (Breadcrumb, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidBreadcrumb)
	}
	parts := strings.Split(s, crumbSep)
	b := make(Breadcrumb, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: segment %d is not an integer", ErrInvalidBreadcrumb, s, i)
		}
		b[i] = n
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// ParseBreadcrumbs parses several string breadcrumbs.
func ParseBreadcrumbs(ss ...string) ([]Breadcrumb, error) {
	out := make([]Breadcrumb, 0, len(ss))
	for _, s := range ss {
		b, err := ParseBreadcrumb(s)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Validate checks the length and bounds of b.
func (b Breadcrumb) Validate() error {
	if len(b) == 0 || len(b) > int(LevelMorpheme) {
		return fmt.Errorf("%w: %d segments", ErrInvalidBreadcrumb, len(b))
	}
	if b[0] < 1 {
		return fmt.Errorf("%w: text id %d", ErrInvalidBreadcrumb, b[0])
	}
	for _, i := range b[1:] {
		if i < 0 {
			return fmt.Errorf("%w: negative index in %s", ErrInvalidBreadcrumb, b)
		}
	}
	return nil
}

func (b Breadcrumb) String() string {
	parts := make([]string, len(b))
	for i, n := range b {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, crumbSep)
}

// Level returns how deep b points.
func (b Breadcrumb) Level() Level { return Level(len(b)) }

// TextID returns the ID of the text b lives in.
func (b Breadcrumb) TextID() int64 {
	if len(b) == 0 {
		return 0
	}
	return int64(b[0])
}

// Index returns the last position in b, or -1 for a text breadcrumb.
func (b Breadcrumb) Index() int {
	if len(b) < 2 {
		return -1
	}
	return b[len(b)-1]
}

// Parent returns the breadcrumb of the enclosing item, or nil for a text.
func (b Breadcrumb) Parent() Breadcrumb {
	if len(b) < 2 {
		return nil
	}
	return slices.Clone(b[:len(b)-1])
}

// Child returns the breadcrumb of the i-th child of b.
func (b Breadcrumb) Child(i int) Breadcrumb {
	out := make(Breadcrumb, len(b), len(b)+1)
	copy(out, b)
	return append(out, i)
}

// Equal reports whether b and o address the same position.
func (b Breadcrumb) Equal(o Breadcrumb) bool { return slices.Equal(b, o) }

// Compare orders breadcrumbs lexicographically; a prefix sorts first.
func (b Breadcrumb) Compare(o Breadcrumb) int { return slices.Compare(b, o) }

func (b Breadcrumb) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText treats an empty string as no breadcrumb; restamping fills
// it in from the item's position.
func (b *Breadcrumb) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*b = nil
		return nil
	}
	parsed, err := ParseBreadcrumb(string(data))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// =============================================================================
// Resolution against a text
// =============================================================================

// At returns the record b addresses inside t. Only the indexes of b are used.
func (t *Text) At(b Breadcrumb) (Record, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if b.Level() == LevelText {
		return t, nil
	}
	phrase, err := itemAt(t.Phrases, b[1], b)
	if err != nil {
		return nil, err
	}
	if b.Level() == LevelPhrase {
		return phrase, nil
	}
	word, err := itemAt(phrase.Words, b[2], b)
	if err != nil {
		return nil, err
	}
	if b.Level() == LevelWord {
		return word, nil
	}
	return itemAt(word.Morphemes, b[3], b)
}

// Put places rec at b, replacing the item there. An index equal to the
// current length appends. The text is restamped afterwards.
func (t *Text) Put(b Breadcrumb, rec Record) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if b.Level() < LevelPhrase {
		return fmt.Errorf("%w: %s addresses a text", ErrLevelMismatch, b)
	}
	if rec.Model() != b.Level().Model() {
		return fmt.Errorf("%w: %s at %s level", ErrLevelMismatch, rec.Model(), b.Level())
	}
	var err error
	switch item := rec.(type) {
	case *Phrase:
		t.Phrases, err = putAt(t.Phrases, b[1], item, b)
	case *Word:
		var phrase *Phrase
		if phrase, err = itemAt(t.Phrases, b[1], b); err == nil {
			phrase.Words, err = putAt(phrase.Words, b[2], item, b)
		}
	case *Morpheme:
		var word *Word
		if word, err = t.wordAt(b); err == nil {
			word.Morphemes, err = putAt(word.Morphemes, b[3], item, b)
		}
	}
	if err != nil {
		return err
	}
	t.Restamp()
	return nil
}

// RemoveAt splices the item at b out of its parent and restamps the text.
func (t *Text) RemoveAt(b Breadcrumb) error {
	if err := b.Validate(); err != nil {
		return err
	}
	var err error
	switch b.Level() {
	case LevelText:
		return fmt.Errorf("%w: cannot splice a text out of itself", ErrLevelMismatch)
	case LevelPhrase:
		t.Phrases, err = cutAt(t.Phrases, b[1], b)
	case LevelWord:
		var phrase *Phrase
		if phrase, err = itemAt(t.Phrases, b[1], b); err == nil {
			phrase.Words, err = cutAt(phrase.Words, b[2], b)
		}
	case LevelMorpheme:
		var word *Word
		if word, err = t.wordAt(b); err == nil {
			word.Morphemes, err = cutAt(word.Morphemes, b[3], b)
		}
	}
	if err != nil {
		return err
	}
	t.Restamp()
	return nil
}

func (t *Text) wordAt(b Breadcrumb) (*Word, error) {
	phrase, err := itemAt(t.Phrases, b[1], b)
	if err != nil {
		return nil, err
	}
	return itemAt(phrase.Words, b[2], b)
}

func itemAt[T any](items []T, i int, b Breadcrumb) (T, error) {
	if i < 0 || i >= len(items) {
		var zero T
		return zero, fmt.Errorf("%w: %s (index %d of %d)", ErrOutOfRange, b, i, len(items))
	}
	return items[i], nil
}

func putAt[T any](items []T, i int, v T, b Breadcrumb) ([]T, error) {
	switch {
	case i >= 0 && i < len(items):
		items[i] = v
		return items, nil
	case i == len(items):
		return append(items, v), nil
	}
	return items, fmt.Errorf("%w: %s (index %d of %d)", ErrOutOfRange, b, i, len(items))
}

func cutAt[T any](items []T, i int, b Breadcrumb) ([]T, error) {
	if i < 0 || i >= len(items) {
		return items, fmt.Errorf("%w: %s (index %d of %d)", ErrOutOfRange, b, i, len(items))
	}
	return slices.Delete(items, i, i+1), nil
}

// =============================================================================
// Restamping
// =============================================================================

// Restamp recomputes every breadcrumb below t from positions. A text that
// has not been stored yet has no ID, so its descendants get no breadcrumbs.
func (t *Text) Restamp() {
	for p, phrase := range t.Phrases {
		if phrase == nil {
			continue
		}
		if t.ID < 1 {
			phrase.Breadcrumb = nil
		} else {
			phrase.Breadcrumb = Breadcrumb{int(t.ID), p}
		}
		phrase.Restamp()
	}
}

// Restamp recomputes the breadcrumbs of p's words and morphemes from p's own.
func (p *Phrase) Restamp() {
	for w, word := range p.Words {
		if word == nil {
			continue
		}
		word.Breadcrumb = childCrumb(p.Breadcrumb, w)
		word.Restamp()
	}
}

// Restamp recomputes the breadcrumbs of w's morphemes from w's own.
func (w *Word) Restamp() {
	for m, morpheme := range w.Morphemes {
		if morpheme == nil {
			continue
		}
		morpheme.Breadcrumb = childCrumb(w.Breadcrumb, m)
	}
}

func childCrumb(parent Breadcrumb, i int) Breadcrumb {
	if len(parent) == 0 {
		return nil
	}
	return parent.Child(i)
}
