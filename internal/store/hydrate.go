package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// registry builds an empty record for each persisted model.
var registry = map[string]func() Record{
	ModelCorpus:    func() Record { return &Corpus{} },
	ModelDocument:  func() Record { return &Document{} },
	ModelLanguage:  func() Record { return &Language{} },
	ModelLexicon:   func() Record { return &Lexicon{} },
	ModelLexeme:    func() Record { return &Lexeme{} },
	ModelMediaFile: func() Record { return &MediaFile{} },
	ModelText:      func() Record { return &Text{} },
	ModelPhrase:    func() Record { return &Phrase{} },
	ModelWord:      func() Record { return &Word{} },
	ModelMorpheme:  func() Record { return &Morpheme{} },
}

// New returns an empty, defaulted record for model.
func New(model string) (Record, error) {
	newRecord, ok := registry[model]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	rec := newRecord()
	applyDefaults(rec)
	return rec, nil
}

// Hydrate rebuilds a typed record from persisted JSON using its "model" field.
func Hydrate(data []byte) (Record, error) {
	var head struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	rec, err := New(head.Model)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Model, err)
	}
	applyDefaults(rec)
	return rec, nil
}

// HydrateAs hydrates data and asserts the result type.
func HydrateAs[T Record](data []byte) (T, error) {
	var zero T
	rec, err := Hydrate(data)
	if err != nil {
		return zero, err
	}
	typed, ok := rec.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %s", ErrUnknownModel, rec.Model())
	}
	return typed, nil
}

// Encode applies defaults to rec and serializes it with its model field.
func Encode(rec Record) ([]byte, error) {
	applyDefaults(rec)
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Model(), err)
	}
	return data, nil
}

// hydrateRow hydrates a stored row and restores its ID from the table key.
func hydrateRow(id int64, data []byte) (Record, error) {
	rec, err := Hydrate(data)
	if err != nil {
		return nil, err
	}
	if ident, ok := rec.(Identified); ok {
		ident.SetRecordID(id)
	}
	if t, ok := rec.(*Text); ok {
		t.Restamp()
	}
	return rec, nil
}

// =============================================================================
// Defaults
// =============================================================================

func applyDefaults(rec Record) {
	switch r := rec.(type) {
	case *Corpus:
		r.Documents = orEmpty(r.Documents)
		r.Languages = orEmpty(r.Languages)
		r.Lexicons = orEmpty(r.Lexicons)
		r.Media = orEmpty(r.Media)
		r.Texts = orEmpty(r.Texts)
	case *Language:
		r.Orthographies = orEmpty(r.Orthographies)
	case *Lexicon:
		r.Lexemes = compact(r.Lexemes)
	case *Text:
		if r.Titles == nil {
			r.Titles = map[string]string{"en": ""}
		}
		if r.Custom == nil {
			r.Custom = map[string]string{}
		}
		r.Analyses = orEmpty(r.Analyses)
		r.Media = orEmpty(r.Media)
		r.Persons = orEmpty(r.Persons)
		r.Tags = orEmpty(r.Tags)
		r.Phrases = compact(r.Phrases)
		for _, p := range r.Phrases {
			applyDefaults(p)
		}
	case *Phrase:
		r.Transcriptions = orEmpty(r.Transcriptions)
		r.Tags = orEmpty(r.Tags)
		r.Words = compact(r.Words)
		for _, w := range r.Words {
			applyDefaults(w)
		}
	case *Word:
		r.Morphemes = compact(r.Morphemes)
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// compact drops nil entries and never returns nil.
func compact[T any](s []*T) []*T {
	out := s[:0]
	for _, v := range s {
		if v != nil {
			out = append(out, v)
		}
	}
	if out == nil {
		return []*T{}
	}
	return out
}

// =============================================================================
// Generic behavior
// =============================================================================

// Matches returns the record's top-level string values that contain term,
// ordered by field name.
func Matches(rec Record, term string) ([]string, error) {
	fields, err := fieldsOf(rec)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		if k == "model" || k == "breadcrumb" {
			continue
		}
		if s, ok := fields[k].(string); ok && strings.Contains(s, term) {
			out = append(out, s)
		}
	}
	return out, nil
}

// fieldsOf returns the JSON object form of rec.
func fieldsOf(rec Record) (map[string]any, error) {
	data, err := Encode(rec)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode %s fields: %w", rec.Model(), err)
	}
	return fields, nil
}

// Collection is an ordered list of hydrated records of one type.
type Collection[T Record] []T

// CollectionOf converts hydrated records into a typed collection.
func CollectionOf[T Record](records []Record) (Collection[T], error) {
	out := make(Collection[T], 0, len(records))
	for _, rec := range records {
		typed, ok := rec.(T)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected %s", ErrMixedModels, rec.Model())
		}
		out = append(out, typed)
	}
	return out, nil
}

// IDs returns the table IDs of identified members, in order.
func (c Collection[T]) IDs() []int64 {
	ids := make([]int64, 0, len(c))
	for _, rec := range c {
		if ident, ok := any(rec).(Identified); ok {
			ids = append(ids, ident.RecordID())
		}
	}
	return ids
}

// Filter returns the members for which keep returns true.
func (c Collection[T]) Filter(keep func(T) bool) Collection[T] {
	out := make(Collection[T], 0, len(c))
	for _, rec := range c {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Find returns the first member for which match returns true.
func (c Collection[T]) Find(match func(T) bool) (T, bool) {
	for _, rec := range c {
		if match(rec) {
			return rec, true
		}
	}
	var zero T
	return zero, false
}

// Records returns the members as plain records.
func (c Collection[T]) Records() []Record {
	out := make([]Record, len(c))
	for i, rec := range c {
		out[i] = rec
	}
	return out
}
