// Package rank scores phrases against free-text queries with BM25F over
// the transcription and translation fields.
package rank

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/kittclouds/wugbot/internal/store"
)

// Field names a scored phrase field.
type Field string

const (
	FieldTranscription Field = "transcription"
	FieldTranslation   Field = "translation"
)

var fields = []Field{FieldTranscription, FieldTranslation}

// ErrNoBreadcrumb is returned when indexing a phrase that has no address.
var ErrNoBreadcrumb = errors.New("phrase has no breadcrumb")

// Config holds scoring parameters
type Config struct {
	K1           float64           `json:"k1" yaml:"k1"`
	B            float64           `json:"b" yaml:"b"`
	FieldWeights map[Field]float64 `json:"fieldWeights" yaml:"field_weights"`
}

func DefaultConfig() Config {
	return Config{
		K1: 1.2,
		B:  0.75,
		FieldWeights: map[Field]float64{
			FieldTranscription: 1.0,
			FieldTranslation:   0.8,
		},
	}
}

// Result is a scored phrase.
type Result struct {
	Breadcrumb store.Breadcrumb `json:"breadcrumb"`
	Score      float64          `json:"score"`
}

type document struct {
	crumb   store.Breadcrumb
	lengths map[Field]int
	terms   []string
}

// Index is an in-memory inverted index of phrases keyed by breadcrumb.
type Index struct {
	Config Config

	mu   sync.RWMutex
	docs map[string]*document
	// term -> crumb -> field -> tf
	postings map[string]map[string]map[Field]int
	totals   map[Field]int
}

func NewIndex(cfg Config) *Index {
	return &Index{
		Config:   cfg,
		docs:     make(map[string]*document),
		postings: make(map[string]map[string]map[Field]int),
		totals:   make(map[Field]int),
	}
}

// Tokenize lowercases s and splits it on anything that is not a letter,
// digit or apostrophe. Morpheme boundaries ("ke-pi") split too.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
	})
}

// Len returns the number of indexed phrases.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// AddPhrase indexes p under its breadcrumb, replacing any earlier entry.
func (idx *Index) AddPhrase(p *store.Phrase) error {
	if len(p.Breadcrumb) == 0 {
		return ErrNoBreadcrumb
	}
	if err := p.Breadcrumb.Validate(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.add(p)
	return nil
}

// AddText replaces every indexed phrase of t with its current phrases.
func (idx *Index) AddText(t *store.Text) error {
	for i, p := range t.Phrases {
		if len(p.Breadcrumb) == 0 {
			return fmt.Errorf("text %d phrase %d: %w", t.ID, i, ErrNoBreadcrumb)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeText(t.ID)
	for _, p := range t.Phrases {
		idx.add(p)
	}
	return nil
}

// Remove drops the phrase at crumb. It reports whether it was indexed.
func (idx *Index) Remove(crumb store.Breadcrumb) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.remove(crumb.String())
}

// RemoveText drops every phrase of the text with the given id.
func (idx *Index) RemoveText(id int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeText(id)
}

func (idx *Index) removeText(id int64) {
	for key, doc := range idx.docs {
		if doc.crumb.TextID() == id {
			idx.remove(key)
		}
	}
}

func (idx *Index) add(p *store.Phrase) {
	key := p.Breadcrumb.String()
	idx.remove(key)

	doc := &document{
		crumb:   append(store.Breadcrumb(nil), p.Breadcrumb...),
		lengths: make(map[Field]int, len(fields)),
	}
	values := map[Field]string{
		FieldTranscription: p.Transcription,
		FieldTranslation:   p.Translation,
	}
	for _, field := range fields {
		tokens := Tokenize(values[field])
		doc.lengths[field] = len(tokens)
		idx.totals[field] += len(tokens)
		for _, term := range tokens {
			docs := idx.postings[term]
			if docs == nil {
				docs = make(map[string]map[Field]int)
				idx.postings[term] = docs
			}
			tf := docs[key]
			if tf == nil {
				tf = make(map[Field]int, len(fields))
				docs[key] = tf
				doc.terms = append(doc.terms, term)
			}
			tf[field]++
		}
	}
	idx.docs[key] = doc
}

func (idx *Index) remove(key string) bool {
	doc, ok := idx.docs[key]
	if !ok {
		return false
	}
	for field, n := range doc.lengths {
		idx.totals[field] -= n
	}
	for _, term := range doc.terms {
		delete(idx.postings[term], key)
		if len(idx.postings[term]) == 0 {
			delete(idx.postings, term)
		}
	}
	delete(idx.docs, key)
	return true
}

// Search returns phrases matching any query term, best first. Equal scores
// keep document order. A limit of zero or less returns every match.
func (idx *Index) Search(query string, limit int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	terms := Tokenize(query)
	seen := make(map[string]bool, len(terms))
	scores := make(map[string]float64)
	total := float64(len(idx.docs))

	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		docs := idx.postings[term]
		if len(docs) == 0 {
			continue
		}
		idf := CalculateIDF(total, len(docs))
		for key, tf := range docs {
			scores[key] += idx.scoreTermBM25F(idx.docs[key], tf, idf)
		}
	}

	results := make([]Result, 0, len(scores))
	for key, score := range scores {
		if score > 0 {
			results = append(results, Result{Breadcrumb: idx.docs[key].crumb, Score: score})
		}
	}

	// Sort DESC
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Breadcrumb.Compare(results[j].Breadcrumb) < 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (idx *Index) scoreTermBM25F(doc *document, tf map[Field]int, idf float64) float64 {
	weightedFreq := 0.0
	for field, n := range tf {
		weight, ok := idx.Config.FieldWeights[field]
		if !ok {
			weight = 1.0
		}
		avgLen := float64(idx.totals[field]) / float64(len(idx.docs))
		weightedFreq += weight * NormalizedTermFrequency(n, doc.lengths[field], avgLen, idx.Config.B)
	}
	return idf * Saturate(weightedFreq, idx.Config.K1)
}
