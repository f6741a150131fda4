package store

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Tiers searchable with SearchTier.
const (
	TierTranscription = "transcription"
	TierTranslation   = "translation"
)

// Criteria is a compiled boolean expression evaluated against the JSON
// fields of a record, e.g. `gloss == "DOG"` or `any(tags, # == "narrative")`.
type Criteria struct {
	source  string
	program *vm.Program
}

// CompileCriteria compiles src. An empty source matches everything.
func CompileCriteria(src string) (*Criteria, error) {
	c := &Criteria{source: strings.TrimSpace(src)}
	if c.source == "" {
		return c, nil
	}
	program, err := expr.Compile(c.source, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile criteria %q: %w", c.source, err)
	}
	c.program = program
	return c, nil
}

func (c *Criteria) String() string { return c.source }

// Match reports whether rec satisfies the criteria.
func (c *Criteria) Match(rec Record) (bool, error) {
	if c.program == nil {
		return true, nil
	}
	env, err := fieldsOf(rec)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(c.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate %q on %s: %w", c.source, rec.Model(), err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Search returns every record of model that matches criteria.
// Top-level models are scanned in their table. Phrases, words and
// morphemes are found by walking every text; lexemes by walking every
// lexicon. Nested results carry their breadcrumbs.
func (db *DB) Search(model, criteria string) ([]Record, error) {
	if _, ok := registry[model]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	crit, err := CompileCriteria(criteria)
	if err != nil {
		return nil, err
	}

	var out []Record
	keep := func(rec Record) error {
		ok, err := crit.Match(rec)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, rec)
		}
		return nil
	}

	var table Table
	var visit func(rec Record) error
	switch level := LevelOf(model); {
	case model == ModelLexeme:
		table = TableLexicons
		visit = func(rec Record) error {
			lex, ok := rec.(*Lexicon)
			if !ok {
				return nil
			}
			for _, l := range lex.Lexemes {
				if err := keep(l); err != nil {
					return err
				}
			}
			return nil
		}
	case level > LevelText:
		table = TableTexts
		visit = func(rec Record) error {
			text, ok := rec.(*Text)
			if !ok {
				return nil
			}
			return text.Walk(level, keep)
		}
	default:
		table, _ = TableFor(model)
		visit = keep
	}

	err = db.read(func(tx Tx) error {
		return tx.Scan(table, func(id int64, data []byte) error {
			rec, err := hydrateRow(id, data)
			if err != nil {
				return fmt.Errorf("%s/%d: %w", table, id, err)
			}
			return visit(rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Walk calls fn for every item at level inside t, in document order.
func (t *Text) Walk(level Level, fn func(Record) error) error {
	if level == LevelText {
		return fn(t)
	}
	for _, p := range t.Phrases {
		if level == LevelPhrase {
			if err := fn(p); err != nil {
				return err
			}
			continue
		}
		for _, w := range p.Words {
			if level == LevelWord {
				if err := fn(w); err != nil {
					return err
				}
				continue
			}
			for _, m := range w.Morphemes {
				if err := fn(m); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// SearchTier returns the phrases whose tier matches pattern. For the
// transcription tier a non-empty orthography searches the transcription
// written in that orthography instead of the default one.
func (db *DB) SearchTier(pattern, tier, orthography string) ([]*Phrase, error) {
	if tier != TierTranscription && tier != TierTranslation {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}

	var out []*Phrase
	err = db.read(func(tx Tx) error {
		return tx.Scan(TableTexts, func(id int64, data []byte) error {
			rec, err := hydrateRow(id, data)
			if err != nil {
				return fmt.Errorf("texts/%d: %w", id, err)
			}
			text, ok := rec.(*Text)
			if !ok {
				return nil
			}
			for _, p := range text.Phrases {
				for _, s := range p.Tiers(tier, orthography) {
					if s != "" && re.MatchString(s) {
						out = append(out, p)
						break
					}
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Tier returns the content of a phrase tier, or "" when it is absent. For
// an orthography with several transcriptions the first one is returned.
func (p *Phrase) Tier(tier, orthography string) string {
	switch tier {
	case TierTranslation:
		return p.Translation
	case TierTranscription:
		if orthography == "" {
			return p.Transcription
		}
		for _, t := range p.Transcriptions {
			if t.Orthography == orthography {
				return t.Text
			}
		}
	}
	return ""
}

// Tiers returns every non-empty value of a phrase tier. A phrase may hold
// several transcriptions in the same orthography.
func (p *Phrase) Tiers(tier, orthography string) []string {
	if tier != TierTranscription || orthography == "" {
		if s := p.Tier(tier, orthography); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, t := range p.Transcriptions {
		if t.Orthography == orthography && t.Text != "" {
			out = append(out, t.Text)
		}
	}
	return out
}
