// Package store provides persistence for Wugbot field data.
// Corpora, texts, lexicons and media live in flat key-value tables; phrases,
// words and morphemes live inside their text and are addressed by breadcrumb.
package store

import "encoding/json"

// Model names, persisted as the "model" field of every record.
const (
	ModelCorpus    = "Corpus"
	ModelDocument  = "Document"
	ModelLanguage  = "Language"
	ModelLexicon   = "Lexicon"
	ModelMediaFile = "MediaFile"
	ModelText      = "Text"
	ModelPhrase    = "Phrase"
	ModelWord      = "Word"
	ModelMorpheme  = "Morpheme"
	ModelLexeme    = "Lexeme"
)

// Table is the name of an object store.
type Table string

const (
	TableCorpora   Table = "corpora"
	TableDocuments Table = "documents"
	TableLanguages Table = "languages"
	TableLexicons  Table = "lexicons"
	TableMedia     Table = "media"
	TableTexts     Table = "texts"
)

// tableList maps each table to the model it holds.
var tableList = []struct {
	Name  Table
	Model string
}{
	{TableCorpora, ModelCorpus},
	{TableDocuments, ModelDocument},
	{TableLanguages, ModelLanguage},
	{TableLexicons, ModelLexicon},
	{TableMedia, ModelMediaFile},
	{TableTexts, ModelText},
}

// Tables returns the table list in creation order.
func Tables() []Table {
	out := make([]Table, len(tableList))
	for i, t := range tableList {
		out[i] = t.Name
	}
	return out
}

// TableFor returns the table that stores records of the given model.
// Nested models (Phrase, Word, Morpheme, Lexeme) have no table.
func TableFor(model string) (Table, bool) {
	for _, t := range tableList {
		if t.Model == model {
			return t.Name, true
		}
	}
	return "", false
}

// ModelFor returns the model stored in a table.
func ModelFor(table Table) (string, bool) {
	for _, t := range tableList {
		if t.Name == table {
			return t.Model, true
		}
	}
	return "", false
}

// Record is any hydrated domain object.
type Record interface {
	Model() string
}

// Identified records are stored at the top level of a table under an ID.
type Identified interface {
	Record
	RecordID() int64
	SetRecordID(id int64)
}

// Nested records live inside a text and are addressed by breadcrumb.
type Nested interface {
	Record
	Crumb() Breadcrumb
}

// =============================================================================
// Top-level records
// =============================================================================

// Corpus groups the resources of one research project by ID.
type Corpus struct {
	ID        int64   `json:"id,omitempty"`
	Name      string  `json:"name"`
	Documents []int64 `json:"documents"`
	Languages []int64 `json:"languages"`
	Lexicons  []int64 `json:"lexicons"`
	Media     []int64 `json:"media"`
	Texts     []int64 `json:"texts"`
}

// Members returns the IDs the corpus lists for a table.
func (c *Corpus) Members(table Table) []int64 {
	switch table {
	case TableDocuments:
		return c.Documents
	case TableLanguages:
		return c.Languages
	case TableLexicons:
		return c.Lexicons
	case TableMedia:
		return c.Media
	case TableTexts:
		return c.Texts
	}
	return nil
}

// AddMember appends id to the corpus list for table unless already present.
func (c *Corpus) AddMember(table Table, id int64) bool {
	list := c.Members(table)
	for _, existing := range list {
		if existing == id {
			return false
		}
	}
	list = append(list, id)
	switch table {
	case TableDocuments:
		c.Documents = list
	case TableLanguages:
		c.Languages = list
	case TableLexicons:
		c.Lexicons = list
	case TableMedia:
		c.Media = list
	case TableTexts:
		c.Texts = list
	default:
		return false
	}
	return true
}

// Document is a non-media attachment such as a field notebook scan.
type Document struct {
	ID       int64  `json:"id,omitempty"`
	Title    string `json:"title"`
	MIMEType string `json:"mimeType"`
	BlobKey  string `json:"blobKey"`
}

// Language describes an object or metalanguage.
type Language struct {
	ID            int64    `json:"id,omitempty"`
	Name          string   `json:"name"`
	Code          string   `json:"code"`
	Abbreviation  string   `json:"abbreviation"`
	Orthographies []string `json:"orthographies"`
}

// Lexeme is a dictionary entry. Morphemes point at lexemes for their gloss.
type Lexeme struct {
	Form     string `json:"form"`
	Gloss    string `json:"gloss"`
	Category string `json:"category"`
}

// Lexicon is an ordered list of lexemes for one language.
type Lexicon struct {
	ID       int64     `json:"id,omitempty"`
	Name     string    `json:"name"`
	Language int64     `json:"language,omitempty"`
	Lexemes  []*Lexeme `json:"lexemes"`
}

// MediaFile describes an audio or video recording. The bytes live in blob storage.
type MediaFile struct {
	ID       int64  `json:"id,omitempty"`
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
	BlobKey  string `json:"blobKey"`
	Checksum string `json:"checksum"`
}

// Text is a recorded or written text and owns its phrases.
type Text struct {
	ID           int64             `json:"id,omitempty"`
	Titles       map[string]string `json:"titles"`
	Abbreviation string            `json:"abbreviation"`
	Type         string            `json:"type"`
	Genre        string            `json:"genre"`
	Analyses     []string          `json:"analyses"`
	Media        []int64           `json:"media"`
	Persons      []string          `json:"persons"`
	Tags         []string          `json:"tags"`
	Custom       map[string]string `json:"custom"`
	Phrases      []*Phrase         `json:"phrases"`
}

// =============================================================================
// Nested records
// =============================================================================

// Orthographic is a transcription in a named orthography.
type Orthographic struct {
	Orthography string `json:"orthography"`
	Text        string `json:"text"`
}

// Phrase is one utterance of a text.
type Phrase struct {
	Breadcrumb     Breadcrumb     `json:"breadcrumb,omitempty"`
	Transcription  string         `json:"transcription"`
	Transcriptions []Orthographic `json:"transcriptions"`
	Translation    string         `json:"translation"`
	Tags           []string       `json:"tags"`
	Words          []*Word        `json:"words"`
}

// Word is one token of a phrase.
type Word struct {
	Breadcrumb Breadcrumb  `json:"breadcrumb,omitempty"`
	Token      string      `json:"token"`
	Gloss      string      `json:"gloss"`
	Morphemes  []*Morpheme `json:"morphemes"`
}

// Morpheme is one segment of a word. Lexicon names the lexicon its gloss came from.
type Morpheme struct {
	Breadcrumb Breadcrumb `json:"breadcrumb,omitempty"`
	Form       string     `json:"form"`
	Gloss      string     `json:"gloss"`
	Lexicon    int64      `json:"lexicon,omitempty"`
}

// =============================================================================
// Record plumbing
// =============================================================================

func (*Corpus) Model() string    { return ModelCorpus }
func (*Document) Model() string  { return ModelDocument }
func (*Language) Model() string  { return ModelLanguage }
func (*Lexicon) Model() string   { return ModelLexicon }
func (*Lexeme) Model() string    { return ModelLexeme }
func (*MediaFile) Model() string { return ModelMediaFile }
func (*Text) Model() string      { return ModelText }
func (*Phrase) Model() string    { return ModelPhrase }
func (*Word) Model() string      { return ModelWord }
func (*Morpheme) Model() string  { return ModelMorpheme }

func (c *Corpus) RecordID() int64    { return c.ID }
func (d *Document) RecordID() int64  { return d.ID }
func (l *Language) RecordID() int64  { return l.ID }
func (l *Lexicon) RecordID() int64   { return l.ID }
func (m *MediaFile) RecordID() int64 { return m.ID }
func (t *Text) RecordID() int64      { return t.ID }

func (c *Corpus) SetRecordID(id int64)    { c.ID = id }
func (d *Document) SetRecordID(id int64)  { d.ID = id }
func (l *Language) SetRecordID(id int64)  { l.ID = id }
func (l *Lexicon) SetRecordID(id int64)   { l.ID = id }
func (m *MediaFile) SetRecordID(id int64) { m.ID = id }
func (t *Text) SetRecordID(id int64)      { t.ID = id }

func (p *Phrase) Crumb() Breadcrumb   { return p.Breadcrumb }
func (w *Word) Crumb() Breadcrumb     { return w.Breadcrumb }
func (m *Morpheme) Crumb() Breadcrumb { return m.Breadcrumb }

// MarshalJSON methods stamp the model discriminator onto every record,
// nested ones included, so any persisted object can be hydrated alone.

func (c Corpus) MarshalJSON() ([]byte, error) {
	type plain Corpus
	return json.Marshal(struct {
		Model string `json:"model"`
		plain
	}{ModelCorpus, plain(c)})
}

func (d Document) MarshalJSON() ([]byte, error) {
	type plain Document
	return json.Marshal(struct {
		Model string `json:"model"`
		plain
	}{ModelDocument, plain(d)})
}

func (l Language) MarshalJSON() ([]byte, error) {
	type plain Language
	return json.Marshal(struct {
		Model string `json:"model"`
		plain
	}{ModelLanguage, plain(l)})
}

func (l Lexicon) MarshalJSON() ([]byte, error) {
	type plain Lexicon
	return json.Marshal(struct {
		Model string `json:"model"`
		plain
	}{ModelLexicon, plain(l)})
}

func (l Lexeme) MarshalJSON() ([]byte, error) {
	type plain Lexeme
	return json.Marshal(struct {
		Model string `json:"model"`
		plain
	}{ModelLexeme, plain(l)})
}

func (m MediaFile) MarshalJSON() ([]byte, error) {
	type plain MediaFile
	return json.Marshal(struct {
		Model string `json:"model"`
		plain
	}{ModelMediaFile, plain(m)})
}

func (t Text) MarshalJSON() ([]byte, error) {
	type plain Text
	return json.Marshal(struct {
		Model string `json:"model"`
		plain
	}{ModelText, plain(t)})
}

func (p Phrase) MarshalJSON() ([]byte, error) {
	type plain Phrase
	return json.Marshal(struct {
		Model string `json:"model"`
		plain
	}{ModelPhrase, plain(p)})
}

func (w Word) MarshalJSON() ([]byte, error) {
	type plain Word
	return json.Marshal(struct {
		Model string `json:"model"`
		plain
	}{ModelWord, plain(w)})
}

func (m Morpheme) MarshalJSON() ([]byte, error) {
	type plain Morpheme
	return json.Marshal(struct {
		Model string `json:"model"`
		plain
	}{ModelMorpheme, plain(m)})
}
