package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	"go.uber.org/zap"
)

// SchemaVersion is bumped whenever the table list changes. Opening an older
// database exports it, recreates the tables and re-imports the records.
const SchemaVersion = 1

const metaVersion = "version"

// DB is the Wugbot database: typed records over a Backend, with change
// notification after every committed write.
type DB struct {
	backend   Backend
	log       *zap.Logger
	observers ObserverList
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(db *DB) {
		if log != nil {
			db.log = log
		}
	}
}

// Open wraps backend and brings its tables up to SchemaVersion.
func Open(backend Backend, opts ...Option) (*DB, error) {
	db := &DB{backend: backend, log: zap.NewNop()}
	for _, opt := range opts {
		opt(db)
	}
	if err := db.createTables(); err != nil {
		return nil, err
	}
	return db, nil
}

// Close closes the backend.
func (db *DB) Close() error {
	return db.backend.Close()
}

// Observers returns the list notified after each committed write.
func (db *DB) Observers() *ObserverList {
	return &db.observers
}

// write runs fn in a writable transaction and delivers the events it
// emitted once the transaction has committed.
func (db *DB) write(fn func(tx Tx, emit func(Event)) error) error {
	var events []Event
	err := db.backend.Transact(true, func(tx Tx) error {
		events = events[:0]
		return fn(tx, func(e Event) { events = append(events, e) })
	})
	if err != nil {
		return err
	}
	for _, e := range events {
		db.observers.Notify(e.Action, e)
	}
	return nil
}

func (db *DB) read(fn func(tx Tx) error) error {
	return db.backend.Transact(false, fn)
}

func checkTableName(table Table) (string, error) {
	model, ok := ModelFor(table)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return model, nil
}

// =============================================================================
// Tables and upgrades
// =============================================================================

func (db *DB) createTables() error {
	return db.write(func(tx Tx, _ func(Event)) error {
		version := 0
		raw, ok, err := tx.Meta(metaVersion)
		if err != nil {
			return err
		}
		if ok {
			if version, err = strconv.Atoi(raw); err != nil {
				return fmt.Errorf("bad schema version %q: %w", raw, err)
			}
		}

		existing, err := tx.Tables()
		if err != nil {
			return err
		}
		if version > SchemaVersion {
			return fmt.Errorf("%w: database schema v%d is newer than v%d", ErrSchemaVersion, version, SchemaVersion)
		}
		if version < SchemaVersion && len(existing) > 0 {
			if err := db.upgrade(tx, version, existing); err != nil {
				return err
			}
		} else {
			for _, t := range Tables() {
				if err := tx.CreateTable(t); err != nil {
					return err
				}
			}
		}
		return tx.SetMeta(metaVersion, strconv.Itoa(SchemaVersion))
	})
}

// upgrade exports the old tables, recreates the current table list and
// restores every record of a table that still exists.
func (db *DB) upgrade(tx Tx, from int, existing []Table) error {
	db.log.Info("upgrading database",
		zap.Int("from", from),
		zap.Int("to", SchemaVersion),
		zap.Int("tables", len(existing)))

	old := make(Export, len(existing))
	for _, t := range existing {
		if _, ok := ModelFor(t); ok {
			rows, err := exportTable(tx, t)
			if err != nil {
				return fmt.Errorf("export %s: %w", t, err)
			}
			old[t] = rows
		} else {
			db.log.Warn("dropping unknown table", zap.String("table", string(t)))
		}
		if err := tx.DropTable(t); err != nil {
			return err
		}
	}
	for _, t := range Tables() {
		if err := tx.CreateTable(t); err != nil {
			return err
		}
	}
	_, err := db.importTx(tx, old)
	return err
}

// =============================================================================
// Store
// =============================================================================

// Store adds or updates records, which must all share one model.
// Top-level records are written to their table; new ones are assigned IDs,
// which are set on the records. Phrases, words and morphemes are written
// into their text at their breadcrumb, replacing the item there or
// appending when the index equals the current length.
// The returned IDs are the record IDs, or for nested records the IDs of the
// texts that were written.
func (db *DB) Store(records ...Record) ([]int64, error) {
	if len(records) == 0 {
		return nil, nil
	}
	model := records[0].Model()
	for _, rec := range records[1:] {
		if rec.Model() != model {
			return nil, fmt.Errorf("%w: %s and %s", ErrMixedModels, model, rec.Model())
		}
	}

	if table, ok := TableFor(model); ok {
		return db.storeTop(table, records)
	}
	if LevelOf(model) > LevelText {
		return db.storeNested(records)
	}
	if model == ModelLexeme {
		return nil, fmt.Errorf("%w: lexemes are stored through their lexicon", ErrLevelMismatch)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
}

func (db *DB) storeTop(table Table, records []Record) ([]int64, error) {
	ids := make([]int64, len(records))
	var assigned []Identified

	err := db.write(func(tx Tx, emit func(Event)) error {
		var added, updated []int64
		for i, rec := range records {
			ident, ok := rec.(Identified)
			if !ok {
				return fmt.Errorf("%w: %s has no id", ErrUnknownModel, rec.Model())
			}
			id := ident.RecordID()
			isNew := id == 0
			if !isNew {
				_, err := tx.Get(table, id)
				switch {
				case errors.Is(err, ErrNotFound):
					isNew = true
				case err != nil:
					return err
				}
			}
			if id == 0 {
				data, err := Encode(rec)
				if err != nil {
					return err
				}
				if id, err = tx.Put(table, 0, rec.Model(), data); err != nil {
					return err
				}
				ident.SetRecordID(id)
				assigned = append(assigned, ident)
			}
			// Drop nil items before positions are stamped.
			applyDefaults(rec)
			if t, ok := rec.(*Text); ok {
				t.Restamp()
			}
			data, err := Encode(rec)
			if err != nil {
				return err
			}
			if _, err := tx.Put(table, id, rec.Model(), data); err != nil {
				return err
			}
			ids[i] = id
			if isNew {
				added = append(added, id)
			} else {
				updated = append(updated, id)
			}
		}
		if len(added) > 0 {
			emit(Event{Action: ActionAdd, Table: table, IDs: added})
		}
		if len(updated) > 0 {
			emit(Event{Action: ActionUpdate, Table: table, IDs: updated})
		}
		return nil
	})
	if err != nil {
		for _, ident := range assigned {
			ident.SetRecordID(0)
			if t, ok := ident.(*Text); ok {
				t.Restamp()
			}
		}
		return nil, err
	}
	db.log.Debug("stored records", zap.String("table", string(table)), zap.Int64s("ids", ids))
	return ids, nil
}

func (db *DB) storeNested(records []Record) ([]int64, error) {
	var textIDs []int64
	err := db.write(func(tx Tx, emit func(Event)) error {
		texts := newTextCache(tx)
		var added, updated []Breadcrumb
		for _, rec := range records {
			nested, ok := rec.(Nested)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownModel, rec.Model())
			}
			crumb := nested.Crumb()
			if err := crumb.Validate(); err != nil {
				return fmt.Errorf("store %s: %w", rec.Model(), err)
			}
			text, err := texts.load(crumb.TextID())
			if err != nil {
				return err
			}
			_, err = text.At(crumb)
			appended := errors.Is(err, ErrOutOfRange)
			applyDefaults(rec)
			if err := text.Put(crumb, rec); err != nil {
				return err
			}
			if appended {
				added = append(added, crumb)
			} else {
				updated = append(updated, crumb)
			}
		}
		if err := texts.flush(); err != nil {
			return err
		}
		textIDs = texts.ids()
		if len(added) > 0 {
			emit(Event{Action: ActionAdd, Table: TableTexts, IDs: textIDs, Breadcrumbs: added})
		}
		if len(updated) > 0 {
			emit(Event{Action: ActionUpdate, Table: TableTexts, IDs: textIDs, Breadcrumbs: updated})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	db.log.Debug("stored nested records",
		zap.String("model", records[0].Model()),
		zap.Int("count", len(records)),
		zap.Int64s("texts", textIDs))
	return textIDs, nil
}

// =============================================================================
// Get / Remove / Clear
// =============================================================================

// Get returns the records with the given IDs in ascending ID order.
// A missing ID fails the whole call with ErrNotFound.
func (db *DB) Get(table Table, ids ...int64) ([]Record, error) {
	if _, err := checkTableName(table); err != nil {
		return nil, err
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := make([]Record, 0, len(sorted))
	err := db.read(func(tx Tx) error {
		for _, id := range sorted {
			data, err := tx.Get(table, id)
			if err != nil {
				return err
			}
			rec, err := hydrateRow(id, data)
			if err != nil {
				return fmt.Errorf("%s/%d: %w", table, id, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetOne returns a single record.
func (db *DB) GetOne(table Table, id int64) (Record, error) {
	recs, err := db.Get(table, id)
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

// GetAll returns every record of a table in ID order.
func (db *DB) GetAll(table Table) ([]Record, error) {
	if _, err := checkTableName(table); err != nil {
		return nil, err
	}
	var out []Record
	err := db.read(func(tx Tx) error {
		return tx.Scan(table, func(id int64, data []byte) error {
			rec, err := hydrateRow(id, data)
			if err != nil {
				return fmt.Errorf("%s/%d: %w", table, id, err)
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Remove deletes records by ID. Missing IDs are ignored.
func (db *DB) Remove(table Table, ids ...int64) error {
	if _, err := checkTableName(table); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return db.write(func(tx Tx, emit func(Event)) error {
		for _, id := range ids {
			if err := tx.Delete(table, id); err != nil {
				return err
			}
		}
		emit(Event{Action: ActionRemove, Table: table, IDs: slices.Clone(ids)})
		return nil
	})
}

// Clear deletes every record of a table.
func (db *DB) Clear(table Table) error {
	if _, err := checkTableName(table); err != nil {
		return err
	}
	err := db.write(func(tx Tx, emit func(Event)) error {
		if err := tx.Clear(table); err != nil {
			return err
		}
		emit(Event{Action: ActionClear, Table: table})
		return nil
	})
	if err == nil {
		db.log.Info("cleared table", zap.String("table", string(table)))
	}
	return err
}

// =============================================================================
// Updates
// =============================================================================

// Update sets a top-level property on records of a table; nil ids means
// every record. The change is applied as a JSON merge patch, so a nil value
// removes the property. The patched record must still hydrate.
func (db *DB) Update(table Table, ids []int64, property string, value any) ([]Record, error) {
	if _, err := checkTableName(table); err != nil {
		return nil, err
	}
	patch, err := propertyPatch(property, value, "id")
	if err != nil {
		return nil, err
	}

	var out []Record
	err = db.write(func(tx Tx, emit func(Event)) error {
		targets := ids
		if targets == nil {
			if targets, err = tableIDs(tx, table); err != nil {
				return err
			}
		}
		for _, id := range targets {
			data, err := tx.Get(table, id)
			if err != nil {
				return err
			}
			rec, err := patchRecord(id, data, patch)
			if err != nil {
				return fmt.Errorf("update %s/%d: %w", table, id, err)
			}
			if err := putRecord(tx, table, id, rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		if len(targets) > 0 {
			emit(Event{Action: ActionUpdate, Table: table, IDs: slices.Clone(targets)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PushUpdate appends value to the list property of one record.
func (db *DB) PushUpdate(table Table, id int64, property string, value any) (Record, error) {
	if _, err := checkTableName(table); err != nil {
		return nil, err
	}
	if err := checkProperty(property, "id"); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", property, err)
	}
	ops, err := jsonpatch.DecodePatch([]byte(fmt.Sprintf(
		`[{"op":"add","path":"/%s/-","value":%s}]`, escapePointer(property), encoded)))
	if err != nil {
		return nil, err
	}

	var out Record
	err = db.write(func(tx Tx, emit func(Event)) error {
		data, err := tx.Get(table, id)
		if err != nil {
			return err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return err
		}
		if raw, ok := fields[property]; !ok || !strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
			return fmt.Errorf("%w: %s.%s", ErrNotArray, table, property)
		}
		patched, err := ops.Apply(data)
		if err != nil {
			return fmt.Errorf("push %s/%d: %w", table, id, err)
		}
		rec, err := hydrateRow(id, patched)
		if err != nil {
			return fmt.Errorf("push %s/%d: %w", table, id, err)
		}
		if err := putRecord(tx, table, id, rec); err != nil {
			return err
		}
		out = rec
		emit(Event{Action: ActionUpdate, Table: table, IDs: []int64{id}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkProperty(property string, immutable ...string) error {
	if property == "" {
		return fmt.Errorf("%w: empty property", ErrImmutableField)
	}
	if property == "model" || slices.Contains(immutable, property) {
		return fmt.Errorf("%w: %s", ErrImmutableField, property)
	}
	return nil
}

// propertyPatch builds the merge patch {"property": value}.
func propertyPatch(property string, value any, immutable ...string) ([]byte, error) {
	if err := checkProperty(property, immutable...); err != nil {
		return nil, err
	}
	patch, err := json.Marshal(map[string]any{property: value})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", property, err)
	}
	return patch, nil
}

func patchRecord(id int64, data, patch []byte) (Record, error) {
	merged, err := jsonpatch.MergePatch(data, patch)
	if err != nil {
		return nil, err
	}
	return hydrateRow(id, merged)
}

func putRecord(tx Tx, table Table, id int64, rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	_, err = tx.Put(table, id, rec.Model(), data)
	return err
}

func tableIDs(tx Tx, table Table) ([]int64, error) {
	var ids []int64
	err := tx.Scan(table, func(id int64, _ []byte) error {
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

// escapePointer escapes a JSON pointer reference token (RFC 6901).
func escapePointer(s string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(s)
}

// =============================================================================
// Record helpers
// =============================================================================

// Save stores one record, top-level or nested.
func (db *DB) Save(rec Record) error {
	_, err := db.Store(rec)
	return err
}

// Delete removes one record: by ID for top-level records, by breadcrumb
// for nested ones.
func (db *DB) Delete(rec Record) error {
	switch r := rec.(type) {
	case Identified:
		if r.RecordID() == 0 {
			return fmt.Errorf("%w: %s has no id", ErrNotFound, r.Model())
		}
		table, _ := TableFor(r.Model())
		return db.Remove(table, r.RecordID())
	case Nested:
		return db.RemoveBreadcrumb(r.Crumb())
	}
	return fmt.Errorf("%w: cannot delete a %s on its own", ErrUnknownModel, rec.Model())
}

// CorpusMembers returns the records a corpus lists for table. IDs that
// no longer exist are skipped.
func (db *DB) CorpusMembers(corpusID int64, table Table) ([]Record, error) {
	if _, err := checkTableName(table); err != nil {
		return nil, err
	}
	var out []Record
	err := db.read(func(tx Tx) error {
		data, err := tx.Get(TableCorpora, corpusID)
		if err != nil {
			return err
		}
		corpus, err := HydrateAs[*Corpus](data)
		if err != nil {
			return err
		}
		for _, id := range corpus.Members(table) {
			data, err := tx.Get(table, id)
			if errors.Is(err, ErrNotFound) {
				db.log.Debug("skipping missing corpus member",
					zap.Int64("corpus", corpusID),
					zap.String("table", string(table)),
					zap.Int64("id", id))
				continue
			}
			if err != nil {
				return err
			}
			rec, err := hydrateRow(id, data)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddToCorpus records ids as members of a corpus.
func (db *DB) AddToCorpus(corpusID int64, table Table, ids ...int64) (*Corpus, error) {
	if _, err := checkTableName(table); err != nil {
		return nil, err
	}
	if table == TableCorpora {
		return nil, fmt.Errorf("%w: corpora cannot contain corpora", ErrUnknownTable)
	}
	var corpus *Corpus
	err := db.write(func(tx Tx, emit func(Event)) error {
		data, err := tx.Get(TableCorpora, corpusID)
		if err != nil {
			return err
		}
		if corpus, err = HydrateAs[*Corpus](data); err != nil {
			return err
		}
		corpus.ID = corpusID
		changed := false
		for _, id := range ids {
			if _, err := tx.Get(table, id); err != nil {
				return err
			}
			if corpus.AddMember(table, id) {
				changed = true
			}
		}
		if !changed {
			return nil
		}
		if err := putRecord(tx, TableCorpora, corpusID, corpus); err != nil {
			return err
		}
		emit(Event{Action: ActionUpdate, Table: TableCorpora, IDs: []int64{corpusID}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return corpus, nil
}
