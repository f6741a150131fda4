package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// Export is a full database dump: every table's records as stored JSON,
// each carrying its id.
type Export map[Table][]json.RawMessage

// Export dumps every table.
func (db *DB) Export() (Export, error) {
	out := make(Export)
	err := db.read(func(tx Tx) error {
		for _, t := range Tables() {
			rows, err := exportTable(tx, t)
			if err != nil {
				return fmt.Errorf("export %s: %w", t, err)
			}
			out[t] = rows
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// exportTable returns the raw rows of table with the row key written into
// each record's "id" field.
func exportTable(tx Tx, table Table) ([]json.RawMessage, error) {
	rows := []json.RawMessage{}
	err := tx.Scan(table, func(id int64, data []byte) error {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("row %d: %w", id, err)
		}
		fields["id"] = json.RawMessage(strconv.FormatInt(id, 10))
		row, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// Import stores every record of an export, keeping the exported IDs.
// Tables outside the table list are skipped. Returns the number of
// records imported.
func (db *DB) Import(exp Export) (int, error) {
	var n int
	err := db.write(func(tx Tx, emit func(Event)) error {
		imported, err := db.importTx(tx, exp)
		if err != nil {
			return err
		}
		for _, t := range Tables() {
			if ids := imported[t]; len(ids) > 0 {
				n += len(ids)
				emit(Event{Action: ActionImport, Table: t, IDs: ids})
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	db.log.Info("imported records", zap.Int("count", n))
	return n, nil
}

func (db *DB) importTx(tx Tx, exp Export) (map[Table][]int64, error) {
	for t := range exp {
		if _, ok := ModelFor(t); !ok {
			db.log.Warn("skipping unknown table", zap.String("table", string(t)), zap.Int("records", len(exp[t])))
		}
	}

	imported := make(map[Table][]int64)
	for _, t := range Tables() {
		model, _ := ModelFor(t)
		for i, raw := range exp[t] {
			rec, err := Hydrate(raw)
			if err != nil {
				return nil, fmt.Errorf("import %s[%d]: %w", t, i, err)
			}
			if rec.Model() != model {
				return nil, fmt.Errorf("%w: import %s[%d] holds a %s", ErrMixedModels, t, i, rec.Model())
			}
			ident := rec.(Identified)
			id := ident.RecordID()
			if id == 0 {
				data, err := Encode(rec)
				if err != nil {
					return nil, err
				}
				if id, err = tx.Put(t, 0, model, data); err != nil {
					return nil, err
				}
				ident.SetRecordID(id)
			}
			if text, ok := rec.(*Text); ok {
				text.Restamp()
			}
			if err := putRecord(tx, t, id, rec); err != nil {
				return nil, err
			}
			imported[t] = append(imported[t], id)
		}
	}
	return imported, nil
}

// DeleteDatabase drops every table and recreates the empty table list.
func (db *DB) DeleteDatabase() error {
	err := db.write(func(tx Tx, emit func(Event)) error {
		existing, err := tx.Tables()
		if err != nil {
			return err
		}
		for _, t := range existing {
			if err := tx.DropTable(t); err != nil {
				return err
			}
		}
		for _, t := range Tables() {
			if err := tx.CreateTable(t); err != nil {
				return err
			}
			emit(Event{Action: ActionClear, Table: t})
		}
		return tx.SetMeta(metaVersion, strconv.Itoa(SchemaVersion))
	})
	if err == nil {
		db.log.Info("deleted database")
	}
	return err
}
