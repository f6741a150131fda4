package store

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// textCache holds the texts touched by one transaction so that several
// nested edits to the same text are written back once.
type textCache struct {
	tx    Tx
	texts map[int64]*Text
	order []int64
}

func newTextCache(tx Tx) *textCache {
	return &textCache{tx: tx, texts: make(map[int64]*Text)}
}

func (c *textCache) load(id int64) (*Text, error) {
	if t, ok := c.texts[id]; ok {
		return t, nil
	}
	data, err := c.tx.Get(TableTexts, id)
	if err != nil {
		return nil, err
	}
	rec, err := hydrateRow(id, data)
	if err != nil {
		return nil, fmt.Errorf("texts/%d: %w", id, err)
	}
	t, ok := rec.(*Text)
	if !ok {
		return nil, fmt.Errorf("%w: texts/%d holds a %s", ErrUnknownModel, id, rec.Model())
	}
	c.texts[id] = t
	c.order = append(c.order, id)
	return t, nil
}

func (c *textCache) flush() error {
	for _, id := range c.order {
		t := c.texts[id]
		t.Restamp()
		if err := putRecord(c.tx, TableTexts, id, t); err != nil {
			return err
		}
	}
	return nil
}

func (c *textCache) ids() []int64 {
	return slices.Clone(c.order)
}

// GetBreadcrumb resolves each breadcrumb inside its text and returns the
// addressed records in the order given.
func (db *DB) GetBreadcrumb(crumbs ...Breadcrumb) ([]Record, error) {
	out := make([]Record, 0, len(crumbs))
	err := db.read(func(tx Tx) error {
		texts := newTextCache(tx)
		for _, crumb := range crumbs {
			if err := crumb.Validate(); err != nil {
				return err
			}
			text, err := texts.load(crumb.TextID())
			if err != nil {
				return err
			}
			rec, err := text.At(crumb)
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

// UpdateBreadcrumb sets a property on the record at crumb and returns the
// updated record. On a text breadcrumb it behaves like Update.
func (db *DB) UpdateBreadcrumb(crumb Breadcrumb, property string, value any) (Record, error) {
	if err := crumb.Validate(); err != nil {
		return nil, err
	}
	if crumb.Level() == LevelText {
		recs, err := db.Update(TableTexts, []int64{crumb.TextID()}, property, value)
		if err != nil {
			return nil, err
		}
		return recs[0], nil
	}
	patch, err := propertyPatch(property, value, "breadcrumb")
	if err != nil {
		return nil, err
	}

	var out Record
	err = db.write(func(tx Tx, emit func(Event)) error {
		texts := newTextCache(tx)
		text, err := texts.load(crumb.TextID())
		if err != nil {
			return err
		}
		item, err := text.At(crumb)
		if err != nil {
			return err
		}
		data, err := Encode(item)
		if err != nil {
			return err
		}
		rec, err := patchRecord(0, data, patch)
		if err != nil {
			return fmt.Errorf("update %s: %w", crumb, err)
		}
		if err := text.Put(crumb, rec); err != nil {
			return err
		}
		if err := texts.flush(); err != nil {
			return err
		}
		out = rec
		emit(Event{
			Action:      ActionUpdate,
			Table:       TableTexts,
			IDs:         []int64{crumb.TextID()},
			Breadcrumbs: []Breadcrumb{crumb},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveBreadcrumb removes the addressed records. A text breadcrumb
// deletes the whole text; deeper ones splice the item out of its parent.
// Within a text, removals run deepest and highest index first so that
// earlier removals never shift later targets. Positions after a removed
// item move up by one and their breadcrumbs are restamped.
func (db *DB) RemoveBreadcrumb(crumbs ...Breadcrumb) error {
	for _, crumb := range crumbs {
		if err := crumb.Validate(); err != nil {
			return err
		}
	}
	ordered := slices.Clone(crumbs)
	slices.SortFunc(ordered, func(a, b Breadcrumb) int { return b.Compare(a) })
	ordered = slices.CompactFunc(ordered, Breadcrumb.Equal)

	dropped := make(map[int64]bool)
	for _, crumb := range ordered {
		if crumb.Level() == LevelText {
			dropped[crumb.TextID()] = true
		}
	}

	return db.write(func(tx Tx, emit func(Event)) error {
		texts := newTextCache(tx)
		var spliced []Breadcrumb
		var deleted []int64
		for _, crumb := range ordered {
			id := crumb.TextID()
			if crumb.Level() == LevelText {
				if _, err := tx.Get(TableTexts, id); err != nil {
					return err
				}
				if err := tx.Delete(TableTexts, id); err != nil {
					return err
				}
				deleted = append(deleted, id)
				continue
			}
			if dropped[id] {
				continue
			}
			text, err := texts.load(id)
			if err != nil {
				return err
			}
			if err := text.RemoveAt(crumb); err != nil {
				return err
			}
			spliced = append(spliced, crumb)
		}
		if err := texts.flush(); err != nil {
			return err
		}
		if len(deleted) > 0 || len(spliced) > 0 {
			emit(Event{
				Action:      ActionRemove,
				Table:       TableTexts,
				IDs:         append(deleted, texts.ids()...),
				Breadcrumbs: spliced,
			})
		}
		db.log.Debug("removed breadcrumbs",
			zap.Int64s("texts", deleted),
			zap.Int("spliced", len(spliced)))
		return nil
	})
}
