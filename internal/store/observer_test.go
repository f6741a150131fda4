package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
	seen   []Action
}

func (r *recorder) Update(action Action, data any) {
	r.seen = append(r.seen, action)
	if e, ok := data.(Event); ok {
		r.events = append(r.events, e)
	}
}

func TestObserverListNotifiesOnlySubscribers(t *testing.T) {
	var list ObserverList
	adds, all, removes := &recorder{}, &recorder{}, &recorder{}
	list.Add(adds, ActionAdd)
	list.Add(all, "")
	list.Add(removes, ActionRemove)

	list.Notify(ActionAdd, nil)
	list.Notify(ActionClear, nil)

	assert.Equal(t, []Action{ActionAdd}, adds.seen)
	assert.Equal(t, []Action{ActionAdd, ActionClear}, all.seen)
	assert.Empty(t, removes.seen)
}

func TestObserverListAddRemove(t *testing.T) {
	var list ObserverList
	r := &recorder{}
	list.Add(r, ActionAdd)
	list.Add(r, ActionAdd)
	list.Add(r, ActionAll)
	assert.Equal(t, 2, list.Len())

	// Subscribed twice, called once.
	list.Notify(ActionAdd, nil)
	assert.Len(t, r.seen, 1)

	list.Remove(r, ActionAll)
	assert.Equal(t, 1, list.Len())
	list.Remove(r, "")
	assert.Zero(t, list.Len())

	list.Notify(ActionAdd, nil)
	assert.Len(t, r.seen, 1)
}

func TestObserverFunc(t *testing.T) {
	var list ObserverList
	var got []Action
	f := ObserverFunc(func(action Action, _ any) { got = append(got, action) })
	list.Add(&f, ActionImport)
	list.Notify(ActionImport, nil)
	list.Remove(&f, ActionImport)
	list.Notify(ActionImport, nil)
	assert.Equal(t, []Action{ActionImport}, got)
}

func TestDBNotifiesAfterCommit(t *testing.T) {
	runTestsForAllStores(t, "NotifiesAfterCommit", func(t *testing.T, db *DB) {
		r := &recorder{}
		db.Observers().Add(r, ActionAll)

		text := storeText(t, db)
		id := int(text.ID)
		require.Len(t, r.events, 1)
		assert.Equal(t, Event{Action: ActionAdd, Table: TableTexts, IDs: []int64{text.ID}}, r.events[0])

		_, err := db.Store(&Word{Breadcrumb: Breadcrumb{id, 1, 0}, Token: "wá"})
		require.NoError(t, err)
		require.Len(t, r.events, 2)
		assert.Equal(t, ActionUpdate, r.events[1].Action)
		assert.Equal(t, []Breadcrumb{{id, 1, 0}}, r.events[1].Breadcrumbs)

		// A failed write notifies nobody.
		_, err = db.Store(&Word{Breadcrumb: Breadcrumb{id, 9, 0}})
		require.Error(t, err)
		assert.Len(t, r.events, 2)

		require.NoError(t, db.RemoveBreadcrumb(Breadcrumb{id, 0}))
		require.Len(t, r.events, 3)
		assert.Equal(t, ActionRemove, r.events[2].Action)
		assert.Equal(t, []int64{text.ID}, r.events[2].IDs)

		require.NoError(t, db.Clear(TableTexts))
		assert.Equal(t, ActionClear, r.events[3].Action)
	})
}

func TestDBStoreRollsBackIDsOnFailure(t *testing.T) {
	runTestsForAllStores(t, "RollsBackIDs", func(t *testing.T, db *DB) {
		require.NoError(t, db.Close())
		text := sampleText()
		_, err := db.Store(text)
		assert.ErrorIs(t, err, ErrClosed)
		assert.Zero(t, text.ID)
		assert.Nil(t, text.Phrases[0].Breadcrumb)
	})
}
