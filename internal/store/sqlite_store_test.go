package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Backend transaction semantics
// =============================================================================

func TestBackendPutGet(t *testing.T) {
	runTestsForAllBackends(t, "PutGet", func(t *testing.T, backend Backend) {
		err := backend.Transact(true, func(tx Tx) error {
			require.NoError(t, tx.CreateTable(TableTexts))
			id, err := tx.Put(TableTexts, 0, ModelText, []byte(`{"a":1}`))
			require.NoError(t, err)
			assert.Equal(t, int64(1), id)

			id, err = tx.Put(TableTexts, 10, ModelText, []byte(`{"a":10}`))
			require.NoError(t, err)
			assert.Equal(t, int64(10), id)

			// Generated keys continue after the highest explicit key.
			id, err = tx.Put(TableTexts, 0, ModelText, []byte(`{"a":11}`))
			require.NoError(t, err)
			assert.Equal(t, int64(11), id)
			return nil
		})
		require.NoError(t, err)

		err = backend.Transact(false, func(tx Tx) error {
			data, err := tx.Get(TableTexts, 10)
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":10}`, string(data))

			var ids []int64
			require.NoError(t, tx.Scan(TableTexts, func(id int64, _ []byte) error {
				ids = append(ids, id)
				return nil
			}))
			assert.Equal(t, []int64{1, 10, 11}, ids)

			_, err = tx.Get(TableTexts, 2)
			assert.ErrorIs(t, err, ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestBackendRollback(t *testing.T) {
	runTestsForAllBackends(t, "Rollback", func(t *testing.T, backend Backend) {
		require.NoError(t, backend.Transact(true, func(tx Tx) error {
			return tx.CreateTable(TableCorpora)
		}))

		boom := errors.New("boom")
		err := backend.Transact(true, func(tx Tx) error {
			_, err := tx.Put(TableCorpora, 0, ModelCorpus, []byte(`{}`))
			require.NoError(t, err)
			require.NoError(t, tx.SetMeta("k", "v"))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		err = backend.Transact(false, func(tx Tx) error {
			_, err := tx.Get(TableCorpora, 1)
			assert.ErrorIs(t, err, ErrNotFound)
			_, ok, err := tx.Meta("k")
			require.NoError(t, err)
			assert.False(t, ok)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestBackendReadOnlyAndUnknownTable(t *testing.T) {
	runTestsForAllBackends(t, "ReadOnly", func(t *testing.T, backend Backend) {
		err := backend.Transact(false, func(tx Tx) error {
			_, err := tx.Put(TableTexts, 0, ModelText, []byte(`{}`))
			assert.ErrorIs(t, err, ErrReadOnly)
			assert.ErrorIs(t, tx.CreateTable(TableTexts), ErrReadOnly)

			_, err = tx.Get(TableTexts, 1)
			assert.ErrorIs(t, err, ErrUnknownTable)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestBackendDropTable(t *testing.T) {
	runTestsForAllBackends(t, "DropTable", func(t *testing.T, backend Backend) {
		err := backend.Transact(true, func(tx Tx) error {
			require.NoError(t, tx.CreateTable(TableMedia))
			require.NoError(t, tx.CreateTable(TableTexts))
			require.NoError(t, tx.DropTable(TableMedia))
			tables, err := tx.Tables()
			require.NoError(t, err)
			assert.Equal(t, []Table{TableTexts}, tables)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestBackendClosed(t *testing.T) {
	runTestsForAllBackends(t, "Closed", func(t *testing.T, backend Backend) {
		require.NoError(t, backend.Close())
		err := backend.Transact(false, func(Tx) error { return nil })
		assert.ErrorIs(t, err, ErrClosed)
	})
}

// =============================================================================
// SQLite specifics
// =============================================================================

func TestSQLiteStorePersistsToFile(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "wugbot.db")

	s, err := NewSQLiteStoreWithDSN(dsn)
	require.NoError(t, err)
	db, err := Open(s)
	require.NoError(t, err)
	text := storeText(t, db)
	require.NoError(t, db.Close())

	s, err = NewSQLiteStoreWithDSN(dsn)
	require.NoError(t, err)
	defer s.Close()
	db, err = Open(s)
	require.NoError(t, err)

	got := getText(t, db, text.ID)
	assert.Equal(t, text.Abbreviation, got.Abbreviation)
	assert.Len(t, got.Phrases, 2)
}

func TestSQLiteStoreRejectsBadTableNames(t *testing.T) {
	s, err := NewSQLiteStore()
	require.NoError(t, err)
	defer s.Close()

	err = s.Transact(true, func(tx Tx) error {
		return tx.CreateTable(`texts"; DROP TABLE wugbot_meta; --`)
	})
	assert.ErrorIs(t, err, ErrUnknownTable)
}
