package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotSurvivesReopen(t *testing.T) {
	runTestsForAllStores(t, "Snapshot", func(t *testing.T, db *DB) {
		fs, err := mem.NewFS()
		require.NoError(t, err)

		n, err := db.RestoreSnapshot(fs, "snapshot.json")
		require.NoError(t, err)
		assert.Zero(t, n)

		db.Observers().Add(db.SnapshotObserver(fs, "snapshot.json"), ActionAll)
		text := storeText(t, db)
		_, err = db.Update(TableTexts, []int64{text.ID}, "abbreviation", "PUP")
		require.NoError(t, err)
		text.Abbreviation = "PUP"
		ids, err := db.Store(&Lexicon{Name: "Kepi"})
		require.NoError(t, err)
		require.NoError(t, db.Remove(TableLexicons, ids[0]))

		reopened, err := Open(NewMemStore())
		require.NoError(t, err)
		n, err = reopened.RestoreSnapshot(fs, "snapshot.json")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got := getText(t, reopened, text.ID)
		if diff := cmp.Diff(text, got); diff != "" {
			t.Errorf("restored text mismatch (-want +got):\n%s", diff)
		}
		_, err = reopened.GetOne(TableLexicons, ids[0])
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRestoreSnapshotRejectsGarbage(t *testing.T) {
	fs, err := mem.NewFS()
	require.NoError(t, err)
	require.NoError(t, hackpadfs.WriteFullFile(fs, "snapshot.json", []byte("{"), 0644))

	db, err := Open(NewMemStore())
	require.NoError(t, err)
	_, err = db.RestoreSnapshot(fs, "snapshot.json")
	assert.ErrorContains(t, err, "parse snapshot")
}
