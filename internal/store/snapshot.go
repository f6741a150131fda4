package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hack-pad/hackpadfs"
	"go.uber.org/zap"
)

// SaveSnapshot writes an export of the whole database to path.
func (db *DB) SaveSnapshot(fs hackpadfs.FS, path string) error {
	exp, err := db.Export()
	if err != nil {
		return err
	}
	data, err := json.Marshal(exp)
	if err != nil {
		return err
	}
	return hackpadfs.WriteFullFile(fs, path, data, 0644)
}

// RestoreSnapshot imports the snapshot at path. A missing snapshot
// imports nothing.
func (db *DB) RestoreSnapshot(fs hackpadfs.FS, path string) (int, error) {
	data, err := hackpadfs.ReadFile(fs, path)
	if errors.Is(err, hackpadfs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var exp Export
	if err := json.Unmarshal(data, &exp); err != nil {
		return 0, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return db.Import(exp)
}

// SnapshotObserver saves a snapshot after every commit it is notified of.
// Subscribe it with ActionAll to keep path current.
func (db *DB) SnapshotObserver(fs hackpadfs.FS, path string) Observer {
	f := ObserverFunc(func(action Action, _ any) {
		if err := db.SaveSnapshot(fs, path); err != nil {
			db.log.Warn("failed to save snapshot", zap.String("action", string(action)), zap.Error(err))
		}
	})
	return &f
}
