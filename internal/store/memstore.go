// This file contains the in-memory backend used by tests and the WASM
// bridge when no SQLite build is wanted.
package store

import (
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory Backend. Write transactions work on a copy of
// the state that replaces the live state only on success.
type MemStore struct {
	mu     sync.RWMutex
	state  *memState
	closed bool
}

type memState struct {
	tables map[Table]*memTable
	meta   map[string]string
}

type memTable struct {
	seq  int64
	rows map[int64]memRow
}

type memRow struct {
	model string
	data  []byte
}

// NewMemStore creates an empty in-memory backend.
func NewMemStore() *MemStore {
	return &MemStore{
		state: &memState{
			tables: make(map[Table]*memTable),
			meta:   make(map[string]string),
		},
	}
}

// Close marks the store closed; later transactions fail with ErrClosed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Transact runs fn against the store.
func (s *MemStore) Transact(writable bool, fn func(tx Tx) error) error {
	if !writable {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.closed {
			return ErrClosed
		}
		return fn(&memTx{state: s.state})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	working := s.state.clone()
	if err := fn(&memTx{state: working, writable: true}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// clone copies the table maps. Row data is never mutated in place, so the
// byte slices are shared.
func (st *memState) clone() *memState {
	out := &memState{
		tables: make(map[Table]*memTable, len(st.tables)),
		meta:   make(map[string]string, len(st.meta)),
	}
	for name, t := range st.tables {
		rows := make(map[int64]memRow, len(t.rows))
		for id, row := range t.rows {
			rows[id] = row
		}
		out.tables[name] = &memTable{seq: t.seq, rows: rows}
	}
	for k, v := range st.meta {
		out.meta[k] = v
	}
	return out
}

type memTx struct {
	state    *memState
	writable bool
}

func (tx *memTx) table(name Table) (*memTable, error) {
	t, ok := tx.state.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

func (tx *memTx) Get(table Table, id int64) ([]byte, error) {
	t, err := tx.table(table)
	if err != nil {
		return nil, err
	}
	row, ok := t.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", ErrNotFound, table, id)
	}
	// Copy to avoid mutation issues
	out := make([]byte, len(row.data))
	copy(out, row.data)
	return out, nil
}

func (tx *memTx) Put(table Table, id int64, model string, data []byte) (int64, error) {
	if !tx.writable {
		return 0, ErrReadOnly
	}
	t, err := tx.table(table)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		t.seq++
		id = t.seq
	} else if id > t.seq {
		t.seq = id
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	t.rows[id] = memRow{model: model, data: stored}
	return id, nil
}

func (tx *memTx) Delete(table Table, id int64) error {
	if !tx.writable {
		return ErrReadOnly
	}
	t, err := tx.table(table)
	if err != nil {
		return err
	}
	delete(t.rows, id)
	return nil
}

func (tx *memTx) Clear(table Table) error {
	if !tx.writable {
		return ErrReadOnly
	}
	t, err := tx.table(table)
	if err != nil {
		return err
	}
	t.rows = make(map[int64]memRow)
	return nil
}

func (tx *memTx) Scan(table Table, fn func(id int64, data []byte) error) error {
	t, err := tx.table(table)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		data := t.rows[id].data
		out := make([]byte, len(data))
		copy(out, data)
		if err := fn(id, out); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memTx) Tables() ([]Table, error) {
	out := make([]Table, 0, len(tx.state.tables))
	for name := range tx.state.tables {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (tx *memTx) CreateTable(table Table) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if _, ok := tx.state.tables[table]; !ok {
		tx.state.tables[table] = &memTable{rows: make(map[int64]memRow)}
	}
	return nil
}

func (tx *memTx) DropTable(table Table) error {
	if !tx.writable {
		return ErrReadOnly
	}
	delete(tx.state.tables, table)
	return nil
}

func (tx *memTx) Meta(key string) (string, bool, error) {
	v, ok := tx.state.meta[key]
	return v, ok, nil
}

func (tx *memTx) SetMeta(key, value string) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.state.meta[key] = value
	return nil
}

// Compile-time interface check
var _ Backend = (*MemStore)(nil)
