package store

// Tx is one transaction against a backend. All writes made through a Tx
// become visible together when the transaction function returns nil, and
// are discarded when it returns an error.
type Tx interface {
	// Get returns the stored JSON for id, or ErrNotFound.
	Get(table Table, id int64) ([]byte, error)
	// Put stores data under id. An id of 0 assigns the next key.
	Put(table Table, id int64, model string, data []byte) (int64, error)
	// Delete removes id. Deleting a missing id is not an error.
	Delete(table Table, id int64) error
	// Clear removes every row. Key generation continues where it was.
	Clear(table Table) error
	// Scan visits rows in ascending id order.
	Scan(table Table, fn func(id int64, data []byte) error) error

	Tables() ([]Table, error)
	CreateTable(table Table) error
	DropTable(table Table) error

	Meta(key string) (string, bool, error)
	SetMeta(key, value string) error
}

// Backend runs transactions over a set of tables.
type Backend interface {
	Transact(writable bool, fn func(tx Tx) error) error
	Close() error
}

// hasTable reports whether table exists in tx.
func hasTable(tx Tx, table Table) (bool, error) {
	tables, err := tx.Tables()
	if err != nil {
		return false, err
	}
	for _, t := range tables {
		if t == table {
			return true, nil
		}
	}
	return false, nil
}
