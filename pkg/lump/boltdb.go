package lump

import (
	"fmt"

	"github.com/cuemby/hearthd/pkg/hearth"
	bolt "go.etcd.io/bbolt"
)

var bucketLumps = []byte("lumps")

// BoltBacking persists lumps to a bbolt database, keyed by the raw
// 32-byte digest, using a single bucket since lumps have no relational
// structure to speak of.
type BoltBacking struct {
	db *bolt.DB
}

// OpenBoltBacking opens (creating if absent) a bbolt database at path
// and ensures the lumps bucket exists.
func OpenBoltBacking(path string) (*BoltBacking, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("lump: open bolt backing: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLumps)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("lump: create bucket: %w", err)
	}

	return &BoltBacking{db: db}, nil
}

// Close closes the underlying database.
func (b *BoltBacking) Close() error {
	return b.db.Close()
}

// Put writes data under id, overwriting any existing entry with the
// same id (which, since id is content-derived, would be byte-identical
// anyway).
func (b *BoltBacking) Put(id hearth.LumpId, data []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLumps).Put(id[:], data)
	})
}

// Get returns the bytes stored under id, if any. The returned slice is a
// copy: bbolt's Get result is only valid for the lifetime of the
// transaction, so it cannot be returned directly.
func (b *BoltBacking) Get(id hearth.LumpId) ([]byte, bool, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketLumps).Get(id[:])
		if v == nil {
			return nil
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, data != nil, nil
}
