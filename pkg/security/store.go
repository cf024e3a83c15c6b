package security

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketCA = []byte("ca")

// CAStore persists the serialized root CA to a small BoltDB file,
// independent of any other runtime storage.
type CAStore struct {
	db *bolt.DB
}

// OpenCAStore opens (creating if needed) a BoltDB file under dataDir
// holding the CA's root certificate and private key.
func OpenCAStore(dataDir string) (*CAStore, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "ca.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("security: open CA store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCA)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("security: create CA bucket: %w", err)
	}
	return &CAStore{db: db}, nil
}

// Close releases the underlying BoltDB file handle.
func (s *CAStore) Close() error {
	return s.db.Close()
}

// SaveCA persists the serialized CA data, overwriting any prior value.
func (s *CAStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCA).Put([]byte("ca"), data)
	})
}

// GetCA returns the previously persisted CA data.
func (s *CAStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCA).Get([]byte("ca"))
		if v == nil {
			return fmt.Errorf("CA not found")
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}
