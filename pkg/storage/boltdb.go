package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/burrow/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketActivations = []byte("activations")
)

// BoltStore implements Store interface using BoltDB.
// Activations are kept in one nested bucket per tenant, keyed by resource path.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "burrow.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketActivations); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketActivations, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// ListActivations returns resourcePath -> active version for a tenant
func (s *BoltStore) ListActivations(tenantID string) (map[string]types.Version, error) {
	active := make(map[string]types.Version)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketActivations).Bucket([]byte(tenantID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			active[string(k)] = types.Version(v)
			return nil
		})
	})
	return active, err
}

// SetActivation records version as the active one for a resource
func (s *BoltStore) SetActivation(tenantID, resourcePath string, version types.Version) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketActivations).CreateBucketIfNotExists([]byte(tenantID))
		if err != nil {
			return err
		}
		return b.Put([]byte(resourcePath), []byte(version))
	})
}

// DeleteActivation marks a resource inactive
func (s *BoltStore) DeleteActivation(tenantID, resourcePath string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketActivations).Bucket([]byte(tenantID))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(resourcePath))
	})
}

// DeleteTenant drops every activation of a tenant
func (s *BoltStore) DeleteTenant(tenantID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(bucketActivations).DeleteBucket([]byte(tenantID))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}
