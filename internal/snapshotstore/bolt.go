package snapshotstore

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/memento-graph/memento/internal/graphmodel"
)

const snapshotBucket = "snapshots"

// BoltBackend persists snapshots to an embedded bbolt database, grounded
// directly on db/bolt/bolt.go's bucket-scoped JSON put/get helpers.
type BoltBackend struct {
	db *bolt.DB
}

type boltSnapshotRecord struct {
	ID              string
	RollbackPointID string
	Type            graphmodel.SnapshotType
	Data            []byte
	Size            int64
	CreatedAt       time.Time
	Checksum        string
	Metadata        map[string]interface{}
}

// OpenBoltBackend opens (creating if needed) a bbolt-backed snapshot store
// at path.
func OpenBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create snapshot bucket: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Save(s *graphmodel.Snapshot) error {
	rec := boltSnapshotRecord{
		ID: s.ID, RollbackPointID: s.RollbackPointID, Type: s.Type,
		Data: s.Data, Size: s.Size, CreatedAt: s.CreatedAt,
		Checksum: s.Checksum, Metadata: s.Metadata,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal snapshot record: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(snapshotBucket)).Put([]byte(s.ID), payload)
	})
}

func (b *BoltBackend) Load(id string) (*graphmodel.Snapshot, error) {
	var rec boltSnapshotRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(snapshotBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("snapshot %s not found", id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &graphmodel.Snapshot{
		ID: rec.ID, RollbackPointID: rec.RollbackPointID, Type: rec.Type,
		Data: rec.Data, Size: rec.Size, CreatedAt: rec.CreatedAt,
		Checksum: rec.Checksum, Metadata: rec.Metadata,
	}, nil
}

func (b *BoltBackend) Delete(id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(snapshotBucket)).Delete([]byte(id))
	})
}

// Close releases the underlying database file handle.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
