package receipt

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	snapshotBucket = "snapshot"
	snapshotKey    = "state"
)

// Snapshot is the store's own persisted state: the receipt list and chat
// log as last published. It is independent of the Repository and must be
// treated as provisional until a real load completes.
type Snapshot struct {
	Receipts     []Receipt     `json:"receipts"`
	ChatMessages []ChatMessage `json:"chatMessages"`
}

// Snapshotter persists and restores store snapshots.
type Snapshotter interface {
	Load() (*Snapshot, error)
	Save(snapshot Snapshot) error
	Close() error
}

// BoltSnapshotStore keeps the snapshot under a single key in its own bolt
// file, separate from any document-blob backend.
type BoltSnapshotStore struct {
	db *bbolt.DB
}

// NewBoltSnapshotStore opens (or creates) the snapshot file.
func NewBoltSnapshotStore(path string) (*BoltSnapshotStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot bucket: %w", err)
	}
	return &BoltSnapshotStore{db: db}, nil
}

// Load returns the last saved snapshot, or nil when none exists.
func (s *BoltSnapshotStore) Load() (*Snapshot, error) {
	var snapshot *Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(snapshotBucket)).Get([]byte(snapshotKey))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &snapshot)
	})
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return snapshot, nil
}

// Save overwrites the snapshot slot.
func (s *BoltSnapshotStore) Save(snapshot Snapshot) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("marshaling snapshot: %w", err)
		}
		return tx.Bucket([]byte(snapshotBucket)).Put([]byte(snapshotKey), data)
	})
}

// Close closes the snapshot file.
func (s *BoltSnapshotStore) Close() error {
	return s.db.Close()
}
