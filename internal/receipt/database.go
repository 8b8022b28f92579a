package receipt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const usageBucketName = "usage"

// DB defines the interface for usage ledger storage
type DB interface {
	// SaveUsage appends a usage record and assigns its ID
	SaveUsage(record *UsageRecord) error

	// ListUsage returns all usage records in insertion order
	ListUsage() ([]*UsageRecord, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(usageBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveUsage appends a usage record keyed by the bucket sequence
func (b *BoltDB) SaveUsage(record *UsageRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(usageBucketName))
		id, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating usage id: %w", err)
		}
		record.ID = id

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling usage record: %w", err)
		}
		return bucket.Put(itob(id), data)
	})
}

// ListUsage returns all usage records
func (b *BoltDB) ListUsage() ([]*UsageRecord, error) {
	records := make([]*UsageRecord, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(usageBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var record UsageRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling usage record: %w", err)
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// itob encodes a sequence number so keys sort in insertion order
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
