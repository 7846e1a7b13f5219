package tracker

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

const entriesBucketName = "entries"

// StorageError is a fault in the backing store. It is surfaced to the
// caller as-is; no compensating action or retry happens here.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DB defines the interface for daily entry persistence.
type DB interface {
	// InsertEntry appends one daily entry. Each call writes a new row.
	InsertEntry(entry *Entry) error

	// GetEntry retrieves one of a user's entries by ID.
	GetEntry(userID int, id string) (*Entry, error)

	// ListEntries returns all entries for a user, newest first.
	ListEntries(userID int) ([]*Entry, error)

	// Close closes the database.
	Close() error
}

// BoltDB implements the DB interface using BoltDB. Entries live in a
// nested bucket per user, keyed by entry ID.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (or creates) the database at path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(entriesBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating entries bucket: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func userKey(userID int) []byte {
	return []byte(strconv.Itoa(userID))
}

// InsertEntry appends one daily entry for entry.UserID.
func (b *BoltDB) InsertEntry(entry *Entry) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket([]byte(entriesBucketName)).CreateBucketIfNotExists(userKey(entry.UserID))
		if err != nil {
			return err
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling entry: %w", err)
		}
		return bucket.Put([]byte(entry.ID), data)
	})
	if err != nil {
		return &StorageError{Op: "inserting daily entry", Err: err}
	}
	return nil
}

// GetEntry retrieves one of a user's entries by ID.
func (b *BoltDB) GetEntry(userID int, id string) (*Entry, error) {
	var entry *Entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucketName)).Bucket(userKey(userID))
		if bucket == nil {
			return fmt.Errorf("entry not found: %s", id)
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("entry not found: %s", id)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, &StorageError{Op: "getting daily entry", Err: err}
	}
	return entry, nil
}

// ListEntries returns all of a user's entries ordered newest first,
// ties broken by creation time. A user with no entries gets an empty
// slice, not an error.
func (b *BoltDB) ListEntries(userID int) ([]*Entry, error) {
	entries := make([]*Entry, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucketName)).Bucket(userKey(userID))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling entry: %w", err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, &StorageError{Op: "listing daily entries", Err: err}
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.After(entries[j].Date)
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	return entries, nil
}

// Close closes the database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
