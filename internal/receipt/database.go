package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptBucketName = "receipts"
	friendBucketName  = "friends"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// DB defines the interface for database operations. Receipts are stored
// whole, items included, so a receipt write or delete is atomic and the
// cascade to its items is inherent.
type DB interface {
	// SaveReceipt saves a receipt and all its items
	SaveReceipt(receipt *Receipt) error

	// GetReceipt retrieves a receipt by ID
	GetReceipt(id string) (*Receipt, error)

	// ListReceipts returns all receipts in unspecified order
	ListReceipts() ([]*Receipt, error)

	// DeleteReceipt removes a receipt and, with it, its items
	DeleteReceipt(id string) error

	// SavePerson saves a friend group member
	SavePerson(person *Person) error

	// ListPeople returns all friend group members
	ListPeople() ([]Person, error)

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
		if _, err := tx.CreateBucketIfNotExists([]byte(receiptBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(friendBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveReceipt saves a receipt and all its items
func (b *BoltDB) SaveReceipt(receipt *Receipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		data, err := json.Marshal(receipt)
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		return bucket.Put([]byte(receipt.ID), data)
	})
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("receipt %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &receipt)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ListReceipts returns all receipts
func (b *BoltDB) ListReceipts() ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			receipts = append(receipts, &receipt)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt and its items
func (b *BoltDB) DeleteReceipt(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("receipt %s: %w", id, ErrNotFound)
		}
		return bucket.Delete([]byte(id))
	})
}

// SavePerson saves a friend group member
func (b *BoltDB) SavePerson(person *Person) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(friendBucketName))
		data, err := json.Marshal(person)
		if err != nil {
			return fmt.Errorf("marshaling person: %w", err)
		}
		return bucket.Put([]byte(person.ID), data)
	})
}

// ListPeople returns all friend group members
func (b *BoltDB) ListPeople() ([]Person, error) {
	people := make([]Person, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(friendBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var person Person
			if err := json.Unmarshal(v, &person); err != nil {
				return fmt.Errorf("unmarshaling person: %w", err)
			}
			people = append(people, person)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return people, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
