package storage

import (
	"encoding/json"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Store is the bucket/key persistence layer shared by all subsystems.
// Values are stored as JSON.
type Store interface {
	CreateBucket(bucket string) error
	Get(bucket, id string, v interface{}) error
	List(bucket string, fn func(string, []byte) error) error
	Replace(bucket string, items map[string]interface{}) error
	Close() error
}

type store struct {
	db *bolt.DB
}

var _ Store = (*store)(nil)

// New opens (or creates) the bolt database at path.
func New(path string) (Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open database %s", path)
	}
	return &store{db: db}, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

func (s *store) CreateBucket(bucket string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
			return pkgerrors.Wrapf(err, "failed to create bucket %s", bucket)
		}
		return nil
	})
}

func (s *store) Get(bucket, id string, v interface{}) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s does not exist", bucket)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("key '%s' not found in bucket '%s'", id, bucket)
		}
		return json.Unmarshal(data, v)
	})
}

func (s *store) List(bucket string, fn func(string, []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s does not exist", bucket)
		}
		return b.ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}

// Replace swaps the whole content of a bucket in a single transaction.
// Either every item is written or the bucket is left as it was.
func (s *store) Replace(bucket string, items map[string]interface{}) error {
	encoded := make(map[string][]byte, len(items))
	for id, v := range items {
		data, err := json.Marshal(v)
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to encode %s", id)
		}
		encoded[id] = data
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(bucket)) != nil {
			if err := tx.DeleteBucket([]byte(bucket)); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket([]byte(bucket))
		if err != nil {
			return err
		}
		for id, data := range encoded {
			if err := b.Put([]byte(id), data); err != nil {
				return err
			}
		}
		return nil
	})
}
