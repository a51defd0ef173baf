package assets

import (
	"time"

	bolt "go.etcd.io/bbolt"
)

/*
DiskDedupStore is an optional, persistent positive/negative asset-URL index
backed by bbolt. The in-memory Cache remains the hot path under the
asset-cache mutex for the duration of a single run; DiskDedupStore is a
write-through durability layer (each entry is written in its own bbolt
transaction as the cache publishes or fails it) so that a later run against the same
OUTPUT_DIR parent does not re-fetch assets a previous run already archived.
It is not required for correctness within one run.
*/

var (
	positiveBucket = []byte("asset_positive")
	negativeBucket = []byte("asset_negative")
)

type DiskDedupStore struct {
	db *bolt.DB
}

// OpenDiskDedupStore opens (creating if absent) a bbolt database at path.
func OpenDiskDedupStore(path string) (*DiskDedupStore, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(positiveBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(negativeBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &DiskDedupStore{db: db}, nil
}

// LoadInto copies every previously-recorded entry into the in-memory maps
// supplied by a freshly-constructed Cache.
func (d *DiskDedupStore) LoadInto(positive map[string]string, negative map[string]struct{}) {
	if d == nil || d.db == nil {
		return
	}
	_ = d.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(positiveBucket); b != nil {
			_ = b.ForEach(func(k, v []byte) error {
				positive[string(k)] = string(v)
				return nil
			})
		}
		if b := tx.Bucket(negativeBucket); b != nil {
			_ = b.ForEach(func(k, _ []byte) error {
				negative[string(k)] = struct{}{}
				return nil
			})
		}
		return nil
	})
}

func (d *DiskDedupStore) PutPositive(key, path string) {
	if d == nil || d.db == nil {
		return
	}
	_ = d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(positiveBucket).Put([]byte(key), []byte(path))
	})
}

func (d *DiskDedupStore) PutNegative(key string) {
	if d == nil || d.db == nil {
		return
	}
	_ = d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(negativeBucket).Put([]byte(key), []byte{1})
	})
}

func (d *DiskDedupStore) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
