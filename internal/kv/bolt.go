package kv

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

const (
	metadataBucket = "metadata"
	stateBucket    = "state"
	versionKey     = "version"
)

type boltStore struct {
	db *bolt.DB
}

// Open creates (or loads) a bbolt backed store at path.
func Open(path string) (Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", path, err)
	}

	if err = db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists([]byte(stateBucket)); err != nil {
			return err
		}

		if b := bkt.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != 0 {
				return fmt.Errorf("kv: incompatible version: %d", uint(b[0]))
			}
			return nil
		}
		return bkt.Put([]byte(versionKey), []byte{0})
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &boltStore{db: db}, nil
}

func (s *boltStore) Get(key string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(stateBucket)).Get([]byte(key)); v != nil {
			// v is only valid for the life of the transaction.
			value, ok = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, ok, nil
}

func (s *boltStore) Set(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(stateBucket)).Put([]byte(key), []byte(value))
	})
}

func (s *boltStore) Delete(keys ...string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(stateBucket))
		for _, k := range keys {
			if err := bkt.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *boltStore) Close() error {
	s.db.Sync()
	return s.db.Close()
}
