package store

import (
	"encoding/json"
	"os"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"dev.csaopt.io/csaopt/internal/core/domain"
)

// BoltRunStore persiste el histórico de ejecuciones en un fichero bolt.
type BoltRunStore struct {
	db     *bolt.DB
	bucket string
}

// NewBoltRunStore abre (o crea) la base de datos y su bucket.
func NewBoltRunStore(path string, mode os.FileMode, bucket string) (*BoltRunStore, error) {
	db, err := bolt.Open(path, mode, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open run store %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, berr := tx.CreateBucketIfNotExists([]byte(bucket))
		return berr
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "unable to create runs bucket")
	}

	return &BoltRunStore{db: db, bucket: bucket}, nil
}

func (s *BoltRunStore) Save(run *domain.RunRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := json.Marshal(run)
		if err != nil {
			return errors.Wrap(err, "unable to marshal run record")
		}
		return tx.Bucket([]byte(s.bucket)).Put([]byte(run.ID), b)
	})
}

func (s *BoltRunStore) Get(id string) (*domain.RunRecord, error) {
	var run domain.RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(s.bucket)).Get([]byte(id))
		if raw == nil {
			return errors.Errorf("run %s not found", id)
		}
		return json.Unmarshal(raw, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *BoltRunStore) List() ([]*domain.RunRecord, error) {
	var runs []*domain.RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(s.bucket)).ForEach(func(_, v []byte) error {
			var run domain.RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			runs = append(runs, &run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *BoltRunStore) Close() error {
	return s.db.Close()
}
