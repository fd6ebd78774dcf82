// Package boltstore persists terminal progression in a BoltDB file.
package boltstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/n1x/internal/services/n1x/progression"
	"go.etcd.io/bbolt"
)

const (
	bucketName = "progression"
	recordKey  = "local"
)

// Store provides a BoltDB-backed progression store.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open progression db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create progression bucket: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the stored progression. The first call writes defaults so the
// generated identity survives restarts.
func (s *Store) Get() (progression.Progression, error) {
	if s == nil || s.db == nil {
		return progression.Progression{}, fmt.Errorf("storage is not configured")
	}
	var (
		p     progression.Progression
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket([]byte(bucketName)).Get([]byte(recordKey))
		if payload == nil {
			return nil
		}
		found = true
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("unmarshal progression: %w", err)
		}
		return nil
	})
	if err != nil {
		return progression.Progression{}, err
	}
	if found {
		if p.Fragments == nil {
			p.Fragments = []string{}
		}
		return p, nil
	}

	p = progression.Defaults(s.now())
	if err := s.Set(p); err != nil {
		return progression.Progression{}, err
	}
	return p, nil
}

// Set replaces the stored progression.
func (s *Store) Set(p progression.Progression) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progression: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(recordKey), payload)
	})
}

var _ progression.Store = (*Store)(nil)
