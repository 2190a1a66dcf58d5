// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package processor

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/sync/singleflight"
)

const (
	saltBytes = 32
	saltTTL   = 24 * time.Hour
)

// SaltSource yields the anonymization salt for the UTC day an event
// occurred on. Implementations must be safe for concurrent use.
type SaltSource interface {
	Salt(ctx context.Context, day time.Time) (string, error)
}

// BadgerSaltStore generates one random 32-byte salt per UTC day and
// persists it so restarts within the day keep hashing consistently.
// Entries expire after 24 hours. Generation is single-flighted so
// concurrent indexer workers agree on the first salt written.
type BadgerSaltStore struct {
	db     *badger.DB
	group  singleflight.Group
	ownsDB bool
}

// NewBadgerSaltStore opens a BadgerDB at the given directory and wraps
// it in a salt store. Close releases the database.
func NewBadgerSaltStore(dir string) (*BadgerSaltStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for salts: %w", err)
	}
	return &BadgerSaltStore{db: db, ownsDB: true}, nil
}

// NewBadgerSaltStoreFromDB wraps an already opened database. Close
// becomes a no-op; the caller keeps ownership.
func NewBadgerSaltStoreFromDB(db *badger.DB) *BadgerSaltStore {
	return &BadgerSaltStore{db: db}
}

// Salt implements SaltSource.
func (s *BadgerSaltStore) Salt(ctx context.Context, day time.Time) (string, error) {
	key := saltKey(day)

	v, err, _ := s.group.Do(string(key), func() (any, error) {
		var salt string
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err == nil {
				return item.Value(func(val []byte) error {
					salt = string(val)
					return nil
				})
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			raw := make([]byte, saltBytes)
			if _, err := rand.Read(raw); err != nil {
				return fmt.Errorf("generate salt: %w", err)
			}
			salt = base64.StdEncoding.EncodeToString(raw)

			entry := badger.NewEntry(key, []byte(salt)).WithTTL(saltTTL)
			return txn.SetEntry(entry)
		})
		return salt, err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Close closes the underlying database when this store opened it.
func (s *BadgerSaltStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func saltKey(day time.Time) []byte {
	return []byte("salt:" + day.UTC().Format("2006-01-02"))
}

// DerivedSaltSource derives the daily salt from a configured secret
// with HKDF. Independent workers with the same secret agree on the salt
// without shared storage, at the cost of the salt being reproducible by
// anyone holding the secret.
type DerivedSaltSource struct {
	secret []byte
}

// NewDerivedSaltSource creates a source keyed by the given secret.
func NewDerivedSaltSource(secret string) *DerivedSaltSource {
	return &DerivedSaltSource{secret: []byte(secret)}
}

// Salt implements SaltSource.
func (s *DerivedSaltSource) Salt(ctx context.Context, day time.Time) (string, error) {
	info := []byte("statflow-anonymization-salt:" + day.UTC().Format("2006-01-02"))

	raw := make([]byte, saltBytes)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.secret, nil, info), raw); err != nil {
		return "", fmt.Errorf("derive salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
