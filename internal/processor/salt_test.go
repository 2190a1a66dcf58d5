// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package processor

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

func newMemorySaltStore(t *testing.T) (*BadgerSaltStore, *badger.DB) {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewBadgerSaltStoreFromDB(db), db
}

func TestBadgerSaltStoreStablePerDay(t *testing.T) {
	t.Parallel()

	store, _ := newMemorySaltStore(t)
	day := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	first, err := store.Salt(context.Background(), day)
	if err != nil {
		t.Fatalf("Salt: %v", err)
	}
	if raw, err := base64.StdEncoding.DecodeString(first); err != nil || len(raw) != saltBytes {
		t.Fatalf("salt %q is not base64 of %d bytes (err %v)", first, saltBytes, err)
	}

	// Any time within the same UTC day maps to the same salt.
	later := time.Date(2026, 8, 24, 23, 59, 59, 0, time.UTC)
	second, err := store.Salt(context.Background(), later)
	if err != nil {
		t.Fatalf("Salt: %v", err)
	}
	if second != first {
		t.Errorf("same-day salt changed: %q vs %q", first, second)
	}

	nextDay, err := store.Salt(context.Background(), day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Salt: %v", err)
	}
	if nextDay == first {
		t.Error("next-day salt equals previous day's")
	}
}

func TestBadgerSaltStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	store, db := newMemorySaltStore(t)
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	first, err := store.Salt(context.Background(), day)
	if err != nil {
		t.Fatalf("Salt: %v", err)
	}

	// A second store over the same database sees the stored salt.
	again, err := NewBadgerSaltStoreFromDB(db).Salt(context.Background(), day)
	if err != nil {
		t.Fatalf("Salt: %v", err)
	}
	if again != first {
		t.Errorf("salt after reopen = %q, want %q", again, first)
	}
}

func TestBadgerSaltStoreConcurrentAgree(t *testing.T) {
	t.Parallel()

	store, _ := newMemorySaltStore(t)
	day := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	const workers = 16
	salts := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			salts[i], errs[i] = store.Salt(context.Background(), day)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if salts[i] != salts[0] {
			t.Fatalf("worker %d got a different salt", i)
		}
	}
}

func TestBadgerSaltStoreCloseOwnership(t *testing.T) {
	t.Parallel()

	_, db := newMemorySaltStore(t)

	// A wrapping store never closes a caller-owned database.
	if err := NewBadgerSaltStoreFromDB(db).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if db.IsClosed() {
		t.Error("caller-owned database was closed")
	}
}

func TestDerivedSaltSourceDeterministic(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC)

	a := NewDerivedSaltSource("a-very-long-shared-secret")
	b := NewDerivedSaltSource("a-very-long-shared-secret")

	saltA, err := a.Salt(context.Background(), day)
	if err != nil {
		t.Fatalf("Salt: %v", err)
	}
	saltB, err := b.Salt(context.Background(), day)
	if err != nil {
		t.Fatalf("Salt: %v", err)
	}
	if saltA != saltB {
		t.Error("independent sources with the same secret disagree")
	}

	if raw, err := base64.StdEncoding.DecodeString(saltA); err != nil || len(raw) != saltBytes {
		t.Errorf("salt %q is not base64 of %d bytes (err %v)", saltA, saltBytes, err)
	}

	nextDay, err := a.Salt(context.Background(), day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Salt: %v", err)
	}
	if nextDay == saltA {
		t.Error("derived salt does not rotate across days")
	}

	other, err := NewDerivedSaltSource("another-secret").Salt(context.Background(), day)
	if err != nil {
		t.Fatalf("Salt: %v", err)
	}
	if other == saltA {
		t.Error("different secrets derive the same salt")
	}
}
