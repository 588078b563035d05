package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

const keyPrefix = "completion/"

// BadgerStore is the durable Store implementation, backed by an embedded
// BadgerDB instance in the host application's storage directory. Records are
// written with a TTL matching their expiry so Badger reclaims them without a
// sweeper.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	// Path is the directory for the database files. Ignored when InMemory.
	Path string
	// InMemory disables disk persistence; used by tests.
	InMemory bool
	// Logger receives Badger's internal diagnostics.
	Logger zerolog.Logger
}

// OpenBadger opens (creating if needed) the completion database.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithLogger(badgerLogger{opts.Logger})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open completion db: %w", err)
	}
	return &BadgerStore{db: db, now: time.Now}, nil
}

// Get returns the record for (userID, promptID), or nil when absent or
// already expired.
func (s *BadgerStore) Get(ctx context.Context, userID, promptID string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storageKey(userID, promptID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var r Record
			if err := json.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("decode completion record: %w", err)
			}
			rec = &r
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Set writes a record with a TTL running to its expiry.
func (s *BadgerStore) Set(ctx context.Context, rec Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode completion record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(storageKey(rec.UserID, rec.PromptID), val)
		if ttl := rec.ExpiresAt.Sub(s.now()); ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes a record. Idempotent.
func (s *BadgerStore) Delete(ctx context.Context, userID, promptID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storageKey(userID, promptID))
	})
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func storageKey(userID, promptID string) []byte {
	return []byte(keyPrefix + userID + "/" + promptID)
}

// badgerLogger adapts zerolog to Badger's Logger interface. Badger's routine
// chatter is demoted to debug.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}
