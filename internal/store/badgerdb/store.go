// Package badgerdb is an embedded key-value backend for PromptVault built on
// Badger. Values are JSON; secondary indexes are empty-valued keys.
package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/promptvault/promptvault-server/internal/domain"
	"github.com/promptvault/promptvault-server/internal/store"
)

const (
	promptPrefix     = "prompt:"
	promptOwnerIndex = "idx:prompt:owner:"
	userPrefix       = "user:"
	userEmailIndex   = "idx:user:email:"
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ store.Backend = (*Store)(nil)

// Open opens (or creates) a Badger database in dir. An empty dir opens an
// in-memory database.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	logger.Info("badger store opened", "path", dir)
	return &Store{db: db, logger: logger}, nil
}

// Ping reports whether the database is open.
func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return store.ErrClosed
	}
	return nil
}

// Close gracefully closes the database.
func (s *Store) Close() error {
	s.logger.Info("closing badger store")
	return s.db.Close()
}

// CreateUser stores a new user and its email index entry.
func (s *Store) CreateUser(_ context.Context, u *domain.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	emailKey := []byte(userEmailIndex + domain.NormalizeEmail(u.Email))
	userKey := []byte(userPrefix + u.ID)

	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range [][]byte{userKey, emailKey} {
			if _, err := txn.Get(key); err == nil {
				return store.ErrAlreadyExists
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		if err := txn.Set(userKey, data); err != nil {
			return err
		}
		return txn.Set(emailKey, []byte(u.ID))
	})
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := s.get([]byte(userPrefix+id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail resolves the email index and loads the user.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var userID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userEmailIndex + domain.NormalizeEmail(email)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			userID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

// InsertPromptRecord stores a prompt and its owner index entry.
func (s *Store) InsertPromptRecord(_ context.Context, rec *store.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal prompt: %w", err)
	}
	key := []byte(promptPrefix + rec.ID)

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return store.ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(ownerKey(rec.Data.OwnerID, rec.ID), nil)
	})
}

// GetPromptRecord retrieves a prompt by ID.
func (s *Store) GetPromptRecord(_ context.Context, id string) (*store.Record, error) {
	var rec store.Record
	if err := s.get([]byte(promptPrefix+id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeletePromptRecord removes a prompt and its index entry.
func (s *Store) DeletePromptRecord(_ context.Context, id string) error {
	key := []byte(promptPrefix + id)
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		var rec store.Record
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(ownerKey(rec.Data.OwnerID, id))
	})
}

// ListPromptRecords walks the owner index and returns records newest first.
func (s *Store) ListPromptRecords(_ context.Context, ownerID string) ([]*store.Record, error) {
	var recs []*store.Record
	prefix := []byte(promptOwnerIndex + ownerID + ":")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			item, err := txn.Get([]byte(promptPrefix + id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				s.logger.Warn("dangling prompt index entry", "prompt_id", id, "owner_id", ownerID)
				continue
			}
			if err != nil {
				return err
			}
			rec, err := decodeRecord(item)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	store.SortRecords(recs)
	return recs, nil
}

// ListAllPromptRecords returns every prompt, newest first.
func (s *Store) ListAllPromptRecords(context.Context) ([]*store.Record, error) {
	var recs []*store.Record
	prefix := []byte(promptPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rec, err := decodeRecord(it.Item())
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	store.SortRecords(recs)
	return recs, nil
}

// CountPromptRecords counts prompt keys without loading values.
func (s *Store) CountPromptRecords(context.Context) (int, error) {
	n := 0
	prefix := []byte(promptPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// get retrieves a JSON value by key, mapping a missing key to store.ErrNotFound.
func (s *Store) get(key []byte, dest any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	return err
}

func decodeRecord(item *badger.Item) (*store.Record, error) {
	var rec store.Record
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", item.Key(), err)
	}
	return &rec, nil
}

func ownerKey(ownerID, promptID string) []byte {
	return []byte(promptOwnerIndex + ownerID + ":" + promptID)
}
