// Package history persists the append-only ciphertext message log in
// BadgerDB and serves the ordered replay snapshots built at join time.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"github.com/bytechat/bytechat/internal/room"
)

// Keys are "msg:" followed by a 19-digit zero-padded insertion index so
// lexicographic key order is insertion order. The index survives process
// restarts: Open seeks the newest key to resume the sequence.
const keyPrefix = "msg:"

// maxSeekKey sorts after every padded index under the prefix.
const maxSeekKey = keyPrefix + "9999999999999999999"

// Store is the durable HistoryStore implementation. Appends never
// reorder or deduplicate; Recent returns the newest entries oldest
// first, which is the replay order.
type Store struct {
	db  *badger.DB
	log *slog.Logger
	seq atomic.Uint64
}

// Open opens (or creates) the history database at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{log: log})
	return open(opts, log)
}

// OpenInMemory opens a history database that lives only for the process
// lifetime. Used by tests and ephemeral deployments.
func OpenInMemory(log *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{log: log})
	return open(opts, log)
}

func open(opts badger.Options, log *slog.Logger) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	s := &Store{db: db, log: log}
	if err := s.restoreSequence(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append durably stores the message at the end of the log.
func (s *Store) Append(msg room.Message) error {
	idx := s.seq.Add(1) - 1
	key := fmt.Sprintf("%s%019d", keyPrefix, idx)
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Recent returns up to limit of the most recent messages in oldest-first
// order. A non-positive limit returns the whole log. Internally the scan
// walks newest-first and reverses before returning, so replay order is
// always insertion order.
func (s *Store) Recent(limit int) ([]room.Message, error) {
	var raw [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek([]byte(maxSeekKey)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(raw) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]room.Message, 0, len(raw))
	for _, value := range raw {
		var msg room.Message
		if err := json.Unmarshal(value, &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return lo.Reverse(messages), nil
}

// Len returns the number of persisted messages.
func (s *Store) Len() int {
	return int(s.seq.Load())
}

func (s *Store) restoreSequence() error {
	return s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		it.Seek([]byte(maxSeekKey))
		if !it.ValidForPrefix([]byte(keyPrefix)) {
			return nil
		}
		last := string(it.Item().Key())[len(keyPrefix):]
		idx, err := strconv.ParseUint(last, 10, 64)
		if err != nil {
			return fmt.Errorf("corrupt history key %q: %w", it.Item().Key(), err)
		}
		s.seq.Store(idx + 1)
		return nil
	})
}

// badgerLogger adapts slog to badger's logger interface. Badger is
// chatty at info level, so its info and debug output is demoted to
// debug.
type badgerLogger struct {
	log *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.log.Error(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.log.Warn(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.log.Debug(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.log.Debug(fmt.Sprintf(format, args...))
}
