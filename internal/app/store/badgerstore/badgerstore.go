/*
Package badgerstore persists messages and user profiles in an embedded BadgerDB.

Key layout:

	msg:{id:020}                 JSON-encoded chat.Message
	exp:{expiresAt:019}:{id:020} index of absolute expirations, ordered by due time
	dsc:{author}\x00{id:020}     index of on-disconnect messages per author
	usr:{id}                     JSON-encoded user.User

Zero padding keeps lexicographic key order equal to numeric order, so prefix scans return
messages oldest first and expiry scans can stop at the first key that is not yet due.
*/
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"tempchat/internal/app/chat"
	"tempchat/internal/pkg/logx"
)

const (
	msgPrefix = "msg:"
	expPrefix = "exp:"
	dscPrefix = "dsc:"

	sequenceKey       = "seq:messages"
	sequenceBandwidth = 100

	// maxConflictRetries bounds retries of transactions that lost an SSI conflict.
	maxConflictRetries = 16
)

// Store implements chat.Store on BadgerDB.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
	log zerolog.Logger
}

// Open opens (or creates) the database at path. An empty path opens an in-memory instance.
func Open(path string) (*Store, error) {
	log := logx.Component("badger")

	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{log: log}).WithLoggingLevel(badger.WARNING)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}

	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open message sequence: %w", err)
	}

	return &Store{db: db, seq: seq, log: log}, nil
}

// Close releases the id sequence and closes the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to release message sequence")
	}
	return s.db.Close()
}

func msgKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", msgPrefix, id))
}

func expKey(at time.Time, id int64) []byte {
	return []byte(fmt.Sprintf("%s%019d:%020d", expPrefix, max(at.UnixNano(), 0), id))
}

func dscAuthorPrefix(author string) []byte {
	return []byte(dscPrefix + author + "\x00")
}

func dscKey(author string, id int64) []byte {
	return append(dscAuthorPrefix(author), []byte(fmt.Sprintf("%020d", id))...)
}

// idFromIndexKey parses the trailing 20-digit id of an index key.
func idFromIndexKey(key []byte) (int64, error) {
	if len(key) < 20 {
		return 0, fmt.Errorf("malformed index key %q", key)
	}
	return strconv.ParseInt(string(key[len(key)-20:]), 10, 64)
}

// indexKeys returns the secondary index entries for msg.
func indexKeys(msg chat.Message) [][]byte {
	switch msg.Mode() {
	case chat.ExpireAt:
		return [][]byte{expKey(*msg.ExpiresAt, msg.ID)}
	case chat.ExpireOnDisconnect:
		return [][]byte{dscKey(msg.AuthorID, msg.ID)}
	default:
		return nil
	}
}

// update runs fn in a read-write transaction, retrying when it loses a conflict.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *Store) Insert(_ context.Context, msg chat.Message) (chat.Message, error) {
	next, err := s.seq.Next()
	if err != nil {
		return chat.Message{}, fmt.Errorf("next message id: %w", err)
	}
	msg.ID = int64(next) + 1

	value, err := json.Marshal(msg)
	if err != nil {
		return chat.Message{}, fmt.Errorf("encode message: %w", err)
	}

	err = s.update(func(txn *badger.Txn) error {
		if err := txn.Set(msgKey(msg.ID), value); err != nil {
			return err
		}
		for _, key := range indexKeys(msg) {
			if err := txn.Set(key, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message %d: %w", msg.ID, err)
	}

	return msg, nil
}

func getMessage(txn *badger.Txn, id int64) (chat.Message, error) {
	item, err := txn.Get(msgKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chat.Message{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.Message{}, err
	}

	var msg chat.Message
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &msg)
	})
	return msg, err
}

func (s *Store) Get(_ context.Context, id int64) (chat.Message, error) {
	var msg chat.Message
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		msg, err = getMessage(txn, id)
		return err
	})
	return msg, err
}

func (s *Store) DeleteByID(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.DeleteBatch(ctx, []int64{id})
	return len(deleted) == 1, err
}

// DeleteBatch removes the messages and their index entries in one transaction. Concurrent
// callers conflict on the message keys, and the loser retries against the winner's result,
// so each id is reported by exactly one caller.
func (s *Store) DeleteBatch(_ context.Context, ids []int64) ([]int64, error) {
	var deleted []int64

	err := s.update(func(txn *badger.Txn) error {
		deleted = deleted[:0]
		for _, id := range ids {
			msg, err := getMessage(txn, id)
			if errors.Is(err, chat.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			if err := txn.Delete(msgKey(id)); err != nil {
				return err
			}
			for _, key := range indexKeys(msg) {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			deleted = append(deleted, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete batch: %w", err)
	}

	return deleted, nil
}

// fromIndex loads the messages referenced by the index keys under prefix. stop, when set,
// ends the scan at the first key it accepts.
func (s *Store) fromIndex(prefix []byte, stop func(key []byte) bool) ([]chat.Message, error) {
	var out []chat.Message

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var ids []int64
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if stop != nil && stop(key) {
				break
			}
			id, err := idFromIndexKey(key)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		for _, id := range ids {
			msg, err := getMessage(txn, id)
			if errors.Is(err, chat.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, msg)
		}
		return nil
	})

	return out, err
}

func (s *Store) QueryDueExpirations(_ context.Context, now time.Time) ([]chat.Message, error) {
	// The index is ordered by due time, so the scan stops at the first entry after now.
	cutoff := fmt.Sprintf("%019d", max(now.UnixNano(), 0))

	msgs, err := s.fromIndex([]byte(expPrefix), func(key []byte) bool {
		return string(key[len(expPrefix):len(expPrefix)+19]) > cutoff
	})
	if err != nil {
		return nil, fmt.Errorf("query due expirations: %w", err)
	}
	return msgs, nil
}

func (s *Store) QueryByAuthorAndMode(_ context.Context, authorID string, mode chat.ExpiryMode) ([]chat.Message, error) {
	if mode == chat.ExpireOnDisconnect {
		msgs, err := s.fromIndex(dscAuthorPrefix(authorID), nil)
		if err != nil {
			return nil, fmt.Errorf("query disconnect messages of %s: %w", authorID, err)
		}
		return msgs, nil
	}

	return s.scan(func(m chat.Message) bool {
		return m.AuthorID == authorID && m.Mode() == mode
	}, 0, false)
}

func (s *Store) QueryByMode(_ context.Context, mode chat.ExpiryMode) ([]chat.Message, error) {
	switch mode {
	case chat.ExpireOnDisconnect:
		return s.fromIndex([]byte(dscPrefix), nil)
	case chat.ExpireAt:
		return s.fromIndex([]byte(expPrefix), nil)
	default:
		return s.scan(func(m chat.Message) bool { return m.Mode() == mode }, 0, false)
	}
}

func (s *Store) QueryRecentLive(_ context.Context, now time.Time, limit int) ([]chat.Message, error) {
	return s.scan(func(m chat.Message) bool { return m.IsLive(now) }, limit, true)
}

// scan walks the message keys and keeps the matches, oldest first. With newest set the walk
// runs backwards and stops after limit matches.
func (s *Store) scan(keep func(chat.Message) bool, limit int, newest bool) ([]chat.Message, error) {
	var out []chat.Message
	prefix := []byte(msgPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = newest
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := prefix
		if newest {
			seek = append([]byte(msgPrefix), 0xFF)
		}

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) == limit {
				break
			}

			var msg chat.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			if keep(msg) {
				out = append(out, msg)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}

	if newest {
		slices.Reverse(out)
	}
	return out, nil
}

// badgerLogger routes badger's internal logging through zerolog.
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
	l.log.Info().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}
