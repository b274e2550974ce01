/*
Package memory provides an in-process implementation of the chat message store.

Messages live in a map guarded by a single mutex; nothing survives a restart. It is the
default store in development and the reference implementation for the store conformance
suite.
*/
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"tempchat/internal/app/chat"
)

// Store is a mutex-guarded message map.
type Store struct {
	mu       sync.Mutex
	lastID   int64
	messages map[int64]chat.Message
}

// New returns an empty store.
func New() *Store {
	return &Store{messages: make(map[int64]chat.Message)}
}

func (s *Store) Insert(_ context.Context, msg chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	msg.ID = s.lastID
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *Store) Get(_ context.Context, id int64) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return chat.Message{}, chat.ErrNotFound
	}
	return msg, nil
}

func (s *Store) DeleteByID(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return false, nil
	}
	delete(s.messages, id)
	return true, nil
}

func (s *Store) DeleteBatch(_ context.Context, ids []int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := make([]int64, 0, len(ids))
	for _, id := range lo.Uniq(ids) {
		if _, ok := s.messages[id]; ok {
			delete(s.messages, id)
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}

func (s *Store) QueryDueExpirations(_ context.Context, now time.Time) ([]chat.Message, error) {
	return s.filter(func(m chat.Message) bool {
		return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
	}), nil
}

func (s *Store) QueryByAuthorAndMode(_ context.Context, authorID string, mode chat.ExpiryMode) ([]chat.Message, error) {
	return s.filter(func(m chat.Message) bool {
		return m.AuthorID == authorID && m.Mode() == mode
	}), nil
}

func (s *Store) QueryByMode(_ context.Context, mode chat.ExpiryMode) ([]chat.Message, error) {
	return s.filter(func(m chat.Message) bool {
		return m.Mode() == mode
	}), nil
}

func (s *Store) QueryRecentLive(_ context.Context, now time.Time, limit int) ([]chat.Message, error) {
	live := s.filter(func(m chat.Message) bool {
		return m.IsLive(now)
	})

	if limit > 0 && len(live) > limit {
		live = live[len(live)-limit:]
	}
	return live, nil
}

// filter returns the matching messages ordered by id.
func (s *Store) filter(keep func(chat.Message) bool) []chat.Message {
	s.mu.Lock()
	out := lo.Filter(lo.Values(s.messages), func(m chat.Message, _ int) bool {
		return keep(m)
	})
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b chat.Message) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
