/*
Package storetest holds the behavioral suite every chat.Store implementation must pass.
Each backend's tests call Run with a constructor that returns an empty store.
*/
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempchat/internal/app/chat"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) chat.Store

// base is truncated so values survive backends that store microsecond precision.
var base = time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("DeleteByID", func(t *testing.T) { testDeleteByID(t, newStore(t)) })
	t.Run("DeleteBatchReportsOnlyRemoved", func(t *testing.T) { testDeleteBatch(t, newStore(t)) })
	t.Run("ConcurrentDeleteBatchIsExclusive", func(t *testing.T) { testConcurrentDeleteBatch(t, newStore(t)) })
	t.Run("QueryDueExpirations", func(t *testing.T) { testQueryDue(t, newStore(t)) })
	t.Run("QueryByAuthorAndMode", func(t *testing.T) { testQueryByAuthorAndMode(t, newStore(t)) })
	t.Run("QueryByMode", func(t *testing.T) { testQueryByMode(t, newStore(t)) })
	t.Run("QueryRecentLive", func(t *testing.T) { testQueryRecentLive(t, newStore(t)) })
}

func at(d time.Duration) *time.Time {
	ts := base.Add(d)
	return &ts
}

func insert(t *testing.T, s chat.Store, msg chat.Message) chat.Message {
	t.Helper()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = base
	}
	if msg.AuthorID == "" {
		msg.AuthorID = "alice"
	}

	saved, err := s.Insert(context.Background(), msg)
	require.NoError(t, err)
	return saved
}

func ids(msgs []chat.Message) []int64 {
	return lo.Map(msgs, func(m chat.Message, _ int) int64 { return m.ID })
}

func testInsertAndGet(t *testing.T, s chat.Store) {
	ctx := context.Background()

	first := insert(t, s, chat.Message{Content: "hello", ExpiresAt: at(time.Hour)})
	second := insert(t, s, chat.Message{
		AuthorID:           "bob",
		Image:              []byte{0x89, 'P', 'N', 'G'},
		ImageType:          "image/png",
		ExpireOnDisconnect: true,
	})
	third := insert(t, s, chat.Message{Content: "forever", ImageKey: "images/k.png", ImageType: "image/png"})

	assert.Greater(t, first.ID, int64(0))
	assert.Greater(t, second.ID, first.ID)
	assert.Greater(t, third.ID, second.ID)

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.AuthorID)
	assert.Equal(t, "hello", got.Content)
	assert.True(t, got.CreatedAt.Equal(base))
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(base.Add(time.Hour)))
	assert.Equal(t, chat.ExpireAt, got.Mode())

	got, err = s.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, got.Image)
	assert.Equal(t, "image/png", got.ImageType)
	assert.Nil(t, got.ExpiresAt)
	assert.Equal(t, chat.ExpireOnDisconnect, got.Mode())

	got, err = s.Get(ctx, third.ID)
	require.NoError(t, err)
	assert.Equal(t, "images/k.png", got.ImageKey)
	assert.Empty(t, got.Image)
	assert.Equal(t, chat.ExpireNever, got.Mode())
}

func testGetMissing(t *testing.T, s chat.Store) {
	_, err := s.Get(context.Background(), 424242)
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func testDeleteByID(t *testing.T, s chat.Store) {
	ctx := context.Background()
	msg := insert(t, s, chat.Message{Content: "bye"})

	ok, err := s.DeleteByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeleteByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, msg.ID)
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func testDeleteBatch(t *testing.T, s chat.Store) {
	ctx := context.Background()
	a := insert(t, s, chat.Message{Content: "a", ExpiresAt: at(time.Minute)})
	b := insert(t, s, chat.Message{Content: "b", ExpireOnDisconnect: true})
	c := insert(t, s, chat.Message{Content: "c"})

	deleted, err := s.DeleteBatch(ctx, []int64{a.ID, b.ID, 999999})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, deleted)

	deleted, err = s.DeleteBatch(ctx, []int64{a.ID, b.ID})
	require.NoError(t, err)
	assert.Empty(t, deleted)

	deleted, err = s.DeleteBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	_, err = s.Get(ctx, c.ID)
	assert.NoError(t, err)

	// Expiry indexes must not keep pointing at removed rows.
	due, err := s.QueryDueExpirations(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
	orphans, err := s.QueryByMode(ctx, chat.ExpireOnDisconnect)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func testConcurrentDeleteBatch(t *testing.T, s chat.Store) {
	ctx := context.Background()

	var all []int64
	for i := 0; i < 20; i++ {
		all = append(all, insert(t, s, chat.Message{Content: "x", ExpiresAt: at(time.Second)}).ID)
	}

	const workers = 4
	results := make([][]int64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			deleted, err := s.DeleteBatch(ctx, all)
			assert.NoError(t, err)
			results[w] = deleted
		}(w)
	}
	wg.Wait()

	combined := lo.Flatten(results)
	assert.Len(t, combined, len(all), "every id is reported by exactly one deleter")
	assert.ElementsMatch(t, all, combined)
}

func testQueryDue(t *testing.T, s chat.Store) {
	ctx := context.Background()
	past := insert(t, s, chat.Message{Content: "past", ExpiresAt: at(-time.Minute)})
	exact := insert(t, s, chat.Message{Content: "exact", ExpiresAt: at(0)})
	insert(t, s, chat.Message{Content: "future", ExpiresAt: at(time.Minute)})
	insert(t, s, chat.Message{Content: "disconnect", ExpireOnDisconnect: true})
	insert(t, s, chat.Message{Content: "never"})

	due, err := s.QueryDueExpirations(ctx, base)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{past.ID, exact.ID}, ids(due))
}

func testQueryByAuthorAndMode(t *testing.T, s chat.Store) {
	ctx := context.Background()
	mine := insert(t, s, chat.Message{AuthorID: "alice", ExpireOnDisconnect: true, Content: "1"})
	insert(t, s, chat.Message{AuthorID: "alice", ExpiresAt: at(time.Hour), Content: "2"})
	insert(t, s, chat.Message{AuthorID: "bob", ExpireOnDisconnect: true, Content: "3"})

	got, err := s.QueryByAuthorAndMode(ctx, "alice", chat.ExpireOnDisconnect)
	require.NoError(t, err)
	assert.Equal(t, []int64{mine.ID}, ids(got))

	got, err = s.QueryByAuthorAndMode(ctx, "carol", chat.ExpireOnDisconnect)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testQueryByMode(t *testing.T, s chat.Store) {
	ctx := context.Background()
	a := insert(t, s, chat.Message{AuthorID: "alice", ExpireOnDisconnect: true, Content: "1"})
	b := insert(t, s, chat.Message{AuthorID: "bob", ExpireOnDisconnect: true, Content: "2"})
	insert(t, s, chat.Message{AuthorID: "bob", ExpiresAt: at(time.Hour), Content: "3"})

	got, err := s.QueryByMode(ctx, chat.ExpireOnDisconnect)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, ids(got))
}

func testQueryRecentLive(t *testing.T, s chat.Store) {
	ctx := context.Background()
	one := insert(t, s, chat.Message{Content: "1"})
	insert(t, s, chat.Message{Content: "expired", ExpiresAt: at(-time.Second)})
	two := insert(t, s, chat.Message{Content: "2", ExpireOnDisconnect: true})
	three := insert(t, s, chat.Message{Content: "3", ExpiresAt: at(time.Hour)})

	got, err := s.QueryRecentLive(ctx, base, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{one.ID, two.ID, three.ID}, ids(got))

	got, err = s.QueryRecentLive(ctx, base, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{two.ID, three.ID}, ids(got))

	got, err = s.QueryRecentLive(ctx, base.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{one.ID, two.ID}, ids(got))
}
