package chat

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypingSet_Idempotent(t *testing.T) {
	var published []int
	ts := NewTypingSet(func(n int) { published = append(published, n) })

	ts.SetTyping("a")
	ts.SetTyping("a")
	ts.SetTyping("b")
	ts.ClearTyping("a")
	ts.ClearTyping("a")
	ts.ClearTyping("zzz")
	ts.ClearOnDisconnect("b")
	ts.ClearOnDisconnect("b")

	assert.Equal(t, []int{1, 2, 1, 0, 0}, published)
	assert.Equal(t, 0, ts.Len())
}

func TestTypingSet_MatchesModelUnderInterleaving(t *testing.T) {
	const connections = 8

	handles := make([]Handle, connections)
	for i := range handles {
		handles[i] = Handle(fmt.Sprintf("conn-%d", i))
	}

	rng := rand.New(rand.NewSource(42))
	ts := NewTypingSet(func(n int) {
		assert.GreaterOrEqual(t, n, 0)
	})
	model := map[Handle]bool{}

	for step := 0; step < 2000; step++ {
		h := handles[rng.Intn(connections)]
		switch rng.Intn(3) {
		case 0:
			ts.SetTyping(h)
			model[h] = true
		case 1:
			ts.ClearTyping(h)
			delete(model, h)
		default:
			ts.ClearOnDisconnect(h)
			delete(model, h)
		}
		assert.Equal(t, len(model), ts.Len())
	}
}

func TestTypingSet_ConcurrentConnections(t *testing.T) {
	var mu sync.Mutex
	last := -1
	ts := NewTypingSet(func(n int) {
		mu.Lock()
		defer mu.Unlock()
		assert.GreaterOrEqual(t, n, 0)
		last = n
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(h Handle) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ts.SetTyping(h)
				ts.ClearTyping(h)
			}
			ts.SetTyping(h)
			ts.ClearOnDisconnect(h)
		}(Handle(fmt.Sprintf("h%d", i)))
	}
	wg.Wait()

	assert.Equal(t, 0, ts.Len())
	assert.Equal(t, 0, last)
}
