package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
}

func newManualTicker() *manualTicker {
	return &manualTicker{
		c:       make(chan time.Time),
		stopped: make(chan struct{}),
	}
}

func (m *manualTicker) C() <-chan time.Time {
	return m.c
}

func (m *manualTicker) Stop() {
	select {
	case <-m.stopped:
	default:
		close(m.stopped)
	}
}

// Tick blocks until the sweeper has received the tick.
func (m *manualTicker) Tick(t *testing.T, now time.Time) {
	t.Helper()

	select {
	case m.c <- now:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not accept tick")
	}
}

func newTestSweeper(h *harness, ticker *manualTicker) *Sweeper {
	s := NewSweeper(h.svc, time.Minute)
	s.newTicker = func(time.Duration) sweepTicker { return ticker }
	return s
}

func TestSweeper_ExpiresOnTicks(t *testing.T) {
	h := newHarness(t, false)
	sess := h.connect(t, "alice")
	msg, err := h.create(sess, Draft{Content: "soon", TTL: "2"}, t0)
	require.Nil(t, err)

	ticker := newManualTicker()
	stop := newTestSweeper(h, ticker).Start(context.Background())

	ticker.Tick(t, t0.Add(time.Hour))
	ticker.Tick(t, t0.Add(2*time.Hour))
	ticker.Tick(t, t0.Add(3*time.Hour))
	stop()

	assert.Equal(t, []int64{msg.ID}, h.hub.expiredIDs())
	assert.Equal(t, 0, h.store.size())

	select {
	case <-ticker.stopped:
	default:
		t.Fatal("ticker was not stopped")
	}
}

func TestSweeper_SurvivesStoreFailure(t *testing.T) {
	h := newHarness(t, false)
	sess := h.connect(t, "alice")
	msg, err := h.create(sess, Draft{Content: "soon", TTL: "1"}, t0)
	require.Nil(t, err)

	ticker := newManualTicker()
	stop := newTestSweeper(h, ticker).Start(context.Background())
	defer stop()

	h.store.setFailQuery(true)
	ticker.Tick(t, t0.Add(2*time.Hour))
	// The second tick is only accepted once the failed one has been handled.
	ticker.Tick(t, t0.Add(2*time.Hour))
	assert.Empty(t, h.hub.expiredIDs())

	h.store.setFailQuery(false)
	ticker.Tick(t, t0.Add(3*time.Hour))
	stop()

	assert.Equal(t, []int64{msg.ID}, h.hub.expiredIDs())
}

func TestSweeper_StopIsIdempotentAndHonorsContext(t *testing.T) {
	h := newHarness(t, false)
	ticker := newManualTicker()

	ctx, cancel := context.WithCancel(context.Background())
	stop := newTestSweeper(h, ticker).Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		stop()
		stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
}

func TestSweeper_PrunesRateLimits(t *testing.T) {
	h := newHarness(t, false)
	sess := h.connect(t, "alice")
	_, err := h.create(sess, Draft{Content: "hi"}, t0)
	require.Nil(t, err)
	require.Equal(t, 1, h.svc.limiter.Len())

	ticker := newManualTicker()
	stop := newTestSweeper(h, ticker).Start(context.Background())
	ticker.Tick(t, t0.Add(time.Minute))
	stop()

	assert.Equal(t, 0, h.svc.limiter.Len())
}

func TestSweeper_RetriesFailedDisconnectExpiry(t *testing.T) {
	h := newHarness(t, false)
	sess := h.connect(t, "alice")
	msg, err := h.create(sess, Draft{Content: "bye", TTL: "disconnect"}, t0)
	require.Nil(t, err)

	h.store.setFailDelete(true)
	h.svc.Disconnect(context.Background(), sess)
	require.Equal(t, 0, h.svc.PresenceCount())
	require.Empty(t, h.hub.expiredIDs())

	ticker := newManualTicker()
	stop := newTestSweeper(h, ticker).Start(context.Background())

	ticker.Tick(t, t0.Add(5*time.Second))
	// Accepted only once the failing tick has been handled.
	ticker.Tick(t, t0.Add(5*time.Second))
	assert.Empty(t, h.hub.expiredIDs())

	h.store.setFailDelete(false)
	ticker.Tick(t, t0.Add(10*time.Second))
	ticker.Tick(t, t0.Add(15*time.Second))
	stop()

	assert.Equal(t, []int64{msg.ID}, h.hub.expiredIDs())
	assert.Equal(t, 0, h.store.size())
}
