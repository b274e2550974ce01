package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tempchat/internal/pkg/logx"
)

// DefaultSweepInterval is the period of the expiry sweeper.
const DefaultSweepInterval = 5 * time.Second

type sweepTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) sweepTicker

// Sweeper periodically expires messages whose absolute expiry is due.
//
// A failed tick is logged and retried on the next one. Deletion is the durable side
// effect, so a sweep interrupted by shutdown leaves nothing behind that the next run
// will not find again.
type Sweeper struct {
	service   *Service
	interval  time.Duration
	newTicker tickerFactory
	log       zerolog.Logger
}

// NewSweeper creates a sweeper for service. A non-positive interval selects DefaultSweepInterval.
func NewSweeper(service *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Sweeper{
		service:  service,
		interval: interval,
		newTicker: func(d time.Duration) sweepTicker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
		log: logx.Component("sweeper"),
	}
}

// Start runs the sweeper in the background. The returned function cancels the loop and
// waits for it to exit; it is safe to call more than once.
func (s *Sweeper) Start(ctx context.Context) func() {
	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.Run(workerCtx)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.newTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("Expiry sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Expiry sweeper stopped")
			return
		case now := <-ticker.C():
			s.tick(ctx, now)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context, now time.Time) {
	n, err := s.service.Sweep(ctx, now)
	switch {
	case err != nil && ctx.Err() != nil:
		return
	case err != nil:
		s.log.Error().Err(err).Msg("Expiry sweep failed, retrying next tick")
	case n > 0:
		s.log.Debug().Int("expired", n).Msg("Expired messages")
	}

	if retried := s.service.RetryDisconnects(ctx); retried > 0 {
		s.log.Debug().Int("expired", retried).Msg("Expired messages of failed disconnects")
	}

	if pruned := s.service.pruneLimiter(now); pruned > 0 {
		s.log.Debug().Int("pruned", pruned).Msg("Pruned idle rate limits")
	}
}
