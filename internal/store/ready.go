package store

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultReadyDelay is the pause between readiness probes.
const DefaultReadyDelay = 2 * time.Second

// WaitReady blocks until p answers Ping, probing once per delay. It never
// gives up on its own; only ctx ends the wait early. It returns the number
// of probes made.
func WaitReady(ctx context.Context, p Pinger, delay time.Duration, log *zap.Logger) (int, error) {
	if delay <= 0 {
		delay = DefaultReadyDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Every(delay), 1)

	attempts := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			// The next probe would land past the deadline.
			<-ctx.Done()
			return attempts, ctx.Err()
		}
		attempts++
		err := p.Ping(ctx)
		if err == nil {
			if attempts > 1 {
				log.Info("store reachable", zap.Int("attempts", attempts))
			}
			return attempts, nil
		}
		if ctx.Err() != nil {
			return attempts, ctx.Err()
		}
		log.Warn("store not reachable yet",
			zap.Int("attempt", attempts),
			zap.Duration("retry_in", delay),
			zap.Error(err))
	}
}
