package cosmos

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adobe/aio-tvm/internal/core"
)

const (
	DefaultMaxAttempts     = 5
	DefaultInitialInterval = 50 * time.Millisecond
	DefaultMultiplier      = 1.5
)

// SleepFunc pauses for d, or returns early with an error when ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RaceResolver re-reads a resource whose creation conflicted with a
// concurrent request until the winner's resource becomes visible.
type RaceResolver struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	Sleep           SleepFunc
}

func NewRaceResolver() *RaceResolver {
	return &RaceResolver{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		Multiplier:      DefaultMultiplier,
		Sleep:           sleepContext,
	}
}

// raceState is the per request state of a resolution.
type raceState struct {
	attempt  int
	interval time.Duration
	lastErr  error
}

// Resolve calls read up to MaxAttempts times. It sleeps between attempts
// only, growing the interval by Multiplier. A not found result is retried,
// any other failure is returned immediately.
func (r *RaceResolver) Resolve(ctx context.Context, read func(ctx context.Context) (*Permission, error)) (*Permission, error) {
	logger := log.Ctx(ctx)
	state := raceState{interval: r.InitialInterval}

	for state.attempt = 1; state.attempt <= r.MaxAttempts; state.attempt++ {
		if state.attempt > 1 {
			if err := r.Sleep(ctx, state.interval); err != nil {
				return nil, err
			}
			state.interval = time.Duration(float64(state.interval) * r.Multiplier)
		}

		perm, err := read(ctx)
		if err == nil {
			logger.Debug().Int("attempt", state.attempt).Msg("race resolved")
			return perm, nil
		}
		if !core.IsNotFound(err) {
			return nil, err
		}
		state.lastErr = err
		logger.Debug().Int("attempt", state.attempt).Msg("resource not visible yet")
	}
	return nil, fmt.Errorf("resource still missing after %d attempts: %w", r.MaxAttempts, state.lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
