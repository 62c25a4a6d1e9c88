package worker

import (
	"context"
	"time"

	"stoyanka/internal/lifecycle"

	"github.com/rs/zerolog"
)

// Sweeper periodically auto-rejects pending reservations whose window
// started without a provider decision. Transient store errors back off
// exponentially instead of hammering the database.
type Sweeper struct {
	coord    *lifecycle.Coordinator
	interval time.Duration
	policy   RetryPolicy
	logger   zerolog.Logger
}

func NewSweeper(coord *lifecycle.Coordinator, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	var l zerolog.Logger
	if logger != nil {
		l = logger.With().Str("component", "sweeper").Logger()
	}
	return &Sweeper{
		coord:    coord,
		interval: interval,
		policy: RetryPolicy{
			MaxRetries:    5,
			InitialDelay:  time.Second,
			MaxDelay:      time.Minute,
			BackoffFactor: 2,
		},
		logger: l,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("sweeper started")

	failures := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			expired, err := s.coord.ExpirePending(ctx)
			if err != nil {
				failures++
				delay := s.policy.NextDelay(failures)
				s.logger.Error().Err(err).Dur("backoff", delay).Msg("sweep failed")
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				continue
			}
			failures = 0
			if expired > 0 {
				s.logger.Info().Int("expired", expired).Msg("stale pending reservations expired")
			}
		}
	}
}
