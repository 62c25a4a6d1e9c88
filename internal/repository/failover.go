package repository

import (
	"context"
	"sync/atomic"
	"time"

	"stoyanka/internal/domain"
	"stoyanka/internal/models"

	"github.com/rs/zerolog"
)

// FailoverChallengeRepository routes to the primary store and falls back
// to the in-memory one when the primary errors, probing for recovery
// once a minute.
type FailoverChallengeRepository struct {
	primary   domain.ChallengeRepository
	fallback  domain.ChallengeRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverChallengeRepository(primary, fallback domain.ChallengeRepository, logger *zerolog.Logger) *FailoverChallengeRepository {
	return &FailoverChallengeRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverChallengeRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary challenge repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverChallengeRepository) shouldProbe() bool {
	return r.isDown.Load() && time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverChallengeRepository) GetChallenge(ctx context.Context, reservationID, phase string) (*models.Challenge, error) {
	if !r.isDown.Load() {
		ch, err := r.primary.GetChallenge(ctx, reservationID, phase)
		if err == nil {
			return ch, nil
		}
		r.markDown(err)
	}

	if r.shouldProbe() {
		ch, err := r.primary.GetChallenge(ctx, reservationID, phase)
		if err == nil {
			r.isDown.Store(false)
			return ch, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetChallenge(ctx, reservationID, phase)
}

func (r *FailoverChallengeRepository) PutChallenge(ctx context.Context, ch *models.Challenge) error {
	if !r.isDown.Load() {
		err := r.primary.PutChallenge(ctx, ch)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.PutChallenge(ctx, ch)
}

func (r *FailoverChallengeRepository) DeleteChallenge(ctx context.Context, reservationID, phase string) error {
	if !r.isDown.Load() {
		err := r.primary.DeleteChallenge(ctx, reservationID, phase)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.DeleteChallenge(ctx, reservationID, phase)
}
