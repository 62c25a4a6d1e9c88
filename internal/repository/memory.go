package repository

import (
	"context"
	"sync"
	"time"

	"stoyanka/internal/models"
)

// MemoryChallengeRepository is the in-process fallback store used when
// Redis is unavailable. Expired challenges are dropped lazily on read.
type MemoryChallengeRepository struct {
	challenges sync.Map
}

func NewMemoryChallengeRepository() *MemoryChallengeRepository {
	return &MemoryChallengeRepository{}
}

func (r *MemoryChallengeRepository) GetChallenge(ctx context.Context, reservationID, phase string) (*models.Challenge, error) {
	val, ok := r.challenges.Load(challengeKey(reservationID, phase))
	if !ok {
		return nil, nil
	}
	ch := val.(*models.Challenge)
	if time.Now().After(ch.ExpiresAt) && ch.ConsumedAt == nil {
		r.challenges.Delete(challengeKey(reservationID, phase))
		return nil, nil
	}
	copied := *ch
	return &copied, nil
}

func (r *MemoryChallengeRepository) PutChallenge(ctx context.Context, ch *models.Challenge) error {
	copied := *ch
	r.challenges.Store(challengeKey(ch.ReservationID, ch.Phase), &copied)
	return nil
}

func (r *MemoryChallengeRepository) DeleteChallenge(ctx context.Context, reservationID, phase string) error {
	r.challenges.Delete(challengeKey(reservationID, phase))
	return nil
}
