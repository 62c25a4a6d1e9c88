package repository

import (
	"context"
	"testing"
	"time"

	"stoyanka/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisRepo(t *testing.T) (*RedisChallengeRepository, *miniredis.Miniredis) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisChallengeRepository(client), s
}

func testChallenge(reservationID, phase string) *models.Challenge {
	now := time.Now()
	return &models.Challenge{
		ReservationID:     reservationID,
		Phase:             phase,
		Code:              "482913",
		IssuedAt:          now,
		ExpiresAt:         now.Add(30 * time.Minute),
		AttemptsRemaining: 5,
	}
}

func TestRedisChallengeRepository_PutGet(t *testing.T) {
	repo, _ := setupRedisRepo(t)
	ctx := context.Background()

	ch := testChallenge("res-1", models.PhaseCheckIn)
	require.NoError(t, repo.PutChallenge(ctx, ch))

	got, err := repo.GetChallenge(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "482913", got.Code)
	assert.Equal(t, 5, got.AttemptsRemaining)
}

func TestRedisChallengeRepository_GetMissing(t *testing.T) {
	repo, _ := setupRedisRepo(t)

	got, err := repo.GetChallenge(context.Background(), "res-1", models.PhaseCheckOut)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisChallengeRepository_PhasesAreIndependent(t *testing.T) {
	repo, _ := setupRedisRepo(t)
	ctx := context.Background()

	in := testChallenge("res-1", models.PhaseCheckIn)
	out := testChallenge("res-1", models.PhaseCheckOut)
	out.Code = "117650"
	require.NoError(t, repo.PutChallenge(ctx, in))
	require.NoError(t, repo.PutChallenge(ctx, out))

	got, err := repo.GetChallenge(ctx, "res-1", models.PhaseCheckOut)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "117650", got.Code)
}

func TestRedisChallengeRepository_TTLMatchesExpiry(t *testing.T) {
	repo, s := setupRedisRepo(t)
	ctx := context.Background()

	ch := testChallenge("res-1", models.PhaseCheckIn)
	require.NoError(t, repo.PutChallenge(ctx, ch))

	// Ключ живет не дольше срока кода
	s.FastForward(31 * time.Minute)

	got, err := repo.GetChallenge(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisChallengeRepository_Delete(t *testing.T) {
	repo, _ := setupRedisRepo(t)
	ctx := context.Background()

	ch := testChallenge("res-1", models.PhaseCheckIn)
	require.NoError(t, repo.PutChallenge(ctx, ch))
	require.NoError(t, repo.DeleteChallenge(ctx, "res-1", models.PhaseCheckIn))

	got, err := repo.GetChallenge(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Удаление отсутствующего ключа не ошибка
	assert.NoError(t, repo.DeleteChallenge(ctx, "res-1", models.PhaseCheckIn))
}
