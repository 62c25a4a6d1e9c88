package repository

import (
	"context"
	"testing"
	"time"

	"stoyanka/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailover_FallsBackToMemory(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zerolog.Nop()
	repo := NewFailoverChallengeRepository(
		NewRedisChallengeRepository(client),
		NewMemoryChallengeRepository(),
		&logger,
	)
	ctx := context.Background()

	ch := testChallenge("res-1", models.PhaseCheckIn)
	require.NoError(t, repo.PutChallenge(ctx, ch))

	// Redis падает; запись уходит в память и остается читаемой
	s.Close()

	ch2 := testChallenge("res-2", models.PhaseCheckIn)
	require.NoError(t, repo.PutChallenge(ctx, ch2))

	got, err := repo.GetChallenge(ctx, "res-2", models.PhaseCheckIn)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ch2.Code, got.Code)
}

func TestFailover_StaysOnPrimaryWhileHealthy(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zerolog.Nop()
	primary := NewRedisChallengeRepository(client)
	repo := NewFailoverChallengeRepository(primary, NewMemoryChallengeRepository(), &logger)
	ctx := context.Background()

	ch := testChallenge("res-1", models.PhaseCheckIn)
	require.NoError(t, repo.PutChallenge(ctx, ch))

	got, err := primary.GetChallenge(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestMemoryChallengeRepository_LazyExpiry(t *testing.T) {
	repo := NewMemoryChallengeRepository()
	ctx := context.Background()

	ch := testChallenge("res-1", models.PhaseCheckIn)
	ch.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.PutChallenge(ctx, ch))

	got, err := repo.GetChallenge(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryChallengeRepository_ReturnsCopy(t *testing.T) {
	repo := NewMemoryChallengeRepository()
	ctx := context.Background()

	ch := testChallenge("res-1", models.PhaseCheckIn)
	require.NoError(t, repo.PutChallenge(ctx, ch))

	got, err := repo.GetChallenge(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)
	got.AttemptsRemaining = 0

	again, err := repo.GetChallenge(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)
	assert.Equal(t, 5, again.AttemptsRemaining)
}
