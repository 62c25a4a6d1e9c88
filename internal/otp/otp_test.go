package otp

import (
	"context"
	"testing"
	"time"

	"stoyanka/internal/models"
	"stoyanka/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(repository.NewMemoryChallengeRepository(), 30*time.Minute, 15*time.Minute, 3, nil)
}

func TestIssue_GeneratesSixDigitCode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ch, err := svc.Issue(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)
	assert.Len(t, ch.Code, models.OtpCodeLength)
	for _, c := range ch.Code {
		assert.True(t, c >= '0' && c <= '9')
	}
	assert.Equal(t, 3, ch.AttemptsRemaining)
}

func TestIssue_PerPhaseTTL(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	in, err := svc.Issue(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)
	out, err := svc.Issue(ctx, "res-1", models.PhaseCheckOut)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, in.ExpiresAt.Sub(in.IssuedAt))
	assert.Equal(t, 15*time.Minute, out.ExpiresAt.Sub(out.IssuedAt))
}

func TestVerify_HappyPath(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ch, err := svc.Issue(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)

	require.NoError(t, svc.Verify(ctx, "res-1", models.PhaseCheckIn, ch.Code))

	// Код одноразовый: повторная проверка уже не проходит
	err = svc.Verify(ctx, "res-1", models.PhaseCheckIn, ch.Code)
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestVerify_NoChallenge(t *testing.T) {
	svc := newTestService(t)

	err := svc.Verify(context.Background(), "res-1", models.PhaseCheckIn, "000000")
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestVerify_WrongCodeBurnsAttempts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ch, err := svc.Issue(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)

	wrong := "000000"
	if ch.Code == wrong {
		wrong = "111111"
	}

	err = svc.Verify(ctx, "res-1", models.PhaseCheckIn, wrong)
	var invalid *InvalidCodeError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 2, invalid.Remaining)
	assert.ErrorIs(t, err, ErrInvalidOtp)

	err = svc.Verify(ctx, "res-1", models.PhaseCheckIn, wrong)
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 1, invalid.Remaining)

	// Третий промах исчерпывает бюджет
	err = svc.Verify(ctx, "res-1", models.PhaseCheckIn, wrong)
	assert.ErrorIs(t, err, ErrOtpAttemptsExhausted)

	// Правильный код после исчерпания тоже недействителен
	err = svc.Verify(ctx, "res-1", models.PhaseCheckIn, ch.Code)
	assert.ErrorIs(t, err, ErrOtpAttemptsExhausted)
}

func TestVerify_Expired(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ch, err := svc.Issue(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)

	svc.now = func() time.Time { return ch.ExpiresAt.Add(time.Second) }

	err = svc.Verify(ctx, "res-1", models.PhaseCheckIn, ch.Code)
	assert.ErrorIs(t, err, ErrOtpExpired)
}

func TestIssue_ReplacesPriorCode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Issue(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)

	if first.Code != second.Code {
		err = svc.Verify(ctx, "res-1", models.PhaseCheckIn, first.Code)
		assert.Error(t, err)
	}
	require.NoError(t, svc.Verify(ctx, "res-1", models.PhaseCheckIn, second.Code))
}

func TestVoid_KillsBothPhases(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	in, err := svc.Issue(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)
	out, err := svc.Issue(ctx, "res-1", models.PhaseCheckOut)
	require.NoError(t, err)

	svc.Void(ctx, "res-1")

	assert.ErrorIs(t, svc.Verify(ctx, "res-1", models.PhaseCheckIn, in.Code), ErrNoChallenge)
	assert.ErrorIs(t, svc.Verify(ctx, "res-1", models.PhaseCheckOut, out.Code), ErrNoChallenge)
}

func TestPhasesDoNotCrossVerify(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	in, err := svc.Issue(ctx, "res-1", models.PhaseCheckIn)
	require.NoError(t, err)

	// Код заезда не открывает выезд
	err = svc.Verify(ctx, "res-1", models.PhaseCheckOut, in.Code)
	assert.ErrorIs(t, err, ErrNoChallenge)
}
