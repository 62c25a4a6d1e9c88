package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"stoyanka/internal/domain"
	"stoyanka/internal/metrics"
	"stoyanka/internal/models"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidOtp код не совпал с выданным
	ErrInvalidOtp = errors.New("invalid otp code")

	// ErrOtpExpired срок действия кода истек; нужен повторный выпуск
	ErrOtpExpired = errors.New("otp code expired")

	// ErrOtpAttemptsExhausted попытки исчерпаны; код недействителен навсегда
	ErrOtpAttemptsExhausted = errors.New("otp attempts exhausted")

	// ErrNoChallenge для этой фазы нет ожидающего кода
	ErrNoChallenge = errors.New("no pending otp challenge")
)

// InvalidCodeError reports a mismatch along with the remaining attempt
// budget so the actor can decide between retrying and re-issuing.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid otp code, %d attempts remaining", e.Remaining)
}

func (e *InvalidCodeError) Unwrap() error {
	return ErrInvalidOtp
}

// Service issues and verifies the one-time codes gating physical handoff.
// Check-in and check-out phases are uniform: same issuance, expiry and
// attempt rules, different TTLs.
type Service struct {
	repo        domain.ChallengeRepository
	checkInTTL  time.Duration
	checkOutTTL time.Duration
	attempts    int
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(repo domain.ChallengeRepository, checkInTTL, checkOutTTL time.Duration, attempts int, logger *zerolog.Logger) *Service {
	if attempts <= 0 {
		attempts = models.DefaultOtpAttempts
	}
	var svcLogger zerolog.Logger
	if logger != nil {
		svcLogger = logger.With().Str("component", "otp").Logger()
	}
	return &Service{
		repo:        repo,
		checkInTTL:  checkInTTL,
		checkOutTTL: checkOutTTL,
		attempts:    attempts,
		logger:      svcLogger,
		now:         time.Now,
	}
}

// Issue выпускает новый код для фазы. Прежний невостребованный код той же
// фазы при этом перестает действовать: хранится не более одного вызова
// на пару (бронь, фаза).
func (s *Service) Issue(ctx context.Context, reservationID, phase string) (*models.Challenge, error) {
	code, err := generateCode(models.OtpCodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp code: %w", err)
	}

	ttl := s.checkInTTL
	if phase == models.PhaseCheckOut {
		ttl = s.checkOutTTL
	}

	now := s.now()
	ch := &models.Challenge{
		ReservationID:     reservationID,
		Phase:             phase,
		Code:              code,
		IssuedAt:          now,
		ExpiresAt:         now.Add(ttl),
		AttemptsRemaining: s.attempts,
	}

	if err := s.repo.PutChallenge(ctx, ch); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	s.logger.Info().
		Str("reservation_id", reservationID).
		Str("phase", phase).
		Time("expires_at", ch.ExpiresAt).
		Msg("otp challenge issued")

	return ch, nil
}

// Verify проверяет код. Сравнение выполняется за постоянное время.
// Промах списывает попытку; ноль попыток или истекший срок делают вызов
// недействительным до повторного выпуска.
func (s *Service) Verify(ctx context.Context, reservationID, phase, code string) error {
	ch, err := s.repo.GetChallenge(ctx, reservationID, phase)
	if err != nil {
		return fmt.Errorf("failed to load challenge: %w", err)
	}
	if ch == nil || ch.ConsumedAt != nil {
		metrics.IncOtp(phase, "no_challenge")
		return ErrNoChallenge
	}

	now := s.now()
	if now.After(ch.ExpiresAt) {
		metrics.IncOtp(phase, "expired")
		return ErrOtpExpired
	}
	if ch.AttemptsRemaining <= 0 {
		metrics.IncOtp(phase, "exhausted")
		return ErrOtpAttemptsExhausted
	}

	if subtle.ConstantTimeCompare([]byte(ch.Code), []byte(code)) != 1 {
		ch.AttemptsRemaining--
		if err := s.repo.PutChallenge(ctx, ch); err != nil {
			return fmt.Errorf("failed to persist attempt: %w", err)
		}
		if ch.AttemptsRemaining <= 0 {
			metrics.IncOtp(phase, "exhausted")
			return ErrOtpAttemptsExhausted
		}
		metrics.IncOtp(phase, "mismatch")
		return &InvalidCodeError{Remaining: ch.AttemptsRemaining}
	}

	ch.ConsumedAt = &now
	if err := s.repo.PutChallenge(ctx, ch); err != nil {
		return fmt.Errorf("failed to consume challenge: %w", err)
	}

	metrics.IncOtp(phase, "ok")
	s.logger.Info().
		Str("reservation_id", reservationID).
		Str("phase", phase).
		Msg("otp challenge consumed")
	return nil
}

// Void аннулирует оба вызова брони. Вызывается при входе в терминальный
// статус: там ни один код не должен оставаться в силе.
func (s *Service) Void(ctx context.Context, reservationID string) {
	for _, phase := range []string{models.PhaseCheckIn, models.PhaseCheckOut} {
		if err := s.repo.DeleteChallenge(ctx, reservationID, phase); err != nil {
			s.logger.Warn().Err(err).
				Str("reservation_id", reservationID).
				Str("phase", phase).
				Msg("failed to void challenge")
		}
	}
}

// Peek возвращает текущий вызов фазы, не меняя его.
func (s *Service) Peek(ctx context.Context, reservationID, phase string) (*models.Challenge, error) {
	return s.repo.GetChallenge(ctx, reservationID, phase)
}

func generateCode(length int) (string, error) {
	max := big.NewInt(10)
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}
