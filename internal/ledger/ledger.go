package ledger

import (
	"context"
	"errors"
	"fmt"

	"stoyanka/internal/database"
	"stoyanka/internal/domain"
	"stoyanka/internal/metrics"
	"stoyanka/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Ledger exclusively owns available_spots. Every mutation goes through
// Reserve/Release/SetOnline; no other component writes the counter.
type Ledger struct {
	repo   domain.Repository
	bus    domain.EventPublisher
	logger zerolog.Logger
}

func New(repo domain.Repository, bus domain.EventPublisher, logger *zerolog.Logger) *Ledger {
	var l zerolog.Logger
	if logger != nil {
		l = logger.With().Str("component", "ledger").Logger()
	}
	return &Ledger{repo: repo, bus: bus, logger: l}
}

// Reserve атомарно списывает один слот и возвращает токен квитанции.
// ErrOutOfStock отдается вызывающему как есть и не ретраится: клиент
// должен искать другое место.
func (l *Ledger) Reserve(ctx context.Context, spaceID, reservationID string) (string, error) {
	hold := &models.Hold{
		Token:         uuid.NewString(),
		ReservationID: reservationID,
	}

	if err := l.repo.ReserveSpot(ctx, spaceID, hold); err != nil {
		if errors.Is(err, database.ErrOutOfStock) {
			metrics.IncReserve("out_of_stock")
		}
		return "", err
	}

	metrics.IncReserve("ok")
	l.broadcast(ctx, spaceID)
	return hold.Token, nil
}

// Release возвращает слот по квитанции. Идемпотентен: повторный вызов с
// тем же токеном ничего не меняет и не считается ошибкой.
func (l *Ledger) Release(ctx context.Context, spaceID, holdToken string) error {
	if holdToken == "" {
		return nil
	}

	effective, err := l.repo.ReleaseHold(ctx, holdToken)
	if err != nil {
		return fmt.Errorf("release hold %s: %w", holdToken, err)
	}
	if !effective {
		l.logger.Debug().Str("hold_token", holdToken).Msg("hold already released")
		return nil
	}

	l.broadcast(ctx, spaceID)
	return nil
}

// SetOnline переключает видимость площадки без изменения счетчиков.
func (l *Ledger) SetOnline(ctx context.Context, spaceID string, online bool) (*models.ParkingSpace, error) {
	changed, err := l.repo.SetSpaceOnline(ctx, spaceID, online)
	if err != nil {
		return nil, err
	}

	space, err := l.repo.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if changed {
		l.bus.PublishInventoryChanged(space)
	}
	return space, nil
}

func (l *Ledger) GetSpace(ctx context.Context, spaceID string) (*models.ParkingSpace, error) {
	return l.repo.GetSpace(ctx, spaceID)
}

func (l *Ledger) GetSpaces(ctx context.Context) ([]*models.ParkingSpace, error) {
	return l.repo.GetSpaces(ctx)
}

func (l *Ledger) broadcast(ctx context.Context, spaceID string) {
	space, err := l.repo.GetSpace(ctx, spaceID)
	if err != nil {
		l.logger.Error().Err(err).Str("space_id", spaceID).Msg("broadcast snapshot read failed")
		return
	}
	l.bus.PublishInventoryChanged(space)
}
